package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/webosce/audiod-pro/internal/device"
)

type request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type response struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  audioctl [flags] <method> [json-params]
  audioctl devices

Examples:
  audioctl /setInputVolume '{"streamType":"pmedia","volume":40}'
  audioctl -watch /getStreamStatus '{"subscribe":true}'
  audioctl /playSound '{"fileName":"alert.pcm","sink":"palert"}'

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	addr := flag.String("addr", "ws://127.0.0.1:9300/audio", "audiod websocket endpoint")
	service := flag.String("service", "com.webos.audioctl", "caller service name")
	watch := flag.Bool("watch", false, "keep printing subscription pushes until interrupted")
	timeout := flag.Duration("timeout", 3*time.Second, "reply timeout")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	if args[0] == "devices" {
		if err := listLocalDevices(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list devices: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var params json.RawMessage
	if len(args) > 1 {
		params = json.RawMessage(args[1])
		if !json.Valid(params) {
			fmt.Fprintf(os.Stderr, "params is not valid JSON: %s\n", args[1])
			os.Exit(2)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *addr, *service, args[0], params, *watch, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, addr, service, method string, params json.RawMessage, watch bool, timeout time.Duration) error {
	u, err := url.Parse(addr)
	if err != nil {
		return fmt.Errorf("invalid addr %s: %w", addr, err)
	}
	q := u.Query()
	q.Set("service", service)
	u.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()

	if !strings.HasPrefix(method, "/") {
		method = "/" + method
	}
	req := request{ID: uuid.NewString()[:8], Method: method, Params: params}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		if !watch {
			_ = conn.SetReadDeadline(time.Now().Add(timeout))
		}
		var resp response
		if err := conn.ReadJSON(&resp); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read reply: %w", err)
		}
		if err := printPayload(resp); err != nil {
			return err
		}
		// 订阅推送可能先于应答到达
		if !watch && resp.ID == req.ID {
			return replyError(resp.Payload)
		}
	}
}

func printPayload(resp response) error {
	var pretty map[string]any
	if err := json.Unmarshal(resp.Payload, &pretty); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("[%s] %s\n", resp.ID, out)
	return nil
}

func replyError(payload json.RawMessage) error {
	var reply struct {
		ReturnValue bool   `json:"returnValue"`
		ErrorText   string `json:"errorText"`
	}
	if err := json.Unmarshal(payload, &reply); err != nil {
		return err
	}
	if !reply.ReturnValue {
		return errors.New(reply.ErrorText)
	}
	return nil
}

// listLocalDevices 枚举本机 PortAudio 设备，与 audiod 上报的设备列表同源
func listLocalDevices() error {
	devices, err := device.PortAudioDevices()
	if err != nil {
		return err
	}
	fmt.Printf("=== Audio Devices (%d) ===\n", len(devices))
	for _, d := range devices {
		dir := "input "
		if d.IsOutput {
			dir = "output"
		}
		fmt.Printf("  [%s] %s (%s)\n", dir, d.Name, d.Detail)
	}
	return nil
}
