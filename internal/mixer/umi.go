package mixer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/webosce/audiod-pro/internal/audio"
	"github.com/webosce/audiod-pro/internal/logging"
)

type UmiOptions struct {
	Endpoint          string
	ReconnectInterval time.Duration
}

// UmiBackend 硬件混音器，通过 websocket 请求/应答协议控制
// 请求只负责发送，结果在接收 goroutine 中处理，不阻塞事件循环
type UmiBackend struct {
	opts   UmiOptions
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	ready   bool
	cb      Callbacks
	pending map[string]func(umiResponse)
	writeMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logging.Logger
}

func NewUmiBackend(opts UmiOptions) *UmiBackend {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = time.Second
	}
	return &UmiBackend{
		opts:    opts,
		dialer:  websocket.DefaultDialer,
		pending: make(map[string]func(umiResponse)),
		log:     logging.Named("umi"),
	}
}

func (u *UmiBackend) Kind() audio.MixerType {
	return audio.MixerUmi
}

func (u *UmiBackend) Bind(cb Callbacks) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cb = cb
}

func (u *UmiBackend) Ready() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.ready
}

// Start 启动连接循环，断线后按 ReconnectInterval 重连
func (u *UmiBackend) Start(ctx context.Context) error {
	if u.opts.Endpoint == "" {
		return errors.New("umi endpoint is required")
	}
	u.mu.Lock()
	if u.cancel != nil {
		u.mu.Unlock()
		return errors.New("umi backend already started")
	}
	ctx, u.cancel = context.WithCancel(ctx)
	u.mu.Unlock()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		for {
			if err := u.session(ctx); err != nil && ctx.Err() == nil {
				u.log.Warnf("umi session ended: %v", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(u.opts.ReconnectInterval):
			}
		}
	}()
	return nil
}

// session 建立一次连接并接收直到断开
func (u *UmiBackend) session(ctx context.Context) error {
	conn, _, err := u.dialer.DialContext(ctx, u.opts.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.opts.Endpoint, err)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	u.mu.Lock()
	u.conn = conn
	u.mu.Unlock()
	u.log.Infof("connected to umi mixer at %s", u.opts.Endpoint)
	u.setReady(true)

	err = u.receive(conn)

	u.mu.Lock()
	u.conn = nil
	pending := u.pending
	u.pending = make(map[string]func(umiResponse))
	u.mu.Unlock()
	_ = conn.Close()

	for _, handle := range pending {
		handle(umiResponse{ReturnValue: false, ErrorText: "connection closed"})
	}
	u.setReady(false)
	return err
}

func (u *UmiBackend) receive(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg umiMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			u.log.Warnf("invalid umi message: %v", err)
			continue
		}
		if msg.Event != "" {
			u.handleEvent(msg.Event, msg.Params)
			continue
		}
		u.mu.Lock()
		handle, ok := u.pending[msg.ID]
		delete(u.pending, msg.ID)
		u.mu.Unlock()
		if ok {
			handle(msg.umiResponse)
		}
	}
}

func (u *UmiBackend) handleEvent(event string, raw json.RawMessage) {
	cb := u.callbacks()
	if cb == nil {
		return
	}
	switch event {
	case "sinkChanged":
		var p umiSinkParams
		if err := json.Unmarshal(raw, &p); err != nil {
			u.log.Warnf("invalid sinkChanged params: %v", err)
			return
		}
		cb.OnSinkStatus(SinkReport{
			Kind:        audio.MixerUmi,
			Source:      p.Source,
			Sink:        p.PhysicalSink,
			VirtualSink: audio.Sink(p.Sink),
			Opened:      p.Connected,
			SinkIndex:   audio.InvalidIndex,
		})
	case "masterVolumeChanged":
		var p umiMasterParams
		if err := json.Unmarshal(raw, &p); err != nil {
			u.log.Warnf("invalid masterVolumeChanged params: %v", err)
			return
		}
		cb.OnMasterVolume(MasterReport{SoundOutput: p.SoundOutput, Volume: p.Volume, Muted: p.Muted, SessionID: p.SessionID})
	case "inputVolumeChanged":
		var p umiVolumeParams
		if err := json.Unmarshal(raw, &p); err != nil {
			u.log.Warnf("invalid inputVolumeChanged params: %v", err)
			return
		}
		cb.OnInputVolume(audio.Sink(p.Sink), p.Volume)
	case "deviceChanged":
		var p umiDeviceParams
		if err := json.Unmarshal(raw, &p); err != nil {
			u.log.Warnf("invalid deviceChanged params: %v", err)
			return
		}
		cb.OnDeviceConnection(DeviceReport{Kind: audio.MixerUmi, Name: p.Name, Detail: p.Detail, Connected: p.Connected, IsOutput: p.IsOutput})
	default:
		u.log.Debugf("ignoring umi event %s", event)
	}
}

func (u *UmiBackend) setReady(ready bool) {
	u.mu.Lock()
	changed := u.ready != ready
	u.ready = ready
	cb := u.cb
	u.mu.Unlock()
	if changed && cb != nil {
		cb.OnReady(audio.MixerUmi, ready)
	}
}

func (u *UmiBackend) callbacks() Callbacks {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cb
}

// send 发送请求，onReply 在接收 goroutine 中调用
func (u *UmiBackend) send(method string, params any, onReply func(umiResponse)) error {
	u.mu.Lock()
	conn := u.conn
	if conn == nil {
		u.mu.Unlock()
		return &UnavailableError{Kind: audio.MixerUmi}
	}
	id := uuid.NewString()
	if onReply == nil {
		onReply = func(resp umiResponse) {
			if !resp.ReturnValue {
				u.log.Warnf("umi %s failed: %s", method, resp.ErrorText)
			}
		}
	}
	u.pending[id] = onReply
	u.mu.Unlock()

	payload, err := json.Marshal(umiRequest{ID: id, Method: method, Params: params})
	if err != nil {
		u.forget(id)
		return err
	}
	u.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, payload)
	u.writeMu.Unlock()
	if err != nil {
		u.forget(id)
		return fmt.Errorf("umi %s: %w", method, err)
	}
	return nil
}

func (u *UmiBackend) forget(id string) {
	u.mu.Lock()
	delete(u.pending, id)
	u.mu.Unlock()
}

// OpenCloseSink 连接/断开音频通路，硬件以 sinkChanged 事件确认
func (u *UmiBackend) OpenCloseSink(req SinkRequest) error {
	method := "disconnectAudio"
	if req.Open {
		method = "connectAudio"
	}
	return u.send(method, map[string]any{"sink": string(req.Sink)}, nil)
}

func (u *UmiBackend) SetSinkGain(sink audio.Sink, volume int, ramp bool) error {
	return u.send("setInputVolume", map[string]any{
		"sink":   string(sink),
		"volume": volume,
		"ramp":   ramp,
	}, nil)
}

func (u *UmiBackend) MuteSink(sink audio.Sink, mute bool) error {
	return u.send("muteInput", map[string]any{
		"sink": string(sink),
		"mute": mute,
	}, nil)
}

func (u *UmiBackend) SetMasterVolume(soundOutput string, volume int) error {
	return u.send("setMasterVolume", map[string]any{
		"soundOutput": soundOutput,
		"volume":      volume,
	}, nil)
}

func (u *UmiBackend) MuteMaster(soundOutput string, mute bool) error {
	return u.send("muteMaster", map[string]any{
		"soundOutput": soundOutput,
		"mute":        mute,
	}, nil)
}

func (u *UmiBackend) Close() error {
	u.mu.Lock()
	cancel := u.cancel
	conn := u.conn
	u.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	u.wg.Wait()
	return nil
}

type umiRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type umiResponse struct {
	ReturnValue bool   `json:"returnValue"`
	ErrorText   string `json:"errorText,omitempty"`
}

type umiMessage struct {
	ID     string          `json:"id,omitempty"`
	Event  string          `json:"event,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	umiResponse
}

type umiSinkParams struct {
	Sink         string `json:"sink"`
	Source       string `json:"source"`
	PhysicalSink string `json:"physicalSink"`
	Connected    bool   `json:"connected"`
}

type umiMasterParams struct {
	SoundOutput string `json:"soundOutput"`
	Volume      int    `json:"volume"`
	Muted       bool   `json:"muted"`
	SessionID   int    `json:"sessionId"`
}

type umiVolumeParams struct {
	Sink   string `json:"sink"`
	Volume int    `json:"volume"`
}

type umiDeviceParams struct {
	Name      string `json:"name"`
	Detail    string `json:"detail"`
	Connected bool   `json:"connected"`
	IsOutput  bool   `json:"isOutput"`
}
