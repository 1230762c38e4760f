package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/webosce/audiod-pro/internal/logging"
)

const (
	writeTimeout    = time.Second
	shutdownTimeout = 3 * time.Second
)

// Doer 把操作放到事件循环上执行，*loop.Loop 满足该接口
type Doer interface {
	Do(ctx context.Context, fn func() error) error
}

type ServerOptions struct {
	Listen string
	Path   string
}

// request 客户端消息，cancel 非空时表示取消对应 id 的订阅
type request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	Cancel string          `json:"cancel,omitempty"`
}

type response struct {
	ID      string `json:"id"`
	Payload any    `json:"payload"`
}

// Server websocket 传输层，每个连接一个读 goroutine，请求在事件循环上处理
type Server struct {
	svc      *Service
	loop     Doer
	watcher  *ConnWatcher
	opts     ServerOptions
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*conn]struct{}
	log   *logging.Logger
}

func NewServer(svc *Service, l Doer, watcher *ConnWatcher, opts ServerOptions) *Server {
	if opts.Path == "" {
		opts.Path = "/"
	}
	if watcher == nil {
		watcher = NewConnWatcher()
	}
	return &Server{
		svc:     svc,
		loop:    l,
		watcher: watcher,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
		log:   logging.Named("server"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.opts.Path, s.serveWS)
	return mux
}

// Run 监听直到 ctx 结束
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on ws://%s%s", s.opts.Listen, s.opts.Path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	// Shutdown 不管已升级的连接
	s.closeAll()
	return err
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("websocket upgrade failed: %v", err)
		return
	}

	id := uuid.NewString()
	name := r.URL.Query().Get("service")
	if name == "" {
		name = "conn-" + id[:8]
	}
	c := &conn{id: id, service: name, ws: ws}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	s.watcher.connected(name)
	s.log.Infof("client %s connected (%s)", name, id)

	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		c.close()
		s.watcher.disconnected(name)
		_ = s.loop.Do(context.Background(), func() error {
			s.svc.Disconnect(c)
			return nil
		})
		s.log.Infof("client %s disconnected (%s)", name, id)
	}()

	s.readLoop(c)
}

func (s *Server) readLoop(c *conn) {
	ctx := context.Background()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warnf("read from %s: %v", c.service, err)
			}
			return
		}

		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			c.Push("", errorPayload(newError(CodeInvalidParameter, "malformed request")))
			continue
		}

		if req.Cancel != "" {
			_ = s.loop.Do(ctx, func() error {
				s.svc.Cancel(c, req.Cancel)
				return nil
			})
			continue
		}

		// 应答在事件循环上写出，之后的事件推送不会抢在它前面
		err = s.loop.Do(ctx, func() error {
			reply := s.svc.Handle(c, req.ID, c.service, req.Method, req.Params)
			c.Push(req.ID, reply)
			return nil
		})
		if err != nil {
			c.Push(req.ID, errorPayload(&Error{Code: CodeInternal, Text: err.Error()}))
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

// conn 实现 Peer
type conn struct {
	id      string
	service string
	ws      *websocket.Conn

	writeMu sync.Mutex
	closed  bool
}

func (c *conn) Push(requestID string, p any) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return false
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(response{ID: requestID, Payload: p}); err != nil {
		return false
	}
	return true
}

func (c *conn) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
	_ = c.ws.Close()
}
