package playback

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/webosce/audiod-pro/internal/events"
	"github.com/webosce/audiod-pro/internal/logging"
	"github.com/webosce/audiod-pro/internal/loop"
)

// Control 的请求类型
const (
	ControlPlay   = "play"
	ControlPause  = "pause"
	ControlResume = "resume"
	ControlStop   = "stop"
)

const (
	defaultMaxStreams = 4
	// keepFinished 已结束的播放保留多少条状态供查询
	keepFinished = 32
)

// Opener 为一次播放创建输出流，src 已跳过文件头
type Opener interface {
	Open(req Request, src io.Reader) (Stream, error)
}

type Options struct {
	Opener     Opener
	Bus        *events.Bus
	Poster     loop.Poster
	SoundsDir  string
	MaxStreams int
	// OpenFile 默认 os.Open
	OpenFile func(name string) (io.ReadCloser, error)
}

// Manager 除 worker 外只在事件循环上使用
type Manager struct {
	opts     Options
	handles  map[string]*Handle
	finished map[string]Status
	order    []string
	newID    func() string
	log      *logging.Logger
}

func NewManager(opts Options) *Manager {
	if opts.MaxStreams <= 0 {
		opts.MaxStreams = defaultMaxStreams
	}
	if opts.OpenFile == nil {
		opts.OpenFile = func(name string) (io.ReadCloser, error) { return os.Open(name) }
	}
	return &Manager{
		opts:     opts,
		handles:  make(map[string]*Handle),
		finished: make(map[string]Status),
		newID:    uuid.NewString,
		log:      logging.Named("playback"),
	}
}

// Play 打开文件和输出流并开始播放，返回 playbackId
func (m *Manager) Play(req Request) (string, error) {
	if err := req.Normalize(m.opts.SoundsDir); err != nil {
		return "", err
	}
	if len(m.handles) >= m.opts.MaxStreams {
		return "", ErrTooManyStreams
	}

	f, err := m.opts.OpenFile(req.FileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s not found", ErrInvalidParameter, req.FileName)
		}
		return "", fmt.Errorf("open %s: %w", req.FileName, err)
	}
	if skip := req.HeaderSize(); skip > 0 {
		if _, err := io.CopyN(io.Discard, f, skip); err != nil {
			f.Close()
			return "", fmt.Errorf("%w: %s is shorter than its header", ErrInvalidParameter, req.FileName)
		}
	}

	stream, err := m.opts.Opener.Open(req, f)
	if err != nil {
		f.Close()
		return "", fmt.Errorf("open playback stream on %s: %w", req.Sink, err)
	}

	id := m.newID()
	h := newHandle(id, req, stream, func() { f.Close() })
	m.handles[id] = h
	m.log.Infof("playback %s started: %s on %s (%s %dHz %dch)", id, req.FileName, req.Sink, req.Format, req.Rate, req.Channels)
	m.publish(id, StatusPlaying)

	h.Retain()
	go m.run(h)
	return id, nil
}

func (m *Manager) run(h *Handle) {
	defer h.Release()

	h.stream.Start()
	h.stream.Drain()

	status := StatusDone
	if err := h.stream.Error(); err != nil {
		m.log.Warnf("playback %s failed: %v", h.id, err)
		status = StatusError
	}
	m.post(func() { m.finish(h, status) })
}

func (m *Manager) post(fn func()) {
	if m.opts.Poster == nil {
		fn()
		return
	}
	if !m.opts.Poster.Post(fn) {
		m.log.Warnf("event loop stopped, dropping playback status")
	}
}

// finish worker 结束后在事件循环上调用
func (m *Manager) finish(h *Handle, status Status) {
	if cur, ok := m.handles[h.id]; !ok || cur != h {
		return
	}
	if h.setStatus(status) {
		m.publish(h.id, status)
	}
	m.retire(h)
}

func (m *Manager) retire(h *Handle) {
	delete(m.handles, h.id)
	m.finished[h.id] = h.Status()
	m.order = append(m.order, h.id)
	if len(m.order) > keepFinished {
		delete(m.finished, m.order[0])
		m.order = m.order[1:]
	}
	h.Release()
}

// Control 处理 play/pause/resume/stop
func (m *Manager) Control(id, request string) (Status, error) {
	h, ok := m.handles[id]
	if !ok {
		if st, done := m.finished[id]; done {
			return st, nil
		}
		return "", ErrUnknownPlayback
	}

	switch request {
	case ControlPause:
		if h.Status() == StatusPlaying {
			h.stream.Stop()
			m.transition(h, StatusPaused)
		}
	case ControlPlay, ControlResume:
		if h.Status() == StatusPaused {
			h.stream.Start()
			m.transition(h, StatusPlaying)
		}
	case ControlStop:
		m.transition(h, StatusStopped)
		h.closeStream()
		m.retire(h)
	default:
		return "", fmt.Errorf("%w: requestType %q", ErrInvalidParameter, request)
	}
	return h.Status(), nil
}

func (m *Manager) transition(h *Handle, status Status) {
	if h.setStatus(status) {
		m.log.Infof("playback %s %s", h.id, status)
		m.publish(h.id, status)
	}
}

// Status 正在播放或最近结束的播放状态
func (m *Manager) Status(id string) (Status, error) {
	if h, ok := m.handles[id]; ok {
		return h.Status(), nil
	}
	if st, ok := m.finished[id]; ok {
		return st, nil
	}
	return "", ErrUnknownPlayback
}

func (m *Manager) Active() int {
	return len(m.handles)
}

// Close 停止所有播放
func (m *Manager) Close() {
	for _, h := range m.handles {
		m.transition(h, StatusStopped)
		h.closeStream()
		m.retire(h)
	}
}

func (m *Manager) publish(id string, status Status) {
	if m.opts.Bus == nil {
		return
	}
	m.opts.Bus.Publish(events.NewPlaybackStatusEvent(id, string(status)))
}
