// Package playback 播放系统提示音等原始 PCM 文件
package playback

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	ErrInvalidParameter = errors.New("invalid playback parameter")
	ErrUnknownPlayback  = errors.New("unknown playback id")
	ErrTooManyStreams   = errors.New("too many concurrent playbacks")
)

// SampleFormat 采样格式，取值沿用平台 API 里的 pulse 名称
type SampleFormat string

const (
	FormatS16LE     SampleFormat = "PA_SAMPLE_S16LE"
	FormatS32LE     SampleFormat = "PA_SAMPLE_S32LE"
	FormatFloat32LE SampleFormat = "PA_SAMPLE_FLOAT32LE"
	FormatU8        SampleFormat = "PA_SAMPLE_U8"
)

// BytesPerSample 每个采样的字节数，未知格式返回 0
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatS16LE:
		return 2
	case FormatS32LE, FormatFloat32LE:
		return 4
	case FormatU8:
		return 1
	default:
		return 0
	}
}

const (
	DefaultFormat   = FormatS16LE
	DefaultRate     = 44100
	DefaultChannels = 2

	minRate     = 8000
	maxRate     = 48000
	minChannels = 1
	maxChannels = 2

	// wavHeaderSize 只支持标准 44 字节头
	wavHeaderSize = 44
)

// Status 播放状态
type Status string

const (
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Terminal 终止状态不会再变化
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusDone || s == StatusError
}

// Request /playSound 的参数
type Request struct {
	FileName string       `json:"fileName"`
	Sink     string       `json:"sink"`
	Format   SampleFormat `json:"format,omitempty"`
	Rate     int          `json:"rate,omitempty"`
	Channels int          `json:"channels,omitempty"`
}

// Normalize 填充默认值并校验，相对路径按 soundsDir 解析
func (r *Request) Normalize(soundsDir string) error {
	if strings.TrimSpace(r.FileName) == "" {
		return fmt.Errorf("%w: fileName is required", ErrInvalidParameter)
	}
	if strings.TrimSpace(r.Sink) == "" {
		return fmt.Errorf("%w: sink is required", ErrInvalidParameter)
	}
	if r.Format == "" {
		r.Format = DefaultFormat
	}
	if r.Rate == 0 {
		r.Rate = DefaultRate
	}
	if r.Channels == 0 {
		r.Channels = DefaultChannels
	}

	if r.Format.BytesPerSample() == 0 {
		return fmt.Errorf("%w: unsupported format %s", ErrInvalidParameter, r.Format)
	}
	if r.Rate < minRate || r.Rate > maxRate {
		return fmt.Errorf("%w: rate %d out of [%d, %d]", ErrInvalidParameter, r.Rate, minRate, maxRate)
	}
	if r.Channels < minChannels || r.Channels > maxChannels {
		return fmt.Errorf("%w: channels %d out of [%d, %d]", ErrInvalidParameter, r.Channels, minChannels, maxChannels)
	}

	switch strings.ToLower(filepath.Ext(r.FileName)) {
	case ".pcm", ".wav":
	default:
		return fmt.Errorf("%w: unsupported file type %s", ErrInvalidParameter, r.FileName)
	}
	if !filepath.IsAbs(r.FileName) && soundsDir != "" {
		r.FileName = filepath.Join(soundsDir, r.FileName)
	}
	return nil
}

// HeaderSize 需要跳过的文件头长度
func (r Request) HeaderSize() int64 {
	if strings.EqualFold(filepath.Ext(r.FileName), ".wav") {
		return wavHeaderSize
	}
	return 0
}

// Stream 正在播放的输出流
type Stream interface {
	Start()
	// Stop 暂停输出，再次 Start 从原位置继续
	Stop()
	// Drain 阻塞到数据播放完或流被关闭
	Drain()
	Close()
	Error() error
}

// Handle 一次播放，管理器和 worker 各持有一个引用
type Handle struct {
	id     string
	req    Request
	stream Stream
	closer func()

	refs      atomic.Int32
	closeOnce sync.Once

	mu     sync.Mutex
	status Status
}

func newHandle(id string, req Request, stream Stream, closer func()) *Handle {
	h := &Handle{
		id:     id,
		req:    req,
		stream: stream,
		closer: closer,
		status: StatusPlaying,
	}
	h.refs.Store(1)
	return h
}

func (h *Handle) ID() string {
	return h.id
}

func (h *Handle) Request() Request {
	return h.req
}

func (h *Handle) Retain() {
	h.refs.Add(1)
}

// Release 最后一个引用释放时关闭流和文件
func (h *Handle) Release() {
	if h.refs.Add(-1) != 0 {
		return
	}
	h.closeStream()
	if h.closer != nil {
		h.closer()
	}
}

// closeStream 可以提前调用来打断 Drain
func (h *Handle) closeStream() {
	h.closeOnce.Do(h.stream.Close)
}

func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// setStatus 终止状态之后不再变化，返回是否发生了变化
func (h *Handle) setStatus(s Status) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status == s || h.status.Terminal() {
		return false
	}
	h.status = s
	return true
}
