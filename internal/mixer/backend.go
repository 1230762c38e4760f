package mixer

import (
	"errors"
	"fmt"

	"github.com/webosce/audiod-pro/internal/audio"
)

var (
	// ErrUnavailable 目标后端未注册或未就绪
	ErrUnavailable = errors.New("mixer backend unavailable")
	// ErrUnsupported 后端不具备该能力
	ErrUnsupported = errors.New("mixer operation not supported")
)

// UnavailableError 带后端类型的不可用错误，errors.Is(err, ErrUnavailable) 为真
type UnavailableError struct {
	Kind audio.MixerType
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s mixer unavailable", e.Kind)
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// SinkRequest 平台通知的输出流打开/关闭
type SinkRequest struct {
	Sink      audio.Sink
	Open      bool
	SinkIndex int
	TrackID   string
}

// Backend 混音器后端的基本能力
type Backend interface {
	Kind() audio.MixerType
	Ready() bool
	// Bind 设置回调目标，由 Mixer.Register 调用
	Bind(cb Callbacks)
	OpenCloseSink(req SinkRequest) error
	SetSinkGain(sink audio.Sink, volume int, ramp bool) error
	MuteSink(sink audio.Sink, mute bool) error
	Close() error
}

// SourceBackend 输入流能力
type SourceBackend interface {
	OpenCloseSource(source audio.Source, open bool) error
	SetSourceGain(source audio.Source, volume int, ramp bool) error
	MuteSource(source audio.Source, mute bool) error
	MutePhysicalSource(name string, mute bool) error
}

// TrackBackend 按 sink input 调整单个客户端音量
type TrackBackend interface {
	SetTrackVolume(sink audio.Sink, sinkInputIndex int, volume int) error
	CloseClient(sinkInputIndex int) error
}

// MasterBackend 主音量
type MasterBackend interface {
	SetMasterVolume(soundOutput string, volume int) error
	MuteMaster(soundOutput string, mute bool) error
}

// SinkReport 后端确认的 sink 状态
type SinkReport struct {
	Kind        audio.MixerType
	Source      string
	Sink        string
	VirtualSink audio.Sink
	Opened      bool
	SinkIndex   int
	TrackID     string
}

type SourceReport struct {
	Kind          audio.MixerType
	Source        string
	Sink          string
	VirtualSource audio.Source
	Opened        bool
}

type DeviceReport struct {
	Kind      audio.MixerType
	Name      string
	Detail    string
	Connected bool
	IsOutput  bool
}

type MasterReport struct {
	SoundOutput string
	Volume      int
	Muted       bool
	SessionID   int
}

// Callbacks 后端向门面上报状态，可以在任意 goroutine 调用
type Callbacks interface {
	OnReady(kind audio.MixerType, ready bool)
	OnSinkStatus(r SinkReport)
	OnSourceStatus(r SourceReport)
	OnDeviceConnection(r DeviceReport)
	OnMasterVolume(r MasterReport)
	OnInputVolume(sink audio.Sink, volume int)
}
