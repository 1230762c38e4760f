package events

import (
	"time"

	"github.com/webosce/audiod-pro/internal/audio"
)

// Kind 事件类型
type Kind int

const (
	KindSinkStatus Kind = iota
	KindSourceStatus
	KindMixerStatus
	KindDeviceConnection
	KindMasterVolume
	KindRegisterTrack
	KindUnregisterTrack
	KindInputVolume
	KindCurrentInputVolume
	KindVolumeReport
	KindStreamStatus
	KindPlaybackStatus
)

func (k Kind) String() string {
	switch k {
	case KindSinkStatus:
		return "SinkStatus"
	case KindSourceStatus:
		return "SourceStatus"
	case KindMixerStatus:
		return "MixerStatus"
	case KindDeviceConnection:
		return "DeviceConnection"
	case KindMasterVolume:
		return "MasterVolume"
	case KindRegisterTrack:
		return "RegisterTrack"
	case KindUnregisterTrack:
		return "UnregisterTrack"
	case KindInputVolume:
		return "InputVolume"
	case KindCurrentInputVolume:
		return "CurrentInputVolume"
	case KindVolumeReport:
		return "VolumeReport"
	case KindStreamStatus:
		return "StreamStatus"
	case KindPlaybackStatus:
		return "PlaybackStatus"
	default:
		return "Unknown"
	}
}

// Event 事件接口，具体类型通过 type switch 分发
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// BaseEvent 事件公共字段
type BaseEvent struct {
	kind      Kind
	timestamp time.Time
}

func (e *BaseEvent) Kind() Kind {
	return e.kind
}

func (e *BaseEvent) Timestamp() time.Time {
	return e.timestamp
}

func base(kind Kind) BaseEvent {
	return BaseEvent{kind: kind, timestamp: time.Now()}
}

// SinkStatusEvent 虚拟 sink 打开/关闭
type SinkStatusEvent struct {
	BaseEvent
	Source      string
	Sink        string
	VirtualSink audio.Sink
	Status      audio.StreamStatus
	Mixer       audio.MixerType
	SinkIndex   int
	TrackID     string
}

func NewSinkStatusEvent(source, sink string, vsink audio.Sink, status audio.StreamStatus, mixer audio.MixerType, sinkIndex int, trackID string) *SinkStatusEvent {
	return &SinkStatusEvent{
		BaseEvent:   base(KindSinkStatus),
		Source:      source,
		Sink:        sink,
		VirtualSink: vsink,
		Status:      status,
		Mixer:       mixer,
		SinkIndex:   sinkIndex,
		TrackID:     trackID,
	}
}

// SourceStatusEvent 虚拟 source 打开/关闭
type SourceStatusEvent struct {
	BaseEvent
	Source        string
	Sink          string
	VirtualSource audio.Source
	Status        audio.StreamStatus
	Mixer         audio.MixerType
}

func NewSourceStatusEvent(source, sink string, vsource audio.Source, status audio.StreamStatus, mixer audio.MixerType) *SourceStatusEvent {
	return &SourceStatusEvent{
		BaseEvent:     base(KindSourceStatus),
		Source:        source,
		Sink:          sink,
		VirtualSource: vsource,
		Status:        status,
		Mixer:         mixer,
	}
}

// MixerStatusEvent 混音器就绪状态变化
type MixerStatusEvent struct {
	BaseEvent
	Ready bool
	Mixer audio.MixerType
}

func NewMixerStatusEvent(ready bool, mixer audio.MixerType) *MixerStatusEvent {
	return &MixerStatusEvent{
		BaseEvent: base(KindMixerStatus),
		Ready:     ready,
		Mixer:     mixer,
	}
}

// DeviceConnectionEvent 设备插拔
type DeviceConnectionEvent struct {
	BaseEvent
	Name      string
	Detail    string
	Connected bool
	IsOutput  bool
	Mixer     audio.MixerType
}

func NewDeviceConnectionEvent(name, detail string, connected, isOutput bool, mixer audio.MixerType) *DeviceConnectionEvent {
	return &DeviceConnectionEvent{
		BaseEvent: base(KindDeviceConnection),
		Name:      name,
		Detail:    detail,
		Connected: connected,
		IsOutput:  isOutput,
		Mixer:     mixer,
	}
}

// MasterVolumeEvent 主音量状态
type MasterVolumeEvent struct {
	BaseEvent
	SoundOutput string
	Volume      int
	Muted       bool
	SessionID   int
}

func NewMasterVolumeEvent(soundOutput string, volume int, muted bool, sessionID int) *MasterVolumeEvent {
	return &MasterVolumeEvent{
		BaseEvent:   base(KindMasterVolume),
		SoundOutput: soundOutput,
		Volume:      volume,
		Muted:       muted,
		SessionID:   sessionID,
	}
}

type RegisterTrackEvent struct {
	BaseEvent
	TrackID    string
	StreamType string
}

func NewRegisterTrackEvent(trackID, streamType string) *RegisterTrackEvent {
	return &RegisterTrackEvent{
		BaseEvent:  base(KindRegisterTrack),
		TrackID:    trackID,
		StreamType: streamType,
	}
}

type UnregisterTrackEvent struct {
	BaseEvent
	TrackID string
}

func NewUnregisterTrackEvent(trackID string) *UnregisterTrackEvent {
	return &UnregisterTrackEvent{
		BaseEvent: base(KindUnregisterTrack),
		TrackID:   trackID,
	}
}

// InputVolumeEvent 流音量被用户修改
type InputVolumeEvent struct {
	BaseEvent
	Sink   audio.Sink
	Volume int
	Ramp   bool
}

func NewInputVolumeEvent(sink audio.Sink, volume int, ramp bool) *InputVolumeEvent {
	return &InputVolumeEvent{
		BaseEvent: base(KindInputVolume),
		Sink:      sink,
		Volume:    volume,
		Ramp:      ramp,
	}
}

// CurrentInputVolumeEvent 混音器上报的流当前音量
type CurrentInputVolumeEvent struct {
	BaseEvent
	Sink   audio.Sink
	Volume int
}

func NewCurrentInputVolumeEvent(sink audio.Sink, volume int) *CurrentInputVolumeEvent {
	return &CurrentInputVolumeEvent{
		BaseEvent: base(KindCurrentInputVolume),
		Sink:      sink,
		Volume:    volume,
	}
}

// VolumeReportEvent 推送给 getInputVolume / getSourceInputVolume 订阅者
type VolumeReportEvent struct {
	BaseEvent
	StreamType string
	Source     bool
	Volume     int
}

func NewVolumeReportEvent(streamType string, source bool, volume int) *VolumeReportEvent {
	return &VolumeReportEvent{
		BaseEvent:  base(KindVolumeReport),
		StreamType: streamType,
		Source:     source,
		Volume:     volume,
	}
}

// StreamSnapshot 单个流的状态快照
type StreamSnapshot struct {
	StreamType   string `json:"streamType"`
	MuteStatus   bool   `json:"muteStatus"`
	InputVolume  int    `json:"inputVolume"`
	Sink         string `json:"sink"`
	Source       string `json:"source"`
	PolicyStatus bool   `json:"policyStatus"`
	ActiveStatus bool   `json:"activeStatus"`
}

// StreamStatusEvent 推送给 getStreamStatus / getSourceStatus 订阅者
type StreamStatusEvent struct {
	BaseEvent
	Source  bool
	Streams []StreamSnapshot
}

func NewStreamStatusEvent(source bool, streams []StreamSnapshot) *StreamStatusEvent {
	return &StreamStatusEvent{
		BaseEvent: base(KindStreamStatus),
		Source:    source,
		Streams:   streams,
	}
}

type PlaybackStatusEvent struct {
	BaseEvent
	PlaybackID string
	Status     string
}

func NewPlaybackStatusEvent(playbackID, status string) *PlaybackStatusEvent {
	return &PlaybackStatusEvent{
		BaseEvent:  base(KindPlaybackStatus),
		PlaybackID: playbackID,
		Status:     status,
	}
}
