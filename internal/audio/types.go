package audio

import "strings"

// Sink 虚拟输出流，名称与策略表中的 streamType 一致（如 "pmedia"、"palert"）
type Sink string

// Source 虚拟输入流
type Source string

const (
	MaxVolume   = 100
	MinVolume   = 0
	InitVolume  = 0
	MaxPriority = 100

	// DefaultTrackID 未注册 track 的客户端共用的保留桶
	DefaultTrackID = "_default"

	// InvalidIndex 表示 sink input 尚未绑定
	InvalidIndex = -1

	DefaultMaxTracks = 32
)

// MixerType 混音器后端类型
type MixerType int

const (
	MixerNone MixerType = iota
	MixerPulse
	MixerUmi
)

func (m MixerType) String() string {
	switch m {
	case MixerPulse:
		return "pulse"
	case MixerUmi:
		return "umi"
	default:
		return "none"
	}
}

// ParseMixerType 解析配置或请求中的混音器名称
func ParseMixerType(name string) (MixerType, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pulse":
		return MixerPulse, true
	case "umi":
		return MixerUmi, true
	case "", "none":
		return MixerNone, true
	default:
		return MixerNone, false
	}
}

// StreamStatus 流的打开/关闭状态
type StreamStatus int

const (
	StreamClosed StreamStatus = iota
	StreamOpened
)

func (s StreamStatus) String() string {
	if s == StreamOpened {
		return "opened"
	}
	return "closed"
}

// ValidVolume 音量是否在 [MinVolume, MaxVolume] 范围内
func ValidVolume(v int) bool {
	return v >= MinVolume && v <= MaxVolume
}

// ScaleVolume 按 track 比例缩放流音量，向零取整
func ScaleVolume(streamVolume, trackVolume int) int {
	return streamVolume * trackVolume / 100
}
