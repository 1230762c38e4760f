// Package master 按显示会话维护主音量（扬声器音量）
package master

import (
	"errors"
	"fmt"

	"github.com/webosce/audiod-pro/internal/audio"
	"github.com/webosce/audiod-pro/internal/events"
	"github.com/webosce/audiod-pro/internal/logging"
)

var (
	ErrInvalidSession     = errors.New("invalid session id")
	ErrInvalidSoundOutput = errors.New("volume control is not supported on this sound output")
	ErrVolumeRange        = errors.New("volume not in range")
	ErrMixerFailure       = errors.New("master volume mixer call failed")
)

const (
	SessionPrimary   = 0
	SessionSecondary = 1

	// DefaultSoundOutput 副会话只支持这个输出
	DefaultSoundOutput = "alsa"

	volumeStep = 1
)

// Controller 主音量控制能力，*mixer.Mixer 实现了该接口
type Controller interface {
	SetMasterVolume(kind audio.MixerType, soundOutput string, volume int) error
	MuteMaster(kind audio.MixerType, soundOutput string, mute bool) error
}

// Status 一个会话的主音量状态
type Status struct {
	SoundOutput string `json:"soundOutput"`
	Volume      int    `json:"volume"`
	Muted       bool   `json:"muted"`
	SessionID   int    `json:"sessionId"`
}

// Manager 只在事件循环上使用
type Manager struct {
	mixer    Controller
	kind     audio.MixerType
	sessions [2]Status
	bus      *events.Bus
	sub      events.SubscriptionID
	log      *logging.Logger
}

func NewManager(mixer Controller, kind audio.MixerType, soundOutput string, bus *events.Bus) *Manager {
	if soundOutput == "" {
		soundOutput = DefaultSoundOutput
	}
	m := &Manager{
		mixer: mixer,
		kind:  kind,
		bus:   bus,
		log:   logging.Named("master"),
	}
	m.sessions[SessionPrimary] = Status{SoundOutput: soundOutput, SessionID: SessionPrimary}
	m.sessions[SessionSecondary] = Status{SoundOutput: DefaultSoundOutput, SessionID: SessionSecondary}
	return m
}

// Start 跟随混音器上报的主音量变化
func (m *Manager) Start() {
	m.sub = m.bus.Subscribe(events.KindMasterVolume, func(ev events.Event) {
		evt, ok := ev.(*events.MasterVolumeEvent)
		if !ok || !validSession(evt.SessionID) {
			return
		}
		st := &m.sessions[evt.SessionID]
		if st.Volume == evt.Volume && st.Muted == evt.Muted {
			return
		}
		m.log.Infof("mixer reported master volume %d muted=%t for session %d", evt.Volume, evt.Muted, evt.SessionID)
		st.Volume = clampVolume(evt.Volume)
		st.Muted = evt.Muted
		if evt.SoundOutput != "" {
			st.SoundOutput = evt.SoundOutput
		}
	})
}

func (m *Manager) Stop() {
	if m.sub != 0 {
		m.bus.Unsubscribe(m.sub)
		m.sub = 0
	}
}

func validSession(session int) bool {
	return session == SessionPrimary || session == SessionSecondary
}

func (m *Manager) session(soundOutput string, session int) (*Status, error) {
	if !validSession(session) {
		return nil, ErrInvalidSession
	}
	if session == SessionSecondary && soundOutput != DefaultSoundOutput {
		return nil, ErrInvalidSoundOutput
	}
	return &m.sessions[session], nil
}

// SetVolume 设置主音量，成功后通知订阅者
func (m *Manager) SetVolume(soundOutput string, volume, session int) (Status, error) {
	st, err := m.session(soundOutput, session)
	if err != nil {
		return Status{}, err
	}
	if !audio.ValidVolume(volume) {
		return Status{}, ErrVolumeRange
	}
	if err := m.mixer.SetMasterVolume(m.kind, soundOutput, volume); err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrMixerFailure, err)
	}
	st.Volume = volume
	st.SoundOutput = soundOutput
	m.publish(st)
	return *st, nil
}

func (m *Manager) Volume(session int) (Status, error) {
	if !validSession(session) {
		return Status{}, ErrInvalidSession
	}
	return m.sessions[session], nil
}

func (m *Manager) Mute(soundOutput string, mute bool, session int) (Status, error) {
	st, err := m.session(soundOutput, session)
	if err != nil {
		return Status{}, err
	}
	if err := m.mixer.MuteMaster(m.kind, soundOutput, mute); err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrMixerFailure, err)
	}
	st.Muted = mute
	st.SoundOutput = soundOutput
	m.publish(st)
	return *st, nil
}

func (m *Manager) VolumeUp(soundOutput string, session int) (Status, error) {
	return m.step(soundOutput, session, volumeStep)
}

func (m *Manager) VolumeDown(soundOutput string, session int) (Status, error) {
	return m.step(soundOutput, session, -volumeStep)
}

// step 到达边界时不再下发，直接返回当前状态
func (m *Manager) step(soundOutput string, session, delta int) (Status, error) {
	st, err := m.session(soundOutput, session)
	if err != nil {
		return Status{}, err
	}
	target := clampVolume(st.Volume + delta)
	if target == st.Volume {
		return *st, nil
	}
	return m.SetVolume(soundOutput, target, session)
}

func (m *Manager) publish(st *Status) {
	m.bus.Publish(events.NewMasterVolumeEvent(st.SoundOutput, st.Volume, st.Muted, st.SessionID))
}

func clampVolume(v int) int {
	if v < audio.MinVolume {
		return audio.MinVolume
	}
	if v > audio.MaxVolume {
		return audio.MaxVolume
	}
	return v
}
