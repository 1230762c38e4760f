package track

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/webosce/audiod-pro/internal/audio"
	"github.com/webosce/audiod-pro/internal/events"
	"github.com/webosce/audiod-pro/internal/logging"
	"github.com/webosce/audiod-pro/internal/loop"
)

var (
	ErrUnknownStream = errors.New("unknown stream type")
	ErrTrackLimit    = errors.New("maximum track count reached")
	// ErrNotWatchable owner 不在任何可监视的通道上
	ErrNotWatchable = errors.New("owner cannot be watched")
)

// commandLineClient 命令行工具的调用不做存活监视
const commandLineClient = "luna-send"

// StreamLookup 校验 streamType，*policy.Table 实现了该接口
type StreamLookup interface {
	HasSink(streamType string) bool
}

// Watcher 监视 owner 的存活状态，owner 消失时调用 onGone（可能在任意 goroutine 上）
type Watcher interface {
	Watch(owner string, onGone func()) (cancel func(), err error)
}

// MultiWatcher 依次尝试每个 Watcher，第一个成功的生效
type MultiWatcher []Watcher

func (mw MultiWatcher) Watch(owner string, onGone func()) (func(), error) {
	var errs error
	for _, w := range mw {
		if w == nil {
			continue
		}
		cancel, err := w.Watch(owner, onGone)
		if err == nil {
			return cancel, nil
		}
		errs = multierr.Append(errs, err)
	}
	if errs == nil {
		return nil, ErrNotWatchable
	}
	return nil, fmt.Errorf("%w: %w", ErrNotWatchable, errs)
}

// Info 一个已注册 track
type Info struct {
	ID         string
	StreamType string
	Owner      string
}

type entry struct {
	Info
	cancel func()
}

type Options struct {
	Lookup    StreamLookup
	Watcher   Watcher
	Bus       *events.Bus
	Poster    loop.Poster
	MaxTracks int
}

// Manager track 注册表
// Register/Unregister 在事件循环上调用；owner 断开的通知由 Poster 投递回事件循环
type Manager struct {
	lookup    StreamLookup
	watcher   Watcher
	bus       *events.Bus
	poster    loop.Poster
	maxTracks int

	tracks map[string]*entry
	newID  func() string
	log    *logging.Logger
}

func NewManager(opts Options) *Manager {
	maxTracks := opts.MaxTracks
	if maxTracks <= 0 {
		maxTracks = audio.DefaultMaxTracks
	}
	return &Manager{
		lookup:    opts.Lookup,
		watcher:   opts.Watcher,
		bus:       opts.Bus,
		poster:    opts.Poster,
		maxTracks: maxTracks,
		tracks:    make(map[string]*entry),
		newID:     uuid.NewString,
		log:       logging.Named("track"),
	}
}

// Register 为 owner 注册一个 track，返回新的 trackId
func (m *Manager) Register(streamType, owner string) (string, error) {
	if !m.lookup.HasSink(streamType) {
		return "", ErrUnknownStream
	}
	if len(m.tracks) >= m.maxTracks {
		m.log.Warnf("register %s for %q: %d tracks already registered", streamType, owner, len(m.tracks))
		return "", ErrTrackLimit
	}

	id := m.newID()
	e := &entry{Info: Info{ID: id, StreamType: streamType, Owner: owner}}
	m.tracks[id] = e

	if m.shouldWatch(owner) && m.watcher != nil {
		cancel, err := m.watcher.Watch(owner, func() { m.ownerGone(id, owner) })
		if err != nil {
			m.log.Warnf("track %s: cannot watch owner %q: %v", id, owner, err)
		} else {
			e.cancel = cancel
		}
	}

	m.log.Infof("registered track %s stream=%s owner=%q", id, streamType, owner)
	m.bus.Publish(events.NewRegisterTrackEvent(id, streamType))
	return id, nil
}

func (m *Manager) shouldWatch(owner string) bool {
	return owner != "" && !strings.Contains(owner, commandLineClient)
}

// Unregister 显式注销，重复注销返回 ErrUnknownTrack
func (m *Manager) Unregister(trackID string) error {
	if !m.remove(trackID) {
		return ErrUnknownTrack
	}
	return nil
}

// remove 先检查再删除，保证同一个 track 只发布一次注销事件
func (m *Manager) remove(trackID string) bool {
	e, ok := m.tracks[trackID]
	if !ok {
		return false
	}
	delete(m.tracks, trackID)
	if e.cancel != nil {
		e.cancel()
	}
	m.log.Infof("unregistered track %s", trackID)
	m.bus.Publish(events.NewUnregisterTrackEvent(trackID))
	return true
}

func (m *Manager) ownerGone(trackID, owner string) {
	disconnect := func() {
		if m.remove(trackID) {
			m.log.Infof("owner %q disconnected, track %s removed", owner, trackID)
		}
	}
	if m.poster == nil {
		disconnect()
		return
	}
	if !m.poster.Post(disconnect) {
		m.log.Warnf("event loop stopped, dropping disconnect of %q", owner)
	}
}

func (m *Manager) Track(trackID string) (Info, bool) {
	e, ok := m.tracks[trackID]
	if !ok {
		return Info{}, false
	}
	return e.Info, true
}

func (m *Manager) Count() int {
	return len(m.tracks)
}

// Tracks 按 id 排序
func (m *Manager) Tracks() []Info {
	out := make([]Info, 0, len(m.tracks))
	for _, e := range m.tracks {
		out = append(out, e.Info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close 取消所有监视，不发布事件
func (m *Manager) Close() {
	for _, e := range m.tracks {
		if e.cancel != nil {
			e.cancel()
		}
	}
}
