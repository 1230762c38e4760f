package mixer

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"

	"github.com/webosce/audiod-pro/internal/audio"
	"github.com/webosce/audiod-pro/internal/events"
	"github.com/webosce/audiod-pro/internal/logging"
	"github.com/webosce/audiod-pro/internal/loop"
)

// headphoneDevice 由耳机检测单独处理，不转发
const headphoneDevice = "pcm_headphone"

// Mixer 混音器门面：按类型路由到已注册的后端，维护活动流集合，
// 并把后端回调转换成事件发布
// 除回调外的所有方法只能在事件循环上调用
type Mixer struct {
	backends map[audio.MixerType]Backend
	ready    map[audio.MixerType]bool

	activeSinks   map[audio.Sink]audio.MixerType
	activeByKind  map[audio.MixerType]map[audio.Sink]struct{}
	activeSources map[audio.Source]audio.MixerType

	bus    *events.Bus
	poster loop.Poster
	log    *logging.Logger
}

// New 创建门面，poster 为 nil 时回调直接在调用方 goroutine 上处理
func New(bus *events.Bus, poster loop.Poster) *Mixer {
	return &Mixer{
		backends:      make(map[audio.MixerType]Backend),
		ready:         make(map[audio.MixerType]bool),
		activeSinks:   make(map[audio.Sink]audio.MixerType),
		activeByKind:  make(map[audio.MixerType]map[audio.Sink]struct{}),
		activeSources: make(map[audio.Source]audio.MixerType),
		bus:           bus,
		poster:        poster,
		log:           logging.Named("mixer"),
	}
}

// Register 注册后端，同一类型只能注册一次
func (m *Mixer) Register(b Backend) error {
	kind := b.Kind()
	if kind == audio.MixerNone {
		return fmt.Errorf("cannot register backend of kind %s", kind)
	}
	if _, exists := m.backends[kind]; exists {
		return fmt.Errorf("%s backend already registered", kind)
	}
	m.backends[kind] = b
	m.activeByKind[kind] = make(map[audio.Sink]struct{})
	b.Bind(&callbacks{m: m})
	m.log.Infof("registered %s backend", kind)
	return nil
}

// Backend 返回已注册的后端
func (m *Mixer) Backend(kind audio.MixerType) (Backend, error) {
	b, ok := m.backends[kind]
	if !ok {
		return nil, &UnavailableError{Kind: kind}
	}
	return b, nil
}

// Ready 门面记录的后端就绪状态
func (m *Mixer) Ready(kind audio.MixerType) bool {
	return m.ready[kind]
}

func (m *Mixer) OpenCloseSink(kind audio.MixerType, req SinkRequest) error {
	b, err := m.Backend(kind)
	if err != nil {
		m.log.Warnf("openCloseSink %s: %v", req.Sink, err)
		return err
	}
	if err := b.OpenCloseSink(req); err != nil {
		m.log.Errorf("openCloseSink %s open=%t on %s: %v", req.Sink, req.Open, kind, err)
		return err
	}
	return nil
}

func (m *Mixer) OpenCloseSource(kind audio.MixerType, source audio.Source, open bool) error {
	sb, err := m.sourceBackend(kind)
	if err != nil {
		m.log.Warnf("openCloseSource %s: %v", source, err)
		return err
	}
	if err := sb.OpenCloseSource(source, open); err != nil {
		m.log.Errorf("openCloseSource %s open=%t on %s: %v", source, open, kind, err)
		return err
	}
	return nil
}

func (m *Mixer) SetSinkGain(kind audio.MixerType, sink audio.Sink, volume int, ramp bool) error {
	b, err := m.Backend(kind)
	if err != nil {
		m.log.Warnf("setSinkGain %s: %v", sink, err)
		return err
	}
	if err := b.SetSinkGain(sink, volume, ramp); err != nil {
		m.log.Errorf("setSinkGain %s=%d on %s: %v", sink, volume, kind, err)
		return err
	}
	return nil
}

func (m *Mixer) SetSourceGain(kind audio.MixerType, source audio.Source, volume int, ramp bool) error {
	sb, err := m.sourceBackend(kind)
	if err != nil {
		m.log.Warnf("setSourceGain %s: %v", source, err)
		return err
	}
	if err := sb.SetSourceGain(source, volume, ramp); err != nil {
		m.log.Errorf("setSourceGain %s=%d on %s: %v", source, volume, kind, err)
		return err
	}
	return nil
}

func (m *Mixer) MuteSink(kind audio.MixerType, sink audio.Sink, mute bool) error {
	b, err := m.Backend(kind)
	if err != nil {
		m.log.Warnf("muteSink %s: %v", sink, err)
		return err
	}
	if err := b.MuteSink(sink, mute); err != nil {
		m.log.Errorf("muteSink %s=%t on %s: %v", sink, mute, kind, err)
		return err
	}
	return nil
}

func (m *Mixer) MuteSource(kind audio.MixerType, source audio.Source, mute bool) error {
	sb, err := m.sourceBackend(kind)
	if err != nil {
		m.log.Warnf("muteSource %s: %v", source, err)
		return err
	}
	if err := sb.MuteSource(source, mute); err != nil {
		m.log.Errorf("muteSource %s=%t on %s: %v", source, mute, kind, err)
		return err
	}
	return nil
}

func (m *Mixer) MutePhysicalSource(kind audio.MixerType, name string, mute bool) error {
	sb, err := m.sourceBackend(kind)
	if err != nil {
		m.log.Warnf("mutePhysicalSource %s: %v", name, err)
		return err
	}
	if err := sb.MutePhysicalSource(name, mute); err != nil {
		m.log.Errorf("mutePhysicalSource %s=%t on %s: %v", name, mute, kind, err)
		return err
	}
	return nil
}

// ProgramTrackVolume 设置单个 sink input 的音量，只有 pulse 支持
func (m *Mixer) ProgramTrackVolume(sink audio.Sink, sinkInputIndex, volume int) error {
	tb, err := m.trackBackend(audio.MixerPulse)
	if err != nil {
		m.log.Warnf("programTrackVolume %s#%d: %v", sink, sinkInputIndex, err)
		return err
	}
	if err := tb.SetTrackVolume(sink, sinkInputIndex, volume); err != nil {
		m.log.Errorf("programTrackVolume %s#%d=%d: %v", sink, sinkInputIndex, volume, err)
		return err
	}
	return nil
}

// CloseClient 强制结束一个 sink input
func (m *Mixer) CloseClient(sinkInputIndex int) error {
	tb, err := m.trackBackend(audio.MixerPulse)
	if err != nil {
		m.log.Warnf("closeClient #%d: %v", sinkInputIndex, err)
		return err
	}
	if err := tb.CloseClient(sinkInputIndex); err != nil {
		m.log.Errorf("closeClient #%d: %v", sinkInputIndex, err)
		return err
	}
	return nil
}

func (m *Mixer) SetMasterVolume(kind audio.MixerType, soundOutput string, volume int) error {
	mb, err := m.masterBackend(kind)
	if err != nil {
		m.log.Warnf("setMasterVolume %s: %v", soundOutput, err)
		return err
	}
	if err := mb.SetMasterVolume(soundOutput, volume); err != nil {
		m.log.Errorf("setMasterVolume %s=%d on %s: %v", soundOutput, volume, kind, err)
		return err
	}
	return nil
}

func (m *Mixer) MuteMaster(kind audio.MixerType, soundOutput string, mute bool) error {
	mb, err := m.masterBackend(kind)
	if err != nil {
		m.log.Warnf("muteMaster %s: %v", soundOutput, err)
		return err
	}
	if err := mb.MuteMaster(soundOutput, mute); err != nil {
		m.log.Errorf("muteMaster %s=%t on %s: %v", soundOutput, mute, kind, err)
		return err
	}
	return nil
}

// ActiveSinks 所有活动 sink，按名称排序
func (m *Mixer) ActiveSinks() []audio.Sink {
	sinks := make([]audio.Sink, 0, len(m.activeSinks))
	for s := range m.activeSinks {
		sinks = append(sinks, s)
	}
	sort.Slice(sinks, func(i, j int) bool { return sinks[i] < sinks[j] })
	return sinks
}

// ActiveSinksOf 某个后端上的活动 sink
func (m *Mixer) ActiveSinksOf(kind audio.MixerType) []audio.Sink {
	set := m.activeByKind[kind]
	sinks := make([]audio.Sink, 0, len(set))
	for s := range set {
		sinks = append(sinks, s)
	}
	sort.Slice(sinks, func(i, j int) bool { return sinks[i] < sinks[j] })
	return sinks
}

func (m *Mixer) ActiveSources() []audio.Source {
	sources := make([]audio.Source, 0, len(m.activeSources))
	for s := range m.activeSources {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	return sources
}

func (m *Mixer) IsSinkActive(sink audio.Sink) bool {
	_, ok := m.activeSinks[sink]
	return ok
}

func (m *Mixer) IsSourceActive(source audio.Source) bool {
	_, ok := m.activeSources[source]
	return ok
}

// Close 关闭所有后端
func (m *Mixer) Close() error {
	var err error
	for kind, b := range m.backends {
		if cerr := b.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s backend: %w", kind, cerr))
		}
	}
	return err
}

func (m *Mixer) sourceBackend(kind audio.MixerType) (SourceBackend, error) {
	b, err := m.Backend(kind)
	if err != nil {
		return nil, err
	}
	sb, ok := b.(SourceBackend)
	if !ok {
		return nil, fmt.Errorf("%s source control: %w", kind, ErrUnsupported)
	}
	return sb, nil
}

func (m *Mixer) trackBackend(kind audio.MixerType) (TrackBackend, error) {
	b, err := m.Backend(kind)
	if err != nil {
		return nil, err
	}
	tb, ok := b.(TrackBackend)
	if !ok {
		return nil, fmt.Errorf("%s track volume: %w", kind, ErrUnsupported)
	}
	return tb, nil
}

func (m *Mixer) masterBackend(kind audio.MixerType) (MasterBackend, error) {
	b, err := m.Backend(kind)
	if err != nil {
		return nil, err
	}
	mb, ok := b.(MasterBackend)
	if !ok {
		return nil, fmt.Errorf("%s master volume: %w", kind, ErrUnsupported)
	}
	return mb, nil
}

func (m *Mixer) handleReady(kind audio.MixerType, ready bool) {
	m.ready[kind] = ready
	m.log.Infof("%s mixer ready=%t", kind, ready)
	if !ready {
		m.resetStreamInfo(kind)
	}
	m.bus.Publish(events.NewMixerStatusEvent(ready, kind))
}

// resetStreamInfo 后端断开后放弃它上报过的所有活动流
func (m *Mixer) resetStreamInfo(kind audio.MixerType) {
	for sink := range m.activeByKind[kind] {
		delete(m.activeSinks, sink)
	}
	m.activeByKind[kind] = make(map[audio.Sink]struct{})
	for source, owner := range m.activeSources {
		if owner == kind {
			delete(m.activeSources, source)
		}
	}
}

func (m *Mixer) handleSinkStatus(r SinkReport) {
	status := audio.StreamClosed
	if r.Opened {
		status = audio.StreamOpened
		if prev, ok := m.activeSinks[r.VirtualSink]; ok && prev != r.Kind {
			delete(m.activeByKind[prev], r.VirtualSink)
		}
		m.activeSinks[r.VirtualSink] = r.Kind
		if m.activeByKind[r.Kind] == nil {
			m.activeByKind[r.Kind] = make(map[audio.Sink]struct{})
		}
		m.activeByKind[r.Kind][r.VirtualSink] = struct{}{}
	} else {
		if prev, ok := m.activeSinks[r.VirtualSink]; ok {
			delete(m.activeByKind[prev], r.VirtualSink)
		}
		delete(m.activeSinks, r.VirtualSink)
	}
	m.log.Debugf("sink %s %s on %s index=%d track=%s", r.VirtualSink, status, r.Kind, r.SinkIndex, r.TrackID)
	m.bus.Publish(events.NewSinkStatusEvent(r.Source, r.Sink, r.VirtualSink, status, r.Kind, r.SinkIndex, r.TrackID))
}

func (m *Mixer) handleSourceStatus(r SourceReport) {
	status := audio.StreamClosed
	if r.Opened {
		status = audio.StreamOpened
		m.activeSources[r.VirtualSource] = r.Kind
	} else {
		delete(m.activeSources, r.VirtualSource)
	}
	m.log.Debugf("source %s %s on %s", r.VirtualSource, status, r.Kind)
	m.bus.Publish(events.NewSourceStatusEvent(r.Source, r.Sink, r.VirtualSource, status, r.Kind))
}

func (m *Mixer) handleDeviceConnection(r DeviceReport) {
	if r.Name == headphoneDevice {
		m.log.Debugf("ignoring %s connection event", r.Name)
		return
	}
	m.bus.Publish(events.NewDeviceConnectionEvent(r.Name, r.Detail, r.Connected, r.IsOutput, r.Kind))
}

// callbacks 把后端回调投递到事件循环
type callbacks struct {
	m *Mixer
}

func (c *callbacks) post(fn func()) {
	if c.m.poster == nil {
		fn()
		return
	}
	if !c.m.poster.Post(fn) {
		c.m.log.Warnf("event loop stopped, dropping mixer callback")
	}
}

func (c *callbacks) OnReady(kind audio.MixerType, ready bool) {
	c.post(func() { c.m.handleReady(kind, ready) })
}

func (c *callbacks) OnSinkStatus(r SinkReport) {
	c.post(func() { c.m.handleSinkStatus(r) })
}

func (c *callbacks) OnSourceStatus(r SourceReport) {
	c.post(func() { c.m.handleSourceStatus(r) })
}

func (c *callbacks) OnDeviceConnection(r DeviceReport) {
	c.post(func() { c.m.handleDeviceConnection(r) })
}

func (c *callbacks) OnMasterVolume(r MasterReport) {
	c.post(func() {
		c.m.bus.Publish(events.NewMasterVolumeEvent(r.SoundOutput, r.Volume, r.Muted, r.SessionID))
	})
}

func (c *callbacks) OnInputVolume(sink audio.Sink, volume int) {
	c.post(func() {
		c.m.bus.Publish(events.NewCurrentInputVolumeEvent(sink, volume))
	})
}

// Callbacks 返回门面的回调入口，供不经过 Register 的上报方使用（如设备监视器）
func (m *Mixer) Callbacks() Callbacks {
	return &callbacks{m: m}
}
