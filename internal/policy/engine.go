package policy

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/webosce/audiod-pro/internal/audio"
	"github.com/webosce/audiod-pro/internal/events"
	"github.com/webosce/audiod-pro/internal/logging"
	"github.com/webosce/audiod-pro/internal/track"
)

var (
	ErrUnknownStream  = errors.New("unknown stream type")
	ErrVolumeRange    = errors.New("volume not in range")
	ErrInvalidSession = errors.New("invalid session id")
	ErrMixerFailure   = errors.New("mixer call failed")
)

// 显示会话对应的默认输出流
const (
	SessionPrimary   = 0
	SessionSecondary = 1

	streamDefaultOne = "default1"
	streamDefaultTwo = "default2"
	streamMedia      = "pmedia"
	streamDefaultApp = "pdefaultapp"

	// PhysicalInput 物理麦克风，静音直接作用于设备
	PhysicalInput = "pcm_input"
)

// Mixer 引擎需要的混音器能力，*mixer.Mixer 实现了该接口
type Mixer interface {
	ActiveSinks() []audio.Sink
	ActiveSources() []audio.Source
	SetSinkGain(kind audio.MixerType, sink audio.Sink, volume int, ramp bool) error
	SetSourceGain(kind audio.MixerType, source audio.Source, volume int, ramp bool) error
	MuteSink(kind audio.MixerType, sink audio.Sink, mute bool) error
	MuteSource(kind audio.MixerType, source audio.Source, mute bool) error
	MutePhysicalSource(kind audio.MixerType, name string, mute bool) error
	ProgramTrackVolume(sink audio.Sink, sinkInputIndex, volume int) error
	CloseClient(sinkInputIndex int) error
}

// streamState 一个 streamType 的运行时策略状态
type streamState struct {
	Entry
	policyInProgress bool
	active           bool
	mixer            audio.MixerType
	sinkName         string
	sourceName       string
}

func (s *streamState) snapshot() events.StreamSnapshot {
	return events.StreamSnapshot{
		StreamType:   s.StreamType,
		MuteStatus:   s.MuteStatus,
		InputVolume:  s.CurrentVolume,
		Sink:         s.sinkName,
		Source:       s.sourceName,
		PolicyStatus: s.policyInProgress,
		ActiveStatus: s.active,
	}
}

// Engine 音量策略引擎
// 所有方法都必须在事件循环上调用
type Engine struct {
	table  *Table
	mixer  Mixer
	bus    *events.Bus
	tracks *track.VolumeTable

	sinks   map[audio.Sink]*streamState
	sources map[audio.Source]*streamState

	subs []events.SubscriptionID
	log  *logging.Logger
}

func NewEngine(table *Table, mixer Mixer, bus *events.Bus, tracks *track.VolumeTable) *Engine {
	e := &Engine{
		table:   table,
		mixer:   mixer,
		bus:     bus,
		tracks:  tracks,
		sinks:   make(map[audio.Sink]*streamState),
		sources: make(map[audio.Source]*streamState),
		log:     logging.Named("policy"),
	}
	for _, entry := range table.Sinks() {
		e.sinks[audio.Sink(entry.StreamType)] = &streamState{Entry: entry}
	}
	for _, entry := range table.Sources() {
		e.sources[audio.Source(entry.StreamType)] = &streamState{Entry: entry}
	}
	return e
}

// Start 订阅引擎关心的事件
func (e *Engine) Start() {
	for _, kind := range []events.Kind{
		events.KindSinkStatus,
		events.KindSourceStatus,
		events.KindMixerStatus,
		events.KindRegisterTrack,
		events.KindUnregisterTrack,
		events.KindCurrentInputVolume,
	} {
		e.subs = append(e.subs, e.bus.Subscribe(kind, e.handleEvent))
	}
}

func (e *Engine) Stop() {
	for _, id := range e.subs {
		e.bus.Unsubscribe(id)
	}
	e.subs = nil
}

func (e *Engine) handleEvent(ev events.Event) {
	switch evt := ev.(type) {
	case *events.SinkStatusEvent:
		e.onSinkStatus(evt)
	case *events.SourceStatusEvent:
		e.onSourceStatus(evt)
	case *events.MixerStatusEvent:
		if !evt.Ready {
			e.resetStreams(evt.Mixer)
			return
		}
		if evt.Mixer == audio.MixerPulse {
			if err := e.InitStreamVolume(); err != nil {
				e.log.Warnf("init stream volume: %v", err)
			}
		}
	case *events.RegisterTrackEvent:
		sink, ok := e.table.SinkFor(evt.StreamType)
		if !ok {
			e.log.Warnf("register track %s: unknown stream %s", evt.TrackID, evt.StreamType)
			return
		}
		e.tracks.AddTrack(evt.TrackID, sink)
	case *events.UnregisterTrackEvent:
		if !e.tracks.RemoveTrack(evt.TrackID) {
			e.log.Debugf("unregister track %s: no volume entries", evt.TrackID)
		}
	case *events.CurrentInputVolumeEvent:
		st, ok := e.sinks[evt.Sink]
		if !ok {
			return
		}
		st.CurrentVolume = clamp(evt.Volume, st.MinVolume, st.MaxVolume)
		e.bus.Publish(events.NewVolumeReportEvent(st.StreamType, false, st.CurrentVolume))
	default:
		e.log.Debugf("ignoring event %s", ev.Kind())
	}
}

// resetStreams 后端断开时放弃它上面的流，与门面清空活动集合保持一致
// 压低标记一并清除，重连后按实际打开顺序重新计算
func (e *Engine) resetStreams(kind audio.MixerType) {
	var sinks, sources bool
	for _, entry := range e.table.Sinks() {
		sink := audio.Sink(entry.StreamType)
		st := e.sinks[sink]
		if st.mixer != kind || (!st.active && !st.policyInProgress) {
			continue
		}
		st.active = false
		st.policyInProgress = false
		e.tracks.UnbindSink(sink)
		e.publishSinkStatus(st)
		sinks = true
	}
	for _, entry := range e.table.Sources() {
		st := e.sources[audio.Source(entry.StreamType)]
		if st.mixer != kind || (!st.active && !st.policyInProgress) {
			continue
		}
		st.active = false
		st.policyInProgress = false
		e.bus.Publish(events.NewStreamStatusEvent(true, []events.StreamSnapshot{st.snapshot()}))
		sources = true
	}
	if sinks {
		e.publishActiveSinks()
	}
	if sources {
		e.publishActiveSources()
	}
	e.log.Infof("%s mixer gone, streams reset", kind)
}

func (e *Engine) onSinkStatus(evt *events.SinkStatusEvent) {
	st, ok := e.sinks[evt.VirtualSink]
	if !ok {
		e.log.Warnf("sink status for unknown sink %s", evt.VirtualSink)
		return
	}
	st.sourceName = evt.Source
	st.sinkName = evt.Sink
	st.mixer = evt.Mixer
	st.active = evt.Status == audio.StreamOpened
	e.log.Infof("sink %s %s on %s index=%d track=%q", evt.VirtualSink, evt.Status, evt.Mixer, evt.SinkIndex, evt.TrackID)

	if st.active {
		e.bindSinkInput(evt.TrackID, evt.VirtualSink, evt.SinkIndex)
		if err := e.dispatchSinkMute(evt.VirtualSink, st.MuteStatus, st.mixer); err != nil {
			e.log.Warnf("restore mute on %s: %v", evt.VirtualSink, err)
		}
		e.publishActiveSinks()
		e.applySinkPolicy(st)
		return
	}

	e.publishSinkStatus(st)
	e.removeSinkPolicy(st)
	e.tracks.Unbind(evt.TrackID, evt.VirtualSink, evt.SinkIndex)
}

// bindSinkInput 绑定 sink input 并按 track 比例下发初始音量
// sink 与 track 注册的 stream 不一致时直接结束该播放
func (e *Engine) bindSinkInput(trackID string, sink audio.Sink, index int) {
	if index == audio.InvalidIndex {
		return
	}
	st := e.sinks[sink]
	bound, err := e.tracks.Bind(trackID, sink, index)
	if errors.Is(err, track.ErrSinkMismatch) {
		e.log.Warnf("track %s opened %s which it was not registered for, closing sink input %d", trackID, sink, index)
		if cerr := e.mixer.CloseClient(index); cerr != nil {
			e.log.Errorf("close sink input %d: %v", index, cerr)
		}
		return
	}
	if st.mixer != audio.MixerPulse {
		return
	}
	for _, info := range bound {
		vol := audio.ScaleVolume(effectiveBase(st), info.Volume)
		if err := e.mixer.ProgramTrackVolume(sink, info.SinkInputIndex, vol); err != nil {
			e.log.Warnf("initial volume for %s#%d: %v", sink, info.SinkInputIndex, err)
		}
	}
}

func (e *Engine) onSourceStatus(evt *events.SourceStatusEvent) {
	st, ok := e.sources[evt.VirtualSource]
	if !ok {
		e.log.Warnf("source status for unknown source %s", evt.VirtualSource)
		return
	}
	st.sourceName = evt.Source
	st.sinkName = evt.Sink
	st.mixer = evt.Mixer
	st.active = evt.Status == audio.StreamOpened
	e.log.Infof("source %s %s on %s", evt.VirtualSource, evt.Status, evt.Mixer)

	source := evt.VirtualSource
	if st.active {
		if err := e.mixer.MuteSource(st.mixer, source, st.MuteStatus); err != nil {
			e.log.Warnf("restore mute on %s: %v", source, err)
		}
		if err := e.setSourceVolume(source, st.CurrentVolume, st.mixer, st.Ramp); err == nil {
			e.bus.Publish(events.NewVolumeReportEvent(st.StreamType, true, st.CurrentVolume))
		}
		e.publishActiveSources()
		e.applySourcePolicy(st)
		return
	}

	if err := e.setSourceVolume(source, audio.InitVolume, st.mixer, st.Ramp); err == nil {
		e.bus.Publish(events.NewVolumeReportEvent(st.StreamType, true, audio.InitVolume))
	}
	e.publishActiveSources()
	e.removeSourcePolicy(st)
}

// applySinkPolicy 新激活的流与同类别活动流按优先级互相压低
func (e *Engine) applySinkPolicy(incoming *streamState) {
	for _, sink := range e.mixer.ActiveSinks() {
		peer, ok := e.sinks[sink]
		if !ok || peer == incoming || peer.Category != incoming.Category {
			continue
		}
		switch {
		case incoming.Priority < peer.Priority:
			if peer.policyInProgress || peer.CurrentVolume <= peer.PolicyVolume {
				e.log.Debugf("%s already ducked or below policy volume", peer.StreamType)
				continue
			}
			if err := e.setSinkVolume(sink, peer.PolicyVolume, peer.mixer, peer.Ramp); err != nil {
				e.log.Warnf("duck %s for %s: %v", peer.StreamType, incoming.StreamType, err)
				continue
			}
			e.updateSinkPolicyStatus(peer, true)
		case incoming.Priority > peer.Priority:
			if incoming.policyInProgress {
				continue
			}
			if err := e.setSinkVolume(audio.Sink(incoming.StreamType), incoming.PolicyVolume, incoming.mixer, incoming.Ramp); err != nil {
				e.log.Warnf("duck %s under %s: %v", incoming.StreamType, peer.StreamType, err)
				continue
			}
			e.updateSinkPolicyStatus(incoming, true)
		}
	}
}

// removeSinkPolicy 离开的流释放被它压低的同类别流
func (e *Engine) removeSinkPolicy(leaving *streamState) {
	active := e.mixer.ActiveSinks()
	for _, sink := range active {
		peer, ok := e.sinks[sink]
		if !ok || peer == leaving || peer.Category != leaving.Category {
			continue
		}
		if leaving.Priority >= peer.Priority {
			continue
		}
		if !peer.policyInProgress || e.higherSinkActive(peer, active) {
			e.log.Debugf("%s stays ducked", peer.StreamType)
			continue
		}
		if err := e.setSinkVolume(sink, peer.CurrentVolume, peer.mixer, peer.Ramp); err != nil {
			e.log.Warnf("restore %s: %v", peer.StreamType, err)
			continue
		}
		e.updateSinkPolicyStatus(peer, false)
	}
	e.updateSinkPolicyStatus(leaving, false)
}

func (e *Engine) higherSinkActive(peer *streamState, active []audio.Sink) bool {
	for _, sink := range active {
		other, ok := e.sinks[sink]
		if !ok || other.Category != peer.Category {
			continue
		}
		if other.Priority < peer.Priority {
			return true
		}
	}
	return false
}

func (e *Engine) applySourcePolicy(incoming *streamState) {
	for _, source := range e.mixer.ActiveSources() {
		peer, ok := e.sources[source]
		if !ok || peer == incoming || peer.Category != incoming.Category {
			continue
		}
		switch {
		case incoming.Priority < peer.Priority:
			if peer.policyInProgress || peer.CurrentVolume <= peer.PolicyVolume {
				continue
			}
			if err := e.setSourceVolume(source, peer.PolicyVolume, peer.mixer, peer.Ramp); err != nil {
				e.log.Warnf("duck source %s for %s: %v", peer.StreamType, incoming.StreamType, err)
				continue
			}
			e.updateSourcePolicyStatus(peer, true)
		case incoming.Priority > peer.Priority:
			if incoming.policyInProgress {
				continue
			}
			if err := e.setSourceVolume(audio.Source(incoming.StreamType), incoming.PolicyVolume, incoming.mixer, incoming.Ramp); err != nil {
				e.log.Warnf("duck source %s under %s: %v", incoming.StreamType, peer.StreamType, err)
				continue
			}
			e.updateSourcePolicyStatus(incoming, true)
		}
	}
}

func (e *Engine) removeSourcePolicy(leaving *streamState) {
	active := e.mixer.ActiveSources()
	for _, source := range active {
		peer, ok := e.sources[source]
		if !ok || peer == leaving || peer.Category != leaving.Category {
			continue
		}
		if leaving.Priority >= peer.Priority {
			continue
		}
		if !peer.policyInProgress || e.higherSourceActive(peer, active) {
			continue
		}
		if err := e.setSourceVolume(source, peer.CurrentVolume, peer.mixer, peer.Ramp); err != nil {
			e.log.Warnf("restore source %s: %v", peer.StreamType, err)
			continue
		}
		e.updateSourcePolicyStatus(peer, false)
	}
	e.updateSourcePolicyStatus(leaving, false)
}

func (e *Engine) higherSourceActive(peer *streamState, active []audio.Source) bool {
	for _, source := range active {
		other, ok := e.sources[source]
		if !ok || other.Category != peer.Category {
			continue
		}
		if other.Priority < peer.Priority {
			return true
		}
	}
	return false
}

// effectiveBase 流当前实际使用的音量，被压低时为 PolicyVolume
func effectiveBase(st *streamState) int {
	if st.policyInProgress {
		return st.PolicyVolume
	}
	return st.CurrentVolume
}

func (e *Engine) updateSinkPolicyStatus(st *streamState, inProgress bool) {
	st.policyInProgress = inProgress
	e.publishSinkStatus(st)
}

func (e *Engine) updateSourcePolicyStatus(st *streamState, inProgress bool) {
	st.policyInProgress = inProgress
	e.bus.Publish(events.NewStreamStatusEvent(true, []events.StreamSnapshot{st.snapshot()}))
}

// setSinkVolume 下发流音量
// pulse 上按每个已绑定 sink input 的 track 比例缩放；没有绑定时什么都不做
func (e *Engine) setSinkVolume(sink audio.Sink, volume int, kind audio.MixerType, ramp bool) error {
	switch kind {
	case audio.MixerPulse:
		var errs error
		for _, b := range e.tracks.BoundTo(sink) {
			vol := audio.ScaleVolume(volume, b.Volume)
			if err := e.mixer.ProgramTrackVolume(sink, b.SinkInputIndex, vol); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("program %s#%d: %w", sink, b.SinkInputIndex, err))
			}
		}
		if errs != nil {
			return fmt.Errorf("%w: %w", ErrMixerFailure, errs)
		}
		return nil
	case audio.MixerUmi:
		if err := e.mixer.SetSinkGain(kind, sink, volume, ramp); err != nil {
			return fmt.Errorf("%w: %w", ErrMixerFailure, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: invalid mixer type %s for %s", ErrMixerFailure, kind, sink)
	}
}

func (e *Engine) setSourceVolume(source audio.Source, volume int, kind audio.MixerType, ramp bool) error {
	if kind == audio.MixerNone {
		return fmt.Errorf("%w: invalid mixer type for %s", ErrMixerFailure, source)
	}
	if err := e.mixer.SetSourceGain(kind, source, volume, ramp); err != nil {
		return fmt.Errorf("%w: %w", ErrMixerFailure, err)
	}
	return nil
}

func (e *Engine) dispatchSinkMute(sink audio.Sink, mute bool, kind audio.MixerType) error {
	if kind == audio.MixerNone {
		return fmt.Errorf("%w: invalid mixer type for %s", ErrMixerFailure, sink)
	}
	if err := e.mixer.MuteSink(kind, sink, mute); err != nil {
		return fmt.Errorf("%w: %w", ErrMixerFailure, err)
	}
	return nil
}

// InitStreamVolume pulse 就绪后把所有流设为初始音量并取消静音
func (e *Engine) InitStreamVolume() error {
	var errs error
	for _, entry := range e.table.Sinks() {
		sink := audio.Sink(entry.StreamType)
		if err := e.setSinkVolume(sink, audio.InitVolume, audio.MixerPulse, false); err != nil {
			errs = multierr.Append(errs, err)
		}
		if err := e.mixer.MuteSink(audio.MixerPulse, sink, false); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("unmute %s: %w", sink, err))
		}
	}
	for _, entry := range e.table.Sources() {
		source := audio.Source(entry.StreamType)
		if err := e.setSourceVolume(source, audio.InitVolume, audio.MixerPulse, false); err != nil {
			errs = multierr.Append(errs, err)
		}
		if err := e.mixer.MuteSource(audio.MixerPulse, source, false); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("unmute %s: %w", source, err))
		}
	}
	return errs
}

func validVolume(entry Entry, volume int) bool {
	return audio.ValidVolume(volume) && volume >= entry.MinVolume && volume <= entry.MaxVolume
}

// SetInputVolume 设置输出流音量
// 活动流先下发混音器，成功后更新记录；非活动流只更新记录
func (e *Engine) SetInputVolume(streamType string, volume int, ramp bool) error {
	st, ok := e.sinks[audio.Sink(streamType)]
	if !ok {
		return ErrUnknownStream
	}
	if !validVolume(st.Entry, volume) {
		return ErrVolumeRange
	}
	return e.applyInputVolume(st, volume, ramp)
}

func (e *Engine) applyInputVolume(st *streamState, volume int, ramp bool) error {
	sink := audio.Sink(st.StreamType)
	if st.active {
		if err := e.setSinkVolume(sink, volume, st.mixer, ramp); err != nil {
			return err
		}
	}
	st.CurrentVolume = volume
	e.bus.Publish(events.NewInputVolumeEvent(sink, volume, ramp))
	e.bus.Publish(events.NewVolumeReportEvent(st.StreamType, false, volume))
	return nil
}

func (e *Engine) InputVolume(streamType string) (int, error) {
	st, ok := e.sinks[audio.Sink(streamType)]
	if !ok {
		return 0, ErrUnknownStream
	}
	return st.CurrentVolume, nil
}

func (e *Engine) SetSourceInputVolume(sourceType string, volume int, ramp bool) error {
	st, ok := e.sources[audio.Source(sourceType)]
	if !ok {
		return ErrUnknownStream
	}
	if !validVolume(st.Entry, volume) {
		return ErrVolumeRange
	}
	if st.active {
		if err := e.setSourceVolume(audio.Source(sourceType), volume, st.mixer, ramp); err != nil {
			return err
		}
	}
	st.CurrentVolume = volume
	e.bus.Publish(events.NewVolumeReportEvent(sourceType, true, volume))
	return nil
}

func (e *Engine) SourceInputVolume(sourceType string) (int, error) {
	st, ok := e.sources[audio.Source(sourceType)]
	if !ok {
		return 0, ErrUnknownStream
	}
	return st.CurrentVolume, nil
}

// MuteSink 活动流下发混音器，非活动流只记录，下次打开时生效
func (e *Engine) MuteSink(streamType string, mute bool) error {
	st, ok := e.sinks[audio.Sink(streamType)]
	if !ok {
		return ErrUnknownStream
	}
	if st.active {
		if err := e.dispatchSinkMute(audio.Sink(streamType), mute, st.mixer); err != nil {
			return err
		}
	}
	st.MuteStatus = mute
	e.publishSinkStatus(st)
	return nil
}

func (e *Engine) MuteSource(sourceType string, mute bool) error {
	if sourceType == PhysicalInput {
		if err := e.mixer.MutePhysicalSource(audio.MixerPulse, sourceType, mute); err != nil {
			return fmt.Errorf("%w: %w", ErrMixerFailure, err)
		}
		return nil
	}
	st, ok := e.sources[audio.Source(sourceType)]
	if !ok {
		return ErrUnknownStream
	}
	if st.active {
		if err := e.mixer.MuteSource(st.mixer, audio.Source(sourceType), mute); err != nil {
			return fmt.Errorf("%w: %w", ErrMixerFailure, err)
		}
	}
	st.MuteStatus = mute
	e.bus.Publish(events.NewStreamStatusEvent(true, []events.StreamSnapshot{st.snapshot()}))
	return nil
}

// SetTrackVolume 保存 track 比例，并按各自 stream 的实际音量重新下发所有已绑定的 sink input
func (e *Engine) SetTrackVolume(trackID string, volume int) (string, error) {
	if !audio.ValidVolume(volume) {
		return "", ErrVolumeRange
	}
	streamType, err := e.tracks.StoreTrackVolume(trackID, volume)
	if err != nil {
		return "", err
	}
	var errs error
	for _, info := range e.tracks.Entries(trackID) {
		if info.SinkInputIndex == audio.InvalidIndex {
			continue
		}
		st, ok := e.sinks[info.Sink]
		if !ok || st.mixer != audio.MixerPulse {
			continue
		}
		vol := audio.ScaleVolume(effectiveBase(st), volume)
		if perr := e.mixer.ProgramTrackVolume(info.Sink, info.SinkInputIndex, vol); perr != nil {
			errs = multierr.Append(errs, fmt.Errorf("program %s#%d: %w", info.Sink, info.SinkInputIndex, perr))
		}
	}
	if errs != nil {
		return streamType, fmt.Errorf("%w: %w", ErrMixerFailure, errs)
	}
	return streamType, nil
}

// SetMediaVolume 按显示会话设置默认输出流音量
// 主会话同时作用于 pmedia 和 pdefaultapp
func (e *Engine) SetMediaVolume(volume, sessionID int) error {
	var streamType string
	switch sessionID {
	case SessionPrimary:
		streamType = streamDefaultOne
	case SessionSecondary:
		streamType = streamDefaultTwo
	default:
		return ErrInvalidSession
	}
	st, ok := e.sinks[audio.Sink(streamType)]
	if !ok {
		return ErrUnknownStream
	}
	if !validVolume(st.Entry, volume) {
		return ErrVolumeRange
	}
	if err := e.applyInputVolume(st, volume, false); err != nil {
		return err
	}
	if sessionID != SessionPrimary {
		return nil
	}
	for _, name := range []string{streamMedia, streamDefaultApp} {
		follower, ok := e.sinks[audio.Sink(name)]
		if !ok || !validVolume(follower.Entry, volume) {
			continue
		}
		if err := e.applyInputVolume(follower, volume, false); err != nil {
			e.log.Warnf("media volume for %s: %v", name, err)
		}
	}
	return nil
}

// StreamStatus 指定 streamType 时返回该流，否则返回所有活动流
func (e *Engine) StreamStatus(streamType string) ([]events.StreamSnapshot, error) {
	if streamType != "" {
		st, ok := e.sinks[audio.Sink(streamType)]
		if !ok {
			return nil, ErrUnknownStream
		}
		return []events.StreamSnapshot{st.snapshot()}, nil
	}
	return e.activeSinkSnapshots(), nil
}

func (e *Engine) SourceStatus(sourceType string) ([]events.StreamSnapshot, error) {
	if sourceType != "" {
		st, ok := e.sources[audio.Source(sourceType)]
		if !ok {
			return nil, ErrUnknownStream
		}
		return []events.StreamSnapshot{st.snapshot()}, nil
	}
	return e.activeSourceSnapshots(), nil
}

func (e *Engine) IsStreamActive(streamType string) bool {
	st, ok := e.sinks[audio.Sink(streamType)]
	return ok && st.active
}

func (e *Engine) IsSourceActive(sourceType string) bool {
	st, ok := e.sources[audio.Source(sourceType)]
	return ok && st.active
}

// PolicyInProgress 未知流返回 false，输入输出一致
func (e *Engine) PolicyInProgress(streamType string) bool {
	st, ok := e.sinks[audio.Sink(streamType)]
	return ok && st.policyInProgress
}

func (e *Engine) SourcePolicyInProgress(sourceType string) bool {
	st, ok := e.sources[audio.Source(sourceType)]
	return ok && st.policyInProgress
}

func (e *Engine) publishSinkStatus(st *streamState) {
	e.bus.Publish(events.NewStreamStatusEvent(false, []events.StreamSnapshot{st.snapshot()}))
}

func (e *Engine) publishActiveSinks() {
	e.bus.Publish(events.NewStreamStatusEvent(false, e.activeSinkSnapshots()))
}

func (e *Engine) publishActiveSources() {
	e.bus.Publish(events.NewStreamStatusEvent(true, e.activeSourceSnapshots()))
}

func (e *Engine) activeSinkSnapshots() []events.StreamSnapshot {
	out := []events.StreamSnapshot{}
	for _, entry := range e.table.Sinks() {
		if st := e.sinks[audio.Sink(entry.StreamType)]; st.active {
			out = append(out, st.snapshot())
		}
	}
	return out
}

func (e *Engine) activeSourceSnapshots() []events.StreamSnapshot {
	out := []events.StreamSnapshot{}
	for _, entry := range e.table.Sources() {
		if st := e.sources[audio.Source(entry.StreamType)]; st.active {
			out = append(out, st.snapshot())
		}
	}
	return out
}
