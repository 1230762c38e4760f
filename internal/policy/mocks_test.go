package policy

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/webosce/audiod-pro/internal/audio"
	"github.com/webosce/audiod-pro/internal/events"
	"github.com/webosce/audiod-pro/internal/mixer"
)

var errFakeMixer = errors.New("fake mixer failure")

// fakeMixer 记录所有下发的命令，活动集合由测试直接控制
type fakeMixer struct {
	mu            sync.Mutex
	activeSinks   map[audio.Sink]bool
	activeSources map[audio.Source]bool
	trackVolumes  map[int]int
	sinkGains     map[audio.Sink]int
	sourceGains   map[audio.Source]int
	calls         []string
	closed        []int
	failProgram   bool
	failInputs    map[int]bool
	failMute      bool
}

func newFakeMixer() *fakeMixer {
	return &fakeMixer{
		activeSinks:   make(map[audio.Sink]bool),
		activeSources: make(map[audio.Source]bool),
		trackVolumes:  make(map[int]int),
		sinkGains:     make(map[audio.Sink]int),
		sourceGains:   make(map[audio.Source]int),
		failInputs:    make(map[int]bool),
	}
}

func (f *fakeMixer) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeMixer) ActiveSinks() []audio.Sink {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []audio.Sink{}
	for s := range f.activeSinks {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *fakeMixer) ActiveSources() []audio.Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []audio.Source{}
	for s := range f.activeSources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *fakeMixer) SetSinkGain(kind audio.MixerType, sink audio.Sink, volume int, ramp bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("sinkGain %s %s %d", kind, sink, volume)
	f.sinkGains[sink] = volume
	return nil
}

func (f *fakeMixer) SetSourceGain(kind audio.MixerType, source audio.Source, volume int, ramp bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("sourceGain %s %s %d", kind, source, volume)
	f.sourceGains[source] = volume
	return nil
}

func (f *fakeMixer) MuteSink(kind audio.MixerType, sink audio.Sink, mute bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("muteSink %s %s %t", kind, sink, mute)
	if f.failMute {
		return errFakeMixer
	}
	return nil
}

func (f *fakeMixer) MuteSource(kind audio.MixerType, source audio.Source, mute bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("muteSource %s %s %t", kind, source, mute)
	if f.failMute {
		return errFakeMixer
	}
	return nil
}

func (f *fakeMixer) MutePhysicalSource(kind audio.MixerType, name string, mute bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("mutePhysical %s %s %t", kind, name, mute)
	return nil
}

func (f *fakeMixer) ProgramTrackVolume(sink audio.Sink, sinkInputIndex, volume int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("track %s#%d %d", sink, sinkInputIndex, volume)
	if f.failProgram || f.failInputs[sinkInputIndex] {
		return errFakeMixer
	}
	f.trackVolumes[sinkInputIndex] = volume
	return nil
}

func (f *fakeMixer) CloseClient(sinkInputIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("close #%d", sinkInputIndex)
	f.closed = append(f.closed, sinkInputIndex)
	return nil
}

func (f *fakeMixer) setSinkActive(sink audio.Sink, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if active {
		f.activeSinks[sink] = true
	} else {
		delete(f.activeSinks, sink)
	}
}

func (f *fakeMixer) setSourceActive(source audio.Source, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if active {
		f.activeSources[source] = true
	} else {
		delete(f.activeSources, source)
	}
}

func (f *fakeMixer) setFailInput(index int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failInputs[index] = true
}

func (f *fakeMixer) getTrackVolume(index int) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.trackVolumes[index]
	return v, ok
}

func (f *fakeMixer) getCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeMixer) getClosed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.closed...)
}

func (f *fakeMixer) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// fakePulse 挂在真实门面下的 pulse 后端，回调由测试直接触发
type fakePulse struct {
	mu           sync.Mutex
	cb           mixer.Callbacks
	trackVolumes map[int]int
	sourceGains  map[audio.Source]int
}

func newFakePulse() *fakePulse {
	return &fakePulse{
		trackVolumes: make(map[int]int),
		sourceGains:  make(map[audio.Source]int),
	}
}

func (p *fakePulse) Kind() audio.MixerType { return audio.MixerPulse }
func (p *fakePulse) Ready() bool           { return true }

func (p *fakePulse) Bind(cb mixer.Callbacks) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cb = cb
}

func (p *fakePulse) OpenCloseSink(req mixer.SinkRequest) error                { return nil }
func (p *fakePulse) SetSinkGain(sink audio.Sink, volume int, ramp bool) error { return nil }
func (p *fakePulse) MuteSink(sink audio.Sink, mute bool) error                { return nil }
func (p *fakePulse) Close() error                                             { return nil }

func (p *fakePulse) SetTrackVolume(sink audio.Sink, sinkInputIndex int, volume int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trackVolumes[sinkInputIndex] = volume
	return nil
}

func (p *fakePulse) CloseClient(sinkInputIndex int) error { return nil }

func (p *fakePulse) OpenCloseSource(source audio.Source, open bool) error { return nil }

func (p *fakePulse) SetSourceGain(source audio.Source, volume int, ramp bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sourceGains[source] = volume
	return nil
}

func (p *fakePulse) MuteSource(source audio.Source, mute bool) error { return nil }
func (p *fakePulse) MutePhysicalSource(name string, mute bool) error { return nil }

func (p *fakePulse) getCallbacks() mixer.Callbacks {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cb
}

func (p *fakePulse) getTrackVolume(index int) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.trackVolumes[index]
	return v, ok
}

func (p *fakePulse) getSourceGain(source audio.Source) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.sourceGains[source]
	return v, ok
}

// eventRecorder 收集总线上发布的事件
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func newEventRecorder(bus *events.Bus, kinds ...events.Kind) *eventRecorder {
	r := &eventRecorder{}
	for _, k := range kinds {
		bus.Subscribe(k, func(ev events.Event) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		})
	}
	return r
}

func (r *eventRecorder) getEvents() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}
