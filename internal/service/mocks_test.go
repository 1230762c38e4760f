package service

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/webosce/audiod-pro/internal/audio"
	"github.com/webosce/audiod-pro/internal/events"
	"github.com/webosce/audiod-pro/internal/mixer"
	"github.com/webosce/audiod-pro/internal/playback"
)

// fakeMixer 同时充当引擎的混音器、主音量控制和流通知目标
// 打开/关闭通知直接发布对应的状态事件
type fakeMixer struct {
	mu            sync.Mutex
	bus           *events.Bus
	activeSinks   map[audio.Sink]bool
	activeSources map[audio.Source]bool
	trackVolumes  map[int]int
	calls         []string
	failOpen      error
}

func newFakeMixer(bus *events.Bus) *fakeMixer {
	return &fakeMixer{
		bus:           bus,
		activeSinks:   make(map[audio.Sink]bool),
		activeSources: make(map[audio.Source]bool),
		trackVolumes:  make(map[int]int),
	}
}

func (f *fakeMixer) record(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return nil
}

func (f *fakeMixer) ActiveSinks() []audio.Sink {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]audio.Sink, 0, len(f.activeSinks))
	for s := range f.activeSinks {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *fakeMixer) ActiveSources() []audio.Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]audio.Source, 0, len(f.activeSources))
	for s := range f.activeSources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *fakeMixer) SetSinkGain(kind audio.MixerType, sink audio.Sink, volume int, ramp bool) error {
	return f.record("sinkGain %s %s %d", kind, sink, volume)
}

func (f *fakeMixer) SetSourceGain(kind audio.MixerType, source audio.Source, volume int, ramp bool) error {
	return f.record("sourceGain %s %s %d", kind, source, volume)
}

func (f *fakeMixer) MuteSink(kind audio.MixerType, sink audio.Sink, mute bool) error {
	return f.record("muteSink %s %s %t", kind, sink, mute)
}

func (f *fakeMixer) MuteSource(kind audio.MixerType, source audio.Source, mute bool) error {
	return f.record("muteSource %s %s %t", kind, source, mute)
}

func (f *fakeMixer) MutePhysicalSource(kind audio.MixerType, name string, mute bool) error {
	return f.record("mutePhysical %s %s %t", kind, name, mute)
}

func (f *fakeMixer) ProgramTrackVolume(sink audio.Sink, sinkInputIndex, volume int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trackVolumes[sinkInputIndex] = volume
	return nil
}

func (f *fakeMixer) CloseClient(sinkInputIndex int) error {
	return f.record("close #%d", sinkInputIndex)
}

func (f *fakeMixer) SetMasterVolume(kind audio.MixerType, soundOutput string, volume int) error {
	return f.record("master %s %s %d", kind, soundOutput, volume)
}

func (f *fakeMixer) MuteMaster(kind audio.MixerType, soundOutput string, mute bool) error {
	return f.record("masterMute %s %s %t", kind, soundOutput, mute)
}

func (f *fakeMixer) OpenCloseSink(kind audio.MixerType, req mixer.SinkRequest) error {
	f.mu.Lock()
	if f.failOpen != nil {
		f.mu.Unlock()
		return f.failOpen
	}
	status := audio.StreamClosed
	if req.Open {
		status = audio.StreamOpened
		f.activeSinks[req.Sink] = true
	} else {
		delete(f.activeSinks, req.Sink)
	}
	f.mu.Unlock()

	f.bus.Publish(events.NewSinkStatusEvent("app", "alsa", req.Sink, status, kind, req.SinkIndex, req.TrackID))
	return nil
}

func (f *fakeMixer) OpenCloseSource(kind audio.MixerType, source audio.Source, open bool) error {
	f.mu.Lock()
	status := audio.StreamClosed
	if open {
		status = audio.StreamOpened
		f.activeSources[source] = true
	} else {
		delete(f.activeSources, source)
	}
	f.mu.Unlock()

	f.bus.Publish(events.NewSourceStatusEvent("pcm_input", "app", source, status, kind))
	return nil
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

type pushed struct {
	requestID string
	payload   map[string]any
}

// fakePeer 记录推送
type fakePeer struct {
	mu     sync.Mutex
	pushes []pushed
}

func (p *fakePeer) Push(requestID string, payload any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, _ := payload.(map[string]any)
	p.pushes = append(p.pushes, pushed{requestID: requestID, payload: m})
	return true
}

func (p *fakePeer) getPushes() []pushed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pushed(nil), p.pushes...)
}

// blockingStream 播放到 Close 为止
type blockingStream struct {
	once sync.Once
	done chan struct{}
}

func (s *blockingStream) Start()       {}
func (s *blockingStream) Stop()        {}
func (s *blockingStream) Drain()       { <-s.done }
func (s *blockingStream) Close()       { s.once.Do(func() { close(s.done) }) }
func (s *blockingStream) Error() error { return nil }

type fakeOpener struct{}

func (fakeOpener) Open(playback.Request, io.Reader) (playback.Stream, error) {
	return &blockingStream{done: make(chan struct{})}, nil
}

func openSoundFile(name string) (io.ReadCloser, error) {
	if name != "/sounds/alert.pcm" {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader([]byte{0, 0, 1, 1})), nil
}
