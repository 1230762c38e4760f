package mixer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse/proto"

	"github.com/webosce/audiod-pro/internal/audio"
)

// fakeBackend 模拟后端，打开/关闭立即回调
type fakeBackend struct {
	mu      sync.Mutex
	kind    audio.MixerType
	ready   bool
	cb      Callbacks
	calls   []string
	failAll error
	closed  int
}

func newFakeBackend(kind audio.MixerType) *fakeBackend {
	return &fakeBackend{kind: kind, ready: true}
}

func (f *fakeBackend) record(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.failAll
}

func (f *fakeBackend) getCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) Kind() audio.MixerType { return f.kind }
func (f *fakeBackend) Ready() bool           { return f.ready }
func (f *fakeBackend) Bind(cb Callbacks)     { f.cb = cb }

func (f *fakeBackend) OpenCloseSink(req SinkRequest) error {
	if err := f.record("openCloseSink %s %t", req.Sink, req.Open); err != nil {
		return err
	}
	f.cb.OnSinkStatus(SinkReport{Kind: f.kind, VirtualSink: req.Sink, Opened: req.Open, SinkIndex: req.SinkIndex, TrackID: req.TrackID})
	return nil
}

func (f *fakeBackend) SetSinkGain(sink audio.Sink, volume int, ramp bool) error {
	return f.record("setSinkGain %s %d", sink, volume)
}

func (f *fakeBackend) MuteSink(sink audio.Sink, mute bool) error {
	return f.record("muteSink %s %t", sink, mute)
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.failAll
}

// fakeFullBackend 具备全部能力，fakeBackend 只有基本能力
type fakeFullBackend struct {
	*fakeBackend
}

func (f *fakeFullBackend) OpenCloseSource(source audio.Source, open bool) error {
	if err := f.record("openCloseSource %s %t", source, open); err != nil {
		return err
	}
	f.cb.OnSourceStatus(SourceReport{Kind: f.kind, VirtualSource: source, Opened: open})
	return nil
}

func (f *fakeFullBackend) SetSourceGain(source audio.Source, volume int, ramp bool) error {
	return f.record("setSourceGain %s %d", source, volume)
}

func (f *fakeFullBackend) MuteSource(source audio.Source, mute bool) error {
	return f.record("muteSource %s %t", source, mute)
}

func (f *fakeFullBackend) MutePhysicalSource(name string, mute bool) error {
	return f.record("mutePhysicalSource %s %t", name, mute)
}

func (f *fakeFullBackend) SetTrackVolume(sink audio.Sink, idx, volume int) error {
	return f.record("setTrackVolume %s %d %d", sink, idx, volume)
}

func (f *fakeFullBackend) CloseClient(idx int) error {
	return f.record("closeClient %d", idx)
}

func (f *fakeFullBackend) SetMasterVolume(out string, volume int) error {
	return f.record("setMasterVolume %s %d", out, volume)
}

func (f *fakeFullBackend) MuteMaster(out string, mute bool) error {
	return f.record("muteMaster %s %t", out, mute)
}

// recordingCallbacks 记录后端上报
type recordingCallbacks struct {
	mu      sync.Mutex
	ready   []bool
	sinks   []SinkReport
	sources []SourceReport
	masters []MasterReport
	volumes map[audio.Sink]int
	devices []DeviceReport
}

func newRecordingCallbacks() *recordingCallbacks {
	return &recordingCallbacks{volumes: make(map[audio.Sink]int)}
}

func (r *recordingCallbacks) OnReady(kind audio.MixerType, ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = append(r.ready, ready)
}

func (r *recordingCallbacks) OnSinkStatus(rep SinkReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, rep)
}

func (r *recordingCallbacks) OnSourceStatus(rep SourceReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, rep)
}

func (r *recordingCallbacks) OnDeviceConnection(rep DeviceReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = append(r.devices, rep)
}

func (r *recordingCallbacks) OnMasterVolume(rep MasterReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.masters = append(r.masters, rep)
}

func (r *recordingCallbacks) OnInputVolume(sink audio.Sink, volume int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volumes[sink] = volume
}

func (r *recordingCallbacks) getReady() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.ready...)
}

func (r *recordingCallbacks) getSinks() []SinkReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SinkReport(nil), r.sinks...)
}

func (r *recordingCallbacks) getMasters() []MasterReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MasterReport(nil), r.masters...)
}

func (r *recordingCallbacks) getVolume(sink audio.Sink) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.volumes[sink]
	return v, ok
}

// fakeRequester 模拟 pulse 协议客户端
type fakeRequester struct {
	mu       sync.Mutex
	requests []proto.RequestArgs
	failNext error
	closed   bool

	serverInfo proto.GetServerInfoReply
	sinkInputs map[uint32]proto.GetSinkInputInfoReply
	sinks      map[uint32]proto.GetSinkInfoReply
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{
		serverInfo: proto.GetServerInfoReply{DefaultSinkName: "alsa_output.default", DefaultSourceName: "alsa_input.default"},
		sinkInputs: make(map[uint32]proto.GetSinkInputInfoReply),
		sinks:      make(map[uint32]proto.GetSinkInfoReply),
	}
}

func (f *fakeRequester) RawRequest(cmd proto.RequestArgs, rpl proto.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.requests = append(f.requests, cmd)

	switch c := cmd.(type) {
	case *proto.GetServerInfo:
		if out, ok := rpl.(*proto.GetServerInfoReply); ok {
			*out = f.serverInfo
		}
	case *proto.GetSinkInputInfo:
		info, ok := f.sinkInputs[c.SinkInputIndex]
		if !ok {
			return errors.New("no such entity")
		}
		if out, ok := rpl.(*proto.GetSinkInputInfoReply); ok {
			*out = info
		}
	case *proto.GetSinkInfo:
		info, ok := f.sinks[c.SinkIndex]
		if !ok {
			return errors.New("no such entity")
		}
		if out, ok := rpl.(*proto.GetSinkInfoReply); ok {
			*out = info
		}
	}
	return nil
}

func (f *fakeRequester) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeRequester) setFailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = err
}

func (f *fakeRequester) getRequests() []proto.RequestArgs {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]proto.RequestArgs(nil), f.requests...)
}

func (f *fakeRequester) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
