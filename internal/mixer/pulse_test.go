package mixer

import (
	"errors"
	"testing"

	"github.com/jfreymuth/pulse/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webosce/audiod-pro/internal/audio"
)

func newTestPulse(t *testing.T) (*PulseBackend, *fakeRequester, *recordingCallbacks) {
	t.Helper()
	req := newFakeRequester()
	p := NewPulseBackend(PulseOptions{AppName: "test"})
	p.dial = func() (requester, error) { return req, nil }
	cb := newRecordingCallbacks()
	p.Bind(cb)
	p.check()
	require.True(t, p.Ready())
	return p, req, cb
}

func TestChannelVolumes(t *testing.T) {
	tests := []struct {
		name   string
		volume int
		want   uint32
	}{
		{"mute", 0, 0},
		{"half", 50, paVolumeNorm / 2},
		{"full", 100, paVolumeNorm},
		{"clamped high", 150, paVolumeNorm},
		{"clamped low", -5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cv := channelVolumes(tt.volume)
			require.Len(t, cv, 1)
			assert.Equal(t, tt.want, cv[0])
		})
	}
}

func TestPulseHealthProbeFlipsReadiness(t *testing.T) {
	p, req, cb := newTestPulse(t)

	req.setFailNext(errors.New("connection reset"))
	p.check()
	assert.False(t, p.Ready())
	assert.True(t, req.isClosed())

	// 下一次检查重新连接
	p.check()
	assert.True(t, p.Ready())
	assert.Equal(t, []bool{true, false, true}, cb.getReady())
}

func TestPulseDialFailureKeepsNotReady(t *testing.T) {
	p := NewPulseBackend(PulseOptions{})
	p.dial = func() (requester, error) { return nil, errors.New("no server") }
	cb := newRecordingCallbacks()
	p.Bind(cb)

	p.check()
	assert.False(t, p.Ready())
	assert.Empty(t, cb.getReady())

	err := p.SetSinkGain("pmedia", 10, false)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, p.OpenCloseSink(SinkRequest{Sink: "pmedia", Open: true}), ErrUnavailable)
}

func TestPulseOpenSinkResolvesPhysicalSink(t *testing.T) {
	p, req, cb := newTestPulse(t)
	req.sinkInputs[12] = proto.GetSinkInputInfoReply{SinkInputIndex: 12, SinkIndex: 2}
	req.sinks[2] = proto.GetSinkInfoReply{SinkIndex: 2, SinkName: "alsa_output.speaker"}

	require.NoError(t, p.OpenCloseSink(SinkRequest{Sink: "pmedia", Open: true, SinkIndex: 12, TrackID: "t1"}))
	require.NoError(t, p.OpenCloseSink(SinkRequest{Sink: "palert", Open: true, SinkIndex: 99}))
	require.NoError(t, p.OpenCloseSink(SinkRequest{Sink: "pmedia", Open: false, SinkIndex: 12}))

	sinks := cb.getSinks()
	require.Len(t, sinks, 3)
	assert.Equal(t, "alsa_output.speaker", sinks[0].Sink)
	assert.Equal(t, "t1", sinks[0].TrackID)
	assert.True(t, sinks[0].Opened)
	assert.Equal(t, "", sinks[1].Sink, "lookup failure still reports the sink")
	assert.False(t, sinks[2].Opened)
}

func TestPulseRequestsMapToProtocol(t *testing.T) {
	p, req, _ := newTestPulse(t)

	require.NoError(t, p.SetSinkGain("pmedia", 50, false))
	require.NoError(t, p.MuteSink("palert", true))
	require.NoError(t, p.SetSourceGain("precord", 100, false))
	require.NoError(t, p.MuteSource("precord", false))
	require.NoError(t, p.SetTrackVolume("pmedia", 8, 25))
	require.NoError(t, p.CloseClient(8))
	require.NoError(t, p.MutePhysicalSource("pcm_input", true))
	require.NoError(t, p.SetMasterVolume("alsa", 100))
	require.NoError(t, p.MuteMaster("speaker", true))

	var got []proto.RequestArgs
	for _, r := range req.getRequests() {
		if _, ok := r.(*proto.GetServerInfo); ok {
			continue
		}
		got = append(got, r)
	}
	require.Len(t, got, 9)

	vol := got[0].(*proto.SetSinkVolume)
	assert.Equal(t, "pmedia", vol.SinkName)
	assert.Equal(t, uint32(paInvalidIndex), vol.SinkIndex)
	assert.Equal(t, proto.ChannelVolumes{paVolumeNorm / 2}, vol.ChannelVolumes)

	mute := got[1].(*proto.SetSinkMute)
	assert.Equal(t, "palert", mute.SinkName)
	assert.True(t, mute.Mute)

	assert.Equal(t, "precord", got[2].(*proto.SetSourceVolume).SourceName)
	assert.False(t, got[3].(*proto.SetSourceMute).Mute)

	track := got[4].(*proto.SetSinkInputVolume)
	assert.Equal(t, uint32(8), track.SinkInputIndex)
	assert.Equal(t, proto.ChannelVolumes{paVolumeNorm / 4}, track.ChannelVolumes)

	assert.Equal(t, uint32(8), got[5].(*proto.KillSinkInput).SinkInputIndex)
	assert.Equal(t, "alsa_input.default", got[6].(*proto.SetSourceMute).SourceName)
	assert.Equal(t, "alsa_output.default", got[7].(*proto.SetSinkVolume).SinkName)
	assert.Equal(t, "speaker", got[8].(*proto.SetSinkMute).SinkName)
}

func TestPulseRejectsUnboundTrack(t *testing.T) {
	p, _, _ := newTestPulse(t)
	assert.Error(t, p.SetTrackVolume("pmedia", audio.InvalidIndex, 40))
	assert.Error(t, p.CloseClient(audio.InvalidIndex))
}

func TestPulseCloseReleasesClient(t *testing.T) {
	p, req, _ := newTestPulse(t)
	require.NoError(t, p.Close())
	assert.True(t, req.isClosed())
	assert.False(t, p.Ready())
}
