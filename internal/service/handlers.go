package service

import (
	"strconv"

	"github.com/webosce/audiod-pro/internal/audio"
	"github.com/webosce/audiod-pro/internal/events"
	"github.com/webosce/audiod-pro/internal/master"
	"github.com/webosce/audiod-pro/internal/mixer"
	"github.com/webosce/audiod-pro/internal/playback"
)

// sourceSnapshot 输入流状态，对外字段名是 sourceType
type sourceSnapshot struct {
	SourceType   string `json:"sourceType"`
	MuteStatus   bool   `json:"muteStatus"`
	InputVolume  int    `json:"inputVolume"`
	Sink         string `json:"sink"`
	Source       string `json:"source"`
	PolicyStatus bool   `json:"policyStatus"`
	ActiveStatus bool   `json:"activeStatus"`
}

func statusPayload(source bool, snaps []events.StreamSnapshot, subscribed bool) payload {
	if !source {
		return payload{
			"streamObject": snaps,
			"subscribed":   subscribed,
			"returnValue":  true,
		}
	}
	out := make([]sourceSnapshot, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, sourceSnapshot{
			SourceType:   s.StreamType,
			MuteStatus:   s.MuteStatus,
			InputVolume:  s.InputVolume,
			Sink:         s.Sink,
			Source:       s.Source,
			PolicyStatus: s.PolicyStatus,
			ActiveStatus: s.ActiveStatus,
		})
	}
	return payload{
		"sourceObject": out,
		"subscribed":   subscribed,
		"returnValue":  true,
	}
}

func masterPayload(st master.Status, callerID string) payload {
	return payload{
		"volumeStatus": st,
		"returnValue":  true,
		"callerId":     callerID,
	}
}

func sessionKey(id int) string {
	return strconv.Itoa(id)
}

type volumeParams struct {
	StreamType string `json:"streamType"`
	SourceType string `json:"sourceType"`
	Volume     *int   `json:"volume"`
	Ramp       bool   `json:"ramp"`
	Subscribe  bool   `json:"subscribe"`
}

func (s *Service) setInputVolume(c *Call) (payload, error) {
	var p volumeParams
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	if p.StreamType == "" || p.Volume == nil {
		return nil, missing("streamType", "volume")
	}
	if err := s.deps.Engine.SetInputVolume(p.StreamType, *p.Volume, p.Ramp); err != nil {
		return nil, err
	}
	return payload{"volume": *p.Volume, "streamType": p.StreamType}, nil
}

func (s *Service) getInputVolume(c *Call) (payload, error) {
	var p volumeParams
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	if p.StreamType == "" {
		return nil, missing("streamType")
	}
	vol, err := s.deps.Engine.InputVolume(p.StreamType)
	if err != nil {
		return nil, err
	}
	subscribed := c.subscribe(p.Subscribe, topicInputVolume, p.StreamType)
	return payload{"volume": vol, "streamType": p.StreamType, "subscribed": subscribed}, nil
}

func (s *Service) setSourceInputVolume(c *Call) (payload, error) {
	var p volumeParams
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	if p.SourceType == "" || p.Volume == nil {
		return nil, missing("sourceType", "volume")
	}
	if err := s.deps.Engine.SetSourceInputVolume(p.SourceType, *p.Volume, p.Ramp); err != nil {
		return nil, err
	}
	return payload{"volume": *p.Volume, "sourceType": p.SourceType}, nil
}

func (s *Service) getSourceInputVolume(c *Call) (payload, error) {
	var p volumeParams
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	if p.SourceType == "" {
		return nil, missing("sourceType")
	}
	vol, err := s.deps.Engine.SourceInputVolume(p.SourceType)
	if err != nil {
		return nil, err
	}
	subscribed := c.subscribe(p.Subscribe, topicSourceInputVolume, p.SourceType)
	return payload{"volume": vol, "sourceType": p.SourceType, "subscribed": subscribed}, nil
}

func (s *Service) setTrackVolume(c *Call) (payload, error) {
	var p struct {
		TrackID string `json:"trackId"`
		Volume  *int   `json:"volume"`
	}
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	if p.TrackID == "" || p.Volume == nil {
		return nil, missing("trackId", "volume")
	}
	streamType, err := s.deps.Engine.SetTrackVolume(p.TrackID, *p.Volume)
	if err != nil {
		return nil, err
	}
	return payload{"trackId": p.TrackID, "volume": *p.Volume, "streamType": streamType}, nil
}

type muteParams struct {
	StreamType string `json:"streamType"`
	SourceType string `json:"sourceType"`
	Mute       *bool  `json:"mute"`
}

func (s *Service) muteSink(c *Call) (payload, error) {
	var p muteParams
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	if p.StreamType == "" || p.Mute == nil {
		return nil, missing("streamType", "mute")
	}
	if err := s.deps.Engine.MuteSink(p.StreamType, *p.Mute); err != nil {
		return nil, err
	}
	return payload{"mute": *p.Mute, "streamType": p.StreamType}, nil
}

func (s *Service) muteSource(c *Call) (payload, error) {
	var p muteParams
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	if p.SourceType == "" || p.Mute == nil {
		return nil, missing("sourceType", "mute")
	}
	if err := s.deps.Engine.MuteSource(p.SourceType, *p.Mute); err != nil {
		return nil, err
	}
	return payload{"mute": *p.Mute, "sourceType": p.SourceType}, nil
}

func (s *Service) getStreamStatus(c *Call) (payload, error) {
	var p volumeParams
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	snaps, err := s.deps.Engine.StreamStatus(p.StreamType)
	if err != nil {
		return nil, err
	}
	subscribed := c.subscribe(p.Subscribe, topicStreamStatus, p.StreamType)
	return statusPayload(false, snaps, subscribed), nil
}

func (s *Service) getSourceStatus(c *Call) (payload, error) {
	var p volumeParams
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	snaps, err := s.deps.Engine.SourceStatus(p.SourceType)
	if err != nil {
		return nil, err
	}
	subscribed := c.subscribe(p.Subscribe, topicSourceStatus, p.SourceType)
	return statusPayload(true, snaps, subscribed), nil
}

func (s *Service) registerTrack(c *Call) (payload, error) {
	var p struct {
		StreamType string `json:"streamType"`
	}
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	if p.StreamType == "" {
		return nil, missing("streamType")
	}
	id, err := s.deps.Tracks.Register(p.StreamType, c.Sender)
	if err != nil {
		return nil, err
	}
	return payload{"trackId": id}, nil
}

func (s *Service) unregisterTrack(c *Call) (payload, error) {
	var p struct {
		TrackID string `json:"trackId"`
	}
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	if p.TrackID == "" {
		return nil, missing("trackId")
	}
	if err := s.deps.Tracks.Unregister(p.TrackID); err != nil {
		return nil, err
	}
	return payload{"trackId": p.TrackID}, nil
}

func (s *Service) setMediaVolume(c *Call) (payload, error) {
	var p struct {
		Volume    *int `json:"volume"`
		SessionID int  `json:"sessionId"`
	}
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	if p.Volume == nil {
		return nil, missing("volume")
	}
	if err := s.deps.Engine.SetMediaVolume(*p.Volume, p.SessionID); err != nil {
		return nil, err
	}
	return payload{"volume": *p.Volume, "sessionId": p.SessionID}, nil
}

type masterParams struct {
	SoundOutput string `json:"soundOutput"`
	Volume      *int   `json:"volume"`
	Mute        *bool  `json:"mute"`
	SessionID   int    `json:"sessionId"`
	Subscribe   bool   `json:"subscribe"`
}

func (s *Service) setMasterVolume(c *Call) (payload, error) {
	var p masterParams
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	if p.SoundOutput == "" || p.Volume == nil {
		return nil, missing("soundOutput", "volume")
	}
	st, err := s.deps.Master.SetVolume(p.SoundOutput, *p.Volume, p.SessionID)
	if err != nil {
		return nil, err
	}
	return masterPayload(st, c.Sender), nil
}

func (s *Service) getMasterVolume(c *Call) (payload, error) {
	var p masterParams
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	st, err := s.deps.Master.Volume(p.SessionID)
	if err != nil {
		return nil, err
	}
	reply := masterPayload(st, c.Sender)
	reply["subscribed"] = c.subscribe(p.Subscribe, topicMasterVolume, sessionKey(p.SessionID))
	return reply, nil
}

func (s *Service) muteMasterVolume(c *Call) (payload, error) {
	var p masterParams
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	if p.SoundOutput == "" || p.Mute == nil {
		return nil, missing("soundOutput", "mute")
	}
	st, err := s.deps.Master.Mute(p.SoundOutput, *p.Mute, p.SessionID)
	if err != nil {
		return nil, err
	}
	return masterPayload(st, c.Sender), nil
}

func (s *Service) masterVolumeUp(c *Call) (payload, error) {
	return s.masterStep(c, s.deps.Master.VolumeUp)
}

func (s *Service) masterVolumeDown(c *Call) (payload, error) {
	return s.masterStep(c, s.deps.Master.VolumeDown)
}

func (s *Service) masterStep(c *Call, step func(string, int) (master.Status, error)) (payload, error) {
	var p masterParams
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	if p.SoundOutput == "" {
		return nil, missing("soundOutput")
	}
	st, err := step(p.SoundOutput, p.SessionID)
	if err != nil {
		return nil, err
	}
	return masterPayload(st, c.Sender), nil
}

func (s *Service) playSound(c *Call) (payload, error) {
	var req playback.Request
	if err := c.bind(&req); err != nil {
		return nil, err
	}
	if req.FileName == "" || req.Sink == "" {
		return nil, missing("fileName", "sink")
	}
	id, err := s.deps.Playback.Play(req)
	if err != nil {
		return nil, err
	}
	return payload{"playbackId": id}, nil
}

type playbackParams struct {
	PlaybackID  string `json:"playbackId"`
	RequestType string `json:"requestType"`
	Subscribe   bool   `json:"subscribe"`
}

func (s *Service) controlPlayback(c *Call) (payload, error) {
	var p playbackParams
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	if p.PlaybackID == "" || p.RequestType == "" {
		return nil, missing("playbackId", "requestType")
	}
	st, err := s.deps.Playback.Control(p.PlaybackID, p.RequestType)
	if err != nil {
		return nil, err
	}
	return payload{"playbackId": p.PlaybackID, "requestType": p.RequestType, "state": string(st)}, nil
}

func (s *Service) getPlaybackStatus(c *Call) (payload, error) {
	var p playbackParams
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	if p.PlaybackID == "" {
		return nil, missing("playbackId")
	}
	st, err := s.deps.Playback.Status(p.PlaybackID)
	if err != nil {
		return nil, err
	}
	subscribed := c.subscribe(p.Subscribe, topicPlaybackStatus, p.PlaybackID)
	return payload{"playbackId": p.PlaybackID, "state": string(st), "subscribed": subscribed}, nil
}

func (s *Service) listDevices(c *Call) (payload, error) {
	var p struct {
		Subscribe bool `json:"subscribe"`
	}
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	subscribed := c.subscribe(p.Subscribe, topicDevices, "")
	return payload{"devices": s.deviceList(), "subscribed": subscribed}, nil
}

type streamParams struct {
	StreamType string `json:"streamType"`
	SourceType string `json:"sourceType"`
	SinkIndex  *int   `json:"sinkIndex"`
	TrackID    string `json:"trackId"`
	Mixer      string `json:"mixer"`
}

// kind 缺省为 pulse
func (p streamParams) kind() (audio.MixerType, error) {
	if p.Mixer == "" {
		return audio.MixerPulse, nil
	}
	kind, ok := audio.ParseMixerType(p.Mixer)
	if !ok || kind == audio.MixerNone {
		return audio.MixerNone, newError(CodeInvalidParameter, "mixer "+p.Mixer)
	}
	return kind, nil
}

func (s *Service) outputStreamOpened(c *Call) (payload, error) {
	return s.outputStream(c, true)
}

func (s *Service) outputStreamClosed(c *Call) (payload, error) {
	return s.outputStream(c, false)
}

func (s *Service) outputStream(c *Call, open bool) (payload, error) {
	var p streamParams
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	if p.StreamType == "" {
		return nil, missing("streamType")
	}
	if !s.deps.Table.HasSink(p.StreamType) {
		return nil, newError(CodeUnknownStream, p.StreamType)
	}
	kind, err := p.kind()
	if err != nil {
		return nil, err
	}
	index := audio.InvalidIndex
	if p.SinkIndex != nil {
		index = *p.SinkIndex
	}
	err = s.deps.Streams.OpenCloseSink(kind, mixer.SinkRequest{
		Sink:      audio.Sink(p.StreamType),
		Open:      open,
		SinkIndex: index,
		TrackID:   p.TrackID,
	})
	if err != nil {
		return nil, err
	}
	return payload{"streamType": p.StreamType}, nil
}

func (s *Service) inputStreamOpened(c *Call) (payload, error) {
	return s.inputStream(c, true)
}

func (s *Service) inputStreamClosed(c *Call) (payload, error) {
	return s.inputStream(c, false)
}

func (s *Service) inputStream(c *Call, open bool) (payload, error) {
	var p streamParams
	if err := c.bind(&p); err != nil {
		return nil, err
	}
	if p.SourceType == "" {
		return nil, missing("sourceType")
	}
	if _, ok := s.deps.Table.Source(p.SourceType); !ok {
		return nil, newError(CodeUnknownStream, p.SourceType)
	}
	kind, err := p.kind()
	if err != nil {
		return nil, err
	}
	if err := s.deps.Streams.OpenCloseSource(kind, audio.Source(p.SourceType), open); err != nil {
		return nil, err
	}
	return payload{"sourceType": p.SourceType}, nil
}
