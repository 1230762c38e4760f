// Package service 按方法名分发 IPC 请求，并管理订阅推送
package service

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/webosce/audiod-pro/internal/audio"
	"github.com/webosce/audiod-pro/internal/device"
	"github.com/webosce/audiod-pro/internal/events"
	"github.com/webosce/audiod-pro/internal/logging"
	"github.com/webosce/audiod-pro/internal/master"
	"github.com/webosce/audiod-pro/internal/mixer"
	"github.com/webosce/audiod-pro/internal/playback"
	"github.com/webosce/audiod-pro/internal/policy"
	"github.com/webosce/audiod-pro/internal/track"
)

// 可订阅的方法
const (
	topicInputVolume       = "getInputVolume"
	topicSourceInputVolume = "getSourceInputVolume"
	topicStreamStatus      = "getStreamStatus"
	topicSourceStatus      = "getSourceStatus"
	topicMasterVolume      = "master/getVolume"
	topicPlaybackStatus    = "getPlaybackStatus"
	topicDevices           = "listDevices"
)

// StreamNotifier 平台的流打开/关闭通知转给混音器门面
type StreamNotifier interface {
	OpenCloseSink(kind audio.MixerType, req mixer.SinkRequest) error
	OpenCloseSource(kind audio.MixerType, source audio.Source, open bool) error
}

type Deps struct {
	Table    *policy.Table
	Engine   *policy.Engine
	Tracks   *track.Manager
	Master   *master.Manager
	Playback *playback.Manager
	Streams  StreamNotifier
	Bus      *events.Bus
}

type payload = map[string]any

type handlerFunc func(c *Call) (payload, error)

// Call 一次请求的上下文
type Call struct {
	Method    string
	RequestID string
	Sender    string
	Params    json.RawMessage

	peer Peer
	svc  *Service
}

// bind 解析参数，空参数视为 {}
func (c *Call) bind(v any) error {
	if len(c.Params) == 0 || string(c.Params) == "null" {
		return nil
	}
	if err := json.Unmarshal(c.Params, v); err != nil {
		return newError(CodeInvalidParameter, err.Error())
	}
	return nil
}

// subscribe 请求带 subscribe=true 且来自连接时登记订阅
func (c *Call) subscribe(want bool, topic, key string) bool {
	if !want || c.peer == nil {
		return false
	}
	c.svc.hub.Add(topic, key, c.peer, c.RequestID)
	return true
}

// Service 所有方法都在事件循环上调用
type Service struct {
	deps     Deps
	hub      *Hub
	handlers map[string]handlerFunc
	devices  map[string]device.Device
	subs     []events.SubscriptionID
	log      *logging.Logger
}

func New(deps Deps) *Service {
	s := &Service{
		deps:    deps,
		hub:     NewHub(),
		devices: make(map[string]device.Device),
		log:     logging.Named("service"),
	}
	s.handlers = map[string]handlerFunc{
		"setInputVolume":       s.setInputVolume,
		"getInputVolume":       s.getInputVolume,
		"setSourceInputVolume": s.setSourceInputVolume,
		"getSourceInputVolume": s.getSourceInputVolume,
		"setTrackVolume":       s.setTrackVolume,
		"muteSink":             s.muteSink,
		"muteSource":           s.muteSource,
		"getStreamStatus":      s.getStreamStatus,
		"getSourceStatus":      s.getSourceStatus,
		"registerTrack":        s.registerTrack,
		"unregisterTrack":      s.unregisterTrack,
		"media/setVolume":      s.setMediaVolume,
		"master/setVolume":     s.setMasterVolume,
		"master/getVolume":     s.getMasterVolume,
		"master/muteVolume":    s.muteMasterVolume,
		"master/volumeUp":      s.masterVolumeUp,
		"master/volumeDown":    s.masterVolumeDown,
		"playSound":            s.playSound,
		"controlPlayback":      s.controlPlayback,
		"getPlaybackStatus":    s.getPlaybackStatus,
		"listDevices":          s.listDevices,
		"outputStreamOpened":   s.outputStreamOpened,
		"outputStreamClosed":   s.outputStreamClosed,
		"inputStreamOpened":    s.inputStreamOpened,
		"inputStreamClosed":    s.inputStreamClosed,
	}
	return s
}

// Methods 已注册的方法名
func (s *Service) Methods() []string {
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, "/"+name)
	}
	sort.Strings(names)
	return names
}

// Handle 处理一个请求，总是返回应答 payload
func (s *Service) Handle(peer Peer, requestID, sender, method string, params json.RawMessage) map[string]any {
	name := strings.TrimPrefix(method, "/")
	h, ok := s.handlers[name]
	if !ok {
		s.log.Warnf("unknown method %q from %s", method, sender)
		return errorPayload(newError(CodeUnknownMethod, method))
	}

	c := &Call{
		Method:    name,
		RequestID: requestID,
		Sender:    sender,
		Params:    params,
		peer:      peer,
		svc:       s,
	}
	reply, err := h(c)
	if err != nil {
		e := toError(err)
		s.log.Warnf("%s from %s failed: %s", name, sender, e.Text)
		return errorPayload(e)
	}
	if reply == nil {
		reply = payload{}
	}
	reply["returnValue"] = true
	return reply
}

// Cancel 取消一个订阅请求
func (s *Service) Cancel(peer Peer, requestID string) bool {
	return s.hub.Cancel(peer, requestID)
}

// Disconnect 连接关闭时清理它的订阅
func (s *Service) Disconnect(peer Peer) {
	if n := s.hub.Drop(peer); n > 0 {
		s.log.Debugf("dropped %d subscriptions of closed connection", n)
	}
}

// Start 订阅领域事件并转成推送
func (s *Service) Start() {
	bus := s.deps.Bus
	s.subs = append(s.subs,
		bus.Subscribe(events.KindVolumeReport, s.onVolumeReport),
		bus.Subscribe(events.KindStreamStatus, s.onStreamStatus),
		bus.Subscribe(events.KindMasterVolume, s.onMasterVolume),
		bus.Subscribe(events.KindPlaybackStatus, s.onPlaybackStatus),
		bus.Subscribe(events.KindDeviceConnection, s.onDeviceConnection),
	)
}

func (s *Service) Stop() {
	for _, id := range s.subs {
		s.deps.Bus.Unsubscribe(id)
	}
	s.subs = nil
}

func (s *Service) onVolumeReport(ev events.Event) {
	evt, ok := ev.(*events.VolumeReportEvent)
	if !ok {
		return
	}
	topic, field := topicInputVolume, "streamType"
	if evt.Source {
		topic, field = topicSourceInputVolume, "sourceType"
	}
	s.hub.Notify(topic, func(key string) any {
		if key != evt.StreamType {
			return nil
		}
		return payload{
			"volume":      evt.Volume,
			field:         evt.StreamType,
			"subscribed":  true,
			"returnValue": true,
		}
	})
}

func (s *Service) onStreamStatus(ev events.Event) {
	evt, ok := ev.(*events.StreamStatusEvent)
	if !ok {
		return
	}
	topic := topicStreamStatus
	status := s.deps.Engine.StreamStatus
	if evt.Source {
		topic = topicSourceStatus
		status = s.deps.Engine.SourceStatus
	}
	s.hub.Notify(topic, func(key string) any {
		if key == "" {
			active, err := status("")
			if err != nil {
				return nil
			}
			return statusPayload(evt.Source, active, true)
		}
		for _, snap := range evt.Streams {
			if snap.StreamType == key {
				return statusPayload(evt.Source, []events.StreamSnapshot{snap}, true)
			}
		}
		return nil
	})
}

func (s *Service) onMasterVolume(ev events.Event) {
	evt, ok := ev.(*events.MasterVolumeEvent)
	if !ok || s.deps.Master == nil {
		return
	}
	st, err := s.deps.Master.Volume(evt.SessionID)
	if err != nil {
		return
	}
	s.hub.Notify(topicMasterVolume, func(key string) any {
		if key != sessionKey(evt.SessionID) {
			return nil
		}
		return masterPayload(st, "")
	})
}

func (s *Service) onPlaybackStatus(ev events.Event) {
	evt, ok := ev.(*events.PlaybackStatusEvent)
	if !ok {
		return
	}
	s.hub.Notify(topicPlaybackStatus, func(key string) any {
		if key != evt.PlaybackID {
			return nil
		}
		return payload{
			"playbackId":  evt.PlaybackID,
			"state":       evt.Status,
			"subscribed":  true,
			"returnValue": true,
		}
	})
}

func (s *Service) onDeviceConnection(ev events.Event) {
	evt, ok := ev.(*events.DeviceConnectionEvent)
	if !ok {
		return
	}
	d := device.Device{Name: evt.Name, Detail: evt.Detail, IsOutput: evt.IsOutput}
	key := deviceKey(d)
	if evt.Connected {
		s.devices[key] = d
	} else {
		delete(s.devices, key)
	}
	s.hub.Notify(topicDevices, func(string) any {
		return payload{
			"devices":     s.deviceList(),
			"subscribed":  true,
			"returnValue": true,
		}
	})
}

func (s *Service) deviceList() []device.Device {
	out := make([]device.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return deviceKey(out[i]) < deviceKey(out[j]) })
	return out
}

func deviceKey(d device.Device) string {
	if d.IsOutput {
		return "out:" + d.Name
	}
	return "in:" + d.Name
}
