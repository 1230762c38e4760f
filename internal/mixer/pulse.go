package mixer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"github.com/webosce/audiod-pro/internal/audio"
	"github.com/webosce/audiod-pro/internal/logging"
)

const (
	paVolumeNorm   = 0x10000
	paInvalidIndex = 0xFFFFFFFF

	// physicalInput 平台默认的物理输入设备名
	physicalInput = "pcm_input"
	// physicalOutput 主音量的默认输出名
	physicalOutput = "alsa"
)

// requester pulse 协议客户端，*pulse.Client 满足该接口
type requester interface {
	RawRequest(cmd proto.RequestArgs, rpl proto.Reply) error
	Close()
}

type PulseOptions struct {
	Server         string
	AppName        string
	HealthInterval time.Duration
}

// PulseBackend 通过 pulse 原生协议控制软件混音器
type PulseBackend struct {
	opts PulseOptions
	dial func() (requester, error)

	mu     sync.Mutex
	client requester
	ready  bool
	cb     Callbacks

	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logging.Logger
}

func NewPulseBackend(opts PulseOptions) *PulseBackend {
	if opts.AppName == "" {
		opts.AppName = "audiod"
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 2 * time.Second
	}
	p := &PulseBackend{
		opts: opts,
		log:  logging.Named("pulse"),
	}
	p.dial = p.dialPulse
	return p
}

func (p *PulseBackend) dialPulse() (requester, error) {
	options := []pulse.ClientOption{pulse.ClientApplicationName(p.opts.AppName)}
	if p.opts.Server != "" {
		options = append(options, pulse.ClientServerString(p.opts.Server))
	}
	client, err := pulse.NewClient(options...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (p *PulseBackend) Kind() audio.MixerType {
	return audio.MixerPulse
}

func (p *PulseBackend) Bind(cb Callbacks) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cb = cb
}

func (p *PulseBackend) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Start 尝试首次连接并启动健康检查；连接失败不返回错误，由健康检查重连
func (p *PulseBackend) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return errors.New("pulse backend already started")
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.check()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.opts.HealthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.check()
			}
		}
	}()
	return nil
}

// check 未连接时重连，已连接时用 GetServerInfo 探测
func (p *PulseBackend) check() {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	if client == nil {
		c, err := p.dial()
		if err != nil {
			p.log.Debugf("connect pulse server failed: %v", err)
			p.setReady(false)
			return
		}
		p.mu.Lock()
		p.client = c
		p.mu.Unlock()
		p.log.Infof("connected to pulse server")
		p.setReady(true)
		return
	}

	var info proto.GetServerInfoReply
	if err := client.RawRequest(&proto.GetServerInfo{}, &info); err != nil {
		p.log.Warnf("pulse health check failed: %v", err)
		p.dropClient(client)
		p.setReady(false)
		return
	}
	p.setReady(true)
}

func (p *PulseBackend) dropClient(client requester) {
	p.mu.Lock()
	if p.client == client {
		p.client = nil
	}
	p.mu.Unlock()
	client.Close()
}

func (p *PulseBackend) setReady(ready bool) {
	p.mu.Lock()
	changed := p.ready != ready
	p.ready = ready
	cb := p.cb
	p.mu.Unlock()

	if changed && cb != nil {
		cb.OnReady(audio.MixerPulse, ready)
	}
}

func (p *PulseBackend) request(cmd proto.RequestArgs, rpl proto.Reply) error {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil {
		return &UnavailableError{Kind: audio.MixerPulse}
	}
	if err := client.RawRequest(cmd, rpl); err != nil {
		return fmt.Errorf("pulse %T: %w", cmd, err)
	}
	return nil
}

func (p *PulseBackend) callbacks() Callbacks {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cb
}

// OpenCloseSink 打开时查询 sink input 所在的物理 sink，再上报状态
func (p *PulseBackend) OpenCloseSink(req SinkRequest) error {
	if !p.Ready() {
		return &UnavailableError{Kind: audio.MixerPulse}
	}
	report := SinkReport{
		Kind:        audio.MixerPulse,
		VirtualSink: req.Sink,
		Opened:      req.Open,
		SinkIndex:   req.SinkIndex,
		TrackID:     req.TrackID,
	}
	if req.Open && req.SinkIndex >= 0 {
		physical, err := p.physicalSinkOf(req.SinkIndex)
		if err != nil {
			p.log.Warnf("lookup sink input #%d: %v", req.SinkIndex, err)
		} else {
			report.Sink = physical
		}
	}
	if cb := p.callbacks(); cb != nil {
		cb.OnSinkStatus(report)
	}
	return nil
}

func (p *PulseBackend) physicalSinkOf(sinkInputIndex int) (string, error) {
	var input proto.GetSinkInputInfoReply
	if err := p.request(&proto.GetSinkInputInfo{SinkInputIndex: uint32(sinkInputIndex)}, &input); err != nil {
		return "", err
	}
	var sink proto.GetSinkInfoReply
	if err := p.request(&proto.GetSinkInfo{SinkIndex: input.SinkIndex}, &sink); err != nil {
		return "", err
	}
	return sink.SinkName, nil
}

func (p *PulseBackend) SetSinkGain(sink audio.Sink, volume int, ramp bool) error {
	if ramp {
		p.log.Debugf("ramp requested for %s, pulse applies volume immediately", sink)
	}
	return p.request(&proto.SetSinkVolume{
		SinkIndex:      paInvalidIndex,
		SinkName:       string(sink),
		ChannelVolumes: channelVolumes(volume),
	}, nil)
}

func (p *PulseBackend) MuteSink(sink audio.Sink, mute bool) error {
	return p.request(&proto.SetSinkMute{
		SinkIndex: paInvalidIndex,
		SinkName:  string(sink),
		Mute:      mute,
	}, nil)
}

func (p *PulseBackend) OpenCloseSource(source audio.Source, open bool) error {
	if !p.Ready() {
		return &UnavailableError{Kind: audio.MixerPulse}
	}
	if cb := p.callbacks(); cb != nil {
		cb.OnSourceStatus(SourceReport{
			Kind:          audio.MixerPulse,
			Source:        string(source),
			VirtualSource: source,
			Opened:        open,
		})
	}
	return nil
}

func (p *PulseBackend) SetSourceGain(source audio.Source, volume int, ramp bool) error {
	return p.request(&proto.SetSourceVolume{
		SourceIndex:    paInvalidIndex,
		SourceName:     string(source),
		ChannelVolumes: channelVolumes(volume),
	}, nil)
}

func (p *PulseBackend) MuteSource(source audio.Source, mute bool) error {
	return p.request(&proto.SetSourceMute{
		SourceIndex: paInvalidIndex,
		SourceName:  string(source),
		Mute:        mute,
	}, nil)
}

// MutePhysicalSource pcm_input 映射到服务器默认输入设备
func (p *PulseBackend) MutePhysicalSource(name string, mute bool) error {
	if name == physicalInput {
		info, err := p.serverInfo()
		if err != nil {
			return err
		}
		name = info.DefaultSourceName
	}
	return p.request(&proto.SetSourceMute{
		SourceIndex: paInvalidIndex,
		SourceName:  name,
		Mute:        mute,
	}, nil)
}

func (p *PulseBackend) SetTrackVolume(sink audio.Sink, sinkInputIndex int, volume int) error {
	if sinkInputIndex < 0 {
		return fmt.Errorf("sink input for %s not bound", sink)
	}
	return p.request(&proto.SetSinkInputVolume{
		SinkInputIndex: uint32(sinkInputIndex),
		ChannelVolumes: channelVolumes(volume),
	}, nil)
}

func (p *PulseBackend) CloseClient(sinkInputIndex int) error {
	if sinkInputIndex < 0 {
		return fmt.Errorf("invalid sink input index %d", sinkInputIndex)
	}
	return p.request(&proto.KillSinkInput{SinkInputIndex: uint32(sinkInputIndex)}, nil)
}

func (p *PulseBackend) SetMasterVolume(soundOutput string, volume int) error {
	name, err := p.outputSink(soundOutput)
	if err != nil {
		return err
	}
	return p.request(&proto.SetSinkVolume{
		SinkIndex:      paInvalidIndex,
		SinkName:       name,
		ChannelVolumes: channelVolumes(volume),
	}, nil)
}

func (p *PulseBackend) MuteMaster(soundOutput string, mute bool) error {
	name, err := p.outputSink(soundOutput)
	if err != nil {
		return err
	}
	return p.request(&proto.SetSinkMute{
		SinkIndex: paInvalidIndex,
		SinkName:  name,
		Mute:      mute,
	}, nil)
}

// outputSink alsa 或空映射到服务器默认输出，其他值按 sink 名称使用
func (p *PulseBackend) outputSink(soundOutput string) (string, error) {
	if soundOutput != "" && !strings.EqualFold(soundOutput, physicalOutput) {
		return soundOutput, nil
	}
	info, err := p.serverInfo()
	if err != nil {
		return "", err
	}
	return info.DefaultSinkName, nil
}

func (p *PulseBackend) serverInfo() (*proto.GetServerInfoReply, error) {
	var info proto.GetServerInfoReply
	if err := p.request(&proto.GetServerInfo{}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (p *PulseBackend) Close() error {
	p.mu.Lock()
	cancel := p.cancel
	client := p.client
	p.client = nil
	p.ready = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	if client != nil {
		client.Close()
	}
	return nil
}

// channelVolumes 0..100 线性映射到 0..paVolumeNorm，单声道音量作用于全部声道
func channelVolumes(volume int) proto.ChannelVolumes {
	if volume < audio.MinVolume {
		volume = audio.MinVolume
	}
	if volume > audio.MaxVolume {
		volume = audio.MaxVolume
	}
	return proto.ChannelVolumes{uint32(volume) * paVolumeNorm / audio.MaxVolume}
}
