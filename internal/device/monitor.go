// Package device 轮询音频设备列表，把插拔变化上报给混音器门面
package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/webosce/audiod-pro/internal/audio"
	"github.com/webosce/audiod-pro/internal/logging"
	"github.com/webosce/audiod-pro/internal/mixer"
)

const defaultInterval = time.Second

// Device 一个音频设备的一个方向
type Device struct {
	Name     string `json:"name"`
	Detail   string `json:"detail"`
	IsOutput bool   `json:"isOutput"`
}

func (d Device) key() string {
	if d.IsOutput {
		return "out:" + d.Name
	}
	return "in:" + d.Name
}

// ListFunc 返回当前可见的设备
type ListFunc func() ([]Device, error)

// Reporter *mixer.Mixer 的 Callbacks() 满足该接口
type Reporter interface {
	OnDeviceConnection(r mixer.DeviceReport)
}

// PortAudioDevices 每次重新初始化 PortAudio，否则看不到新插入的设备
func PortAudioDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list portaudio devices: %w", err)
	}
	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		detail := fmt.Sprintf("%.0fHz", info.DefaultSampleRate)
		if info.HostApi != nil {
			detail = info.HostApi.Name + " " + detail
		}
		if info.MaxOutputChannels > 0 {
			devices = append(devices, Device{Name: info.Name, Detail: detail, IsOutput: true})
		}
		if info.MaxInputChannels > 0 {
			devices = append(devices, Device{Name: info.Name, Detail: detail})
		}
	}
	return devices, nil
}

type Options struct {
	List     ListFunc
	Reporter Reporter
	Interval time.Duration
	// Kind 上报时标记的混音器类型
	Kind audio.MixerType
}

type Monitor struct {
	opts Options

	mu    sync.Mutex
	known map[string]Device
	log   *logging.Logger
}

func NewMonitor(opts Options) *Monitor {
	if opts.List == nil {
		opts.List = PortAudioDevices
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	return &Monitor{
		opts:  opts,
		known: make(map[string]Device),
		log:   logging.Named("device"),
	}
}

// Run 立即轮询一次，之后按间隔轮询直到 ctx 结束
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		if err := m.Poll(); err != nil {
			m.log.Warnf("device poll failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll 与上一次结果比较，先报告新连接的设备再报告断开的设备
func (m *Monitor) Poll() error {
	devices, err := m.opts.List()
	if err != nil {
		return err
	}

	current := make(map[string]Device, len(devices))
	for _, d := range devices {
		current[d.key()] = d
	}

	m.mu.Lock()
	var connected, disconnected []Device
	for k, d := range current {
		if _, ok := m.known[k]; !ok {
			connected = append(connected, d)
		}
	}
	for k, d := range m.known {
		if _, ok := current[k]; !ok {
			disconnected = append(disconnected, d)
		}
	}
	m.known = current
	m.mu.Unlock()

	sortDevices(connected)
	sortDevices(disconnected)
	for _, d := range connected {
		m.log.Infof("device connected: %s (output=%t)", d.Name, d.IsOutput)
		m.report(d, true)
	}
	for _, d := range disconnected {
		m.log.Infof("device disconnected: %s (output=%t)", d.Name, d.IsOutput)
		m.report(d, false)
	}
	return nil
}

func (m *Monitor) report(d Device, connected bool) {
	if m.opts.Reporter == nil {
		return
	}
	m.opts.Reporter.OnDeviceConnection(mixer.DeviceReport{
		Kind:      m.opts.Kind,
		Name:      d.Name,
		Detail:    d.Detail,
		Connected: connected,
		IsOutput:  d.IsOutput,
	})
}

// Devices 最近一次轮询看到的设备
func (m *Monitor) Devices() []Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Device, 0, len(m.known))
	for _, d := range m.known {
		out = append(out, d)
	}
	sortDevices(out)
	return out
}

func sortDevices(ds []Device) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].key() < ds[j].key() })
}
