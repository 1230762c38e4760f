// Package daemon 组装音频守护进程的各个组件并管理其生命周期
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/webosce/audiod-pro/internal/audio"
	"github.com/webosce/audiod-pro/internal/config"
	"github.com/webosce/audiod-pro/internal/device"
	"github.com/webosce/audiod-pro/internal/events"
	"github.com/webosce/audiod-pro/internal/logging"
	"github.com/webosce/audiod-pro/internal/loop"
	"github.com/webosce/audiod-pro/internal/master"
	"github.com/webosce/audiod-pro/internal/mixer"
	"github.com/webosce/audiod-pro/internal/playback"
	"github.com/webosce/audiod-pro/internal/policy"
	"github.com/webosce/audiod-pro/internal/service"
	"github.com/webosce/audiod-pro/internal/track"
)

var (
	ErrAlreadyStarted = errors.New("daemon already started")
	// ErrPlaybackUnavailable 没有可用的 pulse 播放连接
	ErrPlaybackUnavailable = errors.New("sound playback unavailable")
)

// internalCaller 进程内调用使用的调用方名称
const internalCaller = "com.webos.service.audio"

const loopBuffer = 256

// Daemon 持有全部组件，Run 返回后不可再次使用
type Daemon struct {
	cfg *config.AppConfig

	loop   *loop.Loop
	bus    *events.Bus
	mixer  *mixer.Mixer
	pulse  *mixer.PulseBackend
	umi    *mixer.UmiBackend
	table  *policy.Table
	engine *policy.Engine

	tracks  *track.Manager
	conns   *service.ConnWatcher
	dbus    *track.DBusWatcher
	master  *master.Manager
	player  *playback.Manager
	opener  *playback.PulseOpener
	monitor *device.Monitor
	svc     *service.Service
	server  *service.Server

	mu    sync.Mutex
	state *StateMachine
	log   *logging.Logger
}

// New 按配置创建所有组件，不启动任何后台任务
func New(cfg *config.AppConfig) (*Daemon, error) {
	log := logging.Named("daemon")

	table, err := policy.LoadTable(cfg.Policy.Path)
	if err != nil {
		return nil, err
	}
	masterKind, ok := audio.ParseMixerType(strings.ToLower(strings.TrimSpace(cfg.Master.Mixer)))
	if !ok || masterKind == audio.MixerNone {
		return nil, fmt.Errorf("invalid master mixer %q", cfg.Master.Mixer)
	}

	d := &Daemon{
		cfg:   cfg,
		loop:  loop.New(loopBuffer),
		bus:   events.NewBus(),
		table: table,
		conns: service.NewConnWatcher(),
		state: NewStateMachine(),
		log:   log,
	}
	d.mixer = mixer.New(d.bus, d.loop)

	if cfg.Mixer.Pulse.Enabled {
		d.pulse = mixer.NewPulseBackend(mixer.PulseOptions{
			Server:         cfg.Mixer.Pulse.Server,
			AppName:        cfg.Mixer.Pulse.AppName,
			HealthInterval: time.Duration(cfg.Mixer.Pulse.HealthIntervalMs) * time.Millisecond,
		})
		if err := d.mixer.Register(d.pulse); err != nil {
			return nil, err
		}
	}
	if cfg.Mixer.Umi.Enabled {
		d.umi = mixer.NewUmiBackend(mixer.UmiOptions{
			Endpoint:          cfg.Mixer.Umi.Endpoint,
			ReconnectInterval: time.Duration(cfg.Mixer.Umi.ReconnectMs) * time.Millisecond,
		})
		if err := d.mixer.Register(d.umi); err != nil {
			return nil, err
		}
	}

	d.engine = policy.NewEngine(table, d.mixer, d.bus, track.NewVolumeTable())

	var watcher track.Watcher = d.conns
	if cfg.Presence.DBusEnabled {
		w, err := track.NewDBusWatcher(cfg.Presence.Bus)
		if err != nil {
			log.Warnf("dbus presence disabled: %v", err)
		} else {
			d.dbus = w
			watcher = track.MultiWatcher{d.conns, w}
		}
	}
	d.tracks = track.NewManager(track.Options{
		Lookup:    table,
		Watcher:   watcher,
		Bus:       d.bus,
		Poster:    d.loop,
		MaxTracks: cfg.Track.MaxCount,
	})

	d.master = master.NewManager(d.mixer, masterKind, cfg.Master.SoundOutput, d.bus)

	var opener playback.Opener = unavailableOpener{}
	if cfg.Mixer.Pulse.Enabled {
		po, err := playback.NewPulseOpener(cfg.Mixer.Pulse.Server, cfg.Mixer.Pulse.AppName)
		if err != nil {
			log.Warnf("sound playback disabled: %v", err)
		} else {
			d.opener = po
			opener = po
		}
	}
	d.player = playback.NewManager(playback.Options{
		Opener:     opener,
		Bus:        d.bus,
		Poster:     d.loop,
		SoundsDir:  cfg.Playback.SoundsDir,
		MaxStreams: cfg.Playback.MaxStreams,
	})

	if cfg.Device.Enabled {
		d.monitor = device.NewMonitor(device.Options{
			Reporter: d.mixer.Callbacks(),
			Interval: time.Duration(cfg.Device.PollIntervalMs) * time.Millisecond,
			Kind:     masterKind,
		})
	}

	d.svc = service.New(service.Deps{
		Table:    table,
		Engine:   d.engine,
		Tracks:   d.tracks,
		Master:   d.master,
		Playback: d.player,
		Streams:  d.mixer,
		Bus:      d.bus,
	})
	d.server = service.NewServer(d.svc, d.loop, d.conns, service.ServerOptions{
		Listen: cfg.Service.Listen,
		Path:   cfg.Service.Path,
	})
	return d, nil
}

// State 当前生命周期状态
func (d *Daemon) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Current()
}

func (d *Daemon) transition(to State) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	from := d.state.Current()
	if !d.state.Transition(to) {
		return false
	}
	d.log.Infof("state %s -> %s", from, to)
	return true
}

// Run 启动全部组件并阻塞到 ctx 结束或某个任务失败
func (d *Daemon) Run(ctx context.Context) error {
	if !d.transition(StateStarting) {
		return ErrAlreadyStarted
	}
	if err := d.start(ctx); err != nil {
		d.transition(StateStopping)
		err = multierr.Append(err, d.shutdown())
		d.transition(StateStopped)
		return err
	}
	d.transition(StateRunning)

	g, gctx := errgroup.WithContext(ctx)
	if d.monitor != nil {
		g.Go(func() error { return d.monitor.Run(gctx) })
	}
	g.Go(func() error { return d.server.Run(gctx) })
	err := g.Wait()

	d.transition(StateStopping)
	err = multierr.Append(err, d.shutdown())
	d.transition(StateStopped)
	return err
}

// start 先启动事件循环，后端回调依赖它
func (d *Daemon) start(ctx context.Context) error {
	if err := d.loop.Start(); err != nil {
		return fmt.Errorf("start event loop: %w", err)
	}
	err := d.loop.Do(ctx, func() error {
		d.engine.Start()
		d.master.Start()
		d.svc.Start()
		return nil
	})
	if err != nil {
		return fmt.Errorf("start components: %w", err)
	}

	if d.pulse != nil {
		if err := d.pulse.Start(ctx); err != nil {
			return fmt.Errorf("start pulse backend: %w", err)
		}
	}
	if d.umi != nil {
		if err := d.umi.Start(ctx); err != nil {
			return fmt.Errorf("start umi backend: %w", err)
		}
	}
	return nil
}

// shutdown 先停依赖方再停被依赖方，最后停事件循环
func (d *Daemon) shutdown() error {
	var errs error
	err := d.loop.Do(context.Background(), func() error {
		d.player.Close()
		d.tracks.Close()
		d.svc.Stop()
		d.master.Stop()
		d.engine.Stop()
		return nil
	})
	if err != nil && !errors.Is(err, loop.ErrStopped) {
		errs = multierr.Append(errs, fmt.Errorf("stop components: %w", err))
	}

	errs = multierr.Append(errs, d.mixer.Close())
	if d.dbus != nil {
		errs = multierr.Append(errs, d.dbus.Close())
	}
	if d.opener != nil {
		d.opener.Close()
	}
	errs = multierr.Append(errs, d.loop.Stop())
	return errs
}

// Call 在进程内调用一个方法，不经过 websocket
func (d *Daemon) Call(ctx context.Context, method string, params json.RawMessage) (map[string]any, error) {
	var reply map[string]any
	err := d.loop.Do(ctx, func() error {
		reply = d.svc.Handle(nil, "", internalCaller, method, params)
		return nil
	})
	return reply, err
}

type unavailableOpener struct{}

func (unavailableOpener) Open(playback.Request, io.Reader) (playback.Stream, error) {
	return nil, ErrPlaybackUnavailable
}
