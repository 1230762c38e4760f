package track

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/webosce/audiod-pro/internal/logging"
)

const (
	dbusInterface       = "org.freedesktop.DBus"
	dbusPath            = "/org/freedesktop/DBus"
	nameOwnerChanged    = dbusInterface + ".NameOwnerChanged"
	nameOwnerChangedArg = "NameOwnerChanged"
)

// DBusWatcher 通过 NameOwnerChanged 监视总线名称，新 owner 为空即视为断开
type DBusWatcher struct {
	conn     *dbus.Conn
	hasOwner func(name string) (bool, error)
	signals  chan *dbus.Signal

	mu      sync.Mutex
	watches map[string]map[uint64]func()
	nextID  uint64
	done    chan struct{}
	once    sync.Once
	log     *logging.Logger
}

// NewDBusWatcher 连接 session 或 system 总线并开始接收信号
func NewDBusWatcher(bus string) (*DBusWatcher, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	switch bus {
	case "", "session":
		conn, err = dbus.ConnectSessionBus()
	case "system":
		conn, err = dbus.ConnectSystemBus()
	default:
		return nil, fmt.Errorf("unknown dbus bus %q", bus)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s bus: %w", bus, err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(dbusPath),
		dbus.WithMatchInterface(dbusInterface),
		dbus.WithMatchMember(nameOwnerChangedArg),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("match NameOwnerChanged: %w", err)
	}

	w := newDBusWatcher(conn, func(name string) (bool, error) {
		var has bool
		err := conn.BusObject().Call(dbusInterface+".NameHasOwner", 0, name).Store(&has)
		return has, err
	})
	conn.Signal(w.signals)
	go w.run()
	return w, nil
}

func newDBusWatcher(conn *dbus.Conn, hasOwner func(string) (bool, error)) *DBusWatcher {
	return &DBusWatcher{
		conn:     conn,
		hasOwner: hasOwner,
		signals:  make(chan *dbus.Signal, 32),
		watches:  make(map[string]map[uint64]func()),
		done:     make(chan struct{}),
		log:      logging.Named("dbus-watch"),
	}
}

// Watch 名称当前不在总线上时返回 ErrNotWatchable
func (w *DBusWatcher) Watch(owner string, onGone func()) (func(), error) {
	has, err := w.hasOwner(owner)
	if err != nil {
		return nil, fmt.Errorf("query owner of %s: %w", owner, err)
	}
	if !has {
		return nil, fmt.Errorf("%s has no owner on the bus: %w", owner, ErrNotWatchable)
	}

	w.mu.Lock()
	w.nextID++
	id := w.nextID
	if w.watches[owner] == nil {
		w.watches[owner] = make(map[uint64]func())
	}
	w.watches[owner][id] = onGone
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.watches[owner], id)
		if len(w.watches[owner]) == 0 {
			delete(w.watches, owner)
		}
	}, nil
}

func (w *DBusWatcher) run() {
	for {
		select {
		case <-w.done:
			return
		case sig, ok := <-w.signals:
			if !ok {
				return
			}
			w.handleSignal(sig)
		}
	}
}

func (w *DBusWatcher) handleSignal(sig *dbus.Signal) {
	if sig == nil || sig.Name != nameOwnerChanged || len(sig.Body) != 3 {
		return
	}
	name, ok1 := sig.Body[0].(string)
	newOwner, ok2 := sig.Body[2].(string)
	if !ok1 || !ok2 || newOwner != "" {
		return
	}

	w.mu.Lock()
	callbacks := make([]func(), 0, len(w.watches[name]))
	for _, fn := range w.watches[name] {
		callbacks = append(callbacks, fn)
	}
	delete(w.watches, name)
	w.mu.Unlock()

	if len(callbacks) > 0 {
		w.log.Infof("%s left the bus, notifying %d watchers", name, len(callbacks))
	}
	for _, fn := range callbacks {
		fn()
	}
}

func (w *DBusWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.conn != nil {
			w.conn.RemoveSignal(w.signals)
			if cerr := w.conn.Close(); cerr != nil && !errors.Is(cerr, dbus.ErrClosed) {
				err = cerr
			}
		}
	})
	return err
}
