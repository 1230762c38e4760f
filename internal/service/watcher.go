package service

import (
	"fmt"
	"sync"

	"github.com/webosce/audiod-pro/internal/track"
)

// ConnWatcher 以连接的服务名作为 owner，该名称的最后一个连接关闭即视为断开
type ConnWatcher struct {
	mu      sync.Mutex
	conns   map[string]int
	watches map[string]map[uint64]func()
	nextID  uint64
}

func NewConnWatcher() *ConnWatcher {
	return &ConnWatcher{
		conns:   make(map[string]int),
		watches: make(map[string]map[uint64]func()),
	}
}

func (w *ConnWatcher) Watch(owner string, onGone func()) (func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conns[owner] == 0 {
		return nil, fmt.Errorf("%s has no open connection: %w", owner, track.ErrNotWatchable)
	}
	w.nextID++
	id := w.nextID
	if w.watches[owner] == nil {
		w.watches[owner] = make(map[uint64]func())
	}
	w.watches[owner][id] = onGone

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.watches[owner], id)
		if len(w.watches[owner]) == 0 {
			delete(w.watches, owner)
		}
	}, nil
}

func (w *ConnWatcher) connected(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conns[name]++
}

// disconnected 回调在锁外执行
func (w *ConnWatcher) disconnected(name string) {
	w.mu.Lock()
	w.conns[name]--
	if w.conns[name] > 0 {
		w.mu.Unlock()
		return
	}
	delete(w.conns, name)
	callbacks := make([]func(), 0, len(w.watches[name]))
	for _, fn := range w.watches[name] {
		callbacks = append(callbacks, fn)
	}
	delete(w.watches, name)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}
