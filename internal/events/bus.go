package events

import (
	"sync"
)

// Handler 事件处理器
type Handler func(event Event)

// SubscriptionID 订阅标识，用于取消订阅
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Bus 事件总线
// Publish 按订阅顺序同步调用处理器，调用方应位于事件循环上
type Bus struct {
	subscribers map[Kind][]subscription
	nextID      SubscriptionID
	mu          sync.RWMutex
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Kind][]subscription),
	}
}

// Publish 发布事件
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[event.Kind()]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(event)
	}
}

// Subscribe 订阅事件
func (b *Bus) Subscribe(kind Kind, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subscribers[kind] = append(b.subscribers[kind], subscription{id: id, handler: handler})
	return id
}

// Unsubscribe 取消订阅
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for kind, subs := range b.subscribers {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			b.subscribers[kind] = append(subs[:i:i], subs[i+1:]...)
			return true
		}
	}
	return false
}
