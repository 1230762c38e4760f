package service

// Peer 一个客户端连接，Push 可以在任意 goroutine 调用
type Peer interface {
	Push(requestID string, payload any) bool
}

type subscription struct {
	peer      Peer
	requestID string
	topic     string
	key       string
}

// Hub 按 topic 和可选 key 保存订阅
// 只在事件循环上使用
type Hub struct {
	subs map[string][]*subscription
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string][]*subscription)}
}

// Add 同一连接同一请求重复订阅时只保留一条
func (h *Hub) Add(topic, key string, peer Peer, requestID string) {
	for _, s := range h.subs[topic] {
		if s.peer == peer && s.requestID == requestID {
			s.key = key
			return
		}
	}
	h.subs[topic] = append(h.subs[topic], &subscription{
		peer:      peer,
		requestID: requestID,
		topic:     topic,
		key:       key,
	})
}

// Cancel 取消一个请求的订阅
func (h *Hub) Cancel(peer Peer, requestID string) bool {
	removed := false
	for topic := range h.subs {
		removed = h.filter(topic, func(s *subscription) bool {
			return s.peer == peer && s.requestID == requestID
		}) || removed
	}
	return removed
}

// Drop 连接断开时移除它的全部订阅
func (h *Hub) Drop(peer Peer) int {
	n := 0
	for topic := range h.subs {
		before := len(h.subs[topic])
		h.filter(topic, func(s *subscription) bool { return s.peer == peer })
		n += before - len(h.subs[topic])
	}
	return n
}

func (h *Hub) filter(topic string, remove func(*subscription) bool) bool {
	list := h.subs[topic]
	kept := list[:0]
	for _, s := range list {
		if !remove(s) {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(list); i++ {
		list[i] = nil
	}
	if len(kept) == 0 {
		delete(h.subs, topic)
	} else {
		h.subs[topic] = kept
	}
	return len(kept) != len(list)
}

// Notify 按订阅的 key 构造 payload 并推送，payload 返回 nil 时跳过该订阅
func (h *Hub) Notify(topic string, payload func(key string) any) int {
	sent := 0
	// 推送过程中允许增删订阅
	subs := append([]*subscription(nil), h.subs[topic]...)
	for _, s := range subs {
		p := payload(s.key)
		if p == nil {
			continue
		}
		if s.peer.Push(s.requestID, p) {
			sent++
		}
	}
	return sent
}

func (h *Hub) Count(topic string) int {
	return len(h.subs[topic])
}
