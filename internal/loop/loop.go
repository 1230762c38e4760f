package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/webosce/audiod-pro/internal/logging"
)

var (
	ErrStopped        = errors.New("event loop stopped")
	ErrAlreadyRunning = errors.New("event loop is already running")
)

// Poster 向事件循环投递操作
type Poster interface {
	Post(fn func()) bool
}

type operation struct {
	fn   func() error
	done chan error
}

// Loop 单 goroutine 事件循环，策略/混音器/track 状态只在这里修改
type Loop struct {
	mu         sync.RWMutex
	isRunning  bool
	operations chan operation
	stopChan   chan struct{}
	doneChan   chan struct{}

	// overflow 缓冲满时的后备队列，其中的操作都晚于 operations 里的
	overflowMu sync.Mutex
	overflow   []operation

	lastOperationDuration time.Duration
	slowThreshold         time.Duration
	log                   *logging.Logger
}

func New(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	return &Loop{
		operations:    make(chan operation, buffer),
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
		slowThreshold: 50 * time.Millisecond,
		log:           logging.Named("loop"),
	}
}

// Start 启动分发 goroutine
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.isRunning {
		return ErrAlreadyRunning
	}
	select {
	case <-l.stopChan:
		return ErrStopped
	default:
	}

	l.isRunning = true
	go l.dispatchLoop()
	return nil
}

// Stop 停止循环并等待当前操作完成，已排队但未执行的操作被丢弃
func (l *Loop) Stop() error {
	l.mu.Lock()
	if !l.isRunning {
		l.mu.Unlock()
		return nil
	}
	close(l.stopChan)
	l.isRunning = false
	l.mu.Unlock()

	<-l.doneChan
	return nil
}

// Run 启动循环，阻塞到 ctx 结束
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return l.Stop()
}

func (l *Loop) IsRunning() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isRunning
}

// LastOperationDuration 最近一次操作耗时
func (l *Loop) LastOperationDuration() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastOperationDuration
}

// Post 异步投递，循环已停止时返回 false
// 不会阻塞，可以在循环内部调用；不要在循环内部调用 Do，会死锁
func (l *Loop) Post(fn func()) bool {
	return l.enqueue(operation{fn: func() error { fn(); return nil }})
}

// Do 投递并等待操作完成
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	op := operation{fn: fn, done: make(chan error, 1)}
	if !l.enqueue(op) {
		return ErrStopped
	}

	select {
	case err := <-op.done:
		return err
	case <-l.stopChan:
		// 操作可能已经执行完
		select {
		case err := <-op.done:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue 缓冲满或后备队列非空时追加到后备队列，保持先进先出
func (l *Loop) enqueue(op operation) bool {
	select {
	case <-l.stopChan:
		return false
	default:
	}

	l.overflowMu.Lock()
	defer l.overflowMu.Unlock()
	if len(l.overflow) == 0 {
		select {
		case l.operations <- op:
			return true
		default:
			l.log.Warnf("operation buffer full (%d), queueing overflow", cap(l.operations))
		}
	}
	l.overflow = append(l.overflow, op)
	return true
}

// refill 把后备队列搬回缓冲，只在分发 goroutine 上调用
func (l *Loop) refill() {
	l.overflowMu.Lock()
	defer l.overflowMu.Unlock()
	for len(l.overflow) > 0 {
		select {
		case l.operations <- l.overflow[0]:
			l.overflow[0] = operation{}
			l.overflow = l.overflow[1:]
		default:
			return
		}
	}
	l.overflow = nil
}

func (l *Loop) dispatchLoop() {
	defer close(l.doneChan)
	for {
		select {
		case <-l.stopChan:
			return
		case op := <-l.operations:
			logging.NextEvent()
			start := time.Now()
			err := l.execute(op)
			duration := time.Since(start)

			l.mu.Lock()
			l.lastOperationDuration = duration
			l.mu.Unlock()
			if duration > l.slowThreshold {
				l.log.Warnf("operation took %v, target is under %v", duration, l.slowThreshold)
			}

			if op.done != nil {
				op.done <- err
			}
			l.refill()
		}
	}
}

func (l *Loop) execute(op operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorf("operation panicked: %v", r)
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return op.fn()
}
