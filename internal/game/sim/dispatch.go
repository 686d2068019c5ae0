package sim

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/palemoky/battle-tanks/internal/logger"
)

type job struct {
	name string
	fn   func(ctx context.Context)
}

// Dispatcher 有界队列 + 固定数量的 worker，用于回写持久化存储
// 队列满或已关闭时直接丢弃任务，调用方永远不会被阻塞
type Dispatcher struct {
	queue   chan job
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher 创建并启动调度器
func NewDispatcher(workers, queueSize int, timeout time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		queue:   make(chan job, queueSize),
		timeout: timeout,
	}
	d.wg.Add(workers)
	for range workers {
		go d.worker()
	}
	return d
}

// Go 提交任务，成功入队返回 true
func (d *Dispatcher) Go(name string, fn func(ctx context.Context)) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		log.Printf("⚠️ 调度器已关闭，丢弃任务 %s", name)
		return false
	}
	select {
	case d.queue <- job{name: name, fn: fn}:
		return true
	default:
		log.Printf("⚠️ 任务队列已满，丢弃任务 %s", name)
		return false
	}
}

// Pending 队列中等待执行的任务数
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close 停止接收新任务，并等待已入队的任务执行完
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.run(j)
	}
}

func (d *Dispatcher) run(j job) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ 任务 %s 异常", j.name)
			logger.LogPanic(r)
		}
	}()
	j.fn(ctx)
}
