package notify

import (
	"context"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	"task-collab/common"
	"task-collab/metrics"
)

// Pusher is the fan-out target, implemented by the realtime hub.
type Pusher interface {
	EmitToUser(userID string, ev common.Event)
	Broadcast(ev common.Event)
}

// WorkerPool delivers pushes off the request path. Pushes for one task
// always land on the same worker, so they reach the hub in publish order.
type WorkerPool struct {
	pusher Pusher
	queues []chan Push
	log    *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewWorkerPool(pusher Pusher, numWorker, queueSize int, logger *zap.Logger) *WorkerPool {
	if numWorker < 1 {
		numWorker = 1
	}
	queues := make([]chan Push, numWorker)
	for i := range queues {
		queues[i] = make(chan Push, queueSize)
	}
	return &WorkerPool{pusher: pusher, queues: queues, log: logger}
}

func (p *WorkerPool) Start(ctx context.Context) {
	for i := range p.queues {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop stops accepting pushes, drains what is queued and waits for workers.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Submit queues p without blocking. It reports false when the push was
// dropped because the pool is stopped or the queue is full.
func (p *WorkerPool) Submit(push Push) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		metrics.PushesDropped.WithLabelValues("pool_stopped").Inc()
		return false
	}
	select {
	case p.queues[p.shard(push.TaskID)] <- push:
		return true
	default:
		metrics.PushesDropped.WithLabelValues("queue_full").Inc()
		return false
	}
}

func (p *WorkerPool) shard(key string) int {
	if len(p.queues) == 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.queues)))
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.log.Debug("push worker shutting down", zap.Int("worker", id))
			return
		case push, ok := <-p.queues[id]:
			if !ok {
				return
			}
			p.deliver(push)
		}
	}
}

func (p *WorkerPool) deliver(push Push) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("push delivery panicked", zap.Any("panic", r), zap.String("event", push.Event.EventName()))
		}
	}()
	if len(push.UserIDs) == 0 {
		p.pusher.Broadcast(push.Event)
		return
	}
	for _, userID := range push.UserIDs {
		p.pusher.EmitToUser(userID, push.Event)
	}
}
