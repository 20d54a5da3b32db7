package bot

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher runs jobs one at a time per user, in submission order. Jobs of
// different users run concurrently.
type Dispatcher struct {
	ctx context.Context
	log *zap.Logger

	mu     sync.Mutex
	queues map[int64][]func(context.Context)
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(ctx context.Context, log *zap.Logger) *Dispatcher {
	return &Dispatcher{ctx: ctx, log: log, queues: make(map[int64][]func(context.Context))}
}

// Submit queues job for userID. It reports false after Close.
func (d *Dispatcher) Submit(userID int64, job func(context.Context)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	q, running := d.queues[userID]
	d.queues[userID] = append(q, job)
	if !running {
		d.wg.Add(1)
		go d.drain(userID)
	}
	return true
}

func (d *Dispatcher) drain(userID int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[userID]
		if len(q) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		job := q[0]
		q[0] = nil
		d.queues[userID] = q[1:]
		d.mu.Unlock()

		d.run(userID, job)
	}
}

func (d *Dispatcher) run(userID int64, job func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("recovered from panic in handler", zap.Int64("user_id", userID), zap.Any("panic", r))
		}
	}()
	job(d.ctx)
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
