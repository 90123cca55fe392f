package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/calorieai/calorie-bot/internal/metrics"
)

// Task is a unit of work run by the pool.
type Task func(ctx context.Context)

// Pool runs platform event handlers with bounded concurrency.
type Pool struct {
	slots chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	active int
}

// NewPool creates a pool running at most capacity tasks at once.
func NewPool(capacity int) *Pool {
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool{slots: make(chan struct{}, capacity)}
}

// Submit blocks until a slot is free, then runs task in its own goroutine.
// It returns ctx.Err() if ctx is done before a slot frees up.
func (p *Pool) Submit(ctx context.Context, name string, task Task) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.incrementActive()
	p.wg.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("worker task panicked", "task", name, "panic", r)
			}
			p.decrementActive()
			<-p.slots
			p.wg.Done()
		}()
		task(ctx)
	}()
	return nil
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// ActiveCount returns the number of running tasks.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Capacity returns the maximum number of concurrent tasks.
func (p *Pool) Capacity() int {
	return cap(p.slots)
}

func (p *Pool) incrementActive() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active++
	metrics.WorkerPoolActive.Set(float64(p.active))
}

func (p *Pool) decrementActive() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active > 0 {
		p.active--
	}
	metrics.WorkerPoolActive.Set(float64(p.active))
}
