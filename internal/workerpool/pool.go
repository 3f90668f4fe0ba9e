package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/lck-sdk/recorder/internal/logging"
)

var log = logging.L("workerpool")

// Task is a unit of work submitted to the pool.
type Task func()

// Pool is a bounded goroutine pool with a fixed-size task queue. A pool with
// a single worker runs tasks strictly in submission order, which is how the
// recorder serializes calls into the native encoder.
type Pool struct {
	name       string
	maxWorkers int
	queue      chan Task
	wg         sync.WaitGroup
	accepting  atomic.Bool
	stopOnce   sync.Once
	closeOnce  sync.Once
	stopChan   chan struct{}
}

// New creates a pool with maxWorkers goroutines and a task queue of queueSize.
func New(name string, maxWorkers, queueSize int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	p := &Pool{
		name:       name,
		maxWorkers: maxWorkers,
		queue:      make(chan Task, queueSize),
		stopChan:   make(chan struct{}),
	}
	p.accepting.Store(true)

	for i := 0; i < maxWorkers; i++ {
		go p.worker()
	}

	log.Debug("worker pool started", "pool", name, "workers", maxWorkers, "queueSize", queueSize)
	return p
}

// Submit enqueues a task. Returns false if the pool is stopped or the queue is full.
// wg.Add is called here (before enqueue) to prevent a race with Drain.
func (p *Pool) Submit(task Task) bool {
	if !p.accepting.Load() {
		return false
	}

	p.wg.Add(1)
	select {
	case p.queue <- task:
		return true
	default:
		p.wg.Done() // undo the Add since task was not enqueued
		log.Warn("worker pool queue full, task rejected", "pool", p.name)
		return false
	}
}

// Go runs fn on the pool and hands its result to done on the worker
// goroutine. A panic inside fn is converted into an error. If the task cannot
// be queued, done is not called and Go returns false.
func (p *Pool) Go(name string, fn func() error, done func(error)) bool {
	return p.Submit(func() {
		err := runGuarded(name, fn)
		if done != nil {
			done(err)
		}
	})
}

func runGuarded(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", "task", name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
	}()
	return fn()
}

// Drain waits for all in-flight and queued tasks to complete, respecting the
// context deadline. New submissions are refused from the moment Drain is
// called. After Drain returns, the queue channel is closed so worker
// goroutines exit.
func (p *Pool) Drain(ctx context.Context) {
	p.accepting.Store(false)
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug("worker pool drained", "pool", p.name)
	case <-ctx.Done():
		log.Warn("worker pool drain timed out", "pool", p.name)
	}

	p.closeOnce.Do(func() {
		close(p.queue)
	})
}

func (p *Pool) worker() {
	for {
		select {
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.runTask(task)
		case <-p.stopChan:
			for {
				select {
				case task, ok := <-p.queue:
					if !ok {
						return
					}
					p.runTask(task)
				default:
					return
				}
			}
		}
	}
}

// runTask executes a single task with panic recovery. wg.Done is called here
// to match the wg.Add in Submit.
func (p *Pool) runTask(task Task) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", "pool", p.name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}
