package ajax

import (
	"context"
	"sync"
)

// Loop is a cooperative executor of asynchronous request notifications.
//
// Posted tasks are executed one at a time, in the posting order,
// by a goroutine driving the loop: Run, RunUntil or RunPending.
// Request.Wait and WaitAll drive the loop too.
// Tasks must not drive the loop themselves, it would deadlock.
type Loop struct {
	lock  sync.Mutex // for queue
	queue []func()
	wake  chan struct{}
	exec  sync.Mutex // one task at a time
}

func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post schedules the task.
func (l *Loop) Post(task func()) {
	l.lock.Lock()
	l.queue = append(l.queue, task)
	l.lock.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.queue)
}

// RunPending executes queued tasks, including tasks posted meanwhile, and returns their count.
func (l *Loop) RunPending() int {
	l.exec.Lock()
	defer l.exec.Unlock()

	count := 0
	for {
		task := l.pop()
		if task == nil {
			return count
		}
		task()
		count++
	}
}

// Run executes tasks until the context is done.
func (l *Loop) Run(ctx context.Context) error {
	return l.RunUntil(ctx, nil)
}

// RunUntil executes tasks until the done channel is closed or the context is done.
func (l *Loop) RunUntil(ctx context.Context, done <-chan struct{}) error {
	for {
		l.RunPending()
		select {
		case <-done:
			return nil
		default:
		}
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) pop() func() {
	l.lock.Lock()
	defer l.lock.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task
}
