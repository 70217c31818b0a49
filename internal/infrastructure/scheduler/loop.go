package scheduler

import (
	"context"
	"sync"
	"time"

	"UCGInformation/internal/ports"
)

// LoopScheduler runs a job, waits a fixed delay, and repeats. The delay is
// measured from the end of one run to the start of the next.
type LoopScheduler struct {
	delay time.Duration

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

var _ ports.Scheduler = (*LoopScheduler)(nil)

// NewLoopScheduler builds a scheduler sleeping delay between runs.
func NewLoopScheduler(delay time.Duration) *LoopScheduler {
	return &LoopScheduler{delay: delay}
}

// Start runs job immediately and then after every delay until ctx ends or Stop is called.
func (l *LoopScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	l.stop = stop
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			job(time.Now())

			timer := time.NewTimer(l.delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			case <-stop:
				timer.Stop()
				return
			}
		}
	}()

	return nil
}

// Stop halts the loop and waits for an in-flight job to return.
func (l *LoopScheduler) Stop(ctx context.Context) error {
	l.mu.Lock()
	if l.stop == nil {
		l.mu.Unlock()
		return nil
	}
	close(l.stop)
	l.stop = nil
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
