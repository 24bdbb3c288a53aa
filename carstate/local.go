package carstate

import (
	"context"
	"sync"
	"time"
)

// Local is the in-process segment owned by the car.
type Local struct {
	mtx   sync.Mutex
	state CarState
	gen   uint64
	wake  chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func NewLocal(initial CarState) *Local {
	return &Local{
		state: initial,
		wake:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (l *Local) Do(ctx context.Context, fn func(s *CarState) bool) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if l.isClosed() {
		return l.gen, ErrClosed
	}
	s := l.state
	if fn(&s) {
		l.state = s
		l.broadcastLocked()
	}
	return l.gen, nil
}

func (l *Local) Wait(ctx context.Context, gen uint64, timeout time.Duration) (uint64, error) {
	l.mtx.Lock()
	if l.gen != gen {
		g := l.gen
		l.mtx.Unlock()
		return g, nil
	}
	wake := l.wake
	l.mtx.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-wake:
	case <-expired:
	case <-l.done:
		return gen, ErrClosed
	case <-ctx.Done():
		return gen, ctx.Err()
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.gen, nil
}

// Close wakes all waiters with ErrClosed.
func (l *Local) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	return nil
}

func (l *Local) broadcastLocked() {
	l.gen++
	close(l.wake)
	l.wake = make(chan struct{})
}

func (l *Local) isClosed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
