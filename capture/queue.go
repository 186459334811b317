package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/devya-app/devya/domain"
)

var (
	// ErrQueueClosed is returned by Push once the queue was stopped.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrAlreadyListening is returned when Listen is called a second time.
	ErrAlreadyListening = errors.New("queue already has a listener")
)

// Queue funnels fragments pushed from any number of goroutines to a single handler.
// The handler is called from exactly one goroutine in push order. Push blocks while
// the queue is full, so back-pressure lands on the transport and never inside the handler.
type Queue struct {
	items chan domain.CapturedFragment
	quit  chan struct{}
	done  chan struct{}

	mu        sync.Mutex
	listening bool
	closeOnce sync.Once
}

// NewQueue creates a queue holding up to size fragments. A size below one is raised to one.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		items: make(chan domain.CapturedFragment, size),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Push enqueues fragment, waiting for room while the queue is full.
func (q *Queue) Push(ctx context.Context, fragment domain.CapturedFragment) error {
	select {
	case <-q.quit:
		return ErrQueueClosed
	default:
	}

	select {
	case q.items <- fragment:
		return nil
	case <-q.quit:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Listen starts the drain goroutine. The returned stop function closes the queue and
// waits for the goroutine to return, it can be called more than once.
// Fragments still queued when the queue is stopped are discarded.
func (q *Queue) Listen(ctx context.Context, handler func(domain.CapturedFragment)) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.listening {
		return nil, ErrAlreadyListening
	}
	select {
	case <-q.quit:
		return nil, ErrQueueClosed
	default:
	}
	q.listening = true

	go q.drain(ctx, handler)

	return func() {
		q.Close()
		<-q.done
	}, nil
}

func (q *Queue) drain(ctx context.Context, handler func(domain.CapturedFragment)) {
	defer close(q.done)
	for {
		select {
		case <-q.quit:
			return
		case <-ctx.Done():
			q.Close()
			return
		case fragment := <-q.items:
			// quit wins over queued items
			select {
			case <-q.quit:
				return
			default:
			}
			handler(fragment)
		}
	}
}

// Close stops the queue without waiting for the drain goroutine.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.quit)
	})
}

// Len returns the number of queued fragments.
func (q *Queue) Len() int {
	return len(q.items)
}
