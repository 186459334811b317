package capture

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/devya-app/devya/domain"
)

func TestQueue(t *testing.T) {
	t.Run("should deliver in push order from one goroutine", func(t *testing.T) {
		q := NewQueue(4)
		var got []string
		done := make(chan struct{})
		stop, err := q.Listen(context.Background(), func(f domain.CapturedFragment) {
			got = append(got, f.ID)
			if len(got) == 10 {
				close(done)
			}
		})
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		defer stop()

		for i := 0; i < 10; i++ {
			if err := q.Push(context.Background(), req(strconv.Itoa(i), "")); err != nil {
				t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
			}
		}

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("\nwanted:\n10 fragments\ngot:\n%v", got)
		}
		for i, id := range got {
			if id != strconv.Itoa(i) {
				t.Fatalf("\nwanted:\n%d\ngot:\n%s", i, id)
			}
		}
	})

	t.Run("should serialize pushes from many goroutines", func(t *testing.T) {
		q := NewQueue(2)
		c := New()
		unsubscribe, err := c.Attach(context.Background(), q)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = q.Push(context.Background(), req(strconv.Itoa(i), "GET /"))
			}(i)
		}
		wg.Wait()

		deadline := time.Now().Add(2 * time.Second)
		for len(c.Records()) < 20 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		unsubscribe()

		if got := len(c.Records()); got != 20 {
			t.Fatalf("\nwanted:\n20\ngot:\n%d", got)
		}
	})

	t.Run("should reject pushes after stop", func(t *testing.T) {
		q := NewQueue(1)
		stop, _ := q.Listen(context.Background(), func(domain.CapturedFragment) {})
		stop()
		stop()

		err := q.Push(context.Background(), req("1", ""))
		if !errors.Is(err, ErrQueueClosed) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrQueueClosed, err)
		}
	})

	t.Run("should allow one listener", func(t *testing.T) {
		q := NewQueue(1)
		stop, _ := q.Listen(context.Background(), func(domain.CapturedFragment) {})
		defer stop()

		_, err := q.Listen(context.Background(), func(domain.CapturedFragment) {})
		if !errors.Is(err, ErrAlreadyListening) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrAlreadyListening, err)
		}
	})

	t.Run("should unblock a full push when the context is canceled", func(t *testing.T) {
		q := NewQueue(1)
		_ = q.Push(context.Background(), req("1", ""))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		err := q.Push(ctx, req("2", ""))
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", context.DeadlineExceeded, err)
		}
		if got := q.Len(); got != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", got)
		}
	})

	t.Run("should unblock a full push when closed", func(t *testing.T) {
		q := NewQueue(1)
		_ = q.Push(context.Background(), req("1", ""))

		errs := make(chan error, 1)
		go func() { errs <- q.Push(context.Background(), req("2", "")) }()
		time.Sleep(5 * time.Millisecond)
		q.Close()

		select {
		case err := <-errs:
			if !errors.Is(err, ErrQueueClosed) {
				t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrQueueClosed, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("\nwanted:\npush to return\ngot:\nblocked")
		}
	})

	t.Run("should stop draining when the context is canceled", func(t *testing.T) {
		q := NewQueue(1)
		ctx, cancel := context.WithCancel(context.Background())
		stop, _ := q.Listen(ctx, func(domain.CapturedFragment) {})
		cancel()
		stop()

		err := q.Push(context.Background(), req("1", ""))
		if !errors.Is(err, ErrQueueClosed) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrQueueClosed, err)
		}
	})
}
