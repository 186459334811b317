package capture

import (
	"reflect"
	"testing"
	"time"
)

func TestPendingBuffer(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("should take fragments in arrival order", func(t *testing.T) {
		p := newPendingBuffer(time.Second, 10)
		p.add(res("1", "a"), start)
		p.add(res("2", "x"), start)
		p.add(res("1", "b"), start)

		got := p.take("1")
		want := []string{"a", "b"}
		if len(got) != 2 || got[0].Content != want[0] || got[1].Content != want[1] {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
		if p.len() != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", p.len())
		}
		if got := p.take("1"); got != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", got)
		}
	})

	t.Run("should expire by first seen time", func(t *testing.T) {
		p := newPendingBuffer(time.Second, 10)
		p.add(res("1", "a"), start)
		p.add(res("2", "b"), start.Add(500*time.Millisecond))
		p.add(res("1", "c"), start.Add(900*time.Millisecond))

		expired := p.expire(start.Add(time.Second))
		if len(expired) != 2 || expired[0].Content != "a" || expired[1].Content != "c" {
			t.Fatalf("\nwanted:\n[a c]\ngot:\n%v", expired)
		}
		if !reflect.DeepEqual(p.order, []string{"2"}) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", []string{"2"}, p.order)
		}
	})

	t.Run("should evict every fragment of the oldest id", func(t *testing.T) {
		p := newPendingBuffer(time.Second, 3)
		p.add(res("1", "a"), start)
		p.add(res("1", "b"), start)
		p.add(res("2", "c"), start)

		evicted := p.add(res("3", "d"), start)
		if len(evicted) != 2 {
			t.Fatalf("\nwanted:\n2 evicted\ngot:\n%v", evicted)
		}
		if p.len() != 2 {
			t.Fatalf("\nwanted:\n2\ngot:\n%d", p.len())
		}
	})

	t.Run("should report disabled buffering", func(t *testing.T) {
		if newPendingBuffer(0, 10).enabled() {
			t.Fatalf("\nwanted:\ndisabled with zero ttl\ngot:\nenabled")
		}
		if newPendingBuffer(time.Second, 0).enabled() {
			t.Fatalf("\nwanted:\ndisabled with zero limit\ngot:\nenabled")
		}
	})

	t.Run("should clear everything", func(t *testing.T) {
		p := newPendingBuffer(time.Second, 10)
		p.add(res("1", "a"), start)
		p.clear()
		if p.len() != 0 || len(p.order) != 0 || len(p.entries) != 0 {
			t.Fatalf("\nwanted:\nempty buffer\ngot:\n%+v", p)
		}
	})
}
