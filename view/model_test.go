package view

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/devya-app/devya/domain"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("\nwanted:\nModel\ngot:\n%T", next)
	}
	return model, cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var testSnapshot = domain.Snapshot{
	Version: 3,
	Records: []domain.CapturedRecord{
		{ID: "1", Content: "https://example.com/api -> HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n{\"ok\":true}"},
		{ID: "2", Content: "https://ads.example.net/pixel"},
	},
	Pending: 1,
}

func TestModel_Records(t *testing.T) {
	t.Run("should show one row per record", func(t *testing.T) {
		m := New()
		m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})
		m, _ = update(t, m, RecordsMsg(testSnapshot))

		if got := len(m.Visible()); got != 2 {
			t.Fatalf("\nwanted:\n2\ngot:\n%d", got)
		}
		view := m.View()
		for _, want := range []string{"example.com", "ads.example.net", "2/2 records", "1 waiting"} {
			if !strings.Contains(view, want) {
				t.Fatalf("\nwanted:\nview containing %q\ngot:\n%s", want, view)
			}
		}
	})

	t.Run("should apply the filter", func(t *testing.T) {
		m := New(WithFilter(func(records []domain.CapturedRecord) []domain.CapturedRecord {
			return records[:1]
		}))
		m, _ = update(t, m, RecordsMsg(testSnapshot))

		if got := len(m.Visible()); got != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", got)
		}
		if !strings.Contains(m.View(), "1/2 records") {
			t.Fatalf("\nwanted:\n1/2 records\ngot:\n%s", m.View())
		}
	})

	t.Run("should keep the cursor in range when records go away", func(t *testing.T) {
		m := New()
		m, _ = update(t, m, RecordsMsg(testSnapshot))
		m, _ = update(t, m, key("down"))
		if got, _ := m.Selected(); got.ID != "2" {
			t.Fatalf("\nwanted:\n2\ngot:\n%s", got.ID)
		}

		m, _ = update(t, m, RecordsMsg(domain.Snapshot{Version: 4, Records: testSnapshot.Records[:1]}))
		if got, ok := m.Selected(); !ok || got.ID != "1" {
			t.Fatalf("\nwanted:\n1\ngot:\n%v %v", got, ok)
		}

		m, _ = update(t, m, RecordsMsg(domain.Snapshot{Version: 5}))
		if _, ok := m.Selected(); ok {
			t.Fatalf("\nwanted:\nno selection\ngot:\nselection")
		}
	})
}

func TestModel_Detail(t *testing.T) {
	t.Run("should show the prettified parts of the selected record", func(t *testing.T) {
		m := New()
		m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
		m, _ = update(t, m, RecordsMsg(testSnapshot))
		m, _ = update(t, m, key("enter"))

		view := m.View()
		for _, want := range []string{"request", "response 1", `"ok": true`} {
			if !strings.Contains(view, want) {
				t.Fatalf("\nwanted:\nview containing %q\ngot:\n%s", want, view)
			}
		}

		m, _ = update(t, m, key("esc"))
		if strings.Contains(m.View(), "response 1") {
			t.Fatalf("\nwanted:\ndetail closed\ngot:\n%s", m.View())
		}
	})
}

func TestModel_Keys(t *testing.T) {
	t.Run("should reset through the reset function", func(t *testing.T) {
		called := false
		m := New(WithReset(func() error {
			called = true
			return nil
		}))
		m, cmd := update(t, m, key("r"))
		if cmd == nil {
			t.Fatalf("\nwanted:\ncmd\ngot:\nnil")
		}
		msg := cmd()
		if !called {
			t.Fatalf("\nwanted:\nreset called\ngot:\nnot called")
		}
		m, _ = update(t, m, msg)
		if !strings.Contains(m.View(), "records cleared") {
			t.Fatalf("\nwanted:\nrecords cleared\ngot:\n%s", m.View())
		}
	})

	t.Run("should show a failed reset as a notice", func(t *testing.T) {
		m := New(WithReset(func() error { return errors.New("no proxy session") }))
		m, cmd := update(t, m, key("r"))
		m, _ = update(t, m, cmd())
		if !strings.Contains(m.View(), "no proxy session") {
			t.Fatalf("\nwanted:\nno proxy session\ngot:\n%s", m.View())
		}
	})

	t.Run("should quit", func(t *testing.T) {
		m := New()
		m, cmd := update(t, m, key("q"))
		if cmd == nil {
			t.Fatalf("\nwanted:\ntea.Quit\ngot:\nnil")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("\nwanted:\ntea.QuitMsg\ngot:\n%T", cmd())
		}
		if m.View() != "" {
			t.Fatalf("\nwanted:\nempty view\ngot:\n%s", m.View())
		}
	})
}

func TestModel_Status(t *testing.T) {
	t.Run("should show the proxy port", func(t *testing.T) {
		m := New()
		if !strings.Contains(m.View(), "proxy off") {
			t.Fatalf("\nwanted:\nproxy off\ngot:\n%s", m.View())
		}
		port := uint16(7777)
		m, _ = update(t, m, StatusMsg(domain.ProxyStatus{Port: &port, RunningCount: 1}))
		if !strings.Contains(m.View(), "proxy on :7777") {
			t.Fatalf("\nwanted:\nproxy on :7777\ngot:\n%s", m.View())
		}
	})
}

func TestFeed(t *testing.T) {
	t.Run("should deliver the newest snapshot", func(t *testing.T) {
		feed := NewFeed()
		for v := uint64(1); v <= 5; v++ {
			feed.Push(domain.Snapshot{Version: v})
		}

		var (
			mu       sync.Mutex
			received []uint64
		)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			feed.Run(ctx, func(msg tea.Msg) {
				mu.Lock()
				defer mu.Unlock()
				received = append(received, RecordsMsg(msg.(RecordsMsg)).Version)
			})
		}()

		deadline := time.Now().Add(2 * time.Second)
		for {
			mu.Lock()
			n := len(received)
			mu.Unlock()
			if n > 0 || time.Now().After(deadline) {
				break
			}
			time.Sleep(time.Millisecond)
		}
		cancel()
		<-done

		mu.Lock()
		defer mu.Unlock()
		if len(received) != 1 || received[0] != 5 {
			t.Fatalf("\nwanted:\n[5]\ngot:\n%v", received)
		}
	})

	t.Run("should never block the pusher", func(t *testing.T) {
		feed := NewFeed()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for v := uint64(0); v < 1000; v++ {
				feed.Push(domain.Snapshot{Version: v})
			}
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("\nwanted:\npushes done\ngot:\nblocked")
		}
	})
}
