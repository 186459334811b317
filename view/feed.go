package view

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/devya-app/devya/domain"
)

// Feed hands record snapshots to a running program. Push never blocks, when the program
// lags behind only the newest snapshot is delivered.
type Feed struct {
	mu     sync.Mutex
	latest *domain.Snapshot
	wake   chan struct{}
}

func NewFeed() *Feed {
	return &Feed{wake: make(chan struct{}, 1)}
}

// Push replaces the pending snapshot. It is meant to be registered as a record observer.
func (f *Feed) Push(snapshot domain.Snapshot) {
	f.mu.Lock()
	f.latest = &snapshot
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Run sends every pending snapshot as a RecordsMsg until ctx is done. send is usually
// (*tea.Program).Send.
func (f *Feed) Run(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.wake:
			f.mu.Lock()
			snapshot := f.latest
			f.latest = nil
			f.mu.Unlock()
			if snapshot != nil {
				send(RecordsMsg(*snapshot))
			}
		}
	}
}
