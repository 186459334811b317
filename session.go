package devya

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devya-app/devya/capture"
	"github.com/devya-app/devya/domain"
	"github.com/google/uuid"
)

// Session is one proxy run. It owns the push channel handed to the backend and the
// correlator that turns the fragments of that channel into records.
type Session struct {
	ID         uuid.UUID
	Port       uint16
	StartedAt  time.Time
	Correlator *capture.Correlator

	channel     domain.PushChannel
	unsubscribe capture.Unsubscribe
	cancelFeed  func()
	stopSweep   chan struct{}
	sweepDone   chan struct{}

	mu      sync.Mutex
	ended   bool
	endedAt time.Time
}

// newSession opens a channel, builds a correlator for it and attaches the two. The backend
// is not told about the channel yet.
func (app *App) newSession(ctx context.Context, port uint16) (*Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating session id : %w", err)
	}

	channel, err := app.Backend.OpenChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening channel : %w", err)
	}

	session := &Session{
		ID:        id,
		Port:      port,
		StartedAt: time.Now(),
		channel:   channel,
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	options := []func(*capture.Correlator){
		capture.WithOrphanTTL(app.Config.OrphanTTL),
		capture.WithOrphanLimit(app.Config.OrphanLimit),
		capture.WithAnomalyHandler(func(anomaly capture.Anomaly) {
			app.onAnomaly(session, anomaly)
		}),
	}
	if app.Metrics != nil {
		options = append(options, capture.WithMetrics(app.Metrics))
	}
	session.Correlator = capture.New(options...)
	session.cancelFeed = session.Correlator.Subscribe(func(snapshot domain.Snapshot) {
		app.forward(session, snapshot)
	})

	// the channel outlives ctx, it is stopped by end
	unsubscribe, err := session.Correlator.Attach(context.WithoutCancel(ctx), channel)
	if err != nil {
		session.cancelFeed()
		_ = channel.Close()
		return nil, fmt.Errorf("attaching correlator : %w", err)
	}
	session.unsubscribe = unsubscribe

	go session.sweep(app.Config.OrphanTTL)
	return session, nil
}

// ChannelID returns the id of the push channel the backend delivers on.
func (s *Session) ChannelID() string {
	return s.channel.ID()
}

// Ended reports whether the session was detached from its channel.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// EndedAt returns the time the session ended, zero while it is running.
func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// end detaches the correlator and closes the channel. It returns false if the session had
// already ended. Records stay readable afterwards.
func (s *Session) end() (bool, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return false, nil
	}
	s.ended = true
	s.endedAt = time.Now()
	s.mu.Unlock()

	s.unsubscribe()
	close(s.stopSweep)
	<-s.sweepDone
	if err := s.channel.Close(); err != nil {
		return true, fmt.Errorf("closing channel %s : %w", s.channel.ID(), err)
	}
	return true, nil
}

// sweep expires orphan responses while no fragments arrive.
func (s *Session) sweep(ttl time.Duration) {
	defer close(s.sweepDone)
	if ttl <= 0 {
		<-s.stopSweep
		return
	}
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Correlator.Sweep()
		case <-s.stopSweep:
			return
		}
	}
}

func (s *Session) archive() *domain.ArchivedSession {
	return &domain.ArchivedSession{
		ID:        s.ID,
		Port:      s.Port,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt(),
		Records:   s.Correlator.Records(),
	}
}
