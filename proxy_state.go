package devya

import (
	"sync"

	"github.com/devya-app/devya/core"
	"github.com/devya-app/devya/domain"
)

// ProxyState is the frontend's copy of the backend proxy status. It is refreshed after
// every start and stop and on backend lifecycle events.
type ProxyState struct {
	mu        sync.RWMutex
	status    domain.ProxyStatus
	observers *core.Observers[domain.ProxyStatus]
}

// NewProxyState returns a state with no running proxy.
func NewProxyState() *ProxyState {
	return &ProxyState{observers: core.NewObservers[domain.ProxyStatus]()}
}

// IsProxyOn reports whether at least one proxy server is running.
func (s *ProxyState) IsProxyOn() bool {
	return s.RunningCount() > 0
}

// Port returns the port of the most recently started proxy.
func (s *ProxyState) Port() (uint16, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status.Port == nil {
		return 0, false
	}
	return *s.status.Port, true
}

func (s *ProxyState) RunningCount() uint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.RunningCount
}

// Status returns a copy of the last known status.
func (s *ProxyState) Status() domain.ProxyStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyStatus(s.status)
}

// Update replaces the status and notifies subscribers.
func (s *ProxyState) Update(status domain.ProxyStatus) {
	status = copyStatus(status)
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.observers.Notify(copyStatus(status))
}

// Subscribe registers fn to be called after every Update.
func (s *ProxyState) Subscribe(fn func(domain.ProxyStatus)) (cancel func()) {
	return s.observers.Subscribe(fn)
}

func copyStatus(status domain.ProxyStatus) domain.ProxyStatus {
	if status.Port != nil {
		port := *status.Port
		status.Port = &port
	}
	return status
}
