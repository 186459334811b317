package devya

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devya-app/devya/capture"
	"github.com/devya-app/devya/domain"
	"github.com/google/uuid"
)

// fakeChannel is a push channel backed by a capture queue.
type fakeChannel struct {
	*capture.Queue
	id     string
	closed atomic.Bool
}

func (c *fakeChannel) ID() string {
	return c.id
}

func (c *fakeChannel) Close() error {
	c.closed.Store(true)
	c.Queue.Close()
	return nil
}

type fakeBackend struct {
	mu          sync.Mutex
	channels    map[string]*fakeChannel
	active      *fakeChannel
	port        *uint16
	running     uint
	startCalls  int
	stopCalls   int
	startErr    error
	stopErr     error
	statusErr   error
	caInstalled bool
	ruleFiles   map[int]string
	onEvent     func(domain.BackendEvent)
}

var _ domain.Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		channels:  make(map[string]*fakeChannel),
		ruleFiles: make(map[int]string),
	}
}

func (f *fakeBackend) CheckCAInstalled(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.caInstalled, nil
}

func (f *fakeBackend) InstallCA(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.caInstalled = true
	return nil
}

func (f *fakeBackend) OpenChannel(ctx context.Context) (domain.PushChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := &fakeChannel{Queue: capture.NewQueue(16), id: uuid.NewString()}
	f.channels[ch.id] = ch
	return ch, nil
}

func (f *fakeBackend) StartProxy(ctx context.Context, port uint16, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return f.startErr
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return errors.New("unknown channel")
	}
	f.active = ch
	f.port = &port
	f.running = 1
	return nil
}

func (f *fakeBackend) StopProxy(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if f.stopErr != nil {
		return f.stopErr
	}
	f.active = nil
	f.running = 0
	return nil
}

func (f *fakeBackend) CheckProxyRunning(ctx context.Context) (domain.ProxyStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return domain.ProxyStatus{}, f.statusErr
	}
	return domain.ProxyStatus{Port: f.port, RunningCount: f.running}, nil
}

func (f *fakeBackend) CheckPort(ctx context.Context, port uint16) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running == 0 || f.port == nil || *f.port != port, nil
}

func (f *fakeBackend) ListenEvents(ctx context.Context, handler func(domain.BackendEvent)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onEvent = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.onEvent = nil
	}, nil
}

func (f *fakeBackend) GetRuleDirs(ctx context.Context) ([]*domain.RuleDir, error) {
	return []*domain.RuleDir{{ID: 1, Name: "root"}}, nil
}

func (f *fakeBackend) UpsertRuleDir(ctx context.Context, dir domain.RuleDirInput) (int, error) {
	if dir.ID != nil {
		return *dir.ID, nil
	}
	return 2, nil
}

func (f *fakeBackend) GetRuleFiles(ctx context.Context) ([]*domain.RuleFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	files := make([]*domain.RuleFile, 0, len(f.ruleFiles))
	for id := range f.ruleFiles {
		files = append(files, &domain.RuleFile{ID: id})
	}
	return files, nil
}

func (f *fakeBackend) UpsertRuleFile(ctx context.Context, file domain.RuleFileInput) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := len(f.ruleFiles) + 1
	f.ruleFiles[id] = ""
	return id, nil
}

func (f *fakeBackend) DeleteRuleFile(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ruleFiles, id)
	return nil
}

func (f *fakeBackend) GetRuleFileContent(ctx context.Context, id int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.ruleFiles[id]
	if !ok {
		return "", errors.New("rule file not found")
	}
	return content, nil
}

func (f *fakeBackend) UpdateRuleFileContent(ctx context.Context, id int, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ruleFiles[id] = content
	return nil
}

// push delivers a fragment on the channel of the running proxy.
func (f *fakeBackend) push(t *testing.T, id string, kind domain.FragmentKind, content string) {
	t.Helper()
	f.mu.Lock()
	ch := f.active
	f.mu.Unlock()
	if ch == nil {
		t.Fatalf("\nwanted:\nrunning proxy\ngot:\nnil")
	}
	err := ch.Push(context.Background(), domain.CapturedFragment{ID: id, Kind: kind, Content: content})
	if err != nil {
		t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
	}
}

func (f *fakeBackend) activeChannel() *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// emit delivers a lifecycle event and stops the proxy first for stop events.
func (f *fakeBackend) emit(event domain.BackendEvent) {
	f.mu.Lock()
	if event == domain.EventProxyStopped {
		f.active = nil
		f.running = 0
	}
	handler := f.onEvent
	f.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T, options ...func(*App) error) (*App, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	options = append([]func(*App) error{WithBackend(backend), WithLogger(discardLogger())}, options...)
	app, err := New(options...)
	if err != nil {
		t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
	}
	t.Cleanup(func() {
		app.Close()
	})
	return app, backend
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("\nwanted:\n%s\ngot:\ntimeout", what)
		}
		time.Sleep(time.Millisecond)
	}
}
