package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devya-app/devya/core"
	"github.com/devya-app/devya/domain"
)

// Separator joins a request with each response appended to its record.
const Separator = domain.RecordSeparator

const (
	// DefaultOrphanTTL is how long a response without a request is kept waiting for it.
	DefaultOrphanTTL = 5 * time.Second
	// DefaultOrphanLimit is the maximum number of buffered orphan responses.
	DefaultOrphanLimit = 256
)

var (
	// ErrAlreadyAttached is returned when Attach is called while another channel is attached.
	ErrAlreadyAttached = errors.New("correlator is already attached to a channel")

	// ErrNilChannel is returned when Attach is called without a channel.
	ErrNilChannel = errors.New("channel is nil")
)

// Channel delivers captured fragments to a single handler, one at a time, in delivery order.
type Channel interface {
	Listen(ctx context.Context, handler func(domain.CapturedFragment)) (stop func(), err error)
}

// Unsubscribe detaches a correlator from its channel. It is idempotent, and once it returns
// no further fragment from that channel reaches the correlator.
type Unsubscribe func()

// Correlator maintains the ordered, correlated view of captured traffic.
type Correlator struct {
	mu      sync.RWMutex
	records []domain.CapturedRecord
	index   map[string]int
	pending *pendingBuffer
	version uint64

	// publishMu orders the delivery of snapshots with the changes that produced them.
	// Observers run while it is held and must not change the correlator.
	publishMu sync.Mutex
	observers *core.Observers[domain.Snapshot]
	onAnomaly func(Anomaly)
	metrics   *Metrics
	now       func() time.Time

	attachMu sync.Mutex
	attached *attachment
}

// New creates an empty Correlator and applies the given options.
func New(options ...func(*Correlator)) *Correlator {
	c := &Correlator{
		index:     make(map[string]int),
		pending:   newPendingBuffer(DefaultOrphanTTL, DefaultOrphanLimit),
		observers: core.NewObservers[domain.Snapshot](),
		now:       time.Now,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// WithOrphanTTL sets how long orphan responses are buffered. Zero disables buffering,
// orphans are then dropped right away with a diagnostic.
func WithOrphanTTL(ttl time.Duration) func(*Correlator) {
	return func(c *Correlator) {
		c.pending.ttl = ttl
	}
}

// WithOrphanLimit bounds the number of buffered orphan responses.
func WithOrphanLimit(limit int) func(*Correlator) {
	return func(c *Correlator) {
		c.pending.limit = limit
	}
}

// WithAnomalyHandler sets the function that receives protocol anomalies. It is called after
// the collection lock is released, from the delivering goroutine, and must not block.
func WithAnomalyHandler(handler func(Anomaly)) func(*Correlator) {
	return func(c *Correlator) {
		c.onAnomaly = handler
	}
}

// WithMetrics records fragment, anomaly and collection size metrics.
func WithMetrics(metrics *Metrics) func(*Correlator) {
	return func(c *Correlator) {
		c.metrics = metrics
	}
}

// WithClock replaces time.Now, used for orphan expiry.
func WithClock(now func() time.Time) func(*Correlator) {
	return func(c *Correlator) {
		c.now = now
	}
}

// attachment guards the delivery from one channel.
type attachment struct {
	mu       sync.Mutex
	detached atomic.Bool
	stop     func()
	once     sync.Once
}

func (a *attachment) deliver(c *Correlator, fragment domain.CapturedFragment) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detached.Load() {
		return
	}
	c.OnFragment(fragment)
}

func (a *attachment) detach() {
	a.once.Do(func() {
		a.detached.Store(true)
		if a.stop != nil {
			a.stop()
		}
		// wait for a delivery that was already running
		a.mu.Lock()
		a.mu.Unlock()
	})
}

// Attach registers the correlator on channel and starts applying the fragments it delivers.
// Unsubscribe must not be called from inside an observer or anomaly handler, since those run
// on the delivering goroutine.
func (c *Correlator) Attach(ctx context.Context, channel Channel) (Unsubscribe, error) {
	if channel == nil {
		return nil, ErrNilChannel
	}

	c.attachMu.Lock()
	defer c.attachMu.Unlock()
	if c.attached != nil {
		return nil, ErrAlreadyAttached
	}

	a := &attachment{}
	stop, err := channel.Listen(ctx, func(fragment domain.CapturedFragment) {
		a.deliver(c, fragment)
	})
	if err != nil {
		return nil, err
	}
	a.stop = stop
	c.attached = a

	return func() {
		a.detach()
		c.attachMu.Lock()
		if c.attached == a {
			c.attached = nil
		}
		c.attachMu.Unlock()
	}, nil
}

// Attached reports whether a channel is currently attached.
func (c *Correlator) Attached() bool {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()
	return c.attached != nil
}

// OnFragment applies a single fragment. It never blocks on I/O and never panics on
// protocol violations, those are reported as anomalies.
func (c *Correlator) OnFragment(fragment domain.CapturedFragment) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	now := c.now()

	c.mu.Lock()
	anomalies := c.expireLocked(now)
	changed, fragmentAnomalies := c.applyLocked(fragment, now)
	// expired orphans change the pending count of the snapshot
	changed = changed || len(anomalies) > 0
	anomalies = append(anomalies, fragmentAnomalies...)
	var snapshot domain.Snapshot
	if changed {
		c.version++
		snapshot = c.snapshotLocked()
	}
	c.mu.Unlock()

	if c.metrics != nil && fragment.Kind.Valid() {
		c.metrics.Fragments.WithLabelValues(string(fragment.Kind)).Inc()
	}
	c.report(anomalies)
	if changed {
		c.publish(snapshot)
	}
}

func (c *Correlator) applyLocked(fragment domain.CapturedFragment, now time.Time) (bool, []Anomaly) {
	if fragment.ID == "" || !fragment.Kind.Valid() {
		return false, []Anomaly{{Kind: AnomalyInvalidFragment, Fragment: fragment, At: now}}
	}

	var anomalies []Anomaly
	switch fragment.Kind {
	case domain.KindRequest:
		if i, ok := c.index[fragment.ID]; ok {
			anomalies = append(anomalies, Anomaly{
				Kind:     AnomalyDuplicateRequest,
				Fragment: fragment,
				Previous: c.records[i].Content,
				At:       now,
			})
			c.records[i].Content = fragment.Content
		} else {
			c.index[fragment.ID] = len(c.records)
			c.records = append(c.records, domain.CapturedRecord{ID: fragment.ID, Content: fragment.Content})
		}

		i := c.index[fragment.ID]
		for _, response := range c.pending.take(fragment.ID) {
			c.records[i].Content += Separator + response.Content
		}
		return true, anomalies

	default:
		if i, ok := c.index[fragment.ID]; ok {
			c.records[i].Content += Separator + fragment.Content
			return true, nil
		}

		if !c.pending.enabled() {
			return false, []Anomaly{{Kind: AnomalyOrphanDropped, Fragment: fragment, At: now}}
		}
		for _, evicted := range c.pending.add(fragment, now) {
			anomalies = append(anomalies, Anomaly{Kind: AnomalyOrphanEvicted, Fragment: evicted, At: now})
		}
		anomalies = append(anomalies, Anomaly{Kind: AnomalyOrphanBuffered, Fragment: fragment, At: now})
		return true, anomalies
	}
}

func (c *Correlator) expireLocked(now time.Time) []Anomaly {
	if c.pending.len() == 0 {
		return nil
	}
	var anomalies []Anomaly
	for _, expired := range c.pending.expire(now) {
		anomalies = append(anomalies, Anomaly{Kind: AnomalyOrphanExpired, Fragment: expired, At: now})
	}
	return anomalies
}

// Sweep drops buffered orphans that outlived the TTL without waiting for the next fragment.
func (c *Correlator) Sweep() {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	now := c.now()

	c.mu.Lock()
	anomalies := c.expireLocked(now)
	var snapshot domain.Snapshot
	if len(anomalies) > 0 {
		c.version++
		snapshot = c.snapshotLocked()
	}
	c.mu.Unlock()

	c.report(anomalies)
	if len(anomalies) > 0 {
		c.publish(snapshot)
	}
}

// Reset clears every record and buffered orphan. Attached channels stay attached.
func (c *Correlator) Reset() {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	c.mu.Lock()
	c.records = nil
	c.index = make(map[string]int)
	c.pending.clear()
	c.version++
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snapshot)
}

// Announce publishes the current snapshot without changing it. Observers receive it in
// order with the snapshots of the changes around it.
func (c *Correlator) Announce() {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	c.publish(c.Snapshot())
}

// Records returns a copy of the records in first-seen order.
func (c *Correlator) Records() []domain.CapturedRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	records := make([]domain.CapturedRecord, len(c.records))
	copy(records, c.records)
	return records
}

// Snapshot returns a versioned copy of the collection.
func (c *Correlator) Snapshot() domain.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Pending returns the number of buffered orphan responses.
func (c *Correlator) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pending.len()
}

// Subscribe registers fn to be called with a fresh snapshot after every change. Snapshots
// reach fn in version order.
func (c *Correlator) Subscribe(fn func(domain.Snapshot)) (cancel func()) {
	return c.observers.Subscribe(fn)
}

func (c *Correlator) snapshotLocked() domain.Snapshot {
	records := make([]domain.CapturedRecord, len(c.records))
	copy(records, c.records)
	return domain.Snapshot{
		Version: c.version,
		Records: records,
		Pending: c.pending.len(),
	}
}

func (c *Correlator) report(anomalies []Anomaly) {
	for _, anomaly := range anomalies {
		if c.metrics != nil {
			c.metrics.Anomalies.WithLabelValues(string(anomaly.Kind)).Inc()
		}
		if c.onAnomaly != nil {
			c.onAnomaly(anomaly)
		}
	}
}

func (c *Correlator) publish(snapshot domain.Snapshot) {
	if c.metrics != nil {
		c.metrics.Records.Set(float64(len(snapshot.Records)))
		c.metrics.Pending.Set(float64(snapshot.Pending))
	}
	c.observers.Notify(snapshot)
}
