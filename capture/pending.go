package capture

import (
	"time"

	"github.com/devya-app/devya/domain"
)

// pendingBuffer holds response fragments whose request has not been seen yet.
// Entries are kept per id in arrival order, ids are evicted oldest first.
type pendingBuffer struct {
	ttl     time.Duration
	limit   int
	entries map[string]*pendingEntry
	order   []string
	size    int
}

type pendingEntry struct {
	firstSeen time.Time
	fragments []domain.CapturedFragment
}

func newPendingBuffer(ttl time.Duration, limit int) *pendingBuffer {
	return &pendingBuffer{
		ttl:     ttl,
		limit:   limit,
		entries: make(map[string]*pendingEntry),
	}
}

// enabled reports whether orphans are buffered at all.
func (p *pendingBuffer) enabled() bool {
	return p.ttl > 0 && p.limit > 0
}

// add buffers fragment and returns the fragments evicted to make room for it.
func (p *pendingBuffer) add(fragment domain.CapturedFragment, now time.Time) (evicted []domain.CapturedFragment) {
	for p.size >= p.limit && len(p.order) > 0 {
		evicted = append(evicted, p.removeID(p.order[0])...)
	}

	entry, ok := p.entries[fragment.ID]
	if !ok {
		entry = &pendingEntry{firstSeen: now}
		p.entries[fragment.ID] = entry
		p.order = append(p.order, fragment.ID)
	}
	entry.fragments = append(entry.fragments, fragment)
	p.size++
	return evicted
}

// take removes and returns the fragments buffered for id.
func (p *pendingBuffer) take(id string) []domain.CapturedFragment {
	if _, ok := p.entries[id]; !ok {
		return nil
	}
	return p.removeID(id)
}

// expire removes and returns every fragment whose id has waited longer than the ttl.
func (p *pendingBuffer) expire(now time.Time) (expired []domain.CapturedFragment) {
	for len(p.order) > 0 {
		id := p.order[0]
		if now.Sub(p.entries[id].firstSeen) < p.ttl {
			break
		}
		expired = append(expired, p.removeID(id)...)
	}
	return expired
}

func (p *pendingBuffer) removeID(id string) []domain.CapturedFragment {
	entry := p.entries[id]
	delete(p.entries, id)
	for i, pendingID := range p.order {
		if pendingID == id {
			p.order = append(p.order[:i:i], p.order[i+1:]...)
			break
		}
	}
	p.size -= len(entry.fragments)
	return entry.fragments
}

func (p *pendingBuffer) len() int {
	return p.size
}

func (p *pendingBuffer) clear() {
	p.entries = make(map[string]*pendingEntry)
	p.order = nil
	p.size = 0
}
