package capture

import (
	"fmt"
	"time"

	"github.com/devya-app/devya/domain"
)

// AnomalyKind classifies protocol violations seen by the correlator.
type AnomalyKind string

const (
	// AnomalyDuplicateRequest is reported when a second request arrives for a known id.
	// The record content is overwritten, the replaced content is kept in Anomaly.Previous.
	AnomalyDuplicateRequest AnomalyKind = "duplicate_request"
	// AnomalyOrphanBuffered is reported when a response arrives before its request and is held back.
	AnomalyOrphanBuffered AnomalyKind = "orphan_buffered"
	// AnomalyOrphanExpired is reported when a buffered response waited longer than the orphan TTL.
	AnomalyOrphanExpired AnomalyKind = "orphan_expired"
	// AnomalyOrphanEvicted is reported when the orphan buffer was full and the oldest entry was dropped.
	AnomalyOrphanEvicted AnomalyKind = "orphan_evicted"
	// AnomalyOrphanDropped is reported when orphan buffering is disabled and a response has no record.
	AnomalyOrphanDropped AnomalyKind = "orphan_dropped"
	// AnomalyInvalidFragment is reported for fragments with an empty id or an unknown kind.
	AnomalyInvalidFragment AnomalyKind = "invalid_fragment"
)

// Anomaly describes a fragment the correlator could not apply as-is.
type Anomaly struct {
	Kind     AnomalyKind
	Fragment domain.CapturedFragment
	Previous string // Replaced content for duplicate requests
	At       time.Time
}

func (a Anomaly) String() string {
	switch a.Kind {
	case AnomalyDuplicateRequest:
		return fmt.Sprintf("duplicate request for %q, replaced %q", a.Fragment.ID, a.Previous)
	case AnomalyOrphanBuffered:
		return fmt.Sprintf("response for %q arrived before its request, buffering", a.Fragment.ID)
	case AnomalyOrphanExpired:
		return fmt.Sprintf("dropping response for %q, no request arrived in time", a.Fragment.ID)
	case AnomalyOrphanEvicted:
		return fmt.Sprintf("dropping response for %q, orphan buffer is full", a.Fragment.ID)
	case AnomalyOrphanDropped:
		return fmt.Sprintf("dropping response for %q, no matching request", a.Fragment.ID)
	default:
		return fmt.Sprintf("invalid fragment %s", a.Fragment)
	}
}
