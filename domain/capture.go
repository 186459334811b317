package domain

import "fmt"

// FragmentKind tells which half of a captured exchange a fragment belongs to.
type FragmentKind string

const (
	// KindRequest marks the fragment that opens a record.
	KindRequest FragmentKind = "request"
	// KindResponse marks a (possibly partial) response chunk for an existing record.
	KindResponse FragmentKind = "response"
)

// Valid reports whether the kind is one the backend is allowed to send.
func (k FragmentKind) Valid() bool {
	return k == KindRequest || k == KindResponse
}

// CapturedFragment is a single push message from the backend proxy.
type CapturedFragment struct {
	ID      string       // Correlation key assigned by the backend, shared by the request and its responses
	Kind    FragmentKind // Request or Response
	Content string       // Payload chunk
}

func (f CapturedFragment) String() string {
	return fmt.Sprintf("%s[%s] %q", f.Kind, f.ID, f.Content)
}

// RecordSeparator joins a request with each response appended to its record.
const RecordSeparator = " -> "

// CapturedRecord is the correlated, UI-facing accumulation of a request and its responses.
type CapturedRecord struct {
	ID      string // Same key as the originating fragments
	Content string // Request content followed by every response, joined by the record separator
}

// Snapshot is a versioned, read-only copy of a record collection.
type Snapshot struct {
	Version uint64           // Increases on every observable change
	Records []CapturedRecord // Records in first-seen order
	Pending int              // Number of buffered orphan response fragments
}
