// Package capture correlates the stream of captured fragments pushed by the backend proxy
// into an ordered collection of request/response records.
//
// A Correlator is the only writer of its collection. It is attached to exactly one Channel,
// which delivers fragments one at a time from a single goroutine. When the transport behind
// a channel is multi-threaded, fragments are funneled through a Queue so the reducer still
// sees them in delivery order. Readers observe the collection through copies (Records,
// Snapshot) or change notifications (Subscribe).
package capture
