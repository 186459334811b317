// Package domain defines the core data structures of the devya frontend and the
// contracts of every collaborator it talks to.
//
// It contains the captured traffic models (CapturedFragment, CapturedRecord, Snapshot),
// the proxy status and rule models mirrored from the backend, and the interfaces for the
// backend command boundary and for local persistence. Implementations live in the ipc
// and db packages, which keeps this package free of transport and storage details.
package domain
