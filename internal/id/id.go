// Package id generates the opaque, lexicographically-sortable identifiers
// used for every externally visible protocol object (message, session,
// participant, fork, tool-use): ULIDs, 48-bit millisecond timestamp plus
// 80 random bits, Crockford base32.
//
// Internal correlation ids that never reach the wire (subprocess run ids,
// bridge request ids) use github.com/google/uuid instead, keeping wire
// ids and internal bookkeeping ids visually distinct.
package id

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh ULID string for the current instant. Safe for
// concurrent use; the monotonic entropy source guarantees strictly
// increasing ids for calls within the same millisecond.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewMessageID, NewSessionID, NewParticipantID, NewForkID, and
// NewToolUseID are all ULIDs; every externally visible id has the same
// shape, so these are aliases kept distinct only for call-site
// readability.
func NewMessageID() string     { return New() }
func NewSessionID() string     { return New() }
func NewParticipantID() string { return New() }
func NewForkID() string        { return New() }
func NewToolUseID() string     { return New() }
func NewProposalID() string    { return New() }

// NewCorrelationID returns a UUIDv4 for internal, non-wire bookkeeping
// (subprocess run ids, bridge proxy request ids).
func NewCorrelationID() string {
	return uuid.New().String()
}
