// Package ident issues the time-prefixed sortable identifiers used for
// pages, assets and lock tokens, and provides the single wall-clock reading
// a transaction stamps every table with.
package ident

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wikora/wikora/internal/types"
)

// Generator issues ULIDs with monotonic entropy. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	// now is swappable in tests.
	now func() time.Time
}

// New returns a generator reading the system clock.
func New() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// NewAt returns a generator with a fixed clock, for tests.
func NewAt(now func() time.Time) *Generator {
	g := New()
	g.now = now
	return g
}

// NewID issues a fresh identifier whose time prefix is the current
// millisecond. Identifiers issued by one generator sort in issue order.
func (g *Generator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
	return id.String()
}

// Now returns the wall clock. A transaction reads this once and reuses the
// value for every row it touches so that timestamps agree across tables.
func (g *Generator) Now() time.Time { return g.now() }

// Stamp returns the current time in the persisted layout.
func (g *Generator) Stamp() string { return types.Stamp(g.Now()) }

// IDTime extracts the issue time from an identifier's prefix. Lock expiry
// derives from this, never from a separately stored issue time.
func IDTime(id string) (time.Time, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, types.Wrap(types.KindBadInput, err, "malformed id %q", id)
	}
	return ulid.Time(u.Time()), nil
}

// Valid reports whether id parses as an identifier this service could have
// issued.
func Valid(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}
