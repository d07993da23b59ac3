// Package snapshot holds the single current Snapshot shared between the
// sampler (one writer) and the HTTP handlers (many readers).
package snapshot

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"neurodash-agent/models"
)

var (
	// ErrStaleSnapshot is returned when a snapshot is not newer than
	// the one already held.
	ErrStaleSnapshot = errors.New("snapshot is not newer than the current one")

	ErrEmptySnapshot = errors.New("snapshot has no sample")
)

// Publisher replaces its snapshot by pointer swap. Readers load the
// pointer without locking and therefore never wait on the writer; the
// writer never waits on readers. A published snapshot is never mutated.
type Publisher struct {
	mu      sync.Mutex // serializes writers only
	current atomic.Pointer[models.Snapshot]
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish makes snap the current snapshot. Its sequence number must be
// greater than the held one so readers only ever move forward.
func (p *Publisher) Publish(snap *models.Snapshot) error {
	if snap == nil || snap.Sample == nil {
		return ErrEmptySnapshot
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if held := p.current.Load(); held != nil && snap.Seq() <= held.Seq() {
		return fmt.Errorf("publish seq %d over %d: %w", snap.Seq(), held.Seq(), ErrStaleSnapshot)
	}
	p.current.Store(snap)
	return nil
}

// Current returns the latest snapshot, or nil before the first publish.
func (p *Publisher) Current() *models.Snapshot {
	return p.current.Load()
}

// Seq returns the sequence number of the current snapshot.
func (p *Publisher) Seq() uint64 {
	return p.current.Load().Seq()
}
