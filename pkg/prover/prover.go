// Package prover classifies prover contracts by the proof mechanism they use.
package prover

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/speedrun-hq/portal-solver/pkg/address"
)

// ProofType is the mechanism a prover uses to attest fulfillment
type ProofType string

const (
	Hyperlane ProofType = "hyperlane"
	Storage   ProofType = "storage"
	Unknown   ProofType = ""
)

// Classifier answers prover type questions for the pipeline stages
type Classifier interface {
	IsStorageProver(prover address.Address) bool
	IsHyperlaneProver(prover address.Address) bool
}

// Snapshot is an immutable prover classification. A refresh builds a new
// snapshot instead of mutating the current one.
type Snapshot struct {
	types   map[address.Address]ProofType
	takenAt time.Time
}

var _ Classifier = (*Snapshot)(nil)

// NewSnapshot copies entries into a new snapshot
func NewSnapshot(entries map[address.Address]ProofType) *Snapshot {
	types := make(map[address.Address]ProofType, len(entries))
	for a, t := range entries {
		types[a] = t
	}
	return &Snapshot{types: types, takenAt: time.Now()}
}

// ProofType returns the proof type of a prover or Unknown
func (s *Snapshot) ProofType(prover address.Address) ProofType {
	if s == nil {
		return Unknown
	}
	return s.types[prover]
}

func (s *Snapshot) IsStorageProver(prover address.Address) bool {
	return s.ProofType(prover) == Storage
}

func (s *Snapshot) IsHyperlaneProver(prover address.Address) bool {
	return s.ProofType(prover) == Hyperlane
}

// IsSupported reports whether the prover has a known proof type
func (s *Snapshot) IsSupported(prover address.Address) bool {
	return s.ProofType(prover) != Unknown
}

// Len returns the number of classified provers
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.types)
}

// TakenAt returns when the snapshot was built
func (s *Snapshot) TakenAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.takenAt
}

// Source loads the prover classification
type Source interface {
	Load(ctx context.Context) (map[address.Address]ProofType, error)
}

// StaticSource serves a fixed classification, usually built from configuration
type StaticSource map[address.Address]ProofType

func (s StaticSource) Load(context.Context) (map[address.Address]ProofType, error) {
	return s, nil
}

// Holder publishes the latest snapshot to readers
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// NewHolder creates a holder serving initial
func NewHolder(initial *Snapshot) *Holder {
	h := &Holder{}
	if initial == nil {
		initial = NewSnapshot(nil)
	}
	h.current.Store(initial)
	return h
}

// Current returns the latest snapshot
func (h *Holder) Current() *Snapshot {
	return h.current.Load()
}

// Store replaces the published snapshot
func (h *Holder) Store(s *Snapshot) {
	h.current.Store(s)
}
