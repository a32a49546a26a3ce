// Package hotstore implements the per-principal keyed turn record store
// from spec.md §4.3: a strict-append slot→turn_id map alongside turn
// records and a tombstone set. It is modeled as an explicit
// capability-set interface (spec.md §9 Design Notes: "Dynamic dispatch
// for null hot storage"), with Redis-backed and null implementations
// selected at construction instead of by reflection or type-switching.
package hotstore

import (
	"context"

	"github.com/dmrproject/dmr/pkg/principal"
)

// TurnRecord is what the hot tier keeps for one turn: its text, content
// signature, and the external timestamp it was written with.
type TurnRecord struct {
	Text      string
	Signature string
	TS        int64
}

// Store is the capability set the retriever needs from the hot turn
// tier. Implementations must be safe for concurrent use.
type Store interface {
	// PutTurn idempotently upserts a turn record and strict-appends
	// turnID to the principal's slot→turn_id map: the N-th PutTurn call
	// for a principal places turnID at slot N-1, matching the hot index
	// shard's next Add slot (callers must pair Add and PutTurn under a
	// shared discipline, per spec.md §5).
	PutTurn(ctx context.Context, p principal.Principal, turnID, text, signature string, ts int64) error

	// GetTurn returns the record for turnID, or ok=false if it is
	// missing or tombstoned.
	GetTurn(ctx context.Context, p principal.Principal, turnID string) (rec TurnRecord, ok bool, err error)

	// IdxmapMGet resolves slot indices to turn ids, preserving input
	// order. A slot with no mapping yields "" at that position.
	IdxmapMGet(ctx context.Context, p principal.Principal, slots []int) ([]string, error)

	// Tombstone marks turnID forgotten and deletes its record. Always
	// returns true, per spec.md §4.3.
	Tombstone(ctx context.Context, p principal.Principal, turnID string) (bool, error)

	// Tombstoned reports whether turnID has been forgotten for p.
	Tombstoned(ctx context.Context, p principal.Principal, turnID string) (bool, error)
}
