package hotstore

import (
	"context"

	"github.com/dmrproject/dmr/pkg/principal"
)

// NullStore is the always-empty hot turn store variant named in spec.md
// §9's Design Notes. It is used when no hot store URL is configured,
// and by tests exercising degraded mode: every read misses, every write is a no-op that still satisfies
// the Store contract (PutTurn succeeds silently, Tombstone still
// reports true).
type NullStore struct{}

var _ Store = NullStore{}

func (NullStore) PutTurn(ctx context.Context, p principal.Principal, turnID, text, signature string, ts int64) error {
	return nil
}

func (NullStore) GetTurn(ctx context.Context, p principal.Principal, turnID string) (TurnRecord, bool, error) {
	return TurnRecord{}, false, nil
}

func (NullStore) IdxmapMGet(ctx context.Context, p principal.Principal, slots []int) ([]string, error) {
	out := make([]string, len(slots))
	return out, nil
}

func (NullStore) Tombstone(ctx context.Context, p principal.Principal, turnID string) (bool, error) {
	return true, nil
}

func (NullStore) Tombstoned(ctx context.Context, p principal.Principal, turnID string) (bool, error) {
	return false, nil
}
