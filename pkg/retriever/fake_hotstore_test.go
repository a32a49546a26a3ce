package retriever

import (
	"context"
	"errors"
	"sync"

	"github.com/dmrproject/dmr/pkg/hotstore"
	"github.com/dmrproject/dmr/pkg/principal"
)

// errFakeHotStoreDown simulates an unreachable hot tier (e.g. Redis
// connection refused), for exercising the retriever's degrade-to-cold
// path.
var errFakeHotStoreDown = errors.New("fakeHotStore: hot tier unreachable")

// fakeHotStore is a minimal in-memory hotstore.Store used to exercise
// Forget's tombstone-then-hide contract and, via failNext, the
// retriever's hot-tier degradation path, without standing up a real
// Redis instance.
type fakeHotStore struct {
	mu       sync.Mutex
	records  map[string]hotstore.TurnRecord
	idxmap   []string
	tomb     map[string]bool
	failNext bool // when true, the next IdxmapMGet call fails
}

var _ hotstore.Store = (*fakeHotStore)(nil)

func (s *fakeHotStore) key(p principal.Principal, turnID string) string {
	return p.Key() + "|" + turnID
}

func (s *fakeHotStore) PutTurn(ctx context.Context, p principal.Principal, turnID, text, signature string, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[s.key(p, turnID)] = hotstore.TurnRecord{Text: text, Signature: signature, TS: ts}
	s.idxmap = append(s.idxmap, turnID)
	return nil
}

func (s *fakeHotStore) GetTurn(ctx context.Context, p principal.Principal, turnID string) (hotstore.TurnRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tomb[s.key(p, turnID)] {
		return hotstore.TurnRecord{}, false, nil
	}
	rec, ok := s.records[s.key(p, turnID)]
	return rec, ok, nil
}

func (s *fakeHotStore) IdxmapMGet(ctx context.Context, p principal.Principal, slots []int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return nil, errFakeHotStoreDown
	}
	out := make([]string, len(slots))
	for i, slot := range slots {
		if slot >= 0 && slot < len(s.idxmap) {
			out[i] = s.idxmap[slot]
		}
	}
	return out, nil
}

func (s *fakeHotStore) Tombstone(ctx context.Context, p principal.Principal, turnID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tomb[s.key(p, turnID)] = true
	delete(s.records, s.key(p, turnID))
	return true, nil
}

func (s *fakeHotStore) Tombstoned(ctx context.Context, p principal.Principal, turnID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tomb[s.key(p, turnID)], nil
}
