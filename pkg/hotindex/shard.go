package hotindex

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmrproject/dmr/pkg/dmrerr"
	"github.com/dmrproject/dmr/pkg/principal"
)

// Default HNSW knobs per spec.md §4.2.
const (
	DefaultM              = 32
	DefaultEfConstruction = 200
	DefaultEfSearch       = 64
)

// ShardManager owns one HNSW graph per principal, lazily created and
// persisted to disk under Dir. All operations on a given principal's
// shard are serialized by a per-principal lock, per spec.md §5.
type ShardManager struct {
	Dir            string
	Dim            int
	M              int
	EfConstruction int
	EfSearch       int

	mu     sync.Mutex // guards shards and locks maps
	shards map[string]*hnsw
	locks  map[string]*sync.Mutex
}

// NewShardManager creates a manager rooted at dir for vectors of the
// given dimension. The directory is created lazily on first persist.
func NewShardManager(dir string, dim int) *ShardManager {
	return &ShardManager{
		Dir:            dir,
		Dim:            dim,
		M:              DefaultM,
		EfConstruction: DefaultEfConstruction,
		EfSearch:       DefaultEfSearch,
		shards:         make(map[string]*hnsw),
		locks:          make(map[string]*sync.Mutex),
	}
}

func (m *ShardManager) lockFor(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// shardFile returns the path a principal's shard is persisted to,
// using the literal "{sanitized-principal}.faiss" filename contract
// from spec.md §6 (the extension names the hot index's role in the
// persisted-state layout, not a FAISS-compatible binary format: the
// file is this package's own gob encoding of the HNSW graph).
func (m *ShardManager) shardFile(p principal.Principal) string {
	return filepath.Join(m.Dir, p.SanitizedFileName()+".faiss")
}

// getOrLoad returns the in-memory shard for p, lazily creating an empty
// one if neither a live shard nor a persisted file exists yet, per
// spec.md §4.2's failure semantics ("missing shard file ⇒ lazy-create
// empty"). Caller must hold the principal's lock.
func (m *ShardManager) getOrLoad(p principal.Principal) (*hnsw, error) {
	key := p.Key()

	m.mu.Lock()
	s, ok := m.shards[key]
	m.mu.Unlock()
	if ok {
		return s, nil
	}

	path := m.shardFile(p)
	s = newHNSW(m.Dim, m.M, m.EfConstruction)
	if _, err := os.Stat(path); err == nil {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open shard file: %w", err)
		}
		defer f.Close()
		if err := s.load(f); err != nil {
			return nil, fmt.Errorf("load shard: %w", err)
		}
	}

	m.mu.Lock()
	m.shards[key] = s
	m.mu.Unlock()
	return s, nil
}

// Add inserts vector into p's shard and returns the pre-insertion count
// (the slot just assigned), per spec.md §4.2. Returns
// dmrerr.ErrDimensionMismatch if vector's length disagrees with the
// manager's configured dimension.
func (m *ShardManager) Add(p principal.Principal, vector []float32) (int, error) {
	if len(vector) != m.Dim {
		return 0, dmrerr.Wrap("hotindex.add", dmrerr.ErrDimensionMismatch)
	}

	lock := m.lockFor(p.Key())
	lock.Lock()
	defer lock.Unlock()

	s, err := m.getOrLoad(p)
	if err != nil {
		return 0, dmrerr.Wrap("hotindex.add", err)
	}
	vecCopy := make([]float32, len(vector))
	copy(vecCopy, vector)
	return s.insert(vecCopy), nil
}

// Search returns at most min(k, shard_size) (slot_index, distance) pairs
// for p's shard. An empty shard returns empty slices and no error, per
// spec.md §4.2.
func (m *ShardManager) Search(p principal.Principal, query []float32, k int) ([]int, []float32, error) {
	if len(query) != m.Dim {
		return nil, nil, dmrerr.Wrap("hotindex.search", dmrerr.ErrDimensionMismatch)
	}

	lock := m.lockFor(p.Key())
	lock.Lock()
	defer lock.Unlock()

	s, err := m.getOrLoad(p)
	if err != nil {
		return nil, nil, dmrerr.Wrap("hotindex.search", err)
	}

	ef := m.EfSearch
	if ef < k {
		ef = k
	}
	slots, dists := s.search(query, k, ef)
	return slots, dists, nil
}

// Delete soft-deletes the node at slot in p's shard.
func (m *ShardManager) Delete(p principal.Principal, slot int) error {
	lock := m.lockFor(p.Key())
	lock.Lock()
	defer lock.Unlock()

	s, err := m.getOrLoad(p)
	if err != nil {
		return dmrerr.Wrap("hotindex.delete", err)
	}
	if !s.delete(slot) {
		return dmrerr.Wrap("hotindex.delete", dmrerr.ErrNotFound)
	}
	return nil
}

// Size reports the number of live (non-deleted) vectors in p's shard.
func (m *ShardManager) Size(p principal.Principal) (int, error) {
	lock := m.lockFor(p.Key())
	lock.Lock()
	defer lock.Unlock()

	s, err := m.getOrLoad(p)
	if err != nil {
		return 0, dmrerr.Wrap("hotindex.size", err)
	}
	return s.size(), nil
}

// Persist atomically writes p's shard to its file under Dir, per
// spec.md §4.2 and §6's persisted state layout.
func (m *ShardManager) Persist(p principal.Principal) error {
	lock := m.lockFor(p.Key())
	lock.Lock()
	defer lock.Unlock()

	s, err := m.getOrLoad(p)
	if err != nil {
		return dmrerr.Wrap("hotindex.persist", err)
	}

	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return dmrerr.Wrap("hotindex.persist", fmt.Errorf("mkdir: %w", err))
	}

	path := m.shardFile(p)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return dmrerr.Wrap("hotindex.persist", fmt.Errorf("create temp file: %w", err))
	}
	if err := s.save(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return dmrerr.Wrap("hotindex.persist", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return dmrerr.Wrap("hotindex.persist", fmt.Errorf("close temp file: %w", err))
	}
	if err := os.Rename(tmp, path); err != nil {
		return dmrerr.Wrap("hotindex.persist", fmt.Errorf("rename temp file: %w", err))
	}
	return nil
}

// Forget drops p's in-memory shard, forcing the next operation to reload
// from disk.
func (m *ShardManager) Forget(p principal.Principal) {
	m.mu.Lock()
	delete(m.shards, p.Key())
	m.mu.Unlock()
}
