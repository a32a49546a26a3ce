package hotindex

import (
	"testing"

	"github.com/dmrproject/dmr/pkg/principal"
)

func vec(dim int, first float32) []float32 {
	v := make([]float32, dim)
	v[0] = first
	return v
}

func TestRestartInvariance(t *testing.T) {
	dir := t.TempDir()
	p := principal.Principal{Tenant: "T", User: "U"}
	const dim = 20

	m1 := NewShardManager(dir, dim)
	if _, err := m1.Add(p, vec(dim, 1)); err != nil {
		t.Fatal(err)
	}
	if _, err := m1.Add(p, vec(dim, 2)); err != nil {
		t.Fatal(err)
	}
	if _, err := m1.Add(p, vec(dim, 3)); err != nil {
		t.Fatal(err)
	}
	if err := m1.Persist(p); err != nil {
		t.Fatal(err)
	}

	q := vec(dim, 2.2)
	slots1, dists1, err := m1.Search(p, q, 3)
	if err != nil {
		t.Fatal(err)
	}

	m2 := NewShardManager(dir, dim)
	slots2, dists2, err := m2.Search(p, q, 3)
	if err != nil {
		t.Fatal(err)
	}

	if len(slots1) != len(slots2) {
		t.Fatalf("slot count mismatch: %v vs %v", slots1, slots2)
	}
	for i := range slots1 {
		if slots1[i] != slots2[i] || dists1[i] != dists2[i] {
			t.Fatalf("restart invariance violated at %d: (%v,%v) vs (%v,%v)", i, slots1[i], dists1[i], slots2[i], dists2[i])
		}
	}
}

func TestSearchEmptyShard(t *testing.T) {
	dir := t.TempDir()
	p := principal.Principal{Tenant: "T", User: "U"}
	m := NewShardManager(dir, 20)

	slots, dists, err := m.Search(p, vec(20, 1), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 0 || len(dists) != 0 {
		t.Fatalf("expected empty results on empty shard, got %v %v", slots, dists)
	}
}

func TestAddDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	p := principal.Principal{Tenant: "T", User: "U"}
	m := NewShardManager(dir, 20)

	_, err := m.Add(p, make([]float32, 5))
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestCrossPrincipalIsolation(t *testing.T) {
	dir := t.TempDir()
	m := NewShardManager(dir, 20)
	p1 := principal.Principal{Tenant: "T1", User: "U1"}
	p2 := principal.Principal{Tenant: "T2", User: "U2"}

	if _, err := m.Add(p1, vec(20, 1)); err != nil {
		t.Fatal(err)
	}

	size2, err := m.Size(p2)
	if err != nil {
		t.Fatal(err)
	}
	if size2 != 0 {
		t.Fatalf("expected p2's shard to be empty, got size %d", size2)
	}
}

func TestDeleteMovesEntryPoint(t *testing.T) {
	dir := t.TempDir()
	p := principal.Principal{Tenant: "T", User: "U"}
	m := NewShardManager(dir, 20)

	s0, _ := m.Add(p, vec(20, 1))
	if _, err := m.Add(p, vec(20, 2)); err != nil {
		t.Fatal(err)
	}

	if err := m.Delete(p, s0); err != nil {
		t.Fatal(err)
	}

	size, err := m.Size(p)
	if err != nil {
		t.Fatal(err)
	}
	if size != 1 {
		t.Fatalf("expected size 1 after delete, got %d", size)
	}

	// Slot 0 was the first node and so the entry point; search must
	// still reach the surviving node from the moved entry point.
	slots, _, err := m.Search(p, vec(20, 1), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 1 || slots[0] != 1 {
		t.Fatalf("expected search after delete to return only slot 1, got %v", slots)
	}
}
