package retriever

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"unicode/utf8"

	"github.com/dmrproject/dmr/pkg/coldstore"
	"github.com/dmrproject/dmr/pkg/hotindex"
	"github.com/dmrproject/dmr/pkg/hotstore"
	"github.com/dmrproject/dmr/pkg/vectorize"
)

func newTestRetriever(t *testing.T) *Retriever {
	t.Helper()
	dir := t.TempDir()

	v := vectorize.New()
	hi := hotindex.NewShardManager(filepath.Join(dir, "hot"), v.Dim())
	hs := hotstore.NullStore{}
	cs, err := coldstore.Open(filepath.Join(dir, "cold.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cs.Close() })

	policy := DefaultPolicy()
	policy.Threshold = 0 // admit everything the merge surfaces, for deterministic assertions
	return New(v, hi, hs, cs, policy)
}

func TestIngestThenRetrieveFindsColdMatch(t *testing.T) {
	ctx := context.Background()
	r := newTestRetriever(t)

	turnID, _, err := r.Ingest(ctx, "T", "U", "the weather is sunny today", "ok", 1)
	if err != nil {
		t.Fatal(err)
	}

	items, err := r.Retrieve(ctx, "T", "U", "sunny")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) == 0 {
		t.Fatal("expected at least one evidence item")
	}
	found := false
	for _, it := range items {
		if it.TurnID == turnID && it.Source == "cold" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ingested turn to surface from cold, got %+v", items)
	}
}

func TestRetrieveDeterministicAcrossCalls(t *testing.T) {
	ctx := context.Background()
	r := newTestRetriever(t)

	for i := 0; i < 5; i++ {
		if _, _, err := r.Ingest(ctx, "T", "U", fmt.Sprintf("turn number %d about cats", i), "ok", int64(i)); err != nil {
			t.Fatal(err)
		}
	}

	first, err := r.Retrieve(ctx, "T", "U", "cats")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Retrieve(ctx, "T", "U", "cats")
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != len(second) {
		t.Fatalf("expected stable result count, got %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].TurnID != second[i].TurnID || first[i].Score != second[i].Score {
			t.Fatalf("expected identical results across calls at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestRetrieveRespectsKFinalCap(t *testing.T) {
	ctx := context.Background()
	r := newTestRetriever(t)
	r.Policy.KFinal = 2

	for i := 0; i < 10; i++ {
		if _, _, err := r.Ingest(ctx, "T", "U", fmt.Sprintf("shared keyword entry %d", i), "ok", int64(i)); err != nil {
			t.Fatal(err)
		}
	}

	items, err := r.Retrieve(ctx, "T", "U", "shared")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) > 2 {
		t.Fatalf("expected at most k_final=2 items, got %d", len(items))
	}
}

func TestRetrieveRespectsMaxCharsCap(t *testing.T) {
	ctx := context.Background()
	r := newTestRetriever(t)
	r.Policy.KFinal = 5 // isolate the char budget from the count cap
	r.Policy.MaxChars = 120

	for i := 0; i < 5; i++ {
		if _, _, err := r.Ingest(ctx, "T", "U", fmt.Sprintf("budget keyword entry number %d padded out", i), "ok", int64(i)); err != nil {
			t.Fatal(err)
		}
	}

	items, err := r.Retrieve(ctx, "T", "U", "budget")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) == 0 || len(items) >= 5 {
		t.Fatalf("expected the char budget to admit some but not all 5 turns, got %d items", len(items))
	}
	total := 0
	for _, it := range items {
		total += utf8.RuneCountInString(it.Text)
	}
	if total > r.Policy.MaxChars {
		t.Fatalf("expected admitted evidence to respect max_chars=%d, got %d chars across %d items", r.Policy.MaxChars, total, len(items))
	}
}

func TestRetrieveMaxCharsCountsRunesNotBytes(t *testing.T) {
	ctx := context.Background()
	r := newTestRetriever(t)

	turnID, _, err := r.Ingest(ctx, "T", "U", "el clima está soleado y agradable", "ok", 1)
	if err != nil {
		t.Fatal(err)
	}
	// The ingested text mixes multi-byte runes (á) with plain ASCII;
	// len(text) in bytes would exceed len([]rune(text)) in characters.
	r.Policy.MaxChars = utf8.RuneCountInString("Human: el clima está soleado y agradable\nAI: ok")

	items, err := r.Retrieve(ctx, "T", "U", "soleado")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, it := range items {
		if it.TurnID == turnID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected rune-exact budget to admit the matching turn, got %+v", items)
	}
}

func TestRetrieveDegradesToColdOnHotStoreError(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v := vectorize.New()
	hi := hotindex.NewShardManager(filepath.Join(dir, "hot"), v.Dim())
	hs := &fakeHotStore{records: map[string]hotstore.TurnRecord{}, tomb: map[string]bool{}}
	cs, err := coldstore.Open(filepath.Join(dir, "cold.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cs.Close()

	policy := DefaultPolicy()
	policy.Threshold = 0
	r := New(v, hi, hs, cs, policy)

	turnID, _, err := r.Ingest(ctx, "T", "U", "a turn that should still surface from cold", "ok", 1)
	if err != nil {
		t.Fatal(err)
	}

	hs.failNext = true
	items, err := r.Retrieve(ctx, "T", "U", "surface")
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range items {
		if it.Source == "hot" {
			t.Fatalf("expected hot tier to contribute nothing once its store errors, got %+v", items)
		}
	}
	found := false
	for _, it := range items {
		if it.TurnID == turnID && it.Source == "cold" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected retrieval to degrade gracefully to cold-only results, got %+v", items)
	}
}

func TestForgetRemovesFromHotOnly(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v := vectorize.New()
	hi := hotindex.NewShardManager(filepath.Join(dir, "hot"), v.Dim())
	hs := &fakeHotStore{records: map[string]hotstore.TurnRecord{}, tomb: map[string]bool{}}
	cs, err := coldstore.Open(filepath.Join(dir, "cold.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cs.Close()

	policy := DefaultPolicy()
	policy.Threshold = 0
	r := New(v, hi, hs, cs, policy)

	turnID, _, err := r.Ingest(ctx, "T", "U", "a memorable turn about dogs", "ok", 1)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Forget(ctx, "T", "U", turnID); err != nil {
		t.Fatal(err)
	}

	items, err := r.Retrieve(ctx, "T", "U", "dogs")
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range items {
		if it.TurnID == turnID && it.Source == "hot" {
			t.Fatalf("expected tombstoned turn to be absent from hot evidence, got %+v", items)
		}
	}

	coldFound := false
	for _, it := range items {
		if it.TurnID == turnID && it.Source == "cold" {
			coldFound = true
		}
	}
	if !coldFound {
		t.Fatalf("expected cold tier to still hold the forgotten turn, got %+v", items)
	}
}
