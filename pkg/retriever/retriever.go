// Package retriever implements the deterministic retrieval, ingest
// and forget operations from spec.md §4.5, replacing the teacher's
// module-level global store construction (spec.md §9, "Cyclic /
// global state") with an explicit value holding its four
// collaborators. Grounded directly on the original's
// core/retrieval.py DeterministicRetriever.
package retriever

import (
	"context"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dmrproject/dmr/pkg/coldstore"
	"github.com/dmrproject/dmr/pkg/hotindex"
	"github.com/dmrproject/dmr/pkg/hotstore"
	"github.com/dmrproject/dmr/pkg/principal"
	"github.com/dmrproject/dmr/pkg/signature"
	"github.com/dmrproject/dmr/pkg/vectorize"
)

// Policy mirrors the original's RetrievalPolicy dataclass defaults,
// per spec.md §4.5 and §6.
type Policy struct {
	Threshold       float64
	KFinal          int
	MaxChars        int
	KHotCandidates  int
	KColdCandidates int
	BudgetMsHot     float64
	BudgetMsCold    float64
}

// DefaultPolicy matches the original's dataclass field defaults.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:       0.60,
		KFinal:          5,
		MaxChars:        800,
		KHotCandidates:  30,
		KColdCandidates: 30,
		BudgetMsHot:     50.0,
		BudgetMsCold:    50.0,
	}
}

// EvidenceItem is one admitted piece of retrieved context.
type EvidenceItem struct {
	TurnID    string
	Signature string
	Score     float64
	Source    string // "hot" | "cold"
	Text      string
}

// Retriever composes the vectorizer, hot index, hot turn store and
// cold store behind the single Retrieve/Ingest/Forget contract.
// Components are already individually safe for concurrent use;
// Retriever's only lock of its own serializes the hot-tier writes of
// Ingest.
type Retriever struct {
	Vectorizer *vectorize.Vectorizer
	HotIndex   *hotindex.ShardManager
	HotStore   hotstore.Store
	ColdStore  *coldstore.Store
	Policy     Policy

	ingestMu sync.Mutex // pairs HotIndex.Add with HotStore.PutTurn
}

// New constructs a Retriever from its four collaborators and a
// policy.
func New(v *vectorize.Vectorizer, hi *hotindex.ShardManager, hs hotstore.Store, cs *coldstore.Store, policy Policy) *Retriever {
	return &Retriever{
		Vectorizer: v,
		HotIndex:   hi,
		HotStore:   hs,
		ColdStore:  cs,
		Policy:     policy,
	}
}

// Retrieve runs the hot and cold searches, merges by (-score,
// turn_id), and admits evidence under the policy's hard caps (k_final,
// threshold, max_chars), per spec.md §3 invariants 1-3 and §4.5.
func (r *Retriever) Retrieve(ctx context.Context, tenant, user, query string) ([]EvidenceItem, error) {
	p := principal.Principal{Tenant: tenant, User: user}
	qv := r.Vectorizer.Vectorize(query)

	hot := r.retrieveHot(ctx, p, qv)
	cold := r.retrieveCold(ctx, tenant, user, query)

	merged := make([]EvidenceItem, 0, len(hot)+len(cold))
	merged = append(merged, hot...)
	merged = append(merged, cold...)
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].TurnID < merged[j].TurnID
	})

	out := make([]EvidenceItem, 0, r.Policy.KFinal)
	totalChars := 0
	for _, e := range merged {
		if len(out) >= r.Policy.KFinal {
			break
		}
		if e.Score < r.Policy.Threshold {
			continue
		}
		chars := utf8.RuneCountInString(e.Text)
		if totalChars+chars > r.Policy.MaxChars {
			continue
		}
		out = append(out, e)
		totalChars += chars
	}
	return out, nil
}

// retrieveHot degrades to an empty slice on any hot-tier failure
// (unreachable Redis, corrupted shard, dimension drift): the hot path
// is an optimization, never a hard dependency, per spec.md §4.5 and
// §7's HotUnavailable taxonomy entry.
func (r *Retriever) retrieveHot(ctx context.Context, p principal.Principal, qv []float32) []EvidenceItem {
	slots, dists, err := r.HotIndex.Search(p, qv, r.Policy.KHotCandidates)
	if err != nil || len(slots) == 0 {
		return nil
	}

	turnIDs, err := r.HotStore.IdxmapMGet(ctx, p, slots)
	if err != nil {
		return nil
	}

	out := make([]EvidenceItem, 0, len(turnIDs))
	for i, tid := range turnIDs {
		if tid == "" {
			continue
		}
		tomb, err := r.HotStore.Tombstoned(ctx, p, tid)
		if err != nil || tomb {
			continue
		}
		rec, ok, err := r.HotStore.GetTurn(ctx, p, tid)
		if err != nil || !ok {
			continue
		}

		dist := float32(1e9)
		if i < len(dists) {
			dist = dists[i]
		}
		if dist < 0 {
			dist = 0
		}
		score := 1.0 / (1.0 + float64(dist))

		sig := rec.Signature
		if sig == "" {
			sig = tid
		}
		out = append(out, EvidenceItem{
			TurnID:    tid,
			Signature: sig,
			Score:     score,
			Source:    "hot",
			Text:      rec.Text,
		})
	}
	return out
}

// retrieveCold runs the FTS search and assigns the original's
// deterministic rank proxy score (a constant bumped when the raw
// query string appears in the text, compared case-insensitively after
// lowercasing both), since cold rows carry no vector
// distance, per spec.md §4.5.
func (r *Retriever) retrieveCold(ctx context.Context, tenant, user, query string) []EvidenceItem {
	rows, err := r.ColdStore.SearchFTS(ctx, tenant, user, query, r.Policy.KColdCandidates, r.Policy.BudgetMsCold)
	if err != nil {
		return nil
	}

	out := make([]EvidenceItem, 0, len(rows))
	for _, row := range rows {
		score := 0.50
		if strings.Contains(strings.ToLower(row.Text), strings.ToLower(query)) {
			score = 0.75
		}
		out = append(out, EvidenceItem{
			TurnID:    row.TurnID,
			Signature: row.Signature,
			Score:     score,
			Source:    "cold",
			Text:      row.Text,
		})
	}
	return out
}

// Ingest materializes a new turn from a user/assistant message pair
// (text := "Human: {u}\nAI: {a}", per spec.md §6), vectorizes it, and
// records it in both tiers, keeping the hot shard's slot order and the
// hot turn store's idxmap append in lock-step (the N-th Ingest call
// for a principal lands at slot N-1 in both), per spec.md §5's
// ordering guarantee. Returns the assigned turn id and its content
// signature.
func (r *Retriever) Ingest(ctx context.Context, tenant, user, userMessage, assistantMessage string, ts int64) (turnID, sig string, err error) {
	p := principal.Principal{Tenant: tenant, User: user}
	text := "Human: " + userMessage + "\nAI: " + assistantMessage
	turnID = newTurnID()
	sig = signature.TurnSignature(p.Key(), turnID, text)

	vec := r.Vectorizer.Vectorize(text)
	r.ingestMu.Lock()
	if _, err := r.HotIndex.Add(p, vec); err != nil {
		r.ingestMu.Unlock()
		return "", "", err
	}
	if err := r.HotStore.PutTurn(ctx, p, turnID, text, sig, ts); err != nil {
		r.ingestMu.Unlock()
		return "", "", err
	}
	r.ingestMu.Unlock()
	if err := r.HotIndex.Persist(p); err != nil {
		return "", "", err
	}

	if err := r.ColdStore.PutMany(ctx, []coldstore.Row{{
		Tenant: tenant, User: user, TurnID: turnID, Signature: sig, TS: ts, Text: text,
	}}); err != nil {
		return "", "", err
	}

	return turnID, sig, nil
}

// Forget tombstones turnID in the hot store (future searches will no
// longer resolve it) per spec.md §4.1 and §4.3; the cold row is left
// in place since cold_rows is the authoritative log and the FTS
// search path has no tombstone filter of its own. Forget on a turn
// the hot store has never seen still succeeds (Tombstone always
// reports true).
func (r *Retriever) Forget(ctx context.Context, tenant, user, turnID string) error {
	p := principal.Principal{Tenant: tenant, User: user}
	_, err := r.HotStore.Tombstone(ctx, p, turnID)
	return err
}

// newTurnID mints a fresh 16-hex turn id, matching spec.md §6's
// "fresh 16-hex turn_id" (the original mints this via
// uuid.uuid4().hex[:16]; here the first 8 bytes of a random UUID give
// the same 16 hex characters of entropy).
func newTurnID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}
