// Package signature implements the canonical, reproducible hashes from
// spec.md §4.6: one for a retrieval pack (principal, query, policy,
// evidence), one for a single turn's content. Grounded on the
// original's core/signatures.py: truncated sha256 hex over a pinned
// textual rendering, not a cryptographic commitment.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// EvidenceTuple is the (turn_id, signature, score, source) shape the
// original sorts and renders before hashing.
type EvidenceTuple struct {
	TurnID    string
	Signature string
	Score     float64
	Source    string
}

// Policy carries the retrieval knobs that participate in the pack
// signature, per spec.md §4.6.
type Policy struct {
	Threshold    float64
	KFinal       int
	MaxChars     int
	BudgetMsHot  float64
	BudgetMsCold float64
}

// sha256Hex16 returns the first 16 hex characters of the sha256 digest
// of s, matching the original's sha256_hex(...)[:16].
func sha256Hex16(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// PackSignature is the canonical signature over a retrieval result:
// reproducible for identical (principal, query, policy, evidence)
// regardless of the order evidence was discovered in, per spec.md
// §3 invariant 7 and §4.6.
func PackSignature(tenant, user, query string, policy Policy, evidence []EvidenceTuple) string {
	norm := make([]EvidenceTuple, len(evidence))
	for i, e := range evidence {
		norm[i] = EvidenceTuple{
			TurnID:    e.TurnID,
			Signature: e.Signature,
			Score:     round6(e.Score),
			Source:    e.Source,
		}
	}
	sort.Slice(norm, func(i, j int) bool {
		a, b := norm[i], norm[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.TurnID != b.TurnID {
			return a.TurnID < b.TurnID
		}
		if a.Signature != b.Signature {
			return a.Signature < b.Signature
		}
		return a.Score < b.Score
	})

	s := fmt.Sprintf(
		"t=%s|u=%s|q=%s|thr=%.6f|k=%d|mx=%d|bh=%.3f|bc=%.3f|ev=%s",
		tenant, user, query,
		policy.Threshold, policy.KFinal, policy.MaxChars,
		policy.BudgetMsHot, policy.BudgetMsCold,
		renderEvidence(norm),
	)
	return sha256Hex16(s)
}

// renderEvidence pins a deterministic textual rendering of the sorted
// evidence tuples, standing in for the original's Python repr of a
// list of 4-tuples.
func renderEvidence(norm []EvidenceTuple) string {
	parts := make([]string, len(norm))
	for i, e := range norm {
		parts[i] = fmt.Sprintf("(%s, %s, %.6f, %s)", e.TurnID, e.Signature, e.Score, e.Source)
	}
	out := "["
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out + "]"
}

// TurnSignature hashes one turn's content for a principal, used to
// stamp both the hot turn record and the cold row at ingest time so
// both tiers agree on what "this turn" means, per spec.md §4.6:
// SHA-256("{principal}|{turn_id}|{text}")[:16], where principalKey is
// "{tenant}:{user}".
func TurnSignature(principalKey, turnID, text string) string {
	return sha256Hex16(principalKey + "|" + turnID + "|" + text)
}

func round6(x float64) float64 {
	const p = 1e6
	if x < 0 {
		return -round6(-x)
	}
	return float64(int64(x*p+0.5)) / p
}
