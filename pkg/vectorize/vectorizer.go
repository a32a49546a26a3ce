// Package vectorize implements the deterministic, offline text vectorizer
// described in spec.md §4.1: a pure function from text to a fixed-length
// float32 vector, with no learned weights, no randomness, and no clock
// reads. It is grounded on the teacher library's similarity/encoding
// conventions (pkg/core, internal/encoding) generalized to a structural +
// lexicon-based feature layout instead of an externally-supplied
// embedding.
package vectorize

import (
	"strings"
	"unicode"
)

// Dim is the fixed output dimension: 5 structural features, 5 emotion
// scores, 2 derived affect scalars, and 8 reserved zero-padding slots.
const Dim = 20

// Vectorizer turns text into a Dim-dimensional float32 vector. It holds
// no state; the zero value is ready to use.
type Vectorizer struct{}

// New returns a ready-to-use Vectorizer.
func New() *Vectorizer { return &Vectorizer{} }

// Dim reports the vector dimension this vectorizer produces.
func (v *Vectorizer) Dim() int { return Dim }

// Vectorize computes the deterministic feature vector for text, per
// spec.md §4.1. All arithmetic is performed in float32 at the point of
// assignment to the output slice; intermediate ratios are computed in
// float64 and rounded only at the explicit round(_, 3) points named in
// the spec, matching the reference implementation's rounding behavior.
func (v *Vectorizer) Vectorize(text string) []float32 {
	words := strings.Fields(text)
	wc := len(words)
	wcF := float64(wc)
	if wcF == 0 {
		wcF = 1
	}

	lenScore := minF(float64(len([]rune(text)))/400.0, 1.0)
	speed := minF(wcF/12.0, 2.0)

	reps := 1.0
	if wc > 0 {
		uniq := make(map[string]struct{}, wc)
		for _, w := range words {
			uniq[w] = struct{}{}
		}
		reps = float64(len(uniq)) / wcF
	}

	dotCount := strings.Count(text, ".")
	ellipsisCount := strings.Count(text, "...")
	dots := minF(float64(dotCount)+2*float64(ellipsisCount), 6.0) / 6.0

	textLen := len([]rune(text))
	denom := textLen
	if denom == 0 {
		denom = 1
	}
	upper := 0
	for _, r := range text {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	caps := float64(upper) / float64(denom)

	emo := AnalyzeEmotion(text)

	out := make([]float32, Dim)
	out[0] = float32(lenScore)
	out[1] = float32(speed)
	out[2] = float32(reps)
	out[3] = float32(dots)
	out[4] = float32(caps)
	out[5] = float32(emo.Scores[Joy])
	out[6] = float32(emo.Scores[Sad])
	out[7] = float32(emo.Scores[Anxiety])
	out[8] = float32(emo.Scores[Anger])
	out[9] = float32(emo.Scores[Calm])
	out[10] = float32(emo.Arousal)
	out[11] = float32(emo.Valence)
	// indices 12..19 are reserved zero-padding; must stay zero for
	// signature stability across future feature additions.

	return out
}
