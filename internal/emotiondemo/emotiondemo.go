// Package emotiondemo is the "small ancillary emotional state demo"
// from spec.md §1: a thin formatter over pkg/vectorize's emotion
// analyzer, carrying no logic of its own.
package emotiondemo

import (
	"fmt"
	"io"

	"github.com/dmrproject/dmr/pkg/vectorize"
)

// Run analyzes text and writes its per-emotion scores and dominant
// emotion to w.
func Run(w io.Writer, text string) error {
	result := vectorize.AnalyzeEmotion(text)

	for _, class := range vectorize.EmotionOrder() {
		if _, err := fmt.Fprintf(w, "%-8s %.3f\n", class, result.Scores[class]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "dominant=%s (%.3f) arousal=%.3f valence=%.3f signature=%s\n",
		result.Dominant, result.DominantScore, result.Arousal, result.Valence, result.Signature)
	return err
}
