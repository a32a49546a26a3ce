package vectorize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

// EmotionClass is one of the five fixed emotion categories the lexicon
// scores. Order matters: it is the order the scores appear in the
// vectorizer's output slice.
type EmotionClass string

const (
	Joy     EmotionClass = "joy"
	Sad     EmotionClass = "sad"
	Anxiety EmotionClass = "anxiety"
	Anger   EmotionClass = "anger"
	Calm    EmotionClass = "calm"
)

// emotionOrder fixes the iteration order used whenever scores are
// rendered or summed, so output never depends on map iteration order.
var emotionOrder = []EmotionClass{Joy, Sad, Anxiety, Anger, Calm}

// EmotionOrder returns the fixed class order emotionOrder uses
// internally, for callers (e.g. emotiondemo) that need to print scores
// in a stable sequence.
func EmotionOrder() []EmotionClass {
	out := make([]EmotionClass, len(emotionOrder))
	copy(out, emotionOrder)
	return out
}

// lexicon is the default multilingual token lexicon from the glossary.
var lexicon = map[EmotionClass]map[string]struct{}{
	Joy:     set("happy", "great", "awesome", "excellent", "good", "genial", "feliz", "excelente", "bien"),
	Sad:     set("sad", "depressed", "cry", "bad", "triste", "deprimido", "llorar", "mal"),
	Anxiety: set("anxious", "nervous", "worried", "panic", "ansioso", "nervioso", "preocupado", "panico", "pánico"),
	Anger:   set("angry", "furious", "hate", "annoyed", "enfadado", "furioso", "odio", "molesto"),
	Calm:    set("calm", "relaxed", "peace", "ok", "tranquilo", "relajado", "paz"),
}

var intensifiers = set("very", "super", "ultra", "muy", "re", "demasiado")
var negators = set("not", "no", "never", "nunca", "jamas", "jamás")

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

var tokenRE = regexp.MustCompile(`[a-záéíóúñü]+`)

// EmotionResult is the outcome of analyzing a piece of text for emotional
// content: per-class scores plus the two derived affect scalars.
type EmotionResult struct {
	Scores         map[EmotionClass]float64
	Dominant       EmotionClass
	DominantScore  float64
	Arousal        float64
	Valence        float64
	Signature      string
}

// AnalyzeEmotion scores text against the fixed lexicon, applying the
// intensifier/negator multipliers and the two amplifiers from spec.md
// §4.1, then derives arousal and valence.
//
// Hits are summed in token order, never via map iteration, so the
// floating-point result is reproducible bit-for-bit across runs.
func AnalyzeEmotion(text string) EmotionResult {
	lower := strings.ToLower(text)
	words := tokenRE.FindAllString(lower, -1)
	n := float64(len(words))
	if n == 0 {
		n = 1
	}

	scores := make(map[EmotionClass]float64, len(emotionOrder))
	for _, c := range emotionOrder {
		scores[c] = 0
	}

	for i, w := range words {
		for _, c := range emotionOrder {
			if _, hit := lexicon[c][w]; !hit {
				continue
			}
			s := 1.0
			if i > 0 {
				prev := words[i-1]
				if _, ok := intensifiers[prev]; ok {
					s *= 1.5
				}
				if _, ok := negators[prev]; ok {
					s *= 0.5
				}
			}
			scores[c] += s
		}
	}

	for _, c := range emotionOrder {
		scores[c] = minF(round3(scores[c]/n*10.0), 1.0)
	}

	excl := strings.Count(text, "!") + strings.Count(text, "¡")
	ellipses := strings.Count(text, "...")
	if excl > 2 {
		scores[Joy] = minF(scores[Joy]*1.15, 1.0)
		scores[Anger] = minF(scores[Anger]*1.15, 1.0)
	}
	if ellipses > 1 {
		scores[Anxiety] = minF(scores[Anxiety]*1.2, 1.0)
	}

	dominant, dominantScore := emotionOrder[0], scores[emotionOrder[0]]
	for _, c := range emotionOrder[1:] {
		if scores[c] > dominantScore {
			dominant, dominantScore = c, scores[c]
		}
	}

	arousal := minF(round3((scores[Anxiety]+scores[Anger]+scores[Joy])/2.0), 1.0)
	pos := scores[Joy] + scores[Calm]
	neg := scores[Sad] + scores[Anxiety] + scores[Anger]
	total := pos + neg
	if total == 0 {
		total = 1
	}
	valence := round3(pos / total)

	return EmotionResult{
		Scores:        scores,
		Dominant:      dominant,
		DominantScore: dominantScore,
		Arousal:       arousal,
		Valence:       valence,
		Signature:     emotionSignature(scores),
	}
}

// emotionSignature hashes the sorted (class, score) pairs so the
// signature never depends on map iteration order.
func emotionSignature(scores map[EmotionClass]float64) string {
	type pair struct {
		class EmotionClass
		score float64
	}
	pairs := make([]pair, 0, len(scores))
	for c, s := range scores {
		pairs = append(pairs, pair{c, s})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].class < pairs[j].class })

	var b strings.Builder
	for _, p := range pairs {
		b.WriteString(string(p.class))
		b.WriteByte('=')
		b.WriteString(formatScore(p.score))
		b.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}
