package vectorize

import "testing"

func TestVectorizeDeterministic(t *testing.T) {
	v := New()
	text := "I am very happy!!! This is great."
	a := v.Vectorize(text)
	b := v.Vectorize(text)
	if len(a) != Dim || len(b) != Dim {
		t.Fatalf("expected dim %d, got %d and %d", Dim, len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectorize not deterministic at index %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestVectorizePaddingIsZero(t *testing.T) {
	v := New()
	out := v.Vectorize("anything at all, really")
	for i := 12; i < Dim; i++ {
		if out[i] != 0 {
			t.Fatalf("expected padding slot %d to be zero, got %v", i, out[i])
		}
	}
}

func TestVectorizeEmptyText(t *testing.T) {
	v := New()
	out := v.Vectorize("")
	if len(out) != Dim {
		t.Fatalf("expected dim %d, got %d", Dim, len(out))
	}
	// reps is defined as 1.0 for empty input
	if out[2] != 1.0 {
		t.Fatalf("expected reps=1.0 for empty text, got %v", out[2])
	}
}

func TestAnalyzeEmotionIntensifierAndNegator(t *testing.T) {
	// 18 neutral filler words keep every score below the 1.0 clamp:
	// with 20 tokens, joy is 0.5 (plain), 0.75 (intensified), 0.25 (negated).
	const filler = " we walked to the market and then back home before the rain started falling over the quiet town"
	base := AnalyzeEmotion("feeling happy" + filler)
	intensified := AnalyzeEmotion("very happy" + filler)
	negated := AnalyzeEmotion("not happy" + filler)

	if intensified.Scores[Joy] <= base.Scores[Joy] {
		t.Fatalf("expected intensifier to raise joy score: base=%v intensified=%v", base.Scores[Joy], intensified.Scores[Joy])
	}
	if negated.Scores[Joy] >= base.Scores[Joy] {
		t.Fatalf("expected negator to lower joy score: base=%v negated=%v", base.Scores[Joy], negated.Scores[Joy])
	}
}

func TestAnalyzeEmotionAmplifiers(t *testing.T) {
	plain := AnalyzeEmotion("happy good")
	excited := AnalyzeEmotion("happy good!!!")
	if excited.Scores[Joy] < plain.Scores[Joy] {
		t.Fatalf("expected exclamation amplifier to not lower joy: plain=%v excited=%v", plain.Scores[Joy], excited.Scores[Joy])
	}

	calmText := AnalyzeEmotion("worried worried... ...")
	calmBaseline := AnalyzeEmotion("worried worried")
	if calmText.Scores[Anxiety] < calmBaseline.Scores[Anxiety] {
		t.Fatalf("expected ellipsis amplifier to not lower anxiety: base=%v amplified=%v", calmBaseline.Scores[Anxiety], calmText.Scores[Anxiety])
	}
}

func TestAnalyzeEmotionSignatureStable(t *testing.T) {
	a := AnalyzeEmotion("I feel calm and relaxed")
	b := AnalyzeEmotion("I feel calm and relaxed")
	if a.Signature != b.Signature {
		t.Fatalf("expected stable emotion signature, got %s vs %s", a.Signature, b.Signature)
	}
	if len(a.Signature) != 16 {
		t.Fatalf("expected 16-hex signature, got %q", a.Signature)
	}
}
