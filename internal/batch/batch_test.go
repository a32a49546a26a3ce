package batch

import "testing"

func TestClassifyKeywordMatch(t *testing.T) {
	cases := map[string]string{
		"how do I reset my password?": "question",
		"this is broken and I'm angry about it": "complaint",
		"thanks, this is awesome":               "praise",
		"the sky is blue":                       "neutral",
	}
	for text, want := range cases {
		got, err := Classify(text)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("Classify(%q) = %q, want %q", text, got, want)
		}
	}
}

func TestClassifyEmptyTextErrors(t *testing.T) {
	if _, err := Classify("   "); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestSummarizeTruncatesToMaxTokens(t *testing.T) {
	got := Summarize([]string{"one two three four five"}, 3)
	if got != "one two three" {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestRunnerRunProducesValidFused(t *testing.T) {
	r, err := NewRunner()
	if err != nil {
		t.Fatal(err)
	}
	fused, err := r.Run([]string{"thanks for the great help"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if fused.Label != "praise" {
		t.Fatalf("expected praise label, got %q", fused.Label)
	}
	if fused.SourceCount != 1 {
		t.Fatalf("expected source count 1, got %d", fused.SourceCount)
	}
}
