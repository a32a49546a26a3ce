// Package batch implements the classifier -> summarizer -> fuser
// pipeline spec.md §1 calls out as out of scope beyond its contract
// ("only their contracts matter"). It never runs on the retrieval
// path: pkg/retriever never imports it. Fuse's output is validated
// against an embedded JSON Schema via github.com/kaptinlin/jsonschema,
// the schema-validation library the broader example pack reaches for.
package batch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

// fusedSchema pins Fuse's output shape: a label, a summary, and the
// source text count that went into it.
const fusedSchema = `{
	"type": "object",
	"required": ["label", "summary", "source_count"],
	"properties": {
		"label": {"type": "string", "minLength": 1},
		"summary": {"type": "string"},
		"source_count": {"type": "integer", "minimum": 0}
	}
}`

// Fused is the validated output of Runner.Run.
type Fused struct {
	Label       string `json:"label"`
	Summary     string `json:"summary"`
	SourceCount int    `json:"source_count"`
}

// Runner chains Classify, Summarize and Fuse, validating the final
// shape before returning it.
type Runner struct {
	schema *jsonschema.Schema
}

// NewRunner compiles the embedded fused-output schema once.
func NewRunner() (*Runner, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(fusedSchema))
	if err != nil {
		return nil, fmt.Errorf("batch: compile schema: %w", err)
	}
	return &Runner{schema: schema}, nil
}

// Run classifies and summarizes texts, fuses the two into a Fused
// value, and validates it against the embedded schema before
// returning.
func (r *Runner) Run(texts []string, maxTokens int) (Fused, error) {
	label, err := Classify(strings.Join(texts, " "))
	if err != nil {
		return Fused{}, fmt.Errorf("batch: classify: %w", err)
	}
	summary := Summarize(texts, maxTokens)

	fused, err := Fuse(label, summary, len(texts))
	if err != nil {
		return Fused{}, fmt.Errorf("batch: fuse: %w", err)
	}

	raw, err := json.Marshal(fused)
	if err != nil {
		return Fused{}, fmt.Errorf("batch: marshal fused output: %w", err)
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return Fused{}, fmt.Errorf("batch: unmarshal fused output: %w", err)
	}

	result := r.schema.Validate(data)
	if !result.IsValid() {
		return Fused{}, fmt.Errorf("batch: fused output failed schema validation: %v", result.Errors)
	}

	return fused, nil
}

// labelRules is the fixed small rule-based label set Classify draws
// from: no ML, just a keyword match against each label's trigger
// words, first match wins, falling back to "neutral".
var labelRules = []struct {
	label    string
	triggers []string
}{
	{"question", []string{"?", "how", "what", "why", "when"}},
	{"complaint", []string{"angry", "frustrated", "broken", "doesn't work"}},
	{"praise", []string{"thanks", "great", "awesome", "love"}},
}

// Classify assigns one fixed label to text via keyword matching. It
// never calls out to a model, per spec.md's Non-goals ("no learned
// relevance models").
func Classify(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("batch: empty text")
	}
	lower := strings.ToLower(text)
	for _, rule := range labelRules {
		for _, trigger := range rule.triggers {
			if strings.Contains(lower, trigger) {
				return rule.label, nil
			}
		}
	}
	return "neutral", nil
}

// Summarize concatenates texts and truncates to maxTokens
// whitespace-delimited tokens. No model call, per spec.md's
// Non-goals.
func Summarize(texts []string, maxTokens int) string {
	joined := strings.Join(texts, " ")
	tokens := strings.Fields(joined)
	if len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}
	return strings.Join(tokens, " ")
}

// Fuse combines a classification label and a summary into the
// reported Fused shape.
func Fuse(label, summary string, sourceCount int) (Fused, error) {
	if label == "" {
		return Fused{}, fmt.Errorf("batch: fuse requires a non-empty label")
	}
	return Fused{Label: label, Summary: summary, SourceCount: sourceCount}, nil
}
