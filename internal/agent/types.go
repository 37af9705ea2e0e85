package agent

import (
	"errors"
	"time"
)

// ErrNoDiffs is returned when diffs are required but none were extracted after the retry.
var ErrNoDiffs = errors.New("no unified diffs produced")

// Source reports how a completion's text was delivered.
type Source string

const (
	SourceBatch    Source = "batch"
	SourceStreamed Source = "streamed"
	// SourceFallback marks a batch call made after a stream failed mid-flight.
	SourceFallback Source = "fallback"
)

// CompletionResult is the outcome of one role call.
type CompletionResult struct {
	Role    string
	Text    string
	Elapsed time.Duration
	Source  Source
	Model   string
	// Attempt is 1 for the first request of a role, 2 for the diff retry.
	Attempt int
}

// Result is the structured payload printed to stdout and written to result.json.
type Result struct {
	RunID                 string  `json:"runId"`
	TestsPassed           bool    `json:"testsPassed"`
	TestExitCode          int     `json:"testExitCode"`
	ParseSummary          string  `json:"parseSummary"`
	LLMSummary            string  `json:"llmSummary"`
	APISuggestions        string  `json:"apiSuggestions"`
	SpecSuggestions       string  `json:"specSuggestions"`
	SpecmaticSuggestions  string  `json:"specmaticSuggestions"`
	ProposedPatchCount    int     `json:"proposedPatchCount"`
	ProposedFullFileCount int     `json:"proposedFullFileCount"`
	PatchesDir            *string `json:"patchesDir"`
	FastMode              bool    `json:"fastMode"`
	DiffRetried           bool    `json:"diffRetried"`
}
