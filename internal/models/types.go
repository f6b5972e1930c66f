// Package models holds the data types shared by every stage of the diagnosis
// pipeline.
package models

import "time"

// DecodedFile is an uploaded file after the transport decode step.
// An empty Text is valid and means the payload could not be decoded.
type DecodedFile struct {
	Name string `json:"filename"`
	Text string `json:"text"`
}

// ErrorReference points at a suspected fault location mentioned in an error log.
// Filename is always a basename.
type ErrorReference struct {
	Filename string `json:"filename"`
	Line     int    `json:"line"`
}

// ContextSnippet is a window of lines around an ErrorReference.
// Start and End are 1-indexed and inclusive.
type ContextSnippet struct {
	Filename string `json:"filename"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Text     string `json:"text"`
}

// DiagnosisResult is the structured diagnosis returned to the caller.
// FollowUp is nil when absent.
type DiagnosisResult struct {
	RootCause  string   `json:"root_cause"`
	Confidence float64  `json:"confidence"`
	Patches    []string `json:"patches"`
	FollowUp   *string  `json:"follow_up"`
	AgentBlock string   `json:"agent_block"`
}

// FollowUpThreshold is the confidence below which a follow-up question is expected.
const FollowUpThreshold = 0.85

// NeedsFollowUp reports whether the result's confidence requires a follow-up question.
func (r *DiagnosisResult) NeedsFollowUp() bool {
	return r.Confidence < FollowUpThreshold
}

// ViolatesFollowUpInvariant reports a low-confidence result without a follow-up question.
func (r *DiagnosisResult) ViolatesFollowUpInvariant() bool {
	return r.NeedsFollowUp() && r.FollowUp == nil
}

// MetricsRecord is one append-only usage row, written once per request.
type MetricsRecord struct {
	ID               int64     `json:"id" db:"id"`
	Timestamp        time.Time `json:"timestamp" db:"timestamp"`
	DurationMS       int64     `json:"duration_ms" db:"duration_ms"`
	PromptTokens     int       `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens" db:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens" db:"total_tokens"`
	Confidence       float64   `json:"confidence" db:"confidence"`
}

// MetricsSummary aggregates the metrics table.
type MetricsSummary struct {
	Count                 int64   `json:"count" db:"count"`
	AvgDurationMS         float64 `json:"avg_duration_ms" db:"avg_duration_ms"`
	TotalPromptTokens     int64   `json:"total_prompt_tokens" db:"total_prompt_tokens"`
	TotalCompletionTokens int64   `json:"total_completion_tokens" db:"total_completion_tokens"`
	TotalTokens           int64   `json:"total_tokens" db:"total_tokens"`
	AvgConfidence         float64 `json:"avg_confidence" db:"avg_confidence"`
}

// Tier is the model capability class chosen for a request.
type Tier string

const (
	TierLight Tier = "light"
	TierFull  Tier = "full"
)
