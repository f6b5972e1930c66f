package engine

import (
	"context"

	"github.com/kubilitics/kubilitics-copilot/internal/models"
)

// Package engine provides the diagnosis orchestrator of the copilot.
//
// One Diagnose call runs the whole pipeline for a single request:
//
//   1. References  - parse file:line references out of the error log
//   2. Context     - cut a line window around every resolvable reference
//   3. Retrieval   - rebuild a request-scoped TF-IDF index over the files
//                    and rank them against "error_log\nsummary"
//   4. Prompt      - assemble instructions, exemplars, evidence, log, summary
//   5. Model       - route to the light or full tier and call the model;
//                    any call failure is answered by deterministic synthesis
//   6. Validate    - coerce the reply into a DiagnosisResult
//   7. Usage       - count tokens and append one metrics record
//
// Steps 1-2 and step 3 are independent and run concurrently. Every stage
// degrades to an empty result on bad input; only step 6 can fail the request.
//
// Concurrency:
//   - Diagnose is safe for concurrent use
//   - The similarity index is owned by a single call and never shared
//   - No lock is held across the model call or the metrics append

// Stage names, in the order they are reported to an Observer.
const (
	StageReferences = "references"
	StageContext    = "context"
	StageRetrieval  = "retrieval"
	StagePrompt     = "prompt"
	StageModel      = "model"
)

// Answer paths.
const (
	PathModel    = "model"
	PathFallback = "fallback"
)

// Request is one decoded diagnose request.
type Request struct {
	RequestID string
	Files     []models.DecodedFile
	ErrorLog  string
	Summary   string
}

// StageEvent reports progress after a pipeline stage finishes.
type StageEvent struct {
	Stage string      `json:"stage"`
	Count int         `json:"count"`
	Tier  models.Tier `json:"tier,omitempty"`
	Model string      `json:"model,omitempty"`
	Path  string      `json:"path,omitempty"`
}

// Observer receives stage events synchronously on the calling goroutine.
type Observer func(StageEvent)

// Outcome is a successful diagnosis with its routing and usage details.
type Outcome struct {
	Result *models.DiagnosisResult
	Tier   models.Tier
	Model  string
	Path   string
	Usage  *models.MetricsRecord
}

// DiagnosisEngine defines the interface for diagnosis orchestration.
type DiagnosisEngine interface {
	// Diagnose runs the pipeline. The only error it returns is a
	// *diagnosis.ResponseSchemaError for a reply that cannot be coerced.
	// obs may be nil.
	Diagnose(ctx context.Context, req Request, obs Observer) (*Outcome, error)
}
