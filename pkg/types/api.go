// Package types holds the wire types of the copilot HTTP and WebSocket API.
package types

import "github.com/kubilitics/kubilitics-copilot/internal/models"

// FilePayload is one uploaded file: content is base64 of a gzip stream.
type FilePayload struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// DiagnoseRequest is the body of POST /diagnose and the first WebSocket message.
type DiagnoseRequest struct {
	Files    []FilePayload `json:"files"`
	ErrorLog string        `json:"error_log"`
	Summary  string        `json:"summary"`
}

// DiagnoseResponse is the diagnosis returned to clients.
type DiagnoseResponse = models.DiagnosisResult

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Stream event types sent on /ws/diagnose.
const (
	EventStage  = "stage"
	EventResult = "result"
	EventError  = "error"
)

// StreamEvent is one WebSocket frame. Stage events carry Stage and Count;
// the final result carries Result; an error carries Error.
type StreamEvent struct {
	Type   string            `json:"type"`
	Stage  string            `json:"stage,omitempty"`
	Count  *int              `json:"count,omitempty"`
	Tier   string            `json:"tier,omitempty"`
	Model  string            `json:"model,omitempty"`
	Path   string            `json:"path,omitempty"`
	Result *DiagnoseResponse `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	LLMConfigured bool   `json:"llm_configured"`
}

// MetricsListResponse is the body of GET /api/v1/metrics.
type MetricsListResponse struct {
	Records []*models.MetricsRecord `json:"records"`
	Count   int                     `json:"count"`
}
