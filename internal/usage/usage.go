// Package usage measures token counts and call latency for each diagnosis and
// appends one metrics record per request.
package usage

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-copilot/internal/models"
)

// DefaultEmitTimeout bounds a single metrics append.
const DefaultEmitTimeout = 5 * time.Second

// Sink is the append-only metrics store.
type Sink interface {
	AppendMetrics(ctx context.Context, rec *models.MetricsRecord) error
}

// CountTokens approximates tokens as whitespace-separated words.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// CompletionTokens counts the tokens of every text field of a result.
func CompletionTokens(res *models.DiagnosisResult) int {
	n := CountTokens(res.RootCause) + CountTokens(res.AgentBlock)
	for _, p := range res.Patches {
		n += CountTokens(p)
	}
	if res.FollowUp != nil {
		n += CountTokens(*res.FollowUp)
	}
	return n
}

// Record builds the metrics row for one request.
func Record(prompt string, res *models.DiagnosisResult, elapsed time.Duration) *models.MetricsRecord {
	promptTokens := CountTokens(prompt)
	completion := CompletionTokens(res)
	return &models.MetricsRecord{
		Timestamp:        time.Now().UTC(),
		DurationMS:       elapsed.Milliseconds(),
		PromptTokens:     promptTokens,
		CompletionTokens: completion,
		TotalTokens:      promptTokens + completion,
		Confidence:       res.Confidence,
	}
}

// Timer measures wall-clock time around the model call.
type Timer struct {
	start time.Time
	now   func() time.Time
}

// StartTimer starts a timer.
func StartTimer() *Timer {
	return &Timer{start: time.Now(), now: time.Now}
}

// Elapsed returns the time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return t.now().Sub(t.start)
}

// Accountant appends metrics records without ever failing the request.
type Accountant struct {
	sink      Sink
	timeout   time.Duration
	logger    *zap.Logger
	onFailure func()
}

// Option configures an Accountant.
type Option func(*Accountant)

// WithTimeout bounds each append.
func WithTimeout(d time.Duration) Option {
	return func(a *Accountant) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithFailureHook is called once per failed append.
func WithFailureHook(fn func()) Option {
	return func(a *Accountant) { a.onFailure = fn }
}

// NewAccountant creates an accountant. A nil sink drops every record.
func NewAccountant(sink Sink, logger *zap.Logger, opts ...Option) *Accountant {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Accountant{sink: sink, timeout: DefaultEmitTimeout, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Emit appends rec. Failures are logged and reported through the failure
// hook; they are never returned.
func (a *Accountant) Emit(ctx context.Context, rec *models.MetricsRecord) {
	if a.sink == nil {
		return
	}
	// Detached from request cancellation so a client disconnect does not drop the row.
	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	if err := a.sink.AppendMetrics(emitCtx, rec); err != nil {
		a.logger.Warn("metrics append failed",
			zap.String("reason", "metrics_append_failed"),
			zap.Error(err),
		)
		if a.onFailure != nil {
			a.onFailure()
		}
	}
}
