package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-copilot/internal/models"
)

type recordingSink struct {
	records []*models.MetricsRecord
	err     error
	ctxErr  error
	block   bool
}

func (s *recordingSink) AppendMetrics(ctx context.Context, rec *models.MetricsRecord) error {
	if s.block {
		<-ctx.Done()
		s.ctxErr = ctx.Err()
		return ctx.Err()
	}
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 0, CountTokens(""))
	assert.Equal(t, 0, CountTokens(" \n\t "))
	assert.Equal(t, 3, CountTokens("  one\ttwo\nthree "))
}

func TestRecord(t *testing.T) {
	follow := "need more logs"
	res := &models.DiagnosisResult{
		RootCause:  "missing import",
		Confidence: 0.5,
		Patches:    []string{"--- a/x\n+++ b/x", "-a\n+b"},
		FollowUp:   &follow,
		AgentBlock: "guess",
	}

	rec := Record("fix this bug please", res, 1500*time.Microsecond+3*time.Millisecond)
	assert.Equal(t, 4, rec.PromptTokens)
	assert.Equal(t, 2+4+2+3+1, rec.CompletionTokens)
	assert.Equal(t, rec.PromptTokens+rec.CompletionTokens, rec.TotalTokens)
	assert.Equal(t, int64(4), rec.DurationMS, "truncated to whole milliseconds")
	assert.Equal(t, 0.5, rec.Confidence)

	res.FollowUp = nil
	assert.Equal(t, 2+4+2+1, CompletionTokens(res))
}

func TestTimer(t *testing.T) {
	base := time.Unix(100, 0)
	tm := &Timer{start: base, now: func() time.Time { return base.Add(42 * time.Millisecond) }}
	assert.Equal(t, 42*time.Millisecond, tm.Elapsed())
}

func TestEmit(t *testing.T) {
	t.Run("appends", func(t *testing.T) {
		sink := &recordingSink{}
		NewAccountant(sink, nil).Emit(context.Background(), &models.MetricsRecord{TotalTokens: 3})
		require.Len(t, sink.records, 1)
		assert.Equal(t, 3, sink.records[0].TotalTokens)
	})

	t.Run("failure is swallowed and reported", func(t *testing.T) {
		failures := 0
		sink := &recordingSink{err: errors.New("disk full")}
		a := NewAccountant(sink, nil, WithFailureHook(func() { failures++ }))
		a.Emit(context.Background(), &models.MetricsRecord{})
		assert.Equal(t, 1, failures)
	})

	t.Run("bounded by timeout", func(t *testing.T) {
		sink := &recordingSink{block: true}
		a := NewAccountant(sink, nil, WithTimeout(10*time.Millisecond))
		a.Emit(context.Background(), &models.MetricsRecord{})
		assert.ErrorIs(t, sink.ctxErr, context.DeadlineExceeded)
	})

	t.Run("survives cancelled request context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		sink := &recordingSink{}
		NewAccountant(sink, nil).Emit(ctx, &models.MetricsRecord{})
		assert.Len(t, sink.records, 1)
	})

	t.Run("nil sink", func(t *testing.T) {
		assert.NotPanics(t, func() {
			NewAccountant(nil, nil).Emit(context.Background(), &models.MetricsRecord{})
		})
	})
}
