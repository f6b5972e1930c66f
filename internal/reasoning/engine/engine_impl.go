package engine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kubilitics/kubilitics-copilot/internal/audit"
	"github.com/kubilitics/kubilitics-copilot/internal/diagnosis"
	"github.com/kubilitics/kubilitics-copilot/internal/llm/adapter"
	"github.com/kubilitics/kubilitics-copilot/internal/llm/router"
	"github.com/kubilitics/kubilitics-copilot/internal/llm/types"
	"github.com/kubilitics/kubilitics-copilot/internal/memory/vector"
	"github.com/kubilitics/kubilitics-copilot/internal/metrics"
	"github.com/kubilitics/kubilitics-copilot/internal/models"
	"github.com/kubilitics/kubilitics-copilot/internal/reasoning/codectx"
	"github.com/kubilitics/kubilitics-copilot/internal/reasoning/prompt"
	"github.com/kubilitics/kubilitics-copilot/internal/tracing"
	"github.com/kubilitics/kubilitics-copilot/internal/usage"
)

// Fallback reasons recorded in logs, audit events and metrics.
const (
	reasonModelUnavailable = "model_unavailable"
	reasonModelFailed      = "model_failed"
	reasonMalformedReply   = "malformed_reply"
)

// LLMAdapterInterface enables test injection for the LLM adapter.
// adapter.LLMAdapter satisfies this interface.
type LLMAdapterInterface interface {
	Complete(ctx context.Context, req types.CompletionRequest) (*types.CompletionResponse, error)
}

// Compile-time check: adapter.LLMAdapter satisfies LLMAdapterInterface.
var _ LLMAdapterInterface = (adapter.LLMAdapter)(nil)

// Options tunes the retrieval and context stages.
type Options struct {
	HalfWidth    int
	TopK         int
	SnippetChars int
	Temperature  float64
}

// DefaultOptions mirror the service defaults.
var DefaultOptions = Options{
	HalfWidth:    codectx.DefaultHalfWidth,
	TopK:         5,
	SnippetChars: vector.DefaultSnippetChars,
}

// Deps are the collaborators of the engine. Accountant, Audit and Logger may be nil.
type Deps struct {
	LLM        LLMAdapterInterface
	Router     *router.Router
	Assembler  *prompt.Assembler
	Accountant *usage.Accountant
	Audit      audit.Logger
	Logger     *zap.Logger
}

// engineImpl is the concrete DiagnosisEngine.
type engineImpl struct {
	llm        LLMAdapterInterface
	router     *router.Router
	assembler  *prompt.Assembler
	accountant *usage.Accountant
	auditLog   audit.Logger
	logger     *zap.Logger
	opts       Options
}

// NewDiagnosisEngine creates a fully-wired DiagnosisEngine.
func NewDiagnosisEngine(deps Deps, opts Options) DiagnosisEngine {
	e := &engineImpl{
		llm:        deps.LLM,
		router:     deps.Router,
		assembler:  deps.Assembler,
		accountant: deps.Accountant,
		auditLog:   deps.Audit,
		logger:     deps.Logger,
		opts:       opts,
	}
	if e.router == nil {
		e.router = router.New(router.DefaultThresholds, "gpt-4o-mini", "gpt-4o")
	}
	if e.assembler == nil {
		e.assembler = prompt.NewAssembler(nil)
	}
	if e.accountant == nil {
		e.accountant = usage.NewAccountant(nil, nil)
	}
	if e.auditLog == nil {
		e.auditLog = audit.NewNopLogger()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.opts.HalfWidth <= 0 {
		e.opts.HalfWidth = DefaultOptions.HalfWidth
	}
	if e.opts.TopK <= 0 {
		e.opts.TopK = DefaultOptions.TopK
	}
	if e.opts.SnippetChars <= 0 {
		e.opts.SnippetChars = DefaultOptions.SnippetChars
	}
	return e
}

// evidence is what the two concurrent branches gather before the prompt is built.
type evidence struct {
	refs      []models.ErrorReference
	context   []models.ContextSnippet
	retrieved []string
}

func (e *engineImpl) Diagnose(ctx context.Context, req Request, obs Observer) (*Outcome, error) {
	if obs == nil {
		obs = func(StageEvent) {}
	}
	start := time.Now()
	log := e.logger.With(zap.String("request_id", req.RequestID))
	_ = e.auditLog.LogDiagnosisStarted(ctx, req.RequestID, len(req.Files), len([]rune(req.ErrorLog)))

	ev := e.gather(ctx, req, log)
	obs(StageEvent{Stage: StageReferences, Count: len(ev.refs)})
	obs(StageEvent{Stage: StageContext, Count: len(ev.context)})
	obs(StageEvent{Stage: StageRetrieval, Count: len(ev.retrieved)})

	_, span := tracing.StartSpan(ctx, "prompt.assemble")
	text := e.assembler.Assemble(prompt.Input{
		ErrorLog:  req.ErrorLog,
		Summary:   req.Summary,
		Retrieved: ev.retrieved,
		Context:   ev.context,
	})
	span.SetAttributes(attribute.Int("prompt.chars", len(text)))
	span.End()
	obs(StageEvent{Stage: StagePrompt, Count: usage.CountTokens(text)})

	tier := e.router.ChooseTier(req.ErrorLog, len(req.Files))
	model := e.router.Model(tier)

	timer := usage.StartTimer()
	result, path, err := e.answer(ctx, req.RequestID, tier, model, text, log)
	elapsed := timer.Elapsed()
	metrics.ModelCallDuration.WithLabelValues(string(tier)).Observe(elapsed.Seconds())
	if err != nil {
		metrics.DiagnosesTotal.WithLabelValues(string(tier), metrics.PathSchemaError).Inc()
		log.Error("model reply failed schema validation", zap.String("tier", string(tier)), zap.Error(err))
		_ = e.auditLog.LogDiagnosisFailed(ctx, req.RequestID, err)
		return nil, err
	}
	obs(StageEvent{Stage: StageModel, Tier: tier, Model: model, Path: path})

	if result.ViolatesFollowUpInvariant() {
		metrics.FollowUpViolationsTotal.Inc()
		log.Warn("low-confidence reply without follow-up question",
			zap.Float64("confidence", result.Confidence),
			zap.String("model", model),
		)
	}

	rec := usage.Record(text, result, elapsed)
	e.emit(ctx, rec)

	metrics.DiagnosesTotal.WithLabelValues(string(tier), path).Inc()
	metrics.DiagnoseDuration.WithLabelValues(string(tier)).Observe(time.Since(start).Seconds())
	metrics.Confidence.Observe(result.Confidence)
	metrics.TokensTotal.WithLabelValues("prompt").Add(float64(rec.PromptTokens))
	metrics.TokensTotal.WithLabelValues("completion").Add(float64(rec.CompletionTokens))

	_ = e.auditLog.LogDiagnosisCompleted(ctx, req.RequestID, string(tier), result.Confidence, time.Since(start))
	log.Info("diagnosis completed",
		zap.String("tier", string(tier)),
		zap.String("model", model),
		zap.String("path", path),
		zap.Float64("confidence", result.Confidence),
		zap.Int("total_tokens", rec.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)

	return &Outcome{Result: result, Tier: tier, Model: model, Path: path, Usage: rec}, nil
}

// gather runs the reference/context branch and the retrieval branch concurrently.
func (e *engineImpl) gather(ctx context.Context, req Request, log *zap.Logger) evidence {
	var ev evidence
	var g errgroup.Group

	g.Go(func() error {
		_, span := tracing.StartSpan(ctx, "refs.parse")
		ev.refs = codectx.ParseReferences(req.ErrorLog)
		span.SetAttributes(attribute.Int("refs.count", len(ev.refs)))
		span.End()

		_, span = tracing.StartSpan(ctx, "context.extract")
		ev.context = codectx.Extract(req.Files, ev.refs, e.opts.HalfWidth)
		span.SetAttributes(attribute.Int("snippets.count", len(ev.context)))
		span.End()

		if unmatched := len(ev.refs) - len(ev.context); unmatched > 0 {
			log.Debug("references without context", zap.String("reason", "reference_unmatched"), zap.Int("count", unmatched))
		}
		return nil
	})

	g.Go(func() error {
		idx := vector.NewIndex(vector.WithSnippetChars(e.opts.SnippetChars))

		_, span := tracing.StartSpan(ctx, "vector.rebuild")
		idx.Rebuild(req.Files)
		span.SetAttributes(attribute.Int("documents", idx.Len()))
		span.End()

		_, span = tracing.StartSpan(ctx, "vector.query")
		ev.retrieved = idx.Query(req.ErrorLog+"\n"+req.Summary, e.opts.TopK)
		span.SetAttributes(attribute.Int("results", len(ev.retrieved)))
		span.End()

		if len(ev.retrieved) == 0 && idx.Len() > 0 {
			log.Debug("retrieval returned nothing", zap.String("reason", "retrieval_empty"))
		}
		return nil
	})

	// Neither branch returns an error.
	_ = g.Wait()

	metrics.ContextSnippets.Observe(float64(len(ev.context)))
	metrics.RetrievedSnippets.Observe(float64(len(ev.retrieved)))
	return ev
}

// answer calls the model and falls back to deterministic synthesis on any
// call failure. The returned error is always a *diagnosis.ResponseSchemaError.
func (e *engineImpl) answer(ctx context.Context, requestID string, tier models.Tier, model, text string, log *zap.Logger) (*models.DiagnosisResult, string, error) {
	reply, reason := e.call(ctx, tier, model, text, log)
	if reason == "" {
		_, span := tracing.StartSpan(ctx, "response.validate")
		res, err := diagnosis.Coerce(reply)
		switch {
		case err == nil:
			span.End()
			return res, PathModel, nil
		case errors.Is(err, diagnosis.ErrMalformedReply):
			span.End()
			reason = reasonMalformedReply
			log.Warn("model reply is not a JSON object, using fallback", zap.String("reason", reasonMalformedReply), zap.Int("bytes", len(reply)))
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return nil, PathModel, err
		}
	}

	metrics.FallbacksTotal.WithLabelValues(reason).Inc()
	_ = e.auditLog.LogDiagnosisFallback(ctx, requestID, string(tier), reason)
	return diagnosis.Synthesize(text), PathFallback, nil
}

// call returns the raw reply, or the fallback reason when there is none.
func (e *engineImpl) call(ctx context.Context, tier models.Tier, model, text string, log *zap.Logger) ([]byte, string) {
	if e.llm == nil {
		return nil, reasonModelUnavailable
	}

	ctx, span := tracing.StartSpan(ctx, "llm.call",
		attribute.String("llm.tier", string(tier)),
		attribute.String("llm.model", model),
	)
	defer span.End()

	resp, err := e.llm.Complete(ctx, types.CompletionRequest{
		Model:       model,
		Messages:    types.NewChat(prompt.SystemPrompt, text),
		Temperature: e.opts.Temperature,
		JSONMode:    true,
	})
	switch {
	case errors.Is(err, adapter.ErrProviderNotConfigured):
		log.Debug("no model configured, using fallback", zap.String("reason", reasonModelUnavailable))
		return nil, reasonModelUnavailable
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("model call failed, using fallback",
			zap.String("reason", reasonModelFailed),
			zap.String("model", model),
			zap.Error(err),
		)
		return nil, reasonModelFailed
	}
	return []byte(resp.Content), ""
}

func (e *engineImpl) emit(ctx context.Context, rec *models.MetricsRecord) {
	_, span := tracing.StartSpan(ctx, "usage.emit")
	defer span.End()
	e.accountant.Emit(ctx, rec)
}
