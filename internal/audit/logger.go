package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kubilitics/kubilitics-copilot/internal/logging"
)

// Logger records one audit trail entry per diagnosis lifecycle step.
type Logger interface {
	Log(ctx context.Context, event *Event) error

	LogDiagnosisStarted(ctx context.Context, requestID string, files int, logChars int) error
	LogDiagnosisCompleted(ctx context.Context, requestID, tier string, confidence float64, duration time.Duration) error
	LogDiagnosisFallback(ctx context.Context, requestID, tier, reason string) error
	LogDiagnosisFailed(ctx context.Context, requestID string, err error) error

	// Sync flushes buffered log entries
	Sync() error

	// Close stops the flusher and flushes what is left
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// FlushInterval is how often buffered events are written
	FlushInterval time.Duration
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath:  "logs/audit.log",
		MaxSize:       100, // megabytes
		MaxBackups:    10,
		MaxAge:        30, // days
		Compress:      true,
		FlushInterval: time.Second,
	}
}

const bufferLimit = 100

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
	doneCh      chan struct{}
	closeOnce   sync.Once
}

// NewLogger creates a new audit logger. appLogger receives marshalling failures.
func NewLogger(config *Config, appLogger *zap.Logger) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AuditLogPath == "" {
		return nil, fmt.Errorf("audit log path is required")
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Second
	}
	if appLogger == nil {
		appLogger = zap.NewNop()
	}

	rotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	// Audit entries are always INFO level, append-only
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(logging.EncoderConfig()),
		zapcore.AddSync(rotator),
		zapcore.InfoLevel,
	)

	l := &auditLogger{
		appLogger:   appLogger,
		auditLogger: zap.New(core),
		buffer:      make([]*Event, 0, bufferLimit),
		flushTicker: time.NewTicker(config.FlushInterval),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	go l.autoFlush()

	return l, nil
}

// Log buffers an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	if event.CorrelationID == "" {
		event.CorrelationID = CorrelationID(ctx)
	}
	if event.SourceIP == "" && event.UserAgent == "" {
		event.WithSource(RequestSource(ctx))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)
	if len(l.buffer) >= bufferLimit {
		return l.flushLocked()
	}
	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}
	l.buffer = l.buffer[:0]
	return nil
}

func (l *auditLogger) autoFlush() {
	defer close(l.doneCh)
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogDiagnosisStarted logs receipt of a diagnose request
func (l *auditLogger) LogDiagnosisStarted(ctx context.Context, requestID string, files int, logChars int) error {
	event := NewEvent(EventDiagnosisStarted).
		WithCorrelationID(requestID).
		WithMetadata("files", files).
		WithMetadata("error_log_chars", logChars).
		WithDescription(fmt.Sprintf("Diagnosis %s started", requestID))

	return l.Log(ctx, event)
}

// LogDiagnosisCompleted logs a diagnosis answered by the model
func (l *auditLogger) LogDiagnosisCompleted(ctx context.Context, requestID, tier string, confidence float64, duration time.Duration) error {
	event := NewEvent(EventDiagnosisCompleted).
		WithCorrelationID(requestID).
		WithTier(tier).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithMetadata("confidence", confidence).
		WithDescription(fmt.Sprintf("Diagnosis %s completed", requestID))

	return l.Log(ctx, event)
}

// LogDiagnosisFallback logs a diagnosis answered by deterministic synthesis
func (l *auditLogger) LogDiagnosisFallback(ctx context.Context, requestID, tier, reason string) error {
	event := NewEvent(EventDiagnosisFallback).
		WithCorrelationID(requestID).
		WithTier(tier).
		WithResult(ResultSuccess).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("Diagnosis %s answered by fallback", requestID))

	return l.Log(ctx, event)
}

// LogDiagnosisFailed logs a diagnosis rejected with a schema error
func (l *auditLogger) LogDiagnosisFailed(ctx context.Context, requestID string, err error) error {
	event := NewEvent(EventDiagnosisFailed).
		WithCorrelationID(requestID).
		WithError(err, "response_schema_error").
		WithDescription(fmt.Sprintf("Diagnosis %s failed", requestID))

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}
	return l.auditLogger.Sync()
}

// Close stops the flusher goroutine and flushes remaining events
func (l *auditLogger) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopCh)
		l.flushTicker.Stop()
		<-l.doneCh
	})
	return l.Sync()
}

type correlationKey struct{}

// CorrelationID extracts the correlation ID from context
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID adds a correlation ID to context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

type sourceKey struct{}

type requestSource struct {
	ip        string
	userAgent string
}

// WithRequestSource records the caller's address and user agent so events
// logged under ctx carry them.
func WithRequestSource(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, sourceKey{}, requestSource{ip: ip, userAgent: userAgent})
}

// RequestSource returns the address and user agent stored by WithRequestSource.
func RequestSource(ctx context.Context) (ip, userAgent string) {
	src, _ := ctx.Value(sourceKey{}).(requestSource)
	return src.ip, src.userAgent
}

// GenerateCorrelationID generates a new correlation ID
func GenerateCorrelationID() string {
	return uuid.NewString()
}

type nopLogger struct{}

// NewNopLogger returns a Logger that records nothing, used when auditing is disabled.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Log(context.Context, *Event) error { return nil }
func (nopLogger) LogDiagnosisStarted(context.Context, string, int, int) error { return nil }
func (nopLogger) LogDiagnosisCompleted(context.Context, string, string, float64, time.Duration) error {
	return nil
}
func (nopLogger) LogDiagnosisFallback(context.Context, string, string, string) error { return nil }
func (nopLogger) LogDiagnosisFailed(context.Context, string, error) error { return nil }
func (nopLogger) Sync() error { return nil }
func (nopLogger) Close() error { return nil }
