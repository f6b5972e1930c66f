package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kubilitics/kubilitics-copilot/internal/audit"
	"github.com/kubilitics/kubilitics-copilot/internal/config"
	"github.com/kubilitics/kubilitics-copilot/internal/db"
	"github.com/kubilitics/kubilitics-copilot/internal/llm/adapter"
	"github.com/kubilitics/kubilitics-copilot/internal/llm/router"
	"github.com/kubilitics/kubilitics-copilot/internal/logging"
	"github.com/kubilitics/kubilitics-copilot/internal/metrics"
	"github.com/kubilitics/kubilitics-copilot/internal/middleware"
	"github.com/kubilitics/kubilitics-copilot/internal/reasoning/engine"
	"github.com/kubilitics/kubilitics-copilot/internal/reasoning/prompt"
	"github.com/kubilitics/kubilitics-copilot/internal/usage"
)

// Version is reported by /health and /info.
var Version = "0.1.0"

// shutdownTimeout bounds graceful shutdown of each listener.
const shutdownTimeout = 10 * time.Second

// Server represents the copilot HTTP (and optional gRPC health) server
type Server struct {
	config *config.Config

	// Core components
	llmAdapter adapter.LLMAdapter
	engine     engine.DiagnosisEngine
	exemplars  *prompt.ExemplarStore
	store      db.Store
	auditLog   audit.Logger
	logger     *logging.Logger
	cfgManager config.ConfigManager
	limiter    *middleware.RateLimiter
	upgrader   websocket.Upgrader

	// Listeners
	httpServer *http.Server
	grpc       *healthServer
	addr       string

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	wg     sync.WaitGroup

	// State
	mu      sync.RWMutex
	running bool
}

// Option customises a Server.
type Option func(*Server)

// WithStore sets the metrics store. Without one, metrics are not persisted
// and the metrics endpoints answer 503.
func WithStore(s db.Store) Option { return func(srv *Server) { srv.store = s } }

// WithLLMAdapter replaces the adapter built from configuration.
func WithLLMAdapter(a adapter.LLMAdapter) Option { return func(srv *Server) { srv.llmAdapter = a } }

// WithLogger sets the application logger.
func WithLogger(l *logging.Logger) Option { return func(srv *Server) { srv.logger = l } }

// WithAuditLogger sets the audit trail.
func WithAuditLogger(a audit.Logger) Option { return func(srv *Server) { srv.auditLog = a } }

// WithConfigManager enables hot reload of exemplars and log level.
func WithConfigManager(m config.ConfigManager) Option {
	return func(srv *Server) { srv.cfgManager = m }
}

// NewServer creates a new copilot server
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(srv)
	}

	if err := srv.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return srv, nil
}

// initializeComponents initializes all server components
func (s *Server) initializeComponents() error {
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	if s.auditLog == nil {
		s.auditLog = audit.NewNopLogger()
	}

	// 1. LLM adapter
	if s.llmAdapter == nil {
		a, err := adapter.NewLLMAdapter(adapter.Config{
			Provider: adapter.ProviderType(s.config.LLM.Provider),
			APIKey:   s.config.LLM.APIKey,
			BaseURL:  s.config.LLM.BaseURL,
			Timeout:  time.Duration(s.config.LLM.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize LLM adapter: %w", err)
		}
		s.llmAdapter = a
	}
	if !s.llmAdapter.IsConfigured() {
		s.logger.Warn("no LLM provider configured, serving deterministic diagnoses only",
			zap.String("provider", s.config.LLM.Provider))
	}

	// 2. Exemplars
	s.exemplars = prompt.NewExemplarStore(s.config.Prompt.ExemplarsPath)
	if err := s.exemplars.Reload(); err != nil {
		s.logger.Warn("failed to load prompt exemplars", zap.String("path", s.config.Prompt.ExemplarsPath), zap.Error(err))
	}

	// 3. Diagnosis engine
	var sink usage.Sink
	if s.store != nil {
		sink = s.store
	}
	s.engine = engine.NewDiagnosisEngine(engine.Deps{
		LLM: s.llmAdapter,
		Router: router.New(router.Thresholds{
			MaxLogChars: s.config.Routing.MaxLightLogChars,
			MaxFiles:    s.config.Routing.MaxLightFiles,
		}, s.config.LLM.LightModel, s.config.LLM.FullModel),
		Assembler: prompt.NewAssembler(s.exemplars),
		Accountant: usage.NewAccountant(sink, s.logger.Logger,
			usage.WithFailureHook(metrics.MetricsAppendFailures.Inc)),
		Audit:  s.auditLog,
		Logger: s.logger.Logger,
	}, engine.Options{
		HalfWidth:    s.config.Context.HalfWidth,
		TopK:         s.config.Retrieval.TopK,
		SnippetChars: s.config.Retrieval.SnippetChars,
		Temperature:  s.config.LLM.Temperature,
	})

	// 4. Request guards
	s.limiter = middleware.NewRateLimiter(s.config.Server.RateLimitPerMinute)
	s.upgrader = newUpgrader(s.config.Server.AllowedOrigins)

	return nil
}

// Handler returns the full HTTP handler: routes, middleware, CORS and tracing.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover(s.logger.Logger), middleware.AccessLog(s.logger.Logger))
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})

	// Health and info
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Diagnosis
	guard := func(h http.HandlerFunc) http.Handler {
		return s.limiter.Middleware(middleware.MaxBodySize(s.config.Server.MaxBodyBytes)(h))
	}
	r.Handle("/diagnose", guard(s.handleDiagnose)).Methods(http.MethodPost)
	r.Handle("/api/v1/diagnose", guard(s.handleDiagnose)).Methods(http.MethodPost)
	r.Handle("/ws/diagnose", s.limiter.Middleware(http.HandlerFunc(s.handleDiagnoseStream))).Methods(http.MethodGet)

	// Usage metrics
	r.HandleFunc("/api/v1/metrics", s.handleMetricsList).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/metrics/summary", s.handleMetricsSummary).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: s.config.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.ResponseRequestIDHeader, "traceparent"},
		ExposedHeaders: []string{middleware.ResponseRequestIDHeader, middleware.TraceIDHeader},
		MaxAge:         300,
	})
	return middleware.Tracing(c.Handler(r))
}

// Start starts the listeners and returns once they accept connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server is already running")
	}

	addr := net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.addr = ln.Addr().String()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(s.config.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(s.config.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	group := &errgroup.Group{}
	group.Go(func() error {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if s.config.Server.GRPCPort > 0 {
		hs, err := newHealthServer(s.config.Server.Host, s.config.Server.GRPCPort)
		if err != nil {
			_ = s.httpServer.Close()
			_ = group.Wait()
			return err
		}
		s.grpc = hs
		group.Go(hs.serve)
	}
	s.group = group

	if s.cfgManager != nil {
		s.wg.Add(1)
		go s.watchConfig()
	}

	s.running = true
	_ = s.auditLog.Log(s.ctx, audit.NewEvent(audit.EventServerStarted).WithDescription("copilot server started"))
	s.logger.Info("copilot server started",
		zap.String("addr", s.addr),
		zap.Int("grpc_port", s.config.Server.GRPCPort),
		zap.String("llm_provider", string(s.llmAdapter.Provider())),
		zap.Bool("llm_configured", s.llmAdapter.IsConfigured()),
		zap.Int("exemplars", len(s.exemplars.Examples())),
	)
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("stopping copilot server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("error shutting down HTTP server", zap.Error(err))
	}
	if s.grpc != nil {
		s.grpc.stop(shutdownTimeout)
	}

	s.cancel()
	s.wg.Wait()
	err := s.group.Wait()

	_ = s.auditLog.Log(context.Background(), audit.NewEvent(audit.EventServerShutdown).WithDescription("copilot server stopped"))
	_ = s.auditLog.Sync()
	s.logger.Info("copilot server stopped")
	return err
}

// Wait blocks until the server is stopped
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// Addr returns the bound HTTP address once started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// GRPCAddr returns the bound gRPC health address, or "" when disabled.
func (s *Server) GRPCAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.grpc == nil {
		return ""
	}
	return s.grpc.addr()
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Engine returns the diagnosis engine.
func (s *Server) Engine() engine.DiagnosisEngine { return s.engine }

// watchConfig applies config file changes that are safe to take live:
// the exemplar set and the log level.
func (s *Server) watchConfig() {
	defer s.wg.Done()
	changes := s.cfgManager.Watch(s.ctx)
	for {
		select {
		case <-s.ctx.Done():
			return
		case cfg, ok := <-changes:
			if !ok {
				return
			}
			s.applyConfig(&cfg)
		}
	}
}

func (s *Server) applyConfig(cfg *config.Config) {
	if err := s.logger.SetLevel(cfg.Logging.Level); err != nil {
		s.logger.Warn("ignoring invalid log level", zap.String("level", cfg.Logging.Level), zap.Error(err))
	}
	if err := s.exemplars.Reload(); err != nil {
		s.logger.Warn("failed to reload prompt exemplars", zap.Error(err))
	}
	_ = s.auditLog.Log(s.ctx, audit.NewEvent(audit.EventConfigChanged).
		WithDescription("configuration reloaded").
		WithMetadata("log_level", cfg.Logging.Level))
	s.logger.Info("configuration reloaded",
		zap.String("log_level", cfg.Logging.Level),
		zap.Int("exemplars", len(s.exemplars.Examples())),
	)
}
