package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-copilot/internal/audit"
	"github.com/kubilitics/kubilitics-copilot/internal/config"
	"github.com/kubilitics/kubilitics-copilot/internal/db"
	"github.com/kubilitics/kubilitics-copilot/internal/server"
	"github.com/kubilitics/kubilitics-copilot/internal/tracing"
)

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the copilot HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), cmd.Flags().Changed("port"), port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8000, "HTTP listen port (overrides config)")
	return cmd
}

// serve runs until ctx is cancelled or SIGINT/SIGTERM arrives.
func (a *app) serve(ctx context.Context, portSet bool, port int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mgr, cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	if portSet {
		cfg.Server.Port = port
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := tracing.Init(cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.SamplingRate)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	auditLog := audit.NewNopLogger()
	if cfg.Audit.Enabled {
		acfg := audit.DefaultConfig()
		acfg.AuditLogPath = cfg.Audit.Path
		auditLog, err = audit.NewLogger(acfg, logger.Logger)
		if err != nil {
			return fmt.Errorf("init audit log: %w", err)
		}
	}
	defer func() { _ = auditLog.Close() }()
	_ = auditLog.Log(ctx, audit.NewEvent(audit.EventConfigLoaded).
		WithDescription("configuration loaded").
		WithMetadata("path", a.configPath))

	srv, err := server.NewServer(cfg,
		server.WithStore(store),
		server.WithLogger(logger),
		server.WithAuditLogger(auditLog),
		server.WithConfigManager(mgr),
	)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "copilot listening on %s\n", srv.Addr())

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	logger.Info("shutdown requested")
	return srv.Stop()
}

func openStore(cfg *config.Config) (db.Store, error) {
	store, err := db.Open(db.Options{
		Type:        cfg.Database.Type,
		SQLitePath:  cfg.Database.SQLitePath,
		PostgresURL: cfg.Database.PostgresURL,
	})
	if err != nil {
		return nil, fmt.Errorf("open metrics store: %w", err)
	}
	return store, nil
}
