package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-copilot/internal/audit"
	"github.com/kubilitics/kubilitics-copilot/internal/models"
	"github.com/kubilitics/kubilitics-copilot/internal/reasoning/engine"
	"github.com/kubilitics/kubilitics-copilot/internal/server"
)

type diagnoseOptions struct {
	logPath  string
	summary  string
	asJSON   bool
	noRecord bool
}

func newDiagnoseCmd(a *app) *cobra.Command {
	var opts diagnoseOptions
	cmd := &cobra.Command{
		Use:   "diagnose [FILE...]",
		Short: "Diagnose a failure locally from an error log and source files",
		Example: `  copilot diagnose --log pytest.log --summary "moved User into models.py" app/models.py app/views.py
  go test ./... 2>&1 | copilot diagnose --log - --json ./pkg/handler.go`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.diagnose(cmd.Context(), opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.logPath, "log", "", "error log file, or - for stdin")
	cmd.Flags().StringVar(&opts.summary, "summary", "", "summary of the change that introduced the failure")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the diagnosis as JSON")
	cmd.Flags().BoolVar(&opts.noRecord, "no-record", false, "do not append a usage record to the metrics store")
	return cmd
}

func (a *app) diagnose(ctx context.Context, opts diagnoseOptions, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	errorLog, err := a.readLog(opts.logPath)
	if err != nil {
		return err
	}
	files, err := readFiles(paths)
	if err != nil {
		return err
	}

	srvOpts := []server.Option{server.WithLogger(logger)}
	if !opts.noRecord {
		store, err := openStore(cfg)
		if err != nil {
			// Usage accounting never blocks a diagnosis.
			logger.Warn("metrics store unavailable, usage will not be recorded", zap.Error(err))
		} else {
			defer func() { _ = store.Close() }()
			srvOpts = append(srvOpts, server.WithStore(store))
		}
	}

	srv, err := server.NewServer(cfg, srvOpts...)
	if err != nil {
		return err
	}

	out, err := srv.Engine().Diagnose(ctx, engine.Request{
		RequestID: audit.GenerateCorrelationID(),
		Files:     files,
		ErrorLog:  errorLog,
		Summary:   opts.summary,
	}, nil)
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out.Result)
	}
	renderOutcome(a.stdout, out)
	return nil
}

func (a *app) readLog(path string) (string, error) {
	switch path {
	case "":
		return "", nil
	case "-":
		b, err := io.ReadAll(a.stdin)
		if err != nil {
			return "", fmt.Errorf("read error log from stdin: %w", err)
		}
		return string(b), nil
	default:
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read error log: %w", err)
		}
		return string(b), nil
	}
}

// readFiles loads local files as already-decoded text; invalid UTF-8 is dropped
// the same way the HTTP decode step drops it.
func readFiles(paths []string) ([]models.DecodedFile, error) {
	files := make([]models.DecodedFile, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, models.DecodedFile{Name: p, Text: strings.ToValidUTF8(string(b), "")})
	}
	return files, nil
}
