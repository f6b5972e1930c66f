package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-copilot/internal/models"
)

// writeConfig writes a config pointing every file at dir and returns its path.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("METRICS_DB", "")
	cfg := `server:
  host: 127.0.0.1
llm:
  provider: none
prompt:
  exemplars_path: ""
database:
  type: sqlite
  sqlite_path: ` + filepath.Join(dir, "metrics.db") + `
logging:
  level: error
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	root := NewRootCommandWithIO(strings.NewReader(stdin), out, out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDiagnoseJSON(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	src := filepath.Join(dir, "models.py")
	require.NoError(t, os.WriteFile(src, []byte("import views\n\nclass User:\n    pass\n"), 0o600))
	logPath := filepath.Join(dir, "pytest.log")
	require.NoError(t, os.WriteFile(logPath, []byte(
		"  File \"/ci/app/models.py\", line 1, in <module>\nImportError: cannot import name 'User' (most likely due to a circular import)\n"), 0o600))

	out, err := run(t, "", "--config", cfgPath, "diagnose", "--log", logPath, "--summary", "moved User", "--json", src)
	require.NoError(t, err)

	var res models.DiagnosisResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
	assert.Nil(t, res.FollowUp)
	assert.NotEmpty(t, res.Patches)
}

func TestDiagnoseReadsLogFromStdin(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	out, err := run(t, "panic: runtime error: index out of range\n", "--config", cfgPath, "diagnose", "--log", "-", "--no-record")
	require.NoError(t, err)
	assert.Contains(t, out, "Root cause:")
	assert.Contains(t, out, "Confidence:")
	assert.Contains(t, out, "path=fallback")

	_, err = os.Stat(filepath.Join(dir, "metrics.db"))
	assert.True(t, os.IsNotExist(err), "--no-record must not create the store")
}

func TestDiagnoseMissingFile(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())

	_, err := run(t, "", "--config", cfgPath, "diagnose", "/does/not/exist.py")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exist.py")
}

func TestMetricsAfterDiagnose(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	for i := 0; i < 2; i++ {
		_, err := run(t, "", "--config", cfgPath, "diagnose", "--summary", "refactor")
		require.NoError(t, err)
	}

	out, err := run(t, "", "--config", cfgPath, "metrics", "--json", "--limit", "1")
	require.NoError(t, err)
	var got struct {
		Summary models.MetricsSummary   `json:"summary"`
		Records []*models.MetricsRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.EqualValues(t, 2, got.Summary.Count)
	require.Len(t, got.Records, 1)
	assert.InDelta(t, 0.9, got.Records[0].Confidence, 1e-9)

	out, err = run(t, "", "--config", cfgPath, "metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "Requests:")

	_, err = run(t, "", "--config", cfgPath, "metrics", "--limit", "0")
	assert.Error(t, err)
}

func TestServeStopsOnContextCancel(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())

	out := &bytes.Buffer{}
	root := NewRootCommandWithIO(strings.NewReader(""), out, out)
	root.SetArgs([]string{"--config", cfgPath, "serve", "--port", "0"})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, root.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "copilot listening on 127.0.0.1:")
}

func TestInvalidConfigIsRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: carrier-pigeon\n"), 0o600))

	_, err := run(t, "", "--config", path, "metrics")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}
