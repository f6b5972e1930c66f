package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-copilot/internal/models"
)

func TestAssembleMinimal(t *testing.T) {
	got := NewAssembler(nil).Assemble(Input{ErrorLog: "", Summary: "refactor"})

	want := Instructions + "\n\nError log:\n\n\nSummary of changes:\nrefactor"
	assert.Equal(t, want, got)
	for _, label := range []string{LabelExemplars, LabelRetrieved, LabelContext} {
		assert.NotContains(t, got, label)
	}
}

func TestAssembleSectionOrder(t *testing.T) {
	a := NewAssembler(StaticExemplars(Exemplar{Example: "EX1"}, Exemplar{Example: "EX2"}))
	got := a.Assemble(Input{
		ErrorLog:  "Traceback ...",
		Summary:   "moved login",
		Retrieved: []string{"R1", "R2"},
		Context: []models.ContextSnippet{
			{Filename: "user.py", Start: 1, End: 2, Text: "import os\nimport sys"},
			{Filename: "login.py", Start: 5, End: 5, Text: "def login(): pass"},
		},
	})

	want := strings.Join([]string{
		Instructions,
		"Few-shot examples:\nEX1\n\nEX2",
		"Relevant retrieved snippets:\nR1\n\nR2",
		"Relevant code context:\nContext from user.py (lines 1-2):\nimport os\nimport sys\n\nContext from login.py (lines 5-5):\ndef login(): pass",
		"Error log:\nTraceback ...",
		"Summary of changes:\nmoved login",
	}, "\n\n")
	assert.Equal(t, want, got)
}

func TestAssembleAlwaysHasLogAndSummary(t *testing.T) {
	inputs := []Input{
		{},
		{Retrieved: []string{"x"}},
		{Context: []models.ContextSnippet{{Filename: "a", Start: 1, End: 1, Text: "b"}}},
	}
	for _, in := range inputs {
		got := NewAssembler(StaticExemplars()).Assemble(in)
		assert.Contains(t, got, LabelErrorLog)
		assert.Contains(t, got, LabelSummary)
		assert.Less(t, strings.Index(got, LabelErrorLog), strings.Index(got, LabelSummary))
		assert.True(t, strings.HasPrefix(got, Instructions))
	}
}

func TestExemplarStoreReload(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file is empty", func(t *testing.T) {
		s := NewExemplarStore(filepath.Join(dir, "absent.json"))
		require.NoError(t, s.Reload())
		assert.Empty(t, s.Examples())
	})

	t.Run("json file", func(t *testing.T) {
		path := filepath.Join(dir, "prompt.examples.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"example": "one"}, {"example": ""}, {"example": "two"}]`), 0o600))
		s := NewExemplarStore(path)
		require.NoError(t, s.Reload())
		assert.Equal(t, []Exemplar{{Example: "one"}, {Example: "two"}}, s.Examples())
	})

	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(dir, "examples.yaml")
		require.NoError(t, os.WriteFile(path, []byte("- example: |\n    multi\n    line\n"), 0o600))
		s := NewExemplarStore(path)
		require.NoError(t, s.Reload())
		assert.Equal(t, []Exemplar{{Example: "multi\nline\n"}}, s.Examples())
	})

	t.Run("malformed file keeps previous set", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"example": "kept"}]`), 0o600))
		s := NewExemplarStore(path)
		require.NoError(t, s.Reload())

		require.NoError(t, os.WriteFile(path, []byte(`{"example": [`), 0o600))
		assert.Error(t, s.Reload())
		assert.Equal(t, []Exemplar{{Example: "kept"}}, s.Examples())
	})
}
