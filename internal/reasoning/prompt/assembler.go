// Package prompt composes the model prompt from the pipeline's evidence.
package prompt

import (
	"fmt"
	"strings"

	"github.com/kubilitics/kubilitics-copilot/internal/models"
)

// Input is the evidence gathered for one request.
type Input struct {
	ErrorLog  string
	Summary   string
	Retrieved []string
	Context   []models.ContextSnippet
}

// Assembler builds prompts with a fixed instruction and exemplar set.
type Assembler struct {
	instructions string
	exemplars    *ExemplarStore
}

// NewAssembler creates an assembler. A nil store means no exemplars.
func NewAssembler(exemplars *ExemplarStore) *Assembler {
	return &Assembler{instructions: Instructions, exemplars: exemplars}
}

// Assemble joins, with blank lines between them: the instructions, the
// exemplars, the retrieved snippets and the code context when present,
// then the error log and the summary, which are always present.
func (a *Assembler) Assemble(in Input) string {
	parts := []string{a.instructions}

	if examples := a.exemplars.Examples(); len(examples) > 0 {
		texts := make([]string, len(examples))
		for i, ex := range examples {
			texts[i] = ex.Example
		}
		parts = append(parts, LabelExemplars+strings.Join(texts, "\n\n"))
	}
	if len(in.Retrieved) > 0 {
		parts = append(parts, LabelRetrieved+strings.Join(in.Retrieved, "\n\n"))
	}
	if len(in.Context) > 0 {
		blocks := make([]string, len(in.Context))
		for i, snip := range in.Context {
			blocks[i] = FormatContext(snip)
		}
		parts = append(parts, LabelContext+strings.Join(blocks, "\n\n"))
	}
	parts = append(parts, LabelErrorLog+in.ErrorLog, LabelSummary+in.Summary)

	return strings.Join(parts, "\n\n")
}

// FormatContext renders a snippet with its location header.
func FormatContext(snip models.ContextSnippet) string {
	return fmt.Sprintf("Context from %s (lines %d-%d):\n%s", snip.Filename, snip.Start, snip.End, snip.Text)
}
