package codectx

import (
	"strings"

	"github.com/kubilitics/kubilitics-copilot/internal/models"
)

// DefaultHalfWidth is the number of lines kept on each side of a reference.
const DefaultHalfWidth = 30

// Extract slices a window of lines around each reference.
//
// A reference resolves to the first file whose basename or full name equals
// it. References without a matching file, or whose file has no text, are
// skipped. Windows are [max(1, L-W), min(N, L+W)]; a reference past the end
// of the file yields the last line alone so that 1 <= Start <= End <= N holds.
func Extract(files []models.DecodedFile, refs []models.ErrorReference, halfWidth int) []models.ContextSnippet {
	if halfWidth < 0 {
		halfWidth = 0
	}

	var snippets []models.ContextSnippet
	for _, ref := range refs {
		file, ok := findFile(files, ref.Filename)
		if !ok || file.Text == "" {
			continue
		}

		lines := SplitLines(file.Text)
		if len(lines) == 0 {
			continue
		}
		start := max(1, ref.Line-halfWidth)
		end := min(len(lines), ref.Line+halfWidth)
		if start > end {
			start = end
		}

		snippets = append(snippets, models.ContextSnippet{
			Filename: file.Name,
			Start:    start,
			End:      end,
			Text:     strings.Join(lines[start-1:end], "\n"),
		})
	}
	return snippets
}

// findFile returns the first file matching name; later duplicates are unreachable.
func findFile(files []models.DecodedFile, name string) (models.DecodedFile, bool) {
	for _, f := range files {
		if Basename(f.Name) == name || f.Name == name {
			return f, true
		}
	}
	return models.DecodedFile{}, false
}

// SplitLines splits text on \n, \r\n or \r. A trailing line terminator does
// not produce an extra empty line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}
