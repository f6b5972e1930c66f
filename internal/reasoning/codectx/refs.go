// Package codectx turns an error log into fault locations and slices the
// surrounding source lines out of the uploaded files.
package codectx

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kubilitics/kubilitics-copilot/internal/models"
)

var (
	// File "/path/to/module.py", line 42
	tracebackPattern = regexp.MustCompile(`File "([^"]+?)",\s*line\s*(\d+)`)

	// path/to/file.go:123
	colonPattern = regexp.MustCompile(`([\w.\-/]+\.(?:py|go|js|mjs|cjs|ts|tsx|jsx|java|kt|rb|rs|c|cc|cpp|h|hpp|cs|php|swift|scala)):(\d+)`)
)

// ParseReferences extracts (basename, line) pairs from an error log.
//
// All traceback-style matches come first in log order, followed by all
// colon-style matches in log order. The same location matched by both
// patterns appears twice. Lines that are zero or do not fit in an int are dropped.
func ParseReferences(errorLog string) []models.ErrorReference {
	if errorLog == "" {
		return nil
	}

	var refs []models.ErrorReference
	for _, pattern := range []*regexp.Regexp{tracebackPattern, colonPattern} {
		for _, m := range pattern.FindAllStringSubmatch(errorLog, -1) {
			line, err := strconv.Atoi(m[2])
			if err != nil || line < 1 {
				continue
			}
			refs = append(refs, models.ErrorReference{Filename: Basename(m[1]), Line: line})
		}
	}
	return refs
}

// Basename returns the final path component, accepting both slash styles.
func Basename(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
