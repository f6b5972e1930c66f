package vector

// Package vector provides sparse lexical similarity search over the files
// uploaded with a diagnose request.
//
// The index is rebuilt wholesale from a file set and then queried with the
// error log and change summary. The diagnosis engine builds one index per
// request; the index is also safe to share, in which case a rebuild and a
// query never interleave.
//
// Retrieval is best-effort: an empty index or a query with no known terms
// yields no results rather than an error.

import (
	"sort"
	"sync"

	"github.com/kubilitics/kubilitics-copilot/internal/models"
)

// DefaultSnippetChars bounds the length of every returned snippet.
const DefaultSnippetChars = 1000

// Match is one ranked document.
type Match struct {
	Filename string  `json:"filename"`
	Score    float64 `json:"score"`
	Snippet  string  `json:"snippet"`
}

// Index is a TF-IDF index over a set of documents.
type Index struct {
	mu           sync.RWMutex
	snippetChars int
	docs         []models.DecodedFile
	model        *vectorizer
	rows         []sparseVector
}

// Option configures an Index.
type Option func(*Index)

// WithSnippetChars shortens the snippet truncation length. Values outside
// 1..DefaultSnippetChars are ignored.
func WithSnippetChars(n int) Option {
	return func(idx *Index) {
		if n > 0 && n <= DefaultSnippetChars {
			idx.snippetChars = n
		}
	}
}

// NewIndex returns an empty index.
func NewIndex(opts ...Option) *Index {
	idx := &Index{snippetChars: DefaultSnippetChars}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Rebuild discards the current state and indexes the files with non-empty
// text, keeping their original order. With no such files the index is empty.
func (idx *Index) Rebuild(files []models.DecodedFile) {
	var docs []models.DecodedFile
	var texts []string
	for _, f := range files {
		if f.Text != "" {
			docs = append(docs, f)
			texts = append(texts, f.Text)
		}
	}

	var model *vectorizer
	var rows []sparseVector
	if len(texts) > 0 {
		model, rows = fit(texts)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.docs, idx.model, idx.rows = docs, model, rows
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Search ranks indexed documents by cosine similarity to text, highest
// first, ties in original order, and returns at most k matches.
func (idx *Index) Search(text string, k int) []Match {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.model == nil || k <= 0 {
		return nil
	}
	query := idx.model.transform(text)
	if len(query) == 0 {
		return nil
	}

	matches := make([]Match, len(idx.docs))
	for i, doc := range idx.docs {
		matches[i] = Match{
			Filename: doc.Name,
			Score:    cosine(query, idx.rows[i]),
			Snippet:  truncate(doc.Text, idx.snippetChars),
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Query returns the snippets of the top k documents for text.
func (idx *Index) Query(text string, k int) []string {
	matches := idx.Search(text, k)
	if len(matches) == 0 {
		return nil
	}
	snippets := make([]string, len(matches))
	for i, m := range matches {
		snippets[i] = m.Snippet
	}
	return snippets
}

// truncate keeps at most n characters of s.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
