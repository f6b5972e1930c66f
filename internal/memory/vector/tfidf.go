package vector

import (
	"math"
	"strings"
	"unicode"
)

// sparseVector maps vocabulary column to weight.
type sparseVector map[int]float64

// Tokenize lower-cases text and returns runs of two or more word characters,
// excluding English stop words.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	var tokens []string
	start := -1
	runes := 0
	flush := func(end int) {
		if start >= 0 && runes >= 2 {
			tok := lower[start:end]
			if _, stop := englishStopWords[tok]; !stop {
				tokens = append(tokens, tok)
			}
		}
		start, runes = -1, 0
	}
	for i, r := range lower {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			runes++
			continue
		}
		flush(i)
	}
	flush(len(lower))
	return tokens
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

// vectorizer is a fitted term-frequency / inverse-document-frequency model.
// Weights use raw term counts, smoothed idf ln((1+n)/(1+df))+1 and L2 rows.
type vectorizer struct {
	vocabulary map[string]int
	idf        []float64
}

// fit learns the vocabulary and idf weights and returns the document rows.
func fit(texts []string) (*vectorizer, []sparseVector) {
	v := &vectorizer{vocabulary: make(map[string]int)}
	tokenized := make([][]string, len(texts))
	var df []int

	for i, text := range texts {
		tokenized[i] = Tokenize(text)
		seen := make(map[int]bool)
		for _, tok := range tokenized[i] {
			col, ok := v.vocabulary[tok]
			if !ok {
				col = len(v.vocabulary)
				v.vocabulary[tok] = col
				df = append(df, 0)
			}
			if !seen[col] {
				seen[col] = true
				df[col]++
			}
		}
	}

	n := float64(len(texts))
	v.idf = make([]float64, len(df))
	for col, d := range df {
		v.idf[col] = math.Log((1+n)/(1+float64(d))) + 1
	}

	rows := make([]sparseVector, len(texts))
	for i, toks := range tokenized {
		rows[i] = v.weigh(toks)
	}
	return v, rows
}

// transform projects text into the fitted space. Unknown terms are ignored,
// so an all-unknown text yields an empty vector.
func (v *vectorizer) transform(text string) sparseVector {
	return v.weigh(Tokenize(text))
}

func (v *vectorizer) weigh(tokens []string) sparseVector {
	vec := make(sparseVector)
	for _, tok := range tokens {
		if col, ok := v.vocabulary[tok]; ok {
			vec[col]++
		}
	}
	var norm float64
	for col, tf := range vec {
		w := tf * v.idf[col]
		vec[col] = w
		norm += w * w
	}
	if norm == 0 {
		return sparseVector{}
	}
	norm = math.Sqrt(norm)
	for col := range vec {
		vec[col] /= norm
	}
	return vec
}

// cosine of two L2-normalised vectors.
func cosine(a, b sparseVector) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var dot float64
	for col, w := range a {
		dot += w * b[col]
	}
	return dot
}
