// Package features turns message text into TF-IDF weighted sparse vectors.
package features

import (
	"errors"
	"math"
	"sort"
)

// ErrEmptyVocabulary is returned by Fit when the documents contain no usable tokens.
var ErrEmptyVocabulary = errors.New("empty vocabulary: documents contain no tokens")

// Vector is a sparse, L2-normalized feature vector with indices in ascending order.
type Vector struct {
	Indices []int
	Values  []float64
}

// Len returns the number of non-zero features.
func (v Vector) Len() int {
	return len(v.Indices)
}

// Vectorizer maps tokens to feature columns weighted by smoothed inverse document frequency.
// Fields are exported so the vectorizer can be persisted with encoding/gob.
type Vectorizer struct {
	Vocabulary map[string]int // токен -> номер столбца
	IDF        []float64      // вес столбца
	Documents  int            // число документов при обучении
}

// Fit builds a vectorizer from the given documents. Columns are assigned in
// lexical token order so two fits over the same text produce identical vectorizers.
func Fit(docs []string) (*Vectorizer, error) {
	docFreq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, tok := range Tokenize(doc) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			docFreq[tok]++
		}
	}

	if len(docFreq) == 0 {
		return nil, ErrEmptyVocabulary
	}

	terms := make([]string, 0, len(docFreq))
	for term := range docFreq {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v := &Vectorizer{
		Vocabulary: make(map[string]int, len(terms)),
		IDF:        make([]float64, len(terms)),
		Documents:  len(docs),
	}
	for i, term := range terms {
		v.Vocabulary[term] = i
		// idf = ln((1+n)/(1+df)) + 1
		v.IDF[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}

	return v, nil
}

// Size returns the number of feature columns.
func (v *Vectorizer) Size() int {
	return len(v.IDF)
}

// Transform converts text into a vector. Tokens outside the vocabulary are ignored,
// so text with no known tokens yields an empty vector.
func (v *Vectorizer) Transform(text string) Vector {
	counts := make(map[int]float64)
	for _, tok := range Tokenize(text) {
		if idx, ok := v.Vocabulary[tok]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		return Vector{}
	}

	indices := make([]int, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	values := make([]float64, len(indices))
	var norm float64
	for i, idx := range indices {
		w := counts[idx] * v.IDF[idx]
		values[i] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for i := range values {
		values[i] /= norm
	}

	return Vector{Indices: indices, Values: values}
}

// TransformAll transforms every document in order.
func (v *Vectorizer) TransformAll(docs []string) []Vector {
	out := make([]Vector, len(docs))
	for i, doc := range docs {
		out[i] = v.Transform(doc)
	}
	return out
}
