// Package bayes implements a binary multinomial Naive Bayes model over sparse TF-IDF vectors.
package bayes

import (
	"errors"
	"fmt"
	"math"

	"spam-moderator/internal/features"
	"spam-moderator/internal/models"
)

// DefaultAlpha is the additive (Laplace) smoothing parameter.
const DefaultAlpha = 1.0

var (
	ErrNoSamples    = errors.New("no training samples")
	ErrMissingClass = errors.New("training samples contain a single class")
)

// Model holds class priors and per-class feature log-likelihoods.
// Index 0 is ham, index 1 is spam. Fields are exported for encoding/gob.
type Model struct {
	Alpha          float64
	Features       int
	ClassCount     [2]int
	ClassLogPrior  [2]float64
	FeatureLogProb [2][]float64
}

func classIndex(l models.Label) (int, error) {
	switch l {
	case models.Ham:
		return 0, nil
	case models.Spam:
		return 1, nil
	default:
		return 0, fmt.Errorf("unexpected label %g", float64(l))
	}
}

// Fit trains a model on vectors X with labels y over a feature space of nFeatures columns.
// Both classes must be present in y.
func Fit(X []features.Vector, y []models.Label, nFeatures int, alpha float64) (*Model, error) {
	if len(X) != len(y) {
		return nil, fmt.Errorf("samples and labels differ in length: %d != %d", len(X), len(y))
	}
	if len(X) == 0 {
		return nil, ErrNoSamples
	}
	if alpha <= 0 {
		alpha = DefaultAlpha
	}

	m := &Model{Alpha: alpha, Features: nFeatures}
	var featureCount [2][]float64
	featureCount[0] = make([]float64, nFeatures)
	featureCount[1] = make([]float64, nFeatures)

	for i, x := range X {
		c, err := classIndex(y[i])
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		m.ClassCount[c]++
		for k, idx := range x.Indices {
			if idx < 0 || idx >= nFeatures {
				return nil, fmt.Errorf("sample %d: feature index %d out of range", i, idx)
			}
			featureCount[c][idx] += x.Values[k]
		}
	}

	if m.ClassCount[0] == 0 || m.ClassCount[1] == 0 {
		return nil, ErrMissingClass
	}

	total := float64(len(X))
	for c := 0; c < 2; c++ {
		m.ClassLogPrior[c] = math.Log(float64(m.ClassCount[c]) / total)

		var sum float64
		for _, v := range featureCount[c] {
			sum += v
		}
		denom := math.Log(sum + alpha*float64(nFeatures))

		m.FeatureLogProb[c] = make([]float64, nFeatures)
		for j, v := range featureCount[c] {
			m.FeatureLogProb[c][j] = math.Log(v+alpha) - denom
		}
	}

	return m, nil
}

// jointLogLikelihood returns the unnormalized log posterior of each class.
func (m *Model) jointLogLikelihood(x features.Vector) [2]float64 {
	jll := m.ClassLogPrior
	for k, idx := range x.Indices {
		if idx < 0 || idx >= m.Features {
			continue
		}
		jll[0] += x.Values[k] * m.FeatureLogProb[0][idx]
		jll[1] += x.Values[k] * m.FeatureLogProb[1][idx]
	}
	return jll
}

// Predict returns the class with the higher posterior. Ties go to ham.
func (m *Model) Predict(x features.Vector) models.Label {
	jll := m.jointLogLikelihood(x)
	if jll[1] > jll[0] {
		return models.Spam
	}
	return models.Ham
}

// SpamProbability returns the normalized posterior probability of spam.
func (m *Model) SpamProbability(x features.Vector) float64 {
	jll := m.jointLogLikelihood(x)
	hi := math.Max(jll[0], jll[1])
	ham := math.Exp(jll[0] - hi)
	spam := math.Exp(jll[1] - hi)
	return spam / (ham + spam)
}

// Score returns the fraction of X predicted as y, in [0, 1]. Empty input scores 0.
func (m *Model) Score(X []features.Vector, y []models.Label) float64 {
	if len(X) == 0 || len(X) != len(y) {
		return 0
	}
	correct := 0
	for i, x := range X {
		if m.Predict(x) == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(X))
}
