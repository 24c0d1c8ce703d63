// Package classifier is the incremental spam/ham text classifier. It owns the growing
// labeled dataset, fits a TF-IDF vectorizer and a multinomial Naive Bayes model on it,
// serves predictions and retrains in full after every new example.
//
// AddEntry and Train are serialized with a mutex. Predict and Accuracy only take a read
// lock on the (vectorizer, model) pair, which a retrain replaces as a unit once fitting
// has succeeded; a failed retrain leaves the previous pair in place.
package classifier

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spam-moderator/internal/bayes"
	"spam-moderator/internal/dataset"
	"spam-moderator/internal/features"
	"spam-moderator/internal/models"
)

// Config tunes training. Zero values are replaced by defaults.
type Config struct {
	TestSize      float64     // доля оценочной выборки (0.2)
	Alpha         float64     // аддитивное сглаживание (1.0)
	MinExamples   int         // минимальный размер датасета (2)
	SplitAttempts int         // сколько раз перетасовать, пока в обучении не окажутся оба класса
	Source        rand.Source // nil - глобальный генератор без фиксированного seed
}

func (c *Config) applyDefaults() {
	if c.TestSize <= 0 || c.TestSize >= 1 {
		c.TestSize = 0.2
	}
	if c.Alpha <= 0 {
		c.Alpha = bayes.DefaultAlpha
	}
	if c.MinExamples < 2 {
		c.MinExamples = 2
	}
	if c.SplitAttempts <= 0 {
		c.SplitAttempts = 10
	}
}

// TrainReport describes the pair currently in use.
type TrainReport struct {
	Accuracy  float64   `json:"accuracy"`
	TrainSize int       `json:"train_size"`
	EvalSize  int       `json:"eval_size"`
	Features  int       `json:"features"`
	TrainedAt time.Time `json:"trained_at"`
	Loaded    bool      `json:"loaded"` // пара загружена из артефактов, а не обучена в этом процессе
}

// Stats is a snapshot of the dataset and the last training pass.
type Stats struct {
	Examples     int          `json:"examples"`
	Ham          int          `json:"ham"`
	Spam         int          `json:"spam"`
	LastTraining *TrainReport `json:"last_training,omitempty"`
}

// pair is a vectorizer and the model fitted on its output.
type pair struct {
	vectorizer *features.Vectorizer
	model      *bayes.Model
	generation string // общий идентификатор прохода обучения
}

// Classifier is safe for concurrent use.
type Classifier struct {
	cfg       Config
	store     dataset.Store
	artifacts ArtifactStore
	logger    *zap.Logger

	fit func(train []models.Example) (*pair, error)

	rngMu sync.Mutex
	rng   *rand.Rand

	trainMu sync.Mutex // AddEntry/Train

	mu       sync.RWMutex
	examples []models.Example
	current  *pair
	report   *TrainReport
}

// New loads the dataset from store and restores the persisted pair from artifacts.
// When no artifacts exist (or they cannot be decoded) it trains from scratch, and
// fails if the dataset is too small for that. A nil artifacts store disables model persistence.
func New(cfg Config, store dataset.Store, artifacts ArtifactStore, logger *zap.Logger) (*Classifier, error) {
	cfg.applyDefaults()

	examples, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	c := &Classifier{
		cfg:       cfg,
		store:     store,
		artifacts: artifacts,
		logger:    logger,
		examples:  examples,
	}
	c.fit = c.fitPair
	if cfg.Source != nil {
		c.rng = rand.New(cfg.Source)
	}

	logger.Info("Dataset loaded", zap.Int("examples", len(examples)))

	if artifacts != nil {
		p, err := c.loadArtifacts()
		switch {
		case err == nil:
			c.current = p
			c.report = &TrainReport{Features: p.vectorizer.Size(), Loaded: true}
			logger.Info("Model artifacts restored", zap.Int("features", p.vectorizer.Size()))
			return c, nil
		case errors.Is(err, ErrArtifactsNotFound):
			logger.Info("No model artifacts found, training from dataset")
		default:
			logger.Warn("Failed to restore model artifacts, training from dataset", zap.Error(err))
		}
	}

	if err := c.Train(); err != nil {
		return nil, fmt.Errorf("initial training failed: %w", err)
	}
	return c, nil
}

func (c *Classifier) loadArtifacts() (*pair, error) {
	a, err := c.artifacts.Load()
	if err != nil {
		return nil, err
	}
	return decodeArtifacts(a)
}

func (c *Classifier) perm(n int) []int {
	if c.rng == nil {
		return rand.Perm(n)
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.rng.Perm(n)
}

// Predict returns Ham or Spam for text. Unknown tokens carry no weight; text with no
// known tokens is decided by the class priors.
func (c *Classifier) Predict(text string) models.Label {
	label, _ := c.Score(text)
	return label
}

// Score returns the predicted label together with the posterior probability of spam.
func (c *Classifier) Score(text string) (models.Label, float64) {
	c.mu.RLock()
	p := c.current
	c.mu.RUnlock()

	if p == nil {
		return models.Ham, 0
	}
	x := p.vectorizer.Transform(text)
	return p.model.Predict(x), p.model.SpamProbability(x)
}

// AddEntry appends a labeled example, rewrites the dataset and retrains.
// Blank text is ignored without error. If the dataset cannot be written the append is
// rolled back and an ErrStorage error is returned. A retrain failure keeps the new row
// (it is already on disk) and the previous model.
func (c *Classifier) AddEntry(text string, label models.Label) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if !label.Valid() {
		return fmt.Errorf("%w: %g", ErrInvalidLabel, float64(label))
	}

	c.trainMu.Lock()
	defer c.trainMu.Unlock()

	c.mu.Lock()
	prev := c.examples
	// full slice expression: readers may still hold prev
	next := append(prev[:len(prev):len(prev)], models.Example{Text: text, Label: label})
	c.examples = next
	c.mu.Unlock()

	if err := c.store.Save(next); err != nil {
		c.mu.Lock()
		c.examples = prev
		c.mu.Unlock()
		c.logger.Error("Failed to save dataset, entry rolled back", zap.Error(err))
		return fmt.Errorf("%w: failed to save dataset: %w", ErrStorage, err)
	}

	c.logger.Info("Dataset entry added",
		zap.String("label", label.String()),
		zap.Int("examples", len(next)))

	return c.train()
}

// Train refits the vectorizer and model on a fresh random split of the dataset.
func (c *Classifier) Train() error {
	c.trainMu.Lock()
	defer c.trainMu.Unlock()
	return c.train()
}

func (c *Classifier) train() error {
	c.mu.RLock()
	examples := c.examples
	c.mu.RUnlock()

	if len(examples) < c.cfg.MinExamples {
		return fmt.Errorf("%w: dataset has %d examples, need at least %d", ErrInsufficientData, len(examples), c.cfg.MinExamples)
	}
	if ham, spam := countLabels(examples); ham == 0 || spam == 0 {
		return fmt.Errorf("%w: dataset has %d ham and %d spam examples", ErrInsufficientData, ham, spam)
	}

	trainSet, evalSet, err := c.trainingSplit(examples)
	if err != nil {
		return err
	}

	start := time.Now()
	p, err := c.fit(trainSet)
	if err != nil {
		c.logger.Error("Training failed, keeping previous model", zap.Error(err))
		return fmt.Errorf("failed to fit model: %w", err)
	}

	accuracy := p.model.Score(p.vectorizer.TransformAll(texts(evalSet)), labels(evalSet)) * 100
	report := &TrainReport{
		Accuracy:  accuracy,
		TrainSize: len(trainSet),
		EvalSize:  len(evalSet),
		Features:  p.vectorizer.Size(),
		TrainedAt: time.Now(),
	}

	c.mu.Lock()
	c.current = p
	c.report = report
	c.mu.Unlock()

	c.logger.Info("Model trained",
		zap.Float64("accuracy", accuracy),
		zap.Int("train_size", report.TrainSize),
		zap.Int("eval_size", report.EvalSize),
		zap.Int("features", report.Features),
		zap.Duration("took", time.Since(start)))

	if c.artifacts == nil {
		return nil
	}
	a, err := encodeArtifacts(p)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if err := c.artifacts.Save(a); err != nil {
		c.logger.Error("Failed to save model artifacts", zap.Error(err))
		return fmt.Errorf("%w: failed to save model artifacts: %w", ErrStorage, err)
	}
	return nil
}

func (c *Classifier) fitPair(train []models.Example) (*pair, error) {
	docs := texts(train)
	v, err := features.Fit(docs)
	if err != nil {
		if errors.Is(err, features.ErrEmptyVocabulary) {
			return nil, fmt.Errorf("%w: %w", ErrInsufficientData, err)
		}
		return nil, err
	}

	m, err := bayes.Fit(v.TransformAll(docs), labels(train), v.Size(), c.cfg.Alpha)
	if err != nil {
		if errors.Is(err, bayes.ErrMissingClass) || errors.Is(err, bayes.ErrNoSamples) {
			return nil, fmt.Errorf("%w: %w", ErrInsufficientData, err)
		}
		return nil, err
	}

	return &pair{vectorizer: v, model: m, generation: uuid.NewString()}, nil
}

// Accuracy scores the current model, in percent, on a freshly drawn evaluation split of the
// current dataset. The split differs on every call, so the value varies from run to run.
func (c *Classifier) Accuracy() float64 {
	c.mu.RLock()
	examples := c.examples
	p := c.current
	c.mu.RUnlock()

	if p == nil || len(examples) == 0 {
		return 0
	}

	_, evalSet := c.split(examples)
	return p.model.Score(p.vectorizer.TransformAll(texts(evalSet)), labels(evalSet)) * 100
}

// Size returns the number of examples in the dataset.
func (c *Classifier) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.examples)
}

// Examples returns a copy of the dataset in row order.
func (c *Classifier) Examples() []models.Example {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Example, len(c.examples))
	copy(out, c.examples)
	return out
}

// Stats returns label counts and the last training report.
func (c *Classifier) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ham, spam := countLabels(c.examples)
	s := Stats{Examples: len(c.examples), Ham: ham, Spam: spam}
	if c.report != nil {
		r := *c.report
		s.LastTraining = &r
	}
	return s
}
