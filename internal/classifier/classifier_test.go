package classifier

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spam-moderator/internal/dataset"
	"spam-moderator/internal/models"
)

type memStore struct {
	mu       sync.Mutex
	examples []models.Example
	saves    int
	saveErr  error
}

func (m *memStore) Load() ([]models.Example, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Example(nil), m.examples...), nil
}

func (m *memStore) Save(examples []models.Example) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.examples = append([]models.Example(nil), examples...)
	return nil
}

type memArtifacts struct {
	mu      sync.Mutex
	saved   *Artifacts
	saves   int
	saveErr error
}

func (m *memArtifacts) Load() (*Artifacts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return nil, ErrArtifactsNotFound
	}
	return m.saved, nil
}

func (m *memArtifacts) Save(a *Artifacts) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.saved = a
	return nil
}

var (
	hamTemplates = []string{
		"see you at the meeting tomorrow %d",
		"lunch with the team tomorrow at noon %d",
		"can we move the meeting to friday %d",
		"thanks for the notes from the meeting %d",
	}
	spamTemplates = []string{
		"win free money now click the link %d",
		"claim your free prize money today %d",
		"cheap pills win a prize click here %d",
		"free crypto bonus click to win money %d",
	}
)

// balanced returns n ham and n spam examples, interleaved.
func balanced(n int) []models.Example {
	out := make([]models.Example, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out,
			models.Example{Text: fmt.Sprintf(hamTemplates[i%len(hamTemplates)], i), Label: models.Ham},
			models.Example{Text: fmt.Sprintf(spamTemplates[i%len(spamTemplates)], i), Label: models.Spam},
		)
	}
	return out
}

func testConfig() Config {
	return Config{Source: rand.NewPCG(1, 2)}
}

func newTestClassifier(t *testing.T, examples []models.Example) (*Classifier, *memStore, *memArtifacts) {
	t.Helper()
	store := &memStore{examples: examples}
	artifacts := &memArtifacts{}
	c, err := New(testConfig(), store, artifacts, zap.NewNop())
	require.NoError(t, err)
	return c, store, artifacts
}

func TestNew_TrainsBalancedDataset(t *testing.T) {
	c, _, artifacts := newTestClassifier(t, balanced(20))

	assert.Equal(t, models.Spam, c.Predict("win free money prize"))
	assert.Equal(t, models.Ham, c.Predict("see you at the meeting tomorrow"))

	stats := c.Stats()
	assert.Equal(t, 40, stats.Examples)
	assert.Equal(t, 20, stats.Ham)
	assert.Equal(t, 20, stats.Spam)
	require.NotNil(t, stats.LastTraining)
	assert.Equal(t, 8, stats.LastTraining.EvalSize)
	assert.Equal(t, 32, stats.LastTraining.TrainSize)
	assert.False(t, stats.LastTraining.Loaded)

	assert.Equal(t, 1, artifacts.saves)
}

func TestAddEntry_HelloFriendScenario(t *testing.T) {
	var examples []models.Example
	for i := 0; i < 20; i++ {
		examples = append(examples, models.Example{Text: "hello friend", Label: models.Ham})
	}
	for i := 0; i < 20; i++ {
		examples = append(examples, models.Example{Text: "buy cheap pills now", Label: models.Spam})
	}

	// unseeded, like production
	store := &memStore{examples: examples}
	c, err := New(Config{}, store, &memArtifacts{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, models.Ham, c.Predict("hello friend"))

	require.NoError(t, c.AddEntry("free money click now", models.Spam))
	assert.Equal(t, 41, c.Size())
	assert.Equal(t, models.Spam, c.Predict("free money click now"))

	saved, err := store.Load()
	require.NoError(t, err)
	require.Len(t, saved, 41)
	assert.Equal(t, models.Example{Text: "free money click now", Label: models.Spam}, saved[40])
}

func TestNew_InsufficientData(t *testing.T) {
	tests := []struct {
		name     string
		examples []models.Example
	}{
		{name: "empty", examples: nil},
		{name: "single row", examples: []models.Example{{Text: "hello there", Label: models.Ham}}},
		{name: "single class", examples: []models.Example{
			{Text: "hello there", Label: models.Ham},
			{Text: "good morning", Label: models.Ham},
			{Text: "how are you", Label: models.Ham},
		}},
		// one training row can never hold both classes
		{name: "two rows", examples: []models.Example{
			{Text: "hello there", Label: models.Ham},
			{Text: "free money", Label: models.Spam},
		}},
		{name: "no tokens", examples: []models.Example{
			{Text: "a", Label: models.Ham},
			{Text: "b", Label: models.Spam},
			{Text: "c", Label: models.Ham},
			{Text: "d", Label: models.Spam},
			{Text: "e", Label: models.Spam},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(testConfig(), &memStore{examples: tt.examples}, nil, zap.NewNop())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInsufficientData)
		})
	}
}

type failingLoadStore struct{}

func (failingLoadStore) Load() ([]models.Example, error) {
	return nil, errors.New("disk on fire")
}

func (failingLoadStore) Save([]models.Example) error { return nil }

func TestNew_DatasetLoadFailure(t *testing.T) {
	_, err := New(testConfig(), failingLoadStore{}, nil, zap.NewNop())
	assert.ErrorContains(t, err, "disk on fire")
}

func TestNew_MissingDatasetFile(t *testing.T) {
	store := dataset.NewCSVStore(filepath.Join(t.TempDir(), "missing.csv"))
	_, err := New(testConfig(), store, nil, zap.NewNop())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNew_ArtifactSaveFailure(t *testing.T) {
	artifacts := &memArtifacts{saveErr: errors.New("read-only")}
	_, err := New(testConfig(), &memStore{examples: balanced(10)}, artifacts, zap.NewNop())
	assert.ErrorIs(t, err, ErrStorage)
}

func TestNew_RestoresArtifacts(t *testing.T) {
	first, _, artifacts := newTestClassifier(t, balanced(20))

	// the second instance must not retrain, so give it a dataset it could not train on
	second, err := New(testConfig(), &memStore{examples: balanced(1)[:1]}, artifacts, zap.NewNop())
	require.NoError(t, err)

	for _, text := range []string{"win free money prize", "meeting tomorrow", "", "unknown words only"} {
		assert.Equal(t, first.Predict(text), second.Predict(text), text)
	}
	require.NotNil(t, second.Stats().LastTraining)
	assert.True(t, second.Stats().LastTraining.Loaded)
	assert.Equal(t, 1, artifacts.saves)
}

func TestNew_CorruptArtifactsRetrain(t *testing.T) {
	artifacts := &memArtifacts{saved: &Artifacts{Vectorizer: []byte("garbage"), Model: []byte("garbage")}}

	c, err := New(testConfig(), &memStore{examples: balanced(10)}, artifacts, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, c.Stats().LastTraining.Loaded)
	assert.Equal(t, 1, artifacts.saves)
}

func TestPredict_Idempotent(t *testing.T) {
	c, _, _ := newTestClassifier(t, balanced(20))

	for _, text := range []string{"win free money", "lunch tomorrow", "", "zzz qqq", "MEETING Tomorrow!"} {
		first := c.Predict(text)
		assert.True(t, first.Valid())
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, c.Predict(text))
		}
	}
}

func TestPredict_CaseInsensitive(t *testing.T) {
	c, _, _ := newTestClassifier(t, balanced(20))
	assert.Equal(t, c.Predict("win free money"), c.Predict("WIN Free MONEY"))
}

func TestScore_Probability(t *testing.T) {
	c, _, _ := newTestClassifier(t, balanced(20))

	label, p := c.Score("claim your free prize money")
	assert.Equal(t, models.Spam, label)
	assert.Greater(t, p, 0.5)

	label, p = c.Score("thanks for the meeting notes")
	assert.Equal(t, models.Ham, label)
	assert.Less(t, p, 0.5)
}

func TestAddEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spam.csv")
	store := dataset.NewCSVStore(path)
	require.NoError(t, store.Save(balanced(10)))

	c, err := New(testConfig(), store, nil, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, c.AddEntry("limited offer buy followers", models.Spam))
	assert.Equal(t, 21, c.Size())

	reloaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, reloaded, 21)
	assert.Equal(t, models.Example{Text: "limited offer buy followers", Label: models.Spam}, reloaded[20])
	assert.Equal(t, c.Examples(), reloaded)
}

func TestAddEntry_BlankTextIgnored(t *testing.T) {
	c, store, artifacts := newTestClassifier(t, balanced(10))
	before := c.Stats().LastTraining

	for _, text := range []string{"", "   ", "\n\t"} {
		require.NoError(t, c.AddEntry(text, models.Spam))
	}

	assert.Equal(t, 20, c.Size())
	assert.Equal(t, 0, store.saves)
	assert.Equal(t, 1, artifacts.saves)
	assert.Equal(t, before, c.Stats().LastTraining)
}

func TestAddEntry_InvalidLabel(t *testing.T) {
	c, store, _ := newTestClassifier(t, balanced(10))

	err := c.AddEntry("something", models.Label(0.5))
	assert.ErrorIs(t, err, ErrInvalidLabel)
	assert.Equal(t, 20, c.Size())
	assert.Equal(t, 0, store.saves)
}

func TestAddEntry_DatasetSaveFailureRollsBack(t *testing.T) {
	c, store, artifacts := newTestClassifier(t, balanced(10))
	store.saveErr = errors.New("disk full")

	err := c.AddEntry("buy now", models.Spam)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 20, c.Size())
	assert.Equal(t, 1, artifacts.saves)
}

func TestAddEntry_ArtifactSaveFailureKeepsNewModel(t *testing.T) {
	c, _, artifacts := newTestClassifier(t, balanced(10))
	c.mu.RLock()
	before := c.current
	c.mu.RUnlock()
	artifacts.saveErr = errors.New("bucket gone")

	err := c.AddEntry("buy now", models.Spam)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, 21, c.Size())

	c.mu.RLock()
	assert.NotSame(t, before, c.current)
	c.mu.RUnlock()
	after := c.Stats().LastTraining
	require.NotNil(t, after)
	assert.Equal(t, 16, after.TrainSize)
	assert.Equal(t, 5, after.EvalSize)
}

func TestAddEntry_FitFailureKeepsPreviousPair(t *testing.T) {
	c, store, _ := newTestClassifier(t, balanced(20))

	c.mu.RLock()
	before := c.current
	c.mu.RUnlock()
	predictions := map[string]models.Label{}
	for _, text := range []string{"win free money", "meeting tomorrow", "random words"} {
		predictions[text] = c.Predict(text)
	}

	c.fit = func([]models.Example) (*pair, error) {
		return nil, errors.New("simulated fit failure")
	}

	err := c.AddEntry("new spam text", models.Spam)
	assert.ErrorContains(t, err, "simulated fit failure")

	// the row is persisted, the model is not replaced
	assert.Equal(t, 41, c.Size())
	assert.Len(t, store.examples, 41)

	c.mu.RLock()
	assert.Same(t, before, c.current)
	c.mu.RUnlock()
	for text, label := range predictions {
		assert.Equal(t, label, c.Predict(text))
	}
}

func TestAddEntry_LearnsNewVocabulary(t *testing.T) {
	c, _, _ := newTestClassifier(t, balanced(20))

	for i := 0; i < 10; i++ {
		require.NoError(t, c.AddEntry(fmt.Sprintf("telegram casino jackpot %d", i), models.Spam))
	}
	assert.Equal(t, models.Spam, c.Predict("casino jackpot"))
}

func TestTrain_InsufficientDataKeepsPair(t *testing.T) {
	c, _, _ := newTestClassifier(t, balanced(10))
	c.mu.RLock()
	before := c.current
	c.mu.RUnlock()

	c.mu.Lock()
	c.examples = c.examples[:1]
	c.mu.Unlock()

	assert.ErrorIs(t, c.Train(), ErrInsufficientData)
	c.mu.RLock()
	assert.Same(t, before, c.current)
	c.mu.RUnlock()
}

func TestAccuracy(t *testing.T) {
	c, _, _ := newTestClassifier(t, balanced(20))

	for i := 0; i < 10; i++ {
		acc := c.Accuracy()
		assert.GreaterOrEqual(t, acc, 0.0)
		assert.LessOrEqual(t, acc, 100.0)
	}
}

func TestAccuracy_NoModel(t *testing.T) {
	c := &Classifier{}
	assert.Equal(t, 0.0, c.Accuracy())
	assert.Equal(t, models.Ham, c.Predict("anything"))
}

func TestSplitSizes(t *testing.T) {
	tests := []struct {
		n, eval, train int
	}{
		{n: 1, eval: 1, train: 0},
		{n: 2, eval: 1, train: 1},
		{n: 5, eval: 1, train: 4},
		{n: 6, eval: 2, train: 4},
		{n: 10, eval: 2, train: 8},
		{n: 40, eval: 8, train: 32},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.n), func(t *testing.T) {
			eval, train := splitSizes(tt.n, 0.2)
			assert.Equal(t, tt.eval, eval)
			assert.Equal(t, tt.train, train)
		})
	}
}

func TestSplit_Partition(t *testing.T) {
	c := &Classifier{cfg: testConfig()}
	c.cfg.applyDefaults()
	c.rng = rand.New(c.cfg.Source)

	examples := balanced(10)
	train, eval := c.split(examples)
	assert.Len(t, eval, 4)
	assert.Len(t, train, 16)
	assert.ElementsMatch(t, examples, append(append([]models.Example(nil), train...), eval...))
}

func TestConcurrentPredictDuringAddEntry(t *testing.T) {
	c, _, _ := newTestClassifier(t, balanced(20))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					assert.True(t, c.Predict("free money meeting").Valid())
					c.Accuracy()
					c.Examples()
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, c.AddEntry(fmt.Sprintf("another meeting note %d", i), models.Ham))
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, 45, c.Size())
}
