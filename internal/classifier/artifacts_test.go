package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spam-moderator/internal/models"
)

func TestFileArtifactStore_LoadMissing(t *testing.T) {
	store := NewFileArtifactStore(filepath.Join(t.TempDir(), "checkpoints"))
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrArtifactsNotFound)
}

func TestFileArtifactStore_SaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoints")
	store := NewFileArtifactStore(dir)

	want := &Artifacts{Vectorizer: []byte("vectorizer"), Model: []byte("model")}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"tfidf_checkpoint.gob", "model_checkpoint.gob"}, names)
}

func TestFileArtifactStore_HalfWritten(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tfidf_checkpoint.gob"), []byte("x"), 0644))

	_, err := NewFileArtifactStore(dir).Load()
	assert.ErrorIs(t, err, ErrArtifactsNotFound)
}

func TestFileArtifactStore_Classifier(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoints")
	examples := balanced(20)

	first, err := New(testConfig(), &memStore{examples: examples}, NewFileArtifactStore(dir), zap.NewNop())
	require.NoError(t, err)

	second, err := New(testConfig(), &memStore{examples: examples}, NewFileArtifactStore(dir), zap.NewNop())
	require.NoError(t, err)
	assert.True(t, second.Stats().LastTraining.Loaded)

	for _, ex := range examples {
		assert.Equal(t, first.Predict(ex.Text), second.Predict(ex.Text))
	}
}

func TestDecodeArtifacts_Mismatch(t *testing.T) {
	c, _, _ := newTestClassifier(t, balanced(10))
	small, _, _ := newTestClassifier(t, []models.Example{
		{Text: "free money", Label: models.Spam},
		{Text: "hello friend", Label: models.Ham},
		{Text: "free prize", Label: models.Spam},
		{Text: "hello again", Label: models.Ham},
		{Text: "win money", Label: models.Spam},
	})

	big, err := encodeArtifacts(c.current)
	require.NoError(t, err)
	other, err := encodeArtifacts(small.current)
	require.NoError(t, err)

	_, err = decodeArtifacts(&Artifacts{Vectorizer: big.Vectorizer, Model: other.Model})
	assert.Error(t, err)

	p, err := decodeArtifacts(big)
	require.NoError(t, err)
	assert.Equal(t, c.current.vectorizer.Size(), p.vectorizer.Size())
}

func TestDecodeArtifacts_MixedTrainingPasses(t *testing.T) {
	c, _, _ := newTestClassifier(t, balanced(10))
	train := c.Examples()

	// same training data, so both passes have the same vocabulary size
	first, err := c.fitPair(train)
	require.NoError(t, err)
	second, err := c.fitPair(train)
	require.NoError(t, err)
	require.Equal(t, first.vectorizer.Size(), second.vectorizer.Size())

	a, err := encodeArtifacts(first)
	require.NoError(t, err)
	b, err := encodeArtifacts(second)
	require.NoError(t, err)

	_, err = decodeArtifacts(&Artifacts{Vectorizer: a.Vectorizer, Model: b.Model})
	assert.ErrorIs(t, err, errMixedArtifacts)

	p, err := decodeArtifacts(a)
	require.NoError(t, err)
	assert.Equal(t, first.generation, p.generation)
}

func TestFileArtifactStore_InterruptedSaveRetrains(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoints")
	store := &memStore{examples: []models.Example{
		{Text: "hello friend", Label: models.Ham},
		{Text: "cheap pills", Label: models.Spam},
		{Text: "hello friend", Label: models.Ham},
		{Text: "cheap pills", Label: models.Spam},
		{Text: "hello friend", Label: models.Ham},
		{Text: "cheap pills", Label: models.Spam},
	}}

	c, err := New(testConfig(), store, NewFileArtifactStore(dir), zap.NewNop())
	require.NoError(t, err)
	staleModel, err := os.ReadFile(filepath.Join(dir, "model_checkpoint.gob"))
	require.NoError(t, err)

	// a second pass replaces both files, then the old model comes back as if
	// the second rename never happened
	require.NoError(t, c.Train())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model_checkpoint.gob"), staleModel, 0644))

	restored, err := New(testConfig(), store, NewFileArtifactStore(dir), zap.NewNop())
	require.NoError(t, err)
	assert.False(t, restored.Stats().LastTraining.Loaded)
	assert.Equal(t, models.Ham, restored.Predict("hello friend"))
	assert.Equal(t, models.Spam, restored.Predict("cheap pills"))
}

func TestFileArtifactStore_FileMode(t *testing.T) {
	dir := t.TempDir()
	store := NewFileArtifactStore(dir)
	a := &Artifacts{Vectorizer: []byte("v"), Model: []byte("m")}

	require.NoError(t, store.Save(a))
	info, err := os.Stat(filepath.Join(dir, "model_checkpoint.gob"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	require.NoError(t, os.Chmod(filepath.Join(dir, "model_checkpoint.gob"), 0640))
	require.NoError(t, store.Save(a))
	info, err = os.Stat(filepath.Join(dir, "model_checkpoint.gob"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())
}
