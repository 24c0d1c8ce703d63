package classifier

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"spam-moderator/internal/bayes"
	"spam-moderator/internal/features"
)

// Well-known artifact keys.
const (
	ArtifactVectorizer = "tfidf"
	ArtifactModel      = "model"
)

// Artifacts are the two serialized blobs of one training pass.
type Artifacts struct {
	Vectorizer []byte
	Model      []byte
}

// ArtifactStore persists the vectorizer/model pair.
// Load returns ErrArtifactsNotFound when nothing has been saved yet.
type ArtifactStore interface {
	Load() (*Artifacts, error)
	Save(a *Artifacts) error
}

// errMixedArtifacts means the two blobs were written by different training passes,
// e.g. when a save was interrupted between the two files.
var errMixedArtifacts = errors.New("vectorizer and model come from different training passes")

// Both blobs carry the generation of the training pass that produced them.
type vectorizerBlob struct {
	Generation string
	Vectorizer *features.Vectorizer
}

type modelBlob struct {
	Generation string
	Model      *bayes.Model
}

func encodeArtifacts(p *pair) (*Artifacts, error) {
	var vec, mod bytes.Buffer
	if err := gob.NewEncoder(&vec).Encode(vectorizerBlob{Generation: p.generation, Vectorizer: p.vectorizer}); err != nil {
		return nil, fmt.Errorf("failed to encode vectorizer: %w", err)
	}
	if err := gob.NewEncoder(&mod).Encode(modelBlob{Generation: p.generation, Model: p.model}); err != nil {
		return nil, fmt.Errorf("failed to encode model: %w", err)
	}
	return &Artifacts{Vectorizer: vec.Bytes(), Model: mod.Bytes()}, nil
}

func decodeArtifacts(a *Artifacts) (*pair, error) {
	var vb vectorizerBlob
	if err := gob.NewDecoder(bytes.NewReader(a.Vectorizer)).Decode(&vb); err != nil {
		return nil, fmt.Errorf("failed to decode vectorizer: %w", err)
	}
	var mb modelBlob
	if err := gob.NewDecoder(bytes.NewReader(a.Model)).Decode(&mb); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if vb.Vectorizer == nil || mb.Model == nil {
		return nil, fmt.Errorf("artifacts are empty")
	}
	if vb.Generation == "" || vb.Generation != mb.Generation {
		return nil, fmt.Errorf("%w: %q and %q", errMixedArtifacts, vb.Generation, mb.Generation)
	}

	v, m := vb.Vectorizer, mb.Model
	if v.Size() == 0 || v.Size() != m.Features {
		return nil, fmt.Errorf("vectorizer has %d features but model expects %d", v.Size(), m.Features)
	}
	if len(m.FeatureLogProb[0]) != m.Features || len(m.FeatureLogProb[1]) != m.Features {
		return nil, fmt.Errorf("model likelihood table does not match %d features", m.Features)
	}
	return &pair{vectorizer: v, model: m, generation: vb.Generation}, nil
}

// FileArtifactStore keeps the artifacts as two files in a checkpoint directory.
type FileArtifactStore struct {
	dir string
}

// NewFileArtifactStore creates a store under dir. The directory is created on first Save.
func NewFileArtifactStore(dir string) *FileArtifactStore {
	return &FileArtifactStore{dir: dir}
}

func (f *FileArtifactStore) path(name string) string {
	return filepath.Join(f.dir, name+"_checkpoint.gob")
}

// Load reads both files. A missing file means there is nothing to load.
func (f *FileArtifactStore) Load() (*Artifacts, error) {
	vec, err := os.ReadFile(f.path(ArtifactVectorizer))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrArtifactsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.path(ArtifactVectorizer), err)
	}

	mod, err := os.ReadFile(f.path(ArtifactModel))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrArtifactsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.path(ArtifactModel), err)
	}

	return &Artifacts{Vectorizer: vec, Model: mod}, nil
}

// Save writes both blobs to temporary files and only then renames them into place.
func (f *FileArtifactStore) Save(a *Artifacts) error {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint dir: %w", err)
	}

	blobs := []struct {
		name string
		data []byte
	}{
		{ArtifactVectorizer, a.Vectorizer},
		{ArtifactModel, a.Model},
	}

	temps := make([]string, 0, len(blobs))
	defer func() {
		for _, tmp := range temps {
			os.Remove(tmp)
		}
	}()

	for _, b := range blobs {
		tmp, err := os.CreateTemp(f.dir, b.name+".*.tmp")
		if err != nil {
			return fmt.Errorf("failed to create temp file for %s: %w", b.name, err)
		}
		temps = append(temps, tmp.Name())
		if err := tmp.Chmod(fileMode(f.path(b.name))); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to set mode of %s: %w", b.name, err)
		}
		if _, err := tmp.Write(b.data); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write %s: %w", b.name, err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", b.name, err)
		}
	}

	for i, b := range blobs {
		if err := os.Rename(temps[i], f.path(b.name)); err != nil {
			return fmt.Errorf("failed to replace %s: %w", b.name, err)
		}
	}
	return nil
}

// fileMode keeps the permissions of an existing file; new files get 0644.
func fileMode(path string) os.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0644
}
