package repository

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"spam-moderator/internal/classifier"
)

// ArtifactRepository keeps the classifier artifacts in the model_artifacts table.
// It implements classifier.ArtifactStore.
type ArtifactRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewArtifactRepository creates a new artifact repository.
func NewArtifactRepository(db *sqlx.DB, logger *zap.Logger) *ArtifactRepository {
	return &ArtifactRepository{db: db, logger: logger}
}

type artifactRow struct {
	Name      string    `db:"name"`
	Data      []byte    `db:"data"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Load returns both artifacts, or classifier.ErrArtifactsNotFound if either row is missing.
func (r *ArtifactRepository) Load() (*classifier.Artifacts, error) {
	query := r.db.Rebind(`SELECT name, data, updated_at FROM model_artifacts WHERE name IN (?, ?)`)

	var rows []artifactRow
	if err := r.db.Select(&rows, query, classifier.ArtifactVectorizer, classifier.ArtifactModel); err != nil {
		return nil, fmt.Errorf("failed to load model artifacts: %w", err)
	}

	a := &classifier.Artifacts{}
	for _, row := range rows {
		switch row.Name {
		case classifier.ArtifactVectorizer:
			a.Vectorizer = row.Data
		case classifier.ArtifactModel:
			a.Model = row.Data
		}
	}
	if a.Vectorizer == nil || a.Model == nil {
		return nil, classifier.ErrArtifactsNotFound
	}
	return a, nil
}

// Save upserts both artifacts in one transaction.
func (r *ArtifactRepository) Save(a *classifier.Artifacts) error {
	query := r.db.Rebind(`
		INSERT INTO model_artifacts (name, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`)

	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for name, data := range map[string][]byte{
		classifier.ArtifactVectorizer: a.Vectorizer,
		classifier.ArtifactModel:      a.Model,
	} {
		if _, err := tx.Exec(query, name, data, now); err != nil {
			return fmt.Errorf("failed to save artifact %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit artifacts: %w", err)
	}

	r.logger.Debug("Model artifacts saved",
		zap.Int("vectorizer_bytes", len(a.Vectorizer)),
		zap.Int("model_bytes", len(a.Model)))
	return nil
}
