package classifier

import "errors"

var (
	// ErrInsufficientData means the dataset cannot produce a usable train/evaluation split:
	// too few rows, a missing class, or no tokens to build a vocabulary from.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrStorage wraps failures to persist the dataset or the model artifacts.
	ErrStorage = errors.New("storage failure")

	// ErrInvalidLabel is returned for labels other than 0.0 (ham) and 1.0 (spam).
	ErrInvalidLabel = errors.New("invalid label")

	// ErrArtifactsNotFound is returned by an ArtifactStore that has nothing saved yet.
	ErrArtifactsNotFound = errors.New("model artifacts not found")
)
