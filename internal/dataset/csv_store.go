// Package dataset persists the labeled training examples as a two-column CSV file.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"spam-moderator/internal/models"
)

const (
	ColumnMessage = "message"
	ColumnSpam    = "spam"
)

// Store loads and saves the complete dataset.
type Store interface {
	Load() ([]models.Example, error)
	Save(examples []models.Example) error
}

// CSVStore keeps the dataset in a CSV file with a "message,spam" header.
type CSVStore struct {
	path string
}

// NewCSVStore creates a store backed by the file at path.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the file location.
func (s *CSVStore) Path() string {
	return s.path
}

// Load reads every row of the file. The file must exist and carry both columns.
// Rows with blank message text are skipped.
func (s *CSVStore) Load() ([]models.Example, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	return Read(file)
}

// Read parses a dataset from r.
func Read(r io.Reader) ([]models.Example, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("dataset has no header")
		}
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}

	msgCol, spamCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case ColumnMessage:
			msgCol = i
		case ColumnSpam:
			spamCol = i
		}
	}
	if msgCol < 0 || spamCol < 0 {
		return nil, fmt.Errorf("dataset header must contain %q and %q columns, got %v", ColumnMessage, ColumnSpam, header)
	}

	var examples []models.Example
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset line %d: %w", line, err)
		}
		if msgCol >= len(record) || spamCol >= len(record) {
			return nil, fmt.Errorf("dataset line %d: expected at least %d fields, got %d", line, max(msgCol, spamCol)+1, len(record))
		}

		text := record[msgCol]
		if strings.TrimSpace(text) == "" {
			continue
		}

		flag, err := strconv.ParseFloat(strings.TrimSpace(record[spamCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("dataset line %d: invalid spam flag %q", line, record[spamCol])
		}
		label := models.Label(flag)
		if !label.Valid() {
			return nil, fmt.Errorf("dataset line %d: spam flag must be 0.0 or 1.0, got %q", line, record[spamCol])
		}

		examples = append(examples, models.Example{Text: text, Label: label})
	}

	return examples, nil
}

// Write encodes examples with the header row.
func Write(w io.Writer, examples []models.Example) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{ColumnMessage, ColumnSpam}); err != nil {
		return err
	}
	for _, ex := range examples {
		if err := writer.Write([]string{ex.Text, strconv.FormatFloat(float64(ex.Label), 'f', 1, 64)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Save overwrites the file with examples. The content goes to a temporary file in the
// same directory first and is renamed over the old file, so readers never see a half-written dataset.
func (s *CSVStore) Save(examples []models.Example) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp dataset file: %w", err)
	}
	defer os.Remove(tmp.Name())

	// CreateTemp makes 0600 files; keep the mode of the dataset being replaced
	mode := os.FileMode(0644)
	if info, err := os.Stat(s.path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set dataset mode: %w", err)
	}

	if err := Write(tmp, examples); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write dataset: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close dataset: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace dataset: %w", err)
	}
	return nil
}
