package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spam-moderator/internal/dataset"
	"spam-moderator/internal/middleware"
	"spam-moderator/internal/models"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	var examples []models.Example
	for i := 0; i < 10; i++ {
		examples = append(examples,
			models.Example{Text: fmt.Sprintf("dinner at my place tonight %d", i), Label: models.Ham},
			models.Example{Text: fmt.Sprintf("cheap pills without prescription %d", i), Label: models.Spam},
		)
	}
	require.NoError(t, dataset.NewCSVStore(filepath.Join(dir, "spam.csv")).Save(examples))

	cfg := fmt.Sprintf(`
dataset:
  path: %q
artifacts:
  dir: %q
database:
  path: %q
settings:
  path: %q
auth:
  jwt_secret: "cli-secret"
`, filepath.Join(dir, "spam.csv"), filepath.Join(dir, "checkpoints"),
		filepath.Join(dir, "moderator.db"), filepath.Join(dir, "settings.yml"))

	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTrainAndPredict(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "train")
	require.NoError(t, err)
	assert.Contains(t, out, "Trained on 16 examples (4 held out)")

	out, err = run(t, "--config", cfg, "predict", "cheap", "pills")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "spam"), out)

	out, err = run(t, "--config", cfg, "accuracy")
	require.NoError(t, err)
	assert.Contains(t, out, "%")
}

func TestAdd(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "add", "--label", "ham", "see", "you", "tonight")
	require.NoError(t, err)
	assert.Contains(t, out, "dataset now has 21 examples")

	out, err = run(t, "--config", cfg, "add", "--label", "spam", "  ", "\n")
	require.NoError(t, err)
	assert.Contains(t, out, "Skipped blank text, dataset still has 21 examples")

	_, err = run(t, "--config", cfg, "add", "--label", "maybe", "text")
	assert.Error(t, err)

	_, err = run(t, "--config", cfg, "add", "text")
	assert.Error(t, err)

	out, err = run(t, "--config", cfg, "stats")
	require.NoError(t, err)

	var stats struct {
		Dataset struct {
			Examples int `json:"examples"`
		} `json:"dataset"`
		Feedback struct {
			Total int `json:"total"`
		} `json:"feedback"`
		Mode string `json:"mode"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 21, stats.Dataset.Examples)
	assert.Equal(t, 1, stats.Feedback.Total)
	assert.Equal(t, "passive", stats.Mode)
}

func TestToken(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "token", "--subject", "alice")
	require.NoError(t, err)

	claims, err := middleware.ParseToken([]byte("cli-secret"), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
}

func TestMissingConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "nope.yml"), "stats")
	assert.Error(t, err)
}
