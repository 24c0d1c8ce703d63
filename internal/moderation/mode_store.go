package moderation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"spam-moderator/internal/models"
)

type settingsFile struct {
	BotSettings struct {
		Mode models.Mode `yaml:"mode"`
	} `yaml:"bot_settings"`
}

// ModeStore keeps the operating mode in a small YAML settings file.
type ModeStore struct {
	path   string
	logger *zap.Logger

	mu   sync.RWMutex
	mode models.Mode
}

// NewModeStore reads the settings file. A missing file starts the bot in passive mode
// and creates the file.
func NewModeStore(path string, logger *zap.Logger) (*ModeStore, error) {
	s := &ModeStore{path: path, logger: logger, mode: models.ModePassive}

	mode, err := s.read()
	switch {
	case err == nil:
		if mode != "" {
			s.mode = mode
		}
	case errors.Is(err, os.ErrNotExist):
		logger.Info("Settings file not found, starting in passive mode", zap.String("path", path))
		if err := s.write(models.ModePassive); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	return s, nil
}

// Mode returns the current mode.
func (s *ModeStore) Mode() models.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Set changes the mode and rewrites the settings file.
func (s *ModeStore) Set(mode models.Mode) error {
	if _, err := models.ParseMode(string(mode)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(mode); err != nil {
		return err
	}
	s.mode = mode
	s.logger.Info("Mode changed", zap.String("mode", string(mode)))
	return nil
}

func (s *ModeStore) read() (models.Mode, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings settingsFile
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return "", fmt.Errorf("failed to decode settings file: %w", err)
	}
	if settings.BotSettings.Mode == "" {
		return "", nil
	}
	return models.ParseMode(string(settings.BotSettings.Mode))
}

func (s *ModeStore) write(mode models.Mode) error {
	var settings settingsFile
	settings.BotSettings.Mode = mode

	data, err := yaml.Marshal(&settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create settings dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// reload re-reads the file after an external edit. An unreadable, invalid or empty file
// keeps the current mode.
func (s *ModeStore) reload() {
	mode, err := s.read()
	if err != nil {
		s.logger.Warn("Ignoring settings file change", zap.Error(err))
		return
	}
	if mode == "" {
		// файл ещё дописывается
		return
	}

	s.mu.Lock()
	changed := s.mode != mode
	s.mode = mode
	s.mu.Unlock()

	if changed {
		s.logger.Info("Mode reloaded from settings file", zap.String("mode", string(mode)))
	}
}

// Watch follows external edits of the settings file until ctx is done.
// The directory is watched rather than the file so that editors replacing the file are noticed.
func (s *ModeStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create settings watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch settings dir: %w", err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				s.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Settings watcher error", zap.Error(err))
		}
	}
}
