package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"spam-moderator/internal/classifier"
	"spam-moderator/internal/config"
	"spam-moderator/internal/dataset"
	"spam-moderator/internal/moderation"
	"spam-moderator/internal/repository"
)

// App holds the components shared by the server and the CLI.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	DB         *sqlx.DB
	Dataset    *dataset.CSVStore
	Classifier *classifier.Classifier
	Modes      *moderation.ModeStore
	Moderator  *moderation.Moderator
}

// NewLogger builds a zap logger from the logging section.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Logging.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

// New opens the database, runs migrations and trains (or restores) the classifier.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := repository.NewDB(cfg.Database.Type, cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}

	if err := repository.MigrateDB(db, cfg.Database.Type, logger); err != nil {
		db.Close()
		return nil, err
	}

	var artifacts classifier.ArtifactStore
	switch cfg.Artifacts.Backend {
	case "database":
		artifacts = repository.NewArtifactRepository(db, logger)
	default:
		artifacts = classifier.NewFileArtifactStore(cfg.Artifacts.Dir)
	}

	store := dataset.NewCSVStore(cfg.Dataset.Path)
	clf, err := classifier.New(classifier.Config{
		TestSize:      cfg.Classifier.TestSize,
		Alpha:         cfg.Classifier.Alpha,
		MinExamples:   cfg.Classifier.MinExamples,
		SplitAttempts: cfg.Classifier.SplitAttempts,
	}, store, artifacts, logger.Named("classifier"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}

	modes, err := moderation.NewModeStore(cfg.Settings.Path, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	moderator := moderation.NewModerator(
		clf,
		modes,
		repository.NewFeedbackRepository(db),
		cfg.Telegram.WatchedChatIDs,
		logger,
	)

	logger.Info("Application initialized",
		zap.String("dataset", store.Path()),
		zap.String("artifacts", cfg.Artifacts.Backend),
		zap.String("database", cfg.Database.Type),
		zap.String("mode", string(modes.Mode())),
		zap.Int("examples", clf.Size()))

	return &App{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Dataset:    store,
		Classifier: clf,
		Modes:      modes,
		Moderator:  moderator,
	}, nil
}

// Close releases the database connection.
func (a *App) Close() error {
	return a.DB.Close()
}
