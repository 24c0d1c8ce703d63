// Package moderation is the context object shared by the HTTP API, the chat bot and the CLI:
// it owns the classifier handle, the operating mode and the feedback audit log.
package moderation

import (
	"fmt"

	"go.uber.org/zap"

	"spam-moderator/internal/classifier"
	"spam-moderator/internal/models"
	"spam-moderator/internal/repository"
)

// Classifier is the part of *classifier.Classifier the moderator needs.
type Classifier interface {
	Score(text string) (models.Label, float64)
	AddEntry(text string, label models.Label) error
	Accuracy() float64
	Train() error
	Stats() classifier.Stats
	Examples() []models.Example
}

// Verdict is the classification of one message.
type Verdict struct {
	Label           models.Label `json:"label"`
	SpamProbability float64      `json:"spam_probability"`
}

// IsSpam reports whether the message was classified as spam.
func (v Verdict) IsSpam() bool {
	return v.Label == models.Spam
}

// Action is what the bot should do with an incoming message.
type Action int

const (
	ActionIgnore Action = iota
	ActionDelete
	ActionVote
)

func (a Action) String() string {
	switch a {
	case ActionDelete:
		return "delete"
	case ActionVote:
		return "vote"
	default:
		return "ignore"
	}
}

// Decision is the result of Inspect.
type Decision struct {
	Action  Action
	Text    string // sanitized message text
	Verdict Verdict
}

// Moderator is safe for concurrent use.
type Moderator struct {
	classifier Classifier
	modes      *ModeStore
	feedback   repository.FeedbackRepository
	watched    map[int64]struct{}
	logger     *zap.Logger
}

// NewModerator creates a moderator. feedback may be nil, in which case no audit log is kept.
// An empty watchedChatIDs list means every chat is watched.
func NewModerator(
	clf Classifier,
	modes *ModeStore,
	feedback repository.FeedbackRepository,
	watchedChatIDs []int64,
	logger *zap.Logger,
) *Moderator {
	watched := make(map[int64]struct{}, len(watchedChatIDs))
	for _, id := range watchedChatIDs {
		watched[id] = struct{}{}
	}
	return &Moderator{
		classifier: clf,
		modes:      modes,
		feedback:   feedback,
		watched:    watched,
		logger:     logger,
	}
}

// Classify runs the classifier on the sanitized text.
func (m *Moderator) Classify(text string) Verdict {
	label, p := m.classifier.Score(models.SanitizeText(text))
	return Verdict{Label: label, SpamProbability: p}
}

// RecordFeedback adds a labeled example to the dataset, which retrains the model,
// and writes it to the audit log. Blank text is ignored.
func (m *Moderator) RecordFeedback(text string, label models.Label, source models.FeedbackSource) error {
	text = models.SanitizeText(text)

	if err := m.classifier.AddEntry(text, label); err != nil {
		m.logger.Error("Failed to record feedback",
			zap.String("label", label.String()),
			zap.String("source", string(source)),
			zap.Error(err))
		return fmt.Errorf("failed to record feedback: %w", err)
	}

	if m.feedback == nil || models.IsBlank(text) {
		return nil
	}
	event := &models.FeedbackEvent{Text: text, Label: label, Source: source}
	if err := m.feedback.Save(event); err != nil {
		// датасет уже обновлён, журнал вторичен
		m.logger.Warn("Failed to save feedback event", zap.Error(err))
	}
	return nil
}

// CurrentAccuracy returns the accuracy of the current model in percent.
func (m *Moderator) CurrentAccuracy() float64 {
	return m.classifier.Accuracy()
}

// Retrain refits the model on the whole dataset.
func (m *Moderator) Retrain() error {
	return m.classifier.Train()
}

// Stats returns dataset and training statistics.
func (m *Moderator) Stats() classifier.Stats {
	return m.classifier.Stats()
}

// Examples returns a copy of the dataset.
func (m *Moderator) Examples() []models.Example {
	return m.classifier.Examples()
}

// Mode returns the operating mode.
func (m *Moderator) Mode() models.Mode {
	return m.modes.Mode()
}

// SetMode changes and persists the operating mode.
func (m *Moderator) SetMode(mode models.Mode) error {
	return m.modes.Set(mode)
}

// Watches reports whether messages from chatID are moderated.
func (m *Moderator) Watches(chatID int64) bool {
	if len(m.watched) == 0 {
		return true
	}
	_, ok := m.watched[chatID]
	return ok
}

// Inspect decides what to do with an incoming chat message. Nothing is classified in
// passive mode, for the bot's own messages or for chats that are not watched. In active
// mode spam is deleted; in learn mode spam is put to a vote. Ham is always left alone.
func (m *Moderator) Inspect(chatID int64, fromSelf bool, text string) Decision {
	text = models.SanitizeText(text)
	decision := Decision{Action: ActionIgnore, Text: text}

	mode := m.Mode()
	if fromSelf || mode == models.ModePassive || !m.Watches(chatID) || models.IsBlank(text) {
		return decision
	}

	decision.Verdict = m.Classify(text)
	if !decision.Verdict.IsSpam() {
		return decision
	}

	switch mode {
	case models.ModeActive:
		decision.Action = ActionDelete
	case models.ModeLearn:
		decision.Action = ActionVote
	}

	m.logger.Info("Spam detected",
		zap.Int64("chat_id", chatID),
		zap.String("mode", string(mode)),
		zap.String("action", decision.Action.String()),
		zap.Float64("spam_probability", decision.Verdict.SpamProbability))
	return decision
}

// FeedbackLog returns the newest audit log entries.
func (m *Moderator) FeedbackLog(limit int) ([]models.FeedbackEvent, error) {
	if m.feedback == nil {
		return []models.FeedbackEvent{}, nil
	}
	return m.feedback.List(limit)
}

// FeedbackStats returns audit log counts, or nil when no audit log is configured.
func (m *Moderator) FeedbackStats() (*repository.FeedbackStats, error) {
	if m.feedback == nil {
		return nil, nil
	}
	return m.feedback.Stats()
}
