package repository

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"spam-moderator/internal/models"
)

// FeedbackRepository handles database operations for the feedback audit log.
type FeedbackRepository interface {
	Save(event *models.FeedbackEvent) error
	List(limit int) ([]models.FeedbackEvent, error)
	Stats() (*FeedbackStats, error)
}

// FeedbackStats counts recorded feedback by label and by source.
type FeedbackStats struct {
	Total    int            `json:"total"`
	ByLabel  map[string]int `json:"by_label"`
	BySource map[string]int `json:"by_source"`
}

type feedbackRepository struct {
	db *sqlx.DB
}

// NewFeedbackRepository creates a new feedback repository.
func NewFeedbackRepository(db *sqlx.DB) FeedbackRepository {
	return &feedbackRepository{db: db}
}

// Save inserts the event, filling in ID and CreatedAt when empty.
func (r *feedbackRepository) Save(event *models.FeedbackEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO feedback_events (id, message_text, label, source, created_at)
		VALUES (:id, :message_text, :label, :source, :created_at)
	`
	if _, err := r.db.NamedExec(query, event); err != nil {
		return fmt.Errorf("failed to save feedback event: %w", err)
	}
	return nil
}

// List returns the newest events first. A non-positive limit returns everything.
func (r *feedbackRepository) List(limit int) ([]models.FeedbackEvent, error) {
	query := `
		SELECT id, message_text, label, source, created_at
		FROM feedback_events
		ORDER BY created_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	events := []models.FeedbackEvent{}
	if err := r.db.Select(&events, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list feedback events: %w", err)
	}
	return events, nil
}

// Stats aggregates events by label and source.
func (r *feedbackRepository) Stats() (*FeedbackStats, error) {
	var rows []struct {
		Label  models.Label          `db:"label"`
		Source models.FeedbackSource `db:"source"`
		Count  int                   `db:"count"`
	}
	query := `
		SELECT label, source, COUNT(*) AS count
		FROM feedback_events
		GROUP BY label, source
	`
	if err := r.db.Select(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to get feedback stats: %w", err)
	}

	stats := &FeedbackStats{
		ByLabel:  map[string]int{},
		BySource: map[string]int{},
	}
	for _, row := range rows {
		stats.Total += row.Count
		stats.ByLabel[row.Label.String()] += row.Count
		stats.BySource[string(row.Source)] += row.Count
	}
	return stats, nil
}
