package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// FeedbackSource tells where a labeled example came from.
type FeedbackSource string

const (
	SourceCommand FeedbackSource = "command" // /spam, /ham в чате
	SourceVote    FeedbackSource = "vote"    // результат голосования
	SourceAuto    FeedbackSource = "auto"    // удалено в активном режиме
	SourceAPI     FeedbackSource = "api"
	SourceCLI     FeedbackSource = "cli"
)

// FeedbackEvent is an audit record of one label submitted to the classifier.
// The CSV dataset stays the training source of truth; this table only records history.
type FeedbackEvent struct {
	ID        string         `db:"id" json:"id"`
	Text      string         `db:"message_text" json:"message_text"`
	Label     Label          `db:"label" json:"label"`
	Source    FeedbackSource `db:"source" json:"source"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// Mode is the bot operating mode.
type Mode string

const (
	ModePassive Mode = "passive" // ничего не классифицируем
	ModeActive  Mode = "active"  // удаляем спам
	ModeLearn   Mode = "learn"   // спрашиваем участников
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModePassive, ModeActive, ModeLearn:
		return m, nil
	default:
		return "", fmt.Errorf("invalid mode %q", s)
	}
}

// ClassifyRequest is the body of POST /api/v1/classify
type ClassifyRequest struct {
	Text string `json:"text"`
}

// ClassifyResponse is returned by POST /api/v1/classify
type ClassifyResponse struct {
	Label           Label   `json:"label"`
	Verdict         string  `json:"verdict"`
	SpamProbability float64 `json:"spam_probability"`
}

// FeedbackRequest is the body of POST /api/v1/feedback.
// Label accepts "ham", "spam", "0", "1", "0.0" or "1.0", quoted or as a JSON number.
type FeedbackRequest struct {
	Text  string     `json:"text" binding:"required"`
	Label LabelField `json:"label" binding:"required"`
}

// LabelField holds the raw label of a request, either a JSON string or a JSON number.
type LabelField string

func (f *LabelField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = LabelField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("label must be a string or a number, got %s", data)
	}
	*f = LabelField(n.String())
	return nil
}

// ModeRequest is the body of PUT /api/v1/mode
type ModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}
