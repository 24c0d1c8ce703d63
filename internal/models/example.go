package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Label is the spam flag of a message: 0.0 for ham, 1.0 for spam.
type Label float64

const (
	Ham  Label = 0.0 // Легитимное сообщение
	Spam Label = 1.0 // Спам
)

// Valid reports whether the label is one of Ham or Spam.
func (l Label) Valid() bool {
	return l == Ham || l == Spam
}

// String returns "ham" or "spam".
func (l Label) String() string {
	switch l {
	case Ham:
		return "ham"
	case Spam:
		return "spam"
	default:
		return fmt.Sprintf("label(%g)", float64(l))
	}
}

// ParseLabel accepts "ham"/"spam" as well as numeric flags like "0", "1.0".
func ParseLabel(s string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ham":
		return Ham, nil
	case "spam":
		return Spam, nil
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid label %q", s)
	}
	l := Label(f)
	if !l.Valid() {
		return 0, fmt.Errorf("invalid label %q: must be 0.0 or 1.0", s)
	}
	return l, nil
}

// Example is a single labeled row of the training dataset.
type Example struct {
	Text  string `json:"message"`
	Label Label  `json:"spam"`
}

// SanitizeText flattens a chat message into a single dataset line.
func SanitizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	return strings.ReplaceAll(text, "\n", " ")
}

// IsBlank reports whether text has nothing to learn from. Such entries are ignored.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
