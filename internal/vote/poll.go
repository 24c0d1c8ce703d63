// Package vote runs the "is this spam?" polls opened in learn mode.
//
// A poll is collecting until it is resolved, either by its timer or by Manager.Close.
// Resolution happens exactly once; votes arriving after it are rejected.
package vote

import (
	"sync"
	"time"

	"spam-moderator/internal/models"
)

// Result of a single vote.
type Result int

const (
	Registered Result = iota
	AlreadyVoted
	Closed
)

// Outcome of a resolved poll.
type Outcome int

const (
	OutcomeNoVotes Outcome = iota
	OutcomeTie
	OutcomeSpam
	OutcomeHam
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoVotes:
		return "no_votes"
	case OutcomeTie:
		return "tie"
	case OutcomeSpam:
		return "spam"
	case OutcomeHam:
		return "ham"
	default:
		return "unknown"
	}
}

// Label returns the majority label. ok is false when the poll cannot be learned from.
func (o Outcome) Label() (label models.Label, ok bool) {
	switch o {
	case OutcomeSpam:
		return models.Spam, true
	case OutcomeHam:
		return models.Ham, true
	default:
		return models.Ham, false
	}
}

// Resolution is the final tally of a poll.
type Resolution struct {
	Outcome   Outcome
	SpamVotes int
	HamVotes  int
}

// Poll collects one vote per user on a flagged message.
type Poll struct {
	ID        string
	ChatID    int64
	MessageID int // сообщение, по которому голосуем
	Text      string
	OpenedAt  time.Time

	mu       sync.Mutex
	prompt   int // сообщение бота с кнопками
	votes    map[int64]models.Label
	resolved bool
}

func newPoll(id string, chatID int64, messageID int, text string) *Poll {
	return &Poll{
		ID:        id,
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		OpenedAt:  time.Now(),
		votes:     make(map[int64]models.Label),
	}
}

// SetPromptMessageID remembers the bot message carrying the vote buttons.
func (p *Poll) SetPromptMessageID(id int) {
	p.mu.Lock()
	p.prompt = id
	p.mu.Unlock()
}

// PromptMessageID returns the bot message carrying the vote buttons, or 0 if unknown.
func (p *Poll) PromptMessageID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompt
}

// Vote registers userID's vote. A user's first vote is final.
func (p *Poll) Vote(userID int64, label models.Label) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resolved {
		return Closed
	}
	if _, ok := p.votes[userID]; ok {
		return AlreadyVoted
	}
	p.votes[userID] = label
	return Registered
}

// resolve closes the poll. The second and later calls return ok=false.
func (p *Poll) resolve() (res Resolution, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resolved {
		return Resolution{}, false
	}
	p.resolved = true
	return tally(p.votes), true
}

func tally(votes map[int64]models.Label) Resolution {
	var res Resolution
	for _, label := range votes {
		if label == models.Spam {
			res.SpamVotes++
		} else {
			res.HamVotes++
		}
	}

	switch {
	case len(votes) == 0:
		res.Outcome = OutcomeNoVotes
	case res.SpamVotes == res.HamVotes:
		res.Outcome = OutcomeTie
	case res.SpamVotes > res.HamVotes:
		res.Outcome = OutcomeSpam
	default:
		res.Outcome = OutcomeHam
	}
	return res
}
