package vote

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spam-moderator/internal/models"
)

// DefaultTimeout is how long a poll collects votes.
const DefaultTimeout = 30 * time.Second

var ErrUnknownPoll = errors.New("unknown or expired poll")

// ResolveFunc is called once per poll, from the timer goroutine or from Close.
type ResolveFunc func(p *Poll, res Resolution)

// Manager tracks open polls and resolves them when their timer fires.
type Manager struct {
	timeout   time.Duration
	onResolve ResolveFunc
	logger    *zap.Logger

	mu     sync.Mutex
	polls  map[string]*Poll
	timers map[string]*time.Timer
}

// NewManager creates a manager. A non-positive timeout means DefaultTimeout.
func NewManager(timeout time.Duration, onResolve ResolveFunc, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		timeout:   timeout,
		onResolve: onResolve,
		logger:    logger,
		polls:     make(map[string]*Poll),
		timers:    make(map[string]*time.Timer),
	}
}

// Open starts a poll on a message and arms its timer.
func (m *Manager) Open(chatID int64, messageID int, text string) *Poll {
	p := newPoll(uuid.NewString(), chatID, messageID, text)

	m.mu.Lock()
	m.polls[p.ID] = p
	m.timers[p.ID] = time.AfterFunc(m.timeout, func() { m.Close(p.ID) })
	m.mu.Unlock()

	m.logger.Info("Vote opened",
		zap.String("poll_id", p.ID),
		zap.Int64("chat_id", chatID),
		zap.Int("message_id", messageID),
		zap.Duration("timeout", m.timeout))
	return p
}

// Get returns an open poll.
func (m *Manager) Get(id string) (*Poll, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polls[id]
	return p, ok
}

// Vote forwards a vote to the poll with the given ID.
func (m *Manager) Vote(id string, userID int64, label models.Label) (Result, error) {
	p, ok := m.Get(id)
	if !ok {
		return Closed, ErrUnknownPoll
	}
	return p.Vote(userID, label), nil
}

// Close resolves the poll now and calls the resolve callback. Closing an unknown or
// already resolved poll does nothing.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	p, ok := m.polls[id]
	if ok {
		delete(m.polls, id)
		if t := m.timers[id]; t != nil {
			t.Stop()
		}
		delete(m.timers, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	res, ok := p.resolve()
	if !ok {
		return
	}

	m.logger.Info("Vote resolved",
		zap.String("poll_id", p.ID),
		zap.String("outcome", res.Outcome.String()),
		zap.Int("spam_votes", res.SpamVotes),
		zap.Int("ham_votes", res.HamVotes))

	if m.onResolve != nil {
		m.onResolve(p, res)
	}
}

// Cancel drops a poll without resolving it.
func (m *Manager) Cancel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.timers[id]; t != nil {
		t.Stop()
	}
	delete(m.timers, id)
	delete(m.polls, id)
}

// Pending returns the number of polls still collecting votes.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.polls)
}

// Stop drops all open polls without resolving them.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
	m.polls = make(map[string]*Poll)
}
