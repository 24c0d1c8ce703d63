package telegram_bot

import "sync"

// The Bot API has no way to read chat history, so the bot keeps the recent
// non-command messages of other users itself. /ham N picks from here.
type historyEntry struct {
	MessageID int
	Text      string
}

type chatHistory struct {
	size int

	mu    sync.Mutex
	chats map[int64][]historyEntry
}

func newChatHistory(size int) *chatHistory {
	if size <= 0 {
		size = 100
	}
	return &chatHistory{size: size, chats: make(map[int64][]historyEntry)}
}

func (h *chatHistory) add(chatID int64, e historyEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := append(h.chats[chatID], e)
	if len(entries) > h.size {
		entries = append([]historyEntry(nil), entries[len(entries)-h.size:]...)
	}
	h.chats[chatID] = entries
}

// last returns up to n newest entries, newest first.
func (h *chatHistory) last(chatID int64, n int) []historyEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := h.chats[chatID]
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]historyEntry, 0, n)
	for i := len(entries) - 1; i >= len(entries)-n; i-- {
		out = append(out, entries[i])
	}
	return out
}

func (h *chatHistory) remove(chatID int64, messageID int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := h.chats[chatID]
	for i, e := range entries {
		if e.MessageID == messageID {
			h.chats[chatID] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}
