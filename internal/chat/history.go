// Package chat holds the conversation log and the heuristics that shape a
// reply: the conversation-type classifier and the response formatter.
package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single conversation turn. Messages are append-only and never
// mutated after creation.
type Message struct {
	ID             string `json:"id"`
	Role           Role   `json:"role"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"` // epoch milliseconds
	IsVoiceMessage bool   `json:"isVoiceMessage"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role Role, content string, isVoice bool) Message {
	return Message{
		ID:             uuid.NewString(),
		Role:           role,
		Content:        content,
		Timestamp:      time.Now().UnixMilli(),
		IsVoiceMessage: isVoice,
	}
}

// History is the bounded in-memory conversation log for one session.
type History struct {
	mu       sync.RWMutex
	messages []Message
	maxSize  int
}

// NewHistory creates a history retaining at most maxSize messages.
func NewHistory(maxSize int) *History {
	if maxSize <= 0 {
		maxSize = 50
	}
	return &History{
		messages: make([]Message, 0, maxSize),
		maxSize:  maxSize,
	}
}

// Append adds a message, trimming the oldest entries past the size limit.
func (h *History) Append(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msg)
	if len(h.messages) > h.maxSize {
		h.messages = h.messages[len(h.messages)-h.maxSize:]
	}
}

// Recent returns a copy of the last n messages, oldest first.
func (h *History) Recent(n int) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	start := len(h.messages) - n
	if n <= 0 || start < 0 {
		start = 0
	}
	result := make([]Message, len(h.messages)-start)
	copy(result, h.messages[start:])
	return result
}

// All returns a copy of the full log, oldest first.
func (h *History) All() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Message, len(h.messages))
	copy(result, h.messages)
	return result
}

// LastAssistant returns the most recent assistant message, if any.
func (h *History) LastAssistant() (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i := len(h.messages) - 1; i >= 0; i-- {
		if h.messages[i].Role == RoleAssistant {
			return h.messages[i], true
		}
	}
	return Message{}, false
}

// Len returns the number of stored messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear removes all messages.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = h.messages[:0]
}
