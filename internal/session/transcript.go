package session

import (
	"time"

	"github.com/zhouzirui/z-survey/backend/internal/model/chat"
)

const greeting = "Hi! I will help you create a survey. Please describe what kind of survey you would like to create."

// Transcript is the append-only conversation shown to the operator.
type Transcript struct {
	entries []chat.Entry
	now     func() time.Time
}

func NewTranscript() *Transcript {
	return &Transcript{
		entries: make([]chat.Entry, 0, 16),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Append adds an entry at the end; existing entries are never touched.
func (t *Transcript) Append(role chat.Role, text string) chat.Entry {
	entry := chat.Entry{Role: role, Text: text, CreatedAt: t.now()}
	t.entries = append(t.entries, entry)
	return entry
}

// Entries returns a copy in arrival order.
func (t *Transcript) Entries() []chat.Entry {
	copied := make([]chat.Entry, len(t.entries))
	copy(copied, t.entries)
	return copied
}

func (t *Transcript) Len() int { return len(t.entries) }
