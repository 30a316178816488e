package domain

import "time"

// ChunkMetadata describes the provenance of a knowledge base chunk.
// It is never mutated by the pipeline; stages carry stage-local scores
// on shallow Chunk copies instead.
type ChunkMetadata struct {
	Source         string // Origin document identifier or "human_answer"
	DocumentTitle  string
	SectionHeading string
	IsChecklist    bool // Chunk is a numbered checklist or criteria list
	ItemCount      int  // Number of list items when IsChecklist
	IsOfficial     bool // Authoritative source (franchise standards, manuals)
}

// Chunk is a retrievable unit of knowledge base text.
//
// Score is strategy-relative: it is overwritten at every fusion and
// rerank stage and is only comparable within a single ranked list.
type Chunk struct {
	ID       string
	Text     string
	Score    float32
	Metadata ChunkMetadata
}

// Turn is a single role-tagged message in a conversation.
type Turn struct {
	Role string // "user" or "assistant"
	Text string
	At   time.Time
}

// Turn role constants.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationContext is the short-term memory for one (chat, user) pair.
// It is owned exclusively by the conversation store; pipeline stages read
// it and request updates through the store.
type ConversationContext struct {
	History              []Turn
	PendingClarification string // Original question awaiting a clarifying answer, empty if none
	ClarificationRounds  int    // Resets when a genuinely new question starts
	Greeted              bool   // User has already been greeted in this conversation
	LastAssistantMessage string
	LastUserQuestion     string // Previous user question, for "different topic" replies
}

// AwaitingClarification reports whether a clarifying question is pending.
func (c *ConversationContext) AwaitingClarification() bool {
	return c.PendingClarification != ""
}

// Ticket status constants.
const (
	TicketStatusOpen     = "open"
	TicketStatusAnswered = "answered"
)

// Ticket records a question escalated to human operators.
type Ticket struct {
	ID         string
	Status     string
	Question   string
	AskerID    int64
	AskerName  string
	ChatID     int64 // Chat to deliver the human answer back to
	Answer     string
	AnsweredBy string
	CreatedAt  time.Time
	AnsweredAt time.Time
}
