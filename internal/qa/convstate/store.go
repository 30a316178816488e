// Package convstate owns the short-term conversation memory. All pending
// interaction state (clarifications awaiting an answer, round counters,
// greeting flags) lives here, keyed by (chat, user); no other component
// mutates a context directly.
package convstate

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
)

// Key identifies one conversation.
type Key struct {
	ChatID int64
	UserID int64
}

const (
	defaultCapacity = 1000
	defaultMaxTurns = 12
)

// Store holds conversation contexts with TTL and capacity eviction
// (oldest entry first). Contexts are not persisted across restarts: a
// restart degrades every conversation to first-turn behavior, which is
// safe.
type Store struct {
	mu       sync.Mutex
	cache    *expirable.LRU[Key, *domain.ConversationContext]
	maxTurns int
}

// Options configures the store.
type Options struct {
	Capacity int
	TTL      time.Duration
	MaxTurns int
}

// New creates a conversation context store.
func New(opts Options) *Store {
	if opts.Capacity <= 0 {
		opts.Capacity = defaultCapacity
	}

	if opts.MaxTurns <= 0 {
		opts.MaxTurns = defaultMaxTurns
	}

	return &Store{
		cache:    expirable.NewLRU[Key, *domain.ConversationContext](opts.Capacity, nil, opts.TTL),
		maxTurns: opts.MaxTurns,
	}
}

// Get returns a copy of the context for key, or a fresh default when the
// conversation is unknown or its entry expired.
func (s *Store) Get(key Key) domain.ConversationContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.cache.Get(key)
	if !ok {
		return domain.ConversationContext{}
	}

	return copyContext(stored)
}

// Update applies mutate to the stored context (creating a default one
// first if absent), truncates history to the configured turn limit and
// stores the result.
func (s *Store) Update(key Key, mutate func(*domain.ConversationContext)) domain.ConversationContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.cache.Get(key)
	if !ok {
		current = &domain.ConversationContext{}
	}

	mutate(current)

	if len(current.History) > s.maxTurns {
		current.History = append([]domain.Turn(nil), current.History[len(current.History)-s.maxTurns:]...)
	}

	s.cache.Add(key, current)

	return copyContext(current)
}

// Len reports the number of live conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cache.Len()
}

func copyContext(src *domain.ConversationContext) domain.ConversationContext {
	out := *src
	out.History = append([]domain.Turn(nil), src.History...)

	return out
}
