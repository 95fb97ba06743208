package dialogue

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxConversations bounds the store when no explicit capacity is
// configured, so a long-lived process cannot grow its memory without limit.
const DefaultMaxConversations = 10000

// Conversation is the ordered per-user message history. Turns are only ever
// appended; existing turns are never edited, removed or reordered.
type Conversation struct {
	userID string

	mu    sync.Mutex
	turns []Message

	// seq serializes a full read-history -> reply -> append exchange for
	// one user. Held by the orchestrator across the completion call so two
	// concurrent requests for the same user cannot both read history
	// before either appends.
	seq sync.Mutex
}

func (c *Conversation) UserID() string { return c.userID }

// Lock acquires the per-conversation exchange scope. Cross-user requests
// never contend on it.
func (c *Conversation) Lock()   { c.seq.Lock() }
func (c *Conversation) Unlock() { c.seq.Unlock() }

// EnsurePrimed inserts the system priming entry at position zero unless one
// is already present. Idempotent: the text passed on the first call wins for
// the conversation's lifetime, later calls are no-ops even with different
// text.
func (c *Conversation) EnsurePrimed(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.turns {
		if m.Role == RoleSystem {
			return
		}
	}
	c.turns = append([]Message{{Role: RoleSystem, Content: text}}, c.turns...)
}

// Append adds a turn at the end. Content is not validated; empty strings are
// stored as-is.
func (c *Conversation) Append(role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, Message{Role: role, Content: content})
}

// History returns a snapshot copy of the current turn sequence, oldest
// first. Mutating the returned slice does not affect the conversation.
func (c *Conversation) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len reports the number of stored turns.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// RemoveLast drops the most recent turn if it has the given role. Used only
// by the optional rollback-on-reply-failure mode.
func (c *Conversation) RemoveLast(role string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.turns)
	if n == 0 || c.turns[n-1].Role != role {
		return false
	}
	c.turns = c.turns[:n-1]
	return true
}

// Store owns all conversations for the life of the process. It is bounded:
// when capacity is exceeded the least recently used conversation is evicted.
type Store struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *Conversation]
}

func NewStore(maxConversations int) *Store {
	if maxConversations <= 0 {
		maxConversations = DefaultMaxConversations
	}
	cache, _ := lru.New[string, *Conversation](maxConversations)
	return &Store{cache: cache}
}

// GetOrCreate returns the conversation for userID, creating an empty one on
// first reference. Never fails.
func (s *Store) GetOrCreate(userID string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.cache.Get(userID); ok {
		return c
	}
	c := &Conversation{userID: userID}
	s.cache.Add(userID, c)
	return c
}

// Get returns the conversation for userID without creating one.
func (s *Store) Get(userID string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Get(userID)
}

// Evict drops the conversation for userID, if any.
func (s *Store) Evict(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Remove(userID)
}

// Clear drops all conversations.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
}

// Len reports the number of live conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}
