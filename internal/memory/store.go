package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"axioma-bot/internal/domain"
)

const (
	DefaultDedupTTL      = 5 * time.Minute
	DefaultHistoryTTL    = 15 * time.Minute
	DefaultHistoryLimit  = 8
	DefaultSweepInterval = 60 * time.Second
)

type conversation struct {
	turns        []domain.Turn
	lastActivity time.Time
}

// Store keeps recently seen message ids and short conversation histories in
// process memory. It is safe for concurrent use; everything is lost on restart.
type Store struct {
	mu            sync.Mutex
	seen          map[string]time.Time
	conversations map[string]*conversation

	now           func() time.Time
	dedupTTL      time.Duration
	historyTTL    time.Duration
	historyLimit  int
	sweepInterval time.Duration
}

type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithDedupTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.dedupTTL = d
		}
	}
}

func WithHistoryTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.historyTTL = d
		}
	}
}

func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		seen:          make(map[string]time.Time),
		conversations: make(map[string]*conversation),
		now:           time.Now,
		dedupTTL:      DefaultDedupTTL,
		historyTTL:    DefaultHistoryTTL,
		historyLimit:  DefaultHistoryLimit,
		sweepInterval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsDuplicate reports whether messageID was already seen within the dedup
// TTL. A novel id is recorded as seen. An empty id is never a duplicate.
func (s *Store) IsDuplicate(messageID string) bool {
	if messageID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if first, ok := s.seen[messageID]; ok {
		if now.Sub(first) < s.dedupTTL {
			return true
		}
		delete(s.seen, messageID)
	}
	s.seen[messageID] = now
	return false
}

// RecordTurn appends a turn to the conversation history, keeping only the
// most recent turns up to the history limit.
func (s *Store) RecordTurn(conversationID, role, text string) {
	if conversationID == "" || text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	conv := s.liveConversation(conversationID, now)
	if conv == nil {
		conv = &conversation{}
		s.conversations[conversationID] = conv
	}
	conv.turns = append(conv.turns, domain.Turn{Role: role, Text: text, Timestamp: now})
	if over := len(conv.turns) - s.historyLimit; over > 0 {
		conv.turns = append([]domain.Turn(nil), conv.turns[over:]...)
	}
	conv.lastActivity = now
}

// History returns a copy of the conversation turns, oldest first.
func (s *Store) History(conversationID string) []domain.Turn {
	if conversationID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.liveConversation(conversationID, s.now())
	if conv == nil {
		return nil
	}
	out := make([]domain.Turn, len(conv.turns))
	copy(out, conv.turns)
	return out
}

// liveConversation evicts the conversation if it went idle past the history
// TTL. Caller must hold s.mu.
func (s *Store) liveConversation(conversationID string, now time.Time) *conversation {
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil
	}
	if now.Sub(conv.lastActivity) >= s.historyTTL {
		delete(s.conversations, conversationID)
		return nil
	}
	return conv
}

// Sweep removes every expired dedup entry and idle conversation. It returns
// the number of removed dedup entries and conversations.
func (s *Store) Sweep() (seen, conversations int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, first := range s.seen {
		if now.Sub(first) >= s.dedupTTL {
			delete(s.seen, id)
			seen++
		}
	}
	for id, conv := range s.conversations {
		if now.Sub(conv.lastActivity) >= s.historyTTL {
			delete(s.conversations, id)
			conversations++
		}
	}
	return seen, conversations
}

// Run sweeps on the configured interval until ctx is done.
func (s *Store) Run(ctx context.Context, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seen, convs := s.Sweep()
			if seen > 0 || convs > 0 {
				logger.Debug("memory sweep", "dedup_evicted", seen, "history_evicted", convs)
			}
		}
	}
}

// Len returns the number of tracked dedup entries and conversations.
func (s *Store) Len() (seen, conversations int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen), len(s.conversations)
}
