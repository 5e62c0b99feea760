// Package profile holds the user profile and the session emotion log.
package profile

import (
	"sync"
	"time"

	"github.com/emomate/emomate/internal/emotion"
)

// EmotionRecord is one observed emotion with its source.
type EmotionRecord struct {
	Value     emotion.Value `json:"value"`
	Source    string        `json:"source"` // facial or text
	Timestamp int64         `json:"timestamp"`
}

// Profile is the user-facing identity used in prompts.
type Profile struct {
	Nickname string `json:"nickname"`
	Persona  string `json:"persona"`
}

// Store owns the profile and a bounded in-memory emotion log for the
// session. Nothing here is persisted across restarts.
type Store struct {
	mu      sync.RWMutex
	profile Profile
	log     []EmotionRecord
	maxLog  int
}

// NewStore creates a store for the given profile.
func NewStore(p Profile, maxLog int) *Store {
	if maxLog <= 0 {
		maxLog = 200
	}
	return &Store{
		profile: p,
		log:     make([]EmotionRecord, 0, maxLog),
		maxLog:  maxLog,
	}
}

// Profile returns the current profile.
func (s *Store) Profile() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// SetNickname updates the user's nickname.
func (s *Store) SetNickname(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.Nickname = name
}

// RecordEmotion appends an observation to the emotion log.
func (s *Store) RecordEmotion(v emotion.Value, source string) {
	if v == emotion.Neutral || v == emotion.None {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, EmotionRecord{
		Value:     v,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
	})
	if len(s.log) > s.maxLog {
		s.log = s.log[len(s.log)-s.maxLog:]
	}
}

// EmotionLog returns a copy of the recorded observations, oldest first.
func (s *Store) EmotionLog() []EmotionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EmotionRecord, len(s.log))
	copy(out, s.log)
	return out
}

// DominantEmotion returns the most frequent non-neutral emotion in the
// log, or neutral when the log is empty.
func (s *Store) DominantEmotion() emotion.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[emotion.Value]int)
	for _, rec := range s.log {
		counts[rec.Value]++
	}

	best := emotion.Neutral
	bestCount := 0
	for v, n := range counts {
		if n > bestCount {
			best, bestCount = v, n
		}
	}
	return best
}
