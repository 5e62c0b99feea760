// Package status holds the AI activity state the UI and the motion
// resolver react to. It replaces an ambient global store with an
// explicitly owned, injectable container.
package status

import (
	"sync"

	"github.com/emomate/emomate/internal/emotion"
)

// Snapshot is the observable AI state.
type Snapshot struct {
	Listening  bool          `json:"listening"`
	Generating bool          `json:"generating"`
	Speaking   bool          `json:"speaking"`
	Emotion    emotion.Value `json:"emotion"`
}

// Store is a synchronous get/set state container with change notification.
type Store struct {
	mu          sync.RWMutex
	snap        Snapshot
	subscribers []func(Snapshot)
}

// NewStore creates an idle store.
func NewStore() *Store {
	return &Store{snap: Snapshot{Emotion: emotion.Neutral}}
}

// Get returns the current snapshot.
func (s *Store) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// SetListening updates the listening flag.
func (s *Store) SetListening(v bool) { s.set(func(sn *Snapshot) { sn.Listening = v }) }

// SetGenerating updates the generating flag.
func (s *Store) SetGenerating(v bool) { s.set(func(sn *Snapshot) { sn.Generating = v }) }

// SetSpeaking updates the speaking flag.
func (s *Store) SetSpeaking(v bool) { s.set(func(sn *Snapshot) { sn.Speaking = v }) }

// SetEmotion updates the combined emotion.
func (s *Store) SetEmotion(v emotion.Value) { s.set(func(sn *Snapshot) { sn.Emotion = v }) }

// Busy reports whether a response is being generated or spoken.
func (s *Store) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Generating || s.snap.Speaking
}

// Subscribe registers a callback invoked synchronously after every change.
func (s *Store) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Store) set(mutate func(*Snapshot)) {
	s.mu.Lock()
	before := s.snap
	mutate(&s.snap)
	changed := s.snap != before
	snap := s.snap
	subs := s.subscribers
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range subs {
		fn(snap)
	}
}
