// Package emotion tracks facial and textual emotion observations and
// combines them into the single value the rest of the app animates from.
package emotion

import (
	"strings"
	"sync"
)

// Value is a detected emotion
type Value string

const (
	Neutral   Value = "neutral"
	Happy     Value = "happy"
	Sad       Value = "sad"
	Angry     Value = "angry"
	Surprised Value = "surprised"

	// None means no observation has been made. It behaves like Neutral
	// in combination but lets callers distinguish "cleared" from
	// "observed neutral".
	None Value = ""
)

// Valid reports whether v is a known emotion value.
func Valid(v Value) bool {
	switch v {
	case Neutral, Happy, Sad, Angry, Surprised, None:
		return true
	}
	return false
}

// Combine merges a facial and a textual observation into one value.
// Text wins over facial; Neutral (or a missing observation) never beats a
// non-neutral signal from the other source.
func Combine(facial, text Value) Value {
	if text != Neutral && text != None {
		return text
	}
	if facial != Neutral && facial != None {
		return facial
	}
	return Neutral
}

// Store is an injectable emotion state container. It holds the two
// independent observations, recomputes the combined value on every write,
// and notifies subscribers synchronously when the combined value changes.
type Store struct {
	mu          sync.RWMutex
	facial      Value
	text        Value
	combined    Value
	subscribers []func(Value)
}

// NewStore creates an empty store with a neutral combined value.
func NewStore() *Store {
	return &Store{combined: Neutral}
}

// SetFacial records a facial observation.
func (s *Store) SetFacial(v Value) {
	s.set(&s.facial, v)
}

// SetText records a textual observation.
func (s *Store) SetText(v Value) {
	s.set(&s.text, v)
}

// Clear drops both observations, returning the combined value to neutral.
func (s *Store) Clear() {
	s.mu.Lock()
	s.facial = None
	s.text = None
	changed := s.combined != Neutral
	s.combined = Neutral
	subs := s.subscribers
	s.mu.Unlock()

	if changed {
		for _, fn := range subs {
			fn(Neutral)
		}
	}
}

// Facial returns the current facial observation.
func (s *Store) Facial() Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.facial
}

// Text returns the current textual observation.
func (s *Store) Text() Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

// Combined returns the current combined value.
func (s *Store) Combined() Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.combined
}

// Subscribe registers a callback invoked whenever the combined value
// changes. The callback runs synchronously on the writer's goroutine.
func (s *Store) Subscribe(fn func(Value)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Store) set(field *Value, v Value) {
	if !Valid(v) {
		v = Neutral
	}

	s.mu.Lock()
	*field = v
	combined := Combine(s.facial, s.text)
	changed := combined != s.combined
	s.combined = combined
	subs := s.subscribers
	s.mu.Unlock()

	if changed {
		for _, fn := range subs {
			fn(combined)
		}
	}
}

// Keyword tables for textual emotion detection. Precedence follows map
// iteration-independent ordering below: happy > sad > angry > surprised.
// The "？" entry is deliberate: a bare question mark reads as surprise in
// the companion persona even though it also appears in other heuristics.
var (
	happyKeywords     = []string{"开心", "高兴", "快乐", "兴奋", "哈哈", "喜欢", "太好了", "棒", "开森", "嘻嘻"}
	sadKeywords       = []string{"难过", "伤心", "哭", "沮丧", "失落", "郁闷", "唉", "委屈", "想哭"}
	angryKeywords     = []string{"生气", "愤怒", "气死", "讨厌", "烦死", "可恶", "气人"}
	surprisedKeywords = []string{"惊讶", "震惊", "天哪", "没想到", "不会吧", "居然", "竟然", "？"}
)

// DetectText classifies the emotion carried by a user utterance using the
// fixed keyword tables. Unmatched text is Neutral.
func DetectText(text string) Value {
	for _, kw := range happyKeywords {
		if strings.Contains(text, kw) {
			return Happy
		}
	}
	for _, kw := range sadKeywords {
		if strings.Contains(text, kw) {
			return Sad
		}
	}
	for _, kw := range angryKeywords {
		if strings.Contains(text, kw) {
			return Angry
		}
	}
	for _, kw := range surprisedKeywords {
		if strings.Contains(text, kw) {
			return Surprised
		}
	}
	return Neutral
}
