// Package voice owns the speech session: it routes speak requests to the
// active synthesis provider, falls back to the basic provider when the
// advanced one fails, and tracks the generating/speaking lifecycle.
package voice

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/emomate/emomate/internal/tts"
)

// ProviderKind selects one of the two synthesis backends.
type ProviderKind string

const (
	ProviderBasic    ProviderKind = "basic"    // edge-tts: speak-only lifecycle
	ProviderAdvanced ProviderKind = "advanced" // elevenlabs: generate, then speak
)

// Session is a snapshot of the current voice session. IsGenerating and
// IsSpeaking are never true at the same time: generation completes before
// playback begins. The basic provider has no generation phase at all.
type Session struct {
	Provider       string `json:"provider"`
	IsGenerating   bool   `json:"isGenerating"`
	IsSpeaking     bool   `json:"isSpeaking"`
	CurrentSegment string `json:"currentSegment"`
	LastError      string `json:"lastError,omitempty"`
}

// Sink plays synthesized audio. Playback hardware is outside this package;
// the sink blocks until playback finishes or ctx is cancelled.
type Sink func(ctx context.Context, resp *tts.SynthesizeResponse) error

// Selector chooses between the two providers and owns the VoiceSession
// state exclusively. At most one speak operation is active; a new Speak
// preempts the previous one.
type Selector struct {
	basic    tts.Provider
	advanced tts.Provider
	sink     Sink
	logger   zerolog.Logger

	mu       sync.Mutex
	active   ProviderKind
	fallback bool
	session  Session
	cancel   context.CancelFunc
	turn     uint64
	onChange func(Session)
}

// Config configures the selector.
type Config struct {
	Active              ProviderKind
	FallbackToSecondary bool
}

// NewSelector creates a selector over the two providers. sink may be nil,
// in which case synthesized audio is dropped (useful in tests).
func NewSelector(basic, advanced tts.Provider, sink Sink, cfg Config, logger zerolog.Logger) *Selector {
	active := cfg.Active
	if active == "" {
		active = ProviderAdvanced
	}
	s := &Selector{
		basic:    basic,
		advanced: advanced,
		sink:     sink,
		logger:   logger.With().Str("component", "voice-selector").Logger(),
		active:   active,
		fallback: cfg.FallbackToSecondary,
	}
	s.session = Session{Provider: string(active)}
	return s
}

// SetStateHandler registers a callback invoked on every session change.
func (s *Selector) SetStateHandler(fn func(Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Snapshot returns a copy of the current session state.
func (s *Selector) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// ActiveProvider returns which provider speak requests are routed to.
func (s *Selector) ActiveProvider() ProviderKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Speak synthesizes and plays text on the active provider. A concurrent
// call preempts any in-flight synthesis or playback. When the advanced
// provider fails and fallback is enabled, the request is retried once on
// the basic provider before the error is surfaced. Errors are recorded on
// the session and returned; they are never fatal to the conversation.
func (s *Selector) Speak(ctx context.Context, text, voiceHint, emotionHint string) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel() // preempt prior session
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.turn++
	turn := s.turn
	active := s.active
	s.session = Session{Provider: string(active), CurrentSegment: text}
	s.notifyLocked()
	s.mu.Unlock()

	defer cancel()

	req := &tts.SynthesizeRequest{Text: text, VoiceID: voiceHint, EmotionHint: emotionHint}

	var err error
	if active == ProviderAdvanced {
		err = s.speakAdvanced(ctx, turn, req)
		if err != nil && s.fallbackEnabled() && ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("Advanced provider failed, falling back to basic")
			err = s.speakBasic(ctx, turn, req)
		}
	} else {
		err = s.speakBasic(ctx, turn, req)
	}

	s.finish(turn, err)
	return err
}

// speakAdvanced runs the two-phase lifecycle: generating, then speaking.
func (s *Selector) speakAdvanced(ctx context.Context, turn uint64, req *tts.SynthesizeRequest) error {
	if !s.setState(turn, func(sess *Session) {
		sess.Provider = string(ProviderAdvanced)
		sess.IsGenerating = true
		sess.IsSpeaking = false
	}) {
		return ctx.Err()
	}

	resp, err := s.advanced.Synthesize(ctx, req)
	if err != nil {
		return fmt.Errorf("advanced synthesis: %w", err)
	}

	return s.play(ctx, turn, string(ProviderAdvanced), resp)
}

// speakBasic collapses generation and playback into one speaking phase;
// the basic provider has no observable generation state.
func (s *Selector) speakBasic(ctx context.Context, turn uint64, req *tts.SynthesizeRequest) error {
	if !s.setState(turn, func(sess *Session) {
		sess.Provider = string(ProviderBasic)
		sess.IsGenerating = false
		sess.IsSpeaking = true
	}) {
		return ctx.Err()
	}

	resp, err := s.basic.Synthesize(ctx, req)
	if err != nil {
		return fmt.Errorf("basic synthesis: %w", err)
	}

	if s.sink == nil {
		return nil
	}
	if err := s.sink(ctx, resp); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	return nil
}

func (s *Selector) play(ctx context.Context, turn uint64, provider string, resp *tts.SynthesizeResponse) error {
	if !s.setState(turn, func(sess *Session) {
		sess.Provider = provider
		sess.IsGenerating = false
		sess.IsSpeaking = true
	}) {
		return ctx.Err()
	}

	if s.sink == nil {
		return nil
	}
	if err := s.sink(ctx, resp); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	return nil
}

// Stop cancels any in-flight synthesis and playback. It is idempotent and
// stops both providers regardless of which one is active.
func (s *Selector) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.turn++
	s.session = Session{Provider: string(s.active)}
	s.notifyLocked()
	s.mu.Unlock()

	s.basic.Stop()
	s.advanced.Stop()
}

// SwitchProvider stops current playback and routes future speak calls to
// the given provider.
func (s *Selector) SwitchProvider(kind ProviderKind) {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = kind
	s.session.Provider = string(kind)
	s.notifyLocked()
}

func (s *Selector) fallbackEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallback
}

// setState applies fn to the session if the turn is still current.
// Returns false when a newer Speak or Stop preempted this turn.
func (s *Selector) setState(turn uint64, fn func(*Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turn != turn {
		return false
	}
	fn(&s.session)
	s.notifyLocked()
	return true
}

// finish clears the busy flags and records the error, if the turn is still
// current.
func (s *Selector) finish(turn uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turn != turn {
		return
	}
	s.session.IsGenerating = false
	s.session.IsSpeaking = false
	s.session.CurrentSegment = ""
	if err != nil {
		s.session.LastError = err.Error()
	}
	s.notifyLocked()
}

// notifyLocked invokes the change callback with a session copy. Caller
// holds the lock; the callback runs on its own goroutine so a subscriber
// calling back into the selector cannot deadlock.
func (s *Selector) notifyLocked() {
	if s.onChange == nil {
		return
	}
	fn := s.onChange
	snapshot := s.session
	go fn(snapshot)
}
