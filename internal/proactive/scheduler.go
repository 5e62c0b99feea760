// Package proactive starts conversations on the companion's own
// initiative after the user has gone quiet for a while.
package proactive

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/emomate/emomate/internal/chat"
)

// Tier identifies which idle threshold produced a prompt.
type Tier int

const (
	TierShort Tier = iota + 1
	TierMedium
	TierLong
)

func (t Tier) String() string {
	switch t {
	case TierShort:
		return "short"
	case TierMedium:
		return "medium"
	case TierLong:
		return "long"
	default:
		return "unknown"
	}
}

// Config holds the idle thresholds. Medium and Long are additional
// delays beyond the previous tier, not absolute offsets.
type Config struct {
	ShortPause     time.Duration
	MediumPause    time.Duration
	LongPause      time.Duration
	SpeechCooldown time.Duration
}

// DefaultConfig returns the standard thresholds
func DefaultConfig() *Config {
	return &Config{
		ShortPause:     60 * time.Second,
		MediumPause:    120 * time.Second,
		LongPause:      180 * time.Second,
		SpeechCooldown: 2 * time.Second,
	}
}

// HistoryFunc supplies the recent conversation for topic matching.
type HistoryFunc func() []chat.Message

// Scheduler runs the three escalating idle timers. Each tier fires at
// most once per idle period, and any user activity restarts the chain.
type Scheduler struct {
	config  *Config
	logger  zerolog.Logger
	history HistoryFunc
	rng     *rand.Rand
	now     func() time.Time

	mu         sync.Mutex
	enabled    bool
	generating bool
	speaking   bool
	timer      *time.Timer
	nextTier   Tier
	onPrompt   func(tier Tier, text string)
}

// NewScheduler creates a scheduler. It stays dormant until Start.
func NewScheduler(cfg *Config, history HistoryFunc, logger zerolog.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		config:  cfg,
		logger:  logger.With().Str("component", "proactive").Logger(),
		history: history,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
}

// SetPromptHandler sets the callback invoked when a tier fires.
func (s *Scheduler) SetPromptHandler(fn func(tier Tier, text string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPrompt = fn
}

// Start enables the scheduler and arms the first tier.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
	s.armLocked(TierShort, s.config.ShortPause)
	s.logger.Info().Msg("Proactive scheduler started")
}

// Stop disables the scheduler and cancels any pending tier.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	s.cancelLocked()
	s.logger.Info().Msg("Proactive scheduler stopped")
}

// NotifyUserInput restarts the idle chain from zero.
func (s *Scheduler) NotifyUserInput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	if s.enabled {
		s.armLocked(TierShort, s.config.ShortPause)
	}
}

// SetGenerating records whether a response is being generated.
// Generation suppresses the timers; its end restarts the chain.
func (s *Scheduler) SetGenerating(generating bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generating == generating {
		return
	}
	s.generating = generating
	if generating {
		s.cancelLocked()
	} else if s.enabled && !s.speaking {
		s.armLocked(TierShort, s.config.ShortPause)
	}
}

// SetSpeaking records whether speech is playing. The chain restarts a
// short cooldown after playback ends so a prompt never fires right as
// the voice cuts out.
func (s *Scheduler) SetSpeaking(speaking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.speaking == speaking {
		return
	}
	s.speaking = speaking
	if speaking {
		s.cancelLocked()
	} else if s.enabled && !s.generating {
		s.armLocked(TierShort, s.config.SpeechCooldown+s.config.ShortPause)
	}
}

func (s *Scheduler) armLocked(tier Tier, delay time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.nextTier = tier
	s.timer = time.AfterFunc(delay, func() { s.fire(tier) })
}

func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.nextTier = 0
}

func (s *Scheduler) fire(tier Tier) {
	s.mu.Lock()
	if !s.enabled || s.generating || s.speaking || s.nextTier != tier {
		s.mu.Unlock()
		return
	}

	var recent []chat.Message
	if s.history != nil {
		recent = s.history()
	}
	text := s.pickPhrase(tier, categorize(recent))
	fn := s.onPrompt

	// Chain the next tier before releasing the lock.
	switch tier {
	case TierShort:
		s.armLocked(TierMedium, s.config.MediumPause)
	case TierMedium:
		s.armLocked(TierLong, s.config.LongPause)
	default:
		s.nextTier = 0
		s.timer = nil
	}
	s.mu.Unlock()

	s.logger.Debug().Str("tier", tier.String()).Str("text", text).Msg("Proactive prompt fired")
	if fn != nil {
		fn(tier, text)
	}
}
