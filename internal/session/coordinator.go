// Package session coordinates a conversation turn: emotion detection,
// classification, the LLM call, formatting, speech and motion.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/emomate/emomate/internal/bus"
	"github.com/emomate/emomate/internal/chat"
	"github.com/emomate/emomate/internal/emotion"
	"github.com/emomate/emomate/internal/llm"
	"github.com/emomate/emomate/internal/motion"
	"github.com/emomate/emomate/internal/proactive"
	"github.com/emomate/emomate/internal/profile"
	"github.com/emomate/emomate/internal/status"
)

// Completer generates the assistant reply. Satisfied by *llm.Client.
type Completer interface {
	Complete(ctx context.Context, messages []llm.ChatMessage, maxTokens int) (string, error)
}

// Speaker plays a reply aloud. Satisfied by *voice.Selector.
type Speaker interface {
	Speak(ctx context.Context, text, voiceHint, emotionHint string) error
	Stop()
}

// Coordinator runs the turn pipeline and keeps the surrounding
// components (status, motion, proactive) informed of its progress.
type Coordinator struct {
	logger    zerolog.Logger
	events    *bus.EventBus
	emotions  *emotion.Store
	history   *chat.History
	completer Completer
	speaker   Speaker
	motions   *motion.Resolver
	statuses  *status.Store
	scheduler *proactive.Scheduler
	profiles  *profile.Store
	voiceHint string

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Options carries the collaborators for a coordinator. EventBus,
// emotion store, history and status store are required; the rest may be
// nil and the corresponding step is skipped.
type Options struct {
	Events    *bus.EventBus
	Emotions  *emotion.Store
	History   *chat.History
	Completer Completer
	Speaker   Speaker
	Motions   *motion.Resolver
	Statuses  *status.Store
	Scheduler *proactive.Scheduler
	Profiles  *profile.Store
	VoiceHint string
}

// NewCoordinator wires the turn pipeline and subscribes the motion
// resolver and proactive scheduler to status and emotion changes.
func NewCoordinator(opts Options, logger zerolog.Logger) *Coordinator {
	c := &Coordinator{
		logger:    logger.With().Str("component", "session").Logger(),
		events:    opts.Events,
		emotions:  opts.Emotions,
		history:   opts.History,
		completer: opts.Completer,
		speaker:   opts.Speaker,
		motions:   opts.Motions,
		statuses:  opts.Statuses,
		scheduler: opts.Scheduler,
		profiles:  opts.Profiles,
		voiceHint: opts.VoiceHint,
	}

	c.statuses.Subscribe(func(sn status.Snapshot) {
		if c.motions != nil {
			c.motions.SetListening(sn.Listening)
			c.motions.SetGenerating(sn.Generating)
			c.motions.SetSpeaking(sn.Speaking)
		}
		if c.scheduler != nil {
			c.scheduler.SetGenerating(sn.Generating)
			c.scheduler.SetSpeaking(sn.Speaking)
		}
		if c.events != nil {
			c.events.Publish(bus.Event{Type: bus.EventTypeStatusChanged, Data: map[string]any{
				"listening":  sn.Listening,
				"generating": sn.Generating,
				"speaking":   sn.Speaking,
				"emotion":    string(sn.Emotion),
			}})
		}
	})

	c.emotions.Subscribe(func(v emotion.Value) {
		c.statuses.SetEmotion(v)
		if c.motions != nil {
			c.motions.SetEmotion(v)
		}
		if c.events != nil {
			c.events.Publish(bus.Event{Type: bus.EventTypeEmotionChanged, Data: map[string]any{
				"emotion": string(v),
			}})
		}
	})

	return c
}

// SetFacialEmotion feeds a facial observation from an external detector.
func (c *Coordinator) SetFacialEmotion(v emotion.Value) {
	c.emotions.SetFacial(v)
	if c.profiles != nil {
		c.profiles.RecordEmotion(v, "facial")
	}
}

// NotifyUserActivity resets the proactive idle clock without running a
// turn, for interactions like clicking the avatar.
func (c *Coordinator) NotifyUserActivity() {
	if c.scheduler != nil {
		c.scheduler.NotifyUserInput()
	}
}

// HandleUserText runs one full conversation turn and returns the
// formatted reply. Voice and motion failures are logged and reported on
// the bus but never abort the turn.
func (c *Coordinator) HandleUserText(ctx context.Context, text string, isVoice bool) (string, error) {
	ctx = c.beginTurn(ctx)

	if c.scheduler != nil {
		c.scheduler.NotifyUserInput()
	}

	detected := emotion.DetectText(text)
	c.emotions.SetText(detected)
	if c.profiles != nil {
		c.profiles.RecordEmotion(detected, "text")
	}

	convType := chat.Classify(text, c.history.Recent(6))
	promptHistory := c.history.Recent(10)

	userMsg := chat.NewMessage(chat.RoleUser, text, isVoice)
	c.history.Append(userMsg)
	c.publish(bus.EventTypeUserMessage, map[string]any{"id": userMsg.ID, "content": text})

	c.logger.Debug().
		Str("type", string(convType)).
		Str("emotion", string(detected)).
		Msg("Handling user message")

	reply, err := c.generate(ctx, text, convType, promptHistory)
	if err != nil {
		return "", err
	}

	assistantMsg := chat.NewMessage(chat.RoleAssistant, reply, false)
	c.history.Append(assistantMsg)
	c.publish(bus.EventTypeAssistantMessage, map[string]any{"id": assistantMsg.ID, "content": reply})

	c.speak(ctx, reply)
	return reply, nil
}

// HandleProactivePrompt delivers a scheduler-initiated starter as an
// assistant message and speaks it.
func (c *Coordinator) HandleProactivePrompt(tier proactive.Tier, text string) {
	if text == "" {
		return
	}
	ctx := c.beginTurn(context.Background())

	msg := chat.NewMessage(chat.RoleAssistant, text, false)
	c.history.Append(msg)
	c.publish(bus.EventTypeProactiveMessage, map[string]any{
		"id":      msg.ID,
		"content": text,
		"tier":    tier.String(),
	})

	c.logger.Info().Str("tier", tier.String()).Msg("Delivering proactive prompt")
	c.speak(ctx, text)
}

// Stop cancels any in-flight turn and stops playback.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	if c.speaker != nil {
		c.speaker.Stop()
	}
	c.statuses.SetGenerating(false)
	c.statuses.SetSpeaking(false)
}

func (c *Coordinator) beginTurn(parent context.Context) context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	return ctx
}

func (c *Coordinator) generate(ctx context.Context, text string, convType chat.Type, promptHistory []chat.Message) (string, error) {
	if c.completer == nil {
		return "", fmt.Errorf("no completion backend configured")
	}

	c.statuses.SetGenerating(true)
	defer c.statuses.SetGenerating(false)

	var persona, nickname string
	if c.profiles != nil {
		p := c.profiles.Profile()
		persona, nickname = p.Persona, p.Nickname
	}
	messages := llm.BuildMessages(persona, nickname, c.emotions.Combined(), convType, promptHistory, text)

	raw, err := c.completer.Complete(ctx, messages, chat.TokenBudget(convType))
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	return chat.Format(raw, convType), nil
}

func (c *Coordinator) speak(ctx context.Context, text string) {
	if c.speaker == nil {
		return
	}

	c.statuses.SetSpeaking(true)
	err := c.speaker.Speak(ctx, text, c.voiceHint, string(c.emotions.Combined()))
	c.statuses.SetSpeaking(false)

	if err != nil && ctx.Err() == nil {
		c.logger.Warn().Err(err).Msg("Speech playback failed")
		c.publish(bus.EventTypeVoiceError, map[string]any{"error": err.Error()})
	}
}

func (c *Coordinator) publish(t bus.EventType, data map[string]any) {
	if c.events != nil {
		c.events.Publish(bus.Event{Type: t, Data: data})
	}
}
