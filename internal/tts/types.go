// Package tts provides text-to-speech synthesis providers for EmoMate.
package tts

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("TTS provider unavailable")
	ErrNoAPIKey            = errors.New("TTS API key not configured")
	ErrTimeout             = errors.New("synthesis timeout")
)

// Provider is the interface both synthesis backends implement.
type Provider interface {
	// Name returns the provider identifier ("elevenlabs", "edge")
	Name() string

	// Synthesize converts text to audio
	Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error)

	// Stop cancels any in-flight synthesis. It must be safe to call on a
	// provider that was never started.
	Stop()

	// IsAvailable reports whether the provider can be used at all
	// (credentials present, endpoint configured).
	IsAvailable() bool
}

// SynthesizeRequest represents a synthesis request
type SynthesizeRequest struct {
	Text        string `json:"text"`
	VoiceID     string `json:"voice_id"`
	EmotionHint string `json:"emotion_hint,omitempty"` // shapes voice settings where supported
}

// SynthesizeResponse represents a synthesis result
type SynthesizeResponse struct {
	Audio          []byte        `json:"audio"`
	Format         string        `json:"format"` // mp3, wav
	SampleRate     int           `json:"sample_rate"`
	ProcessingTime time.Duration `json:"processing_time"`
	VoiceID        string        `json:"voice_id"`
	Provider       string        `json:"provider"`
}
