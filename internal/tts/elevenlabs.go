package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	ElevenLabsAPIEndpoint  = "https://api.elevenlabs.io/v1"
	ElevenLabsDefaultVoice = "21m00Tcm4TlvDq8ikWAM" // Rachel - calm, natural female
)

// ElevenLabsProvider is the advanced synthesis backend. It has a distinct
// generation phase before playback and supports emotion-shaped delivery.
type ElevenLabsProvider struct {
	apiKey string
	logger zerolog.Logger
	config *ElevenLabsConfig
	client *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
}

type ElevenLabsConfig struct {
	APIKey       string  `json:"api_key"`
	DefaultVoice string  `json:"default_voice"`
	ModelID      string  `json:"model_id"`
	Stability    float64 `json:"stability"`
	Similarity   float64 `json:"similarity_boost"`
}

func DefaultElevenLabsConfig() *ElevenLabsConfig {
	return &ElevenLabsConfig{
		DefaultVoice: ElevenLabsDefaultVoice,
		ModelID:      "eleven_multilingual_v2",
		Stability:    0.5,
		Similarity:   0.75,
	}
}

func NewElevenLabsProvider(logger zerolog.Logger, config *ElevenLabsConfig) *ElevenLabsProvider {
	if config == nil {
		config = DefaultElevenLabsConfig()
	}

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ELEVENLABS_API_KEY")
	}

	return &ElevenLabsProvider{
		apiKey: apiKey,
		logger: logger.With().Str("provider", "elevenlabs-tts").Logger(),
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

func (p *ElevenLabsProvider) IsAvailable() bool {
	return p.apiKey != ""
}

func (p *ElevenLabsProvider) SetAPIKey(key string) {
	p.apiKey = key
}

var elevenLabsVoiceMap = map[string]string{
	"nova":    "21m00Tcm4TlvDq8ikWAM", // Rachel
	"shimmer": "EXAVITQu4vr4xnSDxMaL", // Bella
	"alloy":   "MF3mGyEYCl7XYWbV9V6O", // Emily
	"echo":    "VR6AewLTigWG4xSOukaG", // Arnold
	"onyx":    "ErXwobaYiN019PkySvjV", // Antoni
	"fable":   "TxGEqnHWrfWFTfGW9XjX", // Josh
}

// emotionSettings tunes delivery per emotion hint. Higher style exaggerates
// expressiveness, lower stability lets the voice move more.
func (p *ElevenLabsProvider) emotionSettings(hint string) map[string]float64 {
	settings := map[string]float64{
		"stability":        p.config.Stability,
		"similarity_boost": p.config.Similarity,
	}
	switch hint {
	case "happy", "surprised":
		settings["stability"] = 0.35
		settings["style"] = 0.6
	case "sad":
		settings["stability"] = 0.7
		settings["style"] = 0.2
	case "angry":
		settings["stability"] = 0.3
		settings["style"] = 0.7
	}
	return settings
}

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if !p.IsAvailable() {
		return nil, ErrNoAPIKey
	}

	startTime := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.cancel = nil
		p.mu.Unlock()
		cancel()
	}()

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = p.config.DefaultVoice
	}
	if mapped, ok := elevenLabsVoiceMap[voiceID]; ok {
		voiceID = mapped
	}

	payload := map[string]any{
		"text":           req.Text,
		"model_id":       p.config.ModelID,
		"voice_settings": p.emotionSettings(req.EmotionHint),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", ElevenLabsAPIEndpoint, voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ElevenLabs API error %d: %s", resp.StatusCode, string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	processingTime := time.Since(startTime)

	p.logger.Info().
		Str("voice", voiceID).
		Int("audioBytes", len(audioData)).
		Dur("processingTime", processingTime).
		Msg("ElevenLabs synthesis complete")

	return &SynthesizeResponse{
		Audio:          audioData,
		Format:         "mp3",
		SampleRate:     22050,
		ProcessingTime: processingTime,
		VoiceID:        voiceID,
		Provider:       p.Name(),
	}, nil
}

// Stop cancels any in-flight synthesis request.
func (p *ElevenLabsProvider) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
