package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EdgeProvider is the basic synthesis backend: a self-hosted edge-tts
// gateway speaking the OpenAI audio/speech request shape. It has no
// separate generation phase and no emotion shaping.
type EdgeProvider struct {
	endpoint string
	voice    string
	logger   zerolog.Logger
	client   *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
}

type EdgeConfig struct {
	Endpoint     string `json:"endpoint"`
	DefaultVoice string `json:"default_voice"`
}

func DefaultEdgeConfig() *EdgeConfig {
	return &EdgeConfig{
		Endpoint:     "http://localhost:5050/v1/audio/speech",
		DefaultVoice: "zh-CN-XiaoxiaoNeural",
	}
}

func NewEdgeProvider(logger zerolog.Logger, config *EdgeConfig) *EdgeProvider {
	if config == nil {
		config = DefaultEdgeConfig()
	}

	return &EdgeProvider{
		endpoint: config.Endpoint,
		voice:    config.DefaultVoice,
		logger:   logger.With().Str("provider", "edge-tts").Logger(),
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *EdgeProvider) Name() string {
	return "edge"
}

func (p *EdgeProvider) IsAvailable() bool {
	return p.endpoint != ""
}

func (p *EdgeProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if !p.IsAvailable() {
		return nil, ErrProviderUnavailable
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

	voice := req.VoiceID
	if voice == "" {
		voice = p.voice
	}

	payload := map[string]any{
		"input":           req.Text,
		"voice":           voice,
		"response_format": "mp3",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("edge-tts error %d: %s", resp.StatusCode, string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	p.logger.Info().
		Str("voice", voice).
		Int("audioBytes", len(audioData)).
		Msg("Edge synthesis complete")

	return &SynthesizeResponse{
		Audio:          audioData,
		Format:         "mp3",
		SampleRate:     24000,
		ProcessingTime: time.Since(startTime),
		VoiceID:        voice,
		Provider:       p.Name(),
	}, nil
}

// Stop cancels any in-flight synthesis request.
func (p *EdgeProvider) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
