// Package llm provides the chat-completion client for the companion's
// replies, speaking the OpenAI-style chat API.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoAPIKey is returned when the backend requires a key and none is set.
var ErrNoAPIKey = errors.New("LLM API key not configured")

// ClientConfig configures the chat client
type ClientConfig struct {
	BaseURL string        // e.g. "https://api.openai.com/v1"
	APIKey  string
	Model   string
	Timeout time.Duration
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
		Timeout: 30 * time.Second,
	}
}

// ChatMessage is one turn in the wire format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to the chat-completion backend.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger

	mu      sync.RWMutex
	onError func(error)
}

// NewClient creates a chat client. A missing APIKey falls back to the
// OPENAI_API_KEY environment variable.
func NewClient(cfg *ClientConfig, logger zerolog.Logger) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With().Str("component", "llm-client").Logger(),
	}
}

// SetErrorHandler sets the callback for request errors.
func (c *Client) SetErrorHandler(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

type completionRequest struct {
	Model     string        `json:"model"`
	Messages  []ChatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Stream    bool          `json:"stream,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
		Delta   struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the message list and returns the assistant reply text.
func (c *Client) Complete(ctx context.Context, messages []ChatMessage, maxTokens int) (string, error) {
	body, err := c.do(ctx, completionRequest{
		Model:     c.config.Model,
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		c.reportError(err)
		return "", err
	}
	defer body.Close()

	var resp completionResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		err = fmt.Errorf("decode completion: %w", err)
		c.reportError(err)
		return "", err
	}
	if resp.Error != nil {
		err = fmt.Errorf("llm backend: %s", resp.Error.Message)
		c.reportError(err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		err = errors.New("llm backend returned no choices")
		c.reportError(err)
		return "", err
	}

	return resp.Choices[0].Message.Content, nil
}

// CompleteStream streams the reply, invoking onDelta for each content
// fragment, and returns the full accumulated text.
func (c *Client) CompleteStream(ctx context.Context, messages []ChatMessage, maxTokens int, onDelta func(string)) (string, error) {
	body, err := c.do(ctx, completionRequest{
		Model:     c.config.Model,
		Messages:  messages,
		MaxTokens: maxTokens,
		Stream:    true,
	})
	if err != nil {
		c.reportError(err)
		return "", err
	}
	defer body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk completionResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Debug().Err(err).Msg("Skipping malformed stream chunk")
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}

		select {
		case <-ctx.Done():
			return full.String(), ctx.Err()
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		c.reportError(err)
		return full.String(), fmt.Errorf("read stream: %w", err)
	}

	return full.String(), nil
}

func (c *Client) do(ctx context.Context, req completionRequest) (io.ReadCloser, error) {
	if c.config.APIKey == "" && strings.Contains(c.config.BaseURL, "api.openai.com") {
		return nil, ErrNoAPIKey
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("llm backend error %d: %s", resp.StatusCode, string(body))
	}

	return resp.Body, nil
}

func (c *Client) reportError(err error) {
	c.mu.RLock()
	fn := c.onError
	c.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
