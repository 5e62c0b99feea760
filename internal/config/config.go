// Package config provides configuration management for EmoMate
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Motion    MotionConfig    `mapstructure:"motion"`
	Proactive ProactiveConfig `mapstructure:"proactive"`
	User      UserConfig      `mapstructure:"user"`
}

// ServerConfig configures the HTTP host for the Live2D viewer
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	AssetsDir string `mapstructure:"assets_dir"` // character/ web viewer files
}

// LLMConfig configures the chat-completion backend
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxHistory  int           `mapstructure:"max_history"`
	SystemStyle string        `mapstructure:"system_style"` // persona flavor text
}

// TTSConfig configures speech synthesis
type TTSConfig struct {
	Provider            string `mapstructure:"provider"` // elevenlabs or edge
	VoiceID             string `mapstructure:"voice_id"`
	FallbackToSecondary bool   `mapstructure:"fallback_to_secondary"`
	ElevenLabsAPIKey    string `mapstructure:"elevenlabs_api_key"`
	EdgeEndpoint        string `mapstructure:"edge_endpoint"`
	EdgeVoice           string `mapstructure:"edge_voice"`
}

// BridgeConfig configures the renderer message channel
type BridgeConfig struct {
	ReadinessTimeout time.Duration `mapstructure:"readiness_timeout"`
	MaxLoadAttempts  int           `mapstructure:"max_load_attempts"`
}

// MotionConfig configures the motion resolver
type MotionConfig struct {
	CompletionTimeout time.Duration `mapstructure:"completion_timeout"`
	IdleReturnDelay   time.Duration `mapstructure:"idle_return_delay"`
}

// ProactiveConfig configures the proactive topic scheduler
type ProactiveConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// ShortPause is measured from the last user activity; MediumPause and
	// LongPause are additional delays beyond the previous tier.
	ShortPause     time.Duration `mapstructure:"short_pause"`
	MediumPause    time.Duration `mapstructure:"medium_pause"`
	LongPause      time.Duration `mapstructure:"long_pause"`
	SpeechCooldown time.Duration `mapstructure:"speech_cooldown"`
}

// UserConfig identifies the user
type UserConfig struct {
	Nickname string `mapstructure:"nickname"`
	Persona  string `mapstructure:"persona"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":8090",
			AssetsDir: "character",
		},
		LLM: LLMConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4o-mini",
			Timeout:    30 * time.Second,
			MaxHistory: 10,
		},
		TTS: TTSConfig{
			Provider:            "elevenlabs",
			VoiceID:             "nova",
			FallbackToSecondary: true,
			EdgeEndpoint:        "http://localhost:5050/v1/audio/speech",
			EdgeVoice:           "zh-CN-XiaoxiaoNeural",
		},
		Bridge: BridgeConfig{
			ReadinessTimeout: 10 * time.Second,
			MaxLoadAttempts:  3,
		},
		Motion: MotionConfig{
			CompletionTimeout: 3 * time.Second,
			IdleReturnDelay:   1 * time.Second,
		},
		Proactive: ProactiveConfig{
			Enabled:        true,
			ShortPause:     60 * time.Second,
			MediumPause:    120 * time.Second,
			LongPause:      180 * time.Second,
			SpeechCooldown: 2 * time.Second,
		},
		User: UserConfig{
			Nickname: "朋友",
			Persona:  "companion",
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".emomate")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("EMOMATE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".emomate")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("server", cfg.Server)
	viper.Set("llm", cfg.LLM)
	viper.Set("tts", cfg.TTS)
	viper.Set("bridge", cfg.Bridge)
	viper.Set("motion", cfg.Motion)
	viper.Set("proactive", cfg.Proactive)
	viper.Set("user", cfg.User)

	return viper.WriteConfigAs(filepath.Join(configDir, "config.yaml"))
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".emomate"), nil
}
