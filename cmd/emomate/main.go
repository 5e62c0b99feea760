package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/emomate/emomate/internal/bus"
	"github.com/emomate/emomate/internal/chat"
	"github.com/emomate/emomate/internal/config"
	"github.com/emomate/emomate/internal/emotion"
	"github.com/emomate/emomate/internal/live2d"
	"github.com/emomate/emomate/internal/llm"
	"github.com/emomate/emomate/internal/logging"
	"github.com/emomate/emomate/internal/motion"
	"github.com/emomate/emomate/internal/proactive"
	"github.com/emomate/emomate/internal/profile"
	"github.com/emomate/emomate/internal/server"
	"github.com/emomate/emomate/internal/session"
	"github.com/emomate/emomate/internal/status"
	"github.com/emomate/emomate/internal/tts"
	"github.com/emomate/emomate/internal/voice"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "emomate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Local overrides for API keys; absence is fine.
	_ = godotenv.Load()

	logger, err := logging.New(logging.DefaultConfig())
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.Component("main")
	log.Info().Str("addr", cfg.Server.Addr).Msg("Starting EmoMate")

	events := bus.NewEventBus()
	emotions := emotion.NewStore()
	statuses := status.NewStore()
	history := chat.NewHistory(cfg.LLM.MaxHistory * 2)
	profiles := profile.NewStore(profile.Profile{
		Nickname: cfg.User.Nickname,
		Persona:  cfg.User.Persona,
	}, 200)

	// Renderer channel.
	transport := live2d.NewWSTransport(logger.Component("live2d"))
	bridge := live2d.NewBridge(transport, live2d.Config{
		ReadinessTimeout: cfg.Bridge.ReadinessTimeout,
		MaxLoadAttempts:  cfg.Bridge.MaxLoadAttempts,
	}, logger.Component("live2d"))
	transport.SetHandlers(nil, bridge.TransportError, bridge.HandleRaw)

	resolver := motion.NewResolver(bridge, motion.Config{
		CompletionTimeout: cfg.Motion.CompletionTimeout,
		IdleReturnDelay:   cfg.Motion.IdleReturnDelay,
	}, logger.Component("motion"))
	defer resolver.Stop()
	bridge.SetMotionResultHandler(resolver.HandleResult)
	bridge.SetStateHandler(func(state live2d.State) {
		events.Publish(bus.Event{Type: bus.EventTypeBridgeStateChanged, Data: map[string]any{
			"state": state.String(),
		}})
	})
	bridge.SetErrorHandler(func(err error) {
		log.Warn().Err(err).Msg("Renderer channel error")
	})

	// Speech.
	advanced := tts.NewElevenLabsProvider(logger.Component("tts"), &tts.ElevenLabsConfig{
		APIKey:       cfg.TTS.ElevenLabsAPIKey,
		DefaultVoice: cfg.TTS.VoiceID,
		ModelID:      "eleven_multilingual_v2",
		Stability:    0.5,
		Similarity:   0.75,
	})
	basic := tts.NewEdgeProvider(logger.Component("tts"), &tts.EdgeConfig{
		Endpoint:     cfg.TTS.EdgeEndpoint,
		DefaultVoice: cfg.TTS.EdgeVoice,
	})
	selector := voice.NewSelector(basic, advanced, nil, voice.Config{
		Active:              providerKind(cfg.TTS.Provider),
		FallbackToSecondary: cfg.TTS.FallbackToSecondary,
	}, logger.Component("voice"))

	completer := llm.NewClient(&llm.ClientConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger.Component("llm"))

	scheduler := proactive.NewScheduler(&proactive.Config{
		ShortPause:     cfg.Proactive.ShortPause,
		MediumPause:    cfg.Proactive.MediumPause,
		LongPause:      cfg.Proactive.LongPause,
		SpeechCooldown: cfg.Proactive.SpeechCooldown,
	}, func() []chat.Message { return history.Recent(6) }, logger.Component("proactive"))

	coordinator := session.NewCoordinator(session.Options{
		Events:    events,
		Emotions:  emotions,
		History:   history,
		Completer: completer,
		Speaker:   selector,
		Motions:   resolver,
		Statuses:  statuses,
		Scheduler: scheduler,
		Profiles:  profiles,
		VoiceHint: cfg.TTS.VoiceID,
	}, logger.Component("session"))

	scheduler.SetPromptHandler(coordinator.HandleProactivePrompt)
	bridge.SetUserInteractionHandler(func() {
		events.Publish(bus.Event{Type: bus.EventTypeUserInteraction, Data: nil})
		coordinator.NotifyUserActivity()
	})

	if cfg.Proactive.Enabled {
		scheduler.Start()
	}
	defer scheduler.Stop()

	// Hot-reload for the tunables that can change at runtime.
	watcher, err := config.Watch(logger.Component("config"), func(next *config.Config) {
		selector.SwitchProvider(providerKind(next.TTS.Provider))
		if next.Proactive.Enabled {
			scheduler.Start()
		} else {
			scheduler.Stop()
		}
	})
	if err != nil {
		log.Warn().Err(err).Msg("Config watching unavailable")
	} else {
		defer watcher.Close()
	}

	srv := server.New(server.Config{
		Addr:      cfg.Server.Addr,
		AssetsDir: cfg.Server.AssetsDir,
	}, bridge, transport, coordinator, statuses, selector, logger.Component("server"))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	coordinator.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func providerKind(name string) voice.ProviderKind {
	switch name {
	case "edge", "basic":
		return voice.ProviderBasic
	default:
		return voice.ProviderAdvanced
	}
}
