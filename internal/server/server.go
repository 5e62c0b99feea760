// Package server exposes the renderer page, the renderer WebSocket and
// a small control API over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/emomate/emomate/internal/live2d"
	"github.com/emomate/emomate/internal/session"
	"github.com/emomate/emomate/internal/status"
	"github.com/emomate/emomate/internal/voice"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The renderer page is served by this same process.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Config configures the HTTP server.
type Config struct {
	Addr      string
	AssetsDir string
}

// Server hosts the renderer assets and the control endpoints.
type Server struct {
	echo        *echo.Echo
	config      Config
	logger      zerolog.Logger
	bridge      *live2d.Bridge
	transport   *live2d.WSTransport
	coordinator *session.Coordinator
	statuses    *status.Store
	selector    *voice.Selector
}

// New builds the server and registers its routes.
func New(cfg Config, bridge *live2d.Bridge, transport *live2d.WSTransport, coordinator *session.Coordinator, statuses *status.Store, selector *voice.Selector, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:        e,
		config:      cfg,
		logger:      logger.With().Str("component", "server").Logger(),
		bridge:      bridge,
		transport:   transport,
		coordinator: coordinator,
		statuses:    statuses,
		selector:    selector,
	}

	if cfg.AssetsDir != "" {
		e.Static("/", cfg.AssetsDir)
	}
	e.GET("/ws", s.handleRendererSocket)
	e.GET("/healthz", s.handleHealth)
	e.GET("/api/state", s.handleState)
	e.POST("/api/message", s.handleMessage)
	e.POST("/api/stop", s.handleStop)

	return s
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.Addr).Msg("HTTP server listening")
	if err := s.echo.Start(s.config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// handleRendererSocket upgrades the renderer connection and hands it to
// the bridge transport. Each new connection restarts the load cycle.
func (s *Server) handleRendererSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return err
	}

	s.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("Renderer connected")
	s.bridge.LoadStarted()
	s.transport.Attach(conn)
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"bridge": s.bridge.State().String(),
	})
}

type stateResponse struct {
	Bridge    string          `json:"bridge"`
	LastError string          `json:"lastError,omitempty"`
	Status    status.Snapshot `json:"status"`
	Voice     voice.Session   `json:"voice"`
}

func (s *Server) handleState(c echo.Context) error {
	resp := stateResponse{
		Bridge:    s.bridge.State().String(),
		LastError: s.bridge.LastError(),
		Status:    s.statuses.Get(),
	}
	if s.selector != nil {
		resp.Voice = s.selector.Snapshot()
	}
	return c.JSON(http.StatusOK, resp)
}

type messageRequest struct {
	Text    string `json:"text"`
	IsVoice bool   `json:"isVoice"`
}

type messageResponse struct {
	Reply string `json:"reply"`
}

// handleMessage runs a conversation turn for a typed (or externally
// transcribed) user message.
func (s *Server) handleMessage(c echo.Context) error {
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	reply, err := s.coordinator.HandleUserText(c.Request().Context(), req.Text, req.IsVoice)
	if err != nil {
		s.logger.Error().Err(err).Msg("Turn failed")
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	return c.JSON(http.StatusOK, messageResponse{Reply: reply})
}

func (s *Server) handleStop(c echo.Context) error {
	s.coordinator.Stop()
	return c.NoContent(http.StatusNoContent)
}
