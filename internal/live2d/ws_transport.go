package live2d

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSTransport carries bridge traffic over a WebSocket connection accepted
// from the viewer page. One renderer connection is active at a time; a new
// connection replaces the previous one.
type WSTransport struct {
	logger zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	// onAttach/onDetach let the bridge observe renderer load lifecycle.
	onAttach func()
	onDetach func(error)
	onRaw    func([]byte)
}

// NewWSTransport creates an unattached transport.
func NewWSTransport(logger zerolog.Logger) *WSTransport {
	return &WSTransport{
		logger: logger.With().Str("component", "live2d-transport").Logger(),
	}
}

// SetHandlers wires connection lifecycle and inbound payloads. onAttach
// fires when a renderer connects, onDetach when the socket drops, onRaw for
// every text frame received.
func (t *WSTransport) SetHandlers(onAttach func(), onDetach func(error), onRaw func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onAttach = onAttach
	t.onDetach = onDetach
	t.onRaw = onRaw
}

// Attach adopts a freshly upgraded connection and starts its read loop.
// Any previously attached connection is closed.
func (t *WSTransport) Attach(conn *websocket.Conn) {
	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
	}
	t.conn = conn
	onAttach := t.onAttach
	t.mu.Unlock()

	t.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("Renderer connected")
	if onAttach != nil {
		onAttach()
	}

	go t.readLoop(conn)
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			current := t.conn == conn
			if current {
				t.conn = nil
			}
			onDetach := t.onDetach
			t.mu.Unlock()

			// A replaced connection's read error is not a channel failure.
			if current && onDetach != nil {
				onDetach(err)
			}
			return
		}

		t.mu.Lock()
		onRaw := t.onRaw
		t.mu.Unlock()
		if onRaw != nil {
			onRaw(data)
		}
	}
}

// Send transmits one command as a JSON text frame.
func (t *WSTransport) Send(cmd Command) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return fmt.Errorf("renderer not connected")
	}
	t.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := t.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

// Reload asks the viewer page to reload itself, then drops the connection
// so the next attach starts a clean load cycle.
func (t *WSTransport) Reload() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		// Nothing connected; the next attach will start fresh anyway.
		return nil
	}

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(NewCommand("reload", nil)); err != nil {
		conn.Close()
		return fmt.Errorf("write reload: %w", err)
	}
	return conn.Close()
}

// Connected reports whether a renderer socket is currently attached.
func (t *WSTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}
