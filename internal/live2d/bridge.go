package live2d

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the bridge channel lifecycle.
type State int

const (
	StateConnecting State = iota
	StateRendererLoaded
	StateHandshakeSent
	StateRendererReady
	StateModelReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRendererLoaded:
		return "rendererLoaded"
	case StateHandshakeSent:
		return "handshakeSent"
	case StateRendererReady:
		return "rendererReady"
	case StateModelReady:
		return "modelReady"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ErrRendererUnreachable is surfaced once the load-attempt ceiling is hit.
// Further Reload calls stay permitted as a user escape hatch.
var ErrRendererUnreachable = errors.New("renderer unreachable after max load attempts")

// Transport carries commands to the renderer host.
type Transport interface {
	// Send transmits one command to the renderer.
	Send(Command) error
	// Reload asks the host to reload the renderer page.
	Reload() error
}

// Config holds bridge tunables.
type Config struct {
	ReadinessTimeout time.Duration // default 10s
	MaxLoadAttempts  int           // default 3
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReadinessTimeout: 10 * time.Second,
		MaxLoadAttempts:  3,
	}
}

// Bridge is the stateful message channel to the embedded renderer.
// Commands sent before the renderer is ready are queued and flushed in
// FIFO order exactly once when the channel comes up.
type Bridge struct {
	transport Transport
	logger    zerolog.Logger
	cfg       Config

	mu             sync.Mutex
	state          State
	queue          []Command
	handshakeSent  bool // guarded per load: repeated load-finished must not double-inject
	readyNotified  bool // ready callback fires once per load cycle
	loadAttempts   int
	lastError      string
	readinessTimer *time.Timer

	onStateChange      func(State)
	onReady            func()
	onError            func(error)
	onMotionResult     func(MotionResult)
	onUserInteraction  func()
	onAvailableMotions func([]string)
}

// NewBridge creates a bridge over the given transport.
func NewBridge(transport Transport, cfg Config, logger zerolog.Logger) *Bridge {
	if cfg.ReadinessTimeout <= 0 {
		cfg.ReadinessTimeout = 10 * time.Second
	}
	if cfg.MaxLoadAttempts <= 0 {
		cfg.MaxLoadAttempts = 3
	}
	return &Bridge{
		transport: transport,
		logger:    logger.With().Str("component", "live2d-bridge").Logger(),
		cfg:       cfg,
		state:     StateConnecting,
	}
}

// SetStateHandler registers a callback for state transitions.
func (b *Bridge) SetStateHandler(fn func(State)) { b.withLock(func() { b.onStateChange = fn }) }

// SetReadyHandler registers a callback invoked once per load cycle when the
// model is fully initialized.
func (b *Bridge) SetReadyHandler(fn func()) { b.withLock(func() { b.onReady = fn }) }

// SetErrorHandler registers the error channel. Transport failures, parse
// failures, and readiness timeouts all go through it.
func (b *Bridge) SetErrorHandler(fn func(error)) { b.withLock(func() { b.onError = fn }) }

// SetMotionResultHandler registers a callback for motionResult messages.
func (b *Bridge) SetMotionResultHandler(fn func(MotionResult)) {
	b.withLock(func() { b.onMotionResult = fn })
}

// SetUserInteractionHandler registers a callback for renderer taps.
func (b *Bridge) SetUserInteractionHandler(fn func()) {
	b.withLock(func() { b.onUserInteraction = fn })
}

// SetAvailableMotionsHandler registers a callback for the motion catalogue
// reported by the renderer.
func (b *Bridge) SetAvailableMotionsHandler(fn func([]string)) {
	b.withLock(func() { b.onAvailableMotions = fn })
}

func (b *Bridge) withLock(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn()
}

// State returns the current channel state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// LastError returns the most recent bridge error text, if any.
func (b *Bridge) LastError() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastError
}

// LoadAttempts returns the load-attempt counter.
func (b *Bridge) LoadAttempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadAttempts
}

// QueuedCommands returns the number of commands waiting for readiness.
func (b *Bridge) QueuedCommands() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Send dispatches a command immediately when the channel is up, otherwise
// appends it to the pending queue. Queued commands survive a Failed state
// so a later reload can still deliver them.
func (b *Bridge) Send(cmd Command) {
	b.mu.Lock()
	if b.state == StateRendererReady || b.state == StateModelReady {
		b.mu.Unlock()
		b.transmit(cmd)
		return
	}
	b.queue = append(b.queue, cmd)
	queued := len(b.queue)
	b.mu.Unlock()

	b.logger.Debug().Str("type", cmd.Type).Int("queued", queued).Msg("Command queued until renderer ready")
}

// PlayMotion sends a playMotion command for the given motion name.
func (b *Bridge) PlayMotion(name string) {
	b.Send(PlayMotionCommand(name))
}

// LoadStarted resets the channel for a new renderer load. Per-load flags
// are cleared and the load-attempt counter advances.
func (b *Bridge) LoadStarted() {
	b.mu.Lock()
	b.stopReadinessTimerLocked()
	b.state = StateConnecting
	b.handshakeSent = false
	b.readyNotified = false
	b.loadAttempts++
	attempts := b.loadAttempts
	b.mu.Unlock()

	b.logger.Info().Int("attempt", attempts).Msg("Renderer load started")
	b.notifyState(StateConnecting)
}

// LoadFinished marks the renderer page as loaded, injects the handshake
// probe exactly once per load, and starts the readiness timeout.
func (b *Bridge) LoadFinished() {
	b.mu.Lock()
	if b.state == StateFailed {
		// A reload can still bring a failed channel back.
		b.handshakeSent = false
		b.readyNotified = false
	}
	b.state = StateRendererLoaded
	inject := !b.handshakeSent
	if inject {
		b.handshakeSent = true
		b.state = StateHandshakeSent
	}
	b.armReadinessTimerLocked()
	state := b.state
	b.mu.Unlock()

	if inject {
		b.transmit(NewCommand(CmdCheckModelStatus, nil))
	}
	b.notifyState(state)
}

// HandleRaw parses and dispatches one inbound renderer payload. Malformed
// payloads are reported through the error channel, never raised.
func (b *Bridge) HandleRaw(raw []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		b.reportError(fmt.Errorf("malformed renderer message: %w", err))
		return
	}
	b.Handle(msg)
}

// Handle dispatches one parsed inbound message.
func (b *Bridge) Handle(msg InboundMessage) {
	switch msg.Type {
	case MsgWebViewReady, MsgDOMReady:
		b.LoadFinished()

	case MsgReadinessUpdate:
		var data readinessUpdateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			b.reportError(fmt.Errorf("malformed readinessUpdate: %w", err))
			return
		}
		switch data.State {
		case "bridgeReady", "ready":
			b.channelReady()
		case "modelReady":
			b.modelReady()
		default:
			b.logger.Debug().Str("state", data.State).Msg("Ignoring readiness state")
		}

	case MsgBridgeStatus:
		var data bridgeStatusData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			b.reportError(fmt.Errorf("malformed bridgeStatus: %w", err))
			return
		}
		if data.Available {
			b.channelReady()
		}

	case MsgModelReady:
		b.modelReady()

	case MsgHeartbeat:
		b.heartbeat()

	case MsgUserInteraction:
		b.mu.Lock()
		fn := b.onUserInteraction
		b.mu.Unlock()
		if fn != nil {
			fn()
		}

	case MsgInitError:
		var data initErrorData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			b.reportError(fmt.Errorf("malformed initError: %w", err))
			return
		}
		b.fail(fmt.Errorf("renderer init error: %s", data.Error))

	case MsgMotionResult:
		var result MotionResult
		if err := json.Unmarshal(msg.Data, &result); err != nil {
			b.reportError(fmt.Errorf("malformed motionResult: %w", err))
			return
		}
		b.mu.Lock()
		fn := b.onMotionResult
		b.mu.Unlock()
		if fn != nil {
			fn(result)
		}

	case MsgAvailableMotions:
		var data availableMotionsData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			b.reportError(fmt.Errorf("malformed availableMotions: %w", err))
			return
		}
		b.mu.Lock()
		fn := b.onAvailableMotions
		b.mu.Unlock()
		if fn != nil {
			fn(data.Motions)
		}

	case MsgCleanup:
		b.logger.Info().Msg("Renderer page is tearing down")

	case MsgError:
		var data errorData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			b.reportError(fmt.Errorf("malformed error message: %w", err))
			return
		}
		b.reportError(fmt.Errorf("renderer error: %s", data.Error))

	case MsgModelStatus:
		// Legacy probe reply; the new flow relies on readinessUpdate.
		b.logger.Debug().Msg("Ignoring legacy modelStatus message")

	default:
		b.logger.Debug().Str("type", msg.Type).Msg("Ignoring unknown renderer message")
	}
}

// TransportError reports a channel-level failure (socket closed, write
// error). The bridge moves to Failed; queued commands are retained.
func (b *Bridge) TransportError(err error) {
	b.fail(fmt.Errorf("transport: %w", err))
}

// Reload clears all per-session state and re-initiates the channel from
// Connecting. Beyond the load-attempt ceiling the bridge surfaces a
// terminal unreachable error, but reloads stay permitted.
func (b *Bridge) Reload() {
	b.mu.Lock()
	b.stopReadinessTimerLocked()
	b.queue = nil
	b.handshakeSent = false
	b.readyNotified = false
	b.state = StateConnecting
	b.loadAttempts++
	exceeded := b.loadAttempts > b.cfg.MaxLoadAttempts
	if exceeded {
		b.lastError = ErrRendererUnreachable.Error()
	}
	b.mu.Unlock()

	b.notifyState(StateConnecting)
	if exceeded {
		b.reportError(ErrRendererUnreachable)
	}

	if err := b.transport.Reload(); err != nil {
		b.reportError(fmt.Errorf("reload request: %w", err))
	}
}

// channelReady flushes the queue in FIFO order. The queue is swapped out
// atomically before dispatch so commands enqueued by callbacks during the
// flush wait for the next dispatch, not this pass.
func (b *Bridge) channelReady() {
	b.mu.Lock()
	if b.state == StateModelReady {
		b.mu.Unlock()
		return
	}
	b.state = StateRendererReady
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()

	b.notifyState(StateRendererReady)

	for _, cmd := range pending {
		b.transmit(cmd)
	}
	if len(pending) > 0 {
		b.logger.Info().Int("count", len(pending)).Msg("Flushed queued commands")
	}
}

// modelReady cancels the readiness timeout and fires the ready callback
// exactly once per load cycle.
func (b *Bridge) modelReady() {
	b.mu.Lock()
	if b.state < StateRendererReady || b.state == StateFailed {
		// A model-ready ack implies the channel is up even if the
		// intermediate ack was lost.
		pending := b.queue
		b.queue = nil
		b.mu.Unlock()
		for _, cmd := range pending {
			b.transmit(cmd)
		}
		b.mu.Lock()
	}
	b.stopReadinessTimerLocked()
	b.state = StateModelReady
	b.lastError = ""
	b.loadAttempts = 0
	notify := !b.readyNotified
	b.readyNotified = true
	fn := b.onReady
	b.mu.Unlock()

	b.notifyState(StateModelReady)
	if notify && fn != nil {
		fn()
	}
}

// heartbeat restarts the readiness timeout without changing state, for any
// state past RendererLoaded that has not completed initialization.
func (b *Bridge) heartbeat() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state >= StateRendererLoaded && b.state < StateModelReady {
		b.armReadinessTimerLocked()
	}
}

func (b *Bridge) fail(err error) {
	b.mu.Lock()
	b.stopReadinessTimerLocked()
	b.state = StateFailed
	b.lastError = err.Error()
	b.mu.Unlock()

	b.logger.Error().Err(err).Msg("Bridge failed")
	b.notifyState(StateFailed)
	b.reportError(err)
}

func (b *Bridge) transmit(cmd Command) {
	if err := b.transport.Send(cmd); err != nil {
		b.fail(fmt.Errorf("send %s: %w", cmd.Type, err))
	}
}

func (b *Bridge) armReadinessTimerLocked() {
	b.stopReadinessTimerLocked()
	b.readinessTimer = time.AfterFunc(b.cfg.ReadinessTimeout, b.readinessTimedOut)
}

func (b *Bridge) stopReadinessTimerLocked() {
	if b.readinessTimer != nil {
		b.readinessTimer.Stop()
		b.readinessTimer = nil
	}
}

func (b *Bridge) readinessTimedOut() {
	b.mu.Lock()
	if b.state >= StateModelReady {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	b.fail(fmt.Errorf("renderer not ready within %s", b.cfg.ReadinessTimeout))
}

func (b *Bridge) notifyState(state State) {
	b.mu.Lock()
	fn := b.onStateChange
	b.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (b *Bridge) reportError(err error) {
	b.logger.Warn().Err(err).Msg("Bridge error")
	b.mu.Lock()
	fn := b.onError
	b.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
