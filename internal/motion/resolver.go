package motion

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/emomate/emomate/internal/emotion"
	"github.com/emomate/emomate/internal/live2d"
)

// Sender dispatches a motion command to the renderer. The bridge queues
// commands itself while the renderer is not ready, so the resolver never
// drops a request.
type Sender interface {
	PlayMotion(name string)
}

// Config holds resolver tunables.
type Config struct {
	CompletionTimeout time.Duration // safety net when no motionResult arrives (default 3s)
	IdleReturnDelay   time.Duration // grace before returning to Idle (default 1s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CompletionTimeout: 3 * time.Second,
		IdleReturnDelay:   1 * time.Second,
	}
}

// Inputs are the signals a motion is derived from.
type Inputs struct {
	Listening  bool
	Generating bool
	Speaking   bool
	Emotion    emotion.Value
	Override   string // explicit motion request, wins over everything but Idle
}

// Desired derives the wanted motion from the inputs, highest priority
// first: override > listening > generating > speaking > emotion > idle.
func Desired(in Inputs) string {
	if in.Override != "" && Sanitize(in.Override) != MotionIdle {
		return Sanitize(in.Override)
	}
	if in.Listening {
		return MotionExcited
	}
	if in.Generating {
		return MotionThinking
	}
	if in.Speaking {
		return MotionSpeaking
	}
	return ForEmotion(in.Emotion)
}

// Resolver tracks the desired motion and keeps at most one motion command
// in flight. Repeated requests for the in-flight motion are coalesced.
type Resolver struct {
	sender Sender
	logger zerolog.Logger
	cfg    Config

	mu              sync.Mutex
	inputs          Inputs
	desired         string
	inFlight        string
	completionTimer *time.Timer
	idleTimer       *time.Timer

	onComplete func(name string, success bool, errText string)
}

// NewResolver creates a resolver dispatching through sender.
func NewResolver(sender Sender, cfg Config, logger zerolog.Logger) *Resolver {
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = 3 * time.Second
	}
	if cfg.IdleReturnDelay <= 0 {
		cfg.IdleReturnDelay = 1 * time.Second
	}
	return &Resolver{
		sender:  sender,
		logger:  logger.With().Str("component", "motion-resolver").Logger(),
		cfg:     cfg,
		desired: MotionIdle,
	}
}

// SetCompletionHandler registers the callback invoked once per dispatched
// motion with its outcome.
func (r *Resolver) SetCompletionHandler(fn func(name string, success bool, errText string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onComplete = fn
}

// SetListening updates the listening signal.
func (r *Resolver) SetListening(v bool) { r.update(func(in *Inputs) { in.Listening = v }) }

// SetGenerating updates the generating signal.
func (r *Resolver) SetGenerating(v bool) { r.update(func(in *Inputs) { in.Generating = v }) }

// SetSpeaking updates the speaking signal.
func (r *Resolver) SetSpeaking(v bool) { r.update(func(in *Inputs) { in.Speaking = v }) }

// SetEmotion updates the combined emotion signal.
func (r *Resolver) SetEmotion(v emotion.Value) { r.update(func(in *Inputs) { in.Emotion = v }) }

// RequestMotion sets an explicit motion override. Pass an empty string to
// clear it. Invalid names are substituted with Idle at this boundary.
func (r *Resolver) RequestMotion(name string) {
	r.update(func(in *Inputs) {
		if name == "" {
			in.Override = ""
			return
		}
		in.Override = Sanitize(name)
	})
}

// DesiredMotion returns the currently derived motion.
func (r *Resolver) DesiredMotion() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.desired
}

// InFlight returns the motion currently awaiting a result, if any.
func (r *Resolver) InFlight() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}

// update applies an input mutation and re-resolves the desired motion.
func (r *Resolver) update(mutate func(*Inputs)) {
	r.mu.Lock()
	mutate(&r.inputs)
	desired := Desired(r.inputs)
	if desired == r.desired {
		r.mu.Unlock()
		return
	}
	r.desired = desired

	// A return to Idle while a motion is still playing is not dispatched
	// here: the completion path schedules it after the grace delay.
	if desired == MotionIdle && r.inFlight != "" && r.inFlight != MotionIdle {
		r.mu.Unlock()
		return
	}
	r.dispatchLocked(desired)
}

// dispatchLocked sends the desired motion unless it is already in flight.
// Releases the lock before touching the sender so a synchronous result
// callback cannot deadlock.
func (r *Resolver) dispatchLocked(name string) {
	if r.idleTimer != nil {
		r.idleTimer.Stop()
		r.idleTimer = nil
	}

	if r.inFlight == name {
		r.mu.Unlock()
		return
	}

	r.inFlight = name
	if r.completionTimer != nil {
		r.completionTimer.Stop()
	}
	r.completionTimer = time.AfterFunc(r.cfg.CompletionTimeout, func() {
		r.HandleResult(live2d.MotionResult{
			Motion:  name,
			Success: false,
			Error:   "motion completion timeout",
		})
	})
	r.mu.Unlock()

	r.logger.Debug().Str("motion", name).Msg("Dispatching motion")
	r.sender.PlayMotion(name)
}

// HandleResult consumes a renderer motion result (or the safety timeout).
// It clears the in-flight state, reports completion, and schedules the
// return to Idle when nothing else took over while the motion played.
func (r *Resolver) HandleResult(result live2d.MotionResult) {
	r.mu.Lock()
	if r.inFlight != result.Motion {
		r.mu.Unlock()
		return
	}
	r.inFlight = ""
	if r.completionTimer != nil {
		r.completionTimer.Stop()
		r.completionTimer = nil
	}
	desired := r.desired
	onComplete := r.onComplete

	scheduleIdle := result.Success && result.Motion != MotionIdle && desired == MotionIdle
	if scheduleIdle {
		if r.idleTimer != nil {
			r.idleTimer.Stop()
		}
		r.idleTimer = time.AfterFunc(r.cfg.IdleReturnDelay, r.returnToIdle)
	}
	r.mu.Unlock()

	if !result.Success {
		r.logger.Warn().Str("motion", result.Motion).Str("error", result.Error).Msg("Motion failed")
	}
	if onComplete != nil {
		onComplete(result.Motion, result.Success, result.Error)
	}
}

// returnToIdle fires after the grace delay; it dispatches Idle only when
// nothing pre-empted it in the meantime.
func (r *Resolver) returnToIdle() {
	r.mu.Lock()
	if r.desired != MotionIdle || r.inFlight != "" {
		r.mu.Unlock()
		return
	}
	r.idleTimer = nil
	r.dispatchLocked(MotionIdle)
}

// Stop cancels outstanding timers.
func (r *Resolver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completionTimer != nil {
		r.completionTimer.Stop()
		r.completionTimer = nil
	}
	if r.idleTimer != nil {
		r.idleTimer.Stop()
		r.idleTimer = nil
	}
}
