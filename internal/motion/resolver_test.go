package motion

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emomate/emomate/internal/emotion"
	"github.com/emomate/emomate/internal/live2d"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) PlayMotion(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, name)
}

func (f *fakeSender) motions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestResolver(sender *fakeSender) *Resolver {
	return NewResolver(sender, Config{
		CompletionTimeout: 200 * time.Millisecond,
		IdleReturnDelay:   50 * time.Millisecond,
	}, zerolog.Nop())
}

func TestDesired_Priority(t *testing.T) {
	cases := []struct {
		name string
		in   Inputs
		want string
	}{
		{"idle by default", Inputs{}, MotionIdle},
		{"emotion maps", Inputs{Emotion: emotion.Happy}, MotionHappy},
		{"speaking beats emotion", Inputs{Speaking: true, Emotion: emotion.Happy}, MotionSpeaking},
		{"generating beats speaking", Inputs{Generating: true, Speaking: true}, MotionThinking},
		{"listening beats generating", Inputs{Listening: true, Generating: true}, MotionExcited},
		{"override beats everything", Inputs{Override: MotionDance, Listening: true}, MotionDance},
		{"idle override is ignored", Inputs{Override: MotionIdle, Emotion: emotion.Sad}, MotionSleepy},
		{"invalid override is ignored", Inputs{Override: "Backflip", Emotion: emotion.Happy}, MotionHappy},
		{"angry borrows surprised", Inputs{Emotion: emotion.Angry}, MotionSurprised},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Desired(tc.in))
		})
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, MotionHappy, Sanitize("Happy"))
	assert.Equal(t, MotionIdle, Sanitize("Backflip"))
	assert.Equal(t, MotionIdle, Sanitize(""))
}

func TestResolver_DeduplicatesInFlightMotion(t *testing.T) {
	sender := &fakeSender{}
	r := newTestResolver(sender)

	// Request the same motion twice in immediate succession while the
	// first command is still in flight.
	r.RequestMotion(MotionHappy)
	r.RequestMotion(MotionHappy)

	motions := sender.motions()
	count := 0
	for _, m := range motions {
		if m == MotionHappy {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one Happy command reaches the transport, got %v", motions)
}

func TestResolver_AutoReturnToIdle(t *testing.T) {
	sender := &fakeSender{}
	r := newTestResolver(sender)

	r.SetEmotion(emotion.Happy)
	require.Equal(t, MotionHappy, r.InFlight())

	// Emotion clears while the motion plays; desired becomes Idle.
	r.SetEmotion(emotion.Neutral)
	r.HandleResult(live2d.MotionResult{Motion: MotionHappy, Success: true})

	require.Eventually(t, func() bool {
		for _, m := range sender.motions() {
			if m == MotionIdle {
				return true
			}
		}
		return false
	}, 500*time.Millisecond, 10*time.Millisecond)

	idleCount := 0
	for _, m := range sender.motions() {
		if m == MotionIdle {
			idleCount++
		}
	}
	assert.Equal(t, 1, idleCount)
}

func TestResolver_NoAutoReturnWhenPreempted(t *testing.T) {
	sender := &fakeSender{}
	r := newTestResolver(sender)

	r.SetEmotion(emotion.Happy)
	r.SetEmotion(emotion.Neutral) // desired Idle while Happy in flight
	r.HandleResult(live2d.MotionResult{Motion: MotionHappy, Success: true})

	// Before the grace delay elapses, something else takes over.
	r.SetSpeaking(true)

	time.Sleep(150 * time.Millisecond)

	for _, m := range sender.motions() {
		assert.NotEqual(t, MotionIdle, m, "no auto-return Idle after pre-emption, got %v", sender.motions())
	}
}

func TestResolver_CompletionTimeoutReportsFailure(t *testing.T) {
	sender := &fakeSender{}
	r := newTestResolver(sender)

	var mu sync.Mutex
	var name, errText string
	var success bool
	done := make(chan struct{})
	r.SetCompletionHandler(func(n string, ok bool, e string) {
		mu.Lock()
		name, success, errText = n, ok, e
		mu.Unlock()
		close(done)
	})

	r.SetEmotion(emotion.Happy)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion handler not invoked after timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, MotionHappy, name)
	assert.False(t, success)
	assert.Contains(t, errText, "timeout")
	assert.Empty(t, r.InFlight())
}

func TestResolver_FailureDoesNotHaltSubsequentMotions(t *testing.T) {
	sender := &fakeSender{}
	r := newTestResolver(sender)

	r.SetEmotion(emotion.Happy)
	r.HandleResult(live2d.MotionResult{Motion: MotionHappy, Success: false, Error: "model busy"})

	r.SetEmotion(emotion.Surprised)
	assert.Contains(t, sender.motions(), MotionSurprised)
}

func TestResolver_StaleResultIgnored(t *testing.T) {
	sender := &fakeSender{}
	r := newTestResolver(sender)

	var calls int
	r.SetCompletionHandler(func(string, bool, string) { calls++ })

	r.SetEmotion(emotion.Happy)
	r.HandleResult(live2d.MotionResult{Motion: MotionDance, Success: true}) // never dispatched
	r.HandleResult(live2d.MotionResult{Motion: MotionHappy, Success: true})
	r.HandleResult(live2d.MotionResult{Motion: MotionHappy, Success: true}) // duplicate

	assert.Equal(t, 1, calls)
}

func TestResolver_ReentrantCompletionCallback(t *testing.T) {
	sender := &fakeSender{}
	r := newTestResolver(sender)

	// The completion callback immediately requests another motion.
	r.SetCompletionHandler(func(name string, ok bool, _ string) {
		if name == MotionHappy {
			r.RequestMotion(MotionWave)
		}
	})

	r.SetEmotion(emotion.Happy)
	assert.NotPanics(t, func() {
		r.HandleResult(live2d.MotionResult{Motion: MotionHappy, Success: true})
	})
	assert.Contains(t, sender.motions(), MotionWave)
}
