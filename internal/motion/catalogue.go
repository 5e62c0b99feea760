// Package motion derives the avatar's animation from the conversation
// state and drives it through the renderer bridge.
package motion

import "github.com/emomate/emomate/internal/emotion"

// The fixed motion catalogue supported by the Live2D model.
const (
	MotionIdle      = "Idle"
	MotionSpeaking  = "Speaking"
	MotionThinking  = "Thinking"
	MotionHappy     = "Happy"
	MotionSurprised = "Surprised"
	MotionShy       = "Shy"
	MotionWave      = "Wave"
	MotionDance     = "Dance"
	MotionLaugh     = "Laugh"
	MotionExcited   = "Excited"
	MotionSleepy    = "Sleepy"
)

// Catalogue lists every motion the renderer accepts.
func Catalogue() []string {
	return []string{
		MotionIdle, MotionSpeaking, MotionThinking, MotionHappy,
		MotionSurprised, MotionShy, MotionWave, MotionDance,
		MotionLaugh, MotionExcited, MotionSleepy,
	}
}

var catalogueSet = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, name := range Catalogue() {
		set[name] = struct{}{}
	}
	return set
}()

// Valid reports whether name is in the catalogue.
func Valid(name string) bool {
	_, ok := catalogueSet[name]
	return ok
}

// Sanitize substitutes Idle for any motion outside the catalogue.
func Sanitize(name string) string {
	if Valid(name) {
		return name
	}
	return MotionIdle
}

// ForEmotion maps an emotion to its motion. The model has no dedicated
// angry motion, so angry borrows the surprised animation.
func ForEmotion(v emotion.Value) string {
	switch v {
	case emotion.Happy:
		return MotionHappy
	case emotion.Sad:
		return MotionSleepy
	case emotion.Angry:
		return MotionSurprised
	case emotion.Surprised:
		return MotionSurprised
	}
	return MotionIdle
}
