package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emomate/emomate/internal/emotion"
)

func TestStore_NotifiesOnlyOnChange(t *testing.T) {
	s := NewStore()

	var notified []Snapshot
	s.Subscribe(func(sn Snapshot) { notified = append(notified, sn) })

	s.SetGenerating(true)
	s.SetGenerating(true) // no-op
	s.SetSpeaking(true)
	s.SetGenerating(false)

	assert.Len(t, notified, 3)
	assert.True(t, notified[0].Generating)
	assert.True(t, notified[1].Speaking)
	assert.False(t, notified[2].Generating)
}

func TestStore_Busy(t *testing.T) {
	s := NewStore()
	assert.False(t, s.Busy())

	s.SetGenerating(true)
	assert.True(t, s.Busy())

	s.SetGenerating(false)
	s.SetSpeaking(true)
	assert.True(t, s.Busy())

	s.SetSpeaking(false)
	assert.False(t, s.Busy())
}

func TestStore_EmotionCarriesThrough(t *testing.T) {
	s := NewStore()
	s.SetEmotion(emotion.Happy)
	assert.Equal(t, emotion.Happy, s.Get().Emotion)
}
