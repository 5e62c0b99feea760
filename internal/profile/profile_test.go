package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emomate/emomate/internal/emotion"
)

func TestStore_NeutralObservationsNotLogged(t *testing.T) {
	s := NewStore(Profile{Nickname: "小明"}, 10)

	s.RecordEmotion(emotion.Neutral, "facial")
	s.RecordEmotion(emotion.None, "facial")
	s.RecordEmotion(emotion.Happy, "text")

	log := s.EmotionLog()
	assert.Len(t, log, 1)
	assert.Equal(t, emotion.Happy, log[0].Value)
	assert.Equal(t, "text", log[0].Source)
}

func TestStore_LogIsBounded(t *testing.T) {
	s := NewStore(Profile{}, 3)

	for i := 0; i < 5; i++ {
		s.RecordEmotion(emotion.Sad, "text")
	}
	s.RecordEmotion(emotion.Happy, "text")

	log := s.EmotionLog()
	assert.Len(t, log, 3)
	assert.Equal(t, emotion.Happy, log[2].Value)
}

func TestStore_DominantEmotion(t *testing.T) {
	s := NewStore(Profile{}, 10)
	assert.Equal(t, emotion.Neutral, s.DominantEmotion())

	s.RecordEmotion(emotion.Sad, "text")
	s.RecordEmotion(emotion.Happy, "text")
	s.RecordEmotion(emotion.Happy, "facial")

	assert.Equal(t, emotion.Happy, s.DominantEmotion())
}

func TestStore_SetNickname(t *testing.T) {
	s := NewStore(Profile{Nickname: "朋友"}, 10)
	s.SetNickname("小红")
	assert.Equal(t, "小红", s.Profile().Nickname)
}
