package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emomate/emomate/internal/chat"
	"github.com/emomate/emomate/internal/emotion"
)

func TestBuildMessages_Shape(t *testing.T) {
	history := []chat.Message{
		chat.NewMessage(chat.RoleUser, "你好", false),
		chat.NewMessage(chat.RoleAssistant, "你好呀～", false),
	}

	msgs := BuildMessages("", "小明", emotion.Happy, chat.TypeNormal, history, "今天天气不错")

	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "assistant", msgs[2].Role)
	assert.Equal(t, "user", msgs[3].Role)
	assert.Equal(t, "今天天气不错", msgs[3].Content)
}

func TestBuildMessages_SystemPromptFoldsContext(t *testing.T) {
	msgs := BuildMessages("你是一只猫娘", "小明", emotion.Sad, chat.TypeSimple, nil, "唉")

	system := msgs[0].Content
	assert.Contains(t, system, "你是一只猫娘")
	assert.Contains(t, system, "小明")
	assert.Contains(t, system, emotionHints[emotion.Sad])
	assert.Contains(t, system, lengthHints[chat.TypeSimple])
}

func TestBuildMessages_SystemHistoryExcluded(t *testing.T) {
	history := []chat.Message{
		chat.NewMessage(chat.RoleSystem, "internal marker", false),
		chat.NewMessage(chat.RoleUser, "你好", false),
	}

	msgs := BuildMessages("", "", emotion.Neutral, chat.TypeNormal, history, "嗯")
	require.Len(t, msgs, 3)
	for _, m := range msgs[1:] {
		assert.NotEqual(t, "internal marker", m.Content)
	}
}
