package llm

import (
	"fmt"
	"strings"

	"github.com/emomate/emomate/internal/chat"
	"github.com/emomate/emomate/internal/emotion"
)

// lengthHints steer the reply length toward the formatter's limits so
// that truncation stays the exception rather than the rule.
var lengthHints = map[chat.Type]string{
	chat.TypeSimple:       "用一句简短的话回应，不超过50个字。",
	chat.TypeNormal:       "简洁自然地回应，不超过120个字。",
	chat.TypeDetailed:     "可以展开说明，但控制在300个字以内。",
	chat.TypeStorytelling: "可以完整地讲述，控制在500个字以内。",
}

var emotionHints = map[emotion.Value]string{
	emotion.Happy:     "用户现在心情很好，陪着一起开心。",
	emotion.Sad:       "用户现在有些低落，温柔一点，多安慰。",
	emotion.Angry:     "用户现在有些生气，先安抚情绪，不要讲道理。",
	emotion.Surprised: "用户现在感到惊讶或疑惑，耐心解释。",
}

// BuildMessages assembles the system prompt and recent history into the
// wire-format message list for a completion request.
func BuildMessages(persona, nickname string, emo emotion.Value, convType chat.Type, history []chat.Message, userText string) []ChatMessage {
	var system strings.Builder
	if persona != "" {
		system.WriteString(persona)
	} else {
		system.WriteString("你是一个温暖贴心的桌面陪伴助手，说话自然、有人情味。")
	}
	system.WriteString("\n")
	if nickname != "" {
		fmt.Fprintf(&system, "称呼用户为「%s」。\n", nickname)
	}
	if hint, ok := emotionHints[emo]; ok {
		system.WriteString(hint)
		system.WriteString("\n")
	}
	if hint, ok := lengthHints[convType]; ok {
		system.WriteString(hint)
	}

	messages := make([]ChatMessage, 0, len(history)+2)
	messages = append(messages, ChatMessage{Role: "system", Content: system.String()})
	for _, m := range history {
		if m.Role != chat.RoleUser && m.Role != chat.RoleAssistant {
			continue
		}
		messages = append(messages, ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: userText})

	return messages
}
