package chat

import (
	"strings"
	"unicode/utf8"
)

// Type is the expected shape of a reply, derived per user message and used
// to size the LLM token budget and the formatter limits.
type Type string

const (
	TypeSimple       Type = "simple"
	TypeNormal       Type = "normal"
	TypeDetailed     Type = "detailed"
	TypeStorytelling Type = "storytelling"
)

// Keyword tables. Order matters: storytelling keywords take precedence over
// detail keywords even when a message matches both.
var (
	storytellingKeywords = []string{
		"讲个故事", "讲故事", "说个故事", "睡前故事", "讲讲", "说说看",
		"剧情", "童话", "编一个", "小说",
	}

	detailKeywords = []string{
		"详细", "具体", "为什么", "怎么回事", "解释", "介绍一下",
		"告诉我更多", "展开", "原理", "怎么做",
	}

	// Markers in the previous assistant reply that promised to elaborate,
	// e.g. it mentioned searching or looking something up.
	elaborateMarkers = []string{
		"搜索", "查一下", "帮你查", "查查", "了解一下", "稍等",
	}

	// Pure greeting / acknowledgement tokens that warrant a one-liner.
	simpleTokens = []string{
		"你好", "您好", "早", "早安", "晚安", "嗯", "嗯嗯", "哦", "哦哦",
		"好", "好的", "好啊", "在吗", "在么", "hi", "hello", "哈喽", "嘿",
	}
)

// simpleRuneLimit: anything at or under this many characters reads as a
// quick ack rather than a real question.
const simpleRuneLimit = 5

// Classify maps a user utterance plus recent history to a response shape.
// Precedence: storytelling > detailed > simple > normal; first match wins
// and unmatched input always falls through to normal.
func Classify(message string, history []Message) Type {
	trimmed := strings.TrimSpace(message)

	for _, kw := range storytellingKeywords {
		if strings.Contains(trimmed, kw) {
			return TypeStorytelling
		}
	}

	for _, kw := range detailKeywords {
		if strings.Contains(trimmed, kw) {
			return TypeDetailed
		}
	}
	if last, ok := lastAssistant(history); ok {
		for _, marker := range elaborateMarkers {
			if strings.Contains(last.Content, marker) {
				return TypeDetailed
			}
		}
	}

	lower := strings.ToLower(trimmed)
	for _, token := range simpleTokens {
		if lower == token {
			return TypeSimple
		}
	}
	if utf8.RuneCountInString(trimmed) <= simpleRuneLimit {
		return TypeSimple
	}

	return TypeNormal
}

// TokenBudget returns the LLM max-token hint for a response shape.
func TokenBudget(t Type) int {
	switch t {
	case TypeSimple:
		return 60
	case TypeDetailed:
		return 400
	case TypeStorytelling:
		return 700
	default:
		return 160
	}
}

func lastAssistant(history []Message) (Message, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleAssistant {
			return history[i], true
		}
	}
	return Message{}, false
}
