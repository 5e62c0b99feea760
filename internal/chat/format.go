package chat

import (
	"regexp"
	"strings"
)

// FormatLimits is the length budget for one response shape.
type FormatLimits struct {
	MaxCharacters       int
	MaxSentences        int
	AllowMultiParagraph bool
}

var formatLimits = map[Type]FormatLimits{
	TypeSimple:       {MaxCharacters: 50, MaxSentences: 1, AllowMultiParagraph: false},
	TypeNormal:       {MaxCharacters: 120, MaxSentences: 2, AllowMultiParagraph: false},
	TypeDetailed:     {MaxCharacters: 300, MaxSentences: 4, AllowMultiParagraph: true},
	TypeStorytelling: {MaxCharacters: 500, MaxSentences: 6, AllowMultiParagraph: true},
}

// LimitsFor returns the formatting budget for a response shape.
func LimitsFor(t Type) FormatLimits {
	if limits, ok := formatLimits[t]; ok {
		return limits
	}
	return formatLimits[TypeNormal]
}

// Terminal punctuation that marks an acceptable truncation point.
const terminalPunctuation = "。！？~…"

// Characters a single-paragraph reply may end on without sounding cut off.
const softEndings = "。！？~…～、,，!?"

// trailingMarker is appended when a single-paragraph reply ends abruptly.
const trailingMarker = "～"

// ellipsisMarker is appended after a hard truncation.
const ellipsisMarker = "…"

var multiNewline = regexp.MustCompile(`\n{3,}`)

// Format post-processes a generated reply to fit the budget for its
// response shape. The transform is total: any input produces some output.
func Format(raw string, t Type) string {
	limits := LimitsFor(t)

	text := strings.TrimSpace(raw)
	if limits.AllowMultiParagraph {
		text = multiNewline.ReplaceAllString(text, "\n\n")
	} else {
		text = strings.Join(strings.Fields(text), " ")
	}

	runes := []rune(text)
	if len(runes) > limits.MaxCharacters {
		runes = truncate(runes, limits.MaxCharacters)
	}

	if !limits.AllowMultiParagraph && len(runes) > 0 {
		if !strings.ContainsRune(softEndings, runes[len(runes)-1]) {
			runes = append(runes, []rune(trailingMarker)...)
		}
	}

	return string(runes)
}

// truncate cuts runes down to at most maxChars, preferring a terminal
// punctuation mark in the tail 20% of the allowed window. When no such mark
// exists the cut is hard, at maxChars-3 plus an ellipsis.
func truncate(runes []rune, maxChars int) []rune {
	windowStart := maxChars * 80 / 100

	for i := maxChars - 1; i >= windowStart; i-- {
		if strings.ContainsRune(terminalPunctuation, runes[i]) {
			return runes[:i+1]
		}
	}

	hard := maxChars - 3
	if hard < 0 {
		hard = 0
	}
	return append(runes[:hard:hard], []rune(ellipsisMarker)...)
}
