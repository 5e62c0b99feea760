package emotion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCombine_TextPriority(t *testing.T) {
	values := []Value{None, Neutral, Happy, Sad, Angry, Surprised}

	for _, facial := range values {
		for _, text := range values {
			got := Combine(facial, text)

			switch {
			case text != Neutral && text != None:
				assert.Equal(t, text, got, "facial=%q text=%q", facial, text)
			case facial != Neutral && facial != None:
				assert.Equal(t, facial, got, "facial=%q text=%q", facial, text)
			default:
				assert.Equal(t, Neutral, got, "facial=%q text=%q", facial, text)
			}
		}
	}
}

func TestCombine_Examples(t *testing.T) {
	assert.Equal(t, Sad, Combine(Happy, Sad))
	assert.Equal(t, Happy, Combine(Happy, None))
	assert.Equal(t, Neutral, Combine(None, None))
	assert.Equal(t, Surprised, Combine(Neutral, Surprised))
}

func TestStore_RecomputesOnEachWrite(t *testing.T) {
	s := NewStore()
	assert.Equal(t, Neutral, s.Combined())

	s.SetFacial(Happy)
	assert.Equal(t, Happy, s.Combined())

	s.SetText(Sad)
	assert.Equal(t, Sad, s.Combined())

	s.SetText(Neutral)
	assert.Equal(t, Happy, s.Combined())

	s.Clear()
	assert.Equal(t, Neutral, s.Combined())
	assert.Equal(t, None, s.Facial())
}

func TestStore_NotifiesOnCombinedChangeOnly(t *testing.T) {
	s := NewStore()

	var seen []Value
	s.Subscribe(func(v Value) { seen = append(seen, v) })

	s.SetFacial(Happy)
	s.SetFacial(Happy) // no combined change, no notification
	s.SetText(Sad)
	s.Clear()

	assert.Equal(t, []Value{Happy, Sad, Neutral}, seen)
}

func TestStore_InvalidValueTreatedAsNeutral(t *testing.T) {
	s := NewStore()
	s.SetText(Value("confused"))
	assert.Equal(t, Neutral, s.Combined())
}

func TestDetectText(t *testing.T) {
	cases := []struct {
		text string
		want Value
	}{
		{"我今天很开心", Happy},
		{"好难过啊", Sad},
		{"气死我了", Angry},
		{"居然是这样", Surprised},
		{"这是为什么？", Surprised},
		{"今天天气不错", Neutral},
		{"", Neutral},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectText(tc.text), "text=%q", tc.text)
	}
}
