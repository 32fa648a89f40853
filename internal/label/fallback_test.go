package label

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallback(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"greeting and role stripped", "Hi doctor, my knee hurts", "My Knee Hurts"},
		{"hello there", "Hello there! I have a rash on my arm", "I Have A Rash On"},
		{"stacked greetings", "Hey, good morning Dr. I keep waking up at night", "I Keep Waking Up At"},
		{"dear doctor", "Hello dear doctor, question about my prescription", "Question About My Prescription"},
		{"no greeting", "chest pain when climbing stairs", "Chest Pain When Climbing Stairs"},
		{"greeting prefix inside word", "Highway accident yesterday", "Highway Accident Yesterday"},
		{"only greeting keeps original", "Hi doctor", "Hi Doctor"},
		{"doctor name after dr", "Hi Dr. Smith, my knee hurts", "My Knee Hurts"},
		{"doctor name without dot", "Hey Dr Jones my back aches", "My Back Aches"},
		{"doctor name after comma", "Good morning doctor Patel, I feel dizzy", "I Feel Dizzy"},
		{"nurse name", "Hello nurse Jane! my stitches itch", "My Stitches Itch"},
		{"lowercase word after doctor kept", "Hi doctor, question about dosage", "Question About Dosage"},
		{"acronyms kept", "my ACL feels loose", "My ACL Feels Loose"},
		{"punctuation trimmed", "fever... and (chills)?", "Fever And Chills"},
		{"apostrophe kept", "I can't sleep", "I Can't Sleep"},
		{"empty", "", ""},
		{"punctuation only", "?!...", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fallback(tt.in))
		})
	}
}

func TestFallback_TruncatesAtWordBoundary(t *testing.T) {
	in := "extraordinarily uncomfortable gastrointestinal symptoms persisting overnight"
	got := Fallback(in)

	assert.LessOrEqual(t, len([]rune(got)), MaxLength)
	assert.Equal(t, "Extraordinarily Uncomfortable Gastrointestinal", got)
	for _, w := range strings.Fields(got) {
		assert.Contains(t, strings.ToLower(in), strings.ToLower(w), "word %q was cut mid-word", w)
	}
}

func TestFallback_NeverEmptyForWords(t *testing.T) {
	inputs := []string{"hi", "hello!", "hey there", "good evening", "ok", "x"}
	for _, in := range inputs {
		assert.NotEmpty(t, strings.TrimSpace(Fallback(in)), "input %q", in)
	}
}
