package sentiment

import "strings"

// Mood is the coarse label attached to a user turn.
type Mood string

const (
	Positive Mood = "positive"
	Negative Mood = "negative"
	Neutral  Mood = "neutral"
)

// Result is the outcome of tagging one text.
type Result struct {
	Mood  Mood
	Score int
}

var positiveWords = []string{"bien", "genial", "feliz", "alegre", "contento", "optimista", "mejor", "bueno"}

var negativeWords = []string{"mal", "triste", "deprimido", "ansiedad", "preocupado", "miedo", "angustia", "peor"}

// neutralWords is kept alongside the other buckets but does not take part in
// scoring yet.
var neutralWords = []string{"normal", "regular", "ok", "igual", "así"}

// NeutralWords returns a copy of the neutral keyword list.
func NeutralWords() []string {
	return append([]string(nil), neutralWords...)
}

// Tag scores text by substring keyword matching. Each positive word present
// adds one point, each negative word present removes one. The negative list
// is evaluated last, so any negative hit makes the label negative even when
// the score stays positive.
func Tag(text string) Result {
	lowered := strings.ToLower(text)
	result := Result{Mood: Neutral}

	for _, word := range positiveWords {
		if strings.Contains(lowered, word) {
			result.Score++
			result.Mood = Positive
		}
	}

	for _, word := range negativeWords {
		if strings.Contains(lowered, word) {
			result.Score--
			result.Mood = Negative
		}
	}

	return result
}
