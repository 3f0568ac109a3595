package chat

import (
	"sort"

	"github.com/eunoia-health/eunoia/backend/internal/analysis/sentiment"
	"github.com/eunoia-health/eunoia/backend/internal/model/chat"
)

// annotate fills in mood and crisis metadata for user turns. Scores sent by
// the client are kept.
func annotate(message *chat.Message) {
	if message.Sender != chat.SenderUser {
		return
	}

	if message.Metadata == nil {
		message.Metadata = &chat.MessageMetadata{}
	} else {
		meta := *message.Metadata
		message.Metadata = &meta
	}

	if message.Metadata.MoodDetected == "" {
		result := sentiment.Tag(message.Content)
		message.Metadata.MoodDetected = string(result.Mood)
		message.Metadata.SentimentScore = float64(result.Score)
	}
	if len(sentiment.DetectCrisis(message.Content)) > 0 {
		message.Metadata.CrisisIndicators = true
	}
}

// AnalyzeMood summarises the user turns of a transcript.
func AnalyzeMood(messages []chat.Message) *chat.MoodAnalysis {
	var acc moodAccumulator
	for _, message := range messages {
		acc.Add(message)
	}
	return acc.Result()
}

// moodAccumulator folds a transcript one message at a time, so a session of
// any length can be analysed while streaming from the store.
type moodAccumulator struct {
	total      float64
	count      int
	indicators []string
	seen       map[string]struct{}
	topics     map[string]struct{}
}

func (a *moodAccumulator) Add(message chat.Message) {
	if message.Sender != chat.SenderUser {
		return
	}
	if a.seen == nil {
		a.seen = make(map[string]struct{})
		a.topics = make(map[string]struct{})
	}

	if message.Metadata != nil && message.Metadata.MoodDetected != "" {
		a.total += message.Metadata.SentimentScore
	} else {
		a.total += float64(sentiment.Tag(message.Content).Score)
	}
	a.count++

	for _, indicator := range sentiment.DetectCrisis(message.Content) {
		if _, dup := a.seen[indicator]; dup {
			continue
		}
		a.seen[indicator] = struct{}{}
		a.indicators = append(a.indicators, indicator)
	}
	for _, topic := range sentiment.Topics(message.Content) {
		a.topics[topic] = struct{}{}
	}
}

func (a *moodAccumulator) Result() *chat.MoodAnalysis {
	analysis := &chat.MoodAnalysis{
		KeyTopics:        make([]string, 0, len(a.topics)),
		CrisisIndicators: append([]string{}, a.indicators...),
	}
	if a.count > 0 {
		analysis.OverallSentiment = a.total / float64(a.count)
	}
	for topic := range a.topics {
		analysis.KeyTopics = append(analysis.KeyTopics, topic)
	}
	sort.Strings(analysis.KeyTopics)
	return analysis
}
