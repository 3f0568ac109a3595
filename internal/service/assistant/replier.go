package assistant

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	// Mood is the tag stamped on every canned reply.
	Mood = "supportive"
	// Score is the sentiment score stamped on every canned reply.
	Score = 0.8

	minThinkingDelay = 1500 * time.Millisecond
	thinkingJitter   = 1000 * time.Millisecond
)

// Extra keys set on generated schema messages.
const (
	ExtraMood  = "mood_detected"
	ExtraScore = "sentiment_score"
)

// Reply is one canned answer with its fixed analysis.
type Reply struct {
	Content string
	Mood    string
	Score   float64
}

// Replier picks supportive canned replies. It satisfies eino's chat model
// contract so a real model can take its place behind the same seam.
type Replier struct {
	firstName string
	intn      func(n int) int
}

var _ model.BaseChatModel = (*Replier)(nil)

// Option customises a Replier.
type Option func(*Replier)

// WithRandom overrides the index source used to pick replies.
func WithRandom(intn func(n int) int) Option {
	return func(r *Replier) {
		if intn != nil {
			r.intn = intn
		}
	}
}

// NewReplier returns a Replier addressing the user by firstName when set.
func NewReplier(firstName string, opts ...Option) *Replier {
	r := &Replier{
		firstName: strings.TrimSpace(firstName),
		intn:      rand.IntN,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Replies returns the ordered reply pool for the configured user.
func (r *Replier) Replies() []string {
	understand := "Entiendo cómo te sientes."
	if r.firstName != "" {
		understand = fmt.Sprintf("Entiendo cómo te sientes, %s.", r.firstName)
	}

	return []string{
		understand + " Es completamente normal experimentar estas emociones. ¿Puedes contarme más sobre lo que está pasando?",
		"Gracias por compartir eso conmigo. Tu bienestar es mi prioridad. ¿Has probado alguna técnica de respiración profunda últimamente?",
		"Me alegra saber que te sientes mejor. El progreso, aunque sea pequeño, es muy valioso. ¿Qué te ha ayudado más en este proceso?",
		"Es muy valiente de tu parte buscar ayuda y hablar sobre esto. Recuerda que no estás solo en este camino. ¿Te gustaría que te sugiera algunos ejercicios de relajación?",
		"Comprendo que puede ser difícil a veces. Cada día es una nueva oportunidad para cuidar tu bienestar mental. ¿Hay algo específico que te preocupa hoy?",
		"Esa es una perspectiva muy interesante. Me parece importante lo que compartes. ¿Cómo te hace sentir pensar en eso?",
		"Noto que has estado reflexionando mucho sobre esto. Es normal tener altibajos emocionales. ¿Qué estrategias te han funcionado antes?",
		"Tu honestidad es muy valiosa para mí. Hablar de estos temas requiere coraje. ¿Te sientes cómodo/a explorando más sobre este tema?",
	}
}

// Pick returns a uniformly chosen reply.
func (r *Replier) Pick() Reply {
	pool := r.Replies()
	return Reply{
		Content: pool[r.intn(len(pool))],
		Mood:    Mood,
		Score:   Score,
	}
}

// Generate ignores the conversation and answers with a canned reply.
func (r *Replier) Generate(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reply := r.Pick()
	msg := schema.AssistantMessage(reply.Content, nil)
	msg.Extra = map[string]any{
		ExtraMood:  reply.Mood,
		ExtraScore: reply.Score,
	}
	return msg, nil
}

// Stream delivers the canned reply as a single chunk.
func (r *Replier) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := r.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Greeting is the assistant's opening line.
func Greeting(firstName string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		return "¡Hola! Soy Ana, tu asistente de bienestar mental con IA. Estoy aquí para apoyarte las 24 horas del día. ¿Cómo te sientes hoy?"
	}
	return fmt.Sprintf("¡Hola %s! Soy Ana, tu asistente de bienestar mental con IA. Estoy aquí para apoyarte las 24 horas del día. ¿Cómo te sientes hoy?", name)
}

// ThinkingDelay returns how long to wait before showing a reply, between
// 1.5s and 2.5s.
func ThinkingDelay() time.Duration {
	return minThinkingDelay + rand.N(thinkingJitter)
}
