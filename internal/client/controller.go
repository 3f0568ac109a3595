package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/eunoia-health/eunoia/backend/internal/analysis/sentiment"
	"github.com/eunoia-health/eunoia/backend/internal/model/chat"
	"github.com/eunoia-health/eunoia/backend/internal/service/assistant"
)

var (
	ErrEmptyInput    = errors.New("message is empty")
	ErrAwaitingReply = errors.New("assistant reply pending")
	ErrClosed        = errors.New("controller closed")
	ErrNoSessionAPI  = errors.New("no session api configured")
	ErrEmptyReply    = errors.New("chat model returned no message")
)

// State is the controller's conversation state.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingReply State = "awaiting_reply"
)

const replyTimeout = 30 * time.Second

// User is the signed-in person chatting.
type User struct {
	ID        int64
	FirstName string
}

// Persister queues messages for storage.
type Persister interface {
	Enqueue(message chat.Message) error
}

// SessionAPI obtains and reloads sessions from the server.
type SessionAPI interface {
	StartSession(ctx context.Context, userID int64) (StartedSession, error)
	Messages(ctx context.Context, userID int64, sessionID string) ([]chat.Message, error)
}

// Update is published whenever the transcript changes.
type Update struct {
	Message chat.Message
	State   State
	Err     error
}

// Controller drives one conversation: it records user turns, schedules the
// assistant reply and hands every message to the persister.
type Controller struct {
	user      User
	chatModel model.BaseChatModel
	persister Persister
	api       SessionAPI
	delay     func() time.Duration
	now       func() time.Time
	logger    *zap.Logger

	mu         sync.Mutex
	sessionID  string
	state      State
	transcript []chat.Message
	timer      *time.Timer
	turn       uint64
	askedAt    time.Time
	closed     bool
	updates    chan Update
}

// ControllerOption customises a Controller.
type ControllerOption func(*Controller)

// WithDelay overrides the thinking delay before each reply.
func WithDelay(delay func() time.Duration) ControllerOption {
	return func(c *Controller) {
		if delay != nil {
			c.delay = delay
		}
	}
}

// WithSessionAPI enables Start and Resume.
func WithSessionAPI(api SessionAPI) ControllerOption {
	return func(c *Controller) { c.api = api }
}

// WithControllerLogger sets the logger.
func WithControllerLogger(logger *zap.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithControllerClock overrides the time source.
func WithControllerClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController returns an idle controller for sessionID. chatModel answers
// user turns; persister receives every message.
func NewController(user User, sessionID string, chatModel model.BaseChatModel, persister Persister, opts ...ControllerOption) *Controller {
	c := &Controller{
		user:      user,
		chatModel: chatModel,
		persister: persister,
		delay:     assistant.ThinkingDelay,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    zap.NewNop(),
		sessionID: sessionID,
		state:     StateIdle,
		updates:   make(chan Update, 32),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Updates streams transcript changes. It is closed by Close.
func (c *Controller) Updates() <-chan Update {
	return c.updates
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the active session id.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Transcript returns a copy of the conversation so far.
func (c *Controller) Transcript() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.Message(nil), c.transcript...)
}

// Start opens a server-issued session and shows the greeting.
func (c *Controller) Start(ctx context.Context) (string, error) {
	if c.api == nil {
		return "", ErrNoSessionAPI
	}
	started, err := c.api.StartSession(ctx, c.user.ID)
	if err != nil {
		return "", err
	}

	greeting := started.Greeting
	if greeting == "" {
		greeting = assistant.Greeting(c.user.FirstName)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}
	if c.state == StateAwaitingReply {
		return "", ErrAwaitingReply
	}

	c.sessionID = started.SessionID
	welcome := chat.Message{
		SessionID: started.SessionID,
		UserID:    c.user.ID,
		Content:   greeting,
		Sender:    chat.SenderAssistant,
		Timestamp: c.now(),
	}
	c.transcript = []chat.Message{welcome}
	c.publishLocked(Update{Message: welcome, State: c.state})
	return started.SessionID, nil
}

// Resume replaces the transcript with the stored history of sessionID.
func (c *Controller) Resume(ctx context.Context, sessionID string) error {
	if c.api == nil {
		return ErrNoSessionAPI
	}
	messages, err := c.api.Messages(ctx, c.user.ID, sessionID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state == StateAwaitingReply {
		return ErrAwaitingReply
	}
	c.sessionID = sessionID
	c.transcript = append([]chat.Message(nil), messages...)
	return nil
}

// Submit records a user turn and schedules the assistant reply.
func (c *Controller) Submit(_ context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state == StateAwaitingReply {
		return ErrAwaitingReply
	}

	tagged := sentiment.Tag(text)
	message := chat.Message{
		SessionID: c.sessionID,
		UserID:    c.user.ID,
		Content:   text,
		Sender:    chat.SenderUser,
		Timestamp: c.now(),
		Metadata: &chat.MessageMetadata{
			MoodDetected:   string(tagged.Mood),
			SentimentScore: float64(tagged.Score),
		},
	}
	c.transcript = append(c.transcript, message)
	c.persist(message)

	c.state = StateAwaitingReply
	c.askedAt = c.now()
	c.turn++
	turn := c.turn
	c.timer = time.AfterFunc(c.delay(), func() { c.reply(turn) })

	c.publishLocked(Update{Message: message, State: c.state})
	return nil
}

// Close cancels a pending reply and closes Updates.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	close(c.updates)
}

func (c *Controller) reply(turn uint64) {
	c.mu.Lock()
	if c.closed || turn != c.turn {
		c.mu.Unlock()
		return
	}
	history := toSchema(c.transcript)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()
	generated, err := c.chatModel.Generate(ctx, history)
	if err == nil && generated == nil {
		err = ErrEmptyReply
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || turn != c.turn {
		return
	}
	c.state = StateIdle

	if err != nil {
		c.logger.Error("assistant reply failed", zap.String("session_id", c.sessionID), zap.Error(err))
		c.publishLocked(Update{State: c.state, Err: err})
		return
	}

	now := c.now()
	message := chat.Message{
		SessionID: c.sessionID,
		UserID:    c.user.ID,
		Content:   generated.Content,
		Sender:    chat.SenderAssistant,
		Timestamp: now,
		Metadata:  replyMetadata(generated, now.Sub(c.askedAt)),
	}
	c.transcript = append(c.transcript, message)
	c.persist(message)
	c.publishLocked(Update{Message: message, State: c.state})
}

func (c *Controller) persist(message chat.Message) {
	if c.persister == nil {
		return
	}
	if err := c.persister.Enqueue(message); err != nil {
		c.logger.Warn("message not queued for persistence",
			zap.String("session_id", message.SessionID),
			zap.String("sender", string(message.Sender)),
			zap.Error(err))
	}
}

// publishLocked must be called with c.mu held.
func (c *Controller) publishLocked(update Update) {
	if c.closed {
		return
	}
	select {
	case c.updates <- update:
	default:
		c.logger.Warn("update dropped, consumer is not keeping up")
	}
}

func replyMetadata(generated *schema.Message, elapsed time.Duration) *chat.MessageMetadata {
	meta := &chat.MessageMetadata{
		MoodDetected:   assistant.Mood,
		SentimentScore: assistant.Score,
		ResponseTimeMs: elapsed.Milliseconds(),
	}
	if mood, ok := generated.Extra[assistant.ExtraMood].(string); ok && mood != "" {
		meta.MoodDetected = mood
	}
	if score, ok := generated.Extra[assistant.ExtraScore].(float64); ok {
		meta.SentimentScore = score
	}
	return meta
}

func toSchema(transcript []chat.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(transcript))
	for _, message := range transcript {
		if message.Sender == chat.SenderUser {
			out = append(out, schema.UserMessage(message.Content))
		} else {
			out = append(out, schema.AssistantMessage(message.Content, nil))
		}
	}
	return out
}
