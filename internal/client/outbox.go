package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/eunoia-health/eunoia/backend/internal/model/chat"
)

var (
	ErrOutboxFull   = errors.New("outbox is full")
	ErrOutboxClosed = errors.New("outbox is closed")
)

const (
	defaultOutboxSize   = 64
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 500 * time.Millisecond
	defaultSaveTimeout  = 10 * time.Second
)

// MessageSaver persists a single chat message.
type MessageSaver interface {
	SaveMessage(ctx context.Context, message chat.Message) (string, error)
}

// Failure reports a message that could not be persisted.
type Failure struct {
	Message  chat.Message
	Attempts int
	Err      error
}

// Outbox persists messages in the background, in submission order.
type Outbox struct {
	saver       MessageSaver
	logger      *zap.Logger
	maxAttempts int
	backoff     time.Duration
	saveTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan chat.Message

	failures chan Failure
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// OutboxOption customises an Outbox.
type OutboxOption func(*Outbox)

// WithQueueSize bounds how many messages may wait for delivery.
func WithQueueSize(n int) OutboxOption {
	return func(o *Outbox) {
		if n > 0 {
			o.queue = make(chan chat.Message, n)
		}
	}
}

// WithRetry sets the attempt budget and the first backoff interval, which
// doubles after every failed attempt.
func WithRetry(maxAttempts int, backoff time.Duration) OutboxOption {
	return func(o *Outbox) {
		if maxAttempts > 0 {
			o.maxAttempts = maxAttempts
		}
		if backoff >= 0 {
			o.backoff = backoff
		}
	}
}

// WithOutboxLogger sets the logger.
func WithOutboxLogger(logger *zap.Logger) OutboxOption {
	return func(o *Outbox) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOutbox starts the delivery worker.
func NewOutbox(saver MessageSaver, opts ...OutboxOption) *Outbox {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Outbox{
		saver:       saver,
		logger:      zap.NewNop(),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultRetryBackoff,
		saveTimeout: defaultSaveTimeout,
		queue:       make(chan chat.Message, defaultOutboxSize),
		failures:    make(chan Failure, defaultOutboxSize),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}

	go o.run()
	return o
}

// Enqueue schedules message for persistence without blocking.
func (o *Outbox) Enqueue(message chat.Message) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.queue <- message:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Failures delivers messages whose retries were exhausted. The channel is
// closed once the outbox has shut down.
func (o *Outbox) Failures() <-chan Failure {
	return o.failures
}

// Close stops accepting messages and waits for the queue to drain. When ctx
// expires first, in-flight deliveries are cancelled and the rest dropped.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()

	select {
	case <-o.done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		<-o.done
		return ctx.Err()
	}
}

func (o *Outbox) run() {
	defer close(o.done)
	defer close(o.failures)

	for message := range o.queue {
		if o.ctx.Err() != nil {
			o.report(Failure{Message: message, Err: o.ctx.Err()})
			continue
		}
		o.deliver(message)
	}
}

func (o *Outbox) deliver(message chat.Message) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.backoff
	policy.RandomizationFactor = 0
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0

	attempts := 0
	save := func() error {
		attempts++
		ctx, cancel := context.WithTimeout(o.ctx, o.saveTimeout)
		defer cancel()

		_, err := o.saver.SaveMessage(ctx, message)
		if err == nil {
			return nil
		}
		o.logger.Warn("message save failed",
			zap.String("session_id", message.SessionID),
			zap.String("sender", string(message.Sender)),
			zap.Int("attempt", attempts),
			zap.Error(err))

		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	retries := backoff.WithMaxRetries(policy, uint64(o.maxAttempts-1))
	if err := backoff.Retry(save, backoff.WithContext(retries, o.ctx)); err != nil {
		o.report(Failure{Message: message, Attempts: attempts, Err: err})
	}
}

func (o *Outbox) report(failure Failure) {
	o.logger.Error("message not persisted",
		zap.String("session_id", failure.Message.SessionID),
		zap.Int("attempts", failure.Attempts),
		zap.Error(failure.Err))

	select {
	case o.failures <- failure:
	default:
		o.logger.Warn("failure channel full, dropping report")
	}
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return !errors.Is(err, context.Canceled)
}
