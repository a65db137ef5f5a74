package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

var ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")

// ConsumerConfig holds reader parameters.
type ConsumerConfig struct {
	Brokers      []string
	GroupID      string
	Topics       []string
	StartLatest  bool
	MaxRetries   int
	RetryBackoff time.Duration
}

// Reader abstracts kafka.Reader for testing.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one decoded event.
type Handler func(ctx context.Context, env *EventEnvelope) error

// Consumer dispatches events to per-topic handlers.  Every fetched message is
// committed once handled, failed or undecodable.
type Consumer struct {
	reader   Reader
	config   ConsumerConfig
	logger   logging.Logger
	mu       sync.RWMutex
	handlers map[string]Handler
	running  atomic.Bool

	processed atomic.Int64
	failed    atomic.Int64
}

// NewConsumer builds a group reader over cfg.Topics.
func NewConsumer(cfg ConsumerConfig, log logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	if cfg.GroupID == "" || len(cfg.Topics) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka consumer needs a group id and topics")
	}
	start := kafka.FirstOffset
	if cfg.StartLatest {
		start = kafka.LastOffset
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		StartOffset: start,
		MaxWait:     time.Second,
		Dialer:      &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true},
	})
	return NewConsumerWithReader(r, cfg, log), nil
}

// NewConsumerWithReader wraps r.
func NewConsumerWithReader(r Reader, cfg ConsumerConfig, log logging.Logger) *Consumer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Second
	}
	return &Consumer{reader: r, config: cfg, logger: log, handlers: make(map[string]Handler)}
}

// Subscribe routes topic to h, replacing any previous handler.
func (c *Consumer) Subscribe(topic string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = h
	c.logger.Info("Subscribed to topic", logging.String("topic", topic))
}

// Run consumes until ctx is done.  It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)
	c.logger.Info("Kafka consumer started", logging.String("group", c.config.GroupID))

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("FetchMessage error", logging.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.config.RetryBackoff):
			}
			continue
		}
		c.dispatch(ctx, m)
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("CommitMessages failed", logging.Err(err), logging.String("topic", m.Topic))
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, m kafka.Message) {
	c.mu.RLock()
	h, ok := c.handlers[m.Topic]
	c.mu.RUnlock()
	if !ok {
		c.logger.Warn("No handler for topic", logging.String("topic", m.Topic))
		return
	}

	env, err := DecodeEnvelope(m)
	if err != nil {
		c.failed.Add(1)
		c.logger.Warn("dropping undecodable event", logging.String("topic", m.Topic), logging.Err(err))
		return
	}

	backoff := c.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		if err = h(ctx, env); err == nil {
			c.processed.Add(1)
			return
		}
		if attempt >= c.config.MaxRetries || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	c.failed.Add(1)
	c.logger.Error("event handling failed",
		logging.String("topic", m.Topic),
		logging.String("event_id", env.EventID),
		logging.Int64("offset", m.Offset),
		logging.Err(err))
}

// Processed counts successfully handled events.
func (c *Consumer) Processed() int64 { return c.processed.Load() }

// Failed counts dropped events.
func (c *Consumer) Failed() int64 { return c.failed.Load() }

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
