package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

// MessageHandler processes one message. Returning an error leaves the
// message uncommitted; the group redelivers it after a restart or rebalance.
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

// Reader is the part of kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// Consumer reads a topic in a consumer group
type Consumer struct {
	reader  Reader
	topic   string
	logger  ectologger.Logger
	handler MessageHandler
	// retryDelay is the pause after a failed fetch or handler call
	retryDelay time.Duration
	wg         sync.WaitGroup
	cancel     context.CancelFunc
}

// NewConsumer creates a consumer backed by a kafka.Reader
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0, // commit synchronously after each handled message
	})
	return NewConsumerWithReader(reader, cfg.Topic, logger, handler)
}

func NewConsumerWithReader(reader Reader, topic string, logger ectologger.Logger, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:     reader,
		topic:      topic,
		logger:     logger,
		handler:    handler,
		retryDelay: time.Second,
	}
}

// Start begins consuming in the background
func (c *Consumer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithField("topic", c.topic).Info("Kafka consumer started")
}

// Stop waits for the in-flight message and closes the reader
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
			c.pause(ctx)
			continue
		}

		if !c.processMessage(ctx, msg) {
			c.pause(ctx)
		}
	}
}

// processMessage reports whether the message was handled and committed.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) bool {
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	if err := c.handler(ctx, newIncoming(msg)); err != nil {
		log.WithError(err).Error("Failed to process message (not committing)")
		return false
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
		return false
	}
	return true
}

func (c *Consumer) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(c.retryDelay):
	}
}
