// Package kafka moves clover events over Kafka.
package kafka

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Writer is the part of kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// Producer publishes messages to one topic
type Producer struct {
	writer Writer
	topic  string
	logger ectologger.Logger
}

// NewProducer creates a producer backed by a kafka.Writer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	var compression kafka.Compression
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "snappy", "":
		compression = kafka.Snappy
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return NewProducerWithWriter(writer, cfg.Topic, logger)
}

// NewProducerWithWriter wraps an existing writer. The writer must already
// target topic.
func NewProducerWithWriter(writer Writer, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		topic:  topic,
		logger: logger,
	}
}

func (p *Producer) Topic() string {
	return p.topic
}

// Close flushes pending messages and closes the writer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Publish writes messages. Messages with the same key land on the same
// partition, so events of one batch stay ordered.
func (p *Producer) Publish(ctx context.Context, msgs ...Message) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()

	if len(msgs) == 0 {
		return nil
	}

	out := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.toKafka()
	}

	start := time.Now()
	err := p.writer.WriteMessages(ctx, out...)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordKafkaPublish(p.topic, status, time.Since(start).Seconds())

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"topic":      p.topic,
			"batch_size": len(msgs),
		}).Error("Failed to publish messages")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":      p.topic,
		"batch_size": len(msgs),
	}).Debug("Published messages")
	return nil
}
