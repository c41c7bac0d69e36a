package kafka

import (
	"sort"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is one record to publish. Key picks the partition, so every event
// of a batch is keyed by its batch id.
type Message struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

func (m Message) toKafka() kafka.Message {
	return kafka.Message{
		Key:     []byte(m.Key),
		Value:   m.Value,
		Headers: encodeHeaders(m.Headers),
	}
}

// IncomingMessage is a consumed record with its headers flattened. Later
// duplicates of a header key win.
type IncomingMessage struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Key       string
	Value     []byte
	Headers   map[string]string
}

func newIncoming(msg kafka.Message) *IncomingMessage {
	return &IncomingMessage{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Key:       string(msg.Key),
		Value:     msg.Value,
		Headers:   decodeHeaders(msg.Headers),
	}
}

// encodeHeaders sorts by key so identical messages encode identically.
func encodeHeaders(headers map[string]string) []kafka.Header {
	if len(headers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]kafka.Header, len(keys))
	for i, k := range keys {
		out[i] = kafka.Header{Key: k, Value: []byte(headers[k])}
	}
	return out
}

func decodeHeaders(headers []kafka.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}
