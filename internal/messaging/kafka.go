// Package messaging provides the Kafka gossip bus connecting ledger peers.
// Every node publishes its claims, verdicts, and blocks to the shared topic
// and consumes the topic under its own group id, so each peer observes the
// full message stream.
package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ecl-project/ecl/internal/peersync"
	"github.com/ecl-project/ecl/pkg/errors"
	"github.com/ecl-project/ecl/pkg/log"
)

// KafkaBus wraps kafka-go with connection pooling for the gossip topic
type KafkaBus struct {
	brokers   []string
	nodeID    string
	logger    *log.Logger
	writers   map[string]*kafka.Writer
	readers   map[string]*kafka.Reader
	writersMu sync.RWMutex
	readersMu sync.RWMutex
}

// NewKafkaBus creates a gossip bus for a node
func NewKafkaBus(brokers []string, nodeID string, logger *log.Logger) *KafkaBus {
	return &KafkaBus{
		brokers: brokers,
		nodeID:  nodeID,
		logger:  logger.WithComponent("messaging"),
		writers: make(map[string]*kafka.Writer),
		readers: make(map[string]*kafka.Reader),
	}
}

// GetProducer gets or creates a producer for a topic (with connection pooling)
func (k *KafkaBus) GetProducer(topic string) *kafka.Writer {
	k.writersMu.RLock()
	if writer, exists := k.writers[topic]; exists {
		k.writersMu.RUnlock()
		return writer
	}
	k.writersMu.RUnlock()

	k.writersMu.Lock()
	defer k.writersMu.Unlock()

	// Double-check after acquiring write lock
	if writer, exists := k.writers[topic]; exists {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(k.brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Compression:  kafka.Snappy,
	}

	k.writers[topic] = writer
	k.logger.Info("created Kafka producer", "topic", topic)
	return writer
}

// GetConsumer gets or creates a consumer for a topic and group
func (k *KafkaBus) GetConsumer(topic, groupID string) *kafka.Reader {
	key := fmt.Sprintf("%s-%s", topic, groupID)

	k.readersMu.RLock()
	if reader, exists := k.readers[key]; exists {
		k.readersMu.RUnlock()
		return reader
	}
	k.readersMu.RUnlock()

	k.readersMu.Lock()
	defer k.readersMu.Unlock()

	// Double-check after acquiring write lock
	if reader, exists := k.readers[key]; exists {
		return reader
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     1 * time.Second,
	})

	k.readers[key] = reader
	k.logger.Info("created Kafka consumer", "topic", topic, "group_id", groupID)
	return reader
}

// Broadcast publishes an envelope to the gossip topic. There is exactly one
// attempt: local ledger operations never block on, or roll back for, an
// unreachable broker, so failures are surfaced to the caller and dropped
// there after logging.
func (k *KafkaBus) Broadcast(ctx context.Context, env *peersync.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "broadcast",
			"failed to encode envelope").
			WithContext("kind", env.Kind)
	}

	writer := k.GetProducer(TopicGossip)
	msg := kafka.Message{
		Key:   []byte(k.nodeID),
		Value: data,
		Time:  time.Now(),
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeKafka, "broadcast",
			"failed to publish envelope").
			WithContext("kind", env.Kind).
			WithContext("message_size", len(data))
	}

	k.logger.Debug("published envelope", "kind", env.Kind, "size", len(data))
	return nil
}

// EnvelopeHandler receives decoded gossip envelopes
type EnvelopeHandler interface {
	HandlePeerMessage(ctx context.Context, env *peersync.Envelope) error
}

// StartConsumer runs the gossip consumer loop until the context ends.
// Undecodable messages are logged and skipped; handler errors never stop
// the loop.
func (k *KafkaBus) StartConsumer(ctx context.Context, handler EnvelopeHandler) error {
	reader := k.GetConsumer(TopicGossip, "ecl-node-"+k.nodeID)
	defer func() {
		if err := reader.Close(); err != nil {
			k.logger.Error("failed to close Kafka reader", "error", err)
		}
	}()

	k.logger.Info("starting gossip consumer", "topic", TopicGossip, "node_id", k.nodeID)

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("gossip consumer stopping")
			return ctx.Err()
		default:
		}

		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Error("failed to read gossip message", "error", err)
			continue
		}

		env, err := peersync.Decode(msg.Value)
		if err != nil {
			k.logger.Error("skipping undecodable gossip message",
				"error", err, "size", len(msg.Value))
			continue
		}

		if err := handler.HandlePeerMessage(ctx, env); err != nil {
			k.logger.Error("failed to handle gossip message",
				"kind", env.Kind, "origin_node", env.NodeID, "error", err)
		}
	}
}

// Close closes all producers and consumers
func (k *KafkaBus) Close() error {
	k.writersMu.Lock()
	defer k.writersMu.Unlock()

	k.readersMu.Lock()
	defer k.readersMu.Unlock()

	var lastErr error

	for topic, writer := range k.writers {
		if err := writer.Close(); err != nil {
			k.logger.Error("failed to close producer", "topic", topic, "error", err)
			lastErr = err
		}
	}

	for key, reader := range k.readers {
		if err := reader.Close(); err != nil {
			k.logger.Error("failed to close consumer", "key", key, "error", err)
			lastErr = err
		}
	}

	k.writers = make(map[string]*kafka.Writer)
	k.readers = make(map[string]*kafka.Reader)
	return lastErr
}
