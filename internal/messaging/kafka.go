// Package messaging publishes the miner's share events and statistics to
// external consumers over Kafka and ZeroMQ.
package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"

	"github.com/bardlex/ducominer/internal/stats"
	"github.com/bardlex/ducominer/pkg/circuit"
	"github.com/bardlex/ducominer/pkg/errors"
	"github.com/bardlex/ducominer/pkg/log"
	"github.com/bardlex/ducominer/pkg/retry"
)

// messageWriter is the part of *kafka.Writer the client uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig selects brokers and topics
type KafkaConfig struct {
	Brokers    []string
	ShareTopic string
	StatsTopic string
	Username   string
	RigID      string
}

// KafkaClient wraps kafka-go with protobuf support and one writer per topic
type KafkaClient struct {
	cfg            KafkaConfig
	logger         *log.Logger
	writers        map[string]messageWriter
	writersMu      sync.RWMutex
	newWriter      func(topic string) messageWriter
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
}

// NewKafkaClient creates a new Kafka client. Writers connect lazily.
func NewKafkaClient(cfg KafkaConfig, logger *log.Logger) *KafkaClient {
	if cfg.ShareTopic == "" {
		cfg.ShareTopic = TopicShares
	}
	if cfg.StatsTopic == "" {
		cfg.StatsTopic = TopicStats
	}

	k := &KafkaClient{
		cfg:         cfg,
		logger:      logger.WithComponent("kafka"),
		writers:     make(map[string]messageWriter),
		retryConfig: retry.NetworkConfig(),
	}
	k.newWriter = k.kafkaWriter
	k.circuitBreaker = circuit.New(&circuit.Config{
		Name:            "kafka",
		MaxFailures:     5,
		SuccessRequired: 3,
		Timeout:         15 * time.Second,
		ResetTimeout:    60 * time.Second,
		OnStateChange: func(name string, from, to circuit.State) {
			k.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return k
}

func (k *KafkaClient) kafkaWriter(topic string) messageWriter {
	return &kafka.Writer{
		Addr:                   kafka.TCP(k.cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}
}

// producer gets or creates the writer for a topic
func (k *KafkaClient) producer(topic string) messageWriter {
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

	writer := k.newWriter(topic)
	k.writers[topic] = writer
	k.logger.Info("created Kafka producer", "topic", topic)
	return writer
}

// Name identifies the client as a sink
func (k *KafkaClient) Name() string {
	return "kafka"
}

// WriteShare publishes a share event to the share topic
func (k *KafkaClient) WriteShare(ctx context.Context, ev stats.ShareEvent) error {
	msg, err := ShareMessage(ev)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "share_message",
			"failed to build share message")
	}
	return k.PublishProto(ctx, k.cfg.ShareTopic, messageKey(ev.Username, ev.RigID), msg)
}

// WriteSnapshot publishes a statistics snapshot to the stats topic
func (k *KafkaClient) WriteSnapshot(ctx context.Context, snap stats.Snapshot) error {
	data, err := sonic.ConfigDefault.Marshal(StatsMessage{
		Username:  k.cfg.Username,
		RigID:     k.cfg.RigID,
		Stats:     snap,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "stats_marshal",
			"failed to marshal stats message")
	}
	return k.PublishJSON(ctx, k.cfg.StatsTopic, messageKey(k.cfg.Username, k.cfg.RigID), data)
}

// PublishProto publishes a protobuf message to Kafka
func (k *KafkaClient) PublishProto(ctx context.Context, topic, key string, msg proto.Message) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "protobuf_marshal",
			"failed to marshal protobuf message").
			WithContext("topic", topic).
			WithContext("key", key)
	}

	return k.publish(ctx, "publish_message", topic, key, data)
}

// PublishJSON publishes a JSON message to Kafka
func (k *KafkaClient) PublishJSON(ctx context.Context, topic, key string, data []byte) error {
	return k.publish(ctx, "publish_json", topic, key, data)
}

func (k *KafkaClient) publish(ctx context.Context, op, topic, key string, data []byte) error {
	return k.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, k.retryConfig, func() error {
			kafkaMsg := kafka.Message{
				Key:   []byte(key),
				Value: data,
				Time:  time.Now(),
			}

			if err := k.producer(topic).WriteMessages(ctx, kafkaMsg); err != nil {
				return errors.Wrap(err, errors.ErrorTypeKafka, op,
					"failed to publish message to Kafka").
					WithContext("topic", topic).
					WithContext("key", key).
					WithContext("message_size", len(data))
			}

			k.logger.Debug("published message", "topic", topic, "key", key, "size", len(data))
			return nil
		})
	})
}

// Close closes all producers
func (k *KafkaClient) Close() error {
	k.writersMu.Lock()
	defer k.writersMu.Unlock()

	var lastErr error
	for topic, writer := range k.writers {
		if err := writer.Close(); err != nil {
			k.logger.Error("failed to close producer", "topic", topic, "error", err)
			lastErr = err
		}
	}

	k.writers = make(map[string]messageWriter)
	return lastErr
}
