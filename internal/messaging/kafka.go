// Package messaging publishes miner events to Kafka. Events travel in an
// Envelope encoded as JSON or as a protobuf Struct.
package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"

	"github.com/bardlex/noso2m/pkg/circuit"
	"github.com/bardlex/noso2m/pkg/errors"
	"github.com/bardlex/noso2m/pkg/log"
	"github.com/bardlex/noso2m/pkg/retry"
)

// Encoding selects the wire format of published envelopes
type Encoding string

const (
	// EncodingJSON publishes envelopes as JSON documents
	EncodingJSON Encoding = "json"
	// EncodingProto publishes envelopes as google.protobuf.Struct
	EncodingProto Encoding = "proto"
)

// messageWriter is the part of *kafka.Writer the client uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaClient wraps kafka-go producers, one per topic
type KafkaClient struct {
	brokers        []string
	encoding       Encoding
	logger         *log.Logger
	writers        map[string]messageWriter
	writersMu      sync.RWMutex
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
	newWriter      func(topic string) messageWriter
}

// NewKafkaClient creates a new Kafka client
func NewKafkaClient(brokers []string, encoding Encoding, logger *log.Logger) *KafkaClient {
	if encoding == "" {
		encoding = EncodingJSON
	}

	k := &KafkaClient{
		brokers:        brokers,
		encoding:       encoding,
		logger:         logger.WithComponent("kafka"),
		writers:        make(map[string]messageWriter),
		circuitBreaker: circuit.New(circuit.SinkConfig("kafka")),
		retryConfig:    retry.NetworkConfig(),
	}
	k.newWriter = k.kafkaWriter
	return k
}

func (k *KafkaClient) kafkaWriter(topic string) messageWriter {
	return &kafka.Writer{
		Addr:                   kafka.TCP(k.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}
}

// GetProducer gets or creates the producer for a topic
func (k *KafkaClient) GetProducer(topic string) messageWriter {
	k.writersMu.RLock()
	if writer, exists := k.writers[topic]; exists {
		k.writersMu.RUnlock()
		return writer
	}
	k.writersMu.RUnlock()

	k.writersMu.Lock()
	defer k.writersMu.Unlock()

	if writer, exists := k.writers[topic]; exists {
		return writer
	}

	writer := k.newWriter(topic)
	k.writers[topic] = writer
	k.logger.Info("created Kafka producer", "topic", topic)
	return writer
}

// Publish encodes env with the configured encoding and publishes it keyed by
// its event type.
func (k *KafkaClient) Publish(ctx context.Context, topic string, env *Envelope) error {
	if k.encoding == EncodingProto {
		msg, err := env.ToStruct()
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, "envelope_struct",
				"failed to convert envelope").
				WithContext("topic", topic)
		}
		return k.PublishProto(ctx, topic, env.Type, msg)
	}

	data, err := env.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "envelope_json",
			"failed to marshal envelope").
			WithContext("topic", topic)
	}
	return k.PublishJSON(ctx, topic, env.Type, data)
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

	return k.write(ctx, "publish_proto", topic, key, data)
}

// PublishJSON publishes a JSON message to Kafka
func (k *KafkaClient) PublishJSON(ctx context.Context, topic, key string, data []byte) error {
	return k.write(ctx, "publish_json", topic, key, data)
}

func (k *KafkaClient) write(ctx context.Context, op, topic, key string, data []byte) error {
	return k.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, k.retryConfig, func() error {
			writer := k.GetProducer(topic)
			kafkaMsg := kafka.Message{
				Key:   []byte(key),
				Value: data,
				Time:  time.Now(),
			}

			if err := writer.WriteMessages(ctx, kafkaMsg); err != nil {
				return errors.Wrap(err, errors.ErrorTypeMessaging, op,
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
