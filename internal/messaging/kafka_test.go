package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/bardlex/noso2m/pkg/log"
	"github.com/bardlex/noso2m/pkg/retry"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func newTestClient(encoding Encoding) (*KafkaClient, map[string]*fakeWriter) {
	client := NewKafkaClient([]string{"localhost:9092"}, encoding, log.Nop())
	writers := make(map[string]*fakeWriter)
	client.newWriter = func(topic string) messageWriter {
		w := &fakeWriter{}
		writers[topic] = w
		return w
	}
	client.retryConfig = &retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	return client, writers
}

func TestNewKafkaClient(t *testing.T) {
	client := NewKafkaClient([]string{"localhost:9092"}, "", log.Nop())
	if client.encoding != EncodingJSON {
		t.Errorf("default encoding = %q, want json", client.encoding)
	}
	if len(client.brokers) != 1 || client.brokers[0] != "localhost:9092" {
		t.Errorf("brokers = %v", client.brokers)
	}

	w, ok := client.GetProducer("noso2m.blocks").(*kafka.Writer)
	if !ok {
		t.Fatal("GetProducer() should build a *kafka.Writer")
	}
	if w.Topic != "noso2m.blocks" {
		t.Errorf("writer topic = %q", w.Topic)
	}
}

func TestKafkaClient_GetProducerCaches(t *testing.T) {
	client, writers := newTestClient(EncodingJSON)
	p1 := client.GetProducer("a")
	p2 := client.GetProducer("a")
	if p1 != p2 {
		t.Error("expected the cached producer")
	}
	client.GetProducer("b")
	if len(writers) != 2 {
		t.Errorf("created %d writers, want 2", len(writers))
	}
}

func TestKafkaClient_PublishJSON(t *testing.T) {
	client, writers := newTestClient(EncodingJSON)
	env := NewEnvelope("run-1", "block_closed", time.Unix(1650000000, 0), map[string]any{"block": 42})

	if err := client.Publish(context.Background(), "noso2m.blocks", env); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	w := writers["noso2m.blocks"]
	if w == nil || len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %+v", w)
	}
	if string(w.msgs[0].Key) != "block_closed" {
		t.Errorf("key = %q", w.msgs[0].Key)
	}

	var got map[string]any
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("value is not JSON: %v", err)
	}
	if got["run_id"] != "run-1" || got["type"] != "block_closed" {
		t.Errorf("envelope = %v", got)
	}
	if payload, _ := got["payload"].(map[string]any); payload["block"] != float64(42) {
		t.Errorf("payload = %v", got["payload"])
	}
}

func TestKafkaClient_PublishProto(t *testing.T) {
	client, writers := newTestClient(EncodingProto)
	env := NewEnvelope("run-2", "notice", time.Unix(1650000000, 0), map[string]any{"kind": "block_won"})

	if err := client.Publish(context.Background(), "noso2m.notices", env); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	var msg structpb.Struct
	if err := proto.Unmarshal(writers["noso2m.notices"].msgs[0].Value, &msg); err != nil {
		t.Fatalf("value is not a protobuf Struct: %v", err)
	}
	if msg.Fields["type"].GetStringValue() != "notice" {
		t.Errorf("type = %v", msg.Fields["type"])
	}
	payload := msg.Fields["payload"].GetStructValue()
	if payload.Fields["kind"].GetStringValue() != "block_won" {
		t.Errorf("payload = %v", payload)
	}
}

func TestKafkaClient_PublishFailure(t *testing.T) {
	client, _ := newTestClient(EncodingJSON)
	broken := &fakeWriter{err: errors.New("broker down")}
	client.newWriter = func(string) messageWriter { return broken }

	err := client.PublishJSON(context.Background(), "t", "k", []byte("{}"))
	if err == nil {
		t.Fatal("PublishJSON() should fail when the broker is down")
	}
}

func TestKafkaClient_Close(t *testing.T) {
	client, writers := newTestClient(EncodingJSON)
	client.GetProducer("a")
	client.GetProducer("b")

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	for topic, w := range writers {
		if !w.closed {
			t.Errorf("writer %s not closed", topic)
		}
	}
	if len(client.writers) != 0 {
		t.Error("writers map should be empty after Close()")
	}
}

func TestTopic(t *testing.T) {
	tests := []struct {
		prefix, suffix, want string
	}{
		{"", TopicBlocks, "noso2m.blocks"},
		{"rig7", TopicSubmissions, "rig7.submissions"},
		{"x", TopicNotices, "x.notices"},
	}
	for _, tt := range tests {
		if got := Topic(tt.prefix, tt.suffix); got != tt.want {
			t.Errorf("Topic(%q, %q) = %q, want %q", tt.prefix, tt.suffix, got, tt.want)
		}
	}
}

func TestNewEnvelope(t *testing.T) {
	a := NewEnvelope("run", "x", time.Now(), nil)
	b := NewEnvelope("run", "x", time.Now(), nil)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("envelope ids not unique: %q %q", a.ID, b.ID)
	}
	if a.Time.Location() != time.UTC {
		t.Error("envelope time should be UTC")
	}
}
