package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

// KafkaBus implements EventBus using Kafka topics.
// Used when batches arrive through an existing Kafka pipeline or when
// consumers need replayable history.
type KafkaBus struct {
	mu      sync.Mutex
	brokers []string
	groupID string
	writers map[string]*kafka.Writer
	subs    map[string]*kafkaSubscription
	closed  bool
}

type kafkaSubscription struct {
	id     string
	topic  string
	reader *kafka.Reader
	cancel context.CancelFunc
	done   chan struct{}
}

// NewKafkaBus creates a Kafka-backed event bus.
func NewKafkaBus(cfg domain.EventBusConfig) (*KafkaBus, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	groupID := cfg.KafkaGroupID
	if groupID == "" {
		groupID = "fiscalwatch"
	}
	return &KafkaBus{
		brokers: cfg.KafkaBrokers,
		groupID: groupID,
		writers: make(map[string]*kafka.Writer),
		subs:    make(map[string]*kafkaSubscription),
	}, nil
}

// Publish sends a message to a Kafka topic.
func (b *KafkaBus) Publish(ctx context.Context, topic string, payload []byte) error {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return b.writer(topic).WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.ID),
		Value: data,
	})
}

// Subscribe starts a consumer-group reader for a topic.
func (b *KafkaBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.brokers,
		Topic:    topic,
		GroupID:  b.groupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSubscription{
		id:     uuid.New().String(),
		topic:  topic,
		reader: reader,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	b.subs[sub.id] = sub

	go func() {
		defer close(sub.done)
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(subCtx)
			if err != nil {
				if subCtx.Err() != nil {
					return
				}
				slog.Warn("kafka read error", "topic", topic, "error", err)
				continue
			}

			var msg domain.Message
			if err := json.Unmarshal(m.Value, &msg); err != nil {
				slog.Error("failed to unmarshal kafka message",
					"topic", topic,
					"error", err,
				)
				continue
			}

			if err := handler(subCtx, &msg); err != nil {
				slog.Error("handler error",
					"topic", topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}()

	return sub, nil
}

// Ping verifies a broker is reachable.
func (b *KafkaBus) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", b.brokers[0])
	if err != nil {
		return fmt.Errorf("kafka not reachable: %w", err)
	}
	return conn.Close()
}

// Close stops all readers and writers.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, sub := range b.subs {
		sub.cancel()
		<-sub.done
	}
	b.subs = make(map[string]*kafkaSubscription)

	var firstErr error
	for _, w := range b.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.writers = make(map[string]*kafka.Writer)
	return firstErr
}

func (b *KafkaBus) writer(topic string) *kafka.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()

	if w, ok := b.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(b.brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	b.writers[topic] = w
	return w
}

// Unsubscribe stops the reader.
func (s *kafkaSubscription) Unsubscribe() error {
	s.cancel()
	<-s.done
	return nil
}

// Topic returns the subscribed topic.
func (s *kafkaSubscription) Topic() string {
	return s.topic
}
