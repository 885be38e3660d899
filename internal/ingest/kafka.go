package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig holds configuration for the Kafka subscriber.
type KafkaConfig struct {
	Brokers       []string // list of broker addresses
	ConsumerGroup string   // consumer group ID
}

// KafkaSubscriber implements Subscriber with one segmentio/kafka-go reader
// per subscription. Offsets are committed as records are read; a record
// that fails to dispatch is not redelivered.
type KafkaSubscriber struct {
	config  KafkaConfig
	logger  *zap.Logger
	mu      sync.Mutex
	readers map[string]*kafkaSubscription
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type kafkaSubscription struct {
	id      string
	topic   string
	reader  *kafka.Reader
	handler Handler
	cancel  context.CancelFunc
}

// NewKafkaSubscriber creates a KafkaSubscriber. Call Close() to stop all
// readers.
func NewKafkaSubscriber(config KafkaConfig, logger *zap.Logger) (*KafkaSubscriber, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker address is required")
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = "notify-alerts"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaSubscriber{
		config:  config,
		logger:  logger.Named("kafka"),
		readers: make(map[string]*kafkaSubscription),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Subscribe creates a Kafka reader for the given topic and invokes the
// handler for each record received. The reader runs in a background
// goroutine until Close() is called.
func (s *KafkaSubscriber) Subscribe(topic string, handler Handler) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", fmt.Errorf("subscriber is closed")
	}

	id := uuid.New().String()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  s.config.Brokers,
		Topic:    topic,
		GroupID:  s.config.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  500 * time.Millisecond,
	})

	subCtx, subCancel := context.WithCancel(s.ctx)
	sub := &kafkaSubscription{
		id:      id,
		topic:   topic,
		reader:  reader,
		handler: handler,
		cancel:  subCancel,
	}
	s.readers[id] = sub

	s.wg.Add(1)
	go s.consumeLoop(subCtx, sub)

	return id, nil
}

// Close shuts down all readers and waits for their loops to exit.
func (s *KafkaSubscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()

	var firstErr error
	for _, sub := range s.readers {
		sub.cancel()
		if err := sub.reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	return firstErr
}

func (s *KafkaSubscriber) consumeLoop(ctx context.Context, sub *kafkaSubscription) {
	defer s.wg.Done()
	for {
		msg, err := sub.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // context cancelled, shutting down
			}
			s.logger.Warn("read failed", zap.String("subscription", sub.id), zap.String("topic", sub.topic), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		sub.handler(ctx, msg.Value)
	}
}
