package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

// NewKafkaProducer builds the async producer used for audit fan-out.
func NewKafkaProducer(brokers []string) (sarama.AsyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_5_0_0

	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 100 * time.Millisecond
	cfg.Producer.Flush.Messages = 100
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true

	cfg.Metadata.Retry.Max = 3
	cfg.Metadata.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// KafkaSink publishes audit events keyed by entity id, so events of one service stay ordered.
type KafkaSink struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *zap.Logger

	done chan struct{}
	wg   sync.WaitGroup
}

func NewKafkaSink(producer sarama.AsyncProducer, topic string, logger *zap.Logger) *KafkaSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &KafkaSink{
		producer: producer,
		topic:    topic,
		logger:   logger.Named("audit_kafka"),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.handleErrors()

	return s
}

func (s *KafkaSink) handleErrors() {
	defer s.wg.Done()
	for {
		select {
		case perr, ok := <-s.producer.Errors():
			if !ok {
				return
			}
			if perr != nil {
				s.logger.Error("audit event publish failed",
					zap.Error(perr.Err),
					zap.String("topic", perr.Msg.Topic),
				)
			}
		case <-s.done:
			return
		}
	}
}

func (s *KafkaSink) Record(ctx context.Context, event *models.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(event.EntityID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("action"), Value: []byte(event.Action)},
			{Key: []byte("entity_type"), Value: []byte(event.EntityType)},
		},
		Timestamp: event.CreatedAt,
	}

	select {
	case s.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue audit event: %w", ctx.Err())
	}
}

// Close flushes pending messages and stops the error handler.
func (s *KafkaSink) Close() error {
	close(s.done)
	s.wg.Wait()
	if err := s.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
