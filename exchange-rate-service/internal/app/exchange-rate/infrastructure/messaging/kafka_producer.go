package messaging

import (
	"context"
	"fmt"
	"time"

	"fxgate/pkg/metrics"

	"github.com/segmentio/kafka-go"
)

const serviceName = "exchange-rate-service"

// KafkaProducer публикует события RATE_UPDATED и TRANSACTION_STATUS_CHANGED
type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // события одной валюты попадают в одну партицию
		BatchSize:    100,
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		// Публикация идет синхронно из обработчика вебхука, поэтому ожидание ограничено
		WriteTimeout: 5 * time.Second,
		MaxAttempts:  3,
	}

	return &KafkaProducer{writer: writer, topic: topic}
}

func (p *KafkaProducer) PublishMessage(ctx context.Context, key string, value []byte) error {
	timer := metrics.NewKafkaProduceTimer(serviceName, p.topic)

	message := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		timer.Error()
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	timer.Success()
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
