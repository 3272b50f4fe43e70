package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/service"
	"fxgate/pkg/logger"
	"fxgate/pkg/metrics"

	"github.com/segmentio/kafka-go"
)

const (
	serviceName        = "exchange-rate-service"
	maxProcessAttempts = 3
)

// KafkaConsumer читает запросы на обновление курсов из топика rate_refresh_requests
type KafkaConsumer struct {
	reader    *kafka.Reader
	scheduler service.RefreshSchedulerInterface
	topic     string
	groupID   string
	backoff   time.Duration // пауза между попытками обработки одного сообщения
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewKafkaConsumer создает новый Kafka consumer
func NewKafkaConsumer(
	brokers []string,
	topic string,
	groupID string,
	minBytes int,
	maxBytes int,
	scheduler service.RefreshSchedulerInterface,
) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    minBytes,
		MaxBytes:    maxBytes,
		StartOffset: kafka.LastOffset, // старые запросы после рестарта не нужны, курсы обновит cron
		// CommitMessages копит offset и отправляет раз в секунду
		CommitInterval: time.Second,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: 1 * time.Second,
		Logger:         kafka.LoggerFunc(logger.Printf),
		ErrorLogger:    kafka.LoggerFunc(logger.Errorf),
	})

	return &KafkaConsumer{
		reader:    reader,
		scheduler: scheduler,
		topic:     topic,
		groupID:   groupID,
		backoff:   time.Second,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start запускает consumer в отдельной горутине
func (c *KafkaConsumer) Start(ctx context.Context) {
	logger.Info().Str("topic", c.topic).Str("group_id", c.groupID).Msg("Starting Kafka consumer")
	go c.consume(ctx)
}

// Stop останавливает consumer и ждет завершения текущего сообщения
func (c *KafkaConsumer) Stop() {
	logger.Info().Msg("Stopping Kafka consumer...")
	close(c.stopChan)
	<-c.doneChan
	if err := c.reader.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close Kafka reader")
	}
	logger.Info().Msg("Kafka consumer stopped")
}

func (c *KafkaConsumer) consume(ctx context.Context) {
	defer close(c.doneChan)

	for {
		select {
		case <-c.stopChan:
			return
		default:
			readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			message, err := c.reader.FetchMessage(readCtx)
			cancel()

			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if readCtx.Err() == nil {
					logger.Warn().Err(err).Msg("Error fetching refresh request")
					metrics.RecordKafkaError(serviceName, c.topic, "fetch")
					time.Sleep(time.Second)
				}
				continue
			}

			metrics.RecordKafkaMessageConsumed(serviceName, c.topic, c.groupID)

			if !c.handleMessage(ctx, message) {
				return
			}
			if err := c.reader.CommitMessages(ctx, message); err != nil {
				logger.Warn().Err(err).Int64("offset", message.Offset).Msg("Error committing refresh request")
			}
		}
	}
}

// handleMessage повторяет обработку на месте: в consumer group коммит следующего offset
// перекрывает пропущенное сообщение, повторной доставки не будет.
// После maxProcessAttempts запрос отбрасывается, курсы обновит плановый тик cron.
// false - consumer останавливается, offset не коммитится.
func (c *KafkaConsumer) handleMessage(ctx context.Context, message kafka.Message) bool {
	for attempt := 1; ; attempt++ {
		err := c.processMessage(ctx, message)
		if err == nil {
			return true
		}

		metrics.RecordKafkaError(serviceName, c.topic, "process")
		if attempt >= maxProcessAttempts {
			logger.Error().
				Err(err).
				Int64("offset", message.Offset).
				Int("attempts", attempt).
				Msg("Dropping refresh request after retries")
			return true
		}
		logger.Warn().
			Err(err).
			Int64("offset", message.Offset).
			Int("attempt", attempt).
			Msg("Error processing refresh request, retrying")

		select {
		case <-c.stopChan:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(c.backoff):
		}
	}
}

// processMessage обрабатывает один запрос на обновление.
// Некорректный запрос логируется и коммитится: повтор ничего не исправит.
func (c *KafkaConsumer) processMessage(ctx context.Context, message kafka.Message) error {
	var req entity.RefreshRequestEvent
	if err := json.Unmarshal(message.Value, &req); err != nil {
		logger.Warn().Err(err).Int64("offset", message.Offset).Msg("Skipping malformed refresh request")
		return nil
	}

	logger.Info().
		Strs("currencies", req.Currencies).
		Bool("force", req.Force).
		Str("requested_by", req.RequestedBy).
		Int64("offset", message.Offset).
		Int("partition", message.Partition).
		Msg("Received rate refresh request")

	result, err := c.scheduler.TriggerRefresh(service.WithTriggerSource(ctx, service.SourceKafka), req.Currencies, req.Force)
	if err != nil {
		if service.IsValidation(err) {
			logger.Warn().Err(err).Str("requested_by", req.RequestedBy).Msg("Skipping invalid refresh request")
			return nil
		}
		return fmt.Errorf("failed to refresh rates: %w", err)
	}

	logger.Info().
		Int("updated", result.Count(entity.RefreshStatusUpdated)).
		Int("failed", result.Count(entity.RefreshStatusFailed)).
		Msg("Rate refresh request processed")
	return nil
}

// GetStats возвращает статистику consumer
func (c *KafkaConsumer) GetStats() kafka.ReaderStats {
	return c.reader.Stats()
}
