package processor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/service"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/service/mocks"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func refreshRequestMessage(t *testing.T, req entity.RefreshRequestEvent) kafka.Message {
	t.Helper()
	value, err := json.Marshal(req)
	require.NoError(t, err)
	return kafka.Message{Topic: "rate_refresh_requests", Value: value, Offset: 42}
}

// ===================== NewKafkaConsumer Tests =====================

func TestNewKafkaConsumer(t *testing.T) {
	// Arrange
	scheduler := new(mocks.MockRefreshScheduler)

	// Act
	consumer := NewKafkaConsumer([]string{"localhost:9092"}, "rate_refresh_requests", "test-group", 1, 10e6, scheduler)

	// Assert
	assert.NotNil(t, consumer)
	assert.NotNil(t, consumer.reader)
	assert.NotNil(t, consumer.stopChan)
	assert.NotNil(t, consumer.doneChan)
	assert.Equal(t, "rate_refresh_requests", consumer.topic)

	// Cleanup
	consumer.reader.Close()
}

// ===================== processMessage Tests =====================

func TestKafkaConsumer_ProcessMessage_Success(t *testing.T) {
	// Arrange
	scheduler := new(mocks.MockRefreshScheduler)
	consumer := &KafkaConsumer{scheduler: scheduler}
	msg := refreshRequestMessage(t, entity.RefreshRequestEvent{
		Currencies:  []string{"USD", "EUR"},
		Force:       true,
		RequestedBy: "payment-service",
	})

	scheduler.On("TriggerRefresh", mock.Anything, []string{"USD", "EUR"}, true).
		Return(refreshResult(map[string]entity.RefreshStatus{
			"USD": entity.RefreshStatusUpdated,
			"EUR": entity.RefreshStatusFailed,
		}), nil)

	// Act
	err := consumer.processMessage(context.Background(), msg)

	// Assert
	assert.NoError(t, err)
	scheduler.AssertExpectations(t)
}

func TestKafkaConsumer_ProcessMessage_TagsKafkaSource(t *testing.T) {
	scheduler := new(mocks.MockRefreshScheduler)
	consumer := &KafkaConsumer{scheduler: scheduler}
	msg := refreshRequestMessage(t, entity.RefreshRequestEvent{})

	var captured context.Context
	scheduler.On("TriggerRefresh", mock.Anything, mock.Anything, false).
		Run(func(args mock.Arguments) { captured = args.Get(0).(context.Context) }).
		Return(refreshResult(nil), nil)

	err := consumer.processMessage(context.Background(), msg)

	require.NoError(t, err)
	assert.Equal(t, service.WithTriggerSource(context.Background(), service.SourceKafka), captured)
}

func TestKafkaConsumer_ProcessMessage_InvalidJSON(t *testing.T) {
	// Битое сообщение коммитится, иначе consumer застрянет на нем
	// Arrange
	scheduler := new(mocks.MockRefreshScheduler)
	consumer := &KafkaConsumer{scheduler: scheduler}
	msg := kafka.Message{Value: []byte("invalid json")}

	// Act
	err := consumer.processMessage(context.Background(), msg)

	// Assert
	assert.NoError(t, err)
	scheduler.AssertNotCalled(t, "TriggerRefresh", mock.Anything, mock.Anything, mock.Anything)
}

func TestKafkaConsumer_ProcessMessage_ValidationErrorSkipped(t *testing.T) {
	scheduler := new(mocks.MockRefreshScheduler)
	consumer := &KafkaConsumer{scheduler: scheduler}
	msg := refreshRequestMessage(t, entity.RefreshRequestEvent{Currencies: []string{"XYZ"}})

	scheduler.On("TriggerRefresh", mock.Anything, []string{"XYZ"}, false).
		Return(nil, service.NewValidationError("currencies", "currency XYZ is not supported"))

	err := consumer.processMessage(context.Background(), msg)

	assert.NoError(t, err)
}

func TestKafkaConsumer_ProcessMessage_OtherErrorRetried(t *testing.T) {
	// Arrange
	scheduler := new(mocks.MockRefreshScheduler)
	consumer := &KafkaConsumer{scheduler: scheduler}
	msg := refreshRequestMessage(t, entity.RefreshRequestEvent{Currencies: []string{"USD"}})

	scheduler.On("TriggerRefresh", mock.Anything, []string{"USD"}, false).
		Return(nil, context.Canceled)

	// Act
	err := consumer.processMessage(context.Background(), msg)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Contains(t, err.Error(), "failed to refresh rates")
}

// ===================== handleMessage Tests =====================

func TestKafkaConsumer_HandleMessage_RetriesInPlace(t *testing.T) {
	// Arrange
	scheduler := new(mocks.MockRefreshScheduler)
	consumer := &KafkaConsumer{scheduler: scheduler, topic: "rate_refresh_requests", backoff: time.Millisecond}
	msg := refreshRequestMessage(t, entity.RefreshRequestEvent{Currencies: []string{"USD"}})

	scheduler.On("TriggerRefresh", mock.Anything, []string{"USD"}, false).
		Return(nil, errors.New("provider timeout")).Once()
	scheduler.On("TriggerRefresh", mock.Anything, []string{"USD"}, false).
		Return(refreshResult(map[string]entity.RefreshStatus{"USD": entity.RefreshStatusUpdated}), nil).Once()

	// Act
	commit := consumer.handleMessage(context.Background(), msg)

	// Assert
	assert.True(t, commit)
	scheduler.AssertNumberOfCalls(t, "TriggerRefresh", 2)
}

func TestKafkaConsumer_HandleMessage_DropsAfterMaxAttempts(t *testing.T) {
	scheduler := new(mocks.MockRefreshScheduler)
	consumer := &KafkaConsumer{scheduler: scheduler, topic: "rate_refresh_requests", backoff: time.Millisecond}
	msg := refreshRequestMessage(t, entity.RefreshRequestEvent{Currencies: []string{"USD"}})

	scheduler.On("TriggerRefresh", mock.Anything, []string{"USD"}, false).
		Return(nil, errors.New("provider timeout"))

	commit := consumer.handleMessage(context.Background(), msg)

	assert.True(t, commit)
	scheduler.AssertNumberOfCalls(t, "TriggerRefresh", maxProcessAttempts)
}

func TestKafkaConsumer_HandleMessage_StopsOnShutdown(t *testing.T) {
	scheduler := new(mocks.MockRefreshScheduler)
	consumer := &KafkaConsumer{
		scheduler: scheduler,
		topic:     "rate_refresh_requests",
		backoff:   time.Hour,
		stopChan:  make(chan struct{}),
	}
	close(consumer.stopChan)
	msg := refreshRequestMessage(t, entity.RefreshRequestEvent{Currencies: []string{"USD"}})

	scheduler.On("TriggerRefresh", mock.Anything, []string{"USD"}, false).
		Return(nil, errors.New("provider timeout"))

	commit := consumer.handleMessage(context.Background(), msg)

	assert.False(t, commit)
	scheduler.AssertNumberOfCalls(t, "TriggerRefresh", 1)
}
