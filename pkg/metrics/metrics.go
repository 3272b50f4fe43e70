package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// HTTP Метрики
// =============================================================================

// HttpRequestsTotal - счётчик всех HTTP запросов
// Labels: service, method, path, status
var HttpRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	},
	[]string{"service", "method", "path", "status"},
)

// HttpRequestDuration - гистограмма времени ответа
var HttpRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"service", "method", "path"},
)

var HttpRequestsInFlight = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "http_requests_in_flight",
		Help: "Current number of HTTP requests being processed",
	},
	[]string{"service"},
)

// =============================================================================
// Database Метрики
// =============================================================================

var DbQueryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	},
	[]string{"service", "operation", "table"},
)

var DbErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "db_errors_total",
		Help: "Total number of database errors",
	},
	[]string{"service", "operation"},
)

// =============================================================================
// Redis Метрики
// =============================================================================

var RedisOperationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "redis_operation_duration_seconds",
		Help:    "Duration of Redis operations in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	},
	[]string{"service", "operation"},
)

var RedisErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "redis_errors_total",
		Help: "Total number of Redis errors",
	},
	[]string{"service", "operation"},
)

// =============================================================================
// Kafka Метрики
// =============================================================================

var KafkaMessagesProduced = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kafka_messages_produced_total",
		Help: "Total number of Kafka messages produced",
	},
	[]string{"service", "topic"},
)

var KafkaMessagesConsumed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kafka_messages_consumed_total",
		Help: "Total number of Kafka messages consumed",
	},
	[]string{"service", "topic", "group"},
)

var KafkaProduceDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "kafka_produce_duration_seconds",
		Help:    "Duration of Kafka produce operations",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	},
	[]string{"service", "topic"},
)

var KafkaErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kafka_errors_total",
		Help: "Total number of Kafka errors",
	},
	[]string{"service", "topic", "operation"}, // operation: produce, consume
)

// =============================================================================
// Курсы валют
// =============================================================================

// UpstreamFetchDuration - время запроса к внешнему провайдеру курсов
var UpstreamFetchDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "rates_upstream_fetch_duration_seconds",
		Help:    "Duration of upstream rate provider calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"provider"},
)

// UpstreamFetches - вызовы провайдеров по результату
var UpstreamFetches = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rates_upstream_fetches_total",
		Help: "Total number of upstream rate provider calls",
	},
	[]string{"provider", "status"}, // success, partial, failed
)

// RateRefreshes - результат обновления по каждой валюте
var RateRefreshes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rates_refresh_total",
		Help: "Total number of per-currency refresh outcomes",
	},
	[]string{"currency", "status"}, // updated, superseded, skipped, failed
)

// RefreshJoins - сколько раз вызывающий присоединился к уже идущему обновлению
var RefreshJoins = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "rates_refresh_joins_total",
		Help: "Total number of refresh requests attached to an in-flight task",
	},
)

var RefreshTasksInFlight = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "rates_refresh_tasks_in_flight",
		Help: "Current number of in-flight refresh tasks",
	},
)

// RefreshTasksExpired - задачи, снятые по максимальной длительности
var RefreshTasksExpired = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "rates_refresh_tasks_expired_total",
		Help: "Total number of refresh tasks released after exceeding max duration",
	},
)

// RateAgeSeconds - возраст активного курса на момент последней проверки
var RateAgeSeconds = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "rates_active_age_seconds",
		Help: "Age of the active rate record per currency",
	},
	[]string{"currency"},
)

var Calculations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rates_calculations_total",
		Help: "Total number of conversion calculations",
	},
	[]string{"status"}, // success, invalid, unavailable
)

// =============================================================================
// Webhooks
// =============================================================================

// WebhookEvents - входящие события провайдеров по терминальному статусу
var WebhookEvents = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of inbound webhook events by terminal status",
	},
	[]string{"provider", "status"},
)

var WebhookProcessingDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "webhook_processing_duration_seconds",
		Help:    "Duration of webhook reconciliation",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	},
	[]string{"provider"},
)
