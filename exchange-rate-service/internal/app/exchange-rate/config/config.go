package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит все настройки Exchange Rate Service
// Включает конфигурацию HTTP сервера, PostgreSQL, Redis, Kafka, внешних API курсов и вебхуков
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	ExchangeAPI  ExchangeAPIConfig
	Rates        RatesConfig
	Webhook      WebhookConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	LogLevel     string
	LogstashAddr string
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig - PostgreSQL для журналов обновлений и аудита вебхуков
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig - снимок актуальных курсов (прогрев после рестарта) и общий dedup-набор вебхуков
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// SnapshotTTL - сколько живет снимок курса в Redis
	SnapshotTTL time.Duration
}

// KafkaConfig - топик событий об изменении курсов и топик запросов на обновление
type KafkaConfig struct {
	Brokers       []string
	EventsTopic   string // RATE_UPDATED, TRANSACTION_STATUS_CHANGED
	RequestsTopic string // запросы на обновление курсов от других сервисов
	GroupID       string
	MinBytes      int
	MaxBytes      int
}

// ExchangeAPIConfig - основной и резервный провайдеры курсов
type ExchangeAPIConfig struct {
	PrimaryURL string // ExchangeRate-API v6
	APIKey     string
	BackupURL  string // FxRatesAPI
	Timeout    time.Duration
}

// RatesConfig - параметры кэша курсов
type RatesConfig struct {
	BaseCurrency        string
	SupportedCurrencies []string
	TTL                 time.Duration // время жизни курса (expires_at = fetched_at + TTL)
	UpdateInterval      time.Duration // период фонового обновления
	CronSchedule        string        // явное расписание, перекрывает UpdateInterval
	MaxTaskDuration     time.Duration // после этого зависшая задача обновления считается неуспешной
	FailureCooldown     time.Duration // пауза перед повторной выборкой валюты после ошибки провайдера
	HistoryRetention    time.Duration
	MaxStaleness        time.Duration // 0 - отдаем устаревший курс без ограничения
	DefaultFeePercent   string
	JobRetention        time.Duration // сколько хранится результат асинхронного /update
}

// WebhookConfig - проверка подписи и окно защиты от повторов
type WebhookConfig struct {
	ReplayWindow time.Duration
	ClockSkew    time.Duration // допустимое опережение occurred_at относительно времени получения
	DedupBackend string        // memory | redis
	// Секреты HMAC по провайдерам: WEBHOOK_SECRETS=sslcommerz:secret1,paypal:secret2
	HMACSecrets map[string]string
	// Публичные ключи Ed25519 в hex: WEBHOOK_PUBLIC_KEYS=ratefeed:abcd...
	PublicKeys map[string]string
}

// JWTConfig - секрет для проверки токенов, выданных User Service
type JWTConfig struct {
	Secret string
}

// RateLimitConfig - формат ulule/limiter, например "1000-M"
type RateLimitConfig struct {
	Rate string
}

// Load загружает конфигурацию из .env (если есть) и переменных окружения
func Load() (*Config, error) {
	// .env необязателен, переменные окружения имеют приоритет
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB value: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8000"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "admin123"),
			DBName:   getEnv("DB_NAME", "payment_gateway"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:        getEnv("REDIS_HOST", "localhost"),
			Port:        getEnv("REDIS_PORT", "6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          redisDB,
			SnapshotTTL: getEnvDuration("REDIS_SNAPSHOT_TTL", 24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers:       getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			EventsTopic:   getEnv("KAFKA_EVENTS_TOPIC", "rate_events"),
			RequestsTopic: getEnv("KAFKA_REQUESTS_TOPIC", "rate_refresh_requests"),
			GroupID:       getEnv("KAFKA_GROUP_ID", "exchange-rate-service"),
			MinBytes:      getEnvInt("KAFKA_MIN_BYTES", 1),
			MaxBytes:      getEnvInt("KAFKA_MAX_BYTES", 10e6),
		},
		ExchangeAPI: ExchangeAPIConfig{
			PrimaryURL: getEnv("EXCHANGE_RATE_API_URL", "https://v6.exchangerate-api.com/v6"),
			APIKey:     getEnv("EXCHANGE_RATE_API_KEY", ""),
			BackupURL:  getEnv("BACKUP_API_URL", "https://api.fxratesapi.com/latest"),
			Timeout:    getEnvDuration("EXCHANGE_API_TIMEOUT", 10*time.Second),
		},
		Rates: RatesConfig{
			BaseCurrency: strings.ToUpper(getEnv("BASE_CURRENCY", "BDT")),
			SupportedCurrencies: getEnvList("SUPPORTED_CURRENCIES",
				[]string{"USD", "EUR", "GBP", "CAD", "AUD", "JPY", "CHF", "SGD"}),
			TTL:               getEnvDuration("RATE_CACHE_DURATION", 600*time.Second),
			UpdateInterval:    getEnvDuration("RATE_UPDATE_INTERVAL", 900*time.Second),
			CronSchedule:      getEnv("CRON_UPDATE_RATES", ""),
			MaxTaskDuration:   getEnvDuration("REFRESH_MAX_TASK_DURATION", 30*time.Second),
			FailureCooldown:   getEnvDuration("REFRESH_FAILURE_COOLDOWN", 60*time.Second),
			HistoryRetention:  getEnvDuration("HISTORY_RETENTION", 365*24*time.Hour),
			MaxStaleness:      getEnvDuration("RATE_MAX_STALENESS", 0),
			DefaultFeePercent: getEnv("DEFAULT_SERVICE_FEE_PERCENTAGE", "2.0"),
			JobRetention:      getEnvDuration("REFRESH_JOB_RETENTION", time.Hour),
		},
		Webhook: WebhookConfig{
			ReplayWindow: getEnvDuration("WEBHOOK_REPLAY_WINDOW", 24*time.Hour),
			ClockSkew:    getEnvDuration("WEBHOOK_CLOCK_SKEW", 5*time.Minute),
			DedupBackend: getEnv("WEBHOOK_DEDUP_BACKEND", "memory"),
			HMACSecrets:  getEnvMap("WEBHOOK_SECRETS"),
			PublicKeys:   getEnvMap("WEBHOOK_PUBLIC_KEYS"),
		},
		JWT: JWTConfig{
			// Должен совпадать с секретом User Service
			Secret: getEnv("JWT_SECRET", "your-secret-key-change-this-in-production"),
		},
		RateLimit: RateLimitConfig{
			Rate: getEnv("RATE_LIMIT", "1000-M"),
		},
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogstashAddr: getEnv("LOGSTASH_ADDR", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	for i, code := range cfg.Rates.SupportedCurrencies {
		cfg.Rates.SupportedCurrencies[i] = strings.ToUpper(code)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Rates.BaseCurrency) != 3 {
		return fmt.Errorf("invalid BASE_CURRENCY %q", c.Rates.BaseCurrency)
	}
	if c.Rates.TTL <= 0 {
		return fmt.Errorf("RATE_CACHE_DURATION must be positive")
	}
	if c.Rates.UpdateInterval <= 0 && c.Rates.CronSchedule == "" {
		return fmt.Errorf("RATE_UPDATE_INTERVAL must be positive")
	}
	if c.Rates.MaxTaskDuration <= 0 {
		return fmt.Errorf("REFRESH_MAX_TASK_DURATION must be positive")
	}
	switch c.Webhook.DedupBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown WEBHOOK_DEDUP_BACKEND %q", c.Webhook.DedupBackend)
	}
	return nil
}

// RefreshSchedule возвращает расписание cron для фонового обновления курсов
func (c *RatesConfig) RefreshSchedule() string {
	if c.CronSchedule != "" {
		return c.CronSchedule
	}
	return "@every " + c.UpdateInterval.String()
}

// DSN возвращает строку подключения к PostgreSQL в формате libpq
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Address возвращает адрес сервера в формате host:port
func (c *ServerConfig) Address() string {
	return c.Host + ":" + c.Port
}

// Address возвращает адрес Redis в формате host:port
func (c *RedisConfig) Address() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration принимает как "15m", так и число секунд ("900") - старый формат конфигов
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// getEnvMap разбирает список вида "name:value,name2:value2"
func getEnvMap(key string) map[string]string {
	result := make(map[string]string)
	for _, pair := range getEnvList(key, nil) {
		name, value, ok := strings.Cut(pair, ":")
		if !ok || name == "" || value == "" {
			continue
		}
		result[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
	return result
}
