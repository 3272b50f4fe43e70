package handler

import (
	"context"
	"net/http"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/service"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	healthCheckTimeout = 5 * time.Second

	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
	statusDisabled  = "disabled"
)

// HealthCheckHandler - /health, /health/readiness, /health/liveness.
// db и redisClient могут быть nil, если хранилища не настроены.
type HealthCheckHandler struct {
	db          *gorm.DB
	redisClient *redis.Client
	rateService service.RateServiceInterface
}

func NewHealthCheckHandler(
	db *gorm.DB,
	redisClient *redis.Client,
	rateService service.RateServiceInterface,
) *HealthCheckHandler {
	return &HealthCheckHandler{
		db:          db,
		redisClient: redisClient,
		rateService: rateService,
	}
}

type HealthResponse struct {
	Status    string              `json:"status"`
	Service   string              `json:"service"`
	Rates     *entity.RatesHealth `json:"rates"`
	Checks    map[string]string   `json:"checks"`
	Timestamp time.Time           `json:"timestamp"`
}

// HealthCheck отдает 503 только когда нет ни одного курса.
// Недоступность PostgreSQL или Redis не мешает отдавать курсы из памяти.
func (h *HealthCheckHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	rates := h.rateService.RatesHealth()
	checks := h.dependencyChecks(ctx)

	overallStatus := statusHealthy
	for _, check := range checks {
		if check != statusHealthy && check != statusDisabled {
			overallStatus = statusDegraded
		}
	}
	if rates.Status == entity.HealthStatusWarning {
		overallStatus = statusDegraded
	}

	code := http.StatusOK
	if rates.Status == entity.HealthStatusCritical {
		overallStatus = statusUnhealthy
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, HealthResponse{
		Status:    overallStatus,
		Service:   "exchange-rate-service",
		Rates:     rates,
		Checks:    checks,
		Timestamp: time.Now(),
	})
}

// Readiness - готов принимать трафик: есть курсы и отвечают хранилища
func (h *HealthCheckHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	if h.rateService.RatesHealth().Status == entity.HealthStatusCritical {
		c.String(http.StatusServiceUnavailable, "rates not ready")
		return
	}

	if err := h.checkDatabase(ctx); err != nil {
		c.String(http.StatusServiceUnavailable, "database not ready")
		return
	}

	if err := h.checkRedis(ctx); err != nil {
		c.String(http.StatusServiceUnavailable, "redis not ready")
		return
	}

	c.String(http.StatusOK, "ready")
}

func (h *HealthCheckHandler) Liveness(c *gin.Context) {
	c.String(http.StatusOK, "alive")
}

func (h *HealthCheckHandler) dependencyChecks(ctx context.Context) map[string]string {
	checks := map[string]string{
		"database": statusDisabled,
		"redis":    statusDisabled,
	}

	if h.db != nil {
		if err := h.checkDatabase(ctx); err != nil {
			checks["database"] = statusUnhealthy + ": " + err.Error()
		} else {
			checks["database"] = statusHealthy
		}
	}

	if h.redisClient != nil {
		if err := h.checkRedis(ctx); err != nil {
			checks["redis"] = statusUnhealthy + ": " + err.Error()
		} else {
			checks["redis"] = statusHealthy
		}
	}

	return checks
}

func (h *HealthCheckHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (h *HealthCheckHandler) checkRedis(ctx context.Context) error {
	if h.redisClient == nil {
		return nil
	}
	return h.redisClient.Ping(ctx).Err()
}

func (h *HealthCheckHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.HealthCheck)
	router.GET("/health/readiness", h.Readiness)
	router.GET("/health/liveness", h.Liveness)
}
