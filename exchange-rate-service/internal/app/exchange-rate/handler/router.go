package handler

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"

	"fxgate/pkg/logger"
	"fxgate/pkg/metrics"
)

// Handlers - набор handler'ов сервиса для SetupRoutes
type Handlers struct {
	Rates        *RateHandler
	Webhooks     *WebhookHandler
	Transactions *TransactionHandler
	Health       *HealthCheckHandler
}

// SetupRoutes настраивает все маршруты приложения с использованием Gin.
// rateLimiter может быть nil, тогда ограничение частоты отключено.
func SetupRoutes(h Handlers, authMiddleware *AuthMiddleware, rateLimiter *limiter.Limiter) *gin.Engine {
	router := gin.New()

	// Recovery middleware для обработки panic
	router.Use(gin.Recovery())

	// JSON logging middleware для HTTP-запросов (ELK Stack)
	router.Use(logger.GinLoggerMiddleware())

	// Prometheus metrics middleware
	router.Use(metrics.GinPrometheusMiddleware("exchange-rate-service"))

	// CORS настройки
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"https://*", "http://*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Signature"},
		ExposeHeaders:    []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	h.Health.RegisterRoutes(router)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Курсы доступны под /api/v1/rates и по корневым путям
	api := router.Group("/api/v1/rates")
	root := router.Group("")
	for _, group := range []*gin.RouterGroup{api, root} {
		registerRateRoutes(group, h.Rates, authMiddleware, rateLimiter)
	}

	// Вебхуки провайдеров: аутентификация по подписи тела, без JWT
	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/:provider", h.Webhooks.Receive)
		webhooks.GET("/:provider/events/:id", h.Webhooks.GetEvent)
	}

	// Регистрация платежей - только для авторизованных сервисов
	transactions := router.Group("/transactions")
	transactions.Use(authMiddleware.Authenticate())
	{
		transactions.POST("", h.Transactions.CreateTransaction)
		transactions.GET("/:id", h.Transactions.GetTransaction)
	}

	return router
}

func registerRateRoutes(group *gin.RouterGroup, rates *RateHandler, authMiddleware *AuthMiddleware, rateLimiter *limiter.Limiter) {
	rateGroup := group.Group("")
	if rateLimiter != nil {
		rateGroup.Use(RateLimit(rateLimiter))
	}
	{
		rateGroup.GET("/current", rates.GetCurrent)
		rateGroup.GET("/all", rates.GetAll)
		rateGroup.POST("/calculate", rates.Calculate)
		rateGroup.GET("/history/:currency", rates.GetHistory)
		rateGroup.GET("/compare", rates.Compare)

		// Ручное обновление курсов (требует аутентификации)
		protected := rateGroup.Group("")
		protected.Use(authMiddleware.Authenticate())
		{
			protected.POST("/update", rates.TriggerUpdate)
			protected.GET("/update/:id", rates.GetUpdate)
		}
	}
}
