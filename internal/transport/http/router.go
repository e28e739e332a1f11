package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	jwtpkg "driftmail/backend/internal/auth/jwt"
	"driftmail/backend/internal/config"
	"driftmail/backend/internal/health"
	"driftmail/backend/internal/middleware"
	"driftmail/backend/internal/monitoring"
	"driftmail/backend/internal/service"
)

// maxRequestBody HTTP 请求体上限。接口都不收大载荷，1MB 足够。
const maxRequestBody = 1 << 20

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	SessionService *service.SessionService
	MessageService *service.MessageService
	JWTManager     *jwtpkg.Manager
	Metrics        *monitoring.Metrics
	Health         *health.Checker
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.PanicRecovery(deps.Logger, deps.Metrics))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(maxRequestBody))
	if deps.Metrics != nil {
		router.Use(middleware.HTTPMetrics(deps.Metrics))
	}

	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := NewHandler(deps.SessionService, deps.MessageService, deps.JWTManager, deps.Logger)

	v1 := router.Group("/v1")
	{
		allocate := middleware.RateLimit(deps.Config.RateLimit.AllocatePerSecond, deps.Config.RateLimit.AllocateBurst)
		v1.POST("/mailboxes", allocate, handler.CreateMailbox)

		authed := v1.Group("", handler.SessionAuth())
		{
			authed.GET("/messages", handler.ListMessages)
			authed.GET("/messages/:id/body", handler.GetMessageBody)
		}
	}

	if deps.Health != nil {
		router.GET("/healthz/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/healthz/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	return router
}
