package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"outreach/backend/internal/config"
	"outreach/backend/internal/health"
	"outreach/backend/internal/middleware"
	"outreach/backend/internal/monitoring"
	"outreach/backend/internal/service"
	"outreach/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config           *config.Config
	AccountService   *service.AccountService
	ClientService    *service.ClientService
	CampaignService  *service.CampaignService
	TemplateService  *service.TemplateService
	AnalyticsService *service.AnalyticsService
	Tracker          *service.Tracker
	HealthChecker    *health.HealthChecker
	Metrics          *monitoring.Metrics
	WebSocketHub     *websocket.Hub
	Logger           *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	mm := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)
	router.Use(mm.PanicRecovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.CampaignBodyLimit))
	router.Use(mm.HTTPMetrics())

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 允许所有来源时需清空凭证支持
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	authHandler := NewAuthHandler(deps.AccountService, deps.Logger)
	clientHandler := NewClientHandler(deps.ClientService)
	campaignHandler := NewCampaignHandler(deps.CampaignService, deps.TemplateService)
	templateHandler := NewTemplateHandler(deps.TemplateService)
	analyticsHandler := NewAnalyticsHandler(deps.AnalyticsService, deps.Tracker)
	adminHandler := NewAdminHandler(deps.Tracker, deps.HealthChecker, deps.Logger)

	adminAuth := middleware.NewAdminAuth(deps.Config.Admin.TokenHash)

	// 健康检查与指标
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/live", gin.WrapH(deps.HealthChecker.Handler()))
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	// WebSocket 事件流
	if deps.WebSocketHub != nil {
		router.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
	}

	// V1 API
	v1 := router.Group("/v1")
	{
		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth")
		{
			authRoutes.GET("/google", authHandler.Google)
			authRoutes.GET("/google/callback", authHandler.GoogleCallback)
			authRoutes.GET("/me", authHandler.Me)
		}

		// ========== Manager-scoped Routes ==========
		managerRoutes := v1.Group("/managers/:owner")
		{
			// 客户名单
			managerRoutes.POST("/clients", clientHandler.Add)
			managerRoutes.GET("/clients", clientHandler.List)
			managerRoutes.GET("/clients/:email", clientHandler.Get)
			managerRoutes.PATCH("/clients/:email", clientHandler.Update)
			managerRoutes.DELETE("/clients/:email", clientHandler.Remove)

			// 外联群发
			managerRoutes.POST("/campaigns", campaignHandler.Start)
			managerRoutes.GET("/campaigns", campaignHandler.List)

			// 看板与台账
			managerRoutes.GET("/analytics/dashboard", analyticsHandler.Dashboard)
			managerRoutes.GET("/analytics/clients", analyticsHandler.Clients)
			managerRoutes.GET("/messages", analyticsHandler.Messages)
		}

		// ========== Campaign Routes ==========
		v1.GET("/campaigns/:id", campaignHandler.Status)

		// ========== Template Routes ==========
		templateRoutes := v1.Group("/templates")
		{
			templateRoutes.GET("", templateHandler.List)
			templateRoutes.GET("/:id", templateHandler.Get)
			templateRoutes.GET("/:id/preview", templateHandler.Preview)
		}

		// ========== Admin Routes ==========
		if adminAuth.Enabled() {
			adminRoutes := v1.Group("/admin", adminAuth.RequireAdmin())
			{
				adminRoutes.POST("/poll", adminHandler.TriggerPoll)
				adminRoutes.POST("/retry", adminHandler.TriggerRetry)
				adminRoutes.GET("/health", adminHandler.Health)
			}
		}
	}

	return router
}
