package handler

import (
	"banksystem/internal/config"
	"banksystem/internal/infrastructure/lock"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, locker lock.Locker, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, locker, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	api.Use(TimeoutMiddleware(cfg.Server.OperationTimeout))
	{
		api.POST("/accounts", h.OpenAccount)

		// 以下接口需要网关注入的账户身份
		authed := api.Group("", IdentityMiddleware())

		account := authed.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/history", h.GetHistory)
			account.GET("/reconcile", h.Reconcile)
			account.POST("/fund", h.Fund)
			account.POST("/withdraw", h.Withdraw)
		}

		authed.POST("/transfer", h.Transfer)
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
