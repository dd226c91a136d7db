package handler

import (
	"context"
	"strconv"
	"time"

	"banksystem/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	// HeaderAccountID 网关完成认证后注入的账户 ID
	HeaderAccountID = "X-Account-ID"
	ctxAccountID    = "account_id"
)

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// 处理请求
		c.Next()

		if query != "" {
			path = path + "?" + query
		}

		logrus.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
			"ip":      c.ClientIP(),
			"method":  c.Request.Method,
			"path":    path,
		}).Info("[HTTP]")
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logrus.WithField("panic", err).WithField("path", c.Request.URL.Path).Error("[PANIC]")
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID, X-Account-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// TimeoutMiddleware 为每个请求设置操作超时，超时发生在提交前时不会产生任何变更
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// IdentityMiddleware 读取网关注入的账户身份，本服务不做认证
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, err := strconv.ParseInt(c.GetHeader(HeaderAccountID), 10, 64)
		if err != nil || accountID <= 0 {
			response.Unauthorized(c, "缺少或非法的账户身份")
			return
		}
		c.Set(ctxAccountID, accountID)
		c.Next()
	}
}

func currentAccountID(c *gin.Context) int64 {
	return c.GetInt64(ctxAccountID)
}
