package router

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/switchctl/switchctl/api/handler"
	"github.com/switchctl/switchctl/internal/config"
	"github.com/switchctl/switchctl/pkg/logger"
)

// SetupRouter 设置路由
func SetupRouter(h *handler.SwitchHandler, auth config.AuthConfig, mode string) *gin.Engine {
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    "switchctl",
			"version": "1.0.0",
			"status":  "running",
		})
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", h.Health)
		v1.GET("/statistics", h.GetStatistics)
		v1.GET("/state", h.GetState)

		// 控制与审计需要鉴权（配置了密钥时）
		secured := v1.Group("")
		secured.Use(JWTMiddleware(auth))
		{
			secured.POST("/control", h.Control)
			secured.GET("/audits", h.ListAudits)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// RequestIDMiddleware 请求ID中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// LoggingMiddleware 日志中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		statusCode := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     statusCode,
			"duration":   time.Since(start),
			"client_ip":  c.ClientIP(),
		})
		if statusCode >= 400 {
			entry.Warn("HTTP Error")
			return
		}
		entry.Info("HTTP Request")
	}
}

// JWTMiddleware 校验 HS256 Bearer 令牌；未配置密钥时放行
func JWTMiddleware(auth config.AuthConfig) gin.HandlerFunc {
	secret := []byte(auth.JWTSecret)
	return func(c *gin.Context) {
		if len(secret) == 0 {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.ErrorResponse{
				Code:    "UNAUTHORIZED",
				Message: "缺少访问令牌",
			})
			return
		}

		opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
		if auth.Issuer != "" {
			opts = append(opts, jwt.WithIssuer(auth.Issuer))
		}
		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		}, opts...)
		if err != nil || !token.Valid {
			logger.Warnf("Rejected control request token: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.ErrorResponse{
				Code:    "UNAUTHORIZED",
				Message: "访问令牌无效",
			})
			return
		}
		c.Set("subject", claims.Subject)
		c.Next()
	}
}
