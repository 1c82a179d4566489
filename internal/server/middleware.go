package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/internal/auth"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/logging"
)

const headerRequestID = "X-Request-ID"

// RequestID reuses an incoming X-Request-ID or generates one, and stores it
// on the request context for logging.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(headerRequestID, requestID)
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// Recovery turns a panic into a 500 response.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.FromContext(c.Request.Context(), logger).Error("http.panic",
					"error", rec,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				writeError(c, common.NewAppError(common.CodeInternal, "internal server error", common.ErrInternal))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// RequestLogger logs each request once it completes.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if code, ok := c.Get(ctxErrorCode); ok {
			attrs = append(attrs, "code", code)
		}
		log := logging.FromContext(c.Request.Context(), logger)
		switch {
		case status >= 500:
			log.Error("http.request", attrs...)
		case status >= 400:
			log.Warn("http.request", attrs...)
		default:
			log.Info("http.request", attrs...)
		}
	}
}

// Authenticate validates the bearer token and stores the actor on the request context.
func Authenticate(cfg auth.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if header == "" || !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			writeError(c, common.Unauthorized("a bearer token is required"))
			c.Abort()
			return
		}
		claims, err := auth.ParseToken(token, cfg)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		actor, err := claims.Actor()
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(common.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// RequireRole rejects actors whose role is not listed. Admins always pass.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := common.ActorFromContext(c.Request.Context())
		if !ok {
			writeError(c, common.Unauthorized("not authenticated"))
			c.Abort()
			return
		}
		if actor.IsAdmin() {
			c.Next()
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		writeError(c, common.Forbidden("role %q may not use this endpoint", actor.Role))
		c.Abort()
	}
}

func actorOf(c *gin.Context) common.Actor {
	a, _ := common.ActorFromContext(c.Request.Context())
	return a
}

// limitBody caps the request body; the multipart overhead gets some headroom.
func limitBody(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max+1<<20)
		c.Next()
	}
}
