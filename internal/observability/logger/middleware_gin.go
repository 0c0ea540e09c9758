package logger

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/crmbilling/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const anonymousRole = "anonymous"

// MiddlewareConfig controls API request logging.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware writes one api.request line per call. The line carries the
// caller's role and tenant as resolved by authentication, the billing
// resource the route addresses and the id it targeted.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("resource", obscontext.RouteResource(route)),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
			zap.String("client_ip", c.ClientIP()),
		}
		if id := strings.TrimSpace(c.Param("id")); id != "" {
			fields = append(fields, zap.String("target_id", id))
		}
		if lastErr := c.Errors.Last(); lastErr != nil && cfg.ErrorClassifier != nil {
			errorType, errorCode := cfg.ErrorClassifier(lastErr.Err)
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		log := requestLogger(c.Request.Context(), tenantOf(c, route))
		if ce := log.Check(requestLevel(route, status), "api.request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

// requestLogger carries the correlation fields set by authentication. Calls
// rejected before authentication log as anonymous.
func requestLogger(ctx context.Context, companyID string) *zap.Logger {
	role, actorID := obscontext.ActorFromContext(ctx)
	if role == "" {
		role = anonymousRole
	}
	fields := []zap.Field{
		zap.String("request_id", obscontext.RequestIDFromContext(ctx)),
		zap.String("actor_role", role),
		zap.String("actor_id", actorID),
	}
	return WithCompany(zap.L().With(append(fields, traceFieldsFromContext(ctx)...)...), companyID)
}

// tenantOf prefers the caller's own tenant and falls back to the company a
// super admin addressed through the path.
func tenantOf(c *gin.Context, route string) string {
	if companyID := obscontext.CompanyIDFromContext(c.Request.Context()); companyID != "" {
		return companyID
	}
	if obscontext.RouteTargetsCompany(route) {
		return c.Param("id")
	}
	return ""
}

func requestLevel(route string, status int) zapcore.Level {
	switch {
	case route == "/health" || route == "/metrics":
		return zapcore.DebugLevel
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader("X-Request-Id"))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	c.Header("X-Request-Id", requestID)
	return requestID
}
