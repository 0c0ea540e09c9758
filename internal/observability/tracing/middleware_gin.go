package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/crmbilling/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// targetAttribute names the span attribute for a resource's :id parameter.
var targetAttribute = map[string]string{
	"companies":    "billing.company_id",
	"subscription": "billing.company_id",
	"invoices":     "billing.invoice_id",
	"payments":     "billing.payment_id",
	"packages":     "billing.package_id",
}

// GinMiddleware opens a server span per API call and tags it with the
// billing resource, the targeted record and the authenticated caller.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("crmbilling/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "billing "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		resource := obscontext.RouteResource(route)
		status := c.Writer.Status()
		span.SetName("billing " + resource + " " + c.Request.Method + " " + route)
		span.SetAttributes(SafeAttributes(billingAttributes(c, route, resource, status)...)...)

		switch {
		case status >= http.StatusInternalServerError:
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request failed")
		case status >= http.StatusBadRequest:
			// Client rejections leave the span status unset.
			span.AddEvent("billing.rejected", trace.WithAttributes(attribute.Int("http.status_code", status)))
		}
	}
}

func billingAttributes(c *gin.Context, route, resource string, status int) []attribute.KeyValue {
	ctx := c.Request.Context()
	attrs := []attribute.KeyValue{
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
		attribute.String("billing.resource", resource),
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		attrs = append(attrs, attribute.String("request_id", requestID))
	}
	if role, _ := obscontext.ActorFromContext(ctx); role != "" {
		attrs = append(attrs, attribute.String("billing.actor_role", role))
	}
	if tenant := obscontext.CompanyIDFromContext(ctx); tenant != "" {
		attrs = append(attrs, attribute.String("billing.tenant_id", tenant))
	}
	if key, ok := targetAttribute[resource]; ok {
		if id := strings.TrimSpace(c.Param("id")); id != "" {
			attrs = append(attrs, attribute.String(key, id))
		}
	}
	if resource == "sweeps" {
		attrs = append(attrs, attribute.String("billing.sweep", route[strings.LastIndex(route, "/")+1:]))
	}
	return attrs
}
