package tracing

import (
	"errors"
	"strings"

	"github.com/smallbiznis/crmbilling/internal/fault"
	"go.opentelemetry.io/otel/attribute"
)

var blockedAttributeKeys = map[attribute.Key]struct{}{
	"email":             {},
	"payment_reference": {},
	"bank_account":      {},
	"authorization":     {},
}

// SafeAttributes drops attributes that may carry customer data.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedAttributeKeys[attr.Key]; blocked {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError reduces an error to its classification so span events never
// carry raw SQL or payload fragments.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	if code := fault.CodeOf(err); code != "" {
		return errors.New(fault.KindOf(err).String() + ": " + code)
	}
	msg := strings.TrimSpace(err.Error())
	if i := strings.IndexAny(msg, ":\n"); i > 0 {
		msg = msg[:i]
	}
	return errors.New(msg)
}
