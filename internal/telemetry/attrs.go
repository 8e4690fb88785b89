package telemetry

import (
	"errors"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/notepid/twilight_forum/internal/domain"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String("method", method)
}

func routeAttr(route string) attribute.KeyValue {
	return attribute.String("route", route)
}

func statusAttr(status int) attribute.KeyValue {
	return attribute.String("status", strconv.Itoa(status))
}

func resultAttr(result string) attribute.KeyValue {
	return attribute.String("result", result)
}

func kindAttr(kind string) attribute.KeyValue {
	return attribute.String("kind", kind)
}

func actionAttr(action string) attribute.KeyValue {
	return attribute.String("action", action)
}

func decisionResult(err error) string {
	switch {
	case err == nil:
		return "allow"
	case errors.Is(err, domain.ErrNotFound):
		return "hidden"
	case errors.Is(err, domain.ErrAuthRequired):
		return "unauthenticated"
	default:
		return "deny"
	}
}
