package access

import (
	"context"

	"github.com/notepid/twilight_forum/internal/domain"
)

type principalKey struct{}

// ContextWithPrincipal stores the session principal in the context.
func ContextWithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the session principal, or the anonymous
// principal when the request carries none.
func PrincipalFromContext(ctx context.Context) domain.Principal {
	p, _ := ctx.Value(principalKey{}).(domain.Principal)
	return p
}
