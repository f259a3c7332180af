package middleware

import (
	"context"

	"github.com/angelmondragon/shelfwise-backend/pkg/enums"
)

// Principal is the authenticated reader resolved from the access token.
type Principal struct {
	UserID string
	Role   enums.MemberRole
	Email  string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// UserIDFromContext returns "" for unauthenticated requests.
func UserIDFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.UserID
}

// EmailFromContext returns the email claim, used as the payer email for charges.
func EmailFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.Email
}
