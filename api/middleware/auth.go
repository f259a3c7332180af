package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/shelfwise-backend/api/responses"
	pkgAuth "github.com/angelmondragon/shelfwise-backend/pkg/auth"
	"github.com/angelmondragon/shelfwise-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/shelfwise-backend/pkg/errors"
	"github.com/angelmondragon/shelfwise-backend/pkg/logger"
)

// TokenHeader is accepted alongside Authorization for older mobile clients.
const TokenHeader = "x-auth-token"

// Auth validates a bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, pkgAuth.ErrTokenExpired) {
					msg = "token expired"
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			ctx := WithPrincipal(r.Context(), Principal{
				UserID: claims.UserID.String(),
				Role:   claims.Role,
				Email:  claims.Email,
			})

			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"user_id":    claims.UserID.String(),
					"actor_role": string(claims.Role),
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return strings.TrimSpace(r.Header.Get(TokenHeader))
	}
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}
