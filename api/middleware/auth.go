package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-collections/api/responses"
	"github.com/angelmondragon/storefront-collections/pkg/auth"
	"github.com/angelmondragon/storefront-collections/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-collections/pkg/errors"
	"github.com/angelmondragon/storefront-collections/pkg/logger"
)

// Session resolves the caller's shopper session. Requests without an
// Authorization header continue as guests; a present but invalid token is
// rejected rather than silently downgraded.
func Session(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			session, err := auth.NewSession(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := auth.WithSession(r.Context(), session)
			if logg != nil {
				ctx = logg.WithUserID(ctx, session.UserID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
