package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/pribylovaa/page-comments/internal/errors"
	"github.com/pribylovaa/page-comments/internal/pkg/log"
)

// RoleAdmin — значение claim role, открывающее админские маршруты.
const RoleAdmin = "admin"

// AdminClaims — claims админского токена.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminJWT пропускает только запросы с валидным HS256 Bearer-токеном и role=admin.
// Если issuer задан, он обязан совпасть. Срок действия обязателен.
func AdminJWT(secret, issuer string) Middleware {
	key := []byte(secret)

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
				return
			}

			var claims AdminClaims
			token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
				if t.Method != jwt.SigningMethodHS256 {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return key, nil
			}, opts...)
			if err != nil || !token.Valid {
				log.From(r.Context()).Warn("admin_token_invalid", "err", err)
				apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
				return
			}

			if claims.Role != RoleAdmin {
				log.From(r.Context()).Warn("admin_role_required", "sub", claims.Subject)
				apierrors.WriteError(w, r, apierrors.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearer(auth string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}

	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}
