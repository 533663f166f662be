package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/otcheredev/therapisttrack-records/internal/apperr"
	"github.com/otcheredev/therapisttrack-records/internal/models"
	"github.com/rs/zerolog/log"
)

type contextKey string

const userContextKey contextKey = "user"

var errTokenInvalid = errors.New("token is invalid")

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Secret string
	Issuer string
}

// ParseToken verifies an HS256 token and returns the caller it names.
func ParseToken(tokenString string, cfg AuthConfig) (models.UserContext, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return models.UserContext{}, err
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return models.UserContext{}, errTokenInvalid
	}
	return models.UserContext{
		UserID:      claims.Subject,
		Role:        claims.Role,
		Permissions: claims.Permissions,
	}, nil
}

// Auth requires a valid bearer token and stores the caller in the request context.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, found := strings.CutPrefix(header, "Bearer ")
			if !found || tokenString == "" {
				writeError(w, apperr.Unauthorized)
				return
			}

			user, err := ParseToken(tokenString, cfg)
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected bearer token")
				writeError(w, apperr.Unauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userFromContext extracts the caller Auth stored
func userFromContext(ctx context.Context) (models.UserContext, bool) {
	user, ok := ctx.Value(userContextKey).(models.UserContext)
	return user, ok
}
