package middleware

import (
	"customer-onboarding/internal/config"
	"customer-onboarding/internal/domain/customer"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimPrincipalType carries the principal kind ("backoffice" or
// "frontoffice") next to the standard subject claim.
const ClaimPrincipalType = "principalType"

var errMissingSubject = errors.New("token has no subject")

// AuthMiddleware validates the bearer token and stores the caller as a
// customer.Actor on the request context. With auth disabled every request
// runs as the "anonymous" backoffice actor.
func AuthMiddleware(cfg config.AuthConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "AuthMiddleware")
	if !cfg.Enabled {
		logger.Warn("Authentication disabled, requests run as anonymous backoffice actor")
		anonymous := customer.Actor{ID: "anonymous", Type: customer.PrincipalBackoffice}
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(customer.ContextWithActor(r.Context(), anonymous)))
			})
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := authenticate(r, cfg.JWTSecret)
			if err != nil {
				logger.WarnContext(r.Context(), "Rejected unauthenticated request", slog.String("path", r.URL.Path), slog.Any("error", err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{"message": "Unauthorized"},
				})
				return
			}
			logger.DebugContext(r.Context(), "Authenticated request", slog.String("actor", actor.ID), slog.String("principalType", string(actor.Type)))
			next.ServeHTTP(w, r.WithContext(customer.ContextWithActor(r.Context(), actor)))
		})
	}
}

func authenticate(r *http.Request, secret string) (customer.Actor, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return customer.Actor{}, errors.New("missing Authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return customer.Actor{}, errors.New("invalid Authorization header format")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return customer.Actor{}, err
	}
	if !token.Valid {
		return customer.Actor{}, errors.New("token is not valid")
	}

	subject, err := claims.GetSubject()
	if err != nil {
		return customer.Actor{}, err
	}
	if subject == "" {
		return customer.Actor{}, errMissingSubject
	}
	principal, _ := claims[ClaimPrincipalType].(string)

	return customer.Actor{
		ID:   subject,
		Type: customer.PrincipalType(strings.ToLower(principal)),
	}, nil
}
