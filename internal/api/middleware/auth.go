package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"cms-dispatch/internal/api/utils"
)

// EmpNoHeader carries the caller id on service-token requests.
const EmpNoHeader = "X-Emp-No"

type identityKey struct{}

// AuthConfig selects how callers are identified.
type AuthConfig struct {
	JWTSecret    string
	Cookie       string
	ServiceToken string
}

// Auth resolves the caller's employee number from a JWT (cookie or bearer)
// or from EmpNoHeader when the bearer is the service token. Requests with
// no credentials pass through anonymous; invalid credentials get a 401.
func Auth(cfg AuthConfig, next http.Handler) http.Handler {
	secret := []byte(cfg.JWTSecret)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)

		if cfg.ServiceToken != "" && token != "" &&
			subtle.ConstantTimeCompare([]byte(token), []byte(cfg.ServiceToken)) == 1 {
			next.ServeHTTP(w, r.WithContext(WithEmpNo(r.Context(), r.Header.Get(EmpNoHeader))))
			return
		}

		if token == "" && cfg.Cookie != "" {
			if c, err := r.Cookie(cfg.Cookie); err == nil {
				token = c.Value
			}
		}
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		empNo, err := validateJWT(token, secret)
		if err != nil {
			utils.WriteError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHENTICATED")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithEmpNo(r.Context(), empNo)))
	})
}

func validateJWT(tokenString string, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func WithEmpNo(ctx context.Context, empNo string) context.Context {
	return context.WithValue(ctx, identityKey{}, strings.TrimSpace(empNo))
}

// EmpNo returns the caller id, or "" for anonymous requests.
func EmpNo(ctx context.Context) string {
	v, _ := ctx.Value(identityKey{}).(string)
	return v
}
