package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "tripsync/pkg/errors"
	"tripsync/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DriverIDKey contextKey = "driver_id"

	RoleDriver = "DRIVER"
)

// DriverClaims carries the driver id in the standard sub claim.
type DriverClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateDriverToken signs an HS256 token for driverID.
func GenerateDriverToken(secret string, driverID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := DriverClaims{
		Role: RoleDriver,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(driverID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseDriverToken validates a bearer token and returns the driver id.
func ParseDriverToken(secret, tokenString string) (int64, error) {
	claims := &DriverClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, errors.New("invalid token")
	}
	if claims.Role != RoleDriver {
		return 0, fmt.Errorf("role %q may not act on trips", claims.Role)
	}

	driverID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || driverID <= 0 {
		return 0, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	return driverID, nil
}

// DriverAuth rejects requests without a valid driver token and stores the
// driver id in the request context.
func DriverAuth(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				_ = apperrors.WriteError(w, apperrors.Unauthorized("Missing bearer token"))
				return
			}

			driverID, err := ParseDriverToken(secret, tokenString)
			if err != nil {
				log.Warn("Rejected driver token",
					"request_id", RequestID(r.Context()),
					"path", r.URL.Path,
					"error", err,
				)
				_ = apperrors.WriteError(w, apperrors.Unauthorized("Invalid bearer token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithDriverID(r.Context(), driverID)))
		})
	}
}

func WithDriverID(ctx context.Context, driverID int64) context.Context {
	return context.WithValue(ctx, DriverIDKey, driverID)
}

func DriverID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(DriverIDKey).(int64)
	return id, ok
}
