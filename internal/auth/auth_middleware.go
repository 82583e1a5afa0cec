package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const OTPHeader = "X-Operator-OTP"

type contextKey string

const actorKey contextKey = "actor"

type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Middleware guards the operator endpoints.
type Middleware struct {
	jwtManager *JWTManager
	totp       *TOTPVerifier
	logger     *zap.Logger
}

// NewMiddleware builds the operator guard. A nil verifier disables the TOTP
// second factor.
func NewMiddleware(jwtManager *JWTManager, verifier *TOTPVerifier, logger *zap.Logger) *Middleware {
	return &Middleware{jwtManager: jwtManager, totp: verifier, logger: logger}
}

func (m *Middleware) RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			writeJSONError(w, http.StatusUnauthorized, "Invalid token format")
			return
		}

		actor, err := m.jwtManager.ValidateAccessToken(tokenString)
		if err != nil {
			if errors.Is(err, ErrNotOperator) {
				writeJSONError(w, http.StatusForbidden, ErrNotOperator.Error())
				return
			}
			writeJSONError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		if m.totp != nil && !m.totp.VerifyCode(r.Header.Get(OTPHeader)) {
			m.logger.Warn("Operator second factor rejected", zap.String("actor", actor), zap.String("path", r.URL.Path))
			writeJSONError(w, http.StatusUnauthorized, "Invalid or missing one-time code")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the operator identity set by RequireOperator.
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorKey).(string)
	return actor, ok && actor != ""
}

func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Status:  "error",
		Message: message,
	})
}
