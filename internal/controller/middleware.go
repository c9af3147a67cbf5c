package controller

import (
	"context"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dkotenko/slotswapper/internal/service"
)

// tokenParser проверяет JWT и возвращает личность пользователя
type tokenParser interface {
	ParseToken(tokenString string) (*service.Identity, error)
}

type contextKey string

const identityKey contextKey = "identity"

// identityFrom извлекает аутентифицированного пользователя из контекста запроса
func identityFrom(ctx context.Context) (*service.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*service.Identity)
	return identity, ok
}

// authenticate проверяет заголовок Authorization: Bearer <token>
// и кладёт личность пользователя в контекст запроса
func authenticate(tokens tokenParser) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondJSON(w, http.StatusUnauthorized, errorBody{Error: "No token, authorization denied."})
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondJSON(w, http.StatusUnauthorized, errorBody{Error: "Token format is invalid. Use 'Bearer <token>'."})
				return
			}

			identity, err := tokens.ParseToken(parts[1])
			if err != nil {
				respondJSON(w, http.StatusUnauthorized, errorBody{Error: "Token is not valid."})
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestLogger логирует каждый запрос со статусом и длительностью
func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
