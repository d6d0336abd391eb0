package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/claimgate/internal/common"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const accountIDKey ctxKey = "accountID"

// AccountID returns the account resolved by the auth middleware.
func AccountID(ctx context.Context) string {
	id, _ := ctx.Value(accountIDKey).(string)
	return id
}

// authenticate resolves the caller from the Authorization bearer token or
// the X-API-Key header and stores the account id in the request context.
func (h *handlers) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer := bearerToken(r.Header.Get(common.AuthorizationHeaderName))
		apiKey := strings.TrimSpace(r.Header.Get(common.APIKeyHeaderName))

		accountID, err := h.deps.Resolver.Resolve(r.Context(), bearer, apiKey)
		if err != nil {
			writeError(w, err)
			return
		}

		h.logger.Debug(r.Context(), "caller resolved", "account", common.ShortID(accountID), "request_id", middleware.GetReqID(r.Context()))

		ctx := context.WithValue(r.Context(), accountIDKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) string {
	if len(header) < len(common.BearerPrefix) || !strings.EqualFold(header[:len(common.BearerPrefix)], common.BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(common.BearerPrefix):])
}

// accessLog logs one line per request.
func (h *handlers) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		}

		switch {
		case ww.Status() >= 500:
			h.logger.Error(r.Context(), "request", args...)
		case ww.Status() >= 400:
			h.logger.Warn(r.Context(), "request", args...)
		default:
			h.logger.Info(r.Context(), "request", args...)
		}
	})
}
