package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hexroom-backend/internal/gateway"
	"github.com/DoyleJ11/hexroom-backend/internal/store"
)

func SetupRoutes(st *store.Store, g *gateway.Gateway, ws http.Handler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Plain HTTP routes get access logs; the upgrade path logs per connection.
	r.Group(func(r chi.Router) {
		r.Use(requestLogger(log))
		r.Get("/healthz", Healthz)
		r.Get("/stats", Stats(g))
		r.Get("/rooms/{code}", GetRoom(st))
	})
	r.Get("/ws", ws.ServeHTTP)
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	log = log.With(zap.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
