package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// HTTPMetrics counts served requests.
type HTTPMetrics interface {
	HTTPRequestsInc(route, method string, status int)
}

// requestID reuses the caller's X-Request-ID or generates one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type routeKey struct{}

// accessLog logs every request except the skipped paths and counts it by
// route template. It wraps the router, so unmatched requests are counted too.
func accessLog(metrics HTTPMetrics, skip ...string) func(http.Handler) http.Handler {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			route := "unmatched"

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), routeKey{}, &route)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if metrics != nil {
				metrics.HTTPRequestsInc(route, r.Method, status)
			}
			if skipped[r.URL.Path] {
				return
			}

			event := log.Info()
			if status >= 500 {
				event = log.Error()
			} else if status >= 400 {
				event = log.Warn()
			}
			event.
				Str("request_id", requestIDFrom(r.Context())).
				Str("method", r.Method).
				Str("route", route).
				Str("path", r.URL.Path).
				Int("status", status).
				Int64("duration_ms", time.Since(start).Milliseconds()).
				Int("response_size", ww.BytesWritten()).
				Str("ip", r.RemoteAddr).
				Msg("Request completed")
		})
	}
}

// routeLabel runs inside the router and hands the matched route template
// back to accessLog.
func routeLabel(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route, ok := r.Context().Value(routeKey{}).(*string); ok {
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					*route = tpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// recovery turns a handler panic into a 500 envelope.
func recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error().
					Str("request_id", requestIDFrom(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Interface("panic", rec).
					Msg("Panic recovered")
				writeJSON(w, http.StatusInternalServerError,
					newErrorResponse(CodeInternal, "internal server error", requestIDFrom(r.Context())))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsOptions is the CORS policy of the API. No configured origin allows
// none, matching the websocket origin check.
func corsOptions(origins []string) cors.Options {
	opts := cors.Options{
		AllowedOrigins:       origins,
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:       []string{"Origin", "Content-Type", "Accept", RequestIDHeader},
		ExposedHeaders:       []string{"Content-Length", RequestIDHeader},
		MaxAge:               43200,
		OptionsSuccessStatus: http.StatusNoContent,
	}
	if len(origins) == 0 {
		opts.AllowOriginFunc = func(*http.Request, string) bool { return false }
	}
	return opts
}

func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
