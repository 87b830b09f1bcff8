package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter mounts h on /graphql (HTTP and WebSocket) and /subscriptions
// (WebSocket only), plus /healthz and, when metrics is non-nil, /metrics.
// The whole router is wrapped with CORS when origins are configured.
func NewRouter(h *Handler, metrics http.Handler) http.Handler {
	r := mux.NewRouter()
	r.Handle("/graphql", h).Methods(http.MethodGet, http.MethodPost, http.MethodOptions)
	r.HandleFunc("/subscriptions", h.serveWS).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet, http.MethodHead)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	if len(h.opt.CORS.AllowedOrigins) == 0 {
		return r
	}
	return cors.New(cors.Options{
		AllowedOrigins: h.opt.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-Id"},
	}).Handler(r)
}
