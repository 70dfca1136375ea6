package http

import (
	"log/slog"
	nethttp "net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/lucasspain13/out-sports-qc-sub001/internal/http/handlers"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/http/middleware"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/metrics"
)

// RouterConfig collects what NewRouter mounts. Nil Admin or Push skips those routes.
type RouterConfig struct {
	Handler     *handlers.Handler
	Admin       *handlers.AdminHandler
	Push        nethttp.Handler
	Logger      *slog.Logger
	Metrics     *metrics.Recorder
	CORSOrigins []string
}

// NewRouter registers HTTP routes on a gorilla/mux router behind CORS.
func NewRouter(cfg RouterConfig) nethttp.Handler {
	h := cfg.Handler
	r := mux.NewRouter()
	r.Use(middleware.Logging(cfg.Logger, cfg.Metrics))

	r.HandleFunc("/health", h.Health).Methods(nethttp.MethodGet)
	r.HandleFunc("/ready", h.Ready).Methods(nethttp.MethodGet)
	r.HandleFunc("/connection", h.Connection).Methods(nethttp.MethodGet)
	r.HandleFunc("/games/live", h.LiveGames).Methods(nethttp.MethodGet)
	r.HandleFunc("/games/{id}", h.GameByID).Methods(nethttp.MethodGet)
	r.HandleFunc("/games/{id}/score", h.SetScore).Methods(nethttp.MethodPut)
	r.HandleFunc("/games/{id}/score/{team}/increment", h.IncrementScore).Methods(nethttp.MethodPost)
	r.HandleFunc("/games/{id}/score/{team}/decrement", h.DecrementScore).Methods(nethttp.MethodPost)
	if cfg.Admin != nil {
		r.HandleFunc("/games/{id}/status", cfg.Admin.SetStatus).Methods(nethttp.MethodPut)
	}
	if cfg.Push != nil {
		r.Handle("/ws", cfg.Push).Methods(nethttp.MethodGet)
	}
	r.NotFoundHandler = nethttp.HandlerFunc(h.NotFound)
	r.MethodNotAllowedHandler = nethttp.HandlerFunc(h.MethodNotAllowed)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{nethttp.MethodGet, nethttp.MethodPost, nethttp.MethodPut, nethttp.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-ID"},
	})
	return c.Handler(r)
}
