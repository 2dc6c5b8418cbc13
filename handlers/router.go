package handlers

import (
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	AllowedOrigins []string
	// AccessLog writes an Apache-style access log to stdout when set.
	AccessLog bool
}

func NewRouter(api *API, hub *Hub, cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.Use(instrument)

	r.HandleFunc("/health", api.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/scheduled-jobs", api.HandleJobHealth).Methods(http.MethodGet)
	r.Path("/metrics").Handler(promhttp.Handler())

	m := r.PathPrefix("/api/measurements").Subrouter()
	m.HandleFunc("", api.HandleSubmit).Methods(http.MethodPost)
	m.HandleFunc("/latest", api.HandleLatest).Methods(http.MethodGet)
	m.HandleFunc("/history", api.HandleHistory).Methods(http.MethodGet)

	d := r.PathPrefix("/api/dashboard").Subrouter()
	d.HandleFunc("", api.HandleDashboard).Methods(http.MethodGet)
	d.HandleFunc("/power-quality-indicators", api.HandleIndicators).Methods(http.MethodGet)
	d.HandleFunc("/waveform", api.HandleWaveform).Methods(http.MethodGet)

	s := r.PathPrefix("/api/stats").Subrouter()
	s.HandleFunc("/daily", api.HandleToday).Methods(http.MethodGet)
	s.HandleFunc("/last-7-days", api.HandleLastDays(7)).Methods(http.MethodGet)
	s.HandleFunc("/last-30-days", api.HandleLastDays(30)).Methods(http.MethodGet)
	s.HandleFunc("/range", api.HandleRange).Methods(http.MethodGet)
	s.HandleFunc("/date", api.HandleDate).Methods(http.MethodGet)
	s.HandleFunc("/recalculate", api.HandleRecalculate).Methods(http.MethodPost)

	if hub != nil {
		r.HandleFunc("/ws/dashboard", hub.ServeWS(cfg.AllowedOrigins)).Methods(http.MethodGet)
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	var h http.Handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(r)

	if cfg.AccessLog {
		h = handlers.LoggingHandler(os.Stdout, h)
	}
	return h
}
