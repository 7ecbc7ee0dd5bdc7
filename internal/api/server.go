// Package api serves the token listing, health, push feed and metrics endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/observability"
	"solana-token-feed/internal/pipeline"
	"solana-token-feed/internal/publish"
)

// Querier answers token queries and reports pipeline state.
type Querier interface {
	Query(ctx context.Context, q domain.QuerySpec) (domain.Projection, error)
	Status() pipeline.Status
	Ping(ctx context.Context) error
}

// Options for creating Server.
type Options struct {
	Pipeline      Querier
	Hub           *publish.Hub
	AllowedOrigin string
	RatePerSecond float64 // per client; zero disables limiting
	RateBurst     int
	WS            publish.WSConfig
	Logger        zerolog.Logger
	Clock         func() time.Time
}

// Server holds the HTTP handlers.
type Server struct {
	pipeline Querier
	hub      *publish.Hub
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
	started  time.Time
}

// NewServer creates the API server.
func NewServer(opts Options) *Server {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	if opts.WS.PingInterval == 0 {
		ws := publish.DefaultWSConfig()
		ws.AllowedOrigin = opts.AllowedOrigin
		opts.WS = ws
	}
	return &Server{
		pipeline: opts.Pipeline,
		hub:      opts.Hub,
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "api").Logger(),
		now:      now,
		started:  now(),
	}
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	if s.opts.RatePerSecond > 0 {
		api.Use(NewRateLimiter(s.opts.RatePerSecond, s.opts.RateBurst, s.logger).Handler)
	}
	api.Use(accessLog(s.logger))
	api.HandleFunc("/tokens", s.handleTokens).Methods(http.MethodGet)

	r.Handle("/health", accessLog(s.logger)(http.HandlerFunc(s.handleHealth))).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	if s.hub != nil {
		r.Handle("/ws", publish.ServeWS(s.hub, s.opts.WS, s.logger)).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	return NewCORS(s.opts.AllowedOrigin).Handler(r)
}

// handleTokens serves GET /api/tokens?period=&sort=&limit=&cursor=.
func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	proj, err := s.pipeline.Query(r.Context(), q)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoData) {
			writeError(w, http.StatusServiceUnavailable, "token data temporarily unavailable")
			return
		}
		s.logger.Warn().Err(err).Msg("token query failed")
		writeError(w, http.StatusServiceUnavailable, "failed to fetch token data")
		return
	}

	writeJSON(w, http.StatusOK, proj)
}

func parseQuery(r *http.Request) (domain.QuerySpec, error) {
	v := r.URL.Query()

	period, err := domain.ParsePeriod(v.Get("period"))
	if err != nil {
		return domain.QuerySpec{}, err
	}
	sortKey, err := domain.ParseSortKey(v.Get("sort"))
	if err != nil {
		return domain.QuerySpec{}, err
	}

	q := domain.QuerySpec{Period: period, SortKey: sortKey, Cursor: v.Get("cursor")}
	if raw := v.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return domain.QuerySpec{}, errors.New("limit must be a non-negative integer")
		}
		q.Limit = limit
	}
	return q, nil
}

// HealthResponse is the JSON response for /health.
type HealthResponse struct {
	Status        string     `json:"status"`
	Uptime        string     `json:"uptime"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	Cache         string     `json:"cache"`
	LastCycle     *time.Time `json:"last_cycle"`
	Cycles        int64      `json:"cycles"`
	LastRecords   int        `json:"last_records"`
	LastError     string     `json:"last_error,omitempty"`
	Subscribers   int        `json:"subscribers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := s.now().Sub(s.started)

	cache := "connected"
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.pipeline.Ping(ctx); err != nil {
		cache = "disconnected"
	}

	st := s.pipeline.Status()
	resp := HealthResponse{
		Status:        "ok",
		Uptime:        uptime.Truncate(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		Cache:         cache,
		Cycles:        st.Cycles,
		LastRecords:   st.LastRecords,
		LastError:     st.LastError,
	}
	if !st.LastCycle.IsZero() {
		t := st.LastCycle.UTC()
		resp.LastCycle = &t
	}
	if s.hub != nil {
		resp.Subscribers = s.hub.Count()
	}

	writeJSON(w, http.StatusOK, resp)
}
