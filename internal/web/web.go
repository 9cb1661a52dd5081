// Package web exposes the event map over a JSON HTTP API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"eventmap/internal/app"
	"eventmap/internal/calendar"
	"eventmap/internal/config"
	"eventmap/internal/filter"
	appLog "eventmap/internal/log"
	"eventmap/internal/marker"
	"eventmap/internal/metrics"
	"eventmap/internal/model"
)

// Classifier reports the search kind of a query.
type Classifier interface {
	Classify(query string) model.SearchKind
}

// Server serves the API over an App.
type Server struct {
	cfg        *config.Config
	app        *app.App
	classifier Classifier
	categories []string
	limiter    *RateLimiter
	router     chi.Router
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, a *app.App, classifier Classifier, categories []string) *Server {
	s := &Server{
		cfg:        cfg,
		app:        a,
		classifier: classifier,
		categories: categories,
		limiter: NewRateLimiter(RateLimiterConfig{
			Rate:            cfg.RateLimit.Rate,
			Burst:           cfg.RateLimit.Burst,
			CleanupInterval: 5 * time.Minute,
		}),
	}
	s.routes()
	return s
}

// Handler returns the router with every middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops the rate limiter's cleanup loop.
func (s *Server) Close() {
	s.limiter.Stop()
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(accessLog)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		r.Use(s.basicAuthMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware)

		r.Get("/events", s.handleEvents)
		r.Get("/events/{id}", s.handleEvent)
		r.Get("/markers", s.handleMarkers)
		r.Get("/categories", s.handleCategories)
		r.Get("/search/classify", s.handleClassify)
		r.Post("/search", s.handleSearch)
		r.Post("/filters", s.handleFilters)
		r.Get("/state", s.handleState)
		r.Post("/reload", s.handleReload)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	LoadID      string                         `json:"loadId"`
	Total       int                            `json:"total"`
	Page        int                            `json:"page"`
	PerPage     int                            `json:"perPage"`
	Pages       int                            `json:"pages"`
	Events      []model.Event                  `json:"events"`
	Annotations map[int]model.SearchAnnotation `json:"annotations,omitempty"`
	Origin      *model.SearchOrigin            `json:"origin,omitempty"`
	Criteria    filter.Criteria                `json:"criteria"`
}

// handleEvents runs an immediate filter pass over the current event set.
//
// GET /api/events?q=&category=&date=&range=&page=
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	c := criteriaFromQuery(r)
	res, snap := s.app.Filter(r.Context(), c)

	per := s.cfg.EventsPerPage
	total := len(res.Events)
	pages := (total + per - 1) / per
	page := parseIntDefault(r.URL.Query().Get("page"), 1)
	page = max(1, min(page, pages+1))
	lo := min((page-1)*per, total)
	hi := min(lo+per, total)
	events := res.Events[lo:hi]

	var ann map[int]model.SearchAnnotation
	if res.Origin != nil {
		ann = make(map[int]model.SearchAnnotation, len(events))
		for _, e := range events {
			ann[e.ID] = res.Annotations[e.ID]
		}
	}

	writeJSON(w, http.StatusOK, eventsResponse{
		LoadID:      snap.LoadID,
		Total:       total,
		Page:        page,
		PerPage:     per,
		Pages:       pages,
		Events:      events,
		Annotations: ann,
		Origin:      res.Origin,
		Criteria:    c,
	})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	ev, ok := s.app.Event(id)
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

type markersResponse struct {
	LoadID  string           `json:"loadId"`
	Markers []model.Marker   `json:"markers"`
	Center  model.Coordinate `json:"center"`
}

// handleMarkers returns placement requests for the whole filtered set.
func (s *Server) handleMarkers(w http.ResponseWriter, r *http.Request) {
	res, snap := s.app.Filter(r.Context(), criteriaFromQuery(r))
	center := s.cfg.DefaultRegion
	if res.Origin != nil {
		center = res.Origin.Coordinate()
	}
	writeJSON(w, http.StatusOK, markersResponse{
		LoadID:  snap.LoadID,
		Markers: marker.Build(res.Events, res.Annotations, s.cfg.MaxMarkersOnMap),
		Center:  center,
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"categories": s.categories})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "kind": s.classifier.Classify(q)})
}

type searchRequest struct {
	Query     string `json:"query"`
	Immediate bool   `json:"immediate"`
}

// handleSearch sets the session search text. Without immediate the pass runs
// after the debounce delay and the response is 202.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	s.app.Search(req.Query, req.Immediate)

	status := http.StatusOK
	if s.app.SearchPending() {
		status = http.StatusAccepted
	}
	writeJSON(w, status, s.state())
}

type filtersRequest struct {
	Category   string       `json:"category"`
	ExactDate  string       `json:"date"`
	QuickRange filter.Range `json:"range"`
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	var req filtersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ExactDate != "" {
		if _, err := time.Parse(time.DateOnly, req.ExactDate); err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}
	s.app.SetFilters(r.Context(), req.Category, req.ExactDate, req.QuickRange)
	writeJSON(w, http.StatusOK, s.state())
}

// stateResponse is the session's last applied view.
type stateResponse struct {
	View          *app.View         `json:"view"`
	Criteria      filter.Criteria   `json:"criteria"`
	SearchPending bool              `json:"searchPending"`
	Busy          bool              `json:"busy"`
	Notification  *app.Notification `json:"notification,omitempty"`
}

func (s *Server) state() stateResponse {
	return stateResponse{
		View:          s.app.View(),
		Criteria:      s.app.Criteria(),
		SearchPending: s.app.SearchPending(),
		Busy:          s.app.Busy(),
		Notification:  s.app.LastNotification(),
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

type reloadResponse struct {
	LoadID   string    `json:"loadId"`
	Source   string    `json:"source"`
	Events   int       `json:"events"`
	LoadedAt time.Time `json:"loadedAt"`
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Reload(r.Context()); err != nil {
		if errors.Is(err, calendar.ErrNoSource) {
			writeError(w, http.StatusServiceUnavailable, "no calendar source available")
			return
		}
		appLog.Error("reload failed", err)
		writeError(w, http.StatusInternalServerError, "reload failed")
		return
	}
	snap := s.app.Snapshot()
	writeJSON(w, http.StatusOK, reloadResponse{
		LoadID:   snap.LoadID,
		Source:   snap.Source,
		Events:   len(snap.Events),
		LoadedAt: snap.LoadedAt,
	})
}

func criteriaFromQuery(r *http.Request) filter.Criteria {
	q := r.URL.Query()
	return filter.Criteria{
		SearchText: q.Get("q"),
		Category:   q.Get("category"),
		ExactDate:  q.Get("date"),
		QuickRange: filter.ParseRange(q.Get("range")),
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
