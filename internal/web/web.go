package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"kioskcal/internal/config"
	"kioskcal/internal/dashboard"
	appLog "kioskcal/internal/log"
	"kioskcal/internal/model"
	"kioskcal/internal/timeline"
)

// Dashboard is the state the API serves.
type Dashboard interface {
	Snapshot() dashboard.Snapshot
	Refresh(ctx context.Context) error
}

// Server exposes the current layouts as JSON for the kiosk page.
type Server struct {
	cfg  *config.Config
	dash Dashboard
	mux  *http.ServeMux
}

// embeddedStatic holds the kiosk page that renders /api/layout/*.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, dash Dashboard) *Server {
	s := &Server{
		cfg:  cfg,
		dash: dash,
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Run serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="kioskcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/layout/day", s.handleDay)
	s.mux.HandleFunc("GET /api/layout/week", s.handleWeek)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)

	// Everything outside /api/* falls back to the embedded kiosk page.
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// windowDTO is the window without its labels, which are sent alongside.
type windowDTO struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	TotalMinutes float64   `json:"total_minutes"`
	Clamped      bool      `json:"clamped,omitempty"`
}

func newWindowDTO(w timeline.Window) windowDTO {
	return windowDTO{
		Start:        w.Start,
		End:          w.End,
		TotalMinutes: w.TotalMinutes,
		Clamped:      w.Clamped,
	}
}

type laneDTO struct {
	DayKey     string                `json:"day_key"`
	Window     windowDTO             `json:"window"`
	HourLabels []timeline.HourLabel  `json:"hour_labels"`
	Items      []timeline.LayoutItem `json:"items"`
}

func newLaneDTO(l timeline.Lane) laneDTO {
	return laneDTO{
		DayKey:     l.DayKey,
		Window:     newWindowDTO(l.Window),
		HourLabels: nonNil(l.Window.HourLabels),
		Items:      nonNil(l.Items),
	}
}

// dayResponse is the JSON response shape for /api/layout/day.
type dayResponse struct {
	laneDTO
	AllDay      []model.Event          `json:"all_day"`
	Events      map[string]model.Event `json:"events"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// weekResponse is the JSON response shape for /api/layout/week.
type weekResponse struct {
	Lanes       []laneDTO                `json:"lanes"`
	AllDay      map[string][]model.Event `json:"all_day"`
	Events      map[string]model.Event   `json:"events"`
	GeneratedAt time.Time                `json:"generated_at"`
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events      []model.Event `json:"events"`
	RefreshedAt time.Time     `json:"refreshed_at"`
	Error       string        `json:"error,omitempty"`
}

// handleDay returns the single-day layout computed on the last tick.
func (s *Server) handleDay(w http.ResponseWriter, _ *http.Request) {
	snap := s.dash.Snapshot()
	writeJSON(w, http.StatusOK, dayResponse{
		laneDTO:     newLaneDTO(snap.Day.Lane),
		AllDay:      nonNil(snap.Day.AllDay),
		Events:      eventIndex(snap.Events, snap.Day.Items),
		GeneratedAt: snap.GeneratedAt,
	})
}

// handleWeek returns the multi-day layout computed on the last tick.
func (s *Server) handleWeek(w http.ResponseWriter, _ *http.Request) {
	snap := s.dash.Snapshot()

	lanes := make([]laneDTO, 0, len(snap.Week.Lanes))
	items := make([]timeline.LayoutItem, 0)
	for _, l := range snap.Week.Lanes {
		lanes = append(lanes, newLaneDTO(l))
		items = append(items, l.Items...)
	}

	allDay := snap.Week.AllDay
	if allDay == nil {
		allDay = map[string][]model.Event{}
	}

	writeJSON(w, http.StatusOK, weekResponse{
		Lanes:       lanes,
		AllDay:      allDay,
		Events:      eventIndex(snap.Events, items),
		GeneratedAt: snap.GeneratedAt,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	snap := s.dash.Snapshot()
	writeJSON(w, http.StatusOK, eventsResponse{
		Events:      nonNil(snap.Events),
		RefreshedAt: snap.RefreshedAt,
		Error:       snap.RefreshErr,
	})
}

// handleRefresh re-fetches events synchronously and returns the new event
// count.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.dash.Refresh(r.Context()); err != nil {
		appLog.Error("api refresh failed", err)
		writeError(w, http.StatusBadGateway, "failed to refresh events")
		return
	}
	snap := s.dash.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"events":       len(snap.Events),
		"refreshed_at": snap.RefreshedAt,
	})
}

// handlePreview serves the last captured PNG from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	// http.ServeFile maps a missing file to 404.
	http.ServeFile(w, r, s.cfg.Capture.Output)
}

// staticFileServer serves the embedded kiosk page from internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Unknown /api/* paths are 404, never HTML.
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// eventIndex maps the IDs of the laid out items to their events so the page
// can print titles without a second request.
func eventIndex(events []model.Event, items []timeline.LayoutItem) map[string]model.Event {
	want := make(map[string]struct{}, len(items))
	for _, it := range items {
		want[it.EventID] = struct{}{}
	}

	out := make(map[string]model.Event, len(want))
	for _, ev := range events {
		if _, ok := want[ev.ID]; ok {
			out[ev.ID] = ev
		}
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
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
