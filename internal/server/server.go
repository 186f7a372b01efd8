// Package server is the local web UI: dashboard, insight and idea
// listings, and rendered pulse reports.
package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/pulsedesk/pulsedesk/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

const listLimit = 50

// Server is the HTTP server for the pulsedesk UI.
type Server struct {
	store  *store.Store
	pages  map[string]*template.Template
	mux    *http.ServeMux
	logger *zap.Logger
}

// New creates a Server with all page templates parsed.
func New(st *store.Store, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"roi":      func(i store.Idea) int { return i.ROIScore() },
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page clones the base so it gets its own content block.
	pageNames := []string{"index.html", "insights.html", "themes.html", "ideas.html", "reports.html", "report.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{store: st, pages: pages, mux: http.NewServeMux(), logger: logger}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/insights", s.handleInsights)
	s.mux.HandleFunc("/insights/", s.handleInsightAction)
	s.mux.HandleFunc("/themes", s.handleThemes)
	s.mux.HandleFunc("/ideas", s.handleIdeas)
	s.mux.HandleFunc("/ideas/", s.handleIdeaAction)
	s.mux.HandleFunc("/reports", s.handleReports)
	s.mux.HandleFunc("/reports/", s.handleReport)
	s.mux.HandleFunc("/api/stats", s.handleAPIStats)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	recent, _ := s.store.RecentInsights(r.Context(), 10)
	runs, _ := s.store.ListRunReports(r.Context(), 5)

	s.render(w, "index.html", map[string]any{
		"Stats":    stats,
		"Insights": recent,
		"Runs":     runs,
	})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := s.store.RecentInsights(r.Context(), listLimit)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "insights.html", map[string]any{
		"Insights": insights,
		"Statuses": store.InsightStatuses,
	})
}

// handleInsightAction updates an insight's status from a listing form:
// POST /insights/{id}/status with a status form value.
func (s *Server) handleInsightAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/insights", http.StatusFound)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/insights/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[1] != "status" {
		http.Redirect(w, r, "/insights", http.StatusFound)
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Redirect(w, r, "/insights", http.StatusFound)
		return
	}

	status := strings.TrimSpace(r.FormValue("status"))
	if err := s.store.UpdateInsightStatus(r.Context(), id, status); err != nil {
		s.logger.Warn("insight status update rejected", zap.Int64("id", id), zap.Error(err))
	}
	http.Redirect(w, r, "/insights", http.StatusFound)
}

func (s *Server) handleThemes(w http.ResponseWriter, r *http.Request) {
	themes, err := s.store.ThemesByPriority(r.Context(), listLimit)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "themes.html", map[string]any{"Themes": themes})
}

func (s *Server) handleIdeas(w http.ResponseWriter, r *http.Request) {
	ideas, err := s.store.ActionableIdeas(r.Context(), listLimit)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "ideas.html", map[string]any{
		"Ideas":    ideas,
		"Statuses": store.IdeaStatuses,
	})
}

// handleIdeaAction updates an idea's status:
// POST /ideas/{id}/status with a status form value.
func (s *Server) handleIdeaAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/ideas", http.StatusFound)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/ideas/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[1] != "status" {
		http.Redirect(w, r, "/ideas", http.StatusFound)
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Redirect(w, r, "/ideas", http.StatusFound)
		return
	}

	status := strings.TrimSpace(r.FormValue("status"))
	if err := s.store.UpdateIdeaStatus(r.Context(), id, status); err != nil {
		s.logger.Warn("idea status update rejected", zap.Int64("id", id), zap.Error(err))
	}
	http.Redirect(w, r, "/ideas", http.StatusFound)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.ListPulseReports(r.Context(), listLimit)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "reports.html", map[string]any{"Reports": reports})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/reports/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Redirect(w, r, "/reports", http.StatusFound)
		return
	}

	report, err := s.store.PulseReportByID(r.Context(), id)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if report == nil {
		http.NotFound(w, r)
		return
	}
	s.render(w, "report.html", map[string]any{"Report": report})
}

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.logger.Error("encoding stats failed", zap.Error(err))
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("template not found", zap.String("template", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.logger.Error("rendering template failed", zap.String("template", name), zap.Error(err))
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port, bound to localhost.
func Serve(st *store.Store, port int, logger *zap.Logger) error {
	srv, err := New(st, logger)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv.logger.Info("server listening", zap.String("addr", "http://"+addr))
	return http.ListenAndServe(addr, srv.Handler())
}
