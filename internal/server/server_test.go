package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsedesk/pulsedesk/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	srv, err := New(s, nil)
	require.NoError(t, err)
	return srv, s
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func postForm(t *testing.T, srv *Server, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexRoute(t *testing.T) {
	srv, s := newTestServer(t)
	in := &store.Insight{Title: "Login crash wave", Description: "d", InsightType: "problem", Severity: "critical"}
	require.NoError(t, s.CreateInsight(context.Background(), in))

	rec := get(t, srv, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Dashboard")
	assert.Contains(t, rec.Body.String(), "Login crash wave")
}

func TestIndexUnknownPathIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInsightStatusUpdate(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()
	in := &store.Insight{Title: "x", Description: "d", InsightType: "problem", Severity: "minor"}
	require.NoError(t, s.CreateInsight(ctx, in))

	rec := postForm(t, srv, fmt.Sprintf("/insights/%d/status", in.ID), url.Values{"status": {"dismissed"}})
	assert.Equal(t, http.StatusFound, rec.Code)

	got, err := s.InsightByID(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, "dismissed", got.Status)
}

func TestInsightStatusRejectsUnknownValue(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()
	in := &store.Insight{Title: "x", Description: "d", InsightType: "problem", Severity: "minor"}
	require.NoError(t, s.CreateInsight(ctx, in))

	rec := postForm(t, srv, fmt.Sprintf("/insights/%d/status", in.ID), url.Values{"status": {"bogus"}})
	assert.Equal(t, http.StatusFound, rec.Code, "bad input still redirects")

	got, err := s.InsightByID(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, "discovered", got.Status, "status unchanged")
}

func TestIdeaStatusUpdate(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()
	idea := &store.Idea{Title: "x", Description: "d", IdeaType: "feature", EffortEstimate: "small", ImpactEstimate: "high"}
	require.NoError(t, s.CreateIdea(ctx, idea))

	rec := postForm(t, srv, fmt.Sprintf("/ideas/%d/status", idea.ID), url.Values{"status": {"approved"}})
	assert.Equal(t, http.StatusFound, rec.Code)

	got, err := s.IdeaByID(ctx, idea.ID)
	require.NoError(t, err)
	assert.Equal(t, "approved", got.Status)
}

func TestReportRouteRendersMarkdown(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()
	now := time.Now().UTC()
	report := &store.PulseReport{
		PeriodStart:   now.Add(-24 * time.Hour),
		PeriodEnd:     now,
		FeedbackCount: 3,
		Summary:       "# Feedback Pulse\n\nTotal feedback items: 3\n",
	}
	require.NoError(t, s.SavePulseReport(ctx, report))

	rec := get(t, srv, fmt.Sprintf("/reports/%d", report.ID))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>Feedback Pulse</h1>")

	rec = get(t, srv, "/reports")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("/reports/%d", report.ID))
}

func TestReportRouteMissingIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv, "/reports/999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIStats(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()
	_, err := s.InsertFeedback(ctx, &store.Feedback{Source: "slack", Content: "x"})
	require.NoError(t, err)

	rec := get(t, srv, "/api/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var stats store.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalFeedback)
}

func TestStaticRoute(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv, "/static/style.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "font-family")
}
