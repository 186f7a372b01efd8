package report

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsedesk/pulsedesk/internal/store"
)

type mockProvider struct {
	response string
	err      error
	calls    int
	prompts  []string
}

func (m *mockProvider) Generate(_ context.Context, prompt, _ string, _ int) (string, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockProvider) IsConfigured() bool { return true }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedFeedback(t *testing.T, s *store.Store, category, priority, source, content string) {
	t.Helper()
	ctx := context.Background()
	id, err := s.InsertFeedback(ctx, &store.Feedback{Source: source, Content: content})
	require.NoError(t, err)
	require.NoError(t, s.UpdateFeedbackAnalysis(ctx, id, category, priority, "s", 0.8))
}

func period() (time.Time, time.Time) {
	now := time.Now().UTC()
	return now.Add(-24 * time.Hour), now.Add(time.Hour)
}

func TestGenerateEmptyPeriod(t *testing.T) {
	s := newTestStore(t)
	mock := &mockProvider{}
	g := New(s, mock, nil)

	start, end := period()
	got, err := g.Generate(context.Background(), start, end)
	require.NoError(t, err)
	assert.Zero(t, got.FeedbackCount)
	assert.Contains(t, got.Summary, "No feedback received during this period.")
	assert.Zero(t, mock.calls)

	saved, err := s.ListPulseReports(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, saved, 1, "empty reports are still persisted")
}

func TestGenerateSummaryLines(t *testing.T) {
	s := newTestStore(t)
	seedFeedback(t, s, "bug", "p1", "slack", "crash on login")
	seedFeedback(t, s, "bug", "p2", "jira", "timeout on export")
	seedFeedback(t, s, "feature_request", "p3", "slack", "dark mode please")

	mock := &mockProvider{}
	g := New(s, mock, nil)

	start, end := period()
	got, err := g.Generate(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, 3, got.FeedbackCount)
	assert.Contains(t, got.Summary, "Total feedback items: 3")
	assert.Contains(t, got.Summary, "High priority items: 2** (1 critical, 1 high)")
	assert.Contains(t, got.Summary, "- 2 bug")
	assert.Contains(t, got.Summary, "- 1 feature_request")
	assert.Contains(t, got.Summary, "- 2 from slack")
	assert.Contains(t, got.Summary, "- 1 from jira")
	assert.NotContains(t, got.Summary, "## Trends", "below the trends threshold")
	assert.Zero(t, mock.calls)
}

func TestGenerateTrendsAboveThreshold(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		seedFeedback(t, s, "bug", "p3", "slack", fmt.Sprintf("slow search %d", i))
	}

	mock := &mockProvider{response: "Search performance dominates the feedback."}
	g := New(s, mock, nil)

	start, end := period()
	got, err := g.Generate(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, mock.calls)
	assert.Contains(t, got.Summary, "## Trends")
	assert.Contains(t, got.Summary, "Search performance dominates the feedback.")
	assert.Contains(t, mock.prompts[0], "Identify 2-3 common themes")
	assert.Contains(t, mock.prompts[0], "slow search 0")
}

func TestGenerateTrendsFailureOmitted(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 6; i++ {
		seedFeedback(t, s, "complaint", "p4", "custom", fmt.Sprintf("gripe %d", i))
	}

	mock := &mockProvider{err: errors.New("service down")}
	g := New(s, mock, nil)

	start, end := period()
	got, err := g.Generate(context.Background(), start, end)
	require.NoError(t, err, "a trends failure does not fail the report")
	assert.NotContains(t, got.Summary, "## Trends")
	assert.Contains(t, got.Summary, "Total feedback items: 6")
}

func TestGenerateNilProviderSkipsTrends(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		seedFeedback(t, s, "bug", "p3", "gong", fmt.Sprintf("item %d", i))
	}

	g := New(s, nil, nil)
	start, end := period()
	got, err := g.Generate(context.Background(), start, end)
	require.NoError(t, err)
	assert.NotContains(t, got.Summary, "## Trends")
}
