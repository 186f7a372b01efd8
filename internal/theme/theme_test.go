package theme

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/pulsedesk/pulsedesk/internal/analyze"
	"github.com/pulsedesk/pulsedesk/internal/store"
)

type mockProvider struct {
	responses []string
	err       error
	calls     int
}

func (m *mockProvider) Generate(_ context.Context, _, _ string, _ int) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return `{"themes": []}`, nil
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *mockProvider) IsConfigured() bool { return true }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newIdentifier(t *testing.T, s *store.Store, mock *mockProvider) *Identifier {
	t.Helper()
	an := analyze.New(mock, rate.NewLimiter(rate.Inf, 1), nil)
	return New(s, an, 0, nil)
}

func seedInsights(t *testing.T, s *store.Store, titles ...string) []store.Insight {
	t.Helper()
	ctx := context.Background()
	out := make([]store.Insight, 0, len(titles))
	for _, title := range titles {
		in := &store.Insight{
			Title:       title,
			Description: "d",
			InsightType: "problem",
			Severity:    "major",
		}
		require.NoError(t, s.CreateInsight(ctx, in))
		out = append(out, *in)
	}
	return out
}

func TestIdentifyEmptyInput(t *testing.T) {
	s := newTestStore(t)
	mock := &mockProvider{}
	id := newIdentifier(t, s, mock)

	result, err := id.Identify(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.Created)
	assert.Zero(t, mock.calls)
}

func TestIdentifyCreatesAndLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insights := seedInsights(t, s, "a", "b", "c")

	mock := &mockProvider{responses: []string{
		`{"themes": [{
			"name": "Search Performance",
			"description": "slow search everywhere",
			"priority_score": 70,
			"affected_users_estimate": 120,
			"insight_indices": [0, 2]
		}]}`,
	}}
	id := newIdentifier(t, s, mock)

	result, err := id.Identify(ctx, insights)
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	assert.Equal(t, 1, mock.calls, "full insight set is one call")

	theme, err := s.ThemeByName(ctx, "search performance")
	require.NoError(t, err)
	require.NotNil(t, theme)
	assert.Equal(t, 2, theme.InsightCount)
	assert.NotNil(t, theme.AnalyzedAt)

	linked, err := s.InsightsForTheme(ctx, theme.ID)
	require.NoError(t, err)
	require.Len(t, linked, 2)
	assert.Equal(t, "a", linked[0].Title)
	assert.Equal(t, "c", linked[1].Title)
}

func TestIdentifyDedupAndMonotonicMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insights := seedInsights(t, s, "a", "b")

	first := `{"themes": [{"name": "Onboarding Friction", "description": "v1", "priority_score": 60, "affected_users_estimate": 100, "insight_indices": [0]}]}`
	second := `{"themes": [{"name": "onboarding friction", "description": "v2", "priority_score": 40, "affected_users_estimate": 300, "insight_indices": [1]}]}`
	mock := &mockProvider{responses: []string{first, second}}
	id := newIdentifier(t, s, mock)

	_, err := id.Identify(ctx, insights)
	require.NoError(t, err)
	result, err := id.Identify(ctx, insights)
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)

	themes, err := s.ListThemes(ctx)
	require.NoError(t, err)
	require.Len(t, themes, 1, "case-insensitive names converge to one row")
	assert.Equal(t, "Onboarding Friction", themes[0].Name)
	assert.Equal(t, "v2", themes[0].Description)
	assert.Equal(t, 60, themes[0].PriorityScore, "priority never decreases")
	assert.Equal(t, 300, themes[0].AffectedUsersEstimate)
	assert.Equal(t, 2, themes[0].InsightCount)
}

func TestIdentifyFailedCallDegrades(t *testing.T) {
	s := newTestStore(t)
	insights := seedInsights(t, s, "a")

	mock := &mockProvider{err: errors.New("service down")}
	id := newIdentifier(t, s, mock)

	result, err := id.Identify(context.Background(), insights)
	require.NoError(t, err)
	assert.Zero(t, result.Created)
}

func TestIdentifyDropsBadIndices(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insights := seedInsights(t, s, "a")

	mock := &mockProvider{responses: []string{
		`{"themes": [{"name": "Sparse", "description": "d", "insight_indices": [0, 7]}]}`,
	}}
	id := newIdentifier(t, s, mock)

	result, err := id.Identify(ctx, insights)
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)

	theme, err := s.ThemeByName(ctx, "Sparse")
	require.NoError(t, err)
	assert.Equal(t, 1, theme.InsightCount)
}
