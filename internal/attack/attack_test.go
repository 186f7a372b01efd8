package attack

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/pulsedesk/pulsedesk/internal/analyze"
	"github.com/pulsedesk/pulsedesk/internal/store"
)

type mockProvider struct {
	responses []string
	calls     int
	prompts   []string
}

func (m *mockProvider) Generate(_ context.Context, prompt, _ string, _ int) (string, error) {
	i := m.calls
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return `{"attack_groups": []}`, nil
}

func (m *mockProvider) IsConfigured() bool { return true }

func newBuilder(mock *mockProvider) *Builder {
	an := analyze.New(mock, rate.NewLimiter(rate.Inf, 1), nil)
	return New(an, 0, nil)
}

func sampleInsights(titles ...string) []store.Insight {
	out := make([]store.Insight, 0, len(titles))
	for i, title := range titles {
		out = append(out, store.Insight{
			ID: int64(i + 1), Title: title, Description: "d",
			InsightType: "problem", Severity: "major",
		})
	}
	return out
}

func sampleIdeas(titles ...string) []store.Idea {
	out := make([]store.Idea, 0, len(titles))
	for i, title := range titles {
		out = append(out, store.Idea{
			ID: int64(i + 1), Title: title, Description: "d",
			IdeaType: "feature", EffortEstimate: "medium", ImpactEstimate: "high",
		})
	}
	return out
}

func TestBuildEmptyInput(t *testing.T) {
	mock := &mockProvider{}
	b := newBuilder(mock)

	result, err := b.Build(context.Background(), nil, nil, []store.Theme{{ID: 1, Name: "t"}})
	require.NoError(t, err)
	assert.Empty(t, result.Groups)
	assert.Zero(t, mock.calls, "themes alone do not trigger a call")
}

func TestBuildResolvesIndices(t *testing.T) {
	insights := sampleInsights("i0", "i1")
	ideas := sampleIdeas("d0", "d1", "d2")
	themes := []store.Theme{{ID: 1, Name: "Reliability", PriorityScore: 9}}

	mock := &mockProvider{responses: []string{
		`{"attack_groups": [{
			"name": "Stability push",
			"summary": "fix the flaky core",
			"insight_indices": [0, 1, 9],
			"idea_indices": [2, 0],
			"theme_indices": [0, 3],
			"combined_effort": "large",
			"combined_impact": "high",
			"dependencies": "infra freeze",
			"risks": "scope creep",
			"success_metrics": ["fewer incidents"]
		}]}`,
	}}
	b := newBuilder(mock)

	result, err := b.Build(context.Background(), insights, ideas, themes)
	require.NoError(t, err)
	require.Len(t, result.Groups, 1)

	g := result.Groups[0]
	assert.Equal(t, "Stability push", g.Name)
	require.Len(t, g.Insights, 2, "out-of-range insight index dropped")
	require.Len(t, g.Ideas, 2)
	assert.Equal(t, "d2", g.Ideas[0].Title, "citation order preserved without execution order")
	require.Len(t, g.Themes, 1)
	assert.Equal(t, []string{"fewer incidents"}, g.SuccessMetrics)
}

func TestBuildExecutionOrderReordersIdeas(t *testing.T) {
	ideas := sampleIdeas("d0", "d1", "d2")

	mock := &mockProvider{responses: []string{
		`{"attack_groups": [{
			"name": "g",
			"summary": "s",
			"idea_indices": [0, 1, 2],
			"execution_order": [2, 0, 1]
		}]}`,
	}}
	b := newBuilder(mock)

	result, err := b.Build(context.Background(), nil, ideas, nil)
	require.NoError(t, err)
	require.Len(t, result.Groups, 1)
	got := result.Groups[0].Ideas
	require.Len(t, got, 3)
	assert.Equal(t, "d2", got[0].Title)
	assert.Equal(t, "d0", got[1].Title)
	assert.Equal(t, "d1", got[2].Title)
}

func TestBuildDiscardsEmptyGroups(t *testing.T) {
	insights := sampleInsights("i0")
	ideas := sampleIdeas("d0")

	mock := &mockProvider{responses: []string{
		`{"attack_groups": [
			{"name": "ghost", "summary": "cites nothing real", "insight_indices": [5], "idea_indices": [9]},
			{"name": "real", "summary": "s", "insight_indices": [0]}
		]}`,
	}}
	b := newBuilder(mock)

	result, err := b.Build(context.Background(), insights, ideas, nil)
	require.NoError(t, err)
	require.Len(t, result.Groups, 1)
	assert.Equal(t, "real", result.Groups[0].Name)
}

func TestBuildPromptTruncatesDescriptions(t *testing.T) {
	long := strings.Repeat("x", 500)
	insights := []store.Insight{{ID: 1, Title: "t", Description: long, InsightType: "problem", Severity: "minor"}}

	mock := &mockProvider{}
	b := newBuilder(mock)
	_, err := b.Build(context.Background(), insights, nil, nil)
	require.NoError(t, err)

	prompt := mock.prompts[0]
	assert.Contains(t, prompt, strings.Repeat("x", 200)+"...")
	assert.NotContains(t, prompt, strings.Repeat("x", 201))
}

func TestBuildPromptTruncatesOnRuneBoundaries(t *testing.T) {
	long := strings.Repeat("ü", 500)
	insights := []store.Insight{{ID: 1, Title: "t", Description: long, InsightType: "problem", Severity: "minor"}}

	mock := &mockProvider{}
	b := newBuilder(mock)
	_, err := b.Build(context.Background(), insights, nil, nil)
	require.NoError(t, err)

	prompt := mock.prompts[0]
	assert.True(t, utf8.ValidString(prompt), "truncation must not split a rune")
	assert.Contains(t, prompt, strings.Repeat("ü", 200)+"...")
	assert.NotContains(t, prompt, strings.Repeat("ü", 201))
}
