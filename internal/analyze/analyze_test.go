package analyze

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/pulsedesk/pulsedesk/internal/store"
)

type mockProvider struct {
	responses []string
	err       error
	calls     int
	prompts   []string
	systems   []string
}

func (m *mockProvider) Generate(_ context.Context, prompt, system string, _ int) (string, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	m.systems = append(m.systems, system)
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", errors.New("mock: no responses left")
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *mockProvider) IsConfigured() bool { return true }

func fastLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

func TestAnalyzeDecodesTypedResponse(t *testing.T) {
	mock := &mockProvider{responses: []string{
		"Sure, here you go:\n```json\n{\"items\": [{\"name\": \"a\"}]}\n```",
	}}
	a := New(mock, fastLimiter(), nil)

	var out struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	err := a.Analyze(context.Background(), "prompt", "system", 1024, &out)
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "a", out.Items[0].Name)
	assert.Equal(t, []string{"system"}, mock.systems)
}

func TestAnalyzeServiceError(t *testing.T) {
	mock := &mockProvider{err: errors.New("boom")}
	a := New(mock, fastLimiter(), nil)

	var out map[string]any
	err := a.Analyze(context.Background(), "p", "", 100, &out)
	var aerr *AnalysisError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, KindService, aerr.Kind)
}

func TestAnalyzeNoJSON(t *testing.T) {
	mock := &mockProvider{responses: []string{"I could not find any insights worth reporting."}}
	a := New(mock, fastLimiter(), nil)

	var out map[string]any
	err := a.Analyze(context.Background(), "p", "", 100, &out)
	var aerr *AnalysisError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, KindNoJSON, aerr.Kind)
}

func TestAnalyzeMalformed(t *testing.T) {
	mock := &mockProvider{responses: []string{`{"items": "should be an array"}`}}
	a := New(mock, fastLimiter(), nil)

	var out struct {
		Items []string `json:"items"`
	}
	err := a.Analyze(context.Background(), "p", "", 100, &out)
	var aerr *AnalysisError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, KindMalformed, aerr.Kind)
}

func TestAnalyzePersonaSystemPrompt(t *testing.T) {
	mock := &mockProvider{responses: []string{`{}`, `{}`}}
	a := New(mock, fastLimiter(), nil)
	a.SetPersona(&store.Persona{
		Name:         "Dana",
		Archetype:    "data_driven",
		SystemPrompt: "Lean on the numbers.",
	})

	var out map[string]any
	require.NoError(t, a.Analyze(context.Background(), "p", "Base system.", 100, &out))
	assert.Equal(t, "Base system.\n\nLean on the numbers.", mock.systems[0])

	require.NoError(t, a.Analyze(context.Background(), "p", "", 100, &out))
	assert.Equal(t, "Lean on the numbers.", mock.systems[1])
}

func TestRelevance(t *testing.T) {
	assert.Equal(t, 1.0, Relevance(0, 1))
	assert.Equal(t, 1.0, Relevance(0, 4))
	assert.Equal(t, 0.75, Relevance(1, 4))
	assert.Equal(t, 0.5, Relevance(2, 4))
	assert.Equal(t, 0.25, Relevance(3, 4))
	assert.Equal(t, 0.67, Relevance(1, 3))

	// Strictly decreasing, always in (0, 1].
	for total := 2; total <= 10; total++ {
		prev := 1.1
		for p := 0; p < total; p++ {
			score := Relevance(p, total)
			assert.Greater(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
			assert.Less(t, score, prev)
			prev = score
		}
	}
}

func TestAnalyzeContextCancelled(t *testing.T) {
	mock := &mockProvider{responses: []string{`{}`}}
	a := New(mock, rate.NewLimiter(rate.Every(1), 0), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out map[string]any
	err := a.Analyze(ctx, "p", "", 100, &out)
	var aerr *AnalysisError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, KindService, aerr.Kind)
	assert.Zero(t, mock.calls)
}
