package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addFeedback(t *testing.T, s *Store, source, externalID, content string) int64 {
	t.Helper()
	id, err := s.InsertFeedback(context.Background(), &Feedback{
		Source:     source,
		ExternalID: externalID,
		Content:    content,
	})
	require.NoError(t, err)
	return id
}

func TestInsertFeedbackDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1 := addFeedback(t, s, "linear", "LIN-1", "export breaks on large boards")
	require.NotZero(t, id1)

	id2, err := s.InsertFeedback(ctx, &Feedback{
		Source:     "linear",
		ExternalID: "LIN-1",
		Content:    "duplicate of the same ticket",
	})
	require.NoError(t, err)
	assert.Zero(t, id2, "same source and external_id should be deduplicated")

	// Empty external IDs never collide with each other.
	id3 := addFeedback(t, s, "slack", "", "first untracked message")
	id4 := addFeedback(t, s, "slack", "", "second untracked message")
	assert.NotZero(t, id3)
	assert.NotZero(t, id4)
}

func TestInsertFeedbackValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertFeedback(ctx, &Feedback{Source: "carrier_pigeon", Content: "hi"})
	assert.Error(t, err)

	_, err = s.InsertFeedback(ctx, &Feedback{Source: "slack"})
	assert.Error(t, err)
}

func TestFeedbackLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := addFeedback(t, s, "jira", "PROJ-9", "dashboard times out every morning")

	unprocessed, err := s.UnprocessedFeedback(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)

	ready, err := s.ReadyForInsights(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ready, "uncategorized feedback is not ready for insights")

	require.NoError(t, s.UpdateFeedbackAnalysis(ctx, id, "bug", "p1", "dashboard timeout", 0.92))

	ready, err = s.ReadyForInsights(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "bug", ready[0].Category)
	assert.Equal(t, "p1", ready[0].Priority)
	require.NotNil(t, ready[0].AIProcessedAt)

	require.NoError(t, s.MarkInsightProcessed(ctx, []int64{id}))

	ready, err = s.ReadyForInsights(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ready)

	f, err := s.FeedbackByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, f.InsightProcessedAt)
}

func TestMarkInsightProcessedEmpty(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.MarkInsightProcessed(context.Background(), nil))
}

func TestCreateInsightAndLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fid := addFeedback(t, s, "slack", "", "search is slow")
	in := &Insight{
		Title:           "Search latency frustrates daily users",
		Description:     "Multiple reports of slow search",
		InsightType:     "problem",
		Severity:        "major",
		ConfidenceScore: 80,
		Evidence:        []string{"search is slow"},
	}
	require.NoError(t, s.CreateInsight(ctx, in))
	require.NotZero(t, in.ID)
	require.NotNil(t, in.DiscoveredAt)

	_, created, err := s.LinkFeedbackInsight(ctx, fid, in.ID, 1.0)
	require.NoError(t, err)
	assert.True(t, created)

	// Linking again is a no-op.
	link, created, err := s.LinkFeedbackInsight(ctx, fid, in.ID, 0.5)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1.0, link.RelevanceScore, "existing link keeps its original score")

	require.NoError(t, s.RecomputeInsightFeedbackCount(ctx, in.ID))
	got, err := s.InsightByID(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FeedbackCount)
	assert.Equal(t, []string{"search is slow"}, got.Evidence)
}

func TestFeedbacksForInsight(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := &Insight{Title: "t", Description: "d", InsightType: "problem", Severity: "minor"}
	require.NoError(t, s.CreateInsight(ctx, in))

	var ids []int64
	for i := 0; i < 7; i++ {
		fid := addFeedback(t, s, "slack", "", fmt.Sprintf("report %d", i))
		_, _, err := s.LinkFeedbackInsight(ctx, fid, in.ID, 1.0)
		require.NoError(t, err)
		ids = append(ids, fid)
	}

	got, err := s.FeedbacksForInsight(ctx, in.ID, 5)
	require.NoError(t, err)
	require.Len(t, got, 5, "limit applies")
	for i, f := range got {
		assert.Equal(t, ids[i], f.ID, "link order preserved")
	}
}

func TestCreateInsightValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.CreateInsight(ctx, &Insight{Title: "x", InsightType: "vibe", Severity: "major"})
	assert.Error(t, err)

	err = s.CreateInsight(ctx, &Insight{Title: "x", InsightType: "problem", Severity: "major", ConfidenceScore: 150})
	assert.Error(t, err)

	err = s.CreateInsight(ctx, &Insight{InsightType: "problem", Severity: "major"})
	assert.Error(t, err)
}

func TestActionableInsightsOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, sev := range []string{"minor", "critical", "moderate"} {
		require.NoError(t, s.CreateInsight(ctx, &Insight{
			Title:       sev + " insight",
			Description: "d",
			InsightType: "problem",
			Severity:    sev,
		}))
	}
	dismissed := &Insight{Title: "ignored", Description: "d", InsightType: "risk", Severity: "critical"}
	require.NoError(t, s.CreateInsight(ctx, dismissed))
	require.NoError(t, s.UpdateInsightStatus(ctx, dismissed.ID, "dismissed"))

	items, err := s.ActionableInsights(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "critical", items[0].Severity)
	assert.Equal(t, "minor", items[2].Severity)
}

func TestInsightsWithoutIdeas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	covered := &Insight{Title: "covered", Description: "d", InsightType: "problem", Severity: "major"}
	require.NoError(t, s.CreateInsight(ctx, covered))
	open := &Insight{Title: "open", Description: "d", InsightType: "user_need", Severity: "moderate"}
	require.NoError(t, s.CreateInsight(ctx, open))

	idea := &Idea{
		Title:          "Fix it",
		Description:    "d",
		IdeaType:       "quick_win",
		EffortEstimate: "small",
		ImpactEstimate: "high",
	}
	require.NoError(t, s.CreateIdea(ctx, idea))
	_, _, err := s.LinkIdeaInsight(ctx, idea.ID, covered.ID, 4, "solves it")
	require.NoError(t, err)

	items, err := s.InsightsWithoutIdeas(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "open", items[0].Title)
}

func TestThemeDedupAndMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	theme := &Theme{Name: "Search Performance", Description: "initial", PriorityScore: 6, AffectedUsersEstimate: 40}
	require.NoError(t, s.CreateTheme(ctx, theme))

	found, err := s.ThemeByName(ctx, "search performance")
	require.NoError(t, err)
	require.NotNil(t, found, "theme lookup is case-insensitive")
	assert.Equal(t, theme.ID, found.ID)

	require.NoError(t, s.MergeTheme(ctx, theme.ID, "updated description", 4, 25))
	merged, err := s.ThemeByName(ctx, "Search Performance")
	require.NoError(t, err)
	assert.Equal(t, "updated description", merged.Description)
	assert.Equal(t, 6, merged.PriorityScore, "merge keeps the larger score")
	assert.Equal(t, 40, merged.AffectedUsersEstimate, "merge keeps the larger estimate")

	require.NoError(t, s.MergeTheme(ctx, theme.ID, "", 9, 90))
	merged, err = s.ThemeByName(ctx, "Search Performance")
	require.NoError(t, err)
	assert.Equal(t, "updated description", merged.Description, "empty description does not overwrite")
	assert.Equal(t, 9, merged.PriorityScore)
	assert.Equal(t, 90, merged.AffectedUsersEstimate)
}

func TestRecomputeThemePriority(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	theme := &Theme{Name: "Reliability", AffectedUsersEstimate: 50}
	require.NoError(t, s.CreateTheme(ctx, theme))

	critical := &Insight{Title: "a", Description: "d", InsightType: "problem", Severity: "critical"}
	moderate := &Insight{Title: "b", Description: "d", InsightType: "problem", Severity: "moderate"}
	require.NoError(t, s.CreateInsight(ctx, critical))
	require.NoError(t, s.CreateInsight(ctx, moderate))
	_, _, err := s.LinkInsightTheme(ctx, critical.ID, theme.ID, 0.9)
	require.NoError(t, err)
	_, _, err = s.LinkInsightTheme(ctx, moderate.ID, theme.ID, 0.7)
	require.NoError(t, err)

	require.NoError(t, s.RecomputeThemeInsightCount(ctx, theme.ID))
	require.NoError(t, s.RecomputeThemePriority(ctx, theme.ID))

	got, err := s.ThemeByName(ctx, "Reliability")
	require.NoError(t, err)
	assert.Equal(t, 2, got.InsightCount)
	// critical(4) + moderate(2) + 50/10
	assert.Equal(t, 11, got.PriorityScore)
}

func TestIdeaROIScore(t *testing.T) {
	cases := []struct {
		impact string
		effort string
		want   int
	}{
		{"transformational", "trivial", 400},
		{"high", "small", 150},
		{"moderate", "medium", 67},
		{"minimal", "extra_large", 0},
		{"low", "trivial", 100},
	}
	for _, tc := range cases {
		idea := Idea{ImpactEstimate: tc.impact, EffortEstimate: tc.effort}
		assert.Equal(t, tc.want, idea.ROIScore(), "%s/%s", tc.impact, tc.effort)
	}
}

func TestIdeasCreatedSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	idea := &Idea{Title: "t", Description: "d", IdeaType: "feature", EffortEstimate: "medium", ImpactEstimate: "high"}
	require.NoError(t, s.CreateIdea(ctx, idea))

	items, err := s.IdeasCreatedSince(ctx, time.Now().Add(-time.Hour).UTC())
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = s.IdeasCreatedSince(ctx, time.Now().Add(time.Hour).UTC())
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, s.UpdateIdeaStatus(ctx, idea.ID, "rejected"))
	items, err = s.IdeasCreatedSince(ctx, time.Now().Add(-time.Hour).UTC())
	require.NoError(t, err)
	assert.Empty(t, items, "rejected ideas are excluded")
}

func TestSegmentDedupAndMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seg := &StakeholderSegment{
		Name:               "Enterprise Admins",
		SegmentType:        "user_segment",
		Description:        "admins at large accounts",
		SizeEstimate:       200,
		EngagementPriority: 3,
	}
	require.NoError(t, s.CreateSegment(ctx, seg))

	found, err := s.SegmentByName(ctx, "ENTERPRISE ADMINS")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, seg.ID, found.ID)

	require.NoError(t, s.MergeSegment(ctx, seg.ID, 150, 5))
	found, err = s.SegmentByName(ctx, "Enterprise Admins")
	require.NoError(t, err)
	assert.Equal(t, "admins at large accounts", found.Description, "merge never rewrites text fields")
	assert.Equal(t, 200, found.SizeEstimate)
	assert.Equal(t, 5, found.EngagementPriority)
}

func TestLinkIdeas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &Idea{Title: "a", Description: "d", IdeaType: "feature", EffortEstimate: "medium", ImpactEstimate: "high"}
	b := &Idea{Title: "b", Description: "d", IdeaType: "feature", EffortEstimate: "small", ImpactEstimate: "low"}
	require.NoError(t, s.CreateIdea(ctx, a))
	require.NoError(t, s.CreateIdea(ctx, b))

	link, created, err := s.LinkIdeas(ctx, a.ID, b.ID, "prerequisite", "a must ship first")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "prerequisite", link.RelationshipType)

	// Re-linking the same pair returns the existing edge unchanged.
	link, created, err = s.LinkIdeas(ctx, a.ID, b.ID, "conflicts", "changed my mind")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "prerequisite", link.RelationshipType)

	_, _, err = s.LinkIdeas(ctx, a.ID, a.ID, "extends", "self")
	assert.Error(t, err)

	_, _, err = s.LinkIdeas(ctx, a.ID, b.ID, "friends", "x")
	assert.Error(t, err)

	rels, err := s.RelationshipsForIdea(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func TestPersonas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active, err := s.ActivePersona(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	require.NoError(t, s.UpsertPersona(ctx, &Persona{
		Name:         "Dana",
		Archetype:    "data_driven",
		SystemPrompt: "Lean on the numbers.",
		Active:       true,
	}))
	require.NoError(t, s.UpsertPersona(ctx, &Persona{
		Name:         "Uma",
		Archetype:    "user_advocate",
		SystemPrompt: "Center the user.",
	}))

	// Upserting the same archetype replaces, never duplicates.
	require.NoError(t, s.UpsertPersona(ctx, &Persona{
		Name:         "Dana v2",
		Archetype:    "data_driven",
		SystemPrompt: "Numbers first, always.",
		Active:       true,
	}))
	all, err := s.ListPersonas(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, s.SetActivePersona(ctx, "user_advocate"))
	active, err = s.ActivePersona(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "user_advocate", active.Archetype)

	err = s.SetActivePersona(ctx, "strategist")
	assert.Error(t, err, "cannot activate a missing persona")
}

func TestGetStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := addFeedback(t, s, "custom", "", "needs more export formats")
	require.NoError(t, s.UpdateFeedbackAnalysis(ctx, id, "feature_request", "p3", "export", 0.7))
	require.NoError(t, s.CreateInsight(ctx, &Insight{
		Title: "x", Description: "d", InsightType: "opportunity", Severity: "minor",
	}))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFeedback)
	assert.Equal(t, 1, stats.ProcessedFeedback)
	assert.Equal(t, 1, stats.ReadyFeedback)
	assert.Equal(t, 1, stats.Insights)
	assert.Zero(t, stats.Ideas)
}

func TestRunReports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SaveRunReport(ctx, &RunReport{
		ID:                "run-1",
		StartedAt:         now.Add(-time.Minute),
		FinishedAt:        now,
		FeedbacksAnalyzed: 25,
		InsightsCreated:   3,
	}))

	reports, err := s.ListRunReports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "run-1", reports[0].ID)
	assert.Equal(t, 25, reports[0].FeedbacksAnalyzed)
}
