// Package theme clusters insights into named themes, deduplicating by
// case-insensitive name and merging scores monotonically.
package theme

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pulsedesk/pulsedesk/internal/analyze"
	"github.com/pulsedesk/pulsedesk/internal/store"
)

const systemPrompt = `You are an expert at identifying patterns and themes across product insights.
Analyze the insights and group them into high-level themes that represent
common patterns, problem areas, or opportunity spaces.

For each theme:
1. Create a clear, memorable name
2. Write a description explaining what this theme encompasses
3. Assign a priority score (0-100) based on combined severity and user impact
4. Estimate total affected users across all insights in this theme
5. List which insights (by index, 0-based) belong to this theme

An insight can belong to multiple themes if relevant.

Respond in JSON format:
{
  "themes": [
    {
      "name": "Theme name",
      "description": "What this theme represents",
      "priority_score": 85,
      "affected_users_estimate": 500,
      "insight_indices": [0, 2, 5, 7]
    }
  ]
}

Guidelines:
- Create 3-7 themes that meaningfully group the insights
- Theme names should be concise and memorable (2-4 words)
- Higher priority for themes with many critical/major insights
- Don't create themes for single insights unless they're significant
- Look for both problem themes and opportunity themes`

type response struct {
	Themes []themeData `json:"themes"`
}

type themeData struct {
	Name                  string `json:"name"`
	Description           string `json:"description"`
	PriorityScore         int    `json:"priority_score"`
	AffectedUsersEstimate int    `json:"affected_users_estimate"`
	InsightIndices        []int  `json:"insight_indices"`
}

// Identifier clusters insights into themes.
type Identifier struct {
	store     *store.Store
	analyzer  *analyze.Analyzer
	maxTokens int
	logger    *zap.Logger
}

// Result reports one theme identification run.
type Result struct {
	Themes  []store.Theme
	Created int
}

// New creates an Identifier. maxTokens <= 0 selects the default of 4096.
func New(st *store.Store, an *analyze.Analyzer, maxTokens int, logger *zap.Logger) *Identifier {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Identifier{store: st, analyzer: an, maxTokens: maxTokens, logger: logger}
}

// Identify runs a single inference call over the whole insight set and
// folds the returned themes into storage. The unchunked call is a
// deliberate scale limit; callers bound the input via their backlog
// queries.
func (id *Identifier) Identify(ctx context.Context, insights []store.Insight) (*Result, error) {
	result := &Result{}
	if len(insights) == 0 {
		return result, nil
	}

	var resp response
	if err := id.analyzer.Analyze(ctx, buildPrompt(insights), systemPrompt, id.maxTokens, &resp); err != nil {
		id.logger.Error("theme identification failed", zap.Error(err))
		return result, nil
	}

	for _, data := range resp.Themes {
		theme, err := id.findOrCreateTheme(ctx, data)
		if err != nil {
			id.logger.Error("skipping theme", zap.String("name", data.Name), zap.Error(err))
			continue
		}
		id.linkInsights(ctx, theme, data.InsightIndices, insights)

		if err := id.store.RecomputeThemeInsightCount(ctx, theme.ID); err != nil {
			id.logger.Error("recomputing insight count failed", zap.Int64("theme_id", theme.ID), zap.Error(err))
		}
		if err := id.store.MarkThemeAnalyzed(ctx, theme.ID); err != nil {
			id.logger.Error("stamping theme failed", zap.Int64("theme_id", theme.ID), zap.Error(err))
		}
		result.Themes = append(result.Themes, *theme)
	}

	result.Created = len(result.Themes)
	return result, nil
}

func buildPrompt(insights []store.Insight) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze the following %d product insights and identify themes:\n\n", len(insights))
	for i, in := range insights {
		fmt.Fprintf(&sb, "--- Insight #%d ---\n", i)
		fmt.Fprintf(&sb, "Title: %s\n", in.Title)
		fmt.Fprintf(&sb, "Description: %s\n", in.Description)
		fmt.Fprintf(&sb, "Type: %s\n", in.InsightType)
		fmt.Fprintf(&sb, "Severity: %s\n", in.Severity)
		fmt.Fprintf(&sb, "Affected Users: %d\n", in.AffectedUsersCount)
		fmt.Fprintf(&sb, "Feedback Count: %d\n\n", in.FeedbackCount)
	}
	return sb.String()
}

func (id *Identifier) findOrCreateTheme(ctx context.Context, data themeData) (*store.Theme, error) {
	existing, err := id.store.ThemeByName(ctx, data.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := id.store.MergeTheme(ctx, existing.ID, data.Description, data.PriorityScore, data.AffectedUsersEstimate); err != nil {
			return nil, err
		}
		return id.store.ThemeByName(ctx, data.Name)
	}

	theme := &store.Theme{
		Name:                  data.Name,
		Description:           data.Description,
		PriorityScore:         data.PriorityScore,
		AffectedUsersEstimate: data.AffectedUsersEstimate,
	}
	if err := id.store.CreateTheme(ctx, theme); err != nil {
		return nil, err
	}
	return theme, nil
}

func (id *Identifier) linkInsights(ctx context.Context, theme *store.Theme, indices []int, insights []store.Insight) {
	for pos, idx := range indices {
		if idx < 0 || idx >= len(insights) {
			id.logger.Warn("dropping out-of-range insight index",
				zap.Int("index", idx), zap.Int64("theme_id", theme.ID))
			continue
		}
		relevance := analyze.Relevance(pos, len(indices))
		if _, _, err := id.store.LinkInsightTheme(ctx, insights[idx].ID, theme.ID, relevance); err != nil {
			id.logger.Error("linking insight to theme failed",
				zap.Int64("insight_id", insights[idx].ID), zap.Error(err))
		}
	}
}
