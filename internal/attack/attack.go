// Package attack synthesizes transient "attack groups": bundles of
// insights, ideas, and themes recommended for coordinated execution.
// Groups are a read model for display and logging, never persisted.
package attack

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pulsedesk/pulsedesk/internal/analyze"
	"github.com/pulsedesk/pulsedesk/internal/store"
)

const systemPrompt = `You are an expert at creating coordinated action plans for addressing product issues.
Analyze the insights, themes, and ideas to create "attack groups" - bundles of related
issues and solutions that should be tackled together for maximum impact.

For each attack group:
1. Create a compelling name for the initiative
2. Write an executive summary
3. List the insights being addressed (by index)
4. List the recommended ideas to implement (by index)
5. Identify the key themes this addresses (by index)
6. Estimate combined effort and impact
7. Suggest an execution order for the ideas
8. Highlight dependencies and risks

Respond in JSON format:
{
  "attack_groups": [
    {
      "name": "Initiative name",
      "summary": "Executive summary of this coordinated effort",
      "insight_indices": [0, 2, 5],
      "idea_indices": [1, 3, 4],
      "theme_indices": [0],
      "combined_effort": "medium",
      "combined_impact": "high",
      "execution_order": [3, 1, 4],
      "dependencies": "What must be in place first",
      "risks": "Key risks to watch for",
      "success_metrics": ["Metric 1", "Metric 2"]
    }
  ]
}

Guidelines:
- Create 2-5 attack groups based on natural clusters
- Prioritize groups with high impact and manageable effort
- Ensure ideas in a group logically belong together
- Consider dependencies between ideas when setting execution order
- Include measurable success criteria`

// promptDescLimit bounds each description in the prompt.
const promptDescLimit = 200

type response struct {
	AttackGroups []groupData `json:"attack_groups"`
}

type groupData struct {
	Name           string   `json:"name"`
	Summary        string   `json:"summary"`
	InsightIndices []int    `json:"insight_indices"`
	IdeaIndices    []int    `json:"idea_indices"`
	ThemeIndices   []int    `json:"theme_indices"`
	CombinedEffort string   `json:"combined_effort"`
	CombinedImpact string   `json:"combined_impact"`
	ExecutionOrder []int    `json:"execution_order"`
	Dependencies   string   `json:"dependencies"`
	Risks          string   `json:"risks"`
	SuccessMetrics []string `json:"success_metrics"`
}

// Group is one coordinated execution bundle.
type Group struct {
	Name           string
	Summary        string
	Insights       []store.Insight
	Ideas          []store.Idea
	Themes         []store.Theme
	CombinedEffort string
	CombinedImpact string
	Dependencies   string
	Risks          string
	SuccessMetrics []string
}

// Builder synthesizes attack groups.
type Builder struct {
	analyzer  *analyze.Analyzer
	maxTokens int
	logger    *zap.Logger
}

// Result reports one build run.
type Result struct {
	Groups []Group
}

// New creates a Builder. maxTokens <= 0 selects the default of 8192;
// the plan covers three entity collections so it gets more room than
// the other stages.
func New(an *analyze.Analyzer, maxTokens int, logger *zap.Logger) *Builder {
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{analyzer: an, maxTokens: maxTokens, logger: logger}
}

// Build bundles the given insights, ideas, and themes into attack
// groups with one inference call. A group resolving to zero insights
// and zero ideas is discarded.
func (b *Builder) Build(ctx context.Context, insights []store.Insight, ideas []store.Idea, themes []store.Theme) (*Result, error) {
	result := &Result{}
	if len(insights) == 0 && len(ideas) == 0 {
		return result, nil
	}

	var resp response
	if err := b.analyzer.Analyze(ctx, buildPrompt(insights, ideas, themes), systemPrompt, b.maxTokens, &resp); err != nil {
		b.logger.Error("attack group building failed", zap.Error(err))
		return result, nil
	}

	for _, data := range resp.AttackGroups {
		group := buildGroup(data, insights, ideas, themes)
		if group == nil {
			b.logger.Warn("discarding empty attack group", zap.String("name", data.Name))
			continue
		}
		result.Groups = append(result.Groups, *group)
	}
	return result, nil
}

func buildPrompt(insights []store.Insight, ideas []store.Idea, themes []store.Theme) string {
	var sb strings.Builder
	sb.WriteString("Create coordinated attack groups from the following components:\n")

	fmt.Fprintf(&sb, "\n=== INSIGHTS (%d) ===\n", len(insights))
	for i, in := range insights {
		fmt.Fprintf(&sb, "--- Insight #%d ---\n", i)
		fmt.Fprintf(&sb, "Title: %s\n", in.Title)
		fmt.Fprintf(&sb, "Type: %s | Severity: %s\n", in.InsightType, in.Severity)
		fmt.Fprintf(&sb, "Description: %s\n\n", truncate(in.Description))
	}

	fmt.Fprintf(&sb, "\n=== IDEAS (%d) ===\n", len(ideas))
	for i, idea := range ideas {
		fmt.Fprintf(&sb, "--- Idea #%d ---\n", i)
		fmt.Fprintf(&sb, "Title: %s\n", idea.Title)
		fmt.Fprintf(&sb, "Type: %s | Effort: %s | Impact: %s\n", idea.IdeaType, idea.EffortEstimate, idea.ImpactEstimate)
		fmt.Fprintf(&sb, "Description: %s\n\n", truncate(idea.Description))
	}

	fmt.Fprintf(&sb, "\n=== THEMES (%d) ===\n", len(themes))
	for i, theme := range themes {
		fmt.Fprintf(&sb, "--- Theme #%d ---\n", i)
		fmt.Fprintf(&sb, "Name: %s\n", theme.Name)
		fmt.Fprintf(&sb, "Priority: %d\n", theme.PriorityScore)
		if theme.Description != "" {
			fmt.Fprintf(&sb, "Description: %s\n", truncate(theme.Description))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// truncate counts runes so a cut never splits a multi-byte sequence.
func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= promptDescLimit {
		return s
	}
	return string(runes[:promptDescLimit]) + "..."
}

// buildGroup resolves the cited indices; missing or out-of-range
// indices are dropped silently. Returns nil when the group has no
// insights and no ideas.
func buildGroup(data groupData, insights []store.Insight, ideas []store.Idea, themes []store.Theme) *Group {
	group := &Group{
		Name:           data.Name,
		Summary:        data.Summary,
		CombinedEffort: data.CombinedEffort,
		CombinedImpact: data.CombinedImpact,
		Dependencies:   data.Dependencies,
		Risks:          data.Risks,
		SuccessMetrics: data.SuccessMetrics,
	}

	for _, idx := range data.InsightIndices {
		if idx >= 0 && idx < len(insights) {
			group.Insights = append(group.Insights, insights[idx])
		}
	}
	for _, idx := range data.IdeaIndices {
		if idx >= 0 && idx < len(ideas) {
			group.Ideas = append(group.Ideas, ideas[idx])
		}
	}
	for _, idx := range data.ThemeIndices {
		if idx >= 0 && idx < len(themes) {
			group.Themes = append(group.Themes, themes[idx])
		}
	}

	if len(group.Insights) == 0 && len(group.Ideas) == 0 {
		return nil
	}

	// The model's execution order replaces citation order when given.
	if len(data.ExecutionOrder) > 0 {
		ordered := make([]store.Idea, 0, len(data.ExecutionOrder))
		for _, idx := range data.ExecutionOrder {
			if idx >= 0 && idx < len(ideas) {
				ordered = append(ordered, ideas[idx])
			}
		}
		group.Ideas = ordered
	}
	return group
}
