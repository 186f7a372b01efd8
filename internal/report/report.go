// Package report composes periodic pulse reports: a markdown digest
// of feedback activity for a time window, stored for the web UI.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulsedesk/pulsedesk/internal/llm"
	"github.com/pulsedesk/pulsedesk/internal/store"
)

// trendsMinFeedback is the minimum item count before a trends
// paragraph is requested from the model.
const trendsMinFeedback = 5

// trendsSampleLimit caps how many items feed the trends prompt.
const trendsSampleLimit = 20

// Generator builds pulse reports.
type Generator struct {
	store    *store.Store
	provider llm.Provider
	logger   *zap.Logger
}

// New creates a Generator. The provider may be nil; trends are then
// skipped.
func New(st *store.Store, provider llm.Provider, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{store: st, provider: provider, logger: logger}
}

// Generate composes and stores a pulse report for [start, end).
func (g *Generator) Generate(ctx context.Context, start, end time.Time) (*store.PulseReport, error) {
	feedbacks, err := g.store.FeedbackInPeriod(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("loading period feedback: %w", err)
	}

	report := &store.PulseReport{
		PeriodStart:   start,
		PeriodEnd:     end,
		FeedbackCount: len(feedbacks),
		Summary:       g.summarize(ctx, feedbacks, start, end),
	}
	if err := g.store.SavePulseReport(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (g *Generator) summarize(ctx context.Context, feedbacks []store.Feedback, start, end time.Time) string {
	var sb strings.Builder
	sb.WriteString("# Feedback Pulse\n\n")
	fmt.Fprintf(&sb, "**Period:** %s to %s\n\n",
		start.Format("2006-01-02 15:04"), end.Format("2006-01-02 15:04"))

	if len(feedbacks) == 0 {
		sb.WriteString("No feedback received during this period.\n")
		return sb.String()
	}

	byCategory := make(map[string]int)
	byPriority := make(map[string]int)
	bySource := make(map[string]int)
	for _, f := range feedbacks {
		byCategory[f.Category]++
		byPriority[f.Priority]++
		bySource[f.Source]++
	}

	fmt.Fprintf(&sb, "Total feedback items: %d\n\n", len(feedbacks))

	p1, p2 := byPriority["p1"], byPriority["p2"]
	if p1 > 0 || p2 > 0 {
		fmt.Fprintf(&sb, "**High priority items: %d** (%d critical, %d high)\n\n", p1+p2, p1, p2)
	}

	writeCounts(&sb, "By category", byCategory, "")
	writeCounts(&sb, "By source", bySource, "from ")

	if len(feedbacks) >= trendsMinFeedback {
		if trends := g.trends(ctx, feedbacks); trends != "" {
			fmt.Fprintf(&sb, "## Trends\n\n%s\n", trends)
		}
	}
	return sb.String()
}

func writeCounts(sb *strings.Builder, heading string, counts map[string]int, prefix string) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(sb, "## %s\n\n", heading)
	for _, k := range keys {
		fmt.Fprintf(sb, "- %d %s%s\n", counts[k], prefix, k)
	}
	sb.WriteString("\n")
}

// trends asks the model for a short pattern summary over a sample of
// the period's feedback. Any failure just drops the section.
func (g *Generator) trends(ctx context.Context, feedbacks []store.Feedback) string {
	if g.provider == nil {
		return ""
	}

	sample := feedbacks
	if len(sample) > trendsSampleLimit {
		sample = sample[:trendsSampleLimit]
	}
	contents := make([]string, 0, len(sample))
	for _, f := range sample {
		contents = append(contents, f.Content)
	}

	prompt := "Identify 2-3 common themes or patterns in this customer feedback. Be concise (1-2 sentences):\n\n" +
		strings.Join(contents, "\n---\n")
	text, err := g.provider.Generate(ctx, prompt, "", 300)
	if err != nil {
		g.logger.Error("trends summary failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(text)
}
