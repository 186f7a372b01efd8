// Package discover turns batches of categorized feedback into
// persisted insights with evidence links back to the source items.
package discover

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pulsedesk/pulsedesk/internal/analyze"
	"github.com/pulsedesk/pulsedesk/internal/store"
)

const systemPrompt = `You are an expert product analyst discovering insights from customer feedback.
Analyze the feedback batch and identify distinct issues, problems, opportunities, or patterns.

For each insight discovered, provide:
1. A clear, actionable title
2. A detailed description explaining the insight
3. The type: problem, opportunity, trend, risk, or user_need
4. Severity: informational, minor, moderate, major, or critical
5. Your confidence score (0-100)
6. Estimated number of affected users based on the feedback
7. Evidence: quotes or references from the feedback that support this insight
8. Which feedback items (by index, 0-based) contributed to this insight

Respond in JSON format:
{
  "insights": [
    {
      "title": "Clear insight title",
      "description": "Detailed explanation of the insight",
      "insight_type": "problem|opportunity|trend|risk|user_need",
      "severity": "informational|minor|moderate|major|critical",
      "confidence_score": 85,
      "affected_users_estimate": 150,
      "evidence": ["Quote 1 from feedback", "Quote 2"],
      "feedback_indices": [0, 2, 5]
    }
  ]
}

Guidelines:
- Group related feedback into single insights rather than creating duplicates
- Be specific and actionable in titles and descriptions
- Higher severity for issues affecting core functionality or many users
- Include direct quotes as evidence when possible`

// BatchSize is the number of feedback items sent per inference call.
const BatchSize = 25

type response struct {
	Insights []insightData `json:"insights"`
}

type insightData struct {
	Title                 string   `json:"title"`
	Description           string   `json:"description"`
	InsightType           string   `json:"insight_type"`
	Severity              string   `json:"severity"`
	ConfidenceScore       int      `json:"confidence_score"`
	AffectedUsersEstimate int      `json:"affected_users_estimate"`
	Evidence              []string `json:"evidence"`
	FeedbackIndices       []int    `json:"feedback_indices"`
}

// Discoverer extracts insights from feedback batches.
type Discoverer struct {
	store     *store.Store
	analyzer  *analyze.Analyzer
	maxTokens int
	batchSize int
	logger    *zap.Logger
}

// Result reports one discovery run.
type Result struct {
	Insights []store.Insight
	Created  int
}

// New creates a Discoverer. maxTokens <= 0 selects the default of 4096.
func New(st *store.Store, an *analyze.Analyzer, maxTokens int, logger *zap.Logger) *Discoverer {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{store: st, analyzer: an, maxTokens: maxTokens, batchSize: BatchSize, logger: logger}
}

// SetBatchSize overrides the per-call batch size. Non-positive values
// are ignored.
func (d *Discoverer) SetBatchSize(n int) {
	if n > 0 {
		d.batchSize = n
	}
}

// Discover runs insight discovery over the given feedback, batch by
// batch. Every input item is stamped insight_processed_at afterwards,
// whether or not it contributed to an insight. A batch that fails is
// logged and skipped; later batches still run.
func (d *Discoverer) Discover(ctx context.Context, feedbacks []store.Feedback) (*Result, error) {
	result := &Result{}
	if len(feedbacks) == 0 {
		return result, nil
	}

	for offset := 0; offset < len(feedbacks); offset += d.batchSize {
		end := offset + d.batchSize
		if end > len(feedbacks) {
			end = len(feedbacks)
		}
		batch := feedbacks[offset:end]

		var resp response
		if err := d.analyzer.Analyze(ctx, buildBatchPrompt(batch, offset), systemPrompt, d.maxTokens, &resp); err != nil {
			d.logger.Error("insight discovery batch failed",
				zap.Int("batch_offset", offset), zap.Error(err))
			continue
		}

		for _, data := range resp.Insights {
			insight, err := d.createInsight(ctx, data)
			if err != nil {
				d.logger.Error("skipping insight", zap.String("title", data.Title), zap.Error(err))
				continue
			}
			d.linkFeedback(ctx, insight, data.FeedbackIndices, feedbacks)
			result.Insights = append(result.Insights, *insight)
		}
	}

	ids := make([]int64, len(feedbacks))
	for i, f := range feedbacks {
		ids[i] = f.ID
	}
	if err := d.store.MarkInsightProcessed(ctx, ids); err != nil {
		return result, fmt.Errorf("stamping processed feedback: %w", err)
	}

	result.Created = len(result.Insights)
	return result, nil
}

func buildBatchPrompt(batch []store.Feedback, offset int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze the following %d feedback items:\n\n", len(batch))
	for i, f := range batch {
		fmt.Fprintf(&sb, "--- Feedback #%d ---\n", offset+i)
		if f.Title != "" {
			fmt.Fprintf(&sb, "Title: %s\n", f.Title)
		}
		fmt.Fprintf(&sb, "Content: %s\n", f.Content)
		fmt.Fprintf(&sb, "Category: %s\n", f.Category)
		fmt.Fprintf(&sb, "Priority: %s\n", f.Priority)
		fmt.Fprintf(&sb, "Source: %s\n", f.Source)
		if f.AuthorName != "" {
			fmt.Fprintf(&sb, "Author: %s\n", f.AuthorName)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (d *Discoverer) createInsight(ctx context.Context, data insightData) (*store.Insight, error) {
	insight := &store.Insight{
		Title:              data.Title,
		Description:        data.Description,
		InsightType:        data.InsightType,
		Severity:           data.Severity,
		ConfidenceScore:    data.ConfidenceScore,
		AffectedUsersCount: data.AffectedUsersEstimate,
		Evidence:           data.Evidence,
		Status:             "discovered",
	}
	if p := d.analyzer.Persona(); p != nil {
		insight.PersonaID = &p.ID
	}
	if err := d.store.CreateInsight(ctx, insight); err != nil {
		return nil, err
	}
	return insight, nil
}

// linkFeedback resolves cited feedback indices against the full input
// slice. Out-of-range indices are dropped; earlier citations score
// higher.
func (d *Discoverer) linkFeedback(ctx context.Context, insight *store.Insight, indices []int, feedbacks []store.Feedback) {
	for pos, idx := range indices {
		if idx < 0 || idx >= len(feedbacks) {
			d.logger.Warn("dropping out-of-range feedback index",
				zap.Int("index", idx), zap.Int64("insight_id", insight.ID))
			continue
		}
		relevance := analyze.Relevance(pos, len(indices))
		if _, _, err := d.store.LinkFeedbackInsight(ctx, feedbacks[idx].ID, insight.ID, relevance); err != nil {
			d.logger.Error("linking feedback to insight failed",
				zap.Int64("feedback_id", feedbacks[idx].ID), zap.Error(err))
		}
	}
	if err := d.store.RecomputeInsightFeedbackCount(ctx, insight.ID); err != nil {
		d.logger.Error("recomputing feedback count failed", zap.Int64("insight_id", insight.ID), zap.Error(err))
	}
}
