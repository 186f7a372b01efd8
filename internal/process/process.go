// Package process categorizes raw feedback before the insight
// pipeline runs. Each item gets a category, priority, summary, and
// confidence from one inference call. Failures still stamp the item
// so it is not retried forever.
package process

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pulsedesk/pulsedesk/internal/analyze"
	"github.com/pulsedesk/pulsedesk/internal/store"
)

const systemPrompt = `You are an AI assistant that analyzes customer feedback. For each feedback item, you must:
1. Categorize it as one of: bug, feature_request, complaint, or uncategorized
2. Assign a priority: p1 (critical/urgent), p2 (high), p3 (medium), p4 (low)
3. Provide a brief 1-2 sentence summary
4. Rate your confidence from 0.0 to 1.0

Respond in JSON format only:
{
  "category": "bug|feature_request|complaint|uncategorized",
  "priority": "p1|p2|p3|p4",
  "summary": "Brief summary here",
  "confidence": 0.85
}

Priority Guidelines:
- P1: System down, security issues, data loss, blocking many users
- P2: Major functionality broken, significant user impact
- P3: Minor bugs, usability issues, non-critical features
- P4: Nice-to-haves, minor improvements, cosmetic issues`

// maxTokens is small: the response is a four-field JSON object.
const maxTokens = 500

type response struct {
	Category   string  `json:"category"`
	Priority   string  `json:"priority"`
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
}

// Processor categorizes feedback items.
type Processor struct {
	store    *store.Store
	analyzer *analyze.Analyzer
	logger   *zap.Logger
}

// Result reports one categorization batch.
type Result struct {
	Processed int
	Failed    int
}

// New creates a Processor.
func New(st *store.Store, an *analyze.Analyzer, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{store: st, analyzer: an, logger: logger}
}

// Process categorizes a single feedback item. Already-processed items
// are skipped. On analysis failure the item is stamped uncategorized
// with a failure summary so later runs move past it.
func (p *Processor) Process(ctx context.Context, f *store.Feedback) error {
	if f.AIProcessedAt != nil {
		return nil
	}

	var resp response
	if err := p.analyzer.Analyze(ctx, buildPrompt(f), systemPrompt, maxTokens, &resp); err != nil {
		p.logger.Error("feedback categorization failed", zap.Int64("feedback_id", f.ID), zap.Error(err))
		failure := fmt.Sprintf("AI processing failed: %v", err)
		if uerr := p.store.UpdateFeedbackAnalysis(ctx, f.ID, "uncategorized", "unset", failure, 0); uerr != nil {
			return fmt.Errorf("stamping failed feedback %d: %w", f.ID, uerr)
		}
		return err
	}

	if !store.ValidEnum(resp.Category, store.FeedbackCategories) {
		resp.Category = "uncategorized"
	}
	if !store.ValidEnum(resp.Priority, store.FeedbackPriorities) {
		resp.Priority = "unset"
	}
	return p.store.UpdateFeedbackAnalysis(ctx, f.ID, resp.Category, resp.Priority, resp.Summary, resp.Confidence)
}

// ProcessBatch categorizes many items sequentially. Individual
// failures are counted, not fatal.
func (p *Processor) ProcessBatch(ctx context.Context, feedbacks []store.Feedback) (*Result, error) {
	result := &Result{}
	for i := range feedbacks {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := p.Process(ctx, &feedbacks[i]); err != nil {
			result.Failed++
			continue
		}
		result.Processed++
	}
	return result, nil
}

func buildPrompt(f *store.Feedback) string {
	var parts []string
	if f.Title != "" {
		parts = append(parts, fmt.Sprintf("Title: %s", f.Title))
	}
	parts = append(parts, fmt.Sprintf("Content: %s", f.Content))
	parts = append(parts, fmt.Sprintf("Source: %s", f.Source))
	if f.AuthorName != "" {
		parts = append(parts, fmt.Sprintf("Author: %s", f.AuthorName))
	}
	return strings.Join(parts, "\n\n")
}
