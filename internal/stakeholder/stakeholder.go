// Package stakeholder derives the segments affected by each insight,
// deduplicating by case-insensitive name and merging estimates
// monotonically.
package stakeholder

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pulsedesk/pulsedesk/internal/analyze"
	"github.com/pulsedesk/pulsedesk/internal/store"
)

const systemPrompt = `You are an expert at identifying stakeholders affected by product insights.
Analyze the insight and determine which user segments, teams, or groups
should be engaged or considered.

For each stakeholder segment:
1. Create a clear name for the segment
2. Classify the type: user_segment, internal_team, customer_tier, use_case_group, or geographic_region
3. Write a description of this stakeholder group
4. Estimate the size of this segment
5. Rate engagement priority (0-5, where 5 is critical)
6. Suggest an engagement strategy
7. List characteristics that define this segment

Respond in JSON format:
{
  "stakeholders": [
    {
      "name": "Segment name",
      "segment_type": "user_segment|internal_team|customer_tier|use_case_group|geographic_region",
      "description": "Who this segment is",
      "size_estimate": 500,
      "engagement_priority": 4,
      "engagement_strategy": "How to engage this group",
      "characteristics": ["Characteristic 1", "Characteristic 2"],
      "impact_level": 3,
      "impact_description": "How this insight affects them"
    }
  ]
}

Guidelines:
- Identify 2-5 relevant stakeholder segments
- Include both internal teams (engineering, support, sales) and user segments
- Higher priority for segments most affected by the insight
- Be specific about engagement strategies`

type response struct {
	Stakeholders []stakeholderData `json:"stakeholders"`
}

type stakeholderData struct {
	Name               string   `json:"name"`
	SegmentType        string   `json:"segment_type"`
	Description        string   `json:"description"`
	SizeEstimate       int      `json:"size_estimate"`
	EngagementPriority int      `json:"engagement_priority"`
	EngagementStrategy string   `json:"engagement_strategy"`
	Characteristics    []string `json:"characteristics"`
	ImpactLevel        int      `json:"impact_level"`
	ImpactDescription  string   `json:"impact_description"`
}

// Identifier derives affected stakeholder segments per insight.
type Identifier struct {
	store     *store.Store
	analyzer  *analyze.Analyzer
	maxTokens int
	logger    *zap.Logger
}

// Result reports one stakeholder identification run. Segments holds
// the deduplicated segment set; Identified counts every returned
// stakeholder, including repeats merged across insights.
type Result struct {
	Segments   []store.StakeholderSegment
	Identified int
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

// sampleFeedbackLimit caps how many linked feedback items the prompt
// cites as sources.
const sampleFeedbackLimit = 5

// Identify derives stakeholder segments for a single insight.
func (id *Identifier) Identify(ctx context.Context, insight *store.Insight) (*Result, error) {
	result := &Result{}

	samples, err := id.store.FeedbacksForInsight(ctx, insight.ID, sampleFeedbackLimit)
	if err != nil {
		id.logger.Warn("loading sample feedback failed", zap.Int64("insight_id", insight.ID), zap.Error(err))
	}

	var resp response
	if err := id.analyzer.Analyze(ctx, buildPrompt(insight, samples), systemPrompt, id.maxTokens, &resp); err != nil {
		id.logger.Error("stakeholder identification failed", zap.Int64("insight_id", insight.ID), zap.Error(err))
		return result, nil
	}

	for _, data := range resp.Stakeholders {
		seg, err := id.findOrCreateSegment(ctx, data)
		if err != nil {
			id.logger.Error("skipping stakeholder", zap.String("name", data.Name), zap.Error(err))
			continue
		}
		if _, _, err := id.store.LinkInsightStakeholder(ctx, insight.ID, seg.ID, data.ImpactLevel, data.ImpactDescription); err != nil {
			id.logger.Error("linking stakeholder to insight failed", zap.Int64("segment_id", seg.ID), zap.Error(err))
		}
		result.Segments = append(result.Segments, *seg)
		result.Identified++
	}
	return result, nil
}

// IdentifyBatch runs Identify sequentially over many insights. The
// returned segment list is deduplicated by ID; Identified still
// counts every citation.
func (id *Identifier) IdentifyBatch(ctx context.Context, insights []store.Insight) (*Result, error) {
	result := &Result{}
	seen := make(map[int64]bool)
	for i := range insights {
		one, err := id.Identify(ctx, &insights[i])
		if err != nil {
			return result, err
		}
		result.Identified += one.Identified
		for _, seg := range one.Segments {
			if seen[seg.ID] {
				continue
			}
			seen[seg.ID] = true
			result.Segments = append(result.Segments, seg)
		}
	}
	return result, nil
}

func buildPrompt(insight *store.Insight, samples []store.Feedback) string {
	var sb strings.Builder
	sb.WriteString("Identify stakeholders for the following insight:\n\n")
	fmt.Fprintf(&sb, "Title: %s\n", insight.Title)
	fmt.Fprintf(&sb, "Description: %s\n", insight.Description)
	fmt.Fprintf(&sb, "Type: %s\n", insight.InsightType)
	fmt.Fprintf(&sb, "Severity: %s\n", insight.Severity)
	fmt.Fprintf(&sb, "Affected Users: %d\n", insight.AffectedUsersCount)
	if len(samples) > 0 {
		sb.WriteString("\nSample Feedback Sources:\n")
		for _, f := range samples {
			author := f.AuthorName
			if author == "" {
				author = "Anonymous"
			}
			fmt.Fprintf(&sb, "- %s: %s\n", f.Source, author)
		}
	}
	return sb.String()
}

func (id *Identifier) findOrCreateSegment(ctx context.Context, data stakeholderData) (*store.StakeholderSegment, error) {
	existing, err := id.store.SegmentByName(ctx, data.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := id.store.MergeSegment(ctx, existing.ID, data.SizeEstimate, data.EngagementPriority); err != nil {
			return nil, err
		}
		return id.store.SegmentByName(ctx, data.Name)
	}

	seg := &store.StakeholderSegment{
		Name:               data.Name,
		SegmentType:        data.SegmentType,
		Description:        data.Description,
		SizeEstimate:       data.SizeEstimate,
		EngagementPriority: data.EngagementPriority,
		EngagementStrategy: data.EngagementStrategy,
		Characteristics:    data.Characteristics,
	}
	if err := id.store.CreateSegment(ctx, seg); err != nil {
		return nil, err
	}
	return seg, nil
}
