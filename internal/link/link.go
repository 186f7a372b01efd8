// Package link infers typed relationships between ideas in a single
// inference call over the whole set. Relationships are create-once;
// re-running never rewrites an existing edge.
package link

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pulsedesk/pulsedesk/internal/analyze"
	"github.com/pulsedesk/pulsedesk/internal/store"
)

const systemPrompt = `You are an expert at identifying relationships between product ideas.
Analyze the ideas and determine how they relate to each other.

Relationship types:
- complementary: Ideas that work well together
- alternative: Different approaches to the same problem
- prerequisite: One idea must be done before another
- conflicts: Ideas that contradict or would interfere with each other
- extends: One idea builds upon another

For each relationship found:
1. Identify the two ideas by their indices (0-based)
2. Classify the relationship type
3. Explain why this relationship exists

Respond in JSON format:
{
  "relationships": [
    {
      "idea_index": 0,
      "related_idea_index": 2,
      "relationship_type": "complementary|alternative|prerequisite|conflicts|extends",
      "explanation": "Why these ideas are related"
    }
  ]
}

Guidelines:
- Only identify meaningful relationships
- Don't force relationships that don't exist
- Prerequisite means idea_index must be done before related_idea_index
- Be specific in explanations`

type response struct {
	Relationships []relationshipData `json:"relationships"`
}

// Index fields are pointers so an absent index is distinguishable
// from a cited index 0.
type relationshipData struct {
	IdeaIndex        *int   `json:"idea_index"`
	RelatedIdeaIndex *int   `json:"related_idea_index"`
	RelationshipType string `json:"relationship_type"`
	Explanation      string `json:"explanation"`
}

// Linker builds the typed idea relationship graph.
type Linker struct {
	store     *store.Store
	analyzer  *analyze.Analyzer
	maxTokens int
	logger    *zap.Logger
}

// Result reports one linking run. Linked counts every resolved
// relationship, existing rows included.
type Result struct {
	Relationships []store.IdeaRelationship
	Linked        int
}

// New creates a Linker. maxTokens <= 0 selects the default of 4096.
func New(st *store.Store, an *analyze.Analyzer, maxTokens int, logger *zap.Logger) *Linker {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linker{store: st, analyzer: an, maxTokens: maxTokens, logger: logger}
}

// Link analyzes the given ideas for pairwise relationships. Fewer than
// two ideas is a no-op. The single unchunked call is a deliberate
// scale limit; callers bound the input via their backlog queries.
func (l *Linker) Link(ctx context.Context, ideas []store.Idea) (*Result, error) {
	result := &Result{}
	if len(ideas) < 2 {
		return result, nil
	}

	var resp response
	if err := l.analyzer.Analyze(ctx, buildPrompt(ideas), systemPrompt, l.maxTokens, &resp); err != nil {
		l.logger.Error("idea linking failed", zap.Error(err))
		return result, nil
	}

	for _, data := range resp.Relationships {
		rel := l.resolveRelationship(ctx, data, ideas)
		if rel == nil {
			continue
		}
		result.Relationships = append(result.Relationships, *rel)
	}

	result.Linked = len(result.Relationships)
	return result, nil
}

func buildPrompt(ideas []store.Idea) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze relationships between the following %d ideas:\n\n", len(ideas))
	for i, idea := range ideas {
		fmt.Fprintf(&sb, "--- Idea #%d ---\n", i)
		fmt.Fprintf(&sb, "Title: %s\n", idea.Title)
		fmt.Fprintf(&sb, "Description: %s\n", idea.Description)
		fmt.Fprintf(&sb, "Type: %s\n", idea.IdeaType)
		fmt.Fprintf(&sb, "Effort: %s\n", idea.EffortEstimate)
		fmt.Fprintf(&sb, "Impact: %s\n\n", idea.ImpactEstimate)
	}
	return sb.String()
}

func (l *Linker) resolveRelationship(ctx context.Context, data relationshipData, ideas []store.Idea) *store.IdeaRelationship {
	if data.IdeaIndex == nil || data.RelatedIdeaIndex == nil {
		return nil
	}
	a, b := *data.IdeaIndex, *data.RelatedIdeaIndex
	if a < 0 || a >= len(ideas) || b < 0 || b >= len(ideas) {
		l.logger.Warn("dropping out-of-range idea index", zap.Int("idea_index", a), zap.Int("related_index", b))
		return nil
	}
	if ideas[a].ID == ideas[b].ID {
		l.logger.Warn("dropping self relationship", zap.Int64("idea_id", ideas[a].ID))
		return nil
	}

	rel, _, err := l.store.LinkIdeas(ctx, ideas[a].ID, ideas[b].ID, data.RelationshipType, data.Explanation)
	if err != nil {
		l.logger.Error("creating idea relationship failed",
			zap.Int64("idea_id", ideas[a].ID), zap.Int64("related_id", ideas[b].ID), zap.Error(err))
		return nil
	}
	return rel
}
