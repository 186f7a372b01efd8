// Package idea proposes solution ideas for insights, one inference
// call per insight, and links each idea back with an address level
// derived from its impact estimate.
package idea

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pulsedesk/pulsedesk/internal/analyze"
	"github.com/pulsedesk/pulsedesk/internal/store"
)

const systemPrompt = `You are an expert product strategist generating solution ideas for identified insights.
For each insight, propose actionable ideas that could address the underlying issue or opportunity.

For each idea:
1. Create a clear, actionable title
2. Write a detailed description of the proposed solution
3. Classify the type: quick_win, feature, improvement, process_change, or investigation
4. Estimate effort: trivial, small, medium, large, or extra_large
5. Estimate impact: minimal, low, moderate, high, or transformational
6. Provide your confidence score (0-100)
7. Explain the rationale for this idea
8. List potential risks or considerations
9. Provide implementation hints or first steps

Respond in JSON format:
{
  "ideas": [
    {
      "title": "Clear idea title",
      "description": "Detailed solution description",
      "idea_type": "quick_win|feature|improvement|process_change|investigation",
      "effort_estimate": "trivial|small|medium|large|extra_large",
      "impact_estimate": "minimal|low|moderate|high|transformational",
      "confidence_score": 75,
      "rationale": "Why this solution makes sense",
      "risks": "Potential risks or considerations",
      "implementation_hints": ["First step", "Second step"]
    }
  ]
}

Guidelines:
- Generate 1-3 ideas per insight
- Prioritize ideas with high impact and low effort (quick wins)
- Be specific and actionable
- Consider both technical and process solutions
- Include at least one quick win if applicable`

type response struct {
	Ideas []ideaData `json:"ideas"`
}

type ideaData struct {
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	IdeaType            string   `json:"idea_type"`
	EffortEstimate      string   `json:"effort_estimate"`
	ImpactEstimate      string   `json:"impact_estimate"`
	ConfidenceScore     int      `json:"confidence_score"`
	Rationale           string   `json:"rationale"`
	Risks               string   `json:"risks"`
	ImplementationHints []string `json:"implementation_hints"`
}

// Generator proposes ideas for insights.
type Generator struct {
	store     *store.Store
	analyzer  *analyze.Analyzer
	maxTokens int
	logger    *zap.Logger
}

// Result reports one idea generation run.
type Result struct {
	Ideas   []store.Idea
	Created int
}

// New creates a Generator. maxTokens <= 0 selects the default of 4096.
func New(st *store.Store, an *analyze.Analyzer, maxTokens int, logger *zap.Logger) *Generator {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{store: st, analyzer: an, maxTokens: maxTokens, logger: logger}
}

// Generate proposes ideas for a single insight.
func (g *Generator) Generate(ctx context.Context, insight *store.Insight) (*Result, error) {
	result := &Result{}

	var resp response
	if err := g.analyzer.Analyze(ctx, buildPrompt(insight), systemPrompt, g.maxTokens, &resp); err != nil {
		g.logger.Error("idea generation failed", zap.Int64("insight_id", insight.ID), zap.Error(err))
		return result, nil
	}

	for _, data := range resp.Ideas {
		idea, err := g.createIdea(ctx, data)
		if err != nil {
			g.logger.Error("skipping idea", zap.String("title", data.Title), zap.Error(err))
			continue
		}
		level := addressLevel(idea)
		desc := fmt.Sprintf("Generated solution for %s", insight.Title)
		if _, _, err := g.store.LinkIdeaInsight(ctx, idea.ID, insight.ID, level, desc); err != nil {
			g.logger.Error("linking idea to insight failed", zap.Int64("idea_id", idea.ID), zap.Error(err))
		}
		result.Ideas = append(result.Ideas, *idea)
	}

	result.Created = len(result.Ideas)
	return result, nil
}

// GenerateBatch runs Generate sequentially over many insights. A
// failed insight contributes zero ideas; the batch continues.
func (g *Generator) GenerateBatch(ctx context.Context, insights []store.Insight) (*Result, error) {
	result := &Result{}
	for i := range insights {
		one, err := g.Generate(ctx, &insights[i])
		if err != nil {
			return result, err
		}
		result.Ideas = append(result.Ideas, one.Ideas...)
	}
	result.Created = len(result.Ideas)
	return result, nil
}

func buildPrompt(insight *store.Insight) string {
	var sb strings.Builder
	sb.WriteString("Generate solution ideas for the following insight:\n\n")
	fmt.Fprintf(&sb, "Title: %s\n", insight.Title)
	fmt.Fprintf(&sb, "Description: %s\n", insight.Description)
	fmt.Fprintf(&sb, "Type: %s\n", insight.InsightType)
	fmt.Fprintf(&sb, "Severity: %s\n", insight.Severity)
	fmt.Fprintf(&sb, "Affected Users: %d\n", insight.AffectedUsersCount)
	fmt.Fprintf(&sb, "Feedback Count: %d\n", insight.FeedbackCount)
	if len(insight.Evidence) > 0 {
		sb.WriteString("\nSupporting Evidence:\n")
		for _, e := range insight.Evidence {
			fmt.Fprintf(&sb, "- %s\n", e)
		}
	}
	return sb.String()
}

func (g *Generator) createIdea(ctx context.Context, data ideaData) (*store.Idea, error) {
	idea := &store.Idea{
		Title:               data.Title,
		Description:         data.Description,
		IdeaType:            data.IdeaType,
		EffortEstimate:      data.EffortEstimate,
		ImpactEstimate:      data.ImpactEstimate,
		ConfidenceScore:     data.ConfidenceScore,
		Rationale:           data.Rationale,
		Risks:               data.Risks,
		ImplementationHints: data.ImplementationHints,
		Status:              "proposed",
	}
	if p := g.analyzer.Persona(); p != nil {
		idea.PersonaID = &p.ID
	}
	if err := g.store.CreateIdea(ctx, idea); err != nil {
		return nil, err
	}
	return idea, nil
}

// addressLevel maps the idea's impact ordinal onto how fully it
// addresses the insight: 4 and 3 map straight through, 2 stays 2,
// anything lower is 1.
func addressLevel(idea *store.Idea) int {
	switch store.ImpactOrdinal(idea.ImpactEstimate) {
	case 4:
		return 4
	case 3:
		return 3
	case 2:
		return 2
	default:
		return 1
	}
}
