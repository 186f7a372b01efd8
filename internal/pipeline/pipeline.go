// Package pipeline sequences the analysis stages: discovery, themes,
// ideas, stakeholders, idea linking. It is the only component that
// knows stage order; each stage stays independently runnable.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsedesk/pulsedesk/internal/analyze"
	"github.com/pulsedesk/pulsedesk/internal/attack"
	"github.com/pulsedesk/pulsedesk/internal/config"
	"github.com/pulsedesk/pulsedesk/internal/discover"
	"github.com/pulsedesk/pulsedesk/internal/idea"
	"github.com/pulsedesk/pulsedesk/internal/link"
	"github.com/pulsedesk/pulsedesk/internal/stakeholder"
	"github.com/pulsedesk/pulsedesk/internal/store"
	"github.com/pulsedesk/pulsedesk/internal/theme"
)

// backlogLimit caps how many entities a standalone stage pulls when
// given no explicit input.
const backlogLimit = 200

// Counts aggregates what one full run created.
type Counts struct {
	FeedbacksAnalyzed      int
	InsightsCreated        int
	ThemesCreated          int
	IdeasCreated           int
	StakeholdersIdentified int
	RelationshipsLinked    int
}

// Pipeline wires the stages together over one store and analyzer.
type Pipeline struct {
	store        *store.Store
	analyzer     *analyze.Analyzer
	discoverer   *discover.Discoverer
	themes       *theme.Identifier
	ideas        *idea.Generator
	stakeholders *stakeholder.Identifier
	linker       *link.Linker
	attacks      *attack.Builder
	batchLimit   int
	linkWindow   time.Duration
	logger       *zap.Logger
}

// New creates a Pipeline from config.
func New(st *store.Store, an *analyze.Analyzer, cfg *config.Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxTokens := cfg.Analysis.MaxTokens
	batchLimit := cfg.Pipeline.FeedbackBatchLimit
	if batchLimit <= 0 {
		batchLimit = 100
	}
	window := time.Duration(cfg.Pipeline.LinkWindowHours) * time.Hour
	if window <= 0 {
		window = 24 * time.Hour
	}
	discoverer := discover.New(st, an, maxTokens, logger.Named("discover"))
	discoverer.SetBatchSize(cfg.Pipeline.DiscoveryBatchSize)
	return &Pipeline{
		store:        st,
		analyzer:     an,
		discoverer:   discoverer,
		themes:       theme.New(st, an, maxTokens, logger.Named("theme")),
		ideas:        idea.New(st, an, maxTokens, logger.Named("idea")),
		stakeholders: stakeholder.New(st, an, maxTokens, logger.Named("stakeholder")),
		linker:       link.New(st, an, maxTokens, logger.Named("link")),
		attacks:      attack.New(an, 0, logger.Named("attack")),
		batchLimit:   batchLimit,
		linkWindow:   window,
		logger:       logger,
	}
}

// ResolvePersona loads the active persona into the analyzer when none
// is set yet.
func (p *Pipeline) ResolvePersona(ctx context.Context) error {
	if p.analyzer.Persona() != nil {
		return nil
	}
	persona, err := p.store.ActivePersona(ctx)
	if err != nil {
		return err
	}
	if persona != nil {
		p.logger.Info("using persona", zap.String("archetype", persona.Archetype))
		p.analyzer.SetPersona(persona)
	}
	return nil
}

// Run executes the full pipeline over the given feedback. A nil slice
// selects the default backlog of categorized, unconsumed feedback.
// Empty input returns zero counts without any inference call. A stage
// failure leaves its count at zero; later stages still run, except
// that zero discovered insights skips everything downstream.
func (p *Pipeline) Run(ctx context.Context, feedbacks []store.Feedback) (*Counts, error) {
	started := time.Now().UTC()

	if feedbacks == nil {
		var err error
		feedbacks, err = p.store.ReadyForInsights(ctx, p.batchLimit)
		if err != nil {
			return nil, fmt.Errorf("loading feedback backlog: %w", err)
		}
	}

	counts := &Counts{}
	if len(feedbacks) == 0 {
		return counts, nil
	}
	counts.FeedbacksAnalyzed = len(feedbacks)
	p.logger.Info("starting insights pipeline", zap.Int("feedbacks", len(feedbacks)))

	discovery, err := p.discoverer.Discover(ctx, feedbacks)
	if err != nil {
		p.logger.Error("insight discovery failed", zap.Error(err))
		return counts, nil
	}
	counts.InsightsCreated = discovery.Created
	if discovery.Created == 0 {
		return counts, nil
	}
	insights := discovery.Insights

	if result, err := p.themes.Identify(ctx, insights); err != nil {
		p.logger.Error("theme identification failed", zap.Error(err))
	} else {
		counts.ThemesCreated = result.Created
	}

	if result, err := p.ideas.GenerateBatch(ctx, insights); err != nil {
		p.logger.Error("idea generation failed", zap.Error(err))
	} else {
		counts.IdeasCreated = result.Created
	}

	if result, err := p.stakeholders.IdentifyBatch(ctx, insights); err != nil {
		p.logger.Error("stakeholder identification failed", zap.Error(err))
	} else {
		counts.StakeholdersIdentified = result.Identified
	}

	p.linkRecentIdeas(ctx, counts)

	p.logger.Info("insights pipeline completed",
		zap.Int("insights", counts.InsightsCreated),
		zap.Int("themes", counts.ThemesCreated),
		zap.Int("ideas", counts.IdeasCreated),
		zap.Int("stakeholders", counts.StakeholdersIdentified),
		zap.Int("relationships", counts.RelationshipsLinked))

	p.saveRunReport(ctx, started, counts)
	return counts, nil
}

// linkRecentIdeas links ideas created inside the trailing window, not
// the whole backlog, to bound the call size.
func (p *Pipeline) linkRecentIdeas(ctx context.Context, counts *Counts) {
	cutoff := time.Now().UTC().Add(-p.linkWindow)
	ideas, err := p.store.IdeasCreatedSince(ctx, cutoff)
	if err != nil {
		p.logger.Error("loading recent ideas failed", zap.Error(err))
		return
	}
	result, err := p.linker.Link(ctx, ideas)
	if err != nil {
		p.logger.Error("idea linking failed", zap.Error(err))
		return
	}
	counts.RelationshipsLinked = result.Linked
}

func (p *Pipeline) saveRunReport(ctx context.Context, started time.Time, counts *Counts) {
	report := &store.RunReport{
		ID:                     uuid.NewString(),
		StartedAt:              started,
		FinishedAt:             time.Now().UTC(),
		FeedbacksAnalyzed:      counts.FeedbacksAnalyzed,
		InsightsCreated:        counts.InsightsCreated,
		ThemesCreated:          counts.ThemesCreated,
		IdeasCreated:           counts.IdeasCreated,
		StakeholdersIdentified: counts.StakeholdersIdentified,
		RelationshipsLinked:    counts.RelationshipsLinked,
	}
	if err := p.store.SaveRunReport(ctx, report); err != nil {
		p.logger.Error("saving run report failed", zap.Error(err))
	}
}

// RunDiscovery runs insight discovery alone. A nil slice selects the
// default feedback backlog.
func (p *Pipeline) RunDiscovery(ctx context.Context, feedbacks []store.Feedback) (*discover.Result, error) {
	if feedbacks == nil {
		var err error
		feedbacks, err = p.store.ReadyForInsights(ctx, p.batchLimit)
		if err != nil {
			return nil, fmt.Errorf("loading feedback backlog: %w", err)
		}
	}
	return p.discoverer.Discover(ctx, feedbacks)
}

// RunThemeAnalysis runs theme identification alone. A nil slice
// selects the actionable insight backlog.
func (p *Pipeline) RunThemeAnalysis(ctx context.Context, insights []store.Insight) (*theme.Result, error) {
	if insights == nil {
		var err error
		insights, err = p.store.ActionableInsights(ctx, backlogLimit)
		if err != nil {
			return nil, fmt.Errorf("loading actionable insights: %w", err)
		}
	}
	return p.themes.Identify(ctx, insights)
}

// RunIdeaGeneration runs idea generation alone. A nil slice selects
// actionable insights that no idea addresses yet.
func (p *Pipeline) RunIdeaGeneration(ctx context.Context, insights []store.Insight) (*idea.Result, error) {
	if insights == nil {
		var err error
		insights, err = p.store.InsightsWithoutIdeas(ctx, backlogLimit)
		if err != nil {
			return nil, fmt.Errorf("loading uncovered insights: %w", err)
		}
	}
	return p.ideas.GenerateBatch(ctx, insights)
}

// RunStakeholderIdentification runs stakeholder identification alone.
// A nil slice selects the actionable insight backlog.
func (p *Pipeline) RunStakeholderIdentification(ctx context.Context, insights []store.Insight) (*stakeholder.Result, error) {
	if insights == nil {
		var err error
		insights, err = p.store.ActionableInsights(ctx, backlogLimit)
		if err != nil {
			return nil, fmt.Errorf("loading actionable insights: %w", err)
		}
	}
	return p.stakeholders.IdentifyBatch(ctx, insights)
}

// RunIdeaLinking runs relationship inference alone. A nil slice
// selects the actionable idea backlog.
func (p *Pipeline) RunIdeaLinking(ctx context.Context, ideas []store.Idea) (*link.Result, error) {
	if ideas == nil {
		var err error
		ideas, err = p.store.ActionableIdeas(ctx, backlogLimit)
		if err != nil {
			return nil, fmt.Errorf("loading actionable ideas: %w", err)
		}
	}
	return p.linker.Link(ctx, ideas)
}

// BuildAttackGroups synthesizes coordinated execution bundles. Nil
// slices select the actionable backlog and themes by priority.
func (p *Pipeline) BuildAttackGroups(ctx context.Context, insights []store.Insight, ideas []store.Idea, themes []store.Theme) (*attack.Result, error) {
	var err error
	if insights == nil {
		if insights, err = p.store.ActionableInsights(ctx, backlogLimit); err != nil {
			return nil, fmt.Errorf("loading actionable insights: %w", err)
		}
	}
	if ideas == nil {
		if ideas, err = p.store.ActionableIdeas(ctx, backlogLimit); err != nil {
			return nil, fmt.Errorf("loading actionable ideas: %w", err)
		}
	}
	if themes == nil {
		if themes, err = p.store.ThemesByPriority(ctx, 0); err != nil {
			return nil, fmt.Errorf("loading themes: %w", err)
		}
	}
	return p.attacks.Build(ctx, insights, ideas, themes)
}

// MaintainThemes recomputes cached counts and priority scores for
// every theme from its live joins.
func (p *Pipeline) MaintainThemes(ctx context.Context) error {
	themes, err := p.store.ListThemes(ctx)
	if err != nil {
		return fmt.Errorf("loading themes: %w", err)
	}
	for _, t := range themes {
		if err := p.store.RecomputeThemeInsightCount(ctx, t.ID); err != nil {
			return err
		}
		if err := p.store.RecomputeThemePriority(ctx, t.ID); err != nil {
			return err
		}
	}
	return nil
}
