package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Link operations are idempotent. Each inserts with ON CONFLICT DO
// NOTHING against the pair's unique index and reads the row back, so
// re-linking an existing pair returns it unchanged.

// LinkFeedbackInsight links a feedback item to an insight. Returns the
// link and whether it was newly created.
func (s *Store) LinkFeedbackInsight(ctx context.Context, feedbackID, insightID int64, relevance float64) (*FeedbackInsight, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_insights (feedback_id, insight_id, relevance_score, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(feedback_id, insight_id) DO NOTHING`,
		feedbackID, insightID, relevance, time.Now().UTC())
	if err != nil {
		return nil, false, fmt.Errorf("link feedback %d to insight %d: %w", feedbackID, insightID, err)
	}
	affected, _ := res.RowsAffected()

	var link FeedbackInsight
	err = s.db.GetContext(ctx, &link, `
		SELECT * FROM feedback_insights WHERE feedback_id = ? AND insight_id = ?`,
		feedbackID, insightID)
	if err != nil {
		return nil, false, fmt.Errorf("read feedback insight link: %w", err)
	}
	return &link, affected > 0, nil
}

// LinkInsightTheme links an insight to a theme.
func (s *Store) LinkInsightTheme(ctx context.Context, insightID, themeID int64, relevance float64) (*InsightTheme, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO insight_themes (insight_id, theme_id, relevance_score, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(insight_id, theme_id) DO NOTHING`,
		insightID, themeID, relevance, time.Now().UTC())
	if err != nil {
		return nil, false, fmt.Errorf("link insight %d to theme %d: %w", insightID, themeID, err)
	}
	affected, _ := res.RowsAffected()

	var link InsightTheme
	err = s.db.GetContext(ctx, &link, `
		SELECT * FROM insight_themes WHERE insight_id = ? AND theme_id = ?`,
		insightID, themeID)
	if err != nil {
		return nil, false, fmt.Errorf("read insight theme link: %w", err)
	}
	return &link, affected > 0, nil
}

// LinkIdeaInsight links an idea to an insight it addresses.
func (s *Store) LinkIdeaInsight(ctx context.Context, ideaID, insightID int64, addressLevel int, description string) (*IdeaInsight, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO idea_insights (idea_id, insight_id, address_level, address_description, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(idea_id, insight_id) DO NOTHING`,
		ideaID, insightID, addressLevel, description, time.Now().UTC())
	if err != nil {
		return nil, false, fmt.Errorf("link idea %d to insight %d: %w", ideaID, insightID, err)
	}
	affected, _ := res.RowsAffected()

	var link IdeaInsight
	err = s.db.GetContext(ctx, &link, `
		SELECT * FROM idea_insights WHERE idea_id = ? AND insight_id = ?`,
		ideaID, insightID)
	if err != nil {
		return nil, false, fmt.Errorf("read idea insight link: %w", err)
	}
	return &link, affected > 0, nil
}

// LinkInsightStakeholder links an insight to an affected segment.
func (s *Store) LinkInsightStakeholder(ctx context.Context, insightID, segmentID int64, impactLevel int, description string) (*InsightStakeholder, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO insight_stakeholders (insight_id, segment_id, impact_level, impact_description, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(insight_id, segment_id) DO NOTHING`,
		insightID, segmentID, impactLevel, description, time.Now().UTC())
	if err != nil {
		return nil, false, fmt.Errorf("link insight %d to segment %d: %w", insightID, segmentID, err)
	}
	affected, _ := res.RowsAffected()

	var link InsightStakeholder
	err = s.db.GetContext(ctx, &link, `
		SELECT * FROM insight_stakeholders WHERE insight_id = ? AND segment_id = ?`,
		insightID, segmentID)
	if err != nil {
		return nil, false, fmt.Errorf("read insight stakeholder link: %w", err)
	}
	return &link, affected > 0, nil
}

// LinkIdeas records a typed relationship between two ideas. Self-pairs
// are rejected. If a relationship already exists for the ordered pair
// it is returned unchanged, regardless of type.
func (s *Store) LinkIdeas(ctx context.Context, ideaID, relatedID int64, relType, explanation string) (*IdeaRelationship, bool, error) {
	if ideaID == relatedID {
		return nil, false, fmt.Errorf("idea %d cannot relate to itself", ideaID)
	}
	if !ValidEnum(relType, RelationshipTypes) {
		return nil, false, fmt.Errorf("invalid relationship type %q", relType)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO idea_relationships (idea_id, related_idea_id, relationship_type, explanation, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(idea_id, related_idea_id) DO NOTHING`,
		ideaID, relatedID, relType, explanation, time.Now().UTC())
	if err != nil {
		return nil, false, fmt.Errorf("link idea %d to idea %d: %w", ideaID, relatedID, err)
	}
	affected, _ := res.RowsAffected()

	link, err := s.GetIdeaRelationship(ctx, ideaID, relatedID)
	if err != nil {
		return nil, false, err
	}
	if link == nil {
		return nil, false, fmt.Errorf("idea relationship %d->%d missing after insert", ideaID, relatedID)
	}
	return link, affected > 0, nil
}

// GetIdeaRelationship returns the relationship for an ordered idea
// pair, or nil if none exists.
func (s *Store) GetIdeaRelationship(ctx context.Context, ideaID, relatedID int64) (*IdeaRelationship, error) {
	var link IdeaRelationship
	err := s.db.GetContext(ctx, &link, `
		SELECT * FROM idea_relationships WHERE idea_id = ? AND related_idea_id = ?`,
		ideaID, relatedID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idea relationship %d->%d: %w", ideaID, relatedID, err)
	}
	return &link, nil
}

// RelationshipsForIdea returns every relationship touching an idea, in
// either direction.
func (s *Store) RelationshipsForIdea(ctx context.Context, ideaID int64) ([]IdeaRelationship, error) {
	var items []IdeaRelationship
	err := s.db.SelectContext(ctx, &items, `
		SELECT * FROM idea_relationships
		WHERE idea_id = ? OR related_idea_id = ?
		ORDER BY created_at, id`, ideaID, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list relationships for idea %d: %w", ideaID, err)
	}
	return items, nil
}
