package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CreateIdea validates and inserts a new idea.
func (s *Store) CreateIdea(ctx context.Context, idea *Idea) error {
	if idea.Title == "" {
		return errors.New("idea title is required")
	}
	if !ValidEnum(idea.IdeaType, IdeaTypes) {
		return fmt.Errorf("invalid idea type %q", idea.IdeaType)
	}
	if !ValidEnum(idea.EffortEstimate, EffortEstimates) {
		return fmt.Errorf("invalid effort estimate %q", idea.EffortEstimate)
	}
	if !ValidEnum(idea.ImpactEstimate, ImpactEstimates) {
		return fmt.Errorf("invalid impact estimate %q", idea.ImpactEstimate)
	}
	if idea.ConfidenceScore < 0 || idea.ConfidenceScore > 100 {
		return fmt.Errorf("confidence score %d out of range", idea.ConfidenceScore)
	}
	if idea.Status == "" {
		idea.Status = "proposed"
	}
	hints := []byte("[]")
	if idea.ImplementationHints != nil {
		var err error
		hints, err = json.Marshal(idea.ImplementationHints)
		if err != nil {
			return fmt.Errorf("encode implementation hints: %w", err)
		}
	}
	idea.ImplementationJSON = string(hints)
	idea.CreatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ideas (title, description, idea_type, effort_estimate, impact_estimate,
			confidence_score, status, persona_id, rationale, risks, implementation_hints, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idea.Title, idea.Description, idea.IdeaType, idea.EffortEstimate, idea.ImpactEstimate,
		idea.ConfidenceScore, idea.Status, idea.PersonaID, idea.Rationale, idea.Risks,
		idea.ImplementationJSON, idea.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert idea: %w", err)
	}
	idea.ID, err = res.LastInsertId()
	return err
}

// IdeaByID returns a single idea, or nil if absent.
func (s *Store) IdeaByID(ctx context.Context, id int64) (*Idea, error) {
	var idea Idea
	err := s.db.GetContext(ctx, &idea, `SELECT * FROM ideas WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idea %d: %w", id, err)
	}
	decodeIdea(&idea)
	return &idea, nil
}

// ActionableIdeas returns ideas that are neither completed nor
// rejected, newest first.
func (s *Store) ActionableIdeas(ctx context.Context, limit int) ([]Idea, error) {
	query := `
		SELECT * FROM ideas
		WHERE status NOT IN ('completed', 'rejected')
		ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var items []Idea
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list actionable ideas: %w", err)
	}
	decodeIdeas(items)
	return items, nil
}

// IdeasCreatedSince returns actionable ideas created at or after the
// cutoff, oldest first.
func (s *Store) IdeasCreatedSince(ctx context.Context, cutoff time.Time) ([]Idea, error) {
	var items []Idea
	err := s.db.SelectContext(ctx, &items, `
		SELECT * FROM ideas
		WHERE created_at >= ? AND status NOT IN ('completed', 'rejected')
		ORDER BY created_at, id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list ideas since %s: %w", cutoff.Format(time.RFC3339), err)
	}
	decodeIdeas(items)
	return items, nil
}

// IdeasForInsight returns the ideas addressing an insight.
func (s *Store) IdeasForInsight(ctx context.Context, insightID int64) ([]Idea, error) {
	var items []Idea
	err := s.db.SelectContext(ctx, &items, `
		SELECT i.* FROM ideas i
		JOIN idea_insights ii ON ii.idea_id = i.id
		WHERE ii.insight_id = ?
		ORDER BY i.created_at, i.id`, insightID)
	if err != nil {
		return nil, fmt.Errorf("list ideas for insight %d: %w", insightID, err)
	}
	decodeIdeas(items)
	return items, nil
}

// UpdateIdeaStatus moves an idea to a new status.
func (s *Store) UpdateIdeaStatus(ctx context.Context, id int64, status string) error {
	if !ValidEnum(status, IdeaStatuses) {
		return fmt.Errorf("invalid idea status %q", status)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE ideas SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update idea status %d: %w", id, err)
	}
	return nil
}

func decodeIdea(idea *Idea) {
	if idea.ImplementationJSON == "" {
		return
	}
	json.Unmarshal([]byte(idea.ImplementationJSON), &idea.ImplementationHints)
}

func decodeIdeas(items []Idea) {
	for i := range items {
		decodeIdea(&items[i])
	}
}
