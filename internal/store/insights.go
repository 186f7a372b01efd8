package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CreateInsight validates and inserts a new insight, stamping
// discovered_at.
func (s *Store) CreateInsight(ctx context.Context, in *Insight) error {
	if in.Title == "" {
		return errors.New("insight title is required")
	}
	if !ValidEnum(in.InsightType, InsightTypes) {
		return fmt.Errorf("invalid insight type %q", in.InsightType)
	}
	if !ValidEnum(in.Severity, Severities) {
		return fmt.Errorf("invalid severity %q", in.Severity)
	}
	if in.ConfidenceScore < 0 || in.ConfidenceScore > 100 {
		return fmt.Errorf("confidence score %d out of range", in.ConfidenceScore)
	}
	if in.Status == "" {
		in.Status = "discovered"
	}
	evidence, err := json.Marshal(in.Evidence)
	if err != nil {
		return fmt.Errorf("encode evidence: %w", err)
	}
	if in.Evidence == nil {
		evidence = []byte("[]")
	}
	in.EvidenceJSON = string(evidence)

	now := time.Now().UTC()
	in.CreatedAt = now
	in.DiscoveredAt = &now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO insights (title, description, insight_type, severity, confidence_score,
			affected_users_count, feedback_count, status, persona_id, evidence, discovered_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Title, in.Description, in.InsightType, in.Severity, in.ConfidenceScore,
		in.AffectedUsersCount, in.FeedbackCount, in.Status, in.PersonaID, in.EvidenceJSON,
		in.DiscoveredAt, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert insight: %w", err)
	}
	in.ID, err = res.LastInsertId()
	return err
}

// InsightByID returns a single insight, or nil if absent.
func (s *Store) InsightByID(ctx context.Context, id int64) (*Insight, error) {
	var in Insight
	err := s.db.GetContext(ctx, &in, `SELECT * FROM insights WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get insight %d: %w", id, err)
	}
	decodeInsight(&in)
	return &in, nil
}

// ActionableInsights returns insights that are neither addressed nor
// dismissed, most severe and most recent first.
func (s *Store) ActionableInsights(ctx context.Context, limit int) ([]Insight, error) {
	query := `
		SELECT * FROM insights
		WHERE status NOT IN ('addressed', 'dismissed')
		ORDER BY
			CASE severity
				WHEN 'critical' THEN 4
				WHEN 'major' THEN 3
				WHEN 'moderate' THEN 2
				WHEN 'minor' THEN 1
				ELSE 0
			END DESC,
			created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var items []Insight
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list actionable insights: %w", err)
	}
	decodeInsights(items)
	return items, nil
}

// InsightsWithoutIdeas returns actionable insights that no idea
// addresses yet.
func (s *Store) InsightsWithoutIdeas(ctx context.Context, limit int) ([]Insight, error) {
	query := `
		SELECT i.* FROM insights i
		WHERE i.status NOT IN ('addressed', 'dismissed')
		  AND NOT EXISTS (SELECT 1 FROM idea_insights ii WHERE ii.insight_id = i.id)
		ORDER BY
			CASE i.severity
				WHEN 'critical' THEN 4
				WHEN 'major' THEN 3
				WHEN 'moderate' THEN 2
				WHEN 'minor' THEN 1
				ELSE 0
			END DESC,
			i.created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var items []Insight
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list insights without ideas: %w", err)
	}
	decodeInsights(items)
	return items, nil
}

// RecentInsights returns the newest insights first.
func (s *Store) RecentInsights(ctx context.Context, limit int) ([]Insight, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []Insight
	err := s.db.SelectContext(ctx, &items, `
		SELECT * FROM insights ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent insights: %w", err)
	}
	decodeInsights(items)
	return items, nil
}

// InsightsForTheme returns the insights linked to a theme.
func (s *Store) InsightsForTheme(ctx context.Context, themeID int64) ([]Insight, error) {
	var items []Insight
	err := s.db.SelectContext(ctx, &items, `
		SELECT i.* FROM insights i
		JOIN insight_themes it ON it.insight_id = i.id
		WHERE it.theme_id = ?
		ORDER BY i.created_at, i.id`, themeID)
	if err != nil {
		return nil, fmt.Errorf("list insights for theme %d: %w", themeID, err)
	}
	decodeInsights(items)
	return items, nil
}

// UpdateInsightStatus moves an insight to a new status, stamping
// addressed_at when it becomes addressed.
func (s *Store) UpdateInsightStatus(ctx context.Context, id int64, status string) error {
	if !ValidEnum(status, InsightStatuses) {
		return fmt.Errorf("invalid insight status %q", status)
	}
	var addressedAt *time.Time
	if status == "addressed" {
		now := time.Now().UTC()
		addressedAt = &now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE insights SET status = ?, addressed_at = COALESCE(?, addressed_at) WHERE id = ?`,
		status, addressedAt, id)
	if err != nil {
		return fmt.Errorf("update insight status %d: %w", id, err)
	}
	return nil
}

// RecomputeInsightFeedbackCount refreshes the cached feedback_count
// from the join table.
func (s *Store) RecomputeInsightFeedbackCount(ctx context.Context, insightID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE insights
		SET feedback_count = (SELECT COUNT(*) FROM feedback_insights WHERE insight_id = ?)
		WHERE id = ?`, insightID, insightID)
	if err != nil {
		return fmt.Errorf("recompute feedback count for insight %d: %w", insightID, err)
	}
	return nil
}

func decodeInsight(in *Insight) {
	if in.EvidenceJSON == "" {
		return
	}
	// Ignore decode errors; evidence is advisory display data.
	json.Unmarshal([]byte(in.EvidenceJSON), &in.Evidence)
}

func decodeInsights(items []Insight) {
	for i := range items {
		decodeInsight(&items[i])
	}
}
