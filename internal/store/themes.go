package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ThemeByName returns the theme matching name case-insensitively, or
// nil if none exists.
func (s *Store) ThemeByName(ctx context.Context, name string) (*Theme, error) {
	var t Theme
	err := s.db.GetContext(ctx, &t, `SELECT * FROM themes WHERE name = ? COLLATE NOCASE`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get theme %q: %w", name, err)
	}
	return &t, nil
}

// CreateTheme inserts a new theme.
func (s *Store) CreateTheme(ctx context.Context, t *Theme) error {
	if t.Name == "" {
		return errors.New("theme name is required")
	}
	t.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO themes (name, description, priority_score, insight_count, affected_users_estimate, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.Name, t.Description, t.PriorityScore, t.InsightCount, t.AffectedUsersEstimate, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert theme: %w", err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

// MergeTheme folds fresh analysis into an existing theme. A non-empty
// description replaces the old one; priority score and affected-users
// estimate keep whichever value is larger.
func (s *Store) MergeTheme(ctx context.Context, id int64, description string, priorityScore, affectedUsers int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE themes
		SET description = CASE WHEN ? != '' THEN ? ELSE description END,
		    priority_score = MAX(priority_score, ?),
		    affected_users_estimate = MAX(affected_users_estimate, ?)
		WHERE id = ?`,
		description, description, priorityScore, affectedUsers, id)
	if err != nil {
		return fmt.Errorf("merge theme %d: %w", id, err)
	}
	return nil
}

// MarkThemeAnalyzed stamps analyzed_at.
func (s *Store) MarkThemeAnalyzed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE themes SET analyzed_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark theme analyzed %d: %w", id, err)
	}
	return nil
}

// RecomputeThemeInsightCount refreshes the cached insight_count from
// the join table.
func (s *Store) RecomputeThemeInsightCount(ctx context.Context, themeID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE themes
		SET insight_count = (SELECT COUNT(*) FROM insight_themes WHERE theme_id = ?)
		WHERE id = ?`, themeID, themeID)
	if err != nil {
		return fmt.Errorf("recompute insight count for theme %d: %w", themeID, err)
	}
	return nil
}

// RecomputeThemePriority rescores a theme from its linked insights:
// the sum of severity ordinals plus a tenth of the affected-users
// estimate.
func (s *Store) RecomputeThemePriority(ctx context.Context, themeID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE themes
		SET priority_score = (
			SELECT COALESCE(SUM(CASE i.severity
				WHEN 'critical' THEN 4
				WHEN 'major' THEN 3
				WHEN 'moderate' THEN 2
				WHEN 'minor' THEN 1
				ELSE 0
			END), 0)
			FROM insights i
			JOIN insight_themes it ON it.insight_id = i.id
			WHERE it.theme_id = ?
		) + affected_users_estimate / 10
		WHERE id = ?`, themeID, themeID)
	if err != nil {
		return fmt.Errorf("recompute priority for theme %d: %w", themeID, err)
	}
	return nil
}

// ThemesByPriority returns themes highest priority first.
func (s *Store) ThemesByPriority(ctx context.Context, limit int) ([]Theme, error) {
	query := `SELECT * FROM themes ORDER BY priority_score DESC, insight_count DESC, name`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var items []Theme
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list themes by priority: %w", err)
	}
	return items, nil
}

// ListThemes returns all themes alphabetically.
func (s *Store) ListThemes(ctx context.Context) ([]Theme, error) {
	var items []Theme
	if err := s.db.SelectContext(ctx, &items, `SELECT * FROM themes ORDER BY name COLLATE NOCASE`); err != nil {
		return nil, fmt.Errorf("list themes: %w", err)
	}
	return items, nil
}
