package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SavePulseReport inserts a pulse report.
func (s *Store) SavePulseReport(ctx context.Context, r *PulseReport) error {
	r.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pulse_reports (period_start, period_end, feedback_count, summary, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.PeriodStart, r.PeriodEnd, r.FeedbackCount, r.Summary, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pulse report: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

// PulseReportByID returns a single pulse report, or nil if absent.
func (s *Store) PulseReportByID(ctx context.Context, id int64) (*PulseReport, error) {
	var r PulseReport
	err := s.db.GetContext(ctx, &r, `SELECT * FROM pulse_reports WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pulse report %d: %w", id, err)
	}
	return &r, nil
}

// ListPulseReports returns pulse reports newest first.
func (s *Store) ListPulseReports(ctx context.Context, limit int) ([]PulseReport, error) {
	if limit <= 0 {
		limit = 20
	}
	var items []PulseReport
	err := s.db.SelectContext(ctx, &items, `
		SELECT * FROM pulse_reports ORDER BY period_end DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pulse reports: %w", err)
	}
	return items, nil
}

// SaveRunReport inserts a pipeline run report.
func (s *Store) SaveRunReport(ctx context.Context, r *RunReport) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_reports (id, started_at, finished_at, feedbacks_analyzed,
			insights_created, themes_created, ideas_created, stakeholders_identified, relationships_linked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt, r.FinishedAt, r.FeedbacksAnalyzed,
		r.InsightsCreated, r.ThemesCreated, r.IdeasCreated,
		r.StakeholdersIdentified, r.RelationshipsLinked)
	if err != nil {
		return fmt.Errorf("insert run report: %w", err)
	}
	return nil
}

// ListRunReports returns pipeline run reports newest first.
func (s *Store) ListRunReports(ctx context.Context, limit int) ([]RunReport, error) {
	if limit <= 0 {
		limit = 20
	}
	var items []RunReport
	err := s.db.SelectContext(ctx, &items, `
		SELECT * FROM run_reports ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list run reports: %w", err)
	}
	return items, nil
}

// GetStats returns aggregate row counts across the database.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		dest  *int
		query string
	}{
		{&stats.TotalFeedback, `SELECT COUNT(*) FROM feedbacks`},
		{&stats.ProcessedFeedback, `SELECT COUNT(*) FROM feedbacks WHERE ai_processed_at IS NOT NULL`},
		{&stats.ReadyFeedback, `SELECT COUNT(*) FROM feedbacks WHERE ai_processed_at IS NOT NULL AND insight_processed_at IS NULL`},
		{&stats.Insights, `SELECT COUNT(*) FROM insights`},
		{&stats.Themes, `SELECT COUNT(*) FROM themes`},
		{&stats.Ideas, `SELECT COUNT(*) FROM ideas`},
		{&stats.Segments, `SELECT COUNT(*) FROM stakeholder_segments`},
		{&stats.Relationships, `SELECT COUNT(*) FROM idea_relationships`},
		{&stats.PulseReports, `SELECT COUNT(*) FROM pulse_reports`},
	}
	for _, q := range queries {
		if err := s.db.GetContext(ctx, q.dest, q.query); err != nil {
			return nil, fmt.Errorf("stats query %q: %w", q.query, err)
		}
	}
	return stats, nil
}
