package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// InsertFeedback inserts a feedback item. Returns the new ID, or 0 if
// an item with the same (source, external_id) already exists.
func (s *Store) InsertFeedback(ctx context.Context, f *Feedback) (int64, error) {
	if !ValidEnum(f.Source, FeedbackSources) {
		return 0, fmt.Errorf("invalid feedback source %q", f.Source)
	}
	if f.Content == "" {
		return 0, errors.New("feedback content is required")
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO feedbacks (source, external_id, title, content, author_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, external_id) WHERE external_id != '' DO NOTHING`,
		f.Source, f.ExternalID, f.Title, f.Content, f.AuthorName, f.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert feedback: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return 0, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	f.ID = id
	return id, nil
}

// FeedbackByID returns a single feedback item, or nil if absent.
func (s *Store) FeedbackByID(ctx context.Context, id int64) (*Feedback, error) {
	var f Feedback
	err := s.db.GetContext(ctx, &f, `SELECT * FROM feedbacks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get feedback %d: %w", id, err)
	}
	return &f, nil
}

// UnprocessedFeedback returns feedback not yet AI-categorized, oldest
// first.
func (s *Store) UnprocessedFeedback(ctx context.Context, limit int) ([]Feedback, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []Feedback
	err := s.db.SelectContext(ctx, &items, `
		SELECT * FROM feedbacks
		WHERE ai_processed_at IS NULL
		ORDER BY created_at, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed feedback: %w", err)
	}
	return items, nil
}

// ReadyForInsights returns categorized feedback that insight discovery
// has not yet considered, oldest first.
func (s *Store) ReadyForInsights(ctx context.Context, limit int) ([]Feedback, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []Feedback
	err := s.db.SelectContext(ctx, &items, `
		SELECT * FROM feedbacks
		WHERE ai_processed_at IS NOT NULL AND insight_processed_at IS NULL
		ORDER BY created_at, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list ready feedback: %w", err)
	}
	return items, nil
}

// FeedbacksForInsight returns feedback linked to an insight in link
// order.
func (s *Store) FeedbacksForInsight(ctx context.Context, insightID int64, limit int) ([]Feedback, error) {
	if limit <= 0 {
		limit = 5
	}
	var items []Feedback
	err := s.db.SelectContext(ctx, &items, `
		SELECT f.* FROM feedbacks f
		JOIN feedback_insights fi ON fi.feedback_id = f.id
		WHERE fi.insight_id = ?
		ORDER BY fi.id
		LIMIT ?`, insightID, limit)
	if err != nil {
		return nil, fmt.Errorf("list feedback for insight %d: %w", insightID, err)
	}
	return items, nil
}

// FeedbackInPeriod returns feedback created within [start, end).
func (s *Store) FeedbackInPeriod(ctx context.Context, start, end time.Time) ([]Feedback, error) {
	var items []Feedback
	err := s.db.SelectContext(ctx, &items, `
		SELECT * FROM feedbacks
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at, id`, start, end)
	if err != nil {
		return nil, fmt.Errorf("list feedback in period: %w", err)
	}
	return items, nil
}

// UpdateFeedbackAnalysis records the categorization result and stamps
// ai_processed_at.
func (s *Store) UpdateFeedbackAnalysis(ctx context.Context, id int64, category, priority, summary string, confidence float64) error {
	if !ValidEnum(category, FeedbackCategories) {
		return fmt.Errorf("invalid feedback category %q", category)
	}
	if !ValidEnum(priority, FeedbackPriorities) {
		return fmt.Errorf("invalid feedback priority %q", priority)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE feedbacks
		SET category = ?, priority = ?, ai_summary = ?, ai_confidence = ?, ai_processed_at = ?
		WHERE id = ?`,
		category, priority, summary, confidence, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update feedback analysis %d: %w", id, err)
	}
	return nil
}

// MarkInsightProcessed stamps insight_processed_at on every given
// feedback item, marking it considered by insight discovery.
func (s *Store) MarkInsightProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		`UPDATE feedbacks SET insight_processed_at = ? WHERE id IN (?)`,
		time.Now().UTC(), ids)
	if err != nil {
		return fmt.Errorf("build mark processed query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("mark feedback processed: %w", err)
	}
	return nil
}

// FeedbackCountsBy groups feedback in [start, end) by the given column
// (category, priority, or source).
func (s *Store) FeedbackCountsBy(ctx context.Context, column string, start, end time.Time) (map[string]int, error) {
	switch column {
	case "category", "priority", "source":
	default:
		return nil, fmt.Errorf("unsupported grouping column %q", column)
	}
	rows, err := s.db.QueryxContext(ctx,
		fmt.Sprintf(`SELECT %s, COUNT(*) FROM feedbacks WHERE created_at >= ? AND created_at < ? GROUP BY %s`, column, column),
		start, end)
	if err != nil {
		return nil, fmt.Errorf("count feedback by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}
