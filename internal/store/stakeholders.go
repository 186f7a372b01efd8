package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SegmentByName returns the stakeholder segment matching name
// case-insensitively, or nil if none exists.
func (s *Store) SegmentByName(ctx context.Context, name string) (*StakeholderSegment, error) {
	var seg StakeholderSegment
	err := s.db.GetContext(ctx, &seg, `SELECT * FROM stakeholder_segments WHERE name = ? COLLATE NOCASE`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get segment %q: %w", name, err)
	}
	decodeSegment(&seg)
	return &seg, nil
}

// CreateSegment validates and inserts a new stakeholder segment.
func (s *Store) CreateSegment(ctx context.Context, seg *StakeholderSegment) error {
	if seg.Name == "" {
		return errors.New("segment name is required")
	}
	if !ValidEnum(seg.SegmentType, SegmentTypes) {
		return fmt.Errorf("invalid segment type %q", seg.SegmentType)
	}
	chars := []byte("[]")
	if seg.Characteristics != nil {
		var err error
		chars, err = json.Marshal(seg.Characteristics)
		if err != nil {
			return fmt.Errorf("encode characteristics: %w", err)
		}
	}
	seg.CharacteristicsJSON = string(chars)
	seg.CreatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO stakeholder_segments (name, segment_type, description, size_estimate,
			engagement_priority, engagement_strategy, characteristics, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		seg.Name, seg.SegmentType, seg.Description, seg.SizeEstimate,
		seg.EngagementPriority, seg.EngagementStrategy, seg.CharacteristicsJSON, seg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert segment: %w", err)
	}
	seg.ID, err = res.LastInsertId()
	return err
}

// MergeSegment folds fresh analysis into an existing segment. The
// size estimate and engagement priority keep whichever value is
// larger; text fields never change on merge.
func (s *Store) MergeSegment(ctx context.Context, id int64, sizeEstimate, priority int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE stakeholder_segments
		SET size_estimate = MAX(size_estimate, ?),
		    engagement_priority = MAX(engagement_priority, ?)
		WHERE id = ?`,
		sizeEstimate, priority, id)
	if err != nil {
		return fmt.Errorf("merge segment %d: %w", id, err)
	}
	return nil
}

// ListSegments returns all stakeholder segments, highest engagement
// priority first.
func (s *Store) ListSegments(ctx context.Context) ([]StakeholderSegment, error) {
	var items []StakeholderSegment
	err := s.db.SelectContext(ctx, &items, `
		SELECT * FROM stakeholder_segments
		ORDER BY engagement_priority DESC, name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	for i := range items {
		decodeSegment(&items[i])
	}
	return items, nil
}

// SegmentsForInsight returns the segments linked to an insight.
func (s *Store) SegmentsForInsight(ctx context.Context, insightID int64) ([]StakeholderSegment, error) {
	var items []StakeholderSegment
	err := s.db.SelectContext(ctx, &items, `
		SELECT seg.* FROM stakeholder_segments seg
		JOIN insight_stakeholders ist ON ist.segment_id = seg.id
		WHERE ist.insight_id = ?
		ORDER BY seg.engagement_priority DESC`, insightID)
	if err != nil {
		return nil, fmt.Errorf("list segments for insight %d: %w", insightID, err)
	}
	for i := range items {
		decodeSegment(&items[i])
	}
	return items, nil
}

func decodeSegment(seg *StakeholderSegment) {
	if seg.CharacteristicsJSON == "" {
		return
	}
	json.Unmarshal([]byte(seg.CharacteristicsJSON), &seg.Characteristics)
}
