package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ActivePersona returns the first active persona, or nil if none.
func (s *Store) ActivePersona(ctx context.Context) (*Persona, error) {
	var p Persona
	err := s.db.GetContext(ctx, &p, `SELECT * FROM personas WHERE active = 1 ORDER BY id LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active persona: %w", err)
	}
	return &p, nil
}

// PersonaByArchetype returns the persona for an archetype, or nil if
// none exists.
func (s *Store) PersonaByArchetype(ctx context.Context, archetype string) (*Persona, error) {
	var p Persona
	err := s.db.GetContext(ctx, &p, `SELECT * FROM personas WHERE archetype = ?`, archetype)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get persona %q: %w", archetype, err)
	}
	return &p, nil
}

// UpsertPersona inserts a persona or replaces the existing one for the
// same archetype.
func (s *Store) UpsertPersona(ctx context.Context, p *Persona) error {
	if p.Name == "" {
		return errors.New("persona name is required")
	}
	if !ValidEnum(p.Archetype, PersonaArchetypes) {
		return fmt.Errorf("invalid persona archetype %q", p.Archetype)
	}
	if p.SystemPrompt == "" {
		return errors.New("persona system prompt is required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO personas (name, archetype, description, system_prompt, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(archetype) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			system_prompt = excluded.system_prompt,
			active = excluded.active`,
		p.Name, p.Archetype, p.Description, p.SystemPrompt, p.Active, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert persona: %w", err)
	}
	return nil
}

// ListPersonas returns all personas ordered by archetype.
func (s *Store) ListPersonas(ctx context.Context) ([]Persona, error) {
	var items []Persona
	if err := s.db.SelectContext(ctx, &items, `SELECT * FROM personas ORDER BY archetype`); err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	return items, nil
}

// SetActivePersona activates the persona for an archetype and
// deactivates every other one.
func (s *Store) SetActivePersona(ctx context.Context, archetype string) error {
	if !ValidEnum(archetype, PersonaArchetypes) {
		return fmt.Errorf("invalid persona archetype %q", archetype)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set active persona: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE personas SET active = 0`); err != nil {
		return fmt.Errorf("deactivate personas: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE personas SET active = 1 WHERE archetype = ?`, archetype)
	if err != nil {
		return fmt.Errorf("activate persona %q: %w", archetype, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("no persona with archetype %q", archetype)
	}
	return tx.Commit()
}
