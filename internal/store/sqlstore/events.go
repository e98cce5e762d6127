package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"studyplan/internal/domain"
)

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var (
			e        domain.Event
			entityID sql.NullString
			payload  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.Owner, &e.EntityKind, &entityID, &payload); err != nil {
			return nil, err
		}
		e.EntityID = entityID.String
		e.Payload = payload.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (s *Store) EventsAfter(ctx context.Context, limit int, cursor int64, owner string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"id>?"}
	args := []any{cursor}
	if owner != "" {
		clauses = append(clauses, "owner=?")
		args = append(args, owner)
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT id,ts,type,owner,entity_kind,entity_id,payload_json FROM events WHERE %s ORDER BY id ASC LIMIT ?`, strings.Join(clauses, " AND "))
	return s.queryEvents(ctx, query, args...)
}

// LatestEvents returns events newest first. A positive before limits the
// result to ids below it.
func (s *Store) LatestEvents(ctx context.Context, limit int, before int64, owner string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	clauses := []string{"1=1"}
	var args []any
	if before > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, before)
	}
	if owner != "" {
		clauses = append(clauses, "owner=?")
		args = append(args, owner)
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT id,ts,type,owner,entity_kind,entity_id,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	return s.queryEvents(ctx, query, args...)
}

// LatestEventID returns the most recent event ID, optionally for one owner.
func (s *Store) LatestEventID(ctx context.Context, owner string) (int64, error) {
	var row *sql.Row
	if owner == "" {
		row = s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`)
	} else {
		row = s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE owner=?`, owner)
	}
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
