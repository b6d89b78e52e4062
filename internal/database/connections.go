package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/polymath-app/polymath-go/internal/apptype"
	"github.com/polymath-app/polymath-go/internal/metrics"
)

// CreateConnection persists one connection ("Spark").
func (s *Store) CreateConnection(ctx context.Context, c *apptype.Connection) error {
	done := metrics.TimeOp("db_create_connection")
	success := false
	defer func() { done(success) }()

	if c.UserID == "" || c.Source.ID == "" || c.Target.ID == "" {
		return apptype.InvalidRequestf("connection fields cannot be empty")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedBy == "" {
		c.CreatedBy = "user"
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	stmt, err := s.getPreparedStmt(ctx, `
		INSERT INTO connections (id, user_id, source_type, source_id, target_type, target_id, connection_type, created_by, ai_reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, c.ID, c.UserID, c.Source.Type, c.Source.ID, c.Target.Type, c.Target.ID,
		c.ConnectionType, c.CreatedBy, c.AIReasoning, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert connection %s: %w", c.ID, err)
	}
	success = true
	return nil
}

// DeleteConnection removes one connection, or ErrNotFound.
func (s *Store) DeleteConnection(ctx context.Context, userID, id string) error {
	done := metrics.TimeOp("db_delete_connection")
	success := false
	defer func() { done(success) }()

	stmt, err := s.getPreparedStmt(ctx, "DELETE FROM connections WHERE user_id = ? AND id = ?")
	if err != nil {
		return err
	}
	res, err := stmt.ExecContext(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apptype.NotFoundf("connection %s", id)
	}
	success = true
	return nil
}

// ListConnections returns a user's connections, newest first.
func (s *Store) ListConnections(ctx context.Context, userID string, limit int) ([]apptype.Connection, error) {
	done := metrics.TimeOp("db_list_connections")
	success := false
	defer func() { done(success) }()

	if limit <= 0 {
		limit = 100
	}
	stmt, err := s.getPreparedStmt(ctx, `
		SELECT id, user_id, source_type, source_id, target_type, target_id, connection_type, created_by, ai_reasoning, created_at
		FROM connections WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()

	var out []apptype.Connection
	for rows.Next() {
		var c apptype.Connection
		var aiReasoning *string
		var createdAt string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Source.Type, &c.Source.ID, &c.Target.Type, &c.Target.ID,
			&c.ConnectionType, &c.CreatedBy, &aiReasoning, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan connection row: %w", err)
		}
		if aiReasoning != nil {
			c.AIReasoning = *aiReasoning
		}
		c.CreatedAt = parseTime(createdAt)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	success = true
	return out, nil
}

// ConnectedItemIDs returns the ids of every item already connected to ref,
// in either direction, used to exclude known neighbors from suggestion runs.
func (s *Store) ConnectedItemIDs(ctx context.Context, userID string, ref apptype.ItemRef) ([]string, error) {
	done := metrics.TimeOp("db_connected_item_ids")
	success := false
	defer func() { done(success) }()

	stmt, err := s.getPreparedStmt(ctx, `
		SELECT source_type, source_id, target_type, target_id FROM connections
		WHERE user_id = ? AND ((source_type = ? AND source_id = ?) OR (target_type = ? AND target_id = ?))`)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, userID, ref.Type, ref.ID, ref.Type, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connected items: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var st, sid, tt, tid string
		if err := rows.Scan(&st, &sid, &tt, &tid); err != nil {
			return nil, fmt.Errorf("failed to scan connection endpoints: %w", err)
		}
		if apptype.ItemType(st) == ref.Type && sid == ref.ID {
			ids = append(ids, tid)
		} else {
			ids = append(ids, sid)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	success = true
	return ids, nil
}
