package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/polymath-app/polymath-go/internal/apptype"
	"github.com/polymath-app/polymath-go/internal/metrics"
)

// UpsertBridges persists a batch of bridges in one transaction. The unique
// (user, pair) index makes the write idempotent: re-running detection
// refreshes the row instead of inserting duplicates.
func (s *Store) UpsertBridges(ctx context.Context, userID string, bridges []apptype.Bridge) (int, error) {
	done := metrics.TimeOp("db_upsert_bridges")
	success := false
	defer func() { done(success) }()

	if len(bridges) == 0 {
		success = true
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bridges (id, user_id, memory_a, memory_b, bridge_type, strength, entities_shared, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, memory_a, memory_b) DO UPDATE SET
			bridge_type = excluded.bridge_type,
			strength = excluded.strength,
			entities_shared = excluded.entities_shared`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range bridges {
		b := &bridges[i]
		if b.MemoryA == "" || b.MemoryB == "" || b.BridgeType == "" {
			return 0, fmt.Errorf("bridge fields cannot be empty")
		}
		if b.MemoryA > b.MemoryB {
			b.MemoryA, b.MemoryB = b.MemoryB, b.MemoryA
		}
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = time.Now().UTC()
		}
		var sharedJSON any
		if len(b.EntitiesShared) > 0 {
			raw, mErr := json.Marshal(b.EntitiesShared)
			if mErr != nil {
				return 0, fmt.Errorf("failed to encode shared entities: %w", mErr)
			}
			sharedJSON = string(raw)
		}
		if _, err := stmt.ExecContext(ctx, b.ID, userID, b.MemoryA, b.MemoryB, b.BridgeType, b.Strength, sharedJSON, formatTime(b.CreatedAt)); err != nil {
			return 0, fmt.Errorf("failed to upsert bridge (%s <-> %s): %w", b.MemoryA, b.MemoryB, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	success = true
	return len(bridges), nil
}

// ListBridges returns bridges touching one memory, or all of a user's
// bridges when memoryID is empty.
func (s *Store) ListBridges(ctx context.Context, userID, memoryID string, limit int) ([]apptype.Bridge, error) {
	done := metrics.TimeOp("db_list_bridges")
	success := false
	defer func() { done(success) }()

	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, user_id, memory_a, memory_b, bridge_type, strength, entities_shared, created_at
		FROM bridges WHERE user_id = ?`
	args := []any{userID}
	if memoryID != "" {
		query += " AND (memory_a = ? OR memory_b = ?)"
		args = append(args, memoryID, memoryID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	stmt, err := s.getPreparedStmt(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bridges: %w", err)
	}
	defer rows.Close()

	var out []apptype.Bridge
	for rows.Next() {
		var b apptype.Bridge
		var sharedJSON *string
		var createdAt string
		if err := rows.Scan(&b.ID, &b.UserID, &b.MemoryA, &b.MemoryB, &b.BridgeType, &b.Strength, &sharedJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan bridge row: %w", err)
		}
		if sharedJSON != nil && *sharedJSON != "" {
			if err := json.Unmarshal([]byte(*sharedJSON), &b.EntitiesShared); err != nil {
				return nil, fmt.Errorf("failed to decode shared entities: %w", err)
			}
		}
		b.CreatedAt = parseTime(createdAt)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	success = true
	return out, nil
}
