package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/polymath-app/polymath-go/internal/apptype"
	"github.com/polymath-app/polymath-go/internal/metrics"
)

// storedTimeFormat is the fixed-precision UTC layout used for every
// timestamp column, so window queries can compare lexicographically.
const storedTimeFormat = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(storedTimeFormat)
}

func parseTime(v string) time.Time {
	if t, err := time.Parse(storedTimeFormat, v); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
		return t
	}
	return time.Time{}
}

const itemColumns = "user_id, item_type, id, title, body, entities, embedding, created_at"

// scanItem reads one item row in itemColumns order.
func (s *Store) scanItem(scan func(dest ...any) error) (apptype.KnowledgeItem, error) {
	var item apptype.KnowledgeItem
	var entitiesJSON sql.NullString
	var embeddingBytes []byte
	var createdAt string

	if err := scan(&item.UserID, &item.Type, &item.ID, &item.Title, &item.Body, &entitiesJSON, &embeddingBytes, &createdAt); err != nil {
		return item, err
	}

	if entitiesJSON.Valid && entitiesJSON.String != "" {
		if err := json.Unmarshal([]byte(entitiesJSON.String), &item.Entities); err != nil {
			return item, fmt.Errorf("failed to decode entities for item %s/%s: %w", item.Type, item.ID, err)
		}
	}

	vector, err := s.extractVector(embeddingBytes)
	if err != nil {
		return item, fmt.Errorf("failed to extract vector for item %s/%s: %w", item.Type, item.ID, err)
	}
	if !isZeroVector(vector) {
		item.Embedding = vector
	}

	item.CreatedAt = parseTime(createdAt)
	return item, nil
}

// CreateItem inserts or replaces a knowledge item.
func (s *Store) CreateItem(ctx context.Context, item apptype.KnowledgeItem) error {
	done := metrics.TimeOp("db_create_item")
	success := false
	defer func() { done(success) }()

	if item.UserID == "" {
		return apptype.InvalidRequestf("item user id must be a non-empty string")
	}
	if !item.Type.Valid() {
		return apptype.InvalidRequestf("invalid item type %q", item.Type)
	}
	if strings.TrimSpace(item.ID) == "" {
		return apptype.InvalidRequestf("item id must be a non-empty string")
	}

	var entitiesJSON any
	if len(item.Entities) > 0 {
		raw, err := json.Marshal(item.Entities)
		if err != nil {
			return fmt.Errorf("failed to encode entities for item %s/%s: %w", item.Type, item.ID, err)
		}
		entitiesJSON = string(raw)
	}

	vectorString, err := s.vectorToString(item.Embedding)
	if err != nil {
		return fmt.Errorf("failed to convert embedding for item %s/%s: %w", item.Type, item.ID, err)
	}

	stmt, err := s.getPreparedStmt(ctx, `
		INSERT INTO items (user_id, item_type, id, title, body, entities, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, vector32(?), ?)
		ON CONFLICT (user_id, item_type, id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			entities = excluded.entities,
			embedding = excluded.embedding`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, item.UserID, item.Type, item.ID, item.Title, item.Body, entitiesJSON, vectorString, formatTime(item.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert item %s/%s: %w", item.Type, item.ID, err)
	}
	success = true
	return nil
}

// SetItemEmbedding stores a vector for an existing item.
func (s *Store) SetItemEmbedding(ctx context.Context, userID string, itemType apptype.ItemType, id string, embedding []float32) error {
	done := metrics.TimeOp("db_set_item_embedding")
	success := false
	defer func() { done(success) }()

	vectorString, err := s.vectorToString(embedding)
	if err != nil {
		return err
	}
	stmt, err := s.getPreparedStmt(ctx, "UPDATE items SET embedding = vector32(?) WHERE user_id = ? AND item_type = ? AND id = ?")
	if err != nil {
		return err
	}
	res, err := stmt.ExecContext(ctx, vectorString, userID, itemType, id)
	if err != nil {
		return fmt.Errorf("failed to update embedding for item %s/%s: %w", itemType, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apptype.NotFoundf("item %s/%s", itemType, id)
	}
	success = true
	return nil
}

// GetItem retrieves a single item, or ErrNotFound.
func (s *Store) GetItem(ctx context.Context, userID string, itemType apptype.ItemType, id string) (*apptype.KnowledgeItem, error) {
	done := metrics.TimeOp("db_get_item")
	success := false
	defer func() { done(success) }()

	stmt, err := s.getPreparedStmt(ctx, "SELECT "+itemColumns+" FROM items WHERE user_id = ? AND item_type = ? AND id = ?")
	if err != nil {
		return nil, err
	}
	row := stmt.QueryRowContext(ctx, userID, itemType, id)
	item, err := s.scanItem(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apptype.NotFoundf("item %s/%s", itemType, id)
		}
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}
	success = true
	return &item, nil
}

// ListItemsByType fetches up to limit items of one type, newest first,
// excluding any id in excludeIDs.
func (s *Store) ListItemsByType(ctx context.Context, userID string, itemType apptype.ItemType, excludeIDs []string, limit int) ([]apptype.KnowledgeItem, error) {
	done := metrics.TimeOp("db_list_items_by_type")
	success := false
	defer func() { done(success) }()

	if limit <= 0 {
		limit = 50
	}

	query := "SELECT " + itemColumns + " FROM items WHERE user_id = ? AND item_type = ?"
	args := []any{userID, itemType}
	if len(excludeIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(excludeIDs)), ",")
		query += fmt.Sprintf(" AND id NOT IN (%s)", placeholders)
		for _, id := range excludeIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	// Exclusion lists vary in length, so this query skips the stmt cache.
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items, err := s.collectItems(rows)
	if err != nil {
		return nil, err
	}
	success = true
	return items, nil
}

// ListItemsWithEntities fetches up to limit items of one type that carry a
// non-empty entity set, excluding excludeID.
func (s *Store) ListItemsWithEntities(ctx context.Context, userID string, itemType apptype.ItemType, excludeID string, limit int) ([]apptype.KnowledgeItem, error) {
	done := metrics.TimeOp("db_list_items_with_entities")
	success := false
	defer func() { done(success) }()

	if limit <= 0 {
		limit = 100
	}
	stmt, err := s.getPreparedStmt(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE user_id = ? AND item_type = ? AND id != ?
		  AND entities IS NOT NULL AND entities != ''
		ORDER BY created_at DESC LIMIT ?`)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, userID, itemType, excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity items: %w", err)
	}
	defer rows.Close()

	items, err := s.collectItems(rows)
	if err != nil {
		return nil, err
	}
	success = true
	return items, nil
}

// ListItemsInWindow fetches items of one type created within ±windowDays of
// center, excluding excludeID.
func (s *Store) ListItemsInWindow(ctx context.Context, userID string, itemType apptype.ItemType, center time.Time, windowDays int, excludeID string, limit int) ([]apptype.KnowledgeItem, error) {
	done := metrics.TimeOp("db_list_items_in_window")
	success := false
	defer func() { done(success) }()

	if windowDays <= 0 {
		windowDays = 7
	}
	if limit <= 0 {
		limit = 100
	}
	window := time.Duration(windowDays) * 24 * time.Hour
	stmt, err := s.getPreparedStmt(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE user_id = ? AND item_type = ? AND id != ?
		  AND created_at >= ? AND created_at <= ?
		ORDER BY created_at DESC LIMIT ?`)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, userID, itemType, excludeID,
		formatTime(center.Add(-window)), formatTime(center.Add(window)), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query window items: %w", err)
	}
	defer rows.Close()

	items, err := s.collectItems(rows)
	if err != nil {
		return nil, err
	}
	success = true
	return items, nil
}

// NearestByEmbedding performs the provider-side similarity search used by the
// semantic bridge strategy: the nearest count items of one type whose cosine
// similarity to vector is at least threshold, excluding excludeID.
func (s *Store) NearestByEmbedding(ctx context.Context, userID string, itemType apptype.ItemType, vector []float32, threshold float64, count int, excludeID string) ([]apptype.SimilarItem, error) {
	done := metrics.TimeOp("db_nearest_by_embedding")
	success := false
	defer func() { done(success) }()

	if len(vector) == 0 {
		return nil, fmt.Errorf("search embedding cannot be empty")
	}
	if count <= 0 {
		count = 5
	}
	vectorString, err := s.vectorToString(vector)
	if err != nil {
		return nil, fmt.Errorf("failed to convert search embedding: %w", err)
	}

	stmt, err := s.getPreparedStmt(ctx, `
		SELECT `+itemColumns+`,
		       vector_distance_cos(embedding, vector32(?)) as distance
		FROM items
		WHERE user_id = ? AND item_type = ? AND id != ?
		  AND embedding IS NOT NULL AND embedding != vector32(?)
		ORDER BY distance ASC
		LIMIT ?`)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, vectorString, userID, itemType, excludeID, s.vectorZeroString(), count)
	if err != nil {
		low := strings.ToLower(err.Error())
		if strings.Contains(low, "no such function: vector_distance_cos") || strings.Contains(low, "no such function: vector32") {
			return nil, fmt.Errorf("vector search functions are unavailable in this libSQL build")
		}
		return nil, fmt.Errorf("failed to execute similarity search: %w", err)
	}
	defer rows.Close()

	var results []apptype.SimilarItem
	for rows.Next() {
		var item apptype.KnowledgeItem
		var entitiesJSON sql.NullString
		var embeddingBytes []byte
		var createdAt string
		var distance float64

		if err := rows.Scan(&item.UserID, &item.Type, &item.ID, &item.Title, &item.Body, &entitiesJSON, &embeddingBytes, &createdAt, &distance); err != nil {
			log.Warn().Err(err).Msg("failed to scan similarity search row")
			continue
		}
		similarity := 1.0 - distance
		if similarity < threshold {
			continue
		}
		if entitiesJSON.Valid && entitiesJSON.String != "" {
			if err := json.Unmarshal([]byte(entitiesJSON.String), &item.Entities); err != nil {
				log.Warn().Err(err).Str("item", item.ID).Msg("failed to decode entities")
			}
		}
		if v, vErr := s.extractVector(embeddingBytes); vErr == nil && !isZeroVector(v) {
			item.Embedding = v
		}
		item.CreatedAt = parseTime(createdAt)
		results = append(results, apptype.SimilarItem{Item: item, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}
	success = true
	return results, nil
}

func (s *Store) collectItems(rows *sql.Rows) ([]apptype.KnowledgeItem, error) {
	var items []apptype.KnowledgeItem
	for rows.Next() {
		item, err := s.scanItem(rows.Scan)
		if err != nil {
			log.Warn().Err(err).Msg("failed to scan item row")
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
