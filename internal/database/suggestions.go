package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/polymath-app/polymath-go/internal/apptype"
	"github.com/polymath-app/polymath-go/internal/metrics"
)

const suggestionColumns = "id, user_id, from_item_type, from_item_id, to_item_type, to_item_id, reasoning, confidence, status, model_version, degraded, created_at, resolved_at"

func scanSuggestion(scan func(dest ...any) error) (apptype.ConnectionSuggestion, error) {
	var sg apptype.ConnectionSuggestion
	var modelVersion sql.NullString
	var degraded int
	var createdAt string
	var resolvedAt sql.NullString

	err := scan(&sg.ID, &sg.UserID, &sg.From.Type, &sg.From.ID, &sg.To.Type, &sg.To.ID,
		&sg.Reasoning, &sg.Confidence, &sg.Status, &modelVersion, &degraded, &createdAt, &resolvedAt)
	if err != nil {
		return sg, err
	}
	sg.ModelVersion = modelVersion.String
	sg.Degraded = degraded != 0
	sg.CreatedAt = parseTime(createdAt)
	if resolvedAt.Valid {
		t := parseTime(resolvedAt.String)
		sg.ResolvedAt = &t
	}
	return sg, nil
}

// CreateSuggestion persists one suggestion row. The caller owns batching;
// each row is inserted independently so sibling failures stay isolated.
func (s *Store) CreateSuggestion(ctx context.Context, sg *apptype.ConnectionSuggestion) error {
	done := metrics.TimeOp("db_create_suggestion")
	success := false
	defer func() { done(success) }()

	if sg.UserID == "" {
		return apptype.InvalidRequestf("suggestion user id must be a non-empty string")
	}
	if sg.ID == "" {
		sg.ID = uuid.NewString()
	}
	if sg.Status == "" {
		sg.Status = apptype.SuggestionPending
	}
	if sg.CreatedAt.IsZero() {
		sg.CreatedAt = time.Now().UTC()
	}

	degraded := 0
	if sg.Degraded {
		degraded = 1
	}
	stmt, err := s.getPreparedStmt(ctx, `
		INSERT INTO suggestions (id, user_id, from_item_type, from_item_id, to_item_type, to_item_id,
			reasoning, confidence, status, model_version, degraded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, sg.ID, sg.UserID, sg.From.Type, sg.From.ID, sg.To.Type, sg.To.ID,
		sg.Reasoning, sg.Confidence, sg.Status, sg.ModelVersion, degraded, formatTime(sg.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert suggestion %s: %w", sg.ID, err)
	}
	success = true
	return nil
}

// GetSuggestion retrieves one suggestion, or ErrNotFound.
func (s *Store) GetSuggestion(ctx context.Context, userID, id string) (*apptype.ConnectionSuggestion, error) {
	done := metrics.TimeOp("db_get_suggestion")
	success := false
	defer func() { done(success) }()

	stmt, err := s.getPreparedStmt(ctx, "SELECT "+suggestionColumns+" FROM suggestions WHERE user_id = ? AND id = ?")
	if err != nil {
		return nil, err
	}
	row := stmt.QueryRowContext(ctx, userID, id)
	sg, err := scanSuggestion(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apptype.NotFoundf("suggestion %s", id)
		}
		return nil, fmt.Errorf("failed to scan suggestion: %w", err)
	}
	success = true
	return &sg, nil
}

// ListSuggestions returns suggestions for one user, optionally filtered by
// status, newest first.
func (s *Store) ListSuggestions(ctx context.Context, userID string, status apptype.SuggestionStatus, limit int) ([]apptype.ConnectionSuggestion, error) {
	done := metrics.TimeOp("db_list_suggestions")
	success := false
	defer func() { done(success) }()

	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if status != "" {
		stmt, sErr := s.getPreparedStmt(ctx, "SELECT "+suggestionColumns+" FROM suggestions WHERE user_id = ? AND status = ? ORDER BY created_at DESC LIMIT ?")
		if sErr != nil {
			return nil, sErr
		}
		rows, err = stmt.QueryContext(ctx, userID, status, limit)
	} else {
		stmt, sErr := s.getPreparedStmt(ctx, "SELECT "+suggestionColumns+" FROM suggestions WHERE user_id = ? ORDER BY created_at DESC LIMIT ?")
		if sErr != nil {
			return nil, sErr
		}
		rows, err = stmt.QueryContext(ctx, userID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer rows.Close()

	var out []apptype.ConnectionSuggestion
	for rows.Next() {
		sg, sErr := scanSuggestion(rows.Scan)
		if sErr != nil {
			return nil, fmt.Errorf("failed to scan suggestion row: %w", sErr)
		}
		out = append(out, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	success = true
	return out, nil
}

// ResolveSuggestion transitions a suggestion to accepted or dismissed and
// stamps resolved_at. There is deliberately no guard against resolving an
// already-resolved suggestion; the last transition wins.
func (s *Store) ResolveSuggestion(ctx context.Context, userID, id string, status apptype.SuggestionStatus) (*apptype.ConnectionSuggestion, error) {
	done := metrics.TimeOp("db_resolve_suggestion")
	success := false
	defer func() { done(success) }()

	if status != apptype.SuggestionAccepted && status != apptype.SuggestionDismissed {
		return nil, apptype.InvalidRequestf("invalid resolution status %q", status)
	}

	stmt, err := s.getPreparedStmt(ctx, "UPDATE suggestions SET status = ?, resolved_at = ? WHERE user_id = ? AND id = ?")
	if err != nil {
		return nil, err
	}
	res, err := stmt.ExecContext(ctx, status, formatTime(time.Now()), userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve suggestion %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apptype.NotFoundf("suggestion %s", id)
	}

	sg, err := s.GetSuggestion(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	success = true
	return sg, nil
}
