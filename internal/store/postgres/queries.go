package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quillworks/loom/internal/model"
	"github.com/quillworks/loom/internal/store"
)

// engineColumns is the column list used for SELECT statements on the engines table.
const engineColumns = `id, name, description, status, nodes, edges, created_by, created_at, updated_at`

// recordColumns is the column list used for SELECT statements on the executions table.
const recordColumns = `id, engine_id, status, current_node_id, completed_node_ids,
	errors, checkpoint, stop_requested, resumable, created_at, updated_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateEngine(ctx context.Context, db executor, e *model.Engine) error {
	nodes, edges, err := marshalGraph(e)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO engines (
			id, name, description, status, nodes, edges, created_by, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`,
		e.ID,
		e.Name,
		e.Description,
		string(e.Status),
		nodes,
		edges,
		e.CreatedBy,
		e.CreatedAt,
		e.UpdatedAt,
	)
	return err
}

func queryGetEngine(ctx context.Context, db executor, id string) (*model.Engine, error) {
	row := db.QueryRowContext(ctx, `SELECT `+engineColumns+` FROM engines WHERE id = $1`, id)
	e, err := scanEngine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return e, err
}

func queryListEngines(ctx context.Context, db executor, status model.EngineStatus) ([]*model.Engine, error) {
	query := `SELECT ` + engineColumns + ` FROM engines`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Engine
	for rows.Next() {
		e, err := scanEngine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func queryUpdateEngine(ctx context.Context, db executor, e *model.Engine) error {
	nodes, edges, err := marshalGraph(e)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE engines SET
			name = $2, description = $3, status = $4,
			nodes = $5, edges = $6, updated_at = $7
		WHERE id = $1`,
		e.ID,
		e.Name,
		e.Description,
		string(e.Status),
		nodes,
		edges,
		e.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func queryDeleteEngine(ctx context.Context, db executor, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM engines WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func queryCreateRecord(ctx context.Context, db executor, r *model.ExecutionRecord) error {
	completed, errs, checkpoint, err := marshalRecordFields(r)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO executions (
			id, engine_id, status, current_node_id, completed_node_ids,
			errors, checkpoint, stop_requested, resumable, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11
		)`,
		r.ID,
		r.EngineID,
		string(r.Status),
		r.CurrentNodeID,
		completed,
		errs,
		checkpoint,
		r.StopRequested,
		r.Resumable,
		r.CreatedAt,
		r.UpdatedAt,
	)
	return err
}

func queryGetRecord(ctx context.Context, db executor, id string) (*model.ExecutionRecord, error) {
	row := db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM executions WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return rec, err
}

// queryGetRecordForUpdate reads a record under FOR UPDATE so the surrounding
// transaction holds a row lock until its merged write commits.
func queryGetRecordForUpdate(ctx context.Context, db executor, id string) (*model.ExecutionRecord, error) {
	row := db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM executions WHERE id = $1 FOR UPDATE`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return rec, err
}

func queryWriteRecord(ctx context.Context, db executor, r *model.ExecutionRecord) error {
	completed, errs, checkpoint, err := marshalRecordFields(r)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE executions SET
			status = $2, current_node_id = $3, completed_node_ids = $4,
			errors = $5, checkpoint = $6, stop_requested = $7,
			resumable = $8, updated_at = $9
		WHERE id = $1`,
		r.ID,
		string(r.Status),
		r.CurrentNodeID,
		completed,
		errs,
		checkpoint,
		r.StopRequested,
		r.Resumable,
		r.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func queryListRecords(ctx context.Context, db executor, limit int) ([]*model.ExecutionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM executions ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ExecutionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func marshalGraph(e *model.Engine) (nodes, edges []byte, err error) {
	nodes, err = json.Marshal(e.Nodes)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal nodes: %w", err)
	}
	edges, err = json.Marshal(e.Edges)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal edges: %w", err)
	}
	return nodes, edges, nil
}

// marshalRecordFields serializes the record's JSON columns. The checkpoint
// is returned as a driver value so an absent checkpoint is stored as NULL,
// not as an empty byte slice.
func marshalRecordFields(r *model.ExecutionRecord) (completed, errs []byte, checkpoint any, err error) {
	completed, err = json.Marshal(r.CompletedNodeIDs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal completed_node_ids: %w", err)
	}
	errs, err = json.Marshal(r.Errors)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal errors: %w", err)
	}
	if r.Checkpoint != nil {
		var b []byte
		b, err = json.Marshal(r.Checkpoint)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal checkpoint: %w", err)
		}
		checkpoint = b
	}
	return completed, errs, checkpoint, nil
}
