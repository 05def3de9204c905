package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/quillworks/loom/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEngine scans a single row into a model.Engine.
// The row must contain columns in the order defined by engineColumns.
func scanEngine(row scannable) (*model.Engine, error) {
	var e model.Engine
	var (
		description sql.NullString
		createdBy   sql.NullString
		nodes       []byte
		edges       []byte
	)

	err := row.Scan(
		&e.ID,
		&e.Name,
		&description,
		&e.Status,
		&nodes,
		&edges,
		&createdBy,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Description = description.String
	e.CreatedBy = createdBy.String
	if len(nodes) > 0 {
		if err := json.Unmarshal(nodes, &e.Nodes); err != nil {
			return nil, fmt.Errorf("unmarshal nodes for engine %s: %w", e.ID, err)
		}
	}
	if len(edges) > 0 {
		if err := json.Unmarshal(edges, &e.Edges); err != nil {
			return nil, fmt.Errorf("unmarshal edges for engine %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

// scanRecord scans a single row into a model.ExecutionRecord.
// The row must contain columns in the order defined by recordColumns.
func scanRecord(row scannable) (*model.ExecutionRecord, error) {
	var r model.ExecutionRecord
	var (
		engineID    sql.NullString
		currentNode sql.NullString
		completed   []byte
		errs        []byte
		checkpoint  []byte
	)

	err := row.Scan(
		&r.ID,
		&engineID,
		&r.Status,
		&currentNode,
		&completed,
		&errs,
		&checkpoint,
		&r.StopRequested,
		&r.Resumable,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.EngineID = engineID.String
	r.CurrentNodeID = currentNode.String
	if len(completed) > 0 {
		if err := json.Unmarshal(completed, &r.CompletedNodeIDs); err != nil {
			return nil, fmt.Errorf("unmarshal completed_node_ids for execution %s: %w", r.ID, err)
		}
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &r.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal errors for execution %s: %w", r.ID, err)
		}
	}
	if len(checkpoint) > 0 {
		var cp model.Checkpoint
		if err := json.Unmarshal(checkpoint, &cp); err != nil {
			return nil, fmt.Errorf("unmarshal checkpoint for execution %s: %w", r.ID, err)
		}
		r.Checkpoint = &cp
	}
	return &r, nil
}
