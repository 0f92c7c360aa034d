package database

import (
	"context"
	"database/sql"
	"time"

	"hs-go/internal/model"
)

// Operation journal. Each mutating command gets a row when it starts and
// is finished with its outcome, so orphaned physical resources can be traced
// back to the command that left them.

func (s *SQLiteDatabase) CreateOperation(ctx context.Context, userID int64, operation, parameters string) (*model.Operation, error) {
	op := &model.Operation{
		UserID:     userID,
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  time.Now().UTC(),
		Status:     "running",
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO operations (user_id, operation, parameters, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		nullParent(userID), operation, parameters, op.StartedAt, op.Status)
	if err != nil {
		return nil, storeErr("creating operation", err)
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return nil, storeErr("reading operation id", err)
	}
	return op, nil
}

func (s *SQLiteDatabase) FinishOperation(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE operations SET finished_at = ?, status = ? WHERE id = ?`, time.Now().UTC(), status, id)
	if err != nil {
		return storeErr("finishing operation", err)
	}
	return nil
}

// ListOperations returns the most recent operations, newest first.
func (s *SQLiteDatabase) ListOperations(ctx context.Context, limit int) ([]*model.Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, operation, parameters, started_at, finished_at, status
		FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, storeErr("listing operations", err)
	}
	defer rows.Close()

	var ops []*model.Operation
	for rows.Next() {
		var (
			op       model.Operation
			userID   sql.NullInt64
			finished sql.NullTime
		)
		if err := rows.Scan(&op.ID, &userID, &op.Operation, &op.Parameters, &op.StartedAt, &finished, &op.Status); err != nil {
			return nil, storeErr("listing operations", err)
		}
		op.UserID = userID.Int64
		if finished.Valid {
			t := finished.Time.UTC()
			op.FinishedAt = &t
		}
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("listing operations", err)
	}
	return ops, nil
}
