package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ivan-andreyev/agent-orchestra/pkg/models"
)

// ErrNotFound is returned when a batch is not in the history.
var ErrNotFound = errors.New("batch not found")

// BatchRecord is one finished batch.
type BatchRecord struct {
	ID        string
	Name      string
	Status    models.OutcomeKind
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Cancelled bool
	StartedAt time.Time
	Duration  time.Duration
}

// TaskRecord is the final state of one task of a batch.
type TaskRecord struct {
	BatchID  string
	TaskID   string
	State    models.TaskState
	Output   string
	Error    string
	Reason   string
	Duration time.Duration
}

// batchRow mirrors the batches table.
type batchRow struct {
	ID         string `db:"id"`
	Name       string `db:"name"`
	Status     string `db:"status"`
	Total      int    `db:"total"`
	Succeeded  int    `db:"succeeded"`
	Failed     int    `db:"failed"`
	Skipped    int    `db:"skipped"`
	Cancelled  bool   `db:"cancelled"`
	StartedAt  string `db:"started_at"`
	DurationMS int64  `db:"duration_ms"`
}

// taskRow mirrors the batch_tasks table.
type taskRow struct {
	BatchID    string `db:"batch_id"`
	TaskID     string `db:"task_id"`
	Position   int    `db:"position"`
	State      string `db:"state"`
	Output     string `db:"output"`
	Error      string `db:"error"`
	Reason     string `db:"reason"`
	DurationMS int64  `db:"duration_ms"`
}

// RecordBatch stores a finished batch and the final state of its tasks.
// Recording the same batch ID again replaces the earlier record.
func (db *DB) RecordBatch(ctx context.Context, result *models.BatchExecutionResult) error {
	succeeded, failed, skipped := result.Counts()
	row := batchRow{
		ID:         result.BatchID,
		Name:       result.Label,
		Status:     string(models.OutcomeOf(result).Kind),
		Total:      result.TotalTasks,
		Succeeded:  succeeded,
		Failed:     failed,
		Skipped:    skipped,
		Cancelled:  result.Cancelled,
		StartedAt:  formatTime(result.StartedAt),
		DurationMS: result.Duration.Milliseconds(),
	}

	tasks := make([]taskRow, 0, result.TotalTasks)
	for _, s := range result.SuccessfulTasks {
		tasks = append(tasks, taskRow{TaskID: s.TaskID, State: string(models.TaskStateSucceeded), Output: s.Output, DurationMS: s.Duration.Milliseconds()})
	}
	for _, f := range result.FailedTasks {
		tasks = append(tasks, taskRow{TaskID: f.TaskID, State: string(models.TaskStateFailed), Error: f.Error, DurationMS: f.Duration.Milliseconds()})
	}
	for _, s := range result.SkippedTasks {
		tasks = append(tasks, taskRow{TaskID: s.TaskID, State: string(models.TaskStateSkipped), Reason: s.Reason})
	}

	return db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM batch_tasks WHERE batch_id = ?", row.ID); err != nil {
			return fmt.Errorf("clear batch tasks: %w", err)
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT OR REPLACE INTO batches
			(id, name, status, total, succeeded, failed, skipped, cancelled, started_at, duration_ms)
			VALUES (:id, :name, :status, :total, :succeeded, :failed, :skipped, :cancelled, :started_at, :duration_ms)
		`, row)
		if err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}

		for i := range tasks {
			tasks[i].BatchID = row.ID
			tasks[i].Position = i
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO batch_tasks
				(batch_id, task_id, position, state, output, error, reason, duration_ms)
				VALUES (:batch_id, :task_id, :position, :state, :output, :error, :reason, :duration_ms)
			`, tasks[i])
			if err != nil {
				return fmt.Errorf("insert task %s: %w", tasks[i].TaskID, err)
			}
		}
		return nil
	})
}

// GetBatch returns one batch by ID.
func (db *DB) GetBatch(ctx context.Context, id string) (*BatchRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var row batchRow
	err := db.conn.GetContext(ctx, &row, `
		SELECT id, name, status, total, succeeded, failed, skipped, cancelled, started_at, duration_ms
		FROM batches WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}
	return row.toRecord()
}

// ListBatches returns the most recent batches first. A limit of zero or
// less returns every batch.
func (db *DB) ListBatches(ctx context.Context, limit int) ([]*BatchRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	var rows []batchRow
	err := db.conn.SelectContext(ctx, &rows, `
		SELECT id, name, status, total, succeeded, failed, skipped, cancelled, started_at, duration_ms
		FROM batches ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}

	records := make([]*BatchRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ListBatchTasks returns the tasks of a batch: successes, then failures,
// then skips, each in completion order.
func (db *DB) ListBatchTasks(ctx context.Context, batchID string) ([]*TaskRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var rows []taskRow
	err := db.conn.SelectContext(ctx, &rows, `
		SELECT batch_id, task_id, position, state, output, error, reason, duration_ms
		FROM batch_tasks WHERE batch_id = ? ORDER BY position
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list tasks of batch %s: %w", batchID, err)
	}

	records := make([]*TaskRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, &TaskRecord{
			BatchID:  row.BatchID,
			TaskID:   row.TaskID,
			State:    models.TaskState(row.State),
			Output:   row.Output,
			Error:    row.Error,
			Reason:   row.Reason,
			Duration: time.Duration(row.DurationMS) * time.Millisecond,
		})
	}
	return records, nil
}

// PurgeOlderThan deletes batches that started before now minus age and
// returns how many were removed.
func (db *DB) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	cutoff := formatTime(time.Now().Add(-age))
	result, err := db.conn.ExecContext(ctx, "DELETE FROM batches WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old batches: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

func (r batchRow) toRecord() (*BatchRecord, error) {
	started, err := parseTime(r.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at of batch %s: %w", r.ID, err)
	}
	return &BatchRecord{
		ID:        r.ID,
		Name:      r.Name,
		Status:    models.OutcomeKind(r.Status),
		Total:     r.Total,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Skipped:   r.Skipped,
		Cancelled: r.Cancelled,
		StartedAt: started,
		Duration:  time.Duration(r.DurationMS) * time.Millisecond,
	}, nil
}
