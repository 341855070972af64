package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AttendanceRepository handles AttendanceLog persistence.
type AttendanceRepository struct {
	db *DB
}

// NewAttendanceRepository creates a new attendance repository.
func NewAttendanceRepository(db *DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// LastInoutForEnrollid returns the most recent prior log's inout value
// for (terminal, enrollid), and when it was recorded. ok is false when
// there is no prior log.
func (r *AttendanceRepository) LastInoutForEnrollid(ctx context.Context, terminalID string, enrollid int) (inout int, at time.Time, ok bool, err error) {
	query := `
		SELECT inout, time FROM attendance_logs
		WHERE terminal_id = $1 AND enrollid = $2
		ORDER BY time DESC LIMIT 1
	`
	var t time.Time
	var v int
	scanErr := r.db.Pool.QueryRow(ctx, query, terminalID, enrollid).Scan(&v, &t)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return 0, time.Time{}, false, nil
		}
		return 0, time.Time{}, false, scanErr
	}
	return v, t, true, nil
}

// NewLog is the shape the session handler builds per record before
// bulk insert; UserID is nil when the enrollid did not resolve.
type NewLog struct {
	TerminalID    string
	UserID        *string
	Enrollid      int
	Time          time.Time
	Mode          int
	Inout         int
	AccessGranted bool
	RawPayload    string
}

// BulkInsert inserts all logs for one sendlog batch inside a single
// transaction — all-or-nothing, matching bulk-insert atomicity.
func (r *AttendanceRepository) BulkInsert(ctx context.Context, logs []NewLog) error {
	if len(logs) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, l := range logs {
		var userID sql.NullString
		if l.UserID != nil {
			userID = sql.NullString{String: *l.UserID, Valid: true}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO attendance_logs (id, terminal_id, user_id, enrollid, time, mode,
			                              inout, access_granted, raw_payload, sync_status,
			                              sync_attempts, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', 0, $10, $10)
		`, uuid.New().String(), l.TerminalID, userID, l.Enrollid, l.Time, l.Mode,
			l.Inout, l.AccessGranted, l.RawPayload, now)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// PendingForConfig selects the next batch of pending logs eligible for
// delivery to configID: sync_status='pending', the terminal is actively
// mapped to this config for attendance, sync_attempts < MAX_RETRY,
// ordered by time ascending.
func (r *AttendanceRepository) PendingForConfig(ctx context.Context, configID string, maxRetry, batchSize int) ([]AttendanceLog, error) {
	query := `
		SELECT al.id, al.terminal_id, al.user_id, al.enrollid, al.time, al.mode, al.inout,
		       al.event, al.temperature, al.image, al.raw_payload, al.access_granted,
		       al.sync_status, al.sync_attempts, al.synced_at, al.sync_error,
		       al.created_at, al.updated_at
		FROM attendance_logs al
		JOIN terminal_third_party_mappings m
		  ON m.terminal_id = al.terminal_id AND m.config_id = $1
		WHERE al.sync_status = 'pending'
		  AND m.is_active = true AND m.sync_attendance = true
		  AND al.sync_attempts < $2
		ORDER BY al.time ASC
		LIMIT $3
	`
	return r.scanLogs(ctx, query, configID, maxRetry, batchSize)
}

// RetryableForConfig selects failed-attempt rows whose backoff window has
// elapsed: sync_attempts in [1,maxRetry) and updated_at + backoff(attempts) <= now.
func (r *AttendanceRepository) RetryableForConfig(ctx context.Context, configID string, maxRetry, batchSize int, backoffMinutes []int) ([]AttendanceLog, error) {
	query := `
		SELECT al.id, al.terminal_id, al.user_id, al.enrollid, al.time, al.mode, al.inout,
		       al.event, al.temperature, al.image, al.raw_payload, al.access_granted,
		       al.sync_status, al.sync_attempts, al.synced_at, al.sync_error,
		       al.created_at, al.updated_at
		FROM attendance_logs al
		JOIN terminal_third_party_mappings m
		  ON m.terminal_id = al.terminal_id AND m.config_id = $1
		WHERE al.sync_status = 'pending'
		  AND m.is_active = true AND m.sync_attendance = true
		  AND al.sync_attempts > 0 AND al.sync_attempts < $2
		ORDER BY al.time ASC
	`
	candidates, err := r.scanLogs(ctx, query, configID, maxRetry)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var eligible []AttendanceLog
	for _, l := range candidates {
		idx := l.SyncAttempts - 1
		if idx >= len(backoffMinutes) {
			idx = len(backoffMinutes) - 1
		}
		backoff := time.Duration(backoffMinutes[idx]) * time.Minute
		if !l.UpdatedAt.Add(backoff).After(now) {
			eligible = append(eligible, l)
		}
		if len(eligible) >= batchSize {
			break
		}
	}
	return eligible, nil
}

func (r *AttendanceRepository) scanLogs(ctx context.Context, query string, args ...interface{}) ([]AttendanceLog, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AttendanceLog
	for rows.Next() {
		var l AttendanceLog
		if err := rows.Scan(
			&l.ID, &l.TerminalID, &l.UserID, &l.Enrollid, &l.Time, &l.Mode, &l.Inout,
			&l.Event, &l.Temperature, &l.Image, &l.RawPayload, &l.AccessGranted,
			&l.SyncStatus, &l.SyncAttempts, &l.SyncedAt, &l.SyncError,
			&l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// MarkSent marks every row in ids sent, clears sync_error, stamps synced_at.
func (r *AttendanceRepository) MarkSent(ctx context.Context, ids []string) error {
	now := time.Now().UTC()
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE attendance_logs SET sync_status = 'sent', synced_at = $2, sync_error = NULL, updated_at = $2
		WHERE id = ANY($1)
	`, ids, now)
	return err
}

// MarkFailed increments sync_attempts and stores the (truncated) error
// for every row in ids, promoting rows that reach maxRetry to the
// failed dead-letter state.
func (r *AttendanceRepository) MarkFailed(ctx context.Context, ids []string, errMsg string, maxRetry int) error {
	if len(errMsg) > 500 {
		errMsg = errMsg[:500]
	}
	now := time.Now().UTC()
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE attendance_logs SET
			sync_attempts = sync_attempts + 1,
			sync_error = $2,
			sync_status = CASE WHEN sync_attempts + 1 >= $3 THEN 'failed' ELSE sync_status END,
			updated_at = $4
		WHERE id = ANY($1)
	`, ids, errMsg, maxRetry, now)
	return err
}

// DelayForRateLimit nudges updated_at on the given rows so that the
// row-driven backoff window effectively accounts for a 429 retry_after
// hint, without the engine blocking synchronously.
func (r *AttendanceRepository) DelayForRateLimit(ctx context.Context, ids []string, backoff time.Duration, retryAfter time.Duration) error {
	target := time.Now().UTC().Add(retryAfter - backoff)
	_, err := r.db.Pool.Exec(ctx, `UPDATE attendance_logs SET updated_at = $2 WHERE id = ANY($1)`, ids, target)
	return err
}

// ResetFailed returns failed rows (filtered by ids, or all failed rows
// when ids is nil) to pending with attempts cleared.
func (r *AttendanceRepository) ResetFailed(ctx context.Context, ids []string) (int64, error) {
	now := time.Now().UTC()

	if ids == nil {
		result, err := r.db.Pool.Exec(ctx, `
			UPDATE attendance_logs SET sync_status = 'pending', sync_attempts = 0, sync_error = NULL, updated_at = $1
			WHERE sync_status = 'failed'
		`, now)
		if err != nil {
			return 0, err
		}
		return result.RowsAffected(), nil
	}

	result, err := r.db.Pool.Exec(ctx, `
		UPDATE attendance_logs SET sync_status = 'pending', sync_attempts = 0, sync_error = NULL, updated_at = $2
		WHERE sync_status = 'failed' AND id = ANY($1)
	`, ids, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// CleanupFailedOlderThan deletes failed rows whose updated_at predates
// the retention window.
func (r *AttendanceRepository) CleanupFailedOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM attendance_logs WHERE sync_status = 'failed' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
