package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// CommandRepository handles the durable CommandQueue outbox.
type CommandRepository struct {
	db *DB
}

// NewCommandRepository creates a new command repository.
func NewCommandRepository(db *DB) *CommandRepository {
	return &CommandRepository{db: db}
}

// Enqueue inserts a pending command row for a terminal.
func (r *CommandRepository) Enqueue(ctx context.Context, terminalID, command, payload string) (*CommandQueue, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO command_queue (id, terminal_id, command, payload, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, 'pending', 0, $5)
		RETURNING id, terminal_id, command, payload, status, retry_count, created_at, sent_at, completed_at
	`
	var c CommandQueue
	err := r.db.Pool.QueryRow(ctx, query, uuid.New().String(), terminalID, command, nullIfEmpty(payload), now).Scan(
		&c.ID, &c.TerminalID, &c.Command, &c.Payload, &c.Status, &c.RetryCount,
		&c.CreatedAt, &c.SentAt, &c.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DrainPending returns all pending commands for a terminal, oldest first —
// the order the reconnect drain delivers them in.
func (r *CommandRepository) DrainPending(ctx context.Context, terminalID string) ([]CommandQueue, error) {
	query := `
		SELECT id, terminal_id, command, payload, status, retry_count, created_at, sent_at, completed_at
		FROM command_queue WHERE terminal_id = $1 AND status = 'pending'
		ORDER BY created_at ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, terminalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []CommandQueue
	for rows.Next() {
		var c CommandQueue
		if err := rows.Scan(
			&c.ID, &c.TerminalID, &c.Command, &c.Payload, &c.Status, &c.RetryCount,
			&c.CreatedAt, &c.SentAt, &c.CompletedAt,
		); err != nil {
			continue
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

// MarkSent marks a command sent once it has been enqueued on the
// session's mailbox.
func (r *CommandRepository) MarkSent(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.db.Pool.Exec(ctx, `UPDATE command_queue SET status = 'sent', sent_at = $2 WHERE id = $1`, id, now)
	return err
}

// Complete promotes a sent command to the given final status (success
// or failed, as set by ret correlation) and stamps completed_at.
func (r *CommandRepository) Complete(ctx context.Context, id string, status string) error {
	now := time.Now().UTC()
	_, err := r.db.Pool.Exec(ctx, `UPDATE command_queue SET status = $2, completed_at = $3 WHERE id = $1`, id, status, now)
	return err
}

// IncrementRetry bumps retry_count, used when a command must be re-sent.
func (r *CommandRepository) IncrementRetry(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE command_queue SET retry_count = retry_count + 1 WHERE id = $1`, id)
	return err
}

// GetByID fetches a single command row, used by response correlation.
func (r *CommandRepository) GetByID(ctx context.Context, id string) (*CommandQueue, error) {
	var c CommandQueue
	query := `
		SELECT id, terminal_id, command, payload, status, retry_count, created_at, sent_at, completed_at
		FROM command_queue WHERE id = $1
	`
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.TerminalID, &c.Command, &c.Payload, &c.Status, &c.RetryCount,
		&c.CreatedAt, &c.SentAt, &c.CompletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
