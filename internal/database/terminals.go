package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TerminalRepository handles Terminal persistence.
type TerminalRepository struct {
	db *DB
}

// NewTerminalRepository creates a new terminal repository.
func NewTerminalRepository(db *DB) *TerminalRepository {
	return &TerminalRepository{db: db}
}

// GetBySN fetches a terminal by its serial number.
func (r *TerminalRepository) GetBySN(ctx context.Context, sn string) (*Terminal, error) {
	var t Terminal
	query := `
		SELECT id, sn, cpusn, model, firmware, mac, user_capacity, fp_capacity,
		       card_capacity, log_capacity, last_seen, is_active, is_whitelisted,
		       created_at, updated_at
		FROM terminals WHERE sn = $1
	`
	err := r.db.Pool.QueryRow(ctx, query, sn).Scan(
		&t.ID, &t.SN, &t.CPUSN, &t.Model, &t.Firmware, &t.MAC, &t.UserCapacity,
		&t.FPCapacity, &t.CardCapacity, &t.LogCapacity, &t.LastSeen, &t.IsActive,
		&t.IsWhitelisted, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByID fetches a terminal by its internal id, used where a foreign
// key references terminals but only the SN is meaningful on the wire.
func (r *TerminalRepository) GetByID(ctx context.Context, id string) (*Terminal, error) {
	var t Terminal
	query := `
		SELECT id, sn, cpusn, model, firmware, mac, user_capacity, fp_capacity,
		       card_capacity, log_capacity, last_seen, is_active, is_whitelisted,
		       created_at, updated_at
		FROM terminals WHERE id = $1
	`
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.SN, &t.CPUSN, &t.Model, &t.Firmware, &t.MAC, &t.UserCapacity,
		&t.FPCapacity, &t.CardCapacity, &t.LogCapacity, &t.LastSeen, &t.IsActive,
		&t.IsWhitelisted, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RegistrationInfo carries the fields a reg frame contributes to the
// Terminal row. Capacity fields of 0 mean "not reported" and are left
// untouched on upsert.
type RegistrationInfo struct {
	SN           string
	CPUSN        string
	Model        string
	Firmware     string
	MAC          string
	UserCapacity int
	FPCapacity   int
	LogCapacity  int
}

// Upsert creates or updates the Terminal row by sn, stamping
// last_seen=now, is_active=true. Registration is idempotent: applying the
// same RegistrationInfo twice yields one row with last_seen advanced.
func (r *TerminalRepository) Upsert(ctx context.Context, info RegistrationInfo) (*Terminal, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO terminals (id, sn, cpusn, model, firmware, mac, user_capacity,
		                        fp_capacity, log_capacity, last_seen, is_active,
		                        is_whitelisted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, true, false, $10, $10)
		ON CONFLICT (sn) DO UPDATE SET
			cpusn = EXCLUDED.cpusn,
			model = EXCLUDED.model,
			firmware = EXCLUDED.firmware,
			mac = EXCLUDED.mac,
			user_capacity = CASE WHEN EXCLUDED.user_capacity > 0 THEN EXCLUDED.user_capacity ELSE terminals.user_capacity END,
			fp_capacity = CASE WHEN EXCLUDED.fp_capacity > 0 THEN EXCLUDED.fp_capacity ELSE terminals.fp_capacity END,
			log_capacity = CASE WHEN EXCLUDED.log_capacity > 0 THEN EXCLUDED.log_capacity ELSE terminals.log_capacity END,
			last_seen = EXCLUDED.last_seen,
			is_active = true,
			updated_at = EXCLUDED.last_seen
		RETURNING id, sn, cpusn, model, firmware, mac, user_capacity, fp_capacity,
		          card_capacity, log_capacity, last_seen, is_active, is_whitelisted,
		          created_at, updated_at
	`

	var t Terminal
	err := r.db.Pool.QueryRow(ctx, query,
		uuid.New().String(), info.SN, info.CPUSN, info.Model, info.Firmware, info.MAC,
		info.UserCapacity, info.FPCapacity, info.LogCapacity, now,
	).Scan(
		&t.ID, &t.SN, &t.CPUSN, &t.Model, &t.Firmware, &t.MAC, &t.UserCapacity,
		&t.FPCapacity, &t.CardCapacity, &t.LogCapacity, &t.LastSeen, &t.IsActive,
		&t.IsWhitelisted, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListActive returns all terminals currently marked active.
func (r *TerminalRepository) ListActive(ctx context.Context) ([]Terminal, error) {
	query := `
		SELECT id, sn, cpusn, model, firmware, mac, user_capacity, fp_capacity,
		       card_capacity, log_capacity, last_seen, is_active, is_whitelisted,
		       created_at, updated_at
		FROM terminals WHERE is_active = true ORDER BY sn
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var terminals []Terminal
	for rows.Next() {
		var t Terminal
		if err := rows.Scan(
			&t.ID, &t.SN, &t.CPUSN, &t.Model, &t.Firmware, &t.MAC, &t.UserCapacity,
			&t.FPCapacity, &t.CardCapacity, &t.LogCapacity, &t.LastSeen, &t.IsActive,
			&t.IsWhitelisted, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			continue
		}
		terminals = append(terminals, t)
	}
	return terminals, nil
}

// MarkInactive flips is_active to false, e.g. on a long-running health
// monitor sweep of terminals that never reconnected.
func (r *TerminalRepository) MarkInactive(ctx context.Context, sn string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE terminals SET is_active = false, updated_at = $2 WHERE sn = $1`, sn, time.Now().UTC())
	return err
}
