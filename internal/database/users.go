package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// UserRepository handles BiometricUser and BiometricCredential persistence.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByTerminalAndEnrollid fetches a user by its (terminal, enrollid) key.
func (r *UserRepository) GetByTerminalAndEnrollid(ctx context.Context, terminalID string, enrollid int) (*BiometricUser, error) {
	var u BiometricUser
	query := `
		SELECT id, terminal_id, enrollid, external_id, name, admin_level, is_enabled,
		       week_zone1, week_zone2, week_zone3, week_zone4, "group", start_time,
		       end_time, source_config_id, sync_status, last_synced_at, created_at,
		       updated_at
		FROM biometric_users WHERE terminal_id = $1 AND enrollid = $2
	`
	err := r.db.Pool.QueryRow(ctx, query, terminalID, enrollid).Scan(
		&u.ID, &u.TerminalID, &u.Enrollid, &u.ExternalID, &u.Name, &u.AdminLevel,
		&u.IsEnabled, &u.WeekZone1, &u.WeekZone2, &u.WeekZone3, &u.WeekZone4,
		&u.Group, &u.StartTime, &u.EndTime, &u.SourceConfigID, &u.SyncStatus,
		&u.LastSyncedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByTerminalAndExternalID fetches a user by its (terminal, external_id)
// key, the identity the third-party sync upsert locates rows by.
func (r *UserRepository) GetByTerminalAndExternalID(ctx context.Context, terminalID, externalID string) (*BiometricUser, error) {
	var u BiometricUser
	query := `
		SELECT id, terminal_id, enrollid, external_id, name, admin_level, is_enabled,
		       week_zone1, week_zone2, week_zone3, week_zone4, "group", start_time,
		       end_time, source_config_id, sync_status, last_synced_at, created_at,
		       updated_at
		FROM biometric_users WHERE terminal_id = $1 AND external_id = $2
	`
	err := r.db.Pool.QueryRow(ctx, query, terminalID, externalID).Scan(
		&u.ID, &u.TerminalID, &u.Enrollid, &u.ExternalID, &u.Name, &u.AdminLevel,
		&u.IsEnabled, &u.WeekZone1, &u.WeekZone2, &u.WeekZone3, &u.WeekZone4,
		&u.Group, &u.StartTime, &u.EndTime, &u.SourceConfigID, &u.SyncStatus,
		&u.LastSyncedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// NextEnrollid returns the smallest positive integer not currently used
// by any user on the given terminal. Must be paired with a unique index
// on (terminal_id, enrollid) to close the race between the read and the
// subsequent insert.
func (r *UserRepository) NextEnrollid(ctx context.Context, terminalID string) (int, error) {
	query := `
		SELECT COALESCE(MIN(e.candidate), 1)
		FROM generate_series(1, (
			SELECT COALESCE(MAX(enrollid), 0) + 1 FROM biometric_users WHERE terminal_id = $1
		)) AS e(candidate)
		WHERE NOT EXISTS (
			SELECT 1 FROM biometric_users u WHERE u.terminal_id = $1 AND u.enrollid = e.candidate
		)
	`
	var next int
	if err := r.db.Pool.QueryRow(ctx, query, terminalID).Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

// UpsertFromDevice upserts a BiometricUser by (terminal, enrollid), as
// driven by a senduser frame from the terminal itself.
func (r *UserRepository) UpsertFromDevice(ctx context.Context, terminalID string, enrollid int, name string, adminLevel int) (*BiometricUser, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO biometric_users (id, terminal_id, enrollid, name, admin_level,
		                              is_enabled, sync_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, true, 'local', $6, $6)
		ON CONFLICT (terminal_id, enrollid) DO UPDATE SET
			name = EXCLUDED.name,
			admin_level = EXCLUDED.admin_level,
			updated_at = EXCLUDED.updated_at
		RETURNING id, terminal_id, enrollid, external_id, name, admin_level, is_enabled,
		          week_zone1, week_zone2, week_zone3, week_zone4, "group", start_time,
		          end_time, source_config_id, sync_status, last_synced_at, created_at,
		          updated_at
	`
	var u BiometricUser
	err := r.db.Pool.QueryRow(ctx, query, uuid.New().String(), terminalID, enrollid, name, adminLevel, now).Scan(
		&u.ID, &u.TerminalID, &u.Enrollid, &u.ExternalID, &u.Name, &u.AdminLevel,
		&u.IsEnabled, &u.WeekZone1, &u.WeekZone2, &u.WeekZone3, &u.WeekZone4,
		&u.Group, &u.StartTime, &u.EndTime, &u.SourceConfigID, &u.SyncStatus,
		&u.LastSyncedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ThirdPartyUser is the normalized shape a third-party pull produces
// after duck-typed envelope parsing, ready for the upsert rule.
type ThirdPartyUser struct {
	ExternalID string
	FullName   string
	IsEnabled  bool
	AdminLevel int
	Group      string
	StartDate  sql.NullTime
	EndDate    sql.NullTime
}

// CreateFromThirdParty inserts a new BiometricUser sourced from a
// third-party pull, allocating the next free enrollid.
func (r *UserRepository) CreateFromThirdParty(ctx context.Context, terminalID, configID string, u ThirdPartyUser) (*BiometricUser, error) {
	enrollid, err := r.NextEnrollid(ctx, terminalID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO biometric_users (id, terminal_id, enrollid, external_id, name,
		                              admin_level, is_enabled, "group", start_time,
		                              end_time, source_config_id, sync_status,
		                              created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending_sync', $12, $12)
		RETURNING id, terminal_id, enrollid, external_id, name, admin_level, is_enabled,
		          week_zone1, week_zone2, week_zone3, week_zone4, "group", start_time,
		          end_time, source_config_id, sync_status, last_synced_at, created_at,
		          updated_at
	`
	var row BiometricUser
	err = r.db.Pool.QueryRow(ctx, query,
		uuid.New().String(), terminalID, enrollid, u.ExternalID, u.FullName, u.AdminLevel,
		u.IsEnabled, nullIfEmpty(u.Group), u.StartDate, u.EndDate, configID, now,
	).Scan(
		&row.ID, &row.TerminalID, &row.Enrollid, &row.ExternalID, &row.Name, &row.AdminLevel,
		&row.IsEnabled, &row.WeekZone1, &row.WeekZone2, &row.WeekZone3, &row.WeekZone4,
		&row.Group, &row.StartTime, &row.EndTime, &row.SourceConfigID, &row.SyncStatus,
		&row.LastSyncedAt, &row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateFromThirdParty overwrites the mutable fields of an existing user
// and marks it pending_sync, called only when the dirty check detects a
// difference from the pulled record.
func (r *UserRepository) UpdateFromThirdParty(ctx context.Context, id string, u ThirdPartyUser) error {
	query := `
		UPDATE biometric_users SET
			name = $2, is_enabled = $3, admin_level = $4, "group" = $5,
			start_time = $6, end_time = $7, sync_status = 'pending_sync',
			updated_at = $8
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, id, u.FullName, u.IsEnabled, u.AdminLevel,
		nullIfEmpty(u.Group), u.StartDate, u.EndDate, time.Now().UTC())
	return err
}

// ListPendingSync returns all users for a terminal awaiting push to the device.
func (r *UserRepository) ListPendingSync(ctx context.Context, terminalID string) ([]BiometricUser, error) {
	query := `
		SELECT id, terminal_id, enrollid, external_id, name, admin_level, is_enabled,
		       week_zone1, week_zone2, week_zone3, week_zone4, "group", start_time,
		       end_time, source_config_id, sync_status, last_synced_at, created_at,
		       updated_at
		FROM biometric_users WHERE terminal_id = $1 AND sync_status = 'pending_sync'
		ORDER BY enrollid
	`
	rows, err := r.db.Pool.Query(ctx, query, terminalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []BiometricUser
	for rows.Next() {
		var u BiometricUser
		if err := rows.Scan(
			&u.ID, &u.TerminalID, &u.Enrollid, &u.ExternalID, &u.Name, &u.AdminLevel,
			&u.IsEnabled, &u.WeekZone1, &u.WeekZone2, &u.WeekZone3, &u.WeekZone4,
			&u.Group, &u.StartTime, &u.EndTime, &u.SourceConfigID, &u.SyncStatus,
			&u.LastSyncedAt, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// ListTerminalsWithPendingSync returns the distinct terminal ids that
// have at least one biometric_users row waiting to be pushed to the
// device, so the user sync engine's ticker knows which terminals to
// enqueue a push task for.
func (r *UserRepository) ListTerminalsWithPendingSync(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT DISTINCT terminal_id FROM biometric_users WHERE sync_status = 'pending_sync'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// MarkSyncedToTerminal marks the given user IDs synced_to_terminal,
// called when a setusername ret arrives with result=true.
func (r *UserRepository) MarkSyncedToTerminal(ctx context.Context, ids []string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE biometric_users SET sync_status = 'synced_to_terminal', last_synced_at = $2, updated_at = $2
		WHERE id = ANY($1)
	`, ids, time.Now().UTC())
	return err
}

// MarkSyncError marks the given user IDs error, called when the matching
// ret arrives with result=false.
func (r *UserRepository) MarkSyncError(ctx context.Context, ids []string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE biometric_users SET sync_status = 'error', updated_at = $2 WHERE id = ANY($1)
	`, ids, time.Now().UTC())
	return err
}

// CredentialRepository handles BiometricCredential persistence.
type CredentialRepository struct {
	db *DB
}

// NewCredentialRepository creates a new credential repository.
func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Upsert stores a credential payload verbatim, unique by (user, backup_type).
func (r *CredentialRepository) Upsert(ctx context.Context, userID string, backupType int, payload string) error {
	now := time.Now().UTC()
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO biometric_credentials (id, user_id, backup_type, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id, backup_type) DO UPDATE SET
			payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`, uuid.New().String(), userID, backupType, payload, now)
	return err
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
