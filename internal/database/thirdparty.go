package database

import (
	"context"
	"time"
)

// ThirdPartyRepository handles ThirdPartyConfig and
// TerminalThirdPartyMapping persistence.
type ThirdPartyRepository struct {
	db *DB
}

// NewThirdPartyRepository creates a new third-party config repository.
func NewThirdPartyRepository(db *DB) *ThirdPartyRepository {
	return &ThirdPartyRepository{db: db}
}

// ListActive returns all active third-party configs, the unit of work
// the sync engines iterate over.
func (r *ThirdPartyRepository) ListActive(ctx context.Context) ([]ThirdPartyConfig, error) {
	query := `
		SELECT id, name, base_url, users_endpoint, attendance_endpoint, auth_type,
		       auth_token, auth_header_name, extra_headers, timeout_seconds,
		       retry_attempts, sync_interval_minutes, is_active, created_at, updated_at
		FROM third_party_configs WHERE is_active = true
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []ThirdPartyConfig
	for rows.Next() {
		var c ThirdPartyConfig
		if err := rows.Scan(
			&c.ID, &c.Name, &c.BaseURL, &c.UsersEndpoint, &c.AttendanceEndpoint,
			&c.AuthType, &c.AuthToken, &c.AuthHeaderName, &c.ExtraHeaders,
			&c.TimeoutSeconds, &c.RetryAttempts, &c.SyncIntervalMinutes, &c.IsActive,
			&c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			continue
		}
		configs = append(configs, c)
	}
	return configs, nil
}

// GetByID fetches one config by id.
func (r *ThirdPartyRepository) GetByID(ctx context.Context, id string) (*ThirdPartyConfig, error) {
	var c ThirdPartyConfig
	query := `
		SELECT id, name, base_url, users_endpoint, attendance_endpoint, auth_type,
		       auth_token, auth_header_name, extra_headers, timeout_seconds,
		       retry_attempts, sync_interval_minutes, is_active, created_at, updated_at
		FROM third_party_configs WHERE id = $1
	`
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.BaseURL, &c.UsersEndpoint, &c.AttendanceEndpoint,
		&c.AuthType, &c.AuthToken, &c.AuthHeaderName, &c.ExtraHeaders,
		&c.TimeoutSeconds, &c.RetryAttempts, &c.SyncIntervalMinutes, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MappingsForConfig returns the terminals actively mapped to a config for
// attendance or user sync.
func (r *ThirdPartyRepository) MappingsForConfig(ctx context.Context, configID string) ([]TerminalThirdPartyMapping, error) {
	query := `
		SELECT id, terminal_id, config_id, sync_users, sync_attendance, is_active,
		       last_user_sync, last_attendance_sync, created_at, updated_at
		FROM terminal_third_party_mappings WHERE config_id = $1 AND is_active = true
	`
	rows, err := r.db.Pool.Query(ctx, query, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []TerminalThirdPartyMapping
	for rows.Next() {
		var m TerminalThirdPartyMapping
		if err := rows.Scan(
			&m.ID, &m.TerminalID, &m.ConfigID, &m.SyncUsers, &m.SyncAttendance,
			&m.IsActive, &m.LastUserSync, &m.LastAttendanceSync, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			continue
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

// TouchLastAttendanceSync stamps mapping.last_attendance_sync=now.
func (r *ThirdPartyRepository) TouchLastAttendanceSync(ctx context.Context, terminalID, configID string) error {
	now := time.Now().UTC()
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE terminal_third_party_mappings SET last_attendance_sync = $3, updated_at = $3
		WHERE terminal_id = $1 AND config_id = $2
	`, terminalID, configID, now)
	return err
}

// TouchLastUserSync stamps mapping.last_user_sync=now.
func (r *ThirdPartyRepository) TouchLastUserSync(ctx context.Context, terminalID, configID string) error {
	now := time.Now().UTC()
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE terminal_third_party_mappings SET last_user_sync = $3, updated_at = $3
		WHERE terminal_id = $1 AND config_id = $2
	`, terminalID, configID, now)
	return err
}
