package database

import (
	"context"
)

// ScheduleRepository handles TerminalSchedule persistence.
type ScheduleRepository struct {
	db *DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// ActiveForTerminalAndWeekday returns the active schedule rows for a
// terminal on a given weekday (0..6), used to count late arrivals for
// the ATTENDANCE_LOG_BATCH event; it does not affect the access decision.
func (r *ScheduleRepository) ActiveForTerminalAndWeekday(ctx context.Context, terminalID string, weekday int) ([]TerminalSchedule, error) {
	query := `
		SELECT id, terminal_id, weekday, check_in, check_out, break_start, break_end,
		       tolerance_minutes, effective_from, effective_until, is_active,
		       created_at, updated_at
		FROM terminal_schedules
		WHERE terminal_id = $1 AND weekday = $2 AND is_active = true
	`
	rows, err := r.db.Pool.Query(ctx, query, terminalID, weekday)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []TerminalSchedule
	for rows.Next() {
		var s TerminalSchedule
		if err := rows.Scan(
			&s.ID, &s.TerminalID, &s.Weekday, &s.CheckIn, &s.CheckOut, &s.BreakStart,
			&s.BreakEnd, &s.ToleranceMinutes, &s.EffectiveFrom, &s.EffectiveUntil,
			&s.IsActive, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			continue
		}
		schedules = append(schedules, s)
	}
	return schedules, nil
}
