package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nodebyte/tm20hub/internal/database"
	"github.com/nodebyte/tm20hub/internal/eventbus"
	"github.com/nodebyte/tm20hub/internal/metrics"
	"github.com/nodebyte/tm20hub/internal/protocol"
)

// isLateArrival looks up terminalID's active schedule rows for at's
// weekday (cached per batch) and reports whether at is late against any
// of them with a configured check-in time.
func isLateArrival(ctx context.Context, schedules *database.ScheduleRepository, cache map[int][]database.TerminalSchedule, terminalID string, at time.Time) bool {
	weekday := int(at.Weekday())
	rows, ok := cache[weekday]
	if !ok {
		var err error
		rows, err = schedules.ActiveForTerminalAndWeekday(ctx, terminalID, weekday)
		if err != nil {
			rows = nil
		}
		cache[weekday] = rows
	}

	for _, row := range rows {
		if !row.CheckIn.Valid {
			continue
		}
		if IsLate(row.CheckIn.String, row.ToleranceMinutes, at) {
			return true
		}
	}
	return false
}

// IsLate reports whether at falls later than checkIn plus its tolerance
// window, for a terminal_schedules row matching the punch's weekday.
// checkIn is "HH:MM"; a malformed value never counts as late.
func IsLate(checkIn string, toleranceMinutes int, at time.Time) bool {
	layout := "15:04"
	parsed, err := time.Parse(layout, checkIn)
	if err != nil {
		return false
	}
	scheduled := time.Date(at.Year(), at.Month(), at.Day(), parsed.Hour(), parsed.Minute(), 0, 0, at.Location())
	return at.After(scheduled.Add(time.Duration(toleranceMinutes) * time.Minute))
}

// DetermineInout computes the server-inferred inout direction for a new
// punch, never trusting the device's own value. If there is no prior
// log, or the prior log is older than sessionWindow, the punch defaults
// to entry (0). Otherwise it flips the previous direction.
func DetermineInout(hasPrior bool, prevInout int, prevAt, now time.Time, sessionWindow time.Duration) int {
	if !hasPrior {
		return protocol.InoutEntry
	}
	if now.Sub(prevAt) > sessionWindow {
		return protocol.InoutEntry
	}
	if prevInout == protocol.InoutEntry {
		return protocol.InoutExit
	}
	return protocol.InoutEntry
}

// CheckAccess reports whether a punch is allowed. Unknown users
// (userFound=false) are allowed, since the device already authenticated
// them locally; a known user is denied only if disabled or outside
// their validity window.
func CheckAccess(userFound bool, isEnabled bool, hasStart bool, start time.Time, hasEnd bool, end time.Time, now time.Time) bool {
	if !userFound {
		return true
	}
	if !isEnabled {
		return false
	}
	if hasStart && now.Before(start) {
		return false
	}
	if hasEnd && now.After(end) {
		return false
	}
	return true
}

// SendLogHandler handles sendlog: resolves each record's user, infers
// inout, bulk-inserts the batch in one transaction, and replies with
// access 1 only when every record in the batch was granted, 0 otherwise.
type SendLogHandler struct {
	Attendance    *database.AttendanceRepository
	Users         *database.UserRepository
	Terminals     *database.TerminalRepository
	Schedules     *database.ScheduleRepository
	Bus           *eventbus.Bus
	Metrics       *metrics.Registry
	SendTimeout   time.Duration
	SessionWindow time.Duration
}

func (h *SendLogHandler) Handle(ctx context.Context, s *Session, msg *protocol.Message) error {
	start := time.Now()
	in := msg.SendLog

	if protocol.CountMismatch(in) {
		log.Warn().Str("sn", in.SN).Int("count", in.Count).Int("actual", len(in.Record)).Msg("session: sendlog count mismatch")
	}

	terminal, err := h.Terminals.GetBySN(ctx, in.SN)
	if err != nil {
		log.Error().Str("sn", in.SN).Err(err).Msg("session: sendlog terminal lookup failed")
		return s.sendOrLog(ctx, protocol.SendLogResponse(false, 0, in.LogIndex, time.Now().UTC(), 0, 1), h.SendTimeout)
	}

	logs := make([]database.NewLog, 0, len(in.Record))
	access := 1
	lateCount := 0
	scheduleCache := make(map[int][]database.TerminalSchedule)

	// batchInout tracks the last-seen (inout, time) per enrollid as the
	// loop processes records in order, so two records for the same
	// enrollid within one batch see each other without round-tripping
	// through the not-yet-committed BulkInsert.
	batchInout := make(map[int]struct {
		Inout int
		At    time.Time
	})

	for _, rec := range in.Record {
		recTime := protocol.ParseWireTime(rec.Time)

		var userID *string
		userFound := false
		isEnabled := false
		hasStart, hasEnd := false, false
		var startAt, endAt time.Time

		hasPrior := false
		prevInout := protocol.InoutEntry
		var prevAt time.Time

		if rec.Enrollid > 0 {
			if user, err := h.Users.GetByTerminalAndEnrollid(ctx, terminal.ID, rec.Enrollid); err == nil {
				userFound = true
				id := user.ID
				userID = &id
				isEnabled = user.IsEnabled
				if user.StartTime.Valid {
					hasStart, startAt = true, user.StartTime.Time
				}
				if user.EndTime.Valid {
					hasEnd, endAt = true, user.EndTime.Time
				}
			}

			if prior, ok := batchInout[rec.Enrollid]; ok {
				hasPrior, prevInout, prevAt = true, prior.Inout, prior.At
			} else if inout, at, ok, err := h.Attendance.LastInoutForEnrollid(ctx, terminal.ID, rec.Enrollid); err == nil && ok {
				hasPrior, prevInout, prevAt = true, inout, at
			}
		}

		inout := DetermineInout(hasPrior, prevInout, prevAt, recTime, h.SessionWindow)
		if rec.Enrollid > 0 {
			batchInout[rec.Enrollid] = struct {
				Inout int
				At    time.Time
			}{Inout: inout, At: recTime}
		}

		granted := CheckAccess(userFound, isEnabled, hasStart, startAt, hasEnd, endAt, recTime)
		if !granted {
			access = 0
		}

		if inout == protocol.InoutEntry && h.Schedules != nil {
			if isLateArrival(ctx, h.Schedules, scheduleCache, terminal.ID, recTime) {
				lateCount++
			}
		}

		logs = append(logs, database.NewLog{
			TerminalID:    terminal.ID,
			UserID:        userID,
			Enrollid:      rec.Enrollid,
			Time:          recTime,
			Mode:          rec.Mode,
			Inout:         inout,
			AccessGranted: granted,
		})
	}

	if err := h.Attendance.BulkInsert(ctx, logs); err != nil {
		log.Error().Str("sn", in.SN).Err(err).Msg("session: sendlog bulk insert failed")
		return s.sendOrLog(ctx, protocol.SendLogResponse(false, 0, in.LogIndex, time.Now().UTC(), 0, 1), h.SendTimeout)
	}

	if h.Metrics != nil {
		h.Metrics.RecordLog(in.SN, len(logs))
	}
	if h.Bus != nil {
		h.Bus.Publish(eventbus.Event{Kind: eventbus.AttendanceBatch, Data: map[string]any{
			"sn":         in.SN,
			"count":      len(logs),
			"late_count": lateCount,
			"latency_ms": time.Since(start).Milliseconds(),
		}})
	}

	return s.sendOrLog(ctx, protocol.SendLogResponse(true, len(logs), in.LogIndex, time.Now().UTC(), access, 0), h.SendTimeout)
}
