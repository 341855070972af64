package database

import (
	"database/sql"
	"time"
)

// Terminal is the identity of a physical TM20 biometric device.
type Terminal struct {
	ID            string
	SN            string
	CPUSN         sql.NullString
	Model         sql.NullString
	Firmware      sql.NullString
	MAC           sql.NullString
	UserCapacity  int
	FPCapacity    int
	CardCapacity  int
	LogCapacity   int
	LastSeen      sql.NullTime
	IsActive      bool
	IsWhitelisted bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BiometricUser is a user known to one terminal. Unique by
// (terminal, enrollid); external_id is unique with terminal when non-empty.
type BiometricUser struct {
	ID             string
	TerminalID     string
	Enrollid       int
	ExternalID     sql.NullString
	Name           sql.NullString
	AdminLevel     int
	IsEnabled      bool
	WeekZone1      int
	WeekZone2      int
	WeekZone3      int
	WeekZone4      int
	Group          sql.NullString
	StartTime      sql.NullTime
	EndTime        sql.NullTime
	SourceConfigID sql.NullString
	SyncStatus     string // local, pending_sync, synced_to_terminal, error
	LastSyncedAt   sql.NullTime
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BiometricCredential is one credential slot owned by a BiometricUser.
// Unique by (user, backup_type); payload is stored verbatim.
type BiometricCredential struct {
	ID         string
	UserID     string
	BackupType int
	Payload    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AttendanceLog is one punch. Immutable except for the sync triplet.
type AttendanceLog struct {
	ID            string
	TerminalID    string
	UserID        sql.NullString
	Enrollid      int
	Time          time.Time
	Mode          int
	Inout         int
	Event         sql.NullString
	Temperature   sql.NullFloat64
	Image         sql.NullString
	RawPayload    sql.NullString
	AccessGranted bool
	SyncStatus    string // pending, sent, failed
	SyncAttempts  int
	SyncedAt      sql.NullTime
	SyncError     sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CommandQueue is the durable outbox for commands addressed to a
// terminal while it is offline.
type CommandQueue struct {
	ID          string
	TerminalID  string
	Command     string
	Payload     sql.NullString
	Status      string // pending, sent, success, failed, timeout
	RetryCount  int
	CreatedAt   time.Time
	SentAt      sql.NullTime
	CompletedAt sql.NullTime
}

// ThirdPartyConfig is a remote back-office definition. AuthToken is
// stored encrypted at rest, see internal/crypto.
type ThirdPartyConfig struct {
	ID                  string
	Name                string
	BaseURL             string
	UsersEndpoint       sql.NullString
	AttendanceEndpoint  sql.NullString
	AuthType            string // none, bearer, api_key, basic
	AuthToken           sql.NullString
	AuthHeaderName      sql.NullString
	ExtraHeaders        sql.NullString // opaque JSON mapping
	TimeoutSeconds      int
	RetryAttempts       int
	SyncIntervalMinutes int
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TerminalThirdPartyMapping says which terminals feed which back-office.
// Unique by (terminal, config).
type TerminalThirdPartyMapping struct {
	ID                 string
	TerminalID         string
	ConfigID           string
	SyncUsers          bool
	SyncAttendance     bool
	IsActive           bool
	LastUserSync       sql.NullTime
	LastAttendanceSync sql.NullTime
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TerminalSchedule is a weekly schedule row per terminal.
type TerminalSchedule struct {
	ID               string
	TerminalID       string
	Weekday          int // 0..6
	CheckIn          sql.NullString
	CheckOut         sql.NullString
	BreakStart       sql.NullString
	BreakEnd         sql.NullString
	ToleranceMinutes int
	EffectiveFrom    sql.NullTime
	EffectiveUntil   sql.NullTime
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
