package protocol

import "fmt"

// Validate runs the per-verb validation table from the wire contract. A
// non-nil error is always a *ValidationError — the caller logs it and
// drops the frame, it never closes the socket.
func Validate(msg *Message) error {
	switch msg.Kind {
	case KindReg:
		return validateReg(msg.Reg)
	case KindSendLog:
		return validateSendLog(msg.SendLog)
	case KindSendUser:
		return validateSendUser(msg.SendUser)
	case KindSendQRCode:
		return validateSendQRCode(msg.SendQRCode)
	case KindResponse:
		return nil
	default:
		return &ValidationError{Verb: msg.Verb, Reason: "unknown message kind"}
	}
}

func validateReg(m *RegMessage) error {
	if len(m.SN) < 5 || len(m.SN) > 50 {
		return &ValidationError{Verb: CmdReg, Reason: "sn must be 5-50 chars"}
	}
	if m.DevInfo != nil {
		if m.DevInfo.UserSize < 0 || m.DevInfo.FPSize < 0 || m.DevInfo.LogSize < 0 {
			return &ValidationError{Verb: CmdReg, Reason: "devinfo size fields must be non-negative"}
		}
	}
	return nil
}

func validateSendLog(m *SendLogMessage) error {
	if m.Record == nil {
		return &ValidationError{Verb: CmdSendLog, Reason: "record must be a list"}
	}
	for i, r := range m.Record {
		if r.Time == "" {
			return &ValidationError{Verb: CmdSendLog, Reason: fmt.Sprintf("record[%d] missing time", i)}
		}
	}
	// count mismatch with len(record) is logged by the caller, not fatal here.
	return nil
}

func validateSendUser(m *SendUserMessage) error {
	if m.Enrollid < 0 {
		return &ValidationError{Verb: CmdSendUser, Reason: "enrollid must be >= 0"}
	}
	if !ValidBackupType(m.BackupNum) {
		return &ValidationError{Verb: CmdSendUser, Reason: fmt.Sprintf("backupnum %d out of range", m.BackupNum)}
	}
	if m.Admin < 0 || m.Admin > 2 {
		return &ValidationError{Verb: CmdSendUser, Reason: "admin must be in {0,1,2}"}
	}
	return nil
}

func validateSendQRCode(m *SendQRCodeMessage) error {
	if m.Record == "" {
		return &ValidationError{Verb: CmdSendQRCode, Reason: "record must be non-empty"}
	}
	return nil
}

// CountMismatch reports whether the declared count disagrees with the
// actual number of records — logged by callers, never treated as fatal.
func CountMismatch(m *SendLogMessage) bool {
	return m.Count != len(m.Record)
}
