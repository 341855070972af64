package protocol

import "testing"

func TestValidateRegSNLength(t *testing.T) {
	cases := []struct {
		sn      string
		wantErr bool
	}{
		{"", true},
		{"TM20", true},
		{"TM20-001", false},
		{"this-serial-number-is-just-over-the-fifty-char-limit", true},
	}

	for _, c := range cases {
		err := validateReg(&RegMessage{SN: c.sn})
		if (err != nil) != c.wantErr {
			t.Errorf("sn=%q: err=%v, wantErr=%v", c.sn, err, c.wantErr)
		}
	}
}

func TestValidateRegDevInfoNonNegative(t *testing.T) {
	err := validateReg(&RegMessage{
		SN:      "TM20-001",
		DevInfo: &DevInfo{UserSize: -1},
	})
	if err == nil {
		t.Fatal("expected error for negative usersize")
	}
}

func TestValidateSendUserBackupType(t *testing.T) {
	cases := []struct {
		backupNum int
		wantErr   bool
	}{
		{0, false},
		{9, false},
		{10, false},
		{11, false},
		{12, false},
		{13, false},
		{14, true},
		{20, false},
		{27, false},
		{28, true},
		{37, false},
		{50, false},
		{51, true},
	}

	for _, c := range cases {
		err := validateSendUser(&SendUserMessage{Enrollid: 1, BackupNum: c.backupNum, Admin: 0})
		if (err != nil) != c.wantErr {
			t.Errorf("backupnum=%d: err=%v, wantErr=%v", c.backupNum, err, c.wantErr)
		}
	}
}

func TestValidateSendUserAdminRange(t *testing.T) {
	for _, admin := range []int{0, 1, 2} {
		if err := validateSendUser(&SendUserMessage{Enrollid: 1, BackupNum: 0, Admin: admin}); err != nil {
			t.Errorf("admin=%d should be valid: %v", admin, err)
		}
	}
	if err := validateSendUser(&SendUserMessage{Enrollid: 1, BackupNum: 0, Admin: 3}); err == nil {
		t.Error("admin=3 should be invalid")
	}
}

func TestValidateSendLogRequiresRecordList(t *testing.T) {
	if err := validateSendLog(&SendLogMessage{Record: nil}); err == nil {
		t.Error("expected error for nil record")
	}
	if err := validateSendLog(&SendLogMessage{Record: []AttendanceRecord{}}); err != nil {
		t.Errorf("empty record slice should be valid: %v", err)
	}
}

func TestValidateSendQRCodeNonEmpty(t *testing.T) {
	if err := validateSendQRCode(&SendQRCodeMessage{Record: ""}); err == nil {
		t.Error("expected error for empty record")
	}
	if err := validateSendQRCode(&SendQRCodeMessage{Record: "123"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
