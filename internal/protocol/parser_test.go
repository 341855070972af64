package protocol

import "testing"

func TestParseFrameReg(t *testing.T) {
	data := []byte(`{"cmd":"reg","sn":"TM20-001","cpusn":"C1","devinfo":{"modelname":"TM20","usersize":3000,"fpsize":3000,"logsize":100000,"firmware":"v2.4","mac":"AA:BB:CC:DD:EE:FF"}}`)

	msg, err := ParseFrame(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != KindReg {
		t.Fatalf("expected KindReg, got %v", msg.Kind)
	}
	if msg.Reg.SN != "TM20-001" {
		t.Errorf("sn = %q, want TM20-001", msg.Reg.SN)
	}
	if msg.Reg.DevInfo == nil || msg.Reg.DevInfo.UserSize != 3000 {
		t.Errorf("devinfo not decoded correctly: %+v", msg.Reg.DevInfo)
	}
}

func TestParseFrameSendLog(t *testing.T) {
	data := []byte(`{"cmd":"sendlog","sn":"TM20-001","count":2,"logindex":1,"record":[{"enrollid":7,"time":"2024-01-02 08:00:00","mode":0,"inout":0},{"enrollid":7,"time":"2024-01-02 12:00:00","mode":0,"inout":0}]}`)

	msg, err := ParseFrame(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != KindSendLog {
		t.Fatalf("expected KindSendLog, got %v", msg.Kind)
	}
	if len(msg.SendLog.Record) != 2 {
		t.Fatalf("expected 2 records, got %d", len(msg.SendLog.Record))
	}
	if CountMismatch(msg.SendLog) {
		t.Errorf("count should match record length")
	}
}

func TestParseFrameResponse(t *testing.T) {
	data := []byte(`{"ret":"setusername","sn":"TM20-001","result":true}`)

	msg, err := ParseFrame(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != KindResponse {
		t.Fatalf("expected KindResponse, got %v", msg.Kind)
	}
	if msg.Response.Verb != "setusername" {
		t.Errorf("verb = %q, want setusername", msg.Response.Verb)
	}
	if !msg.Response.Result {
		t.Errorf("result should be true")
	}
}

func TestParseFrameUnknown(t *testing.T) {
	data := []byte(`{"foo":"bar"}`)
	_, err := ParseFrame(data)
	if err != ErrUnknownFrame {
		t.Errorf("expected ErrUnknownFrame, got %v", err)
	}
}

func TestParseFrameUnknownVerb(t *testing.T) {
	data := []byte(`{"cmd":"bogus","sn":"TM20-001"}`)
	_, err := ParseFrame(data)
	if err != ErrUnknownFrame {
		t.Errorf("expected ErrUnknownFrame for unknown verb, got %v", err)
	}
}
