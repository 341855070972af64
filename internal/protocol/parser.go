package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageKind identifies which typed payload a parsed Message carries.
type MessageKind int

const (
	KindReg MessageKind = iota
	KindSendLog
	KindSendUser
	KindSendQRCode
	KindResponse
)

// DevInfo is the device-info block attached to reg.
type DevInfo struct {
	ModelName string `json:"modelname"`
	UserSize  int    `json:"usersize"`
	FPSize    int    `json:"fpsize"`
	LogSize   int    `json:"logsize"`
	Firmware  string `json:"firmware"`
	MAC       string `json:"mac"`
}

// RegMessage is the reg command payload.
type RegMessage struct {
	SN     string   `json:"sn"`
	CPUSN  string   `json:"cpusn"`
	DevInfo *DevInfo `json:"devinfo,omitempty"`
}

// AttendanceRecord is one punch entry inside a sendlog batch.
type AttendanceRecord struct {
	Enrollid int    `json:"enrollid"`
	Time     string `json:"time"`
	Mode     int    `json:"mode"`
	Inout    int    `json:"inout"`
}

// SendLogMessage is the sendlog command payload.
type SendLogMessage struct {
	SN       string             `json:"sn"`
	Count    int                `json:"count"`
	LogIndex int                `json:"logindex"`
	Record   []AttendanceRecord `json:"record"`
}

// SendUserMessage is the senduser command payload.
type SendUserMessage struct {
	SN        string `json:"sn"`
	Enrollid  int    `json:"enrollid"`
	Name      string `json:"name"`
	BackupNum int    `json:"backupnum"`
	Admin     int    `json:"admin"`
	Record    string `json:"record"`
}

// SendQRCodeMessage is the sendqrcode command payload.
type SendQRCodeMessage struct {
	SN     string `json:"sn"`
	Record string `json:"record"`
}

// ResponseMessage is an inbound ret frame — the terminal's acknowledgement
// of a server-initiated command such as setusername.
type ResponseMessage struct {
	SN     string          `json:"sn"`
	Verb   string          `json:"-"`
	Result bool            `json:"result"`
	Reason json.RawMessage `json:"reason,omitempty"`
}

// Message is the parser's typed result for one inbound frame. Exactly one
// of the payload pointers is non-nil, selected by Kind.
type Message struct {
	Kind       MessageKind
	Verb       string
	SN         string
	Reg        *RegMessage
	SendLog    *SendLogMessage
	SendUser   *SendUserMessage
	SendQRCode *SendQRCodeMessage
	Response   *ResponseMessage
}

// sniff peeks at the root object to find which of cmd/ret is present,
// without committing to a specific payload shape yet.
type sniff struct {
	Cmd string `json:"cmd"`
	Ret string `json:"ret"`
	SN  string `json:"sn"`
}

// ParseFrame decodes one TM20 JSON text frame into a typed Message.
// Unknown verbs return ErrUnknownFrame; malformed payloads for a known
// verb return a *ValidationError, per the wire contract that a bad frame
// is dropped, not fatal.
func ParseFrame(data []byte) (*Message, error) {
	var s sniff
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("protocol: decode frame: %w", err)
	}

	switch {
	case s.Cmd != "":
		return parseCommand(s.Cmd, data)
	case s.Ret != "":
		return parseResponse(s.Ret, data)
	default:
		return nil, ErrUnknownFrame
	}
}

func parseCommand(verb string, data []byte) (*Message, error) {
	switch verb {
	case CmdReg:
		var m RegMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, &ValidationError{Verb: verb, Reason: err.Error()}
		}
		return &Message{Kind: KindReg, Verb: verb, SN: m.SN, Reg: &m}, nil
	case CmdSendLog:
		var m SendLogMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, &ValidationError{Verb: verb, Reason: err.Error()}
		}
		return &Message{Kind: KindSendLog, Verb: verb, SN: m.SN, SendLog: &m}, nil
	case CmdSendUser:
		var m SendUserMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, &ValidationError{Verb: verb, Reason: err.Error()}
		}
		return &Message{Kind: KindSendUser, Verb: verb, SN: m.SN, SendUser: &m}, nil
	case CmdSendQRCode:
		var m SendQRCodeMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, &ValidationError{Verb: verb, Reason: err.Error()}
		}
		return &Message{Kind: KindSendQRCode, Verb: verb, SN: m.SN, SendQRCode: &m}, nil
	default:
		return nil, ErrUnknownFrame
	}
}

func parseResponse(verb string, data []byte) (*Message, error) {
	var m ResponseMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ValidationError{Verb: verb, Reason: err.Error()}
	}
	m.Verb = verb
	return &Message{Kind: KindResponse, Verb: verb, SN: m.SN, Response: &m}, nil
}
