package protocol

import (
	"encoding/json"
	"time"
)

// --- Responses (server -> terminal, echoing the inbound verb in ret) ---

// RegResponse builds {ret:"reg", result, cloudtime, nosenduser} on success,
// or {ret:"reg", result:false, reason} on failure.
func RegResponse(ok bool, now time.Time, reason string) []byte {
	if !ok {
		return mustMarshal(map[string]any{
			"ret":    CmdReg,
			"result": false,
			"reason": reason,
		})
	}
	return mustMarshal(map[string]any{
		"ret":        CmdReg,
		"result":     true,
		"cloudtime":  FormatWireTime(now),
		"nosenduser": true,
	})
}

// SendLogResponse builds the sendlog acknowledgement.
func SendLogResponse(ok bool, count, logIndex int, now time.Time, access int, reason int) []byte {
	if !ok {
		return mustMarshal(map[string]any{
			"ret":    CmdSendLog,
			"result": false,
			"reason": reason,
		})
	}
	return mustMarshal(map[string]any{
		"ret":       CmdSendLog,
		"result":    true,
		"count":     count,
		"logindex":  logIndex,
		"cloudtime": FormatWireTime(now),
		"access":    access,
	})
}

// SendUserResponse builds the senduser acknowledgement.
func SendUserResponse(ok bool, now time.Time) []byte {
	return mustMarshal(map[string]any{
		"ret":       CmdSendUser,
		"result":    ok,
		"cloudtime": FormatWireTime(now),
	})
}

// SendQRCodeResponse builds the sendqrcode acknowledgement.
func SendQRCodeResponse(access int, enrollid int, username, message string) []byte {
	return mustMarshal(map[string]any{
		"ret":      CmdSendQRCode,
		"result":   true,
		"access":   access,
		"enrollid": enrollid,
		"username": username,
		"message":  message,
	})
}

// --- Server-initiated commands ---

// UserNameRecord is one entry of a setusername batch.
type UserNameRecord struct {
	Enrollid int    `json:"enrollid"`
	Name     string `json:"name"`
}

// SetUserNameCommand builds the setusername batch push.
func SetUserNameCommand(records []UserNameRecord) []byte {
	return mustMarshal(map[string]any{
		"cmd":    CmdSetUserName,
		"count":  len(records),
		"record": records,
	})
}

// OpenDoorCommand builds opendoor{door,delay}.
func OpenDoorCommand(door, delaySeconds int) []byte {
	return mustMarshal(map[string]any{
		"cmd":   CmdOpenDoor,
		"door":  door,
		"delay": delaySeconds,
	})
}

// SetTimeCommand builds settime{cloudtime}.
func SetTimeCommand(now time.Time) []byte {
	return mustMarshal(map[string]any{
		"cmd":       CmdSetTime,
		"cloudtime": FormatWireTime(now),
	})
}

// GetTimeCommand builds gettime{}.
func GetTimeCommand() []byte { return mustMarshal(map[string]any{"cmd": CmdGetTime}) }

// GetUserListCommand builds getuserlist{stn}.
func GetUserListCommand(stn int) []byte {
	return mustMarshal(map[string]any{"cmd": CmdGetUserList, "stn": stn})
}

// GetUserInfoCommand builds getuserinfo{enrollid,backupnum}.
func GetUserInfoCommand(enrollid, backupNum int) []byte {
	return mustMarshal(map[string]any{
		"cmd":       CmdGetUserInfo,
		"enrollid":  enrollid,
		"backupnum": backupNum,
	})
}

// SetUserInfoCommand builds setuserinfo{enrollid,name,backupnum,admin,record}.
func SetUserInfoCommand(enrollid int, name string, backupNum, admin int, record string) []byte {
	return mustMarshal(map[string]any{
		"cmd":       CmdSetUserInfo,
		"enrollid":  enrollid,
		"name":      name,
		"backupnum": backupNum,
		"admin":     admin,
		"record":    record,
	})
}

// DeleteUserCommand builds deleteuser{enrollid,backupnum}.
func DeleteUserCommand(enrollid, backupNum int) []byte {
	return mustMarshal(map[string]any{
		"cmd":       CmdDeleteUser,
		"enrollid":  enrollid,
		"backupnum": backupNum,
	})
}

// EnableUserCommand builds enableuser{enrollid,enflag}.
func EnableUserCommand(enrollid int, enable bool) []byte {
	enflag := 0
	if enable {
		enflag = 1
	}
	return mustMarshal(map[string]any{
		"cmd":      CmdEnableUser,
		"enrollid": enrollid,
		"enflag":   enflag,
	})
}

// GetNewLogCommand builds getnewlog{stn}.
func GetNewLogCommand(stn int) []byte {
	return mustMarshal(map[string]any{"cmd": CmdGetNewLog, "stn": stn})
}

// GetAllLogCommand builds getalllog{stn}.
func GetAllLogCommand(stn int) []byte {
	return mustMarshal(map[string]any{"cmd": CmdGetAllLog, "stn": stn})
}

// CleanLogCommand builds cleanlog{}.
func CleanLogCommand() []byte { return mustMarshal(map[string]any{"cmd": CmdCleanLog}) }

// CleanUserCommand builds cleanuser{}.
func CleanUserCommand() []byte { return mustMarshal(map[string]any{"cmd": CmdCleanUser}) }

// RebootCommand builds reboot{}.
func RebootCommand() []byte { return mustMarshal(map[string]any{"cmd": CmdReboot}) }

// GetDevInfoCommand builds getdevinfo{}.
func GetDevInfoCommand() []byte { return mustMarshal(map[string]any{"cmd": CmdGetDevInfo}) }

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Every builder call passes a literal map of JSON-safe values;
		// a marshal failure here means a caller broke that invariant.
		panic("protocol: builder produced unmarshalable value: " + err.Error())
	}
	return b
}
