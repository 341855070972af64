package session

import (
	"time"

	"github.com/nodebyte/tm20hub/internal/commandqueue"
	"github.com/nodebyte/tm20hub/internal/database"
	"github.com/nodebyte/tm20hub/internal/eventbus"
	"github.com/nodebyte/tm20hub/internal/metrics"
	"github.com/nodebyte/tm20hub/internal/protocol"
	"github.com/nodebyte/tm20hub/internal/registry"
)

// Deps bundles everything the four inbound handlers need, so
// cmd/hub/main.go builds it once and passes it to BuildHandlers for
// every new connection.
type Deps struct {
	Terminals        *database.TerminalRepository
	Users            *database.UserRepository
	Credentials      *database.CredentialRepository
	Attendance       *database.AttendanceRepository
	Schedules        *database.ScheduleRepository
	Registry         *registry.Registry
	Commands         *commandqueue.Engine
	Bus              *eventbus.Bus
	Metrics          *metrics.Registry
	RequireWhitelist bool
	SendTimeout      time.Duration
	SessionWindow    time.Duration
}

// BuildHandlers constructs the verb -> handler map used by every
// Session's dispatch loop.
func BuildHandlers(d Deps) map[string]MessageHandler {
	return map[string]MessageHandler{
		protocol.CmdReg: &RegistrationHandler{
			Terminals:        d.Terminals,
			Registry:         d.Registry,
			Commands:         d.Commands,
			RequireWhitelist: d.RequireWhitelist,
			SendTimeout:      d.SendTimeout,
		},
		protocol.CmdSendLog: &SendLogHandler{
			Attendance:    d.Attendance,
			Users:         d.Users,
			Terminals:     d.Terminals,
			Schedules:     d.Schedules,
			Bus:           d.Bus,
			Metrics:       d.Metrics,
			SendTimeout:   d.SendTimeout,
			SessionWindow: d.SessionWindow,
		},
		protocol.CmdSendUser: &SendUserHandler{
			Terminals:   d.Terminals,
			Users:       d.Users,
			Credentials: d.Credentials,
			Bus:         d.Bus,
			SendTimeout: d.SendTimeout,
		},
		protocol.CmdSendQRCode: &SendQRCodeHandler{
			Terminals:   d.Terminals,
			Users:       d.Users,
			SendTimeout: d.SendTimeout,
		},
	}
}
