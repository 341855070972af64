package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nodebyte/tm20hub/internal/database"
	"github.com/nodebyte/tm20hub/internal/eventbus"
	"github.com/nodebyte/tm20hub/internal/protocol"
)

// SendUserHandler handles senduser: the terminal pushing a local
// enrolment (a new credential or admin-level change) up to the server.
type SendUserHandler struct {
	Terminals   *database.TerminalRepository
	Users       *database.UserRepository
	Credentials *database.CredentialRepository
	Bus         *eventbus.Bus
	SendTimeout time.Duration
}

func (h *SendUserHandler) Handle(ctx context.Context, s *Session, msg *protocol.Message) error {
	in := msg.SendUser

	terminal, err := h.Terminals.GetBySN(ctx, in.SN)
	if err != nil {
		log.Error().Str("sn", in.SN).Err(err).Msg("session: senduser terminal lookup failed")
		return s.sendOrLog(ctx, protocol.SendUserResponse(false, time.Now().UTC()), h.SendTimeout)
	}

	user, err := h.Users.UpsertFromDevice(ctx, terminal.ID, in.Enrollid, in.Name, in.Admin)
	if err != nil {
		log.Error().Str("sn", in.SN).Int("enrollid", in.Enrollid).Err(err).Msg("session: senduser upsert failed")
		return s.sendOrLog(ctx, protocol.SendUserResponse(false, time.Now().UTC()), h.SendTimeout)
	}

	if in.Record != "" {
		if err := h.Credentials.Upsert(ctx, user.ID, in.BackupNum, in.Record); err != nil {
			log.Error().Str("sn", in.SN).Int("enrollid", in.Enrollid).Err(err).Msg("session: senduser credential upsert failed")
			return s.sendOrLog(ctx, protocol.SendUserResponse(false, time.Now().UTC()), h.SendTimeout)
		}
	}

	if h.Bus != nil {
		h.Bus.Publish(eventbus.Event{Kind: eventbus.UserCreated, Data: map[string]any{
			"sn": in.SN, "enrollid": in.Enrollid, "backupnum": in.BackupNum,
		}})
	}

	return s.sendOrLog(ctx, protocol.SendUserResponse(true, time.Now().UTC()), h.SendTimeout)
}
