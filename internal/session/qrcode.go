package session

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nodebyte/tm20hub/internal/database"
	"github.com/nodebyte/tm20hub/internal/protocol"
)

// SendQRCodeHandler handles sendqrcode: record is parsed as an integer
// enrollid and checked against the user's enabled state and validity
// window, the same access rule sendlog uses for a known user.
type SendQRCodeHandler struct {
	Terminals   *database.TerminalRepository
	Users       *database.UserRepository
	SendTimeout time.Duration
}

func (h *SendQRCodeHandler) Handle(ctx context.Context, s *Session, msg *protocol.Message) error {
	in := msg.SendQRCode

	enrollid, err := strconv.Atoi(in.Record)
	if err != nil {
		return s.sendOrLog(ctx, protocol.SendQRCodeResponse(0, 0, "", "unrecognized code"), h.SendTimeout)
	}

	terminal, err := h.Terminals.GetBySN(ctx, in.SN)
	if err != nil {
		log.Error().Str("sn", in.SN).Err(err).Msg("session: sendqrcode terminal lookup failed")
		return s.sendOrLog(ctx, protocol.SendQRCodeResponse(0, enrollid, "", "lookup failed"), h.SendTimeout)
	}

	user, err := h.Users.GetByTerminalAndEnrollid(ctx, terminal.ID, enrollid)
	if err != nil {
		return s.sendOrLog(ctx, protocol.SendQRCodeResponse(0, enrollid, "", "unknown user"), h.SendTimeout)
	}

	now := time.Now().UTC()
	hasStart, hasEnd := user.StartTime.Valid, user.EndTime.Valid
	granted := CheckAccess(true, user.IsEnabled, hasStart, user.StartTime.Time, hasEnd, user.EndTime.Time, now)

	access := 0
	message := "access denied"
	if granted {
		access = 1
		message = "access granted"
	}

	name := ""
	if user.Name.Valid {
		name = user.Name.String
	}

	return s.sendOrLog(ctx, protocol.SendQRCodeResponse(access, enrollid, name, message), h.SendTimeout)
}
