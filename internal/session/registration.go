package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nodebyte/tm20hub/internal/commandqueue"
	"github.com/nodebyte/tm20hub/internal/database"
	"github.com/nodebyte/tm20hub/internal/protocol"
	"github.com/nodebyte/tm20hub/internal/registry"
)

// RegistrationHandler handles reg: upserts the Terminal row, enforces
// the whitelist gate when configured, and installs the session in the
// process-wide registry.
type RegistrationHandler struct {
	Terminals        *database.TerminalRepository
	Registry         *registry.Registry
	Commands         *commandqueue.Engine
	RequireWhitelist bool
	SendTimeout      time.Duration
}

func (h *RegistrationHandler) Handle(ctx context.Context, s *Session, msg *protocol.Message) error {
	reg := msg.Reg

	if h.RequireWhitelist {
		existing, err := h.Terminals.GetBySN(ctx, reg.SN)
		authorized := err == nil && existing.IsWhitelisted && existing.IsActive
		if !authorized {
			log.Warn().Str("sn", reg.SN).Msg("session: registration rejected, not whitelisted")
			_ = s.Send(ctx, protocol.RegResponse(false, time.Now().UTC(), "Terminal not authorized"), h.SendTimeout)
			s.Close()
			return nil
		}
	}

	info := database.RegistrationInfo{
		SN:    reg.SN,
		CPUSN: reg.CPUSN,
	}
	if reg.DevInfo != nil {
		info.Model = reg.DevInfo.ModelName
		info.Firmware = reg.DevInfo.Firmware
		info.MAC = reg.DevInfo.MAC
		info.UserCapacity = reg.DevInfo.UserSize
		info.LogCapacity = reg.DevInfo.LogSize
	}

	terminal, err := h.Terminals.Upsert(ctx, info)
	if err != nil {
		log.Error().Str("sn", reg.SN).Err(err).Msg("session: registration upsert failed")
		_ = s.Send(ctx, protocol.RegResponse(false, time.Now().UTC(), "internal error"), h.SendTimeout)
		return err
	}

	s.setSN(reg.SN)
	s.setState(StateRegistered)

	regSession := &registry.Session{
		SN:            reg.SN,
		LastMessageAt: s.LastMessageAt,
		Send: func(ctx context.Context, payload []byte, timeout time.Duration) bool {
			return s.Send(ctx, payload, timeout)
		},
		Close:                 s.Close,
		MarkOffline:           s.MarkOffline,
		ErrorCount:            s.IncrementErrorCount,
		InstallPendingContext: s.InstallPendingContext,
	}
	h.Registry.Register(reg.SN, regSession)
	s.setState(StateOnline)

	if h.Commands != nil {
		h.Commands.DrainOnReconnect(ctx, terminal.ID, reg.SN)
	}

	return s.sendOrLog(ctx, protocol.RegResponse(true, time.Now().UTC(), ""), h.SendTimeout)
}

func (s *Session) sendOrLog(ctx context.Context, payload []byte, timeout time.Duration) error {
	if !s.Send(ctx, payload, timeout) {
		log.Warn().Str("sn", s.SN()).Msg("session: reply dropped, mailbox full or closed")
	}
	return nil
}
