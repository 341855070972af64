// Package commandqueue is the durable outbox for commands addressed to
// a terminal: enqueue while offline, drain on reconnect, track status
// through to completion or timeout.
package commandqueue

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nodebyte/tm20hub/internal/database"
	"github.com/nodebyte/tm20hub/internal/eventbus"
	"github.com/nodebyte/tm20hub/internal/registry"
)

// Engine enqueues commands durably and drains them to a terminal's live
// session when it reconnects.
type Engine struct {
	commands    *database.CommandRepository
	terminals   *database.TerminalRepository
	registry    *registry.Registry
	bus         *eventbus.Bus
	sendTimeout time.Duration
}

// New builds a commandqueue Engine.
func New(commands *database.CommandRepository, terminals *database.TerminalRepository, reg *registry.Registry, bus *eventbus.Bus, sendTimeout time.Duration) *Engine {
	return &Engine{commands: commands, terminals: terminals, registry: reg, bus: bus, sendTimeout: sendTimeout}
}

// Enqueue durably records command/payload for terminalID, and attempts
// an immediate send if the terminal is currently connected.
func (e *Engine) Enqueue(ctx context.Context, terminalID, command, payload string) error {
	row, err := e.commands.Enqueue(ctx, terminalID, command, payload)
	if err != nil {
		return err
	}

	terminal, err := e.terminals.GetByID(ctx, terminalID)
	if err != nil {
		return nil // row is durably queued, delivery happens on next reconnect drain
	}

	live := e.registry.Get(terminal.SN)
	if live == nil {
		return nil
	}

	live.InstallPendingContext(command, []string{row.ID})
	if live.Send(ctx, []byte(payload), e.sendTimeout) {
		_ = e.commands.MarkSent(ctx, row.ID)
		if e.bus != nil {
			e.bus.Publish(eventbus.Event{Kind: eventbus.CommandSent, Data: map[string]any{"sn": terminal.SN, "command": command}})
		}
	}
	return nil
}

// DrainOnReconnect sends every pending command for terminalID to its
// just-registered session, oldest first. Called from the registration
// handler immediately after the session joins the registry.
func (e *Engine) DrainOnReconnect(ctx context.Context, terminalID, sn string) {
	pending, err := e.commands.DrainPending(ctx, terminalID)
	if err != nil {
		log.Error().Str("sn", sn).Err(err).Msg("commandqueue: drain lookup failed")
		return
	}

	live := e.registry.Get(sn)
	if live == nil {
		return
	}

	for _, cmd := range pending {
		payload := ""
		if cmd.Payload.Valid {
			payload = cmd.Payload.String
		}
		live.InstallPendingContext(cmd.Command, []string{cmd.ID})
		if live.Send(ctx, []byte(payload), e.sendTimeout) {
			_ = e.commands.MarkSent(ctx, cmd.ID)
		} else {
			log.Warn().Str("sn", sn).Str("command_id", cmd.ID).Msg("commandqueue: drain send failed, left pending for next reconnect")
		}
	}
}

// Complete promotes a command to its terminal status once its ret
// arrives. Correlate is its only caller; no sweep marks unanswered
// commands as timed out.
func (e *Engine) Complete(ctx context.Context, commandID, status string) error {
	return e.commands.Complete(ctx, commandID, status)
}

// Correlate implements registry.ResponseCorrelator: a ret frame for any
// verb other than setusername is looked up here, since the user sync
// engine only ever installs pending contexts under setusername.
func (e *Engine) Correlate(ctx context.Context, sn, verb string, result bool, pending *registry.PendingContext) {
	status := "success"
	if !result {
		status = "failed"
	}
	for _, id := range pending.IDs {
		if err := e.Complete(ctx, id, status); err != nil {
			log.Error().Str("sn", sn).Str("command_id", id).Err(err).Msg("commandqueue: failed to record ret correlation")
		}
	}
}
