package syncengine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nodebyte/tm20hub/internal/crypto"
	"github.com/nodebyte/tm20hub/internal/database"
	"github.com/nodebyte/tm20hub/internal/eventbus"
	"github.com/nodebyte/tm20hub/internal/protocol"
	"github.com/nodebyte/tm20hub/internal/queue"
	"github.com/nodebyte/tm20hub/internal/registry"
	"github.com/nodebyte/tm20hub/internal/thirdparty"
)

// UserSyncEngine pulls users from a third-party back-office into
// BiometricUser rows, and pushes pending_sync rows down to a terminal's
// live session as a setusername batch, correlating the ret frame back
// to each pushed row's sync_status.
type UserSyncEngine struct {
	configs      *database.ThirdPartyRepository
	terminals    *database.TerminalRepository
	users        *database.UserRepository
	encryptor    *crypto.Encryptor
	registry     *registry.Registry
	bus          *eventbus.Bus
	queue        *queue.Manager
	sendTimeout  time.Duration
	pullInterval time.Duration
	pushInterval time.Duration
}

// NewUserSyncEngine builds a UserSyncEngine.
func NewUserSyncEngine(configs *database.ThirdPartyRepository, terminals *database.TerminalRepository, users *database.UserRepository, encryptor *crypto.Encryptor, reg *registry.Registry, bus *eventbus.Bus, q *queue.Manager, sendTimeout, pullInterval, pushInterval time.Duration) *UserSyncEngine {
	return &UserSyncEngine{
		configs: configs, terminals: terminals, users: users,
		encryptor: encryptor, registry: reg, bus: bus, queue: q,
		sendTimeout: sendTimeout, pullInterval: pullInterval, pushInterval: pushInterval,
	}
}

// Start launches the engine's own ticker loops: a pull tick enqueues one
// pull task per active (terminal, config) mapping with user sync on, a
// push tick enqueues one push task per terminal with pending_sync rows.
func (e *UserSyncEngine) Start(ctx context.Context) {
	pullTicker := time.NewTicker(e.pullInterval)
	pushTicker := time.NewTicker(e.pushInterval)

	go func() {
		defer pullTicker.Stop()
		defer pushTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-pullTicker.C:
				e.enqueuePulls(ctx)
			case <-pushTicker.C:
				e.enqueuePushes(ctx)
			}
		}
	}()
}

func (e *UserSyncEngine) enqueuePulls(ctx context.Context) {
	configs, err := e.configs.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("syncengine: listing active configs for user pull failed")
		return
	}
	for _, c := range configs {
		mappings, err := e.configs.MappingsForConfig(ctx, c.ID)
		if err != nil {
			log.Error().Str("config_id", c.ID).Err(err).Msg("syncengine: listing mappings for user pull failed")
			continue
		}
		for _, m := range mappings {
			if !m.SyncUsers {
				continue
			}
			if _, err := e.queue.EnqueueUserPull(queue.UserPullPayload{ConfigID: c.ID, TerminalID: m.TerminalID}); err != nil {
				log.Error().Str("config_id", c.ID).Str("terminal_id", m.TerminalID).Err(err).Msg("syncengine: enqueue user pull failed")
			}
		}
	}
}

func (e *UserSyncEngine) enqueuePushes(ctx context.Context) {
	terminalIDs, err := e.users.ListTerminalsWithPendingSync(ctx)
	if err != nil {
		log.Error().Err(err).Msg("syncengine: listing terminals with pending sync failed")
		return
	}
	for _, id := range terminalIDs {
		if _, err := e.queue.EnqueueUserPush(queue.UserPushPayload{TerminalID: id}); err != nil {
			log.Error().Str("terminal_id", id).Err(err).Msg("syncengine: enqueue user push failed")
		}
	}
}

// PullForMapping fetches the user list from configID's back-office and
// upserts each entry by (terminal, external_id): new external ids are
// created with the next free enrollid, existing ones are updated only
// when their mutable fields differ from the pulled record.
func (e *UserSyncEngine) PullForMapping(ctx context.Context, configID, terminalID string) error {
	config, err := e.configs.GetByID(ctx, configID)
	if err != nil {
		return fmt.Errorf("syncengine: config lookup: %w", err)
	}

	adapter := thirdparty.NewHTTPAdapter(toAdapterConfig(*config, e.encryptor))
	raw, err := adapter.FetchUsers(ctx, "")
	if err != nil {
		return fmt.Errorf("syncengine: fetch users: %w", err)
	}

	var pulled, created, updated int
	for _, ru := range raw {
		externalID, ok := thirdparty.ExtractExternalID(ru)
		if !ok {
			continue
		}
		pulled++

		fullName, _ := thirdparty.ExtractFullName(ru)
		tpu := database.ThirdPartyUser{
			ExternalID: externalID,
			FullName:   fullName,
			IsEnabled:  true,
			AdminLevel: protocol.AdminNone,
		}
		if start, ok := thirdparty.ExtractStartDate(ru); ok {
			tpu.StartDate = sql.NullTime{Time: start, Valid: true}
		}
		if end, ok := thirdparty.ExtractEndDate(ru); ok {
			tpu.EndDate = sql.NullTime{Time: end, Valid: true}
		}

		existing, err := e.users.GetByTerminalAndExternalID(ctx, terminalID, externalID)
		if err != nil {
			if _, err := e.users.CreateFromThirdParty(ctx, terminalID, configID, tpu); err != nil {
				log.Error().Str("external_id", externalID).Err(err).Msg("syncengine: create from third-party failed")
				continue
			}
			created++
			continue
		}

		if dirty(existing, tpu) {
			if err := e.users.UpdateFromThirdParty(ctx, existing.ID, tpu); err != nil {
				log.Error().Str("external_id", externalID).Err(err).Msg("syncengine: update from third-party failed")
				continue
			}
			updated++
		}
	}

	if err := e.configs.TouchLastUserSync(ctx, terminalID, configID); err != nil {
		log.Warn().Err(err).Msg("syncengine: failed to stamp last_user_sync")
	}

	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Kind: eventbus.UserSynced, Data: map[string]any{
			"config_id": configID, "terminal_id": terminalID,
			"pulled": pulled, "created": created, "updated": updated,
		}})
	}
	return nil
}

// dirty reports whether a pulled record disagrees with the stored row
// on any mutable field, avoiding a write (and a sync_status flip) when
// nothing actually changed.
func dirty(existing *database.BiometricUser, pulled database.ThirdPartyUser) bool {
	name := ""
	if existing.Name.Valid {
		name = existing.Name.String
	}
	sameTime := func(a, b sql.NullTime) bool {
		return a.Valid == b.Valid && (!a.Valid || a.Time.Equal(b.Time))
	}
	return name != pulled.FullName || existing.IsEnabled != pulled.IsEnabled || existing.AdminLevel != pulled.AdminLevel ||
		!sameTime(existing.StartTime, pulled.StartDate) || !sameTime(existing.EndTime, pulled.EndDate)
}

// PushPending sends every pending_sync user for terminalID to its live
// session as one setusername batch, and installs a pending context so
// the ret frame can be correlated back to these rows.
func (e *UserSyncEngine) PushPending(ctx context.Context, terminalID string) error {
	pending, err := e.users.ListPendingSync(ctx, terminalID)
	if err != nil {
		return fmt.Errorf("syncengine: list pending sync: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	terminal, err := e.terminals.GetByID(ctx, terminalID)
	if err != nil {
		return fmt.Errorf("syncengine: terminal lookup: %w", err)
	}

	live := e.registry.Get(terminal.SN)
	if live == nil {
		return fmt.Errorf("syncengine: terminal %s is not connected", terminal.SN)
	}

	records := make([]protocol.UserNameRecord, 0, len(pending))
	ids := make([]string, 0, len(pending))
	for _, u := range pending {
		name := ""
		if u.Name.Valid {
			name = u.Name.String
		}
		records = append(records, protocol.UserNameRecord{Enrollid: u.Enrollid, Name: name})
		ids = append(ids, u.ID)
	}

	live.InstallPendingContext(protocol.CmdSetUserName, ids)

	payload := protocol.SetUserNameCommand(records)
	if !live.Send(ctx, payload, e.sendTimeout) {
		return fmt.Errorf("syncengine: send to terminal %s failed or timed out", terminal.SN)
	}
	return nil
}

// Correlate implements registry.ResponseCorrelator: a successful
// setusername ret marks the affected rows synced_to_terminal, a failed
// one marks them error. PushPending only selects pending_sync rows, so
// error rows are not resent until a later pull marks them pending_sync.
func (e *UserSyncEngine) Correlate(ctx context.Context, sn, verb string, result bool, pending *registry.PendingContext) {
	if verb != protocol.CmdSetUserName {
		return
	}
	var err error
	if result {
		err = e.users.MarkSyncedToTerminal(ctx, pending.IDs)
	} else {
		err = e.users.MarkSyncError(ctx, pending.IDs)
	}
	if err != nil {
		log.Error().Str("sn", sn).Err(err).Msg("syncengine: failed to record setusername correlation")
	}
}
