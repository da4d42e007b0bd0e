package system

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"staychain/core/events"
	"staychain/core/state"
	"staychain/core/types"
	nativecommon "staychain/native/common"
)

// RoleAdmin may flip pause switches for any module.
var RoleAdmin = state.RoleHash("SYSTEM_ADMIN_ROLE")

// EventTypePauseChanged is emitted whenever a module pause switch flips.
const EventTypePauseChanged = "system.pause_changed"

var ErrUnauthorized = errors.New("system: unauthorized")

type pauseEvent struct {
	evt *types.Event
}

func (e pauseEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e pauseEvent) Event() *types.Event { return e.evt }

// Pauses persists per-module pause switches. It implements
// native/common.PauseView for the engines that guard on it.
type Pauses struct {
	st      *state.Manager
	roles   nativecommon.RoleView
	emitter events.Emitter
}

// NewPauses constructs a pause registry backed by the supplied state manager.
// The manager doubles as the role view for administrative checks.
func NewPauses(st *state.Manager) *Pauses {
	return &Pauses{st: st, roles: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (p *Pauses) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		p.emitter = events.NoopEmitter{}
		return
	}
	p.emitter = emitter
}

func pauseKey(module string) []byte {
	return []byte(fmt.Sprintf("system/pause/%s", module))
}

// IsPaused reports whether the supplied module is currently paused.
func (p *Pauses) IsPaused(module string) bool {
	if p == nil || p.st == nil {
		return false
	}
	var paused bool
	ok, err := p.st.KVGet(pauseKey(strings.TrimSpace(module)), &paused)
	if err != nil || !ok {
		return false
	}
	return paused
}

// SetPaused flips the pause switch for a module. Only holders of the system
// admin role may invoke it.
func (p *Pauses) SetPaused(caller types.Address, module string, paused bool) error {
	if p == nil || p.st == nil {
		return fmt.Errorf("system: pauses not configured")
	}
	trimmed := strings.TrimSpace(module)
	if trimmed == "" {
		return fmt.Errorf("system: module name required")
	}
	if err := p.st.WriteTx(func() error {
		if p.roles == nil || !p.roles.HasRole(RoleAdmin, caller.Bytes()) {
			return ErrUnauthorized
		}
		return p.st.KVPut(pauseKey(trimmed), paused)
	}); err != nil {
		return err
	}
	p.emitter.Emit(pauseEvent{evt: &types.Event{
		Type: EventTypePauseChanged,
		Attributes: map[string]string{
			"module": trimmed,
			"paused": strconv.FormatBool(paused),
			"caller": caller.Hex(),
		},
	}})
	return nil
}
