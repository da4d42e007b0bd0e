package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused is returned when a state-mutating operation hits a module
// whose pause switch is set.
var ErrModulePaused = errors.New("module paused")

// Canonical module names used for pause switches. The system module accepts
// arbitrary names, but the engines guard on these.
const (
	ModuleMarketplace = "marketplace"
	ModuleBooking     = "booking"
)

// PauseView answers whether a named module is currently paused. The system
// pause registry implements it; engines hold it as a read-only view.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the operation with ErrModulePaused when the module's pause
// switch is set. A nil view or empty module name passes, so engines run
// unguarded until wiring completes.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}
