package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused is returned by every state-changing call on a paused
// module. Callers match it with errors.Is; the wrapped message names the
// module.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the pause flags persisted per module.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails when module is paused. A missing view or unnamed module never
// blocks, so engines without pause wiring stay usable in tests.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%s: %w", module, ErrModulePaused)
	}
	return nil
}
