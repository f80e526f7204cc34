package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused is returned when an operation targets an administratively
// paused market module.
var ErrModulePaused = errors.New("module paused")

// PauseView reports the administrative pause switch per market module.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the named module is paused. A nil view means
// pausing is not configured and every module runs.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%s: %w", module, ErrModulePaused)
	}
	return nil
}
