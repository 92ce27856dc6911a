package common

import "errors"

// ErrModulePaused is returned by Guard when a module has been halted by the
// risk admin.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the pause switches maintained by governance.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects an operation when the owning module is paused. A nil view or
// empty module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
