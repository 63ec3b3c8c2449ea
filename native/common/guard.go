package common

import "errors"

// ErrModulePaused is returned when a mutating entry point is invoked while
// its module is paused.
var ErrModulePaused = errors.New("module paused")

// ModuleSale identifies the token sale module to pause views.
const ModuleSale = "sale"

// PauseView reports whether a module has been halted by the operator.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the operation when the module is paused. A nil view or empty
// module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
