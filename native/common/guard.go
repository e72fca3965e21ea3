package common

import "errors"

// ErrModulePaused signals a mutation attempted while governance halted the
// module.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module is halted. The implementation
// lives with the embedder's governance layer.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view means no pause
// wiring exists and everything stays open.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
