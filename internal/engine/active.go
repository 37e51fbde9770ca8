package engine

import "sync/atomic"

var activeEngine atomic.Pointer[Engine]

// SetActive marks e as the process-wide current engine. The previous holder
// is not notified.
func SetActive(e *Engine) { activeEngine.Store(e) }

// Active returns the current engine, or nil.
func Active() *Engine { return activeEngine.Load() }

// ClearActive unsets the current engine.
func ClearActive() { activeEngine.Store(nil) }
