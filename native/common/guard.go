package common

import (
	"errors"
	"sync/atomic"
)

var (
	ErrModulePaused  = errors.New("module paused")
	ErrReentrantCall = errors.New("reentrant call rejected")
)

type PauseView interface {
	IsPaused(module string) bool
}

// StaticPauses is a fixed pause map, typically loaded from configuration at
// startup.
type StaticPauses map[string]bool

func (p StaticPauses) IsPaused(module string) bool {
	return p[module]
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Latch serialises the mutating operations of a single engine instance. A
// second entry while one operation is in flight (including one triggered
// indirectly by an outbound transfer) fails fast instead of observing
// partially-applied state.
type Latch struct {
	busy atomic.Bool
}

// Enter acquires the latch, failing when an operation is already executing.
func (l *Latch) Enter() error {
	if l == nil {
		return nil
	}
	if !l.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

// Exit releases the latch.
func (l *Latch) Exit() {
	if l == nil {
		return
	}
	l.busy.Store(false)
}
