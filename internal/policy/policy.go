// Package policy holds the re-entry policy configuration. The store keeps a
// mutable process-wide template; the engine captures an immutable snapshot
// per order at registration time, so later edits never touch in-flight
// orders.
package policy

import (
	"fmt"
	"sync"
	"time"
)

// Mode selects the re-entry algorithm.
type Mode string

const (
	ModeAutomatic Mode = "AUTOMATIC"
	ModeManual    Mode = "MANUAL"
)

// Policy is the per-order snapshot. Immutable once captured.
type Policy struct {
	Mode        Mode
	AdjustWait  time.Duration // AUTOMATIC: pause before the price check
	AdjustPct   float64       // AUTOMATIC: percent of adverse movement given back
	PipDistance float64       // MANUAL: offset from the old stop, in points
}

// Settings is the mutable template edited through the control surface.
type Settings struct {
	Mode                 Mode    `yaml:"mode" json:"mode"`
	AdjustWaitSec        float64 `yaml:"adjustWaitSec" json:"adjustWaitSec"`
	AdjustPct            float64 `yaml:"adjustPct" json:"adjustPct"`
	PipDistance          float64 `yaml:"pipDistance" json:"pipDistance"`
	EnableMarketTracking bool    `yaml:"enableMarketTracking" json:"enableMarketTracking"`
}

// DefaultSettings mirrors the defaults of the original terminal script.
func DefaultSettings() Settings {
	return Settings{
		Mode:          ModeAutomatic,
		AdjustWaitSec: 5,
		AdjustPct:     50,
		PipDistance:   20,
	}
}

// Validate rejects settings the engine cannot act on.
func (s Settings) Validate() error {
	if s.Mode != ModeAutomatic && s.Mode != ModeManual {
		return fmt.Errorf("mode must be %s or %s", ModeAutomatic, ModeManual)
	}
	if s.AdjustWaitSec < 0 {
		return fmt.Errorf("adjustWaitSec must be >= 0")
	}
	if s.AdjustPct < 0 {
		return fmt.Errorf("adjustPct must be >= 0")
	}
	if s.PipDistance < 0 {
		return fmt.Errorf("pipDistance must be >= 0")
	}
	return nil
}

func (s Settings) policy() Policy {
	return Policy{
		Mode:        s.Mode,
		AdjustWait:  time.Duration(s.AdjustWaitSec * float64(time.Second)),
		AdjustPct:   s.AdjustPct,
		PipDistance: s.PipDistance,
	}
}

// Store serializes access to the global template and the per-symbol
// overrides. Reads at registration time copy by value; nothing downstream
// holds a reference into the store.
type Store struct {
	mu        sync.RWMutex
	global    Settings
	overrides map[string]Settings
}

func NewStore(global Settings) *Store {
	return &Store{
		global:    global,
		overrides: make(map[string]Settings),
	}
}

// Set replaces the global template. Takes effect only for orders registered
// afterwards.
func (st *Store) Set(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	st.mu.Lock()
	st.global = s
	st.mu.Unlock()
	return nil
}

// SetSymbol installs a per-symbol override.
func (st *Store) SetSymbol(symbol string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	st.mu.Lock()
	st.overrides[symbol] = s
	st.mu.Unlock()
	return nil
}

// ClearSymbol removes a per-symbol override, no-op when absent.
func (st *Store) ClearSymbol(symbol string) {
	st.mu.Lock()
	delete(st.overrides, symbol)
	st.mu.Unlock()
}

// Current returns the global template.
func (st *Store) Current() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.global
}

// Snapshot captures the policy for a newly registered order on symbol.
func (st *Store) Snapshot(symbol string) Policy {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if s, ok := st.overrides[symbol]; ok {
		return s.policy()
	}
	return st.global.policy()
}

// MarketTrackingEnabled reports whether discovery should also track open
// positions.
func (st *Store) MarketTrackingEnabled() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.global.EnableMarketTracking
}
