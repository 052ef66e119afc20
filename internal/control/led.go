package control

import (
	"bytes"
	"encoding/json"
	"sync"
)

// LED holds the on/off flag the device polls for.
type LED struct {
	mu    sync.RWMutex
	state bool
	// onChange runs under the write lock after every Set.
	onChange func(bool)
}

// NewLED returns an LED that starts off. onChange may be nil.
func NewLED(onChange func(bool)) *LED {
	return &LED{onChange: onChange}
}

// State reports whether the LED is on.
func (l *LED) State() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Set stores on and fires the change hook.
func (l *LED) Set(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = on
	if l.onChange != nil {
		l.onChange(on)
	}
}

// Truthy reports whether a raw JSON value counts as "on": false, 0, "" and
// null are off, every other value is on.
func Truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch raw[0] {
	case 'n', 'f':
		return false
	case 't', '{', '[':
		return true
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return false
		}
		return s != ""
	default:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return false
		}
		return f != 0
	}
}
