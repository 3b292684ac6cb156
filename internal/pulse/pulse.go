// Package pulse defines the stimulation pulse widths thresholds are predicted for.
package pulse

import (
	"strconv"

	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
)

// Width is a pulse width in microseconds.
type Width int

// Defaults is the fixed set of pulse widths models are trained on.
var Defaults = []Width{60, 75, 90, 105, 120, 135, 150, 175, 200, 225, 250, 275, 300, 350, 400, 450, 500}

// Key renders the width the way the threshold JSON indexes it: milliseconds
// in shortest decimal form, so 60 becomes "0.06".
func (w Width) Key() string {
	return strconv.FormatFloat(w.Milliseconds(), 'f', -1, 64)
}

// Milliseconds returns the width in milliseconds.
func (w Width) Milliseconds() float64 {
	return float64(w) / 1000
}

func (w Width) String() string {
	return strconv.Itoa(int(w)) + "us"
}

// Valid reports whether w is one of the known pulse widths.
func (w Width) Valid() bool {
	for _, d := range Defaults {
		if d == w {
			return true
		}
	}
	return false
}

// ParseKey is the inverse of Key.
func ParseKey(key string) (Width, error) {
	ms, err := strconv.ParseFloat(key, 64)
	if err != nil {
		return 0, errors.InvalidConfiguration("invalid pulse width key %q", key)
	}
	for _, d := range Defaults {
		if d.Key() == key || d.Milliseconds() == ms {
			return d, nil
		}
	}
	return 0, errors.InvalidConfiguration("unknown pulse width %q", key)
}

// Validate checks that widths is non-empty, duplicate-free and drawn from Defaults.
func Validate(widths []Width) error {
	if len(widths) == 0 {
		return errors.InvalidConfiguration("no pulse widths configured")
	}
	seen := make(map[Width]bool, len(widths))
	for _, w := range widths {
		if !w.Valid() {
			return errors.InvalidConfiguration("unknown pulse width %s", w)
		}
		if seen[w] {
			return errors.InvalidConfiguration("duplicate pulse width %s", w)
		}
		seen[w] = true
	}
	return nil
}
