package auth

import (
	"strconv"
	"time"
)

// ParseTokenExp understands the shorthand lifetimes used in the service
// environment: a bare integer is seconds, otherwise an integer with an
// s/m/h/d suffix. Anything else reports ok=false.
func ParseTokenExp(exp string) (time.Duration, bool) {
	if exp == "" {
		return 0, false
	}

	if n, err := strconv.Atoi(exp); err == nil {
		if n < 0 {
			return 0, false
		}
		return time.Duration(n) * time.Second, true
	}

	unit := exp[len(exp)-1]
	n, err := strconv.Atoi(exp[:len(exp)-1])
	if err != nil || n < 0 {
		return 0, false
	}

	switch unit {
	case 's':
		return time.Duration(n) * time.Second, true
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	default:
		return 0, false
	}
}
