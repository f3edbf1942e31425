package credit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidType is returned when a request names an unknown credit type
	ErrInvalidType = errors.New("invalid credit type")

	// ErrInvalidAmount is returned when a count is <= 0
	ErrInvalidAmount = errors.New("invalid amount: must be greater than 0")

	ErrInternal = errors.New("internal error")
)

// InsufficientCreditsError reports the exact per-type shortfall of a denied
// consumption. When it is returned, no state was changed.
type InsufficientCreditsError struct {
	Shortfall map[Type]int
}

func (e *InsufficientCreditsError) Error() string {
	parts := make([]string, 0, len(e.Shortfall))
	for _, t := range AllTypes {
		if n, ok := e.Shortfall[t]; ok && n > 0 {
			parts = append(parts, fmt.Sprintf("%d more %s", n, t))
		}
	}
	return "insufficient credits: need " + strings.Join(parts, ", ")
}

// IsInsufficientCredits reports whether err is an insufficient-credits
// failure and returns the shortfall if so.
func IsInsufficientCredits(err error) (*InsufficientCreditsError, bool) {
	var ice *InsufficientCreditsError
	if errors.As(err, &ice) {
		return ice, true
	}
	return nil, false
}
