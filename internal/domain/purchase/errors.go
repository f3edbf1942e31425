package purchase

import "errors"

var (
	// ErrPurchaseNotFound is returned when no purchase matches the reference
	ErrPurchaseNotFound = errors.New("purchase not found")

	// ErrTierNotFound is returned when a checkout names an unknown or
	// inactive tier
	ErrTierNotFound = errors.New("tier not found")

	// ErrInvalidTransition is returned when a terminal purchase would move to
	// a different terminal state. Logged as a data-integrity concern.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrEmptyEntitlement is returned when a purchase declares no credits
	ErrEmptyEntitlement = errors.New("purchase has no entitlement")

	ErrInternal = errors.New("internal error")
)
