package domain

import "errors"

var (
	// ErrDuplicateSubmission is returned when a device reports the same area again
	// inside the throttle window.
	ErrDuplicateSubmission = errors.New("duplicate submission")

	// ErrInvalidReport is returned for submissions with an unknown category,
	// missing device id, or out-of-range coordinate.
	ErrInvalidReport = errors.New("invalid report")

	// ErrRoutingUnavailable is returned when the geometry provider yields no routes.
	ErrRoutingUnavailable = errors.New("routing unavailable")

	// ErrNoSafeRoute is returned when activation is attempted without a selected route.
	ErrNoSafeRoute = errors.New("no safe route")

	// ErrIdentityMismatch means the route being activated is not the route that was
	// selected. Activation is aborted.
	ErrIdentityMismatch = errors.New("route identity mismatch")

	// ErrPlanSuperseded is returned by a plan that finished after a newer one started.
	ErrPlanSuperseded = errors.New("plan superseded")

	ErrNavigationActive   = errors.New("navigation active")
	ErrNavigationInactive = errors.New("navigation not active")
	ErrInvalidGeometry    = errors.New("invalid route geometry")
	ErrInvalidProfile     = errors.New("invalid routing profile")
)
