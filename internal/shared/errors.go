package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Ticket and upstream errors
	ErrTicketGone          = fmt.Errorf("ticket expired with no recovery")
	ErrLocatorNotFound     = fmt.Errorf("no playable part found")
	ErrUpstreamStatus      = fmt.Errorf("upstream returned an error status")
	ErrUpstreamUnavailable = fmt.Errorf("upstream unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
