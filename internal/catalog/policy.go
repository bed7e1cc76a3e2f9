package catalog

import (
	"fmt"
	"strings"

	"zerosaver/internal/domain"
)

// OverRequestPolicy decides what happens when a reservation asks for more
// units than a deal has left.
type OverRequestPolicy string

const (
	// PolicyCap transfers whatever is left.
	PolicyCap OverRequestPolicy = "cap"
	// PolicyReject refuses the reservation with ErrInsufficientStock.
	PolicyReject OverRequestPolicy = "reject"
)

// ParsePolicy converts a configuration value into a policy. Empty means cap.
func ParsePolicy(value string) (OverRequestPolicy, error) {
	switch OverRequestPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyCap:
		return PolicyCap, nil
	case PolicyReject:
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown reservation policy %q", value)
	}
}

// Take returns how many units a request for requested units transfers when
// available units are left. Requests below one are raised to one.
func (p OverRequestPolicy) Take(requested, available int) (int, error) {
	if available < 1 {
		return 0, fmt.Errorf("%w: nothing left", domain.ErrInsufficientStock)
	}
	if requested < 1 {
		requested = 1
	}
	if requested <= available {
		return requested, nil
	}
	if p == PolicyReject {
		return 0, fmt.Errorf("%w: requested %d, available %d", domain.ErrInsufficientStock, requested, available)
	}
	return available, nil
}
