package validate

import "errors"

var (
	// ErrInvalidServiceTag is returned when an mDNS service tag does not
	// match the DNS-SD `_<label>._tcp`/`_<label>._udp` shape.
	ErrInvalidServiceTag = errors.New("invalid mdns service tag")

	// ErrInvalidDeviceName is returned when a device name would break the
	// registry's agent-version parenthesization (parsed back out by
	// registry.ParseDeviceName) or contains control characters.
	ErrInvalidDeviceName = errors.New("invalid device name")
)
