package validate

import (
	"fmt"
	"strings"
	"unicode"
)

// maxDeviceNameLen bounds how much of the agent version string a device
// name can occupy; BuildAgentVersion embeds it verbatim in parentheses.
const maxDeviceNameLen = 255

// DeviceName checks that a human-chosen device name is safe to embed in
// an agent version string and parse back out with registry.ParseDeviceName,
// which locates the name by matching the last balanced "(" ... ")" pair.
// A name containing its own parentheses would desynchronize that parse, so
// parentheses are rejected outright rather than escaped.
func DeviceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidDeviceName)
	}
	if len(name) > maxDeviceNameLen {
		return fmt.Errorf("%w: %q exceeds %d bytes", ErrInvalidDeviceName, name, maxDeviceNameLen)
	}
	if strings.ContainsAny(name, "()") {
		return fmt.Errorf("%w: %q must not contain parentheses", ErrInvalidDeviceName, name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains a control character", ErrInvalidDeviceName, name)
		}
	}
	return nil
}
