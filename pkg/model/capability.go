package model

import (
	"fmt"
	"strings"
)

// Capability is an ordered trust tier attached to a task. The scheduler only
// carries it; API gating is done by the callers that expose scripting APIs.
type Capability int

const (
	CapabilityNone Capability = iota
	CapabilityPluginSecurity
	CapabilityLocalUser
	CapabilityWritePlayer
	CapabilityHostScript
	CapabilityHostInternal
	CapabilityNotAccessible
)

var capabilityNames = []string{
	"None",
	"PluginSecurity",
	"LocalUser",
	"WritePlayer",
	"HostScript",
	"HostInternal",
	"NotAccessible",
}

func (c Capability) String() string {
	if c < 0 || int(c) >= len(capabilityNames) {
		return fmt.Sprintf("Capability(%d)", int(c))
	}
	return capabilityNames[c]
}

// AtLeast reports whether c grants at least the trust of min.
func (c Capability) AtLeast(min Capability) bool {
	return c >= min
}

// ParseCapability converts a tier name (case-insensitive) to a Capability.
func ParseCapability(s string) (Capability, error) {
	for i, name := range capabilityNames {
		if strings.EqualFold(name, s) {
			return Capability(i), nil
		}
	}
	return CapabilityNone, fmt.Errorf("unknown capability %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Capability) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Capability) UnmarshalText(b []byte) error {
	parsed, err := ParseCapability(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
