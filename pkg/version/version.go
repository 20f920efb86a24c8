// Package version holds the actuator protocol version this controller speaks
// and the compatibility rule applied to configured versions.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Current is the actuator protocol version implemented by this controller.
const Current = "1.0"

// ErrIncompatible indicates a version whose major differs from Current.
var ErrIncompatible = errors.New("incompatible protocol version")

// ProtocolVersion represents a parsed "major.minor" protocol version.
type ProtocolVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (ProtocolVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return ProtocolVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// MustCurrent returns Current parsed.
func MustCurrent() ProtocolVersion {
	v, err := Parse(Current)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "major.minor".
func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	return v.Major == other.Major
}

// Check parses s and verifies it is compatible with Current. An empty string
// selects Current.
func Check(s string) (ProtocolVersion, error) {
	current := MustCurrent()
	if s == "" {
		return current, nil
	}

	v, err := Parse(s)
	if err != nil {
		return ProtocolVersion{}, err
	}
	if !current.Compatible(v) {
		return ProtocolVersion{}, fmt.Errorf("%w: %s (controller speaks %s)", ErrIncompatible, v, current)
	}
	return v, nil
}
