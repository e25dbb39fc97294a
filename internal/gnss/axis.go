// Package gnss holds the shared data model for three-axis positional series:
// axes, the observation table and the error kinds reported by the pipeline.
package gnss

import (
	"fmt"
	"strings"
)

// Axis identifies one spatial coordinate column
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Axes lists the axes in processing order
var Axes = [3]Axis{AxisX, AxisY, AxisZ}

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	case AxisZ:
		return "Z"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// ParseAxis accepts "x", "X", "0" style identifiers
func ParseAxis(s string) (Axis, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "X", "0":
		return AxisX, nil
	case "Y", "1":
		return AxisY, nil
	case "Z", "2":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("unknown axis %q", s)
}

// MarshalText encodes the axis as its letter
func (a Axis) MarshalText() ([]byte, error) {
	if a < AxisX || a > AxisZ {
		return nil, fmt.Errorf("invalid axis %d", int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText parses an axis letter or index
func (a *Axis) UnmarshalText(b []byte) error {
	v, err := ParseAxis(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
