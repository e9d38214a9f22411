// SPDX-FileCopyrightText: 2025 The powercap Authors
// SPDX-License-Identifier: Apache-2.0

package device

// Action selects which vendor provided reference value the power cap gets
// set to.
type Action int

const (
	// RestoreDefault resets the cap to the vendor default limit.
	RestoreDefault Action = iota

	// SetToMin lowers the cap to the minimum the driver allows.
	SetToMin

	// SetToMax raises the cap to the maximum the driver allows.
	SetToMax
)

func (a Action) String() string {
	switch a {
	case RestoreDefault:
		return "default"
	case SetToMin:
		return "minimal"
	case SetToMax:
		return "maximal"
	default:
		return "unknown"
	}
}

// ReferenceFile returns the hwmon attribute holding the reference value for
// the action. Unknown actions map to the minimum, the safest cap to apply.
func (a Action) ReferenceFile() string {
	switch a {
	case RestoreDefault:
		return "power1_cap_default"
	case SetToMax:
		return "power1_cap_max"
	default:
		return "power1_cap_min"
	}
}
