// SPDX-FileCopyrightText: 2025 The powercap Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"strconv"
	"strings"
)

// Power represents electrical power as an uint64 MicroWatt count, the unit
// the kernel hwmon interface stores in power1_cap and its reference files.
// The count stays integral so a value read from sysfs writes back exactly.
// Use functions Watts, MilliWatts and MicroWatts to get the power value as
// Watt, MilliWatt or MicroWatt respectively.
type Power uint64

const (
	MicroWatt Power = 1
	MilliWatt       = 1000 * MicroWatt
	Watt            = 1000 * MilliWatt
)

func (p Power) MicroWatts() uint64 {
	return uint64(p)
}

func (p Power) MilliWatts() float64 {
	return float64(p) / float64(MilliWatt)
}

func (p Power) Watts() float64 {
	return float64(p) / float64(Watt)
}

func (p Power) String() string {
	return fmt.Sprintf("%.2fW", p.Watts())
}

// firstLine cuts s at the first newline and trims surrounding whitespace,
// mirroring how sysfs attributes are read: one value, one line.
func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

// parsePower parses a base-10 microwatt count. The error, when non-nil, is
// a *strconv.NumError carrying the offending text.
func parsePower(s string) (Power, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Power(v), nil
}
