// SPDX-FileCopyrightText: 2025 The powercap Authors
// SPDX-License-Identifier: Apache-2.0

// Package status renders a one-shot report of the enforced power cap and
// the vendor reference values of a device.
package status

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/soerengrunewald/powercap/internal/device"
)

// CapReader is the part of device.CapControl the report needs, split out so
// tests can stub it.
type CapReader interface {
	CurrentCap() (device.Power, error)
	ReferenceValue(device.Action) (device.Power, error)
}

// Write renders the report to out. Unreadable attributes show up as "n/a";
// only when every value is unreadable does Write return an error.
func Write(out io.Writer, paths device.DevicePaths, caps CapReader) error {
	fmt.Fprintf(out, "card:  %s\n", paths.Card)
	fmt.Fprintf(out, "hwmon: %s\n", paths.Hwmon)

	rows := [][]string{}
	readable := 0

	add := func(source, file string, v device.Power, err error) {
		if err != nil {
			rows = append(rows, []string{source, file, "n/a", "n/a"})
			return
		}
		readable++
		rows = append(rows, []string{source, file, v.String(), strconv.FormatUint(v.MicroWatts(), 10)})
	}

	v, err := caps.CurrentCap()
	add("current", device.ControlFile, v, err)

	for _, a := range []device.Action{device.RestoreDefault, device.SetToMin, device.SetToMax} {
		v, err := caps.ReferenceValue(a)
		add(a.String(), a.ReferenceFile(), v, err)
	}

	if readable == 0 {
		return fmt.Errorf("no power cap values under %s", paths.Hwmon)
	}

	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignRight
	})
	table.Header([]string{"Source", "File", "Power", "Microwatts"})
	_ = table.Bulk(rows)
	_ = table.Render()

	return nil
}
