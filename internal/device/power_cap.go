// SPDX-FileCopyrightText: 2025 The powercap Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// ControlFile is the hwmon attribute the driver enforces as the power cap.
const ControlFile = "power1_cap"

// ErrNoData indicates that the reference value for an action could not be
// read, in which case the cap is left untouched.
var ErrNoData = errors.New("no data")

// CapControl reads and writes the power cap attributes of one hwmon
// directory.
type CapControl struct {
	logger    *slog.Logger
	hwmonPath string
	dryRun    bool
}

// CapOptionFn is a functional option for CapControl.
type CapOptionFn func(*CapControl)

// WithCapLogger sets the logger for CapControl.
func WithCapLogger(logger *slog.Logger) CapOptionFn {
	return func(c *CapControl) {
		c.logger = logger.With("service", "powercap")
	}
}

// WithDryRun makes Apply log the intended write without touching sysfs.
func WithDryRun(dryRun bool) CapOptionFn {
	return func(c *CapControl) {
		c.dryRun = dryRun
	}
}

// NewCapControl creates a CapControl for the given hwmon directory.
func NewCapControl(hwmonPath string, opts ...CapOptionFn) *CapControl {
	c := &CapControl{
		logger:    slog.Default().With("service", "powercap"),
		hwmonPath: hwmonPath,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Path returns the hwmon directory the control operates on.
func (c *CapControl) Path() string {
	return c.hwmonPath
}

// ReferenceValue reads the reference value the action maps to.
func (c *CapControl) ReferenceValue(a Action) (Power, error) {
	return c.readValue(filepath.Join(c.hwmonPath, a.ReferenceFile()))
}

// CurrentCap reads the cap the driver currently enforces.
func (c *CapControl) CurrentCap() (Power, error) {
	return c.readValue(filepath.Join(c.hwmonPath, ControlFile))
}

// WriteCap writes the cap as a decimal microwatt count.
func (c *CapControl) WriteCap(v Power) error {
	path := filepath.Join(c.hwmonPath, ControlFile)

	err := os.WriteFile(path, []byte(strconv.FormatUint(v.MicroWatts(), 10)), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// Apply sets the cap to the reference value of the action. It returns the
// value written. When the reference cannot be read the error wraps
// ErrNoData and nothing is written.
func (c *CapControl) Apply(a Action) (Power, error) {
	v, err := c.ReferenceValue(a)
	if err != nil {
		return 0, fmt.Errorf("%w: no usable %s reference: %w", ErrNoData, a.ReferenceFile(), err)
	}

	c.logger.Info("Writing power cap", "cap", v, "file", a.ReferenceFile(), "target", a.String())

	if c.dryRun {
		c.logger.Info("Dry run, skipping write", "cap", v)
		return v, nil
	}

	if err := c.WriteCap(v); err != nil {
		return 0, err
	}

	return v, nil
}

func (c *CapControl) readValue(path string) (Power, error) {
	data, err := sysReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	line := firstLine(string(data))

	v, err := parsePower(line)
	if err != nil {
		c.logger.Error("Unable to convert value to unsigned", "path", path, "text", line, "error", err)
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return v, nil
}

// sysReadFile is a simplified os.ReadFile that invokes syscall.Read directly.
func sysReadFile(file string) ([]byte, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	// On some machines, hwmon drivers are broken and return EAGAIN. This causes
	// Go's os.ReadFile implementation to poll forever.
	//
	// Since we either want to read data or bail immediately, do the simplest
	// possible read using system call directly.
	b := make([]byte, 128)
	n, err := unix.Read(int(f.Fd()), b)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("failed to read file: %q, read returned negative bytes value: %d", file, n)
	}

	return b[:n], nil
}
