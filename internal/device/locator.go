// SPDX-FileCopyrightText: 2025 The powercap Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	defaultClassDir    = "class/drm"
	defaultCardPrefix  = "card"
	defaultHwmonSubdir = "device/hwmon"
)

// ErrCardNotFound is returned when no card entry exists under the DRM class
// directory.
type ErrCardNotFound struct {
	Root   string
	Prefix string
}

func (e ErrCardNotFound) Error() string {
	return fmt.Sprintf("unable to find gpu: no %s* device under %s", e.Prefix, e.Root)
}

// ErrHwmonNotFound is returned when a card has no hwmon directory, which
// happens on drivers that do not expose power capping.
type ErrHwmonNotFound struct {
	Card string
}

func (e ErrHwmonNotFound) Error() string {
	return fmt.Sprintf("unable to find hwmon entries for %s", e.Card)
}

// DevicePaths holds the resolved sysfs locations of a capable device.
type DevicePaths struct {
	Card  string
	Hwmon string
}

// Locator resolves the sysfs paths of the first DRM card that exposes a
// hwmon directory.
type Locator struct {
	logger *slog.Logger

	sysfsPath   string
	classDir    string
	cardPrefix  string
	hwmonSubdir string
}

// LocatorOptionFn is a functional option for the Locator.
type LocatorOptionFn func(*Locator)

// WithLocatorLogger sets the logger for the Locator.
func WithLocatorLogger(logger *slog.Logger) LocatorOptionFn {
	return func(l *Locator) {
		l.logger = logger.With("service", "locator")
	}
}

// WithClassDir overrides the device class directory relative to sysfs root.
func WithClassDir(dir string) LocatorOptionFn {
	return func(l *Locator) {
		l.classDir = dir
	}
}

// WithCardPrefix overrides the entry name prefix that identifies a card.
func WithCardPrefix(prefix string) LocatorOptionFn {
	return func(l *Locator) {
		l.cardPrefix = prefix
	}
}

// WithHwmonSubdir overrides the hwmon directory relative to a card entry.
func WithHwmonSubdir(dir string) LocatorOptionFn {
	return func(l *Locator) {
		l.hwmonSubdir = dir
	}
}

// NewLocator creates a Locator rooted at the given sysfs path.
func NewLocator(sysfsPath string, opts ...LocatorOptionFn) *Locator {
	l := &Locator{
		logger:      slog.Default().With("service", "locator"),
		sysfsPath:   sysfsPath,
		classDir:    defaultClassDir,
		cardPrefix:  defaultCardPrefix,
		hwmonSubdir: defaultHwmonSubdir,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// FindCardPath returns the path of the first card entry under the class
// directory. Entries are symlinks into the device tree, so the directory
// check must follow them. ReadDir returns names sorted, which keeps the
// pick stable across runs.
func (l *Locator) FindCardPath() (string, error) {
	classPath := filepath.Join(l.sysfsPath, l.classDir)

	entries, err := os.ReadDir(classPath)
	if err != nil {
		l.logger.Debug("Unable to read class directory", "path", classPath, "error", err)
		return "", ErrCardNotFound{Root: classPath, Prefix: l.cardPrefix}
	}

	for _, entry := range entries {
		name := entry.Name()
		if len(name) < len(l.cardPrefix) || name[:len(l.cardPrefix)] != l.cardPrefix {
			continue
		}

		path := filepath.Join(classPath, name)
		if !isDir(path) {
			continue
		}

		l.logger.Debug("Found card", "path", path)
		return path, nil
	}

	return "", ErrCardNotFound{Root: classPath, Prefix: l.cardPrefix}
}

// FindHwmonPath returns the path of the first hwmon directory below the
// card.
func (l *Locator) FindHwmonPath(cardPath string) (string, error) {
	hwmonPath := filepath.Join(cardPath, l.hwmonSubdir)

	entries, err := os.ReadDir(hwmonPath)
	if err != nil {
		l.logger.Debug("Unable to read hwmon directory", "path", hwmonPath, "error", err)
		return "", ErrHwmonNotFound{Card: cardPath}
	}

	for _, entry := range entries {
		path := filepath.Join(hwmonPath, entry.Name())
		if !isDir(path) {
			continue
		}

		l.logger.Debug("Found hwmon", "path", path)
		return path, nil
	}

	return "", ErrHwmonNotFound{Card: cardPath}
}

// Locate resolves the card and its hwmon directory in one step.
func (l *Locator) Locate() (DevicePaths, error) {
	card, err := l.FindCardPath()
	if err != nil {
		return DevicePaths{}, err
	}

	hwmon, err := l.FindHwmonPath(card)
	if err != nil {
		return DevicePaths{}, err
	}

	return DevicePaths{Card: card, Hwmon: hwmon}, nil
}

// isDir reports whether path is a directory, following symlinks.
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
