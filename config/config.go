// SPDX-FileCopyrightText: 2025 The powercap Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"
)

// Config represents the complete application configuration
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}

	Host struct {
		SysFS string `yaml:"sysfs"`
	}

	// Device selects where caps are looked for below the sysfs root. These
	// exist for unusual kernels and for tests; most hosts never set them.
	Device struct {
		ClassDir    string `yaml:"classDir"`
		CardPrefix  string `yaml:"cardPrefix"`
		HwmonSubdir string `yaml:"hwmonSubdir"`
	}

	Write struct {
		DryRun *bool `yaml:"dryRun"`
	}

	Config struct {
		Log    Log    `yaml:"log"`
		Host   Host   `yaml:"host"`
		Device Device `yaml:"device"` // WARN: do not expose device settings as flags
		Write  Write  `yaml:"write"`
	}
)

type SkipValidation int

const (
	SkipHostValidation SkipValidation = 1
)

const (
	// Flags
	LogLevelFlag  = "log.level"
	LogFormatFlag = "log.format"

	HostSysFSFlag = "host.sysfs"

	DryRunFlag = "dry-run"

	// Device paths are config-file only
	DeviceClassDir    = "device.class-dir"    // not a flag
	DeviceCardPrefix  = "device.card-prefix"  // not a flag
	DeviceHwmonSubdir = "device.hwmon-subdir" // not a flag
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Host: Host{
			SysFS: "/sys",
		},
		Device: Device{
			ClassDir:    "class/drm",
			CardPrefix:  "card",
			HwmonSubdir: "device/hwmon",
		},
		Write: Write{
			DryRun: ptr.To(false),
		},
	}
}

// Load loads configuration from an io.Reader, merging it over the defaults
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := (&Builder{}).Merge(string(data)).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	var errRet error
	defer func() {
		err = file.Close()
		if err != nil && errRet == nil {
			errRet = err
		}
	}()

	cfg, errRet := Load(file)

	return cfg, errRet
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with kingpin app
// and returns ConfigUpdaterFn that updates the config from parsed flags
// as command line arguments override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		// Clear the map in case this function is called multiple times
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	// Logging
	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")
	// host
	hostSysFS := app.Flag(HostSysFSFlag, "Host sysfs path").Default("/sys").ExistingDir()
	// write behavior
	dryRun := app.Flag(DryRunFlag, "Resolve the cap value but do not write it").Default("false").Bool()

	return func(cfg *Config) error {
		// Logging settings
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}

		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		if flagsSet[HostSysFSFlag] {
			cfg.Host.SysFS = *hostSysFS
		}

		if flagsSet[DryRunFlag] {
			cfg.Write.DryRun = dryRun
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Host.SysFS = strings.TrimSpace(c.Host.SysFS)
	c.Device.ClassDir = strings.TrimSpace(c.Device.ClassDir)
	c.Device.CardPrefix = strings.TrimSpace(c.Device.CardPrefix)
	c.Device.HwmonSubdir = strings.TrimSpace(c.Device.HwmonSubdir)
}

// Validate checks for configuration errors
func (c *Config) Validate(skips ...SkipValidation) error {
	validationSkipped := make(map[SkipValidation]bool, len(skips))
	for _, v := range skips {
		validationSkipped[v] = true
	}
	var errs []string
	{ // log level
		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}

		if _, valid := validLogLevels[c.Log.Level]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
	}
	{ // log format
		validFormats := map[string]bool{
			"text": true,
			"json": true,
		}
		if _, valid := validFormats[c.Log.Format]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}

	{ // Validate host settings
		if _, skip := validationSkipped[SkipHostValidation]; !skip {
			if err := canReadDir(c.Host.SysFS); err != nil {
				errs = append(errs, fmt.Sprintf("invalid sysfs path: %s: %s ", c.Host.SysFS, err.Error()))
			}
		}
	}
	{ // Device paths are joined below the sysfs root, so they must be
		// non-empty and relative
		for _, p := range []struct {
			name  string
			value string
		}{
			{DeviceClassDir, c.Device.ClassDir},
			{DeviceHwmonSubdir, c.Device.HwmonSubdir},
		} {
			if p.value == "" {
				errs = append(errs, fmt.Sprintf("%s cannot be empty", p.name))
				continue
			}
			if filepath.IsAbs(p.value) {
				errs = append(errs, fmt.Sprintf("%s must be relative to sysfs, got %q", p.name, p.value))
			}
		}

		if c.Device.CardPrefix == "" {
			errs = append(errs, fmt.Sprintf("%s cannot be empty", DeviceCardPrefix))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	return nil
}

func canReadDir(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer func() {
		// ignored on purpose
		_ = f.Close()
	}()

	// an empty directory is still a readable one
	_, err = f.ReadDir(1)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

func (c *Config) String() string {
	bytes, err := yaml.Marshal(c)
	if err == nil {
		return string(bytes)
	}
	// NOTE: this code path should not happen but if it does (i.e if yaml
	// marshal fails for some reason), manually build the string
	return c.manualString()
}

func (c *Config) manualString() string {
	cfgs := []struct {
		Name  string
		Value string
	}{
		{LogLevelFlag, c.Log.Level},
		{LogFormatFlag, c.Log.Format},
		{HostSysFSFlag, c.Host.SysFS},
		{DeviceClassDir, c.Device.ClassDir},
		{DeviceCardPrefix, c.Device.CardPrefix},
		{DeviceHwmonSubdir, c.Device.HwmonSubdir},
		{DryRunFlag, fmt.Sprintf("%v", ptr.Deref(c.Write.DryRun, false))},
	}
	sb := strings.Builder{}

	for _, cfg := range cfgs {
		sb.WriteString(cfg.Name)
		sb.WriteString(": ")
		sb.WriteString(cfg.Value)
		sb.WriteString("\n")
	}

	return sb.String()
}
