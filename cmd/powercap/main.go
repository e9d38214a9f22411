// SPDX-FileCopyrightText: 2025 The powercap Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/utils/ptr"

	"github.com/soerengrunewald/powercap/config"
	"github.com/soerengrunewald/powercap/internal/device"
	"github.com/soerengrunewald/powercap/internal/logger"
	"github.com/soerengrunewald/powercap/internal/status"
	"github.com/soerengrunewald/powercap/internal/version"
)

// cliOptions holds the selection flags that pick what to do; everything
// else lives in the config.
type cliOptions struct {
	restoreDefault bool
	setMin         bool
	setMax         bool
	show           bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, opts, err := parseArgsAndConfig(args, stderr)
	if err != nil {
		return 1
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, stderr)
	logVersionInfo(log)
	printConfigInfo(log, cfg, stderr)

	locator := device.NewLocator(cfg.Host.SysFS,
		device.WithLocatorLogger(log),
		device.WithClassDir(cfg.Device.ClassDir),
		device.WithCardPrefix(cfg.Device.CardPrefix),
		device.WithHwmonSubdir(cfg.Device.HwmonSubdir),
	)

	paths, err := locator.Locate()
	if err != nil {
		log.Error("Unable to locate a capable device", "error", err)
		return 1
	}
	log.Debug("Located device", "card", paths.Card, "hwmon", paths.Hwmon)

	dryRun := ptr.Deref(cfg.Write.DryRun, false)
	caps := device.NewCapControl(paths.Hwmon,
		device.WithCapLogger(log),
		device.WithDryRun(dryRun),
	)

	if opts.show {
		if err := status.Write(stdout, paths, caps); err != nil {
			log.Error("Unable to report power cap status", "error", err)
			return 1
		}
		return 0
	}

	action := resolveAction(opts)
	log.Info("Setting power target", "target", action.String())

	v, err := caps.Apply(action)
	if err != nil {
		log.Error("Unable to apply power cap", "error", err)
		return 1
	}

	if dryRun {
		fmt.Fprintf(stdout, "dry run: power cap would be set to %s (%d microwatts)\n", v, v.MicroWatts())
	} else {
		fmt.Fprintf(stdout, "power cap set to %s (%d microwatts)\n", v, v.MicroWatts())
	}

	return 0
}

// resolveAction maps the selection flags to the action to perform. With
// conflicting selections the strongest one wins: default over max over min.
func resolveAction(opts *cliOptions) device.Action {
	switch {
	case opts.restoreDefault:
		return device.RestoreDefault
	case opts.setMax:
		return device.SetToMax
	case opts.setMin:
		return device.SetToMin
	}

	// nothing selected, choose the safe end
	return device.SetToMin
}

func parseArgsAndConfig(args []string, errOut io.Writer) (*config.Config, *cliOptions, error) {
	const appName = "powercap"
	app := kingpin.New(appName, "Set power-limits on AMD GPUs.")
	app.Version(version.Short())
	app.HelpFlag.Short('h')
	app.UsageWriter(errOut)
	app.ErrorWriter(errOut)

	opts := &cliOptions{}
	app.Flag("default", "Restore the driver default power limit").BoolVar(&opts.restoreDefault)
	app.Flag("min", "Set the power limit to the minimum (the default selection)").BoolVar(&opts.setMin)
	app.Flag("max", "Set the power limit to the maximum").BoolVar(&opts.setMax)
	app.Flag("show", "Report the enforced cap and the reference values without writing").Short('s').BoolVar(&opts.show)
	verbose := app.Flag("verbose", "Enable extra messages, same as --log.level=debug").Short('v').Bool()

	configFile := app.Flag("config.file", "Path to YAML configuration file").String()
	updateConfig := config.RegisterFlags(app)

	if _, err := app.Parse(args); err != nil {
		fmt.Fprintf(errOut, "%s: error: %v\n", appName, err)
		return nil, nil, err
	}

	log := logger.New("info", "text", errOut)
	cfg := config.DefaultConfig()
	if *configFile != "" {
		log.Info("Loading configuration file", "path", *configFile)
		loadedCfg, err := config.FromFile(*configFile)
		if err != nil {
			log.Error("Error loading config file", "error", err.Error())
			return nil, nil, err
		}
		// Replace default config with loaded config
		cfg = loadedCfg
	}

	// Apply command line flags (these override config file settings)
	if err := updateConfig(cfg); err != nil {
		log.Error("Error applying command line flags", "error", err.Error())
		return nil, nil, err
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}

	return cfg, opts, nil
}

func logVersionInfo(log *slog.Logger) {
	v := version.Info()
	log.Debug("powercap version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitBranch", v.GitBranch,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

func printConfigInfo(log *slog.Logger, cfg *config.Config, out io.Writer) {
	if !log.Enabled(context.Background(), slog.LevelDebug) || cfg.Log.Format == "json" {
		return
	}

	fmt.Fprintf(out, `
Configuration
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
%s
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`, cfg)
}
