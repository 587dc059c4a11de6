// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/sustainable-computing-io/joulemeter/config"
	"github.com/sustainable-computing-io/joulemeter/internal/logger"
	"github.com/sustainable-computing-io/joulemeter/internal/version"
)

const (
	domainsCmd = "domains"
	measureCmd = "measure"
	watchCmd   = "watch"
)

// invocation is the parsed command line
type invocation struct {
	cfg     *config.Config
	command string
	argv    []string // measured command
}

func main() {
	inv, err := parseArgsAndConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(inv.cfg.Log.Level, inv.cfg.Log.Format, os.Stderr)
	logVersionInfo(log)
	printConfigInfo(log, os.Stderr, inv.cfg)

	if err := run(context.Background(), log, inv, os.Stdout); err != nil {
		log.Error("joulemeter terminated with an error", "command", inv.command, "error", err)
		os.Exit(1)
	}
}

func logVersionInfo(logger *slog.Logger) {
	v := version.Info()
	logger.Debug("joulemeter version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitBranch", v.GitBranch,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

func newApp() (*kingpin.Application, *[]string, config.ConfigUpdaterFn, *[]string) {
	app := kingpin.New("joulemeter", "Measure the energy consumed by a host through its RAPL counters.")
	app.Version(version.Info().String())
	app.HelpFlag.Short('h')

	configFiles := app.Flag("config.file", "Path to YAML configuration file; repeat to merge several files, later ones win").Strings()
	updateConfig := config.RegisterFlags(app)

	app.Command(domainsCmd, "List the measurable energy domains and their counter range.")
	measure := app.Command(measureCmd, "Measure the energy consumed while a command runs.")
	argv := measure.Arg("command", "Command to run followed by its arguments; use -- before flags of the command").Required().Strings()
	app.Command(watchCmd, "Record energy samples periodically until interrupted.")

	return app, configFiles, updateConfig, argv
}

func parseArgsAndConfig(args []string) (*invocation, error) {
	app, configFiles, updateConfig, argv := newApp()
	command, err := app.Parse(args)
	if err != nil {
		return nil, err
	}

	cfg, err := (&config.Builder{}).
		Use(config.DefaultConfig()).
		MergeFiles(*configFiles...).
		Build()
	if err != nil {
		return nil, fmt.Errorf("error loading config file: %w", err)
	}

	// command line flags override config file settings
	if err := updateConfig(cfg); err != nil {
		return nil, fmt.Errorf("error applying command line flags: %w", err)
	}

	return &invocation{cfg: cfg, command: command, argv: *argv}, nil
}

func printConfigInfo(logger *slog.Logger, w io.Writer, cfg *config.Config) {
	if !logger.Enabled(context.Background(), slog.LevelDebug) || cfg.Log.Format == "json" {
		return
	}

	fmt.Fprintf(w, `
Configuration
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
%s
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`, cfg)
}
