// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"k8s.io/utils/ptr"

	"github.com/sustainable-computing-io/joulemeter/config"
	"github.com/sustainable-computing-io/joulemeter/internal/device"
	"github.com/sustainable-computing-io/joulemeter/internal/exporter"
	csvexporter "github.com/sustainable-computing-io/joulemeter/internal/exporter/csv"
	"github.com/sustainable-computing-io/joulemeter/internal/exporter/prometheus"
	"github.com/sustainable-computing-io/joulemeter/internal/exporter/prometheus/collector"
	"github.com/sustainable-computing-io/joulemeter/internal/exporter/sqlite"
	"github.com/sustainable-computing-io/joulemeter/internal/exporter/stdout"
	"github.com/sustainable-computing-io/joulemeter/internal/meter"
	"github.com/sustainable-computing-io/joulemeter/internal/sampler"
	"github.com/sustainable-computing-io/joulemeter/internal/server"
	"github.com/sustainable-computing-io/joulemeter/internal/service"
)

func run(ctx context.Context, logger *slog.Logger, inv *invocation, out io.Writer) error {
	devices, err := createDevices(logger, inv.cfg)
	if err != nil {
		return err
	}

	if inv.command == domainsCmd {
		return stdout.WriteDomains(out, devices)
	}

	exporters, closeExporters, err := createExporters(logger, inv.cfg, out)
	if err != nil {
		return err
	}
	defer closeExporters()

	switch inv.command {
	case measureCmd:
		return runMeasure(ctx, logger, inv.cfg, devices, exporters,
			strings.Join(inv.argv, " "), commandFn(inv.argv))
	case watchCmd:
		return runWatch(ctx, logger, inv.cfg, devices, exporters)
	default:
		return fmt.Errorf("unknown command %q", inv.command)
	}
}

// createDevices returns the configured energy devices; the fake device
// replaces RAPL in dev mode
func createDevices(logger *slog.Logger, cfg *config.Config) ([]device.EnergyDevice, error) {
	domains, err := cfg.Domains()
	if err != nil {
		return nil, err
	}

	if !ptr.Deref(cfg.Dev.FakeDevice.Enabled, false) {
		return device.NewDevices(cfg.Host.SysFS, domains,
			device.WithLogger(logger),
			device.WithPsys(ptr.Deref(cfg.Rapl.Psys, false)),
		)
	}

	logger.Warn("Using a fake energy device; readings are synthetic")
	fakeDomains, err := cfg.FakeDomains()
	if err != nil {
		return nil, err
	}
	fake, err := device.NewFakeDevice(fakeDomains, device.WithFakeLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := fake.Configure(domains); err != nil {
		return nil, fmt.Errorf("failed to configure %s device: %w", fake.Name(), err)
	}
	return []device.EnergyDevice{fake}, nil
}

// createExporters returns the enabled trace exporters and a function
// releasing them
func createExporters(logger *slog.Logger, cfg *config.Config, out io.Writer) (exporter.Multi, func(), error) {
	exporters := exporter.Multi{}
	closers := []func() error{}
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("Failed to close exporter", "error", err)
			}
		}
	}

	if ptr.Deref(cfg.Exporter.Stdout.Enabled, false) {
		exporters = append(exporters, stdout.NewExporter(stdout.WithLogger(logger), stdout.WithOutput(out)))
	}

	if ptr.Deref(cfg.Exporter.CSV.Enabled, false) {
		exporters = append(exporters, csvexporter.NewExporter(cfg.Exporter.CSV.Path, csvexporter.WithLogger(logger)))
	}

	if ptr.Deref(cfg.Exporter.SQLite.Enabled, false) {
		store, err := sqlite.Open(cfg.Exporter.SQLite.Path, sqlite.WithLogger(logger))
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		exporters = append(exporters, store)
		closers = append(closers, store.Close)
	}

	if len(exporters) == 0 {
		logger.Warn("No exporter enabled; traces are discarded")
	}
	return exporters, closeAll, nil
}

// commandFn runs argv, forwarding the standard streams. The child is
// interrupted when ctx is canceled.
func commandFn(argv []string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Cancel = func() error {
			return cmd.Process.Signal(syscall.SIGINT)
		}
		return cmd.Run()
	}
}

// runMeasure measures fn and exports the resulting trace, also when fn
// fails or is interrupted
func runMeasure(ctx context.Context, logger *slog.Logger, cfg *config.Config,
	devices []device.EnergyDevice, exp exporter.Exporter, name string, fn func(ctx context.Context) error,
) error {
	var measureErr error
	measure := service.NewRunner("measure", func(ctx context.Context) error {
		m, err := meter.Measure(devices, "", func() error { return fn(ctx) },
			meter.WithLogger(logger),
			meter.WithDefaultTag(cfg.Meter.DefaultTag),
		)
		if m == nil {
			return err
		}
		measureErr = err

		trace, traceErr := exporter.NewTrace(name, m)
		if traceErr != nil {
			return traceErr
		}
		return exp.Export(trace)
	})

	if err := service.Run(ctx, logger, []service.Service{
		measure,
		service.NewSignalHandler(logger, os.Interrupt, syscall.SIGTERM),
	}); err != nil {
		return errors.Join(measureErr, err)
	}
	return measureErr
}

// runWatch samples until interrupted, serving metrics while it runs
func runWatch(ctx context.Context, logger *slog.Logger, cfg *config.Config,
	devices []device.EnergyDevice, exporters exporter.Multi,
) error {
	services := []service.Service{}

	var traces *collector.TraceCollector
	promEnabled := ptr.Deref(cfg.Exporter.Prometheus.Enabled, false)
	if promEnabled {
		traces = collector.NewTraceCollector()
		exporters = append(exporters, traces)
	}

	s := sampler.NewSampler(devices, exporters,
		sampler.WithLogger(logger),
		sampler.WithInterval(cfg.Meter.Interval),
		sampler.WithSamplesPerTrace(cfg.Meter.SamplesPerTrace),
		sampler.WithMeterOptions(meter.WithDefaultTag(cfg.Meter.DefaultTag)),
	)
	services = append(services, s)

	pprofEnabled := ptr.Deref(cfg.Debug.Pprof.Enabled, false)
	if promEnabled || pprofEnabled {
		apiServer := server.NewAPIServer(
			server.WithLogger(logger),
			server.WithListenAddress(cfg.Web.ListenAddresses),
			server.WithWebConfig(cfg.Web.Config),
		)
		services = append(services, apiServer, server.NewProbe(apiServer, s))

		if promEnabled {
			services = append(services, prometheus.NewExporter(apiServer,
				prometheus.WithLogger(logger),
				prometheus.WithDebugCollectors(cfg.Exporter.Prometheus.DebugCollectors),
				prometheus.WithCollectors(prometheus.CreateCollectors(devices, traces, logger)),
			))
		}
		if pprofEnabled {
			services = append(services, server.NewPprof(apiServer))
		}
	}
	services = append(services, service.NewSignalHandler(logger, os.Interrupt, syscall.SIGTERM))

	if err := service.Init(logger, services); err != nil {
		return err
	}

	logger.Info("Starting joulemeter", "interval", cfg.Meter.Interval)
	if err := service.Run(ctx, logger, services); err != nil {
		return err
	}
	logger.Info("Graceful shutdown completed")
	return nil
}
