// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/sustainable-computing-io/joulemeter/internal/device"
	"github.com/sustainable-computing-io/joulemeter/internal/exporter"
	"github.com/sustainable-computing-io/joulemeter/internal/meter"
	"github.com/sustainable-computing-io/joulemeter/internal/service"
)

// Opts for the Sampler
type Opts struct {
	logger          *slog.Logger
	clock           clock.WithTicker
	interval        time.Duration
	samplesPerTrace int
	traceName       string
	meterOpts       []meter.OptionFn
}

// DefaultOpts returns the default options
func DefaultOpts() Opts {
	return Opts{
		logger:    slog.Default(),
		clock:     clock.RealClock{},
		interval:  time.Second,
		traceName: "watch",
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the Sampler
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithClock sets the clock driving both the ticker and the meter timestamps
func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithInterval sets the period between two records
func WithInterval(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = d
	}
}

// WithSamplesPerTrace makes the sampler export and restart its meter after n
// samples. 0 keeps a single trace until shutdown.
func WithSamplesPerTrace(n int) OptionFn {
	return func(o *Opts) {
		o.samplesPerTrace = n
	}
}

// WithTraceName sets the name given to exported traces
func WithTraceName(name string) OptionFn {
	return func(o *Opts) {
		o.traceName = name
	}
}

// WithMeterOptions passes options to every meter the sampler creates
func WithMeterOptions(opts ...meter.OptionFn) OptionFn {
	return func(o *Opts) {
		o.meterOpts = append(o.meterOpts, opts...)
	}
}

// Sampler records a sample every interval on a running energy meter and
// exports the resulting trace on shutdown or rotation
type Sampler struct {
	logger          *slog.Logger
	clock           clock.WithTicker
	interval        time.Duration
	samplesPerTrace int
	traceName       string
	meterOpts       []meter.OptionFn

	devices  []device.EnergyDevice
	exporter exporter.Exporter

	mu       sync.Mutex
	meter    *meter.EnergyMeter
	recorded int // samples recorded on the current meter
	exported int // traces exported so far
	lastErr  error
}

var (
	_ service.Initializer = (*Sampler)(nil)
	_ service.Runner      = (*Sampler)(nil)
	_ service.Shutdowner  = (*Sampler)(nil)
)

// NewSampler creates a Sampler over configured devices. Traces go to exp.
func NewSampler(devices []device.EnergyDevice, exp exporter.Exporter, applyOpts ...OptionFn) *Sampler {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	meterOpts := append([]meter.OptionFn{
		meter.WithClock(opts.clock),
		meter.WithLogger(opts.logger),
	}, opts.meterOpts...)

	return &Sampler{
		logger:          opts.logger.With("service", "sampler"),
		clock:           opts.clock,
		interval:        opts.interval,
		samplesPerTrace: opts.samplesPerTrace,
		traceName:       opts.traceName,
		meterOpts:       meterOpts,
		devices:         devices,
		exporter:        exp,
	}
}

func (s *Sampler) Name() string {
	return "sampler"
}

// Init starts the first meter
func (s *Sampler) Init() error {
	if s.interval <= 0 {
		return fmt.Errorf("invalid sampling interval: %s", s.interval)
	}
	if s.samplesPerTrace < 0 {
		return fmt.Errorf("invalid samples per trace: %d", s.samplesPerTrace)
	}
	if len(s.devices) == 0 {
		return fmt.Errorf("no energy device to sample")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startMeter()
}

// Run records on every tick until ctx is canceled
func (s *Sampler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Sampling energy", "interval", s.interval, "samples-per-trace", s.samplesPerTrace)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			s.tick()
		}
	}
}

// Shutdown stops the current meter and exports the open trace
func (s *Sampler) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meter == nil {
		return nil
	}
	err := s.stopAndExport()
	s.meter = nil
	return err
}

// Ready reports whether the last attempt to read the devices succeeded
func (s *Sampler) Ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meter == nil {
		return fmt.Errorf("energy meter not running")
	}
	return s.lastErr
}

// Exported returns the number of traces handed to the exporter
func (s *Sampler) Exported() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exported
}

func (s *Sampler) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meter == nil {
		return
	}

	if s.samplesPerTrace == 0 || s.recorded+1 < s.samplesPerTrace {
		// the tag of the period opened here is the index of the sample it becomes
		if err := s.meter.Record(strconv.Itoa(s.recorded + 1)); err != nil {
			s.lastErr = err
			s.logger.Warn("Failed to record energy sample", "error", err)
			return
		}
		s.lastErr = nil
		s.recorded++
		return
	}

	// the trace is full: stopping closes its last sample
	if err := s.meter.Stop(); err != nil {
		s.lastErr = err
		s.logger.Warn("Failed to stop energy meter", "error", err)
		return
	}
	if err := s.export(); err != nil {
		s.logger.Error("Failed to export trace", "error", err)
	}
	if err := s.startMeter(); err != nil {
		s.meter = nil
		s.lastErr = err
		s.logger.Error("Failed to restart energy meter", "error", err)
	}
}

// startMeter must be called with mu held
func (s *Sampler) startMeter() error {
	m := meter.NewEnergyMeter(s.devices, s.meterOpts...)
	if err := m.Start("0"); err != nil {
		return fmt.Errorf("failed to start energy meter: %w", err)
	}
	s.meter = m
	s.recorded = 0
	s.lastErr = nil
	return nil
}

// stopAndExport must be called with mu held
func (s *Sampler) stopAndExport() error {
	if err := s.meter.Stop(); err != nil {
		return fmt.Errorf("failed to stop energy meter: %w", err)
	}
	return s.export()
}

// export must be called with mu held on a stopped meter
func (s *Sampler) export() error {
	trace, err := exporter.NewTrace(s.traceName, s.meter)
	if err != nil {
		return err
	}

	s.exported++
	s.logger.Debug("Exporting trace", "id", trace.ID, "samples", len(trace.Samples))
	return s.exporter.Export(trace)
}
