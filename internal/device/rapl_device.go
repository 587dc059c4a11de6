// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"log/slog"
)

// raplDevice implements EnergyDevice on top of the powercap sysfs interface
type raplDevice struct {
	logger      *slog.Logger
	sysfsPath   string
	includePsys bool

	// configured counters in canonical order; empty until Configure succeeds
	counters []counter
}

var _ EnergyDevice = (*raplDevice)(nil)

type OptionFn func(*raplDevice)

// WithLogger sets the logger for raplDevice
func WithLogger(logger *slog.Logger) OptionFn {
	return func(d *raplDevice) {
		d.logger = logger.With("service", "rapl")
	}
}

// WithPsys controls whether the platform (psys) zone is reported as a domain.
// It is folded by default.
func WithPsys(include bool) OptionFn {
	return func(d *raplDevice) {
		d.includePsys = include
	}
}

func newRaplDevice(sysfsPath string, opts ...OptionFn) *raplDevice {
	ret := &raplDevice{
		logger:    slog.Default().With("service", "rapl"),
		sysfsPath: sysfsPath,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// NewRaplDevice creates a RAPL device reading counters below sysfsPath (usually /sys).
// It fails with ErrNoSuchEnergyDevice when the machine has no RAPL powercap
// interface. The device has no active domain until Configure is called.
func NewRaplDevice(sysfsPath string, opts ...OptionFn) (*raplDevice, error) {
	ret := newRaplDevice(sysfsPath, opts...)
	if err := probeRaplRoot(sysfsPath); err != nil {
		return nil, err
	}
	return ret, nil
}

// Discover returns the RAPL domains available below sysfsPath without
// creating a device
func Discover(sysfsPath string, opts ...OptionFn) ([]Domain, error) {
	return newRaplDevice(sysfsPath, opts...).AvailableDomains()
}

func (r *raplDevice) Name() string {
	return "rapl"
}

func (r *raplDevice) AvailableDomains() ([]Domain, error) {
	counters, err := discoverCounters(r.sysfsPath, r.includePsys, r.logger)
	if err != nil {
		return nil, err
	}
	return counterDomains(counters), nil
}

// Configure validates requested against a fresh discovery. The configured
// order is always the discovery order, regardless of the order of requested.
// An empty request configures every available domain.
func (r *raplDevice) Configure(requested []Domain) error {
	available, err := discoverCounters(r.sysfsPath, r.includePsys, r.logger)
	if err != nil {
		return err
	}

	selected, err := selectCounters(available, requested)
	if err != nil {
		return err
	}

	r.counters = selected
	r.logger.Debug("Configured RAPL domains", "domains", counterDomains(selected))
	return nil
}

func (r *raplDevice) Domains() []Domain {
	return counterDomains(r.counters)
}

func (r *raplDevice) Energy() ([]float64, error) {
	return readCounters(r.counters)
}

func (r *raplDevice) MaxEnergy() []float64 {
	return counterMaxEnergy(r.counters)
}
