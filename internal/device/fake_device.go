// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sync"
)

// NOTE: This fake device is not intended to be used in production and is for testing only
var defaultFakeDomains = []Domain{PackageDomain(0), DRAMDomain(0)}

const defaultFakePath = "/sys/class/powercap/intel-rapl"

// fakeEnergyZone implements the EnergyZone interface
type fakeEnergyZone struct {
	name      string
	index     int
	path      string
	energy    Energy
	maxEnergy Energy
	mu        sync.Mutex

	// For generating fake values
	increment    Energy
	randomFactor float64
}

var _ EnergyZone = (*fakeEnergyZone)(nil)

// Name returns the zone name
func (z *fakeEnergyZone) Name() string {
	return z.name
}

// Index returns the index of the zone
func (z *fakeEnergyZone) Index() int {
	return z.index
}

// Path returns the path from which the energy usage value ie being read
func (z *fakeEnergyZone) Path() string {
	return z.path
}

// Energy advances the counter by increment plus some noise on every read,
// wrapping at maxEnergy like a hardware counter. A zero maxEnergy means the
// counter never wraps.
func (z *fakeEnergyZone) Energy() (Energy, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	randomComponent := Energy(rand.Float64() * float64(z.increment) * z.randomFactor)
	z.energy += z.increment + randomComponent
	if z.maxEnergy > 0 {
		z.energy %= z.maxEnergy
	}

	return z.energy, nil
}

// MaxEnergy returns the maximum value of energy usage that can be read.
func (z *fakeEnergyZone) MaxEnergy() Energy {
	return z.maxEnergy
}

// fakeDevice implements the EnergyDevice interface with synthetic counters
type fakeDevice struct {
	logger    *slog.Logger
	available []counter
	counters  []counter
}

var _ EnergyDevice = (*fakeDevice)(nil)

// FakeOptFn is a functional option for configuring the fake device
type FakeOptFn func(*fakeDevice)

// WithFakePath sets the base device path for the fake zones
func WithFakePath(path string) FakeOptFn {
	return func(d *fakeDevice) {
		for _, c := range d.available {
			if fz, ok := c.zone.(*fakeEnergyZone); ok {
				fz.path = filepath.Join(path, fmt.Sprintf("energy_%s", c.domain))
			}
		}
	}
}

// WithFakeMaxEnergy sets the maximum energy value before wrap-around
func WithFakeMaxEnergy(e Energy) FakeOptFn {
	return func(d *fakeDevice) {
		for _, c := range d.available {
			if fz, ok := c.zone.(*fakeEnergyZone); ok {
				fz.maxEnergy = e
			}
		}
	}
}

// WithFakeIncrement sets a fixed per-read increment and disables noise
func WithFakeIncrement(e Energy) FakeOptFn {
	return func(d *fakeDevice) {
		for _, c := range d.available {
			if fz, ok := c.zone.(*fakeEnergyZone); ok {
				fz.increment = e
				fz.randomFactor = 0
			}
		}
	}
}

// WithFakeLogger sets the logger of the fake device
func WithFakeLogger(l *slog.Logger) FakeOptFn {
	return func(d *fakeDevice) {
		d.logger = l.With("device", d.Name())
	}
}

// NewFakeDevice creates a device exposing domains with synthetic counters.
// All domains are configured.
func NewFakeDevice(domains []Domain, opts ...FakeOptFn) (EnergyDevice, error) {
	d := &fakeDevice{
		logger: slog.Default().With("device", "fake"),
	}

	// nil and empty slices are equivalent
	if len(domains) == 0 {
		domains = defaultFakeDomains
	}

	incrementFactor := map[DomainKind]int{
		KindPackage: 12,
		KindDRAM:    5,
		KindPsys:    20,
	}

	seen := make(map[Domain]bool, len(domains))
	d.available = make([]counter, 0, len(domains))
	for i, domain := range domains {
		if seen[domain] {
			return nil, fmt.Errorf("duplicate fake domain %s", domain)
		}
		seen[domain] = true

		d.available = append(d.available, counter{
			domain: domain,
			zone: &fakeEnergyZone{
				name:         domain.Kind.String(),
				index:        i,
				path:         filepath.Join(defaultFakePath, fmt.Sprintf("energy_%s", domain)),
				maxEnergy:    1_000_000 * Joule,
				increment:    Energy(100+incrementFactor[domain.Kind]) * MilliJoule,
				randomFactor: 0.5,
			},
		})
	}

	for _, opt := range opts {
		opt(d)
	}

	d.counters = d.available
	return d, nil
}

func (d *fakeDevice) Name() string {
	return "fake"
}

func (d *fakeDevice) AvailableDomains() ([]Domain, error) {
	return counterDomains(d.available), nil
}

func (d *fakeDevice) Configure(requested []Domain) error {
	selected, err := selectCounters(d.available, requested)
	if err != nil {
		return err
	}
	d.counters = selected
	return nil
}

func (d *fakeDevice) Domains() []Domain {
	return counterDomains(d.counters)
}

func (d *fakeDevice) Energy() ([]float64, error) {
	return readCounters(d.counters)
}

func (d *fakeDevice) MaxEnergy() []float64 {
	return counterMaxEnergy(d.counters)
}
