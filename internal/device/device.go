// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import "fmt"

// EnergyDevice is implemented by every energy backend that can be driven by
// an energy meter. Readings are absolute and returned in the order of Domains().
type EnergyDevice interface {
	// Name returns a string identifying the device
	Name() string

	// AvailableDomains returns every domain the device could measure, in the
	// device's canonical order
	AvailableDomains() ([]Domain, error)

	// Configure selects the domains to read. It fails with ErrNoSuchDomain
	// on the first requested domain that is not available and leaves the
	// previous configuration untouched.
	Configure(domains []Domain) error

	// Domains returns the configured domains in canonical order
	Domains() []Domain

	// Energy returns the absolute energy counter of each configured domain in joules
	Energy() ([]float64, error)

	// MaxEnergy returns, per configured domain, the counter value in joules
	// at which Energy wraps around to zero. Zero means unknown.
	MaxEnergy() []float64
}

// EnergyZone represents one readable energy counter backing a Domain
type EnergyZone interface {
	// Name() returns the zone name
	Name() string

	// Index() returns the index of the zone
	Index() int

	// Path() returns the path from which the energy usage value ie being read
	Path() string

	// Energy() returns the absolute counter value.
	Energy() (Energy, error)

	// MaxEnergy returns the maximum value of energy usage that can be read.
	// When energy usage reaches this value, the energy value returned by Energy()
	// will wrap around and start again from zero.
	MaxEnergy() Energy
}

// counter binds a domain to the zone it is read from
type counter struct {
	domain Domain
	zone   EnergyZone
}

// selectCounters returns the available counters whose domain was requested,
// in the order of available. An empty request selects everything.
func selectCounters(available []counter, requested []Domain) ([]counter, error) {
	if len(requested) == 0 {
		return available, nil
	}

	index := make(map[Domain]bool, len(available))
	for _, c := range available {
		index[c.domain] = true
	}

	wanted := make(map[Domain]bool, len(requested))
	for _, d := range requested {
		if !index[d] {
			return nil, ErrNoSuchDomain{Domain: d}
		}
		wanted[d] = true
	}

	selected := make([]counter, 0, len(wanted))
	for _, c := range available {
		if wanted[c.domain] {
			selected = append(selected, c)
		}
	}
	return selected, nil
}

func counterDomains(counters []counter) []Domain {
	domains := make([]Domain, len(counters))
	for i, c := range counters {
		domains[i] = c.domain
	}
	return domains
}

func counterMaxEnergy(counters []counter) []float64 {
	ranges := make([]float64, len(counters))
	for i, c := range counters {
		ranges[i] = c.zone.MaxEnergy().Joules()
	}
	return ranges
}

// readCounters reads every counter once, in order
func readCounters(counters []counter) ([]float64, error) {
	readings := make([]float64, len(counters))
	for i, c := range counters {
		e, err := c.zone.Energy()
		if err != nil {
			return nil, fmt.Errorf("failed to read energy of %s from %s: %w", c.domain, c.zone.Path(), err)
		}
		readings[i] = e.Joules()
	}
	return readings, nil
}
