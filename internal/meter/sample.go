// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"slices"
	"time"

	"github.com/sustainable-computing-io/joulemeter/internal/device"
)

// Sample is the energy consumed by every measured domain during one period
// of a trace. Samples are created by EnergyMeter and never modified; the
// meter hands out copies.
type Sample struct {
	// Timestamp is the start of the period in seconds since the meter was created
	Timestamp float64
	// Tag is the tag given when the period was opened
	Tag string
	// Duration of the period in seconds
	Duration float64
	// Energy in joules keyed by domain label e.g. package_0
	Energy map[string]float64

	domains []string
}

// NewSample builds a sample from stored values, e.g. when loading a trace back
// from an exporter. Labels missing from energy read as zero.
func NewSample(timestamp float64, tag string, duration float64, domains []string, energy map[string]float64) Sample {
	e := make(map[string]float64, len(domains))
	for _, label := range domains {
		e[label] = energy[label]
	}
	return Sample{
		Timestamp: timestamp,
		Tag:       tag,
		Duration:  duration,
		Energy:    e,
		domains:   slices.Clone(domains),
	}
}

// clone returns a sample sharing no map or slice with s
func (s Sample) clone() Sample {
	return NewSample(s.Timestamp, s.Tag, s.Duration, s.domains, s.Energy)
}

// Domains returns the domain labels of the sample in measurement order
func (s Sample) Domains() []string {
	return slices.Clone(s.domains)
}

// TotalEnergy returns the energy consumed by all domains in joules
func (s Sample) TotalEnergy() float64 {
	total := 0.0
	for _, label := range s.domains {
		total += s.Energy[label]
	}
	return total
}

// Power returns the average power drawn by the domain labelled label
func (s Sample) Power(label string) device.Power {
	return device.AveragePower(s.Energy[label], s.duration())
}

// TotalPower returns the average power drawn by all domains
func (s Sample) TotalPower() device.Power {
	return device.AveragePower(s.TotalEnergy(), s.duration())
}

func (s Sample) duration() time.Duration {
	return time.Duration(s.Duration * float64(time.Second))
}
