// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"k8s.io/utils/clock"

	"github.com/sustainable-computing-io/joulemeter/internal/device"
)

// State of an EnergyMeter. A meter only moves forward:
// NotStarted -> Started -> Stopped
type State int

const (
	NotStarted State = iota
	Started
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// checkpoint is a timestamp plus the absolute readings of every device
type checkpoint struct {
	timestamp float64
	readings  [][]float64
}

// EnergyMeter measures the energy consumed by a set of devices over a trace
// of consecutive tagged periods. A meter records a single trace and is not
// safe for concurrent use.
type EnergyMeter struct {
	logger     *slog.Logger
	clock      clock.PassiveClock
	origin     time.Time
	defaultTag string

	devices []device.EnergyDevice

	state State

	// fixed at Start
	labels    [][]string
	maxEnergy [][]float64

	// open period
	last    checkpoint
	lastTag string

	samples []Sample
}

// NewEnergyMeter creates a meter reading devices in the given order.
// Devices must be configured before Start.
func NewEnergyMeter(devices []device.EnergyDevice, opts ...OptionFn) *EnergyMeter {
	o := DefaultOpts()
	for _, opt := range opts {
		opt(&o)
	}

	return &EnergyMeter{
		logger:     o.logger.With("service", "meter"),
		clock:      o.clock,
		origin:     o.clock.Now(),
		defaultTag: o.defaultTag,
		devices:    slices.Clone(devices),
		state:      NotStarted,
	}
}

// State returns the lifecycle state of the meter
func (m *EnergyMeter) State() State {
	return m.state
}

// Start takes the first checkpoint and opens a period labelled tag.
// An empty tag selects the default tag.
func (m *EnergyMeter) Start(tag string) error {
	if m.state != NotStarted {
		return ErrMeterAlreadyStarted{}
	}

	labels, ranges := m.describeDevices()
	cp, err := m.checkpoint(labels)
	if err != nil {
		return err
	}

	m.labels = labels
	m.maxEnergy = ranges
	m.open(cp, tag)
	m.state = Started
	m.logger.Debug("Energy meter started", "tag", m.lastTag, "timestamp", cp.timestamp)
	return nil
}

// Record closes the open period as a sample and opens a new one labelled tag.
// An empty tag selects the default tag.
func (m *EnergyMeter) Record(tag string) error {
	if err := m.requireStarted("record"); err != nil {
		return err
	}

	cp, err := m.checkpoint(m.labels)
	if err != nil {
		return err
	}

	m.close(cp)
	m.open(cp, tag)
	m.logger.Debug("Energy meter recorded", "tag", m.lastTag, "timestamp", cp.timestamp)
	return nil
}

// Stop closes the open period and ends the trace
func (m *EnergyMeter) Stop() error {
	if err := m.requireStarted("stop"); err != nil {
		return err
	}

	cp, err := m.checkpoint(m.labels)
	if err != nil {
		return err
	}

	m.close(cp)
	m.state = Stopped
	m.logger.Debug("Energy meter stopped", "samples", len(m.samples), "timestamp", cp.timestamp)
	return nil
}

// Sample returns the first sample, in chronological order, labelled tag
func (m *EnergyMeter) Sample(tag string) (Sample, error) {
	if err := m.requireStopped("sample"); err != nil {
		return Sample{}, err
	}

	for _, s := range m.samples {
		if s.Tag == tag {
			return s.clone(), nil
		}
	}
	return Sample{}, ErrSampleNotFound{Tag: tag}
}

// Samples returns a copy of the trace; callers own the returned samples
func (m *EnergyMeter) Samples() ([]Sample, error) {
	if err := m.requireStopped("samples"); err != nil {
		return nil, err
	}
	samples := make([]Sample, len(m.samples))
	for i, s := range m.samples {
		samples[i] = s.clone()
	}
	return samples, nil
}

// All returns an iterator over the trace. Every range over the returned
// sequence starts from the first sample.
func (m *EnergyMeter) All() (iter.Seq[Sample], error) {
	if err := m.requireStopped("iterate"); err != nil {
		return nil, err
	}

	samples := m.samples
	return func(yield func(Sample) bool) {
		for _, s := range samples {
			if !yield(s.clone()) {
				return
			}
		}
	}, nil
}

func (m *EnergyMeter) requireStarted(op string) error {
	switch m.state {
	case NotStarted:
		return ErrMeterNotStarted{Op: op}
	case Stopped:
		return ErrMeterStopped{Op: op}
	}
	return nil
}

func (m *EnergyMeter) requireStopped(op string) error {
	switch m.state {
	case NotStarted:
		return ErrMeterNotStarted{Op: op}
	case Started:
		return ErrMeterNotStopped{Op: op}
	}
	return nil
}

func (m *EnergyMeter) describeDevices() ([][]string, [][]float64) {
	labels := make([][]string, len(m.devices))
	ranges := make([][]float64, len(m.devices))
	for i, dev := range m.devices {
		domains := dev.Domains()
		labels[i] = make([]string, len(domains))
		for j, d := range domains {
			labels[i][j] = d.String()
		}
		ranges[i] = dev.MaxEnergy()
	}
	return labels, ranges
}

// checkpoint reads every device once, in order. Nothing is modified on failure.
func (m *EnergyMeter) checkpoint(labels [][]string) (checkpoint, error) {
	readings := make([][]float64, len(m.devices))
	for i, dev := range m.devices {
		energy, err := dev.Energy()
		if err != nil {
			return checkpoint{}, fmt.Errorf("failed to read energy from %s device: %w", dev.Name(), err)
		}
		if len(energy) != len(labels[i]) {
			return checkpoint{}, fmt.Errorf("%s device returned %d readings for %d domains",
				dev.Name(), len(energy), len(labels[i]))
		}
		readings[i] = energy
	}

	return checkpoint{
		timestamp: m.clock.Since(m.origin).Seconds(),
		readings:  readings,
	}, nil
}

func (m *EnergyMeter) open(cp checkpoint, tag string) {
	if tag == "" {
		tag = m.defaultTag
	}
	m.last = cp
	m.lastTag = tag
}

// close appends the sample for the period between the open checkpoint and cp.
// A label measured by several devices keeps the value of the last one.
func (m *EnergyMeter) close(cp checkpoint) {
	energy := make(map[string]float64)
	domains := make([]string, 0)

	for i := range m.devices {
		for j, label := range m.labels[i] {
			maxEnergy := 0.0
			if j < len(m.maxEnergy[i]) {
				maxEnergy = m.maxEnergy[i][j]
			}
			if _, seen := energy[label]; !seen {
				domains = append(domains, label)
			}
			energy[label] = Correct(cp.readings[i][j], m.last.readings[i][j], maxEnergy)
		}
	}

	m.samples = append(m.samples, Sample{
		Timestamp: m.last.timestamp,
		Tag:       m.lastTag,
		Duration:  cp.timestamp - m.last.timestamp,
		Energy:    energy,
		domains:   domains,
	})
}
