// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package exporter

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sustainable-computing-io/joulemeter/internal/meter"
)

// Trace is a completed energy trace ready to be exported
type Trace struct {
	ID      uuid.UUID
	Name    string
	Samples []meter.Sample
}

// NewTrace collects the samples of a stopped meter into a Trace with a fresh ID
func NewTrace(name string, m *meter.EnergyMeter) (Trace, error) {
	samples, err := m.Samples()
	if err != nil {
		return Trace{}, err
	}
	return Trace{ID: uuid.New(), Name: name, Samples: samples}, nil
}

// Exporter writes traces to some destination
type Exporter interface {
	// Name returns the name of the exporter
	Name() string

	// Export writes trace
	Export(trace Trace) error
}

// Multi exports to every exporter in order
type Multi []Exporter

var _ Exporter = Multi(nil)

func (m Multi) Name() string {
	return "multi"
}

// Export hands trace to all exporters, even after a failure, and joins the errors
func (m Multi) Export(trace Trace) error {
	var errs []error
	for _, e := range m {
		if err := e.Export(trace); err != nil {
			errs = append(errs, fmt.Errorf("%s exporter: %w", e.Name(), err))
		}
	}
	return errors.Join(errs...)
}
