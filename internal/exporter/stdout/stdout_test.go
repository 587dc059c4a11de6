// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sustainable-computing-io/joulemeter/internal/device"
	"github.com/sustainable-computing-io/joulemeter/internal/exporter"
	"github.com/sustainable-computing-io/joulemeter/internal/meter"
)

func sampleTrace() exporter.Trace {
	domains := []string{"package_0", "dram_0"}
	return exporter.Trace{
		ID:   uuid.MustParse("8d6b2a3c-0f61-4e0b-9b1a-3f2f6b7d1c11"),
		Name: "build",
		Samples: []meter.Sample{
			meter.NewSample(0, "compile", 2, domains, map[string]float64{"package_0": 20, "dram_0": 4}),
			meter.NewSample(2, "link", 0.5, domains, map[string]float64{"package_0": 5, "dram_0": 1}),
		},
	}
}

func TestNewExporter(t *testing.T) {
	tests := []struct {
		name string
		opts []OptionFn
		out  any
	}{{
		name: "default options",
		out:  os.Stdout,
	}, {
		name: "custom options",
		opts: []OptionFn{
			WithLogger(slog.Default().With("test", "custom")),
			WithOutput(&bytes.Buffer{}),
		},
		out: &bytes.Buffer{},
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := NewExporter(tc.opts...)
			assert.NotNil(t, e.logger)
			assert.IsType(t, tc.out, e.out)
			assert.Equal(t, "stdout", e.Name())
		})
	}
}

func TestExporter_Export(t *testing.T) {
	out := &bytes.Buffer{}
	e := NewExporter(WithOutput(out))

	require.NoError(t, e.Export(sampleTrace()))

	got := out.String()
	assert.True(t, strings.HasPrefix(got, "Trace build (8d6b2a3c-0f61-4e0b-9b1a-3f2f6b7d1c11)\n"))

	// header formatting is up to tablewriter
	assert.Contains(t, strings.ToUpper(got), "TAG")

	assert.Contains(t, got, "compile")
	assert.Contains(t, got, "20.000")
	assert.Contains(t, got, "12.000") // (20+4)/2
	assert.Contains(t, got, "link")
	assert.Contains(t, got, "0.500")
}

func TestExporter_EmptyTrace(t *testing.T) {
	out := &bytes.Buffer{}
	e := NewExporter(WithOutput(out))

	require.NoError(t, e.Export(exporter.Trace{Name: "empty"}))
	assert.Contains(t, out.String(), "Trace empty")
}

func TestWriteDomains(t *testing.T) {
	dev, err := device.NewFakeDevice([]device.Domain{device.PackageDomain(0), device.PsysDomain()},
		device.WithFakeMaxEnergy(42*device.Joule))
	require.NoError(t, err)

	out := &bytes.Buffer{}
	require.NoError(t, WriteDomains(out, []device.EnergyDevice{dev}))

	got := out.String()
	assert.Contains(t, got, "fake")
	assert.Contains(t, got, "package_0")
	assert.Contains(t, got, "psys")
	assert.Contains(t, got, "42.000")
}

func TestTraceDomains(t *testing.T) {
	trace := exporter.Trace{Samples: []meter.Sample{
		meter.NewSample(0, "", 1, []string{"package_0"}, nil),
		meter.NewSample(1, "", 1, []string{"package_0", "psys"}, nil),
	}}
	assert.Equal(t, []string{"package_0", "psys"}, traceDomains(trace))
}
