// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"log/slog"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/sustainable-computing-io/joulemeter/internal/device"
)

// DeviceCollector exposes the absolute energy counters of devices at scrape time
type DeviceCollector struct {
	sync.Mutex

	logger  *slog.Logger
	devices []device.EnergyDevice

	energyDesc    *prom.Desc
	maxEnergyDesc *prom.Desc
}

var _ prom.Collector = (*DeviceCollector)(nil)

func NewDeviceCollector(devices []device.EnergyDevice, logger *slog.Logger) *DeviceCollector {
	return &DeviceCollector{
		logger:  logger.With("collector", "device"),
		devices: devices,
		energyDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "domain", "energy_joules_total"),
			"Absolute energy counter of a domain in joules",
			[]string{"device", "domain"},
			nil,
		),
		maxEnergyDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "domain", "max_energy_joules"),
			"Value in joules at which the energy counter of a domain wraps around",
			[]string{"device", "domain"},
			nil,
		),
	}
}

func (c *DeviceCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.energyDesc
	ch <- c.maxEnergyDesc
}

// Collect reads every device once. A device that fails to read is skipped.
func (c *DeviceCollector) Collect(ch chan<- prom.Metric) {
	c.Lock()
	defer c.Unlock()

	for _, dev := range c.devices {
		domains := dev.Domains()
		energy, err := dev.Energy()
		if err != nil {
			c.logger.Error("Failed to read energy", "device", dev.Name(), "error", err)
			continue
		}
		ranges := dev.MaxEnergy()

		for i, d := range domains {
			if i >= len(energy) {
				break
			}
			ch <- prom.MustNewConstMetric(c.energyDesc, prom.CounterValue, energy[i], dev.Name(), d.String())
			if i < len(ranges) && ranges[i] > 0 {
				ch <- prom.MustNewConstMetric(c.maxEnergyDesc, prom.GaugeValue, ranges[i], dev.Name(), d.String())
			}
		}
	}
}
