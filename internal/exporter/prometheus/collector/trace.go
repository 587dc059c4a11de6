// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"strconv"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/sustainable-computing-io/joulemeter/internal/exporter"
)

// TraceCollector is an exporter that keeps the latest trace of every trace
// name and exposes its samples as gauges
type TraceCollector struct {
	mutex  sync.RWMutex
	traces map[string]exporter.Trace

	energyDesc   *prom.Desc
	durationDesc *prom.Desc
}

var (
	_ prom.Collector    = (*TraceCollector)(nil)
	_ exporter.Exporter = (*TraceCollector)(nil)
)

func NewTraceCollector() *TraceCollector {
	return &TraceCollector{
		traces: map[string]exporter.Trace{},
		energyDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "sample", "energy_joules"),
			"Energy consumed by a domain during a trace sample in joules",
			[]string{"trace", "tag", "index", "domain"},
			nil,
		),
		durationDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "sample", "duration_seconds"),
			"Duration of a trace sample in seconds",
			[]string{"trace", "tag", "index"},
			nil,
		),
	}
}

func (c *TraceCollector) Name() string {
	return "prometheus"
}

// Export replaces the previous trace of the same name
func (c *TraceCollector) Export(trace exporter.Trace) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.traces[traceLabel(trace)] = trace
	return nil
}

func (c *TraceCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.energyDesc
	ch <- c.durationDesc
}

func (c *TraceCollector) Collect(ch chan<- prom.Metric) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for name, trace := range c.traces {
		for i, s := range trace.Samples {
			index := strconv.Itoa(i)
			ch <- prom.MustNewConstMetric(c.durationDesc, prom.GaugeValue, s.Duration, name, s.Tag, index)
			for _, d := range s.Domains() {
				ch <- prom.MustNewConstMetric(c.energyDesc, prom.GaugeValue, s.Energy[d], name, s.Tag, index, d)
			}
		}
	}
}

func traceLabel(trace exporter.Trace) string {
	if trace.Name != "" {
		return trace.Name
	}
	return trace.ID.String()
}
