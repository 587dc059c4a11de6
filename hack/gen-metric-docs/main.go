// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sustainable-computing-io/joulemeter/internal/device"
	promexporter "github.com/sustainable-computing-io/joulemeter/internal/exporter/prometheus"
	"github.com/sustainable-computing-io/joulemeter/internal/exporter/prometheus/collector"
)

// MetricInfo holds information about a Prometheus metric
type MetricInfo struct {
	Name        string
	Type        string
	Description string
	Labels      []string
	ConstLabels map[string]string
}

var (
	fqNameRegex         = regexp.MustCompile(`fqName: "([^"]+)"`)
	helpRegex           = regexp.MustCompile(`help: "([^"]+)"`)
	variableLabelsRegex = regexp.MustCompile(`variableLabels: \{([^}]*)\}`)
	constLabelsRegex    = regexp.MustCompile(`constLabels: \{([^}]*)\}`)
	labelPairRegex      = regexp.MustCompile(`(\w+)="([^"]*)"`)
)

// extractMetricsInfo parses the descriptions of a collector
func extractMetricsInfo(c prometheus.Collector) []MetricInfo {
	ch := make(chan *prometheus.Desc, 100)
	go func() {
		c.Describe(ch)
		close(ch)
	}()

	var metrics []MetricInfo
	for desc := range ch {
		descStr := desc.String()
		fqNameMatch := fqNameRegex.FindStringSubmatch(descStr)
		helpMatch := helpRegex.FindStringSubmatch(descStr)
		if len(fqNameMatch) < 2 || len(helpMatch) < 2 {
			fmt.Fprintf(os.Stderr, "Warning: could not parse %s\n", descStr)
			continue
		}
		name := fqNameMatch[1]

		var labels []string
		if m := variableLabelsRegex.FindStringSubmatch(descStr); len(m) >= 2 && m[1] != "" {
			for _, label := range strings.Split(m[1], ",") {
				labels = append(labels, strings.TrimSpace(label))
			}
		}

		constLabels := map[string]string{}
		if m := constLabelsRegex.FindStringSubmatch(descStr); len(m) >= 2 && m[1] != "" {
			for _, pair := range labelPairRegex.FindAllStringSubmatch(m[1], -1) {
				constLabels[pair[1]] = pair[2]
			}
		}

		metricType := "GAUGE"
		if strings.HasSuffix(name, "_total") {
			metricType = "COUNTER"
		}

		metrics = append(metrics, MetricInfo{
			Name:        name,
			Type:        metricType,
			Description: helpMatch[1],
			Labels:      labels,
			ConstLabels: constLabels,
		})
	}

	return metrics
}

// section groups metrics sharing a name prefix
type section struct {
	title   string
	summary string
	prefix  string
}

var sections = []section{{
	title:   "Domain Metrics",
	summary: "Live readings of the RAPL counters of every measured domain.",
	prefix:  "joulemeter_domain_",
}, {
	title:   "Trace Metrics",
	summary: "Samples of the latest trace recorded by the watch command, one series per sample and domain.",
	prefix:  "joulemeter_sample_",
}, {
	title:   "Other Metrics",
	summary: "Additional metrics provided by joulemeter.",
	prefix:  "",
}}

// generateMarkdown generates Markdown documentation from metric information
func generateMarkdown(metrics []MetricInfo) string {
	sort.Slice(metrics, func(i, j int) bool {
		return metrics[i].Name < metrics[j].Name
	})

	var md strings.Builder
	md.WriteString("# joulemeter Metrics\n\n")
	md.WriteString("Metrics served on `/metrics` by `joulemeter watch` when the Prometheus exporter is enabled.\n\n")
	md.WriteString("- **COUNTER**: A cumulative metric that only increases over time\n")
	md.WriteString("- **GAUGE**: A metric that can increase and decrease\n\n")
	md.WriteString("## Metrics Reference\n\n")

	grouped := make([][]MetricInfo, len(sections))
	for _, metric := range metrics {
		for i, s := range sections {
			if strings.HasPrefix(metric.Name, s.prefix) {
				grouped[i] = append(grouped[i], metric)
				break
			}
		}
	}

	for i, s := range sections {
		if len(grouped[i]) == 0 {
			continue
		}
		fmt.Fprintf(&md, "### %s\n\n%s\n\n", s.title, s.summary)
		writeMetricsSection(&md, grouped[i])
	}

	md.WriteString("---\n\n")
	md.WriteString("This documentation was automatically generated by the gen-metric-docs tool.\n")
	return md.String()
}

// writeMetricsSection writes a section of metrics to the markdown builder
func writeMetricsSection(md *strings.Builder, metrics []MetricInfo) {
	for _, metric := range metrics {
		fmt.Fprintf(md, "#### %s\n\n", metric.Name)
		fmt.Fprintf(md, "- **Type**: %s\n", metric.Type)
		fmt.Fprintf(md, "- **Description**: %s\n", metric.Description)
		if len(metric.Labels) > 0 {
			md.WriteString("- **Labels**:\n")
			for _, label := range metric.Labels {
				fmt.Fprintf(md, "  - `%s`\n", label)
			}
		}
		if len(metric.ConstLabels) > 0 {
			md.WriteString("- **Constant Labels**:\n")
			keys := make([]string, 0, len(metric.ConstLabels))
			for key := range metric.ConstLabels {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Fprintf(md, "  - `%s`\n", key)
			}
		}
		md.WriteString("\n")
	}
}

// collectMetrics describes every joulemeter collector over a fake device
func collectMetrics(logger *slog.Logger) ([]MetricInfo, error) {
	fake, err := device.NewFakeDevice(nil, device.WithFakeLogger(logger))
	if err != nil {
		return nil, err
	}

	collectors := promexporter.CreateCollectors([]device.EnergyDevice{fake}, collector.NewTraceCollector(), logger)
	names := make([]string, 0, len(collectors))
	for name := range collectors {
		names = append(names, name)
	}
	sort.Strings(names)

	var all []MetricInfo
	for _, name := range names {
		all = append(all, extractMetricsInfo(collectors[name])...)
	}
	return all, nil
}

func generate(logger *slog.Logger, outputPath string) error {
	metrics, err := collectMetrics(logger)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, []byte(generateMarkdown(metrics)), 0o644); err != nil {
		return fmt.Errorf("failed to write markdown file: %w", err)
	}

	logger.Info("Metrics documentation generated", "path", outputPath, "metrics", len(metrics))
	return nil
}

func main() {
	app := kingpin.New("gen-metric-docs", "Generate the Markdown reference of joulemeter metrics.")
	output := app.Flag("output", "Path to output Markdown file").Default("metrics.md").String()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := generate(logger, *output); err != nil {
		logger.Error("Failed to generate metrics documentation", "error", err)
		os.Exit(1)
	}
}

