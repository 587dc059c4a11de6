// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/sustainable-computing-io/joulemeter/internal/device"
	"github.com/sustainable-computing-io/joulemeter/internal/exporter"
)

// Exporter prints traces as tables
type Exporter struct {
	logger *slog.Logger
	out    io.Writer
}

var _ exporter.Exporter = (*Exporter)(nil)

type Opts struct {
	logger *slog.Logger
	out    io.Writer
}

// DefaultOpts() returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
		out:    os.Stdout,
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the stdout exporter
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

func WithOutput(out io.Writer) OptionFn {
	return func(o *Opts) {
		o.out = out
	}
}

func NewExporter(applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Exporter{
		logger: opts.logger.With("service", "stdout"),
		out:    opts.out,
	}
}

func (e *Exporter) Name() string {
	return "stdout"
}

// Export prints one row per sample with a column per domain followed by the
// average power of the sample
func (e *Exporter) Export(trace exporter.Trace) error {
	if _, err := fmt.Fprintf(e.out, "Trace %s (%s)\n", trace.Name, trace.ID); err != nil {
		return err
	}

	domains := traceDomains(trace)
	header := []string{"Tag", "Timestamp(s)", "Duration(s)"}
	for _, d := range domains {
		header = append(header, d+"(J)")
	}
	header = append(header, "Power(W)")

	rows := make([][]string, 0, len(trace.Samples))
	for _, s := range trace.Samples {
		row := []string{
			s.Tag,
			formatFloat(s.Timestamp),
			formatFloat(s.Duration),
		}
		for _, d := range domains {
			row = append(row, formatFloat(s.Energy[d]))
		}
		row = append(row, formatFloat(s.TotalPower().Watts()))
		rows = append(rows, row)
	}

	e.logger.Debug("Exporting trace", "trace", trace.Name, "samples", len(rows))
	return render(e.out, header, rows)
}

// WriteDomains prints the configured domains of every device with their
// counter range
func WriteDomains(out io.Writer, devices []device.EnergyDevice) error {
	rows := [][]string{}
	for _, dev := range devices {
		ranges := dev.MaxEnergy()
		for i, d := range dev.Domains() {
			maxEnergy := "unknown"
			if i < len(ranges) && ranges[i] > 0 {
				maxEnergy = formatFloat(ranges[i])
			}
			rows = append(rows, []string{dev.Name(), d.String(), maxEnergy})
		}
	}
	return render(out, []string{"Device", "Domain", "Max(J)"}, rows)
}

// traceDomains returns the union of sample domains in first-seen order
func traceDomains(trace exporter.Trace) []string {
	seen := map[string]bool{}
	domains := []string{}
	for _, s := range trace.Samples {
		for _, d := range s.Domains() {
			if !seen[d] {
				seen[d] = true
				domains = append(domains, d)
			}
		}
	}
	return domains
}

func render(out io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignRight
	})
	table.Header(header)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}
