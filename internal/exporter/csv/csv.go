// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package csv

import (
	gocsv "encoding/csv"
	"fmt"
	"log/slog"
	"os"

	"github.com/jszwec/csvutil"

	"github.com/sustainable-computing-io/joulemeter/internal/exporter"
)

// Row is one domain of one sample. A trace is written in long format, one
// row per sample and domain.
type Row struct {
	Trace     string  `csv:"trace"`
	Timestamp float64 `csv:"timestamp"`
	Tag       string  `csv:"tag"`
	Duration  float64 `csv:"duration"`
	Domain    string  `csv:"domain"`
	Energy    float64 `csv:"energy"`
}

// Exporter appends traces to a CSV file. The header is written only when the
// file is empty.
type Exporter struct {
	logger *slog.Logger
	path   string
}

var _ exporter.Exporter = (*Exporter)(nil)

type OptionFn func(*Exporter)

// WithLogger sets the logger for the csv exporter
func WithLogger(logger *slog.Logger) OptionFn {
	return func(e *Exporter) {
		e.logger = logger.With("service", "csv")
	}
}

func NewExporter(path string, opts ...OptionFn) *Exporter {
	e := &Exporter{
		logger: slog.Default().With("service", "csv"),
		path:   path,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Exporter) Name() string {
	return "csv"
}

func (e *Exporter) Export(trace exporter.Trace) (err error) {
	f, err := os.OpenFile(e.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", e.path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	w := gocsv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = info.Size() == 0

	rows := Rows(trace)
	if len(rows) > 0 {
		if err := enc.Encode(rows); err != nil {
			return fmt.Errorf("failed to encode trace %s: %w", trace.Name, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", e.path, err)
	}

	e.logger.Debug("Exported trace", "trace", trace.Name, "rows", len(rows), "path", e.path)
	return nil
}

// Rows flattens trace in sample order, domains in measurement order
func Rows(trace exporter.Trace) []Row {
	name := trace.Name
	if name == "" {
		name = trace.ID.String()
	}

	rows := []Row{}
	for _, s := range trace.Samples {
		for _, d := range s.Domains() {
			rows = append(rows, Row{
				Trace:     name,
				Timestamp: s.Timestamp,
				Tag:       s.Tag,
				Duration:  s.Duration,
				Domain:    d,
				Energy:    s.Energy[d],
			})
		}
	}
	return rows
}
