// Package report writes the end-of-day summary to its configured sinks.
package report

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"etf_momentum/internal/metrics"
	"etf_momentum/internal/models"
)

// Sink persists a day summary.
type Sink interface {
	Name() string
	Write(ctx context.Context, s models.DaySummary) error
}

// Formats accepted by Build.
const (
	FormatText = "text"
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatBoth = "both" // text + json
	FormatAll  = "all"  // text + json + csv
)

// ValidFormat reports whether f is a known report format.
func ValidFormat(f string) bool {
	switch strings.ToLower(f) {
	case FormatText, FormatCSV, FormatJSON, FormatBoth, FormatAll:
		return true
	}
	return false
}

// Build returns the sinks for format under dir, plus a SQLite journal when
// journalPath is set. The caller closes the returned Multi.
func Build(format, dir, journalPath string, m *metrics.Metrics) (*Multi, error) {
	var sinks []Sink
	switch strings.ToLower(format) {
	case FormatText:
		sinks = append(sinks, NewTextSink(dir))
	case FormatJSON:
		sinks = append(sinks, NewJSONSink(dir))
	case FormatCSV:
		sinks = append(sinks, NewCSVSink(dir))
	case FormatBoth:
		sinks = append(sinks, NewTextSink(dir), NewJSONSink(dir))
	case FormatAll:
		sinks = append(sinks, NewTextSink(dir), NewJSONSink(dir), NewCSVSink(dir))
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
	if journalPath != "" {
		j, err := NewSQLiteJournal(journalPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		sinks = append(sinks, j)
	}
	return NewMulti(m, sinks...), nil
}

// Multi writes to every sink. One failing sink does not stop the others.
type Multi struct {
	sinks   []Sink
	metrics *metrics.Metrics
}

func NewMulti(m *metrics.Metrics, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, metrics: m}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Write(ctx context.Context, s models.DaySummary) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Write(ctx, s); err != nil {
			m.metrics.Summary(sink.Name(), "error")
			log.Printf("Warning: summary sink %s failed: %v", sink.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		m.metrics.Summary(sink.Name(), "ok")
	}
	return errors.Join(errs...)
}

// Close releases sinks holding resources.
func (m *Multi) Close() error {
	var errs []error
	for _, sink := range m.sinks {
		if c, ok := sink.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// fileDate turns "2024-07-01" into "20240701" for file names.
func fileDate(date string) string {
	return strings.ReplaceAll(date, "-", "")
}
