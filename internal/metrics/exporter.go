// Package metrics renders worker records in the Prometheus text exposition
// format.
package metrics

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/zulandar/semaphore/internal/registry"
)

// ContentType is the media type of the rendered feed.
const ContentType = "text/plain; version=0.0.4"

// DefaultPrefix is prepended to every family name when none is configured.
const DefaultPrefix = "redash_worker"

var labelNames = []string{"name", "hostname", "queues"}

// family describes one measured dimension of a worker.
type family struct {
	suffix string
	help   string
	kind   prometheus.ValueType
	value  func(registry.Record) float64
}

// families lists the exported dimensions in output order.
var families = []family{
	{
		suffix: "state",
		help:   "Current state of the worker (1=idle, 0=busy)",
		kind:   prometheus.GaugeValue,
		value: func(r registry.Record) float64 {
			if r.Idle() {
				return 1
			}
			return 0
		},
	},
	{
		suffix: "successful_jobs",
		help:   "Total number of successful jobs processed by the worker",
		kind:   prometheus.CounterValue,
		value:  func(r registry.Record) float64 { return float64(r.SuccessfulJobs) },
	},
	{
		suffix: "failed_jobs",
		help:   "Total number of failed jobs processed by the worker",
		kind:   prometheus.CounterValue,
		value:  func(r registry.Record) float64 { return float64(r.FailedJobs) },
	},
	{
		suffix: "total_working_time",
		help:   "Total time spent processing jobs in seconds",
		kind:   prometheus.GaugeValue,
		value:  func(r registry.Record) float64 { return r.TotalWorkingTime },
	},
	{
		suffix: "last_heartbeat",
		help:   "Timestamp of the last heartbeat from the worker",
		kind:   prometheus.GaugeValue,
		value: func(r registry.Record) float64 {
			if r.LastHeartbeat.IsZero() {
				return 0
			}
			return float64(r.LastHeartbeat.Unix()) + float64(r.LastHeartbeat.Nanosecond())/1e9
		},
	},
}

// Exporter renders worker records. It holds no per-call state and is safe
// for concurrent use.
type Exporter struct {
	names []string
	descs []*prometheus.Desc
}

// New returns an Exporter whose family names start with prefix.
func New(prefix string) *Exporter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	e := &Exporter{}
	for _, f := range families {
		name := prefix + "_" + f.suffix
		e.names = append(e.names, name)
		e.descs = append(e.descs, prometheus.NewDesc(name, f.help, labelNames, nil))
	}
	return e
}

// Export returns the exposition text for records.
func (e *Exporter) Export(records []registry.Record) (string, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, records); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Write renders records to w. Each family gets exactly one HELP and one TYPE
// line followed by one sample per record; a family with no records still
// gets its HELP and TYPE lines. Nothing is written if the records cannot be
// rendered.
func (e *Exporter) Write(w io.Writer, records []registry.Record) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(&snapshot{exporter: e, records: records}); err != nil {
		return fmt.Errorf("metrics: register: %w", err)
	}
	gathered, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(gathered))
	for _, mf := range gathered {
		byName[mf.GetName()] = mf
	}

	var buf bytes.Buffer
	for i, f := range families {
		name := e.names[i]
		mf, ok := byName[name]
		if !ok {
			writeHeader(&buf, name, f.help, f.kind)
			continue
		}
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", name, err)
		}
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// writeHeader emits the HELP and TYPE lines of an empty family.
func writeHeader(buf *bytes.Buffer, name, help string, kind prometheus.ValueType) {
	typ := "gauge"
	if kind == prometheus.CounterValue {
		typ = "counter"
	}
	fmt.Fprintf(buf, "# HELP %s %s\n# TYPE %s %s\n", name, escapeHelp(help), name, typ)
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func escapeHelp(s string) string {
	return helpEscaper.Replace(s)
}

// snapshot is a prometheus.Collector over a fixed set of records.
type snapshot struct {
	exporter *Exporter
	records  []registry.Record
}

func (s *snapshot) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range s.exporter.descs {
		ch <- d
	}
}

func (s *snapshot) Collect(ch chan<- prometheus.Metric) {
	for i, f := range families {
		desc := s.exporter.descs[i]
		for _, r := range s.records {
			m, err := prometheus.NewConstMetric(desc, f.kind, f.value(r),
				labelValue(r.Name), labelValue(r.Hostname), labelValue(r.QueuesLabel()))
			if err != nil {
				ch <- prometheus.NewInvalidMetric(desc, err)
				continue
			}
			ch <- m
		}
	}
}

// labelValue replaces invalid UTF-8 so one malformed worker record cannot
// fail the whole gather.
func labelValue(v string) string {
	return strings.ToValidUTF8(v, "\uFFFD")
}
