package metrics

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/zulandar/semaphore/internal/registry"
)

var heartbeat = time.Date(2026, 3, 1, 12, 0, 0, 500000000, time.UTC)

func worker(name, state string) registry.Record {
	return registry.Record{
		Name:             name,
		Hostname:         "h-" + name,
		Queues:           []string{"default"},
		State:            registry.State(state),
		SuccessfulJobs:   3,
		FailedJobs:       1,
		TotalWorkingTime: 120.5,
		LastHeartbeat:    heartbeat,
	}
}

func countPrefix(text, prefix string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

func TestExport_HeaderAndSampleCounts(t *testing.T) {
	e := New("")
	for n := 0; n <= 4; n++ {
		t.Run(fmt.Sprintf("%d workers", n), func(t *testing.T) {
			var records []registry.Record
			for i := 0; i < n; i++ {
				state := "busy"
				if i%2 == 0 {
					state = "idle"
				}
				records = append(records, worker(fmt.Sprintf("w%d", i), state))
			}

			text, err := e.Export(records)
			if err != nil {
				t.Fatalf("Export: %v", err)
			}
			if got := countPrefix(text, "# HELP "); got != 5 {
				t.Errorf("HELP lines = %d, want 5", got)
			}
			if got := countPrefix(text, "# TYPE "); got != 5 {
				t.Errorf("TYPE lines = %d, want 5", got)
			}
			for _, f := range families {
				name := DefaultPrefix + "_" + f.suffix + "{"
				if got := countPrefix(text, name); got != n {
					t.Errorf("%s samples = %d, want %d", f.suffix, got, n)
				}
			}
		})
	}
}

func TestExport_StateValue(t *testing.T) {
	text, err := New("").Export([]registry.Record{worker("a", "idle"), worker("b", "busy"), worker("c", "suspended")})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	var p expfmt.TextParser
	mfs, err := p.TextToMetricFamilies(strings.NewReader(text))
	if err != nil {
		t.Fatalf("output does not parse: %v\n%s", err, text)
	}
	state := mfs["redash_worker_state"]
	if state == nil {
		t.Fatal("missing redash_worker_state family")
	}
	want := map[string]float64{"a": 1, "b": 0, "c": 0}
	for _, m := range state.GetMetric() {
		var name string
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "name" {
				name = lp.GetValue()
			}
		}
		if got := m.GetGauge().GetValue(); got != want[name] {
			t.Errorf("state for %s = %v, want %v", name, got, want[name])
		}
	}
}

func TestExport_SingleBusyWorker(t *testing.T) {
	r := registry.Record{
		Name:             "w1",
		Hostname:         "h1",
		Queues:           []string{"default"},
		State:            registry.StateBusy,
		SuccessfulJobs:   3,
		FailedJobs:       1,
		TotalWorkingTime: 120.5,
		LastHeartbeat:    heartbeat,
	}
	text, err := New("").Export([]registry.Record{r})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	wantLines := []string{
		`# HELP redash_worker_state Current state of the worker (1=idle, 0=busy)`,
		`# TYPE redash_worker_state gauge`,
		`redash_worker_state{hostname="h1",name="w1",queues="default"} 0`,
		`# TYPE redash_worker_successful_jobs counter`,
		`redash_worker_successful_jobs{hostname="h1",name="w1",queues="default"} 3`,
		`# TYPE redash_worker_failed_jobs counter`,
		`redash_worker_failed_jobs{hostname="h1",name="w1",queues="default"} 1`,
		`# TYPE redash_worker_total_working_time gauge`,
		`redash_worker_total_working_time{hostname="h1",name="w1",queues="default"} 120.5`,
		`# TYPE redash_worker_last_heartbeat gauge`,
	}
	for _, line := range wantLines {
		if !strings.Contains(text, line+"\n") {
			t.Errorf("output missing line %q\n%s", line, text)
		}
	}

	var p expfmt.TextParser
	mfs, err := p.TextToMetricFamilies(strings.NewReader(text))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	hb := mfs["redash_worker_last_heartbeat"].GetMetric()[0].GetGauge().GetValue()
	if hb != 1772366400.5 {
		t.Errorf("last_heartbeat = %v, want 1772366400.5", hb)
	}
}

func TestExport_FamilyOrder(t *testing.T) {
	text, err := New("").Export([]registry.Record{worker("a", "idle")})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	last := -1
	for _, f := range families {
		idx := strings.Index(text, "# HELP "+DefaultPrefix+"_"+f.suffix+" ")
		if idx <= last {
			t.Errorf("family %s out of order", f.suffix)
		}
		last = idx
	}
}

func TestExport_EscapesLabelValues(t *testing.T) {
	r := worker(`we"ird\name`, "idle")
	r.Hostname = "host\nline"
	text, err := New("").Export([]registry.Record{r})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(text, `name="we\"ird\\name"`) {
		t.Errorf("name label not escaped:\n%s", text)
	}
	if !strings.Contains(text, `hostname="host\nline"`) {
		t.Errorf("hostname label not escaped:\n%s", text)
	}

	var p expfmt.TextParser
	mfs, err := p.TextToMetricFamilies(strings.NewReader(text))
	if err != nil {
		t.Fatalf("escaped output does not parse: %v", err)
	}
	for _, lp := range mfs["redash_worker_state"].GetMetric()[0].GetLabel() {
		if lp.GetName() == "name" && lp.GetValue() != `we"ird\name` {
			t.Errorf("round-tripped name = %q", lp.GetValue())
		}
	}
}

func TestExport_Deterministic(t *testing.T) {
	e := New("")
	records := []registry.Record{worker("b", "idle"), worker("a", "busy"), worker("c", "idle")}
	first, err := e.Export(records)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := e.Export(records)
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatal("Export output changed between calls")
		}
	}
}

func TestExport_CustomPrefix(t *testing.T) {
	text, err := New("rq_worker").Export(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "# TYPE rq_worker_failed_jobs counter\n") {
		t.Errorf("custom prefix not applied:\n%s", text)
	}
}

func TestExport_ZeroHeartbeat(t *testing.T) {
	r := worker("w", "idle")
	r.LastHeartbeat = time.Time{}
	text, err := New("").Export([]registry.Record{r})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, `redash_worker_last_heartbeat{hostname="h-w",name="w",queues="default"} 0`+"\n") {
		t.Errorf("zero heartbeat should export 0:\n%s", text)
	}
}

func TestExport_InvalidUTF8LabelsReplaced(t *testing.T) {
	bad := worker("bad\xff", "busy")
	bad.Hostname = "h\xfe"
	bad.Queues = []string{"q\xc3"}
	text, err := New("").Export([]registry.Record{worker("good", "idle"), bad})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(text, `name="good"`) {
		t.Errorf("good worker missing:\n%s", text)
	}
	if !strings.Contains(text, "hostname=\"h\uFFFD\",name=\"bad\uFFFD\",queues=\"q\uFFFD\"") {
		t.Errorf("invalid UTF-8 not replaced:\n%s", text)
	}
	if got := strings.Count(text, "redash_worker_state{"); got != 2 {
		t.Errorf("state samples = %d, want 2", got)
	}
}

func TestExport_DuplicateWorkerFails(t *testing.T) {
	_, err := New("").Export([]registry.Record{worker("w", "idle"), worker("w", "idle")})
	if err == nil {
		t.Fatal("expected error for duplicate label sets")
	}
}

func TestExport_InvalidPrefixFails(t *testing.T) {
	_, err := New("bad-prefix").Export(nil)
	if err == nil {
		t.Fatal("expected error for invalid metric name")
	}
}
