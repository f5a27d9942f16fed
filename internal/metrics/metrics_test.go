package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func counterValue(f *dto.MetricFamily, label, value string) float64 {
	for _, m := range f.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return -1
}

func TestCollector_Ingest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, reg)

	c.MessageReceived()
	c.MessageReceived()
	c.MessageStored("temperature")
	c.MessageDiscarded(ReasonUnknownDevice)
	c.ObserveIngest(2 * time.Millisecond)

	families := gather(t, reg)
	if got := families["homewatch_ingest_messages_received_total"].GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("received = %v, want 2", got)
	}
	if got := counterValue(families["homewatch_ingest_messages_stored_total"], "type", "temperature"); got != 1 {
		t.Errorf("stored{temperature} = %v, want 1", got)
	}
	if got := counterValue(families["homewatch_ingest_messages_discarded_total"], "reason", ReasonUnknownDevice); got != 1 {
		t.Errorf("discarded{unknown_device} = %v, want 1", got)
	}
	if got := families["homewatch_ingest_message_duration_seconds"].GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("duration samples = %d, want 1", got)
	}
}

func TestCollector_BusAndObservers(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, reg)

	c.SetBusConnected(true)
	c.SetBusConnected(false)
	c.SetObservers(3)

	families := gather(t, reg)
	if got := families["homewatch_bus_connected"].GetMetric()[0].GetGauge().GetValue(); got != 0 {
		t.Errorf("connected = %v, want 0", got)
	}
	if got := families["homewatch_bus_connections_lost_total"].GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("lost = %v, want 1", got)
	}
	if got := families["homewatch_observer_clients"].GetMetric()[0].GetGauge().GetValue(); got != 3 {
		t.Errorf("observers = %v, want 3", got)
	}
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector
	c.MessageReceived()
	c.MessageStored("light")
	c.MessageDiscarded(ReasonBadValue)
	c.ObserveIngest(time.Second)
	c.SetQueueDepth(1)
	c.SetBusConnected(true)
	c.CommandDispatched("bus", "success")
	c.ObservePublish(time.Second)
	c.SetObservers(1)
	c.ObserverDropped()
	c.ObserveHTTP("/x", "GET", 200, time.Second)
	c.ReadingsPurged(5)
	if c.Handler() == nil {
		t.Error("Handler() on nil collector returned nil")
	}
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.CommandDispatched("local", "success")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body) //nolint:errcheck // Recorder body

	if !strings.Contains(string(body), `homewatch_control_commands_total{path="local",status="success"} 1`) {
		t.Errorf("scrape missing command counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("scrape missing runtime collector")
	}
}
