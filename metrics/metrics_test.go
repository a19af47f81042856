package metrics

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/Zereker/multivu"
)

func metricValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	switch {
	case out.Counter != nil:
		return out.GetCounter().GetValue()
	case out.Gauge != nil:
		return out.GetGauge().GetValue()
	}
	t.Fatal("metric is neither counter nor gauge")
	return 0
}

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(RegistererOption(reg)), reg
}

func TestCollector_Frames(t *testing.T) {
	c, _ := newTestCollector(t)

	c.FrameReceived(multivu.RoleResponder, "TEMP?")
	c.FrameReceived(multivu.RoleResponder, "TEMP?")
	c.FrameSent(multivu.RoleResponder, "TEMP?", 120)
	c.FrameSent(multivu.RoleInitiator, "start", 80)

	if got := metricValue(t, c.framesReceived.WithLabelValues("responder", "TEMP?")); got != 2 {
		t.Errorf("frames received = %v, want 2", got)
	}
	if got := metricValue(t, c.framesSent.WithLabelValues("initiator", "START")); got != 1 {
		t.Errorf("frames sent = %v, want 1", got)
	}
	if got := metricValue(t, c.bytesSent.WithLabelValues("responder")); got != 120 {
		t.Errorf("bytes sent = %v, want 120", got)
	}
}

func TestCollector_ActionLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TEMP", "TEMP"},
		{"field?", "FIELD?"},
		{"EXIT", "EXIT"},
		{"sdo?", "SDO?"},
		{"AUXTEMP?", "AUXTEMP?"},
		{"DROP TABLES", "other"},
		{"", "other"},
	}
	for _, tt := range tests {
		if got := actionLabel(tt.in); got != tt.want {
			t.Errorf("actionLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCollector_Connections(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ConnectionChanged(true)
	if got := metricValue(t, c.connected); got != 1 {
		t.Errorf("connected = %v, want 1", got)
	}
	c.ConnectionChanged(false)
	c.ConnectionChanged(true)
	c.ConnectionChanged(false)

	if got := metricValue(t, c.connected); got != 0 {
		t.Errorf("connected = %v, want 0", got)
	}
	if got := metricValue(t, c.connections); got != 2 {
		t.Errorf("connections = %v, want 2", got)
	}
}

func TestCollector_Errors(t *testing.T) {
	c, _ := newTestCollector(t)

	c.DomainError("BOGUS")
	c.DomainError("TEMP")
	c.SendRetry(multivu.RoleInitiator)

	if got := metricValue(t, c.domainErrors.WithLabelValues("other")); got != 1 {
		t.Errorf("other errors = %v, want 1", got)
	}
	if got := metricValue(t, c.sendRetries.WithLabelValues("initiator")); got != 1 {
		t.Errorf("send retries = %v, want 1", got)
	}
}

type fakeSource struct {
	connected bool
}

func (f fakeSource) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}
}

func (f fakeSource) Flavor() string { return "PPMS" }

func (f fakeSource) IsClientConnected() bool { return f.connected }

func (f fakeSource) ClientAddress() net.Addr {
	if !f.connected {
		return nil
	}
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (f fakeSource) SessionID() string {
	if !f.connected {
		return ""
	}
	return "session-1"
}

func TestHandler_Status(t *testing.T) {
	_, reg := newTestCollector(t)
	srv := httptest.NewServer(Handler(fakeSource{connected: true}, reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := Status{
		Addr:      "127.0.0.1:5000",
		Flavor:    "PPMS",
		Connected: true,
		Client:    "127.0.0.1:40000",
		SessionID: "session-1",
	}
	if st != want {
		t.Errorf("status = %+v, want %+v", st, want)
	}
}

func TestHandler_Metrics(t *testing.T) {
	c, reg := newTestCollector(t)
	c.FrameReceived(multivu.RoleResponder, "START")

	srv := httptest.NewServer(Handler(fakeSource{}, reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `multivu_frames_received_total{action="START",role="responder"} 1`) {
		t.Errorf("metrics output missing counter:\n%s", body)
	}
}

func TestHandler_NotFound(t *testing.T) {
	_, reg := newTestCollector(t)
	srv := httptest.NewServer(Handler(fakeSource{}, reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
