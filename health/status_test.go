package health

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestStatus_Predicates(t *testing.T) {
	tests := []struct {
		name      string
		status    Status
		healthy   bool
		degraded  bool
		unhealthy bool
	}{
		{"healthy", Status{Status: StatusHealthy}, true, false, false},
		{"degraded", Status{Status: StatusDegraded}, false, true, false},
		{"unhealthy", Status{Status: StatusUnhealthy}, false, false, true},
		{"empty", Status{}, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsHealthy(); got != tt.healthy {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.healthy)
			}
			if got := tt.status.IsDegraded(); got != tt.degraded {
				t.Errorf("IsDegraded() = %v, want %v", got, tt.degraded)
			}
			if got := tt.status.IsUnhealthy(); got != tt.unhealthy {
				t.Errorf("IsUnhealthy() = %v, want %v", got, tt.unhealthy)
			}
		})
	}
}

func TestStatus_NormalizeFromGatewayJSON(t *testing.T) {
	var s Status
	if err := json.Unmarshal([]byte(`{"healthy":true,"version":"1.4.0"}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	s = s.Normalize()
	if !s.IsHealthy() || s.Version != "1.4.0" {
		t.Errorf("unexpected status %+v", s)
	}

	s = Status{Status: StatusDegraded, Healthy: true}.Normalize()
	if s.Healthy {
		t.Error("degraded status must not be reported healthy")
	}
}

func TestStatus_WithSubStatusDoesNotShare(t *testing.T) {
	base := NewHealthy("root", "ok")
	a := base.WithSubStatus(NewHealthy("a", "ok"))
	b := base.WithSubStatus(NewUnhealthy("b", "down"))

	if len(base.SubStatuses) != 0 {
		t.Errorf("base mutated: %d sub statuses", len(base.SubStatuses))
	}
	if len(a.SubStatuses) != 1 || a.SubStatuses[0].Component != "a" {
		t.Errorf("unexpected a: %+v", a.SubStatuses)
	}
	if len(b.SubStatuses) != 1 || b.SubStatuses[0].Component != "b" {
		t.Errorf("unexpected b: %+v", b.SubStatuses)
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs    []Status
		want    string
		message string
	}{
		{"empty", nil, StatusHealthy, "No checks to aggregate"},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StatusHealthy, "All checks are healthy"},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StatusDegraded, "Degraded: b"},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StatusUnhealthy, "Unhealthy: b"},
		{"names every failing check", []Status{NewUnhealthy("config", ""), NewUnhealthy("gateway", "")},
			StatusUnhealthy, "Unhealthy: config, gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("semrelay", tt.subs)
			if got.Status != tt.want {
				t.Errorf("Aggregate() = %s, want %s", got.Status, tt.want)
			}
			if got.Message != tt.message {
				t.Errorf("Aggregate() message = %q, want %q", got.Message, tt.message)
			}
			if len(got.SubStatuses) != len(tt.subs) {
				t.Errorf("expected %d sub statuses, got %d", len(tt.subs), len(got.SubStatuses))
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		absent  []string
		present []string
	}{
		{
			name:    "http url",
			input:   "post https://api.example.com/ingest/api/v1/ingest/batch: HTTP 503",
			absent:  []string{"api.example.com"},
			present: []string{"[URL]", "HTTP 503"},
		},
		{
			name:    "websocket url",
			input:   "dial wss://gw.example.com/ws/stream failed",
			absent:  []string{"gw.example.com"},
			present: []string{"[URL]"},
		},
		{
			name:    "ip and port",
			input:   "dial tcp 10.0.0.12:8443: connection refused",
			absent:  []string{"10.0.0.12", "8443"},
			present: []string{"connection refused"},
		},
		{
			name:    "bearer token",
			input:   "rejected Authorization: Bearer sk_live_abcdef",
			absent:  []string{"sk_live_abcdef"},
			present: []string{"[REDACTED]"},
		},
		{
			name:    "key value credential",
			input:   "bad api_key=sk_live_abcdef",
			absent:  []string{"sk_live_abcdef"},
			present: []string{"[REDACTED]"},
		},
		{
			name:    "path",
			input:   "open /home/user/.semrelayrc.json: permission denied",
			absent:  []string{"/home/user"},
			present: []string{"[PATH]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input)
			for _, s := range tt.absent {
				if strings.Contains(got, s) {
					t.Errorf("Sanitize(%q) = %q still contains %q", tt.input, got, s)
				}
			}
			for _, s := range tt.present {
				if !strings.Contains(got, s) {
					t.Errorf("Sanitize(%q) = %q missing %q", tt.input, got, s)
				}
			}
		})
	}

	if Sanitize("") != "" {
		t.Error("empty input should stay empty")
	}
}

func TestFromError(t *testing.T) {
	s := FromError("stream", errors.New("dial wss://gw.example.com/ws/stream: timeout"))
	if !s.IsUnhealthy() {
		t.Errorf("expected unhealthy, got %s", s.Status)
	}
	if strings.Contains(s.Message, "gw.example.com") {
		t.Errorf("message not sanitized: %s", s.Message)
	}

	if !FromError("stream", nil).IsHealthy() {
		t.Error("nil error should be healthy")
	}
}
