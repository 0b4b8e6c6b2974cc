package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			if matchesLabel(m, label, value) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchesLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func TestMetrics_Register(t *testing.T) {
	t.Parallel()

	t.Run("successful registration", func(t *testing.T) {
		t.Parallel()

		m := NewMetrics()
		reg := prometheus.NewRegistry()
		if err := m.Register(reg); err != nil {
			t.Fatalf("Register() error = %v", err)
		}

		m.IncRotation("rotated")
		m.IncRotation("rotated")
		m.IncAttempt("unchanged")
		now := time.Now()
		m.ObserveDuration(now.Add(-3*time.Second), now)

		if got := counterValue(t, reg, MetricRotationsTotal, "status", "rotated"); got != 2 {
			t.Errorf("rotations{status=rotated} = %v, want 2", got)
		}
		if got := counterValue(t, reg, MetricRotationAttemptsTotal, "outcome", "unchanged"); got != 1 {
			t.Errorf("attempts{outcome=unchanged} = %v, want 1", got)
		}
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		t.Parallel()

		m := NewMetrics()
		reg := prometheus.NewRegistry()
		if err := m.Register(reg); err != nil {
			t.Fatalf("first Register() error = %v", err)
		}
		if err := m.Register(reg); err == nil {
			t.Error("expected error on duplicate registration")
		}
	})
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.IncRotation("rotated")
	m.IncAttempt("signal_failed")
	m.ObserveDuration(time.Now(), time.Now())
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	m.IncRotation("exhausted")

	path := filepath.Join(t.TempDir(), "ipchanger.prom")
	if err := WriteTextfile(path, reg); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `ipchanger_rotations_total{status="exhausted"} 1`) {
		t.Errorf("textfile missing counter:\n%s", data)
	}
}
