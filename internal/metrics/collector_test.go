package steeringmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	steeringmetrics "github.com/cococomm/steerd/internal/metrics"
	"github.com/cococomm/steerd/internal/steering"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := steeringmetrics.NewCollector(reg)

	if c.ClientsTotal == nil {
		t.Error("ClientsTotal is nil")
	}
	if c.ClientsByState == nil {
		t.Error("ClientsByState is nil")
	}
	if c.FramesSent == nil {
		t.Error("FramesSent is nil")
	}
	if c.FramesDropped == nil {
		t.Error("FramesDropped is nil")
	}
	if c.StateTransitions == nil {
		t.Error("StateTransitions is nil")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	_ = families
}

func TestClientCreated(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := steeringmetrics.NewCollector(reg)

	c.ClientCreated()
	c.ClientCreated()

	if v := counterValue(t, c.ClientsTotal); v != 2 {
		t.Errorf("ClientsTotal = %v, want 2", v)
	}

	if v := gaugeValue(t, c.ClientsByState, steering.StateIdle.String()); v != 2 {
		t.Errorf("ClientsByState[Idle] = %v, want 2", v)
	}
}

func TestFrameCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := steeringmetrics.NewCollector(reg)

	c.FrameSent(steering.TLVScore)
	c.FrameSent(steering.TLVScore)
	c.FrameSent(steering.TLVCloseClient)
	c.FrameDropped()

	if v := counterVecValue(t, c.FramesSent, "score"); v != 2 {
		t.Errorf("FramesSent[score] = %v, want 2", v)
	}
	if v := counterVecValue(t, c.FramesSent, "close_client"); v != 1 {
		t.Errorf("FramesSent[close_client] = %v, want 1", v)
	}
	if v := counterValue(t, c.FramesDropped); v != 1 {
		t.Errorf("FramesDropped = %v, want 1", v)
	}
}

func TestStateTransition(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := steeringmetrics.NewCollector(reg)

	c.ClientCreated() // Idle: 1

	c.StateTransition(steering.StateIdle, steering.StateConfirming)

	if v := gaugeValue(t, c.ClientsByState, steering.StateIdle.String()); v != 0 {
		t.Errorf("ClientsByState[Idle] = %v, want 0", v)
	}
	if v := gaugeValue(t, c.ClientsByState, steering.StateConfirming.String()); v != 1 {
		t.Errorf("ClientsByState[Confirming] = %v, want 1", v)
	}
	if v := counterVecValue(t, c.StateTransitions, steering.StateIdle.String(), steering.StateConfirming.String()); v != 1 {
		t.Errorf("StateTransitions(Idle->Confirming) = %v, want 1", v)
	}

	c.StateTransition(steering.StateConfirming, steering.StateAssociated)

	if v := counterVecValue(t, c.StateTransitions, steering.StateIdle.String(), steering.StateConfirming.String()); v != 1 {
		t.Errorf("StateTransitions(Idle->Confirming) = %v, want 1 (unaffected)", v)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}

func counterVecValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
