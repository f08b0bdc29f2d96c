package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterRuntimeGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	timers, conns := 3, 0
	RegisterRuntimeGauges(reg, func() int { return timers }, func() int { return conns })

	conns = 2
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	got := map[string]float64{}
	for _, f := range families {
		got[f.GetName()] = f.GetMetric()[0].GetGauge().GetValue()
	}
	if got["voice_pending_ring_timers"] != 3 || got["voice_realtime_connections"] != 2 {
		t.Fatalf("unexpected gauges %v", got)
	}
}
