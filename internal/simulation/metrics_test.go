package simulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/macta/pkg/schema"
)

func TestSLACompliance(t *testing.T) {
	cases := []schema.CompletedCase{
		{CaseID: "CASE-00001", TotalTime: 98},
		{CaseID: "CASE-00002", TotalTime: 121},
		{CaseID: "CASE-00003", TotalTime: 120},
	}
	sla := SLACompliance(cases, 120)
	assert.Equal(t, 120.0, sla.TargetMinutes)
	assert.Equal(t, 3, sla.TotalCases)
	assert.Equal(t, 2, sla.CompliantCases)
	assert.InDelta(t, 0.6667, sla.ComplianceRate, 1e-9)

	assert.Equal(t, 1, SLACompliance(cases[:1], 120).CompliantCases)
	assert.Equal(t, 0, SLACompliance(cases[1:2], 120).CompliantCases)
	assert.Zero(t, SLACompliance(nil, 120).ComplianceRate)
}

func series(util []float64, queue []int) []schema.HourlyMetric {
	out := make([]schema.HourlyMetric, len(util))
	for i := range util {
		out[i] = schema.HourlyMetric{
			Hour:               i,
			StationUtilization: map[string]float64{"r1": util[i]},
			StationQueue:       map[string]int{"r1": queue[i]},
		}
	}
	return out
}

var oneResource = []schema.ResourceConfig{{ID: "r1", Name: "Reviewer", Count: 2, ServiceRatePerHour: 4}}

func TestDetectBottlenecks_Capacity(t *testing.T) {
	util := []float64{0.5, 0.5, 0.95, 0.95, 0.95, 0.97, 0.5, 0.5}
	queue := make([]int, len(util))
	got := DetectBottlenecks(oneResource, series(util, queue), schema.BottleneckThresholds{WindowHours: 1})

	require.Len(t, got, 1)
	b := got[0]
	assert.Equal(t, schema.BottleneckCapacity, b.Type)
	assert.Equal(t, "Reviewer", b.ResourceName)
	assert.Equal(t, 2, b.StartHour)
	assert.Equal(t, 5, b.EndHour)
	assert.InDelta(t, 0.97, b.PeakUtilization, 1e-9)
	assert.Equal(t, schema.SeverityHigh, b.Severity)
}

func TestDetectBottlenecks_SingleHourSpikeIgnored(t *testing.T) {
	util := []float64{0.5, 0.99, 0.5, 0.99, 0.5}
	queue := []int{0, 40, 0, 40, 0}
	got := DetectBottlenecks(oneResource, series(util, queue), schema.BottleneckThresholds{WindowHours: 1})
	assert.Empty(t, got)
}

func TestDetectBottlenecks_RollingWindowSmooths(t *testing.T) {
	// Alternating hours average 0.75 over a two-hour window.
	util := []float64{0.6, 0.9, 0.6, 0.9, 0.6, 0.9}
	queue := make([]int, len(util))
	assert.Empty(t, DetectBottlenecks(oneResource, series(util, queue), schema.BottleneckThresholds{}))
}

func TestDetectBottlenecks_QueueSeverity(t *testing.T) {
	util := make([]float64, 6)
	cases := map[string]struct {
		queue []int
		want  schema.Severity
	}{
		"low":    {[]int{0, 12, 14, 0, 0, 0}, schema.SeverityLow},
		"medium": {[]int{0, 11, 18, 11, 0, 0}, schema.SeverityMedium},
		"high":   {[]int{0, 0, 0, 25, 30, 0}, schema.SeverityHigh},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := DetectBottlenecks(oneResource, series(util, tc.queue), schema.BottleneckThresholds{})
			require.Len(t, got, 1)
			assert.Equal(t, schema.BottleneckQueue, got[0].Type)
			assert.Equal(t, tc.want, got[0].Severity)
		})
	}
}

func TestDetectBottlenecks_WorstRunWins(t *testing.T) {
	util := []float64{0.9, 0.9, 0.1, 0.99, 0.99, 0.1}
	queue := make([]int, len(util))
	got := DetectBottlenecks(oneResource, series(util, queue), schema.BottleneckThresholds{WindowHours: 1})
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].StartHour)
	assert.Equal(t, 4, got[0].EndHour)
}

func TestCapacitySeverityTiers(t *testing.T) {
	assert.Equal(t, schema.SeverityLow, capacitySeverity(0.01))
	assert.Equal(t, schema.SeverityMedium, capacitySeverity(0.07))
	assert.Equal(t, schema.SeverityHigh, capacitySeverity(0.12))
}

func TestRecommend(t *testing.T) {
	util := map[string]schema.ResourceUtilization{
		"r1": {Name: "Reviewer", Count: 2, UtilizationRate: 0.9},
	}
	okSLA := schema.SLACompliance{TotalCases: 10, CompliantCases: 10, ComplianceRate: 1}

	t.Run("capacity adds resources", func(t *testing.T) {
		bs := []schema.Bottleneck{{
			ResourceID: "r1", ResourceName: "Reviewer", Type: schema.BottleneckCapacity,
			Severity: schema.SeverityHigh, PeakUtilization: 0.98, StartHour: 8, EndHour: 11,
		}}
		recs := Recommend(oneResource, bs, util, okSLA)
		require.Len(t, recs, 1)
		assert.Equal(t, "add_resources", recs[0].Type)
		assert.Equal(t, schema.SeverityHigh, recs[0].Priority)
		// ceil(2*0.98/0.75 - 2) = 1
		assert.Equal(t, 1, recs[0].SuggestedDelta)
		assert.Contains(t, recs[0].Description, "hours 8-11")
	})

	t.Run("queue and poor SLA", func(t *testing.T) {
		bs := []schema.Bottleneck{{
			ResourceID: "r1", ResourceName: "Reviewer", Type: schema.BottleneckQueue,
			Severity: schema.SeverityMedium, PeakQueueLength: 18,
		}}
		sla := schema.SLACompliance{TargetMinutes: 120, TotalCases: 10, CompliantCases: 6, ComplianceRate: 0.6}
		recs := Recommend(oneResource, bs, util, sla)
		require.Len(t, recs, 2)
		assert.Equal(t, "reduce_queue", recs[0].Type)
		assert.Equal(t, "improve_sla", recs[1].Type)
		assert.Equal(t, schema.SeverityHigh, recs[1].Priority)
	})

	t.Run("idle resources", func(t *testing.T) {
		res := []schema.ResourceConfig{{ID: "r1", Name: "Reviewer", Count: 4, ServiceRatePerHour: 4}}
		idle := map[string]schema.ResourceUtilization{"r1": {Name: "Reviewer", Count: 4, UtilizationRate: 0.1}}
		recs := Recommend(res, nil, idle, okSLA)
		require.Len(t, recs, 1)
		assert.Equal(t, "reduce_resources", recs[0].Type)
		assert.Equal(t, -3, recs[0].SuggestedDelta)
	})

	t.Run("nothing to do", func(t *testing.T) {
		recs := Recommend(oneResource, nil, util, okSLA)
		require.Len(t, recs, 1)
		assert.Equal(t, "maintain", recs[0].Type)
	})
}
