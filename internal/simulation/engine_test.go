package simulation

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/macta/pkg/schema"
)

func baseConfig() schema.SimulationConfig {
	return schema.SimulationConfig{
		ProcessID:               "Process_Approval",
		ArrivalPattern:          schema.ArrivalPoisson,
		MeanInterarrivalMinutes: 10,
		Resources: []schema.ResourceConfig{
			{ID: "clerk", Name: "Clerk", Count: 1, ServiceRatePerHour: 9},
		},
		SLATargetMinutes: 120,
		HorizonHours:     48,
		Seed:             42,
	}
}

func TestRun_Deterministic(t *testing.T) {
	for _, pattern := range []schema.ArrivalPattern{
		schema.ArrivalPoisson, schema.ArrivalNormal, schema.ArrivalSeasonal, schema.ArrivalBatch,
	} {
		t.Run(string(pattern), func(t *testing.T) {
			cfg := baseConfig()
			cfg.ArrivalPattern = pattern
			a, err := Run(cfg)
			require.NoError(t, err)
			b, err := Run(cfg)
			require.NoError(t, err)
			assert.Equal(t, a, b)
			assert.Positive(t, a.TotalCases)
		})
	}
}

func TestRun_DifferentSeedsDiffer(t *testing.T) {
	cfg := baseConfig()
	a, err := Run(cfg)
	require.NoError(t, err)
	cfg.Seed = 7
	b, err := Run(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, a.CompletedCases, b.CompletedCases)
}

func TestRun_CaseInvariants(t *testing.T) {
	cfg := baseConfig()
	cfg.Resources = append(cfg.Resources, schema.ResourceConfig{ID: "manager", Count: 2, ServiceRatePerHour: 8})
	cfg.ServiceTimeDistribution = schema.ServiceTimeDistribution{Kind: schema.ServiceNormal, CV: 2}

	res, err := Run(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, res.CompletedCases)

	for _, c := range res.CompletedCases {
		assert.GreaterOrEqual(t, c.CompletionTime, c.ArrivalTime, c.CaseID)
		assert.GreaterOrEqual(t, c.ServiceStartTime, c.ArrivalTime, c.CaseID)
		assert.LessOrEqual(t, c.CompletionTime, float64(cfg.HorizonHours*60), c.CaseID)
		assert.InDelta(t, c.TotalTime, c.WaitTime+c.ProcessTime, 1e-6, c.CaseID)
		assert.GreaterOrEqual(t, c.WaitTime, 0.0, c.CaseID)
	}
	assert.LessOrEqual(t, len(res.CompletedCases), res.TotalCases)
	// A CV of 2 produces negative normal draws that must be clamped.
	assert.Positive(t, res.ClampedDraws)
}

func TestRun_TransitionsFollowLifecycle(t *testing.T) {
	cfg := baseConfig()
	cfg.Resources = append(cfg.Resources, schema.ResourceConfig{ID: "manager", Count: 1, ServiceRatePerHour: 12})

	seen := map[string][]schema.CaseState{}
	res, err := Run(cfg, WithTransitionHook(func(id string, from, to schema.CaseState, at float64) {
		if len(seen[id]) == 0 {
			seen[id] = append(seen[id], from)
		}
		seen[id] = append(seen[id], to)
	}))
	require.NoError(t, err)

	want := []schema.CaseState{
		schema.CaseArrived, schema.CaseQueued, schema.CaseInService,
		schema.CaseQueued, schema.CaseInService, schema.CaseCompleted,
	}
	for _, c := range res.CompletedCases {
		assert.Equal(t, want, seen[c.CaseID], c.CaseID)
	}
	assert.Len(t, seen, res.TotalCases)
}

func TestRun_HourlyMetrics(t *testing.T) {
	cfg := baseConfig()
	res, err := Run(cfg)
	require.NoError(t, err)

	require.Len(t, res.HourlyMetrics, cfg.HorizonHours)
	completed := 0
	for i, m := range res.HourlyMetrics {
		assert.Equal(t, i, m.Hour)
		assert.GreaterOrEqual(t, m.ResourceUtilizationPct, 0.0)
		assert.LessOrEqual(t, m.ResourceUtilizationPct, 100.0)
		assert.LessOrEqual(t, m.CasesInProgress, 1)
		assert.LessOrEqual(t, m.QueueLength, res.MaxQueueLength)
		completed += m.CasesCompletedThisHour
	}
	assert.Equal(t, len(res.CompletedCases), completed)

	u := res.ResourceUtilization["clerk"]
	assert.Equal(t, "Clerk", u.Name)
	// Arrival rate 6/h against 9/h service: about two thirds busy.
	assert.InDelta(t, 0.667, u.UtilizationRate, 0.2)
}

func TestRun_FIFOWithoutPriorities(t *testing.T) {
	cfg := baseConfig()
	cfg.MeanInterarrivalMinutes = 5
	res, err := Run(cfg)
	require.NoError(t, err)

	cases := append([]schema.CompletedCase(nil), res.CompletedCases...)
	sort.SliceStable(cases, func(i, j int) bool { return cases[i].ServiceStartTime < cases[j].ServiceStartTime })
	for i := 1; i < len(cases); i++ {
		assert.LessOrEqual(t, cases[i-1].ArrivalTime, cases[i].ArrivalTime)
	}
}

func TestRun_PriorityOrdering(t *testing.T) {
	cfg := baseConfig()
	cfg.ArrivalPattern = schema.ArrivalBatch
	cfg.Batch = &schema.BatchSettings{Size: 12, IntervalMinutes: 1000}
	cfg.ServiceTimeDistribution.Kind = schema.ServiceDeterministic
	cfg.Resources[0].ServiceRatePerHour = 6
	cfg.Priorities = []schema.PriorityClass{{Level: 1, Weight: 1}, {Level: 5, Weight: 1}}
	cfg.HorizonHours = 3

	res, err := Run(cfg)
	require.NoError(t, err)
	require.Len(t, res.CompletedCases, 12)

	levels := map[int]bool{}
	for i, c := range res.CompletedCases {
		levels[c.Priority] = true
		assert.InDelta(t, float64(i)*10, c.ServiceStartTime, 1e-9)
		if i > 0 {
			prev := res.CompletedCases[i-1]
			assert.GreaterOrEqual(t, prev.Priority, c.Priority)
			if prev.Priority == c.Priority {
				assert.Less(t, prev.CaseID, c.CaseID, "ties break by arrival order")
			}
		}
	}
	assert.Len(t, levels, 2)
}

func TestRun_BatchArrivals(t *testing.T) {
	cfg := baseConfig()
	cfg.ArrivalPattern = schema.ArrivalBatch
	cfg.Batch = &schema.BatchSettings{Size: 5, IntervalMinutes: 120}
	cfg.HorizonHours = 10

	res, err := Run(cfg)
	require.NoError(t, err)
	// Batches at 0, 120, ..., 480: five batches of five.
	assert.Equal(t, 25, res.TotalCases)
}

func TestRun_SeasonalFollowsProfile(t *testing.T) {
	cfg := baseConfig()
	cfg.ArrivalPattern = schema.ArrivalSeasonal
	cfg.HorizonHours = 24 * 10
	cfg.Resources[0].Count = 5
	hourly := make([]float64, 24)
	for h := 8; h < 16; h++ {
		hourly[h] = 2
	}
	cfg.Seasonal = &schema.SeasonalProfile{HourlyMultipliers: hourly}

	res, err := Run(cfg)
	require.NoError(t, err)
	require.NotZero(t, res.TotalCases)
	for _, c := range res.CompletedCases {
		hour := int(c.ArrivalTime/60) % 24
		assert.True(t, hour >= 8 && hour < 16, "arrival at hour %d", hour)
	}
}

func TestRun_ZeroCompletionsIsNotAnError(t *testing.T) {
	cfg := baseConfig()
	cfg.Resources[0].ServiceRatePerHour = 0.01
	cfg.ServiceTimeDistribution.Kind = schema.ServiceDeterministic
	cfg.HorizonHours = 2

	res, err := Run(cfg)
	require.NoError(t, err)
	assert.Empty(t, res.CompletedCases)
	assert.NotNil(t, res.CompletedCases)
	assert.Equal(t, 0, res.SLACompliance.TotalCases)
	assert.Zero(t, res.SLACompliance.ComplianceRate)
}

func TestRun_QueueStabilizesUnderCapacity(t *testing.T) {
	cfg := baseConfig()
	cfg.HorizonHours = 200
	for _, seed := range []uint64{1, 2, 3, 4, 5} {
		cfg.Seed = seed
		res, err := Run(cfg)
		require.NoError(t, err)
		assert.Less(t, MeanQueueLength(res.HourlyMetrics, 100), 10.0, "seed %d", seed)
	}
}

func TestRun_QueueGrowsWhenOverloaded(t *testing.T) {
	cfg := baseConfig()
	cfg.HorizonHours = 200
	cfg.MeanInterarrivalMinutes = 5

	res, err := Run(cfg)
	require.NoError(t, err)
	last := res.HourlyMetrics[len(res.HourlyMetrics)-1]
	assert.Greater(t, last.QueueLength, 100)
	assert.Greater(t, MeanQueueLength(res.HourlyMetrics, 100), MeanQueueLength(res.HourlyMetrics[:100], 0))

	var capacity, queue bool
	for _, b := range res.Bottlenecks {
		assert.Equal(t, "clerk", b.ResourceID)
		switch b.Type {
		case schema.BottleneckCapacity:
			capacity = true
			assert.Equal(t, schema.SeverityHigh, b.Severity)
		case schema.BottleneckQueue:
			queue = true
			assert.Equal(t, schema.SeverityHigh, b.Severity)
		}
	}
	assert.True(t, capacity)
	assert.True(t, queue)
	assert.Equal(t, "add_resources", res.Recommendations[0].Type)
	assert.GreaterOrEqual(t, res.Recommendations[0].SuggestedDelta, 1)
}
