package simulation

import (
	"context"
	"math"
	"sync"

	"github.com/rendis/macta/pkg/schema"
)

// ReplicationSummary aggregates independent runs of one config.
type ReplicationSummary struct {
	Runs              int                        `json:"runs"`
	Seeds             []uint64                   `json:"seeds"`
	MeanTotalCases    float64                    `json:"meanTotalCases"`
	MeanWaitTime      float64                    `json:"meanWaitTime"`
	MeanQueueLength   float64                    `json:"meanQueueLength"`
	MaxQueueLength    int                        `json:"maxQueueLength"`
	MeanSLACompliance float64                    `json:"meanSlaCompliance"`
	StdDevWaitTime    float64                    `json:"stdDevWaitTime"`
	Results           []*schema.SimulationResult `json:"-"`
}

// Replicate runs cfg once per seed on pool and summarises the results. The
// seed in cfg is ignored. Results are ordered like seeds regardless of the
// order in which runs finish.
func Replicate(ctx context.Context, cfg schema.SimulationConfig, seeds []uint64, pool *Pool) (*ReplicationSummary, error) {
	if len(seeds) == 0 {
		return nil, schema.NewError(schema.ErrCodeInvalidConfig, "replication needs at least one seed")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	results := make([]*schema.SimulationResult, len(seeds))
	var (
		mu       sync.Mutex
		firstErr error
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	// Only this call's runs are awaited; other callers may share the pool.
	var wg sync.WaitGroup
	for i, seed := range seeds {
		run := cfg
		run.Seed = seed
		wg.Add(1)
		err := pool.Submit(ctx, func(ctx context.Context) error {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				record(err)
				return err
			}
			res, err := Run(run)
			if err != nil {
				record(err)
				return err
			}
			results[i] = res
			return nil
		}, record)
		if err != nil {
			wg.Done()
			record(err)
			break
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "replication failed: %s", firstErr.Error()).WithCause(firstErr)
	}
	return summarise(seeds, results), nil
}

func summarise(seeds []uint64, results []*schema.SimulationResult) *ReplicationSummary {
	s := &ReplicationSummary{Runs: len(results), Seeds: seeds, Results: results}
	n := float64(len(results))
	waits := make([]float64, 0, len(results))
	for _, r := range results {
		s.MeanTotalCases += float64(r.TotalCases)
		s.MeanWaitTime += r.AverageWaitTime
		s.MeanSLACompliance += r.SLACompliance.ComplianceRate
		s.MaxQueueLength = max(s.MaxQueueLength, r.MaxQueueLength)
		s.MeanQueueLength += MeanQueueLength(r.HourlyMetrics, 0)
		waits = append(waits, r.AverageWaitTime)
	}
	s.MeanTotalCases = round(s.MeanTotalCases/n, 2)
	s.MeanWaitTime /= n
	s.MeanSLACompliance = round(s.MeanSLACompliance/n, 4)
	s.MeanQueueLength = round(s.MeanQueueLength/n, 2)

	var ss float64
	for _, w := range waits {
		ss += (w - s.MeanWaitTime) * (w - s.MeanWaitTime)
	}
	if len(waits) > 1 {
		s.StdDevWaitTime = round(math.Sqrt(ss/float64(len(waits)-1)), 2)
	}
	s.MeanWaitTime = round(s.MeanWaitTime, 2)
	return s
}

// MeanQueueLength averages the hourly queue snapshots from hour `from` on.
func MeanQueueLength(hourly []schema.HourlyMetric, from int) float64 {
	var sum float64
	var n int
	for _, m := range hourly {
		if m.Hour < from {
			continue
		}
		sum += float64(m.QueueLength)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
