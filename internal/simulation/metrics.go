package simulation

import (
	"fmt"
	"math"

	"github.com/rendis/macta/pkg/schema"
)

// SLACompliance returns the share of cases whose total time is within target.
func SLACompliance(cases []schema.CompletedCase, targetMinutes float64) schema.SLACompliance {
	out := schema.SLACompliance{TargetMinutes: targetMinutes, TotalCases: len(cases)}
	for _, c := range cases {
		if c.TotalTime <= targetMinutes {
			out.CompliantCases++
		}
	}
	if out.TotalCases > 0 {
		out.ComplianceRate = round(float64(out.CompliantCases)/float64(out.TotalCases), 4)
	}
	return out
}

// breach is a run of consecutive hours above a threshold.
type breach struct {
	start, end int
	peak       float64
}

// DetectBottlenecks scans the per-station hourly series for sustained
// breaches. A capacity bottleneck is rolling utilization above the high-water
// mark, a queue bottleneck is a station queue above the threshold; either must
// hold for at least two consecutive hours. Each resource reports at most one
// bottleneck of each type, the one with the highest peak.
func DetectBottlenecks(resources []schema.ResourceConfig, hourly []schema.HourlyMetric, t schema.BottleneckThresholds) []schema.Bottleneck {
	highWater, queueLimit, window := thresholds(t)
	out := []schema.Bottleneck{}

	for _, rc := range resources {
		name := rc.Name
		if name == "" {
			name = rc.ID
		}

		rolling := make([]float64, len(hourly))
		sum := 0.0
		for i, m := range hourly {
			sum += m.StationUtilization[rc.ID]
			if i >= window {
				sum -= hourly[i-window].StationUtilization[rc.ID]
			}
			rolling[i] = sum / float64(min(i+1, window))
		}
		if b, ok := worstBreach(len(hourly), func(i int) (float64, bool) {
			return rolling[i], rolling[i] > highWater
		}); ok {
			out = append(out, schema.Bottleneck{
				ResourceID:      rc.ID,
				ResourceName:    name,
				Type:            schema.BottleneckCapacity,
				Severity:        capacitySeverity(b.peak - highWater),
				PeakUtilization: round(b.peak, 4),
				StartHour:       hourly[b.start].Hour,
				EndHour:         hourly[b.end].Hour,
				Description: fmt.Sprintf("%s ran above %.0f%% utilization from hour %d to hour %d (peak %.0f%%)",
					name, highWater*100, hourly[b.start].Hour, hourly[b.end].Hour, b.peak*100),
			})
		}

		if b, ok := worstBreach(len(hourly), func(i int) (float64, bool) {
			q := hourly[i].StationQueue[rc.ID]
			return float64(q), q > queueLimit
		}); ok {
			out = append(out, schema.Bottleneck{
				ResourceID:      rc.ID,
				ResourceName:    name,
				Type:            schema.BottleneckQueue,
				Severity:        queueSeverity(b.peak / float64(queueLimit)),
				PeakQueueLength: int(b.peak),
				StartHour:       hourly[b.start].Hour,
				EndHour:         hourly[b.end].Hour,
				Description: fmt.Sprintf("%s held more than %d waiting cases from hour %d to hour %d (peak %d)",
					name, queueLimit, hourly[b.start].Hour, hourly[b.end].Hour, int(b.peak)),
			})
		}
	}
	return out
}

// worstBreach finds runs of at least two consecutive hours where check holds
// and returns the one with the highest peak (earliest on ties).
func worstBreach(n int, check func(i int) (float64, bool)) (breach, bool) {
	var (
		best  breach
		found bool
		cur   breach
		open  bool
	)
	closeRun := func() {
		if open && cur.end > cur.start && (!found || cur.peak > best.peak) {
			best, found = cur, true
		}
		open = false
	}
	for i := range n {
		v, over := check(i)
		if !over {
			closeRun()
			continue
		}
		if !open {
			cur, open = breach{start: i, end: i, peak: v}, true
			continue
		}
		cur.end = i
		cur.peak = max(cur.peak, v)
	}
	closeRun()
	return best, found
}

func thresholds(t schema.BottleneckThresholds) (highWater float64, queueLimit, window int) {
	highWater, queueLimit, window = t.UtilizationHighWater, t.QueueLength, t.WindowHours
	if highWater == 0 {
		highWater = DefaultUtilizationHighWater
	}
	if queueLimit == 0 {
		queueLimit = DefaultQueueThreshold
	}
	if window == 0 {
		window = DefaultWindowHours
	}
	return highWater, queueLimit, window
}

func capacitySeverity(excess float64) schema.Severity {
	switch {
	case excess < 0.05:
		return schema.SeverityLow
	case excess < 0.10:
		return schema.SeverityMedium
	default:
		return schema.SeverityHigh
	}
}

func queueSeverity(ratio float64) schema.Severity {
	switch {
	case ratio < 1.5:
		return schema.SeverityLow
	case ratio < 2:
		return schema.SeverityMedium
	default:
		return schema.SeverityHigh
	}
}

// Policy constants for Recommend.
const (
	targetUtilization   = 0.75
	slaComplianceFloor  = 0.90
	slaComplianceSevere = 0.70
	underUtilization    = 0.30
)

// Recommend maps bottlenecks, SLA compliance and utilization to actions using
// a fixed policy table. It always returns at least one recommendation.
func Recommend(resources []schema.ResourceConfig, bottlenecks []schema.Bottleneck, util map[string]schema.ResourceUtilization, sla schema.SLACompliance) []schema.Recommendation {
	counts := make(map[string]int, len(resources))
	for _, rc := range resources {
		counts[rc.ID] = rc.Count
	}

	out := []schema.Recommendation{}
	flagged := make(map[string]bool)
	for _, b := range bottlenecks {
		flagged[b.ResourceID] = true
		switch b.Type {
		case schema.BottleneckCapacity:
			n := counts[b.ResourceID]
			delta := max(1, int(math.Ceil(float64(n)*b.PeakUtilization/targetUtilization-float64(n))))
			out = append(out, schema.Recommendation{
				Type:           "add_resources",
				Priority:       b.Severity,
				ResourceID:     b.ResourceID,
				Title:          fmt.Sprintf("Add %d %s to %s", delta, plural(delta, "unit"), b.ResourceName),
				Description:    fmt.Sprintf("Add %d %s to %s during hours %d-%d, where utilization peaked at %.0f%%.", delta, plural(delta, "unit"), b.ResourceName, b.StartHour, b.EndHour, b.PeakUtilization*100),
				SuggestedDelta: delta,
				ExpectedImpact: fmt.Sprintf("Brings peak utilization of %s to about %.0f%%.", b.ResourceName, targetUtilization*100),
			})
		case schema.BottleneckQueue:
			out = append(out, schema.Recommendation{
				Type:           "reduce_queue",
				Priority:       b.Severity,
				ResourceID:     b.ResourceID,
				Title:          fmt.Sprintf("Relieve the queue at %s", b.ResourceName),
				Description:    fmt.Sprintf("Up to %d cases waited at %s during hours %d-%d. Add staff for this window or prioritise urgent cases.", b.PeakQueueLength, b.ResourceName, b.StartHour, b.EndHour),
				ExpectedImpact: "Shorter waiting times and fewer SLA breaches.",
			})
		}
	}

	if sla.TotalCases > 0 && sla.ComplianceRate < slaComplianceFloor {
		prio := schema.SeverityMedium
		if sla.ComplianceRate < slaComplianceSevere {
			prio = schema.SeverityHigh
		}
		out = append(out, schema.Recommendation{
			Type:           "improve_sla",
			Priority:       prio,
			Title:          "Improve SLA compliance",
			Description:    fmt.Sprintf("Only %.1f%% of cases finished within %.0f minutes.", sla.ComplianceRate*100, sla.TargetMinutes),
			ExpectedImpact: fmt.Sprintf("Raises compliance towards %.0f%%.", slaComplianceFloor*100),
		})
	}

	for _, rc := range resources {
		u, ok := util[rc.ID]
		if !ok || flagged[rc.ID] || rc.Count <= 1 || u.UtilizationRate >= underUtilization {
			continue
		}
		need := max(1, int(math.Ceil(float64(rc.Count)*u.UtilizationRate/targetUtilization)))
		delta := rc.Count - need
		if delta <= 0 {
			continue
		}
		out = append(out, schema.Recommendation{
			Type:           "reduce_resources",
			Priority:       schema.SeverityLow,
			ResourceID:     rc.ID,
			Title:          fmt.Sprintf("Reassign %d %s from %s", delta, plural(delta, "unit"), u.Name),
			Description:    fmt.Sprintf("%s was busy only %.0f%% of the time.", u.Name, u.UtilizationRate*100),
			SuggestedDelta: -delta,
			ExpectedImpact: "Frees capacity without affecting throughput.",
		})
	}

	if len(out) == 0 {
		out = append(out, schema.Recommendation{
			Type:           "maintain",
			Priority:       schema.SeverityLow,
			Title:          "Keep the current configuration",
			Description:    "No sustained bottleneck was found and SLA compliance is on target.",
			ExpectedImpact: "Stable throughput at the configured load.",
		})
	}
	return out
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
