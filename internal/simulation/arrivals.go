package simulation

import (
	"math"

	"github.com/rendis/macta/pkg/schema"
)

// arrivalProcess yields successive arrival instants.
type arrivalProcess interface {
	// next returns the time of the arrival following now and the number of
	// cases it carries. Times at or past the horizon end the stream.
	next(now float64) (at float64, cases int)
}

func newArrivalProcess(st settings, smp *sampler) arrivalProcess {
	switch st.ArrivalPattern {
	case schema.ArrivalNormal:
		return &normalArrivals{st: st, smp: smp}
	case schema.ArrivalSeasonal:
		return newSeasonalArrivals(st, smp)
	case schema.ArrivalBatch:
		return &batchArrivals{st: st}
	default:
		return &poissonArrivals{mean: st.MeanInterarrivalMinutes, smp: smp}
	}
}

type poissonArrivals struct {
	mean float64
	smp  *sampler
}

func (p *poissonArrivals) next(now float64) (float64, int) {
	return now + p.smp.exp(p.mean), 1
}

// normalArrivals draws Gaussian interarrival gaps clipped at zero.
type normalArrivals struct {
	st  settings
	smp *sampler
}

func (n *normalArrivals) next(now float64) (float64, int) {
	gap := n.smp.normal(n.st.MeanInterarrivalMinutes, n.st.stdDev)
	return now + max(0, gap), 1
}

// seasonalArrivals is a non-homogeneous Poisson process generated by
// thinning. The rate at time t is multiplier(t) / meanInterarrival.
type seasonalArrivals struct {
	st      settings
	smp     *sampler
	peak    float64
	horizon float64
}

func newSeasonalArrivals(st settings, smp *sampler) *seasonalArrivals {
	return &seasonalArrivals{
		st:      st,
		smp:     smp,
		peak:    maxOf(st.hourly) * maxOf(st.daily),
		horizon: st.horizon,
	}
}

func (s *seasonalArrivals) next(now float64) (float64, int) {
	if s.peak <= 0 {
		return math.Inf(1), 0
	}
	t := now
	for t < s.horizon {
		t += s.smp.exp(s.st.MeanInterarrivalMinutes / s.peak)
		if s.smp.uniform()*s.peak <= s.multiplier(t) {
			return t, 1
		}
	}
	return t, 0
}

// multiplier is the combined hour-of-day and day-of-month factor at t.
func (s *seasonalArrivals) multiplier(t float64) float64 {
	minutes := float64(s.st.StartHourOfDay)*60 + t
	hour := int(minutes/60) % 24
	day := (s.st.startDay - 1 + int(minutes/1440)) % 31
	return s.st.hourly[hour] * s.st.daily[day]
}

// batchArrivals releases batchSize cases every batchInterval, starting at zero.
type batchArrivals struct {
	st      settings
	started bool
}

func (b *batchArrivals) next(now float64) (float64, int) {
	if !b.started {
		b.started = true
		return 0, b.st.batchSize
	}
	return now + b.st.batchInterval, b.st.batchSize
}
