// Package simulation runs seeded, event-driven queueing simulations of a
// process served by one or more resource stations.
package simulation

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/rendis/macta/pkg/schema"
)

// Option configures a single run.
type Option func(*runner)

// WithTransitionHook registers a hook that observes every case transition.
func WithTransitionHook(hook TransitionHook) Option {
	return func(r *runner) {
		r.fsm.observe(hook)
	}
}

// Run validates cfg and simulates it up to the horizon. Identical config and
// seed produce identical results. Cases still queued or in service at the
// horizon are counted in TotalCases but not in CompletedCases.
func Run(cfg schema.SimulationConfig, opts ...Option) (*schema.SimulationResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	r := newRunner(resolve(cfg))
	for _, opt := range opts {
		opt(r)
	}
	if err := r.run(); err != nil {
		return nil, err
	}
	return r.result(), nil
}

type simCase struct {
	id       string
	seq      int
	priority int
	state    schema.CaseState

	arrival    float64
	firstStart float64
	started    bool
	enqueuedAt float64
	stage      int

	wait    float64
	service float64
}

type station struct {
	cfg   schema.ResourceConfig
	mean  float64
	busy  int
	queue waitQueue

	busyTotal float64
	hourBusy  []float64
}

type runner struct {
	st       settings
	smp      *sampler
	fsm      *caseFSM
	sched    scheduler
	arrivals arrivalProcess
	stations []*station

	clock             float64
	seq               int
	totalCases        int
	queued            int
	maxQueue          int
	completedThisHour int

	completed []schema.CompletedCase
	hourly    []schema.HourlyMetric
}

func newRunner(st settings) *runner {
	smp := newSampler(st.Seed)
	r := &runner{
		st:        st,
		smp:       smp,
		fsm:       newCaseFSM(),
		arrivals:  newArrivalProcess(st, smp),
		completed: []schema.CompletedCase{},
		hourly:    make([]schema.HourlyMetric, 0, st.HorizonHours),
	}
	for _, rc := range st.Resources {
		r.stations = append(r.stations, &station{
			cfg:      rc,
			mean:     60 / rc.ServiceRatePerHour,
			hourBusy: make([]float64, st.HorizonHours),
		})
	}
	r.fsm.onAfter(schema.CaseInService, schema.CaseCompleted, func(string, schema.CaseState, schema.CaseState, float64) {
		r.completedThisHour++
	})
	return r
}

func (r *runner) run() error {
	r.scheduleArrival(0)
	for h := 1; h <= r.st.HorizonHours; h++ {
		r.sched.push(&event{at: float64(h) * 60, kind: evHourTick})
	}

	for !r.sched.empty() {
		ev := r.sched.pop()
		if ev.at > r.st.horizon {
			break
		}
		r.advance(ev.at)

		var err error
		switch ev.kind {
		case evArrival:
			err = r.arrive(ev)
		case evCompletion:
			err = r.complete(ev)
		case evHourTick:
			r.snapshot(int(math.Round(ev.at / 60)))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) scheduleArrival(now float64) {
	at, n := r.arrivals.next(now)
	if n <= 0 || at >= r.st.horizon {
		return
	}
	r.sched.push(&event{at: at, kind: evArrival, cases: n})
}

// advance integrates busy time up to t. Hour ticks are events, so the
// interval never spans an hour boundary.
func (r *runner) advance(t float64) {
	dt := t - r.clock
	if dt <= 0 {
		return
	}
	bucket := int(r.clock / 60)
	for _, s := range r.stations {
		if s.busy == 0 {
			continue
		}
		b := float64(s.busy) * dt
		s.busyTotal += b
		if bucket < len(s.hourBusy) {
			s.hourBusy[bucket] += b
		}
	}
	r.clock = t
}

func (r *runner) arrive(ev *event) error {
	for range ev.cases {
		r.seq++
		r.totalCases++
		c := &simCase{
			id:       fmt.Sprintf("CASE-%05d", r.seq),
			seq:      r.seq,
			priority: r.smp.priority(r.st.Priorities),
			state:    schema.CaseArrived,
			arrival:  ev.at,
		}
		if err := r.enqueue(c, 0, ev.at); err != nil {
			return err
		}
	}
	if err := r.dispatch(0, ev.at); err != nil {
		return err
	}
	r.scheduleArrival(ev.at)
	return nil
}

func (r *runner) enqueue(c *simCase, stage int, at float64) error {
	if err := r.fsm.transition(c, schema.CaseQueued, at); err != nil {
		return err
	}
	c.stage = stage
	c.enqueuedAt = at
	heap.Push(&r.stations[stage].queue, c)
	r.queued++
	r.maxQueue = max(r.maxQueue, r.queued)
	return nil
}

// dispatch starts service for waiting cases while the station has free units.
func (r *runner) dispatch(stage int, at float64) error {
	s := r.stations[stage]
	for s.busy < s.cfg.Count && s.queue.Len() > 0 {
		c := heap.Pop(&s.queue).(*simCase)
		r.queued--
		if err := r.fsm.transition(c, schema.CaseInService, at); err != nil {
			return err
		}
		c.wait += at - c.enqueuedAt
		if !c.started {
			c.started = true
			c.firstStart = at
		}
		d := r.smp.service(r.st, s.mean)
		c.service += d
		s.busy++
		r.sched.push(&event{at: at + d, kind: evCompletion, station: stage, c: c})
	}
	return nil
}

func (r *runner) complete(ev *event) error {
	s := r.stations[ev.station]
	s.busy--
	c := ev.c

	if next := ev.station + 1; next < len(r.stations) {
		if err := r.enqueue(c, next, ev.at); err != nil {
			return err
		}
		if err := r.dispatch(next, ev.at); err != nil {
			return err
		}
	} else {
		if err := r.fsm.transition(c, schema.CaseCompleted, ev.at); err != nil {
			return err
		}
		r.completed = append(r.completed, schema.CompletedCase{
			CaseID:           c.id,
			Priority:         c.priority,
			ArrivalTime:      c.arrival,
			ServiceStartTime: c.firstStart,
			CompletionTime:   ev.at,
			WaitTime:         c.wait,
			ProcessTime:      c.service,
			TotalTime:        ev.at - c.arrival,
		})
	}
	return r.dispatch(ev.station, ev.at)
}

// snapshot records the metrics of the hour ending at tick h (1-based); the
// metric itself is indexed from zero.
func (r *runner) snapshot(h int) {
	idx := h - 1
	m := schema.HourlyMetric{
		Hour:                   idx,
		QueueLength:            r.queued,
		CasesCompletedThisHour: r.completedThisHour,
		StationUtilization:     make(map[string]float64, len(r.stations)),
		StationQueue:           make(map[string]int, len(r.stations)),
	}
	busy, units := 0.0, 0
	for _, s := range r.stations {
		m.CasesInProgress += s.busy
		m.StationUtilization[s.cfg.ID] = s.hourBusy[idx] / (float64(s.cfg.Count) * 60)
		m.StationQueue[s.cfg.ID] = s.queue.Len()
		busy += s.hourBusy[idx]
		units += s.cfg.Count
	}
	m.ResourceUtilizationPct = round(busy/(float64(units)*60)*100, 2)
	r.hourly = append(r.hourly, m)
	r.completedThisHour = 0
}

func (r *runner) result() *schema.SimulationResult {
	res := &schema.SimulationResult{
		Seed:                r.st.Seed,
		TotalCases:          r.totalCases,
		CompletedCases:      r.completed,
		MaxQueueLength:      r.maxQueue,
		HourlyMetrics:       r.hourly,
		ResourceUtilization: make(map[string]schema.ResourceUtilization, len(r.stations)),
		ClampedDraws:        r.smp.clamped,
	}

	if n := len(r.completed); n > 0 {
		var wait, proc float64
		for _, c := range r.completed {
			wait += c.WaitTime
			proc += c.ProcessTime
		}
		res.AverageWaitTime = round(wait/float64(n), 2)
		res.AverageProcessTime = round(proc/float64(n), 2)
	}

	for _, s := range r.stations {
		name := s.cfg.Name
		if name == "" {
			name = s.cfg.ID
		}
		res.ResourceUtilization[s.cfg.ID] = schema.ResourceUtilization{
			Name:            name,
			Count:           s.cfg.Count,
			BusyMinutes:     round(s.busyTotal, 2),
			UtilizationRate: round(s.busyTotal/(float64(s.cfg.Count)*r.st.horizon), 4),
		}
	}

	res.SLACompliance = SLACompliance(r.completed, r.st.SLATargetMinutes)
	res.Bottlenecks = DetectBottlenecks(r.st.Resources, r.hourly, r.st.Thresholds)
	res.Recommendations = Recommend(r.st.Resources, res.Bottlenecks, res.ResourceUtilization, res.SLACompliance)
	return res
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
