package simulation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rendis/macta/pkg/schema"
)

// Defaults applied to zero-valued optional settings.
const (
	DefaultUtilizationHighWater = 0.85
	DefaultQueueThreshold       = 10
	DefaultWindowHours          = 2
	DefaultNormalCV             = 0.25
	DefaultSpread               = 0.5
	DefaultBatchSize            = 10

	// MaxHorizonHours bounds a single run to five simulated years.
	MaxHorizonHours = 5 * 8760

	// MaxBatchSize caps the cases released by one batch arrival.
	MaxBatchSize = 10_000

	// MaxCases caps the expected arrivals of a single run.
	MaxCases = 2_000_000

	// minDuration is the smallest service duration a draw may produce, in minutes.
	minDuration = 0.01
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultHourlyMultipliers is a business-day arrival profile indexed by hour of day.
var DefaultHourlyMultipliers = []float64{
	0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.3, 0.6, // 00-07
	1.5, 1.5, 1.5, 1.5, 1.0, 1.0, 1.5, 1.5, // 08-15
	1.5, 0.8, 0.8, 0.3, 0.3, 0.3, 0.2, 0.2, // 16-23
}

// DefaultDailyMultipliers raises the arrival rate over the last week of the month.
var DefaultDailyMultipliers = func() []float64 {
	m := make([]float64, 31)
	for i := range m {
		m[i] = 1.0
		if i >= 24 {
			m[i] = 1.3
		}
	}
	return m
}()

// ValidateConfig checks cfg and returns an INVALID_CONFIG error describing
// every violated rule, or nil.
func ValidateConfig(cfg schema.SimulationConfig) error {
	var problems []string

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return schema.NewErrorf(schema.ErrCodeInvalidConfig, "invalid simulation config: %s", err.Error()).WithCause(err)
		}
		for _, fe := range verrs {
			problems = append(problems, fieldProblem(fe))
		}
	}

	problems = append(problems, semanticProblems(cfg)...)
	if len(problems) == 0 {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeInvalidConfig, "invalid simulation config: %s", strings.Join(problems, "; ")).
		WithDetails(map[string]any{"problems": problems})
}

func fieldProblem(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "SimulationConfig.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte", "lt":
		return fmt.Sprintf("%s must be below %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s allows at most %s entries", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must have exactly %s entries", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q", field, fe.Tag())
	}
}

func semanticProblems(cfg schema.SimulationConfig) []string {
	var out []string
	finite := func(name string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out = append(out, name+" must be a finite number")
		}
	}
	finite("MeanInterarrivalMinutes", cfg.MeanInterarrivalMinutes)
	finite("InterarrivalStdDevMinutes", cfg.InterarrivalStdDevMinutes)
	finite("SLATargetMinutes", cfg.SLATargetMinutes)

	if cfg.HorizonHours > MaxHorizonHours {
		out = append(out, fmt.Sprintf("HorizonHours must not exceed %d", MaxHorizonHours))
	}
	if n := expectedCases(cfg); n > MaxCases {
		out = append(out, fmt.Sprintf("config admits about %.3g cases, above the limit of %d", n, MaxCases))
	}

	seen := make(map[string]bool, len(cfg.Resources))
	for i, r := range cfg.Resources {
		finite(fmt.Sprintf("Resources[%d].ServiceRatePerHour", i), r.ServiceRatePerHour)
		if r.ID != "" && seen[r.ID] {
			out = append(out, fmt.Sprintf("resource id %q is declared twice", r.ID))
		}
		seen[r.ID] = true
	}

	levels := make(map[int]bool, len(cfg.Priorities))
	for _, p := range cfg.Priorities {
		if levels[p.Level] {
			out = append(out, fmt.Sprintf("priority level %d is declared twice", p.Level))
		}
		levels[p.Level] = true
	}

	if cfg.ArrivalPattern == schema.ArrivalSeasonal && cfg.Seasonal != nil {
		if len(cfg.Seasonal.HourlyMultipliers) > 0 && maxOf(cfg.Seasonal.HourlyMultipliers) == 0 {
			out = append(out, "seasonal hourly multipliers are all zero")
		}
		if len(cfg.Seasonal.DailyMultipliers) > 0 && maxOf(cfg.Seasonal.DailyMultipliers) == 0 {
			out = append(out, "seasonal daily multipliers are all zero")
		}
	}
	return out
}

// expectedCases is the mean number of arrivals over the horizon. For the
// normal pattern it is an upper bound since clipped gaps only grow the mean.
func expectedCases(cfg schema.SimulationConfig) float64 {
	if cfg.HorizonHours <= 0 || !(cfg.MeanInterarrivalMinutes > 0) {
		return 0
	}
	st := resolve(cfg)
	switch cfg.ArrivalPattern {
	case schema.ArrivalBatch:
		return (st.horizon/st.batchInterval + 1) * float64(st.batchSize)
	case schema.ArrivalSeasonal:
		return st.horizon / st.MeanInterarrivalMinutes * maxOf(st.hourly) * maxOf(st.daily)
	default:
		return st.horizon / st.MeanInterarrivalMinutes
	}
}

// settings is a validated config with every default resolved.
type settings struct {
	schema.SimulationConfig

	horizon        float64
	stdDev         float64
	cv             float64
	spread         float64
	hourly         []float64
	daily          []float64
	batchSize      int
	batchInterval  float64
	highWater      float64
	queueThreshold int
	windowHours    int
	startDay       int
}

func resolve(cfg schema.SimulationConfig) settings {
	s := settings{
		SimulationConfig: cfg,
		horizon:          float64(cfg.HorizonHours) * 60,
		stdDev:           cfg.InterarrivalStdDevMinutes,
		cv:               cfg.ServiceTimeDistribution.CV,
		spread:           cfg.ServiceTimeDistribution.Spread,
		highWater:        cfg.Thresholds.UtilizationHighWater,
		queueThreshold:   cfg.Thresholds.QueueLength,
		windowHours:      cfg.Thresholds.WindowHours,
		startDay:         cfg.StartDayOfMonth,
		hourly:           DefaultHourlyMultipliers,
		daily:            DefaultDailyMultipliers,
		batchSize:        DefaultBatchSize,
	}
	if s.ServiceTimeDistribution.Kind == "" {
		s.ServiceTimeDistribution.Kind = schema.ServiceExponential
	}
	if s.stdDev == 0 {
		s.stdDev = cfg.MeanInterarrivalMinutes / 4
	}
	if s.cv == 0 {
		s.cv = DefaultNormalCV
	}
	if s.spread == 0 {
		s.spread = DefaultSpread
	}
	if s.highWater == 0 {
		s.highWater = DefaultUtilizationHighWater
	}
	if s.queueThreshold == 0 {
		s.queueThreshold = DefaultQueueThreshold
	}
	if s.windowHours == 0 {
		s.windowHours = DefaultWindowHours
	}
	if s.startDay == 0 {
		s.startDay = 1
	}
	if p := cfg.Seasonal; p != nil {
		if len(p.HourlyMultipliers) == 24 {
			s.hourly = p.HourlyMultipliers
		}
		if len(p.DailyMultipliers) == 31 {
			s.daily = p.DailyMultipliers
		}
	}
	if b := cfg.Batch; b != nil && b.Size > 0 {
		s.batchSize = b.Size
	}
	s.batchInterval = cfg.MeanInterarrivalMinutes * float64(s.batchSize)
	if b := cfg.Batch; b != nil && b.IntervalMinutes > 0 {
		s.batchInterval = b.IntervalMinutes
	}
	return s
}

func maxOf(vs []float64) float64 {
	m := 0.0
	for _, v := range vs {
		m = max(m, v)
	}
	return m
}
