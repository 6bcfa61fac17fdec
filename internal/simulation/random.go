package simulation

import (
	"math"
	"math/rand/v2"

	"github.com/rendis/macta/pkg/schema"
)

// sampler draws every random quantity of a run from one seeded stream, so
// that the sequence of draws, and therefore the result, depends only on the
// seed and the config.
type sampler struct {
	rng     *rand.Rand
	clamped int
}

func newSampler(seed uint64) *sampler {
	return &sampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *sampler) exp(mean float64) float64 {
	return s.rng.ExpFloat64() * mean
}

func (s *sampler) normal(mean, sd float64) float64 {
	return mean + s.rng.NormFloat64()*sd
}

func (s *sampler) uniform() float64 {
	return s.rng.Float64()
}

// service draws one service duration with the given mean. Non-finite or
// too small draws are clamped to minDuration and counted.
func (s *sampler) service(st settings, mean float64) float64 {
	var d float64
	switch st.ServiceTimeDistribution.Kind {
	case schema.ServiceNormal:
		d = s.normal(mean, st.cv*mean)
	case schema.ServiceUniform:
		lo := mean * (1 - st.spread)
		d = lo + s.uniform()*2*st.spread*mean
	case schema.ServiceTriangular:
		d = triangular(s.uniform(), mean*(1-st.spread), mean, mean*(1+st.spread))
	case schema.ServiceDeterministic:
		d = mean
	default:
		d = s.exp(mean)
	}
	if math.IsNaN(d) || math.IsInf(d, 0) || d < minDuration {
		s.clamped++
		return minDuration
	}
	return d
}

// priority picks a priority level by class weight; 0 when no classes are set.
func (s *sampler) priority(classes []schema.PriorityClass) int {
	if len(classes) == 0 {
		return 0
	}
	total := 0.0
	for _, c := range classes {
		total += c.Weight
	}
	x := s.uniform() * total
	for _, c := range classes {
		if x < c.Weight {
			return c.Level
		}
		x -= c.Weight
	}
	return classes[len(classes)-1].Level
}

// triangular maps u in [0,1) through the inverse CDF of Tri(a, c, b).
func triangular(u, a, c, b float64) float64 {
	if b <= a {
		return c
	}
	f := (c - a) / (b - a)
	if u < f {
		return a + math.Sqrt(u*(b-a)*(c-a))
	}
	return b - math.Sqrt((1-u)*(b-a)*(b-c))
}
