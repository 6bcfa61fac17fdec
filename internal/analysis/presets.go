package analysis

import (
	"slices"

	"github.com/rendis/macta/pkg/schema"
)

// Built-in config types offered when no stored config matches a request.
const (
	PresetStandard = "standard"
	PresetPeak     = "peak"
	PresetBatch    = "batch"
	PresetVariable = "variable"
)

// defaultSLAMinutes is the SLA target of every preset.
const defaultSLAMinutes = 240

var presets = map[string]schema.SimulationConfig{
	PresetStandard: {
		ArrivalPattern:          schema.ArrivalPoisson,
		MeanInterarrivalMinutes: 6,
		ServiceTimeDistribution: schema.ServiceTimeDistribution{Kind: schema.ServiceExponential},
		SLATargetMinutes:        defaultSLAMinutes,
	},
	PresetPeak: {
		ArrivalPattern:          schema.ArrivalSeasonal,
		MeanInterarrivalMinutes: 4,
		ServiceTimeDistribution: schema.ServiceTimeDistribution{Kind: schema.ServiceNormal, CV: 0.3},
		SLATargetMinutes:        defaultSLAMinutes,
		StartHourOfDay:          8,
	},
	PresetBatch: {
		ArrivalPattern:          schema.ArrivalBatch,
		MeanInterarrivalMinutes: 6,
		ServiceTimeDistribution: schema.ServiceTimeDistribution{Kind: schema.ServiceUniform, Spread: 0.4},
		SLATargetMinutes:        defaultSLAMinutes,
		Batch:                   &schema.BatchSettings{Size: 10},
	},
	PresetVariable: {
		ArrivalPattern:            schema.ArrivalNormal,
		MeanInterarrivalMinutes:   6,
		InterarrivalStdDevMinutes: 4,
		ServiceTimeDistribution:   schema.ServiceTimeDistribution{Kind: schema.ServiceTriangular, Spread: 0.6},
		SLATargetMinutes:          defaultSLAMinutes,
	},
}

// Preset returns a copy of the named built-in config.
func Preset(name string) (schema.SimulationConfig, bool) {
	cfg, ok := presets[name]
	if !ok {
		return schema.SimulationConfig{}, false
	}
	if cfg.Batch != nil {
		b := *cfg.Batch
		cfg.Batch = &b
	}
	return cfg, true
}

// PresetNames lists the built-in config types in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
