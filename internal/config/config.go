// Package config loads server-wide solver defaults from an optional
// YAML file pointed at by SOLVER_DEFAULTS, falling back to built-ins.
// Per-tenant overrides live in the store and are overlaid by the API.
package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// SolverDefaults mirrors the recognized solver options.
type SolverDefaults struct {
	ConstructionStrategy string  `yaml:"constructionStrategy" json:"constructionStrategy"`
	Metaheuristic        string  `yaml:"metaheuristic" json:"metaheuristic"`
	TimeLimitSeconds     float64 `yaml:"timeLimitSeconds" json:"timeLimitSeconds"`
	MaxIterations        int     `yaml:"maxIterations" json:"maxIterations"`
	NoImproveLimit       int     `yaml:"noImproveLimit" json:"noImproveLimit"`
	InitialTemp          float64 `yaml:"initTemp" json:"initTemp"`
	Cooling              float64 `yaml:"cooling" json:"cooling"`
	DistanceUnit         string  `yaml:"distanceUnit" json:"distanceUnit"`
	Starts               int     `yaml:"starts" json:"starts"`
}

// Defaults returns the built-in solver defaults: parallel cheapest
// insertion refined by simulated annealing under a 30s budget.
func Defaults() SolverDefaults {
	return SolverDefaults{
		ConstructionStrategy: "parallel-cheapest-insertion",
		Metaheuristic:        "simulated-annealing",
		TimeLimitSeconds:     30,
		InitialTemp:          1.0,
		Cooling:              0.995,
		DistanceUnit:         "km",
		Starts:               1,
	}
}

// Load returns Defaults overlaid with the SOLVER_DEFAULTS YAML file when
// the variable is set. A missing or malformed file is an error: silently
// running with the wrong defaults is worse than failing startup.
func Load() (SolverDefaults, error) {
	d := Defaults()
	path := os.Getenv("SOLVER_DEFAULTS")
	if path == "" {
		return d, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("solver defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &d); err != nil {
		return d, fmt.Errorf("solver defaults: parse %s: %w", path, err)
	}
	return d, nil
}
