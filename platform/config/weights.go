package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RankingWeights are the four technician-ranking weights. They are percentages
// and must sum to exactly 100; the configuration owner validates this, the
// dispatch coordinator only consumes them.
type RankingWeights struct {
	Proximity int `yaml:"proximity"`
	Skills    int `yaml:"skills"`
	Workload  int `yaml:"workload"`
	Rating    int `yaml:"rating"`
}

// DefaultRankingWeights mirror the platform's standard dispatch tuning.
func DefaultRankingWeights() RankingWeights {
	return RankingWeights{Proximity: 40, Skills: 30, Workload: 20, Rating: 10}
}

// Validate checks the weights are non-negative and sum to 100.
func (w RankingWeights) Validate() error {
	for name, v := range map[string]int{
		"proximity": w.Proximity,
		"skills":    w.Skills,
		"workload":  w.Workload,
		"rating":    w.Rating,
	} {
		if v < 0 {
			return fmt.Errorf("ranking weight %s must not be negative", name)
		}
	}
	if sum := w.Proximity + w.Skills + w.Workload + w.Rating; sum != 100 {
		return fmt.Errorf("ranking weights must sum to 100, got %d", sum)
	}
	return nil
}

// LoadRankingWeights reads weights from the YAML file at path. An empty path
// returns the defaults.
func LoadRankingWeights(path string) (RankingWeights, error) {
	if path == "" {
		return DefaultRankingWeights(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return RankingWeights{}, fmt.Errorf("read dispatch weights file: %w", err)
	}

	var weights RankingWeights
	if err := yaml.Unmarshal(data, &weights); err != nil {
		return RankingWeights{}, fmt.Errorf("parse dispatch weights file: %w", err)
	}

	if err := weights.Validate(); err != nil {
		return RankingWeights{}, err
	}

	return weights, nil
}
