package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// WeightProfile is a named weight vector loaded from YAML:
//
//	name: steep-terrain
//	weights:
//	  slope: 0.6
//	  roughness: 0.2
//	  land_cover: 0.1
//	  dist_water: 0.05
//	  dist_road: 0.05
type WeightProfile struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description,omitempty"`
	Weights     map[string]float64 `yaml:"weights"`
}

// LoadWeightProfile reads a weight profile file. The weights are returned
// as written; callers validate them against the predictor set.
func LoadWeightProfile(path string) (*WeightProfile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read weight profile %s", path)
	}
	var p WeightProfile
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, eris.Wrapf(err, "config: parse weight profile %s", path)
	}
	if len(p.Weights) == 0 {
		return nil, eris.Errorf("config: weight profile %s has no weights", path)
	}
	return &p, nil
}
