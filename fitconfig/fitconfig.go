// Package fitconfig loads the YAML description of a fit job: the dataset
// location, the model composition and the evaluation settings consumed by
// the probfit CLI.
package fitconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/probfit/probfit/category"
	"github.com/probfit/probfit/model"
	"github.com/probfit/probfit/param"
)

// ParamSpec describes one model parameter.
type ParamSpec struct {
	Value float64 `yaml:"value"`
	Const bool    `yaml:"const"`
}

// ComponentSpec describes one density component. State is empty for a plain
// single-component model and names a category state for composite models.
type ComponentSpec struct {
	State      string               `yaml:"state"`
	Type       string               `yaml:"type"`
	Observable string               `yaml:"observable"`
	Parameters map[string]ParamSpec `yaml:"parameters"`
}

// ScanSpec describes an optional statistic profile over one parameter.
type ScanSpec struct {
	Parameter string  `yaml:"parameter"`
	Lo        float64 `yaml:"lo"`
	Hi        float64 `yaml:"hi"`
	Steps     int     `yaml:"steps"`
}

// Config is a fit job.
type Config struct {
	Name         string          `yaml:"name"`
	Data         string          `yaml:"data"`
	Category     string          `yaml:"category"`
	Workers      int             `yaml:"workers"`
	Statistic    string          `yaml:"statistic"`
	Extended     bool            `yaml:"extended"`
	WeightColumn string          `yaml:"weight_column"`
	BinVolume    float64         `yaml:"bin_volume"`
	Components   []ComponentSpec `yaml:"components"`
	Scan         *ScanSpec       `yaml:"scan"`
}

// Load reads and validates a fit job from a YAML file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %v", err)
	}
	cfg := &Config{
		Statistic: "nll",
		Workers:   1,
		BinVolume: 1.0,
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the job for consistency.
func (c *Config) Validate() error {
	if c.Data == "" {
		return fmt.Errorf("config: data path is required")
	}
	if len(c.Components) == 0 {
		return fmt.Errorf("config: at least one component is required")
	}
	switch c.Statistic {
	case "nll":
	case "chi2":
		if c.WeightColumn == "" {
			return fmt.Errorf("config: chi2 statistic requires weight_column")
		}
		if c.BinVolume <= 0 {
			return fmt.Errorf("config: chi2 statistic requires positive bin_volume")
		}
	default:
		return fmt.Errorf("config: unknown statistic %q", c.Statistic)
	}

	multi := len(c.Components) > 1 || c.Components[0].State != ""
	if multi && c.Category == "" {
		return fmt.Errorf("config: a category name is required for composite models")
	}
	seen := make(map[string]bool)
	for i, comp := range c.Components {
		if multi && comp.State == "" {
			return fmt.Errorf("config: component %d needs a state in a composite model", i)
		}
		if comp.State != "" && seen[comp.State] {
			return fmt.Errorf("config: duplicate component state %q", comp.State)
		}
		seen[comp.State] = true
		if comp.Observable == "" {
			return fmt.Errorf("config: component %d needs an observable", i)
		}
		switch comp.Type {
		case "gaussian":
			if err := requireParams(comp, i, "mean", "sigma"); err != nil {
				return err
			}
		case "exponential":
			if err := requireParams(comp, i, "tau"); err != nil {
				return err
			}
		default:
			return fmt.Errorf("config: component %d has unknown type %q", i, comp.Type)
		}
	}
	if c.Scan != nil {
		if c.Scan.Parameter == "" {
			return fmt.Errorf("config: scan requires a parameter name")
		}
		if c.Scan.Steps < 2 {
			return fmt.Errorf("config: scan requires at least 2 steps")
		}
		if c.Scan.Hi <= c.Scan.Lo {
			return fmt.Errorf("config: scan range [%g,%g] is empty", c.Scan.Lo, c.Scan.Hi)
		}
	}
	return nil
}

func requireParams(comp ComponentSpec, i int, names ...string) error {
	for _, n := range names {
		if _, ok := comp.Parameters[n]; !ok {
			return fmt.Errorf("config: component %d (%s) is missing parameter %q", i, comp.Type, n)
		}
	}
	return nil
}

// paramName derives the full parameter name of a component parameter:
// state-qualified for composite components.
func paramName(key, state string) string {
	if state == "" {
		return key
	}
	return key + "_" + state
}

func buildComponent(comp ComponentSpec, params *param.Set) (model.Model, error) {
	mk := func(key string) *param.Param {
		spec := comp.Parameters[key]
		p := param.New(paramName(key, comp.State), spec.Value)
		p.Const = spec.Const
		params.Add(p)
		return p
	}
	name := comp.Type
	if comp.State != "" {
		name = comp.Type + "_" + comp.State
	}
	switch comp.Type {
	case "gaussian":
		return model.NewGaussian(name, comp.Observable, mk("mean"), mk("sigma")), nil
	case "exponential":
		return model.NewExponential(name, comp.Observable, mk("tau")), nil
	default:
		return nil, fmt.Errorf("unknown component type %q", comp.Type)
	}
}

// BuildModel constructs the configured model. The returned parameter set
// holds every parameter created along the way, for lookups by name.
func (c *Config) BuildModel() (model.Model, *param.Set, error) {
	params := param.NewSet()

	if len(c.Components) == 1 && c.Components[0].State == "" {
		m, err := buildComponent(c.Components[0], params)
		if err != nil {
			return nil, nil, err
		}
		return m, params, nil
	}

	states := make([]string, len(c.Components))
	comps := make(map[string]model.Model, len(c.Components))
	for i, spec := range c.Components {
		states[i] = spec.State
		m, err := buildComponent(spec, params)
		if err != nil {
			return nil, nil, err
		}
		comps[spec.State] = m
	}
	idx := category.New(c.Category, states...)
	sim, err := model.NewSimultaneous(c.Name, idx, comps)
	if err != nil {
		return nil, nil, err
	}
	return sim, params, nil
}
