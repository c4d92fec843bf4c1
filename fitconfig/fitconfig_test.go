package fitconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probfit/probfit/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const compositeYAML = `
name: twochannel
data: events.csv
category: channel
workers: 4
statistic: nll
components:
  - state: a
    type: gaussian
    observable: x
    parameters:
      mean: {value: 0.0}
      sigma: {value: 1.0, const: true}
  - state: b
    type: exponential
    observable: x
    parameters:
      tau: {value: 2.0}
scan:
  parameter: mean_a
  lo: -1
  hi: 1
  steps: 21
`

func TestLoadComposite(t *testing.T) {
	cfg, err := Load(writeConfig(t, compositeYAML))
	require.NoError(t, err)

	assert.Equal(t, "twochannel", cfg.Name)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "nll", cfg.Statistic)
	require.Len(t, cfg.Components, 2)
	require.NotNil(t, cfg.Scan)
	assert.Equal(t, "mean_a", cfg.Scan.Parameter)

	m, params, err := cfg.BuildModel()
	require.NoError(t, err)
	assert.True(t, model.IsComposite(m))

	require.NotNil(t, params.Find("mean_a"))
	assert.Equal(t, 0.0, params.Find("mean_a").Value)
	require.NotNil(t, params.Find("sigma_a"))
	assert.True(t, params.Find("sigma_a").Const)
	require.NotNil(t, params.Find("tau_b"))
	assert.Equal(t, 2.0, params.Find("tau_b").Value)
}

func TestLoadSingleComponent(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
data: events.csv
components:
  - type: gaussian
    observable: x
    parameters:
      mean: {value: 0.5}
      sigma: {value: 1.5}
`))
	require.NoError(t, err)

	// Defaults applied.
	assert.Equal(t, "nll", cfg.Statistic)
	assert.Equal(t, 1, cfg.Workers)

	m, params, err := cfg.BuildModel()
	require.NoError(t, err)
	assert.False(t, model.IsComposite(m))
	require.NotNil(t, params.Find("mean"))
	assert.Equal(t, 0.5, params.Find("mean").Value)
}

func TestValidation(t *testing.T) {
	cases := map[string]string{
		"missing data": `
components:
  - type: gaussian
    observable: x
    parameters: {mean: {value: 0}, sigma: {value: 1}}
`,
		"no components": `
data: d.csv
`,
		"unknown statistic": `
data: d.csv
statistic: wasserstein
components:
  - type: gaussian
    observable: x
    parameters: {mean: {value: 0}, sigma: {value: 1}}
`,
		"chi2 without weight column": `
data: d.csv
statistic: chi2
components:
  - type: gaussian
    observable: x
    parameters: {mean: {value: 0}, sigma: {value: 1}}
`,
		"composite without category": `
data: d.csv
components:
  - state: a
    type: gaussian
    observable: x
    parameters: {mean: {value: 0}, sigma: {value: 1}}
  - state: b
    type: gaussian
    observable: x
    parameters: {mean: {value: 0}, sigma: {value: 1}}
`,
		"duplicate state": `
data: d.csv
category: c
components:
  - state: a
    type: gaussian
    observable: x
    parameters: {mean: {value: 0}, sigma: {value: 1}}
  - state: a
    type: gaussian
    observable: x
    parameters: {mean: {value: 0}, sigma: {value: 1}}
`,
		"missing gaussian parameter": `
data: d.csv
components:
  - type: gaussian
    observable: x
    parameters: {mean: {value: 0}}
`,
		"unknown component type": `
data: d.csv
components:
  - type: cauchy
    observable: x
    parameters: {mean: {value: 0}}
`,
		"bad scan": `
data: d.csv
components:
  - type: gaussian
    observable: x
    parameters: {mean: {value: 0}, sigma: {value: 1}}
scan: {parameter: mean, lo: 1, hi: 0, steps: 10}
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}
