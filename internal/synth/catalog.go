// Package synth generates plausible fire-weather rasters for local runs and
// tests: random hotspots per index, sampled from an index-specific
// distribution and interpolated over the grid.
package synth

import (
	_ "embed"
	"fmt"
	"math/rand/v2"

	"github.com/couchcryptid/fireweather-etl/internal/domain"
	"gonum.org/v1/gonum/stat/distuv"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Distribution describes how hotspot values of one index are drawn.
type Distribution struct {
	Index  string    `yaml:"index"`
	Min    float64   `yaml:"min"`
	Max    float64   `yaml:"max"`
	Shape  string    `yaml:"distribution"`
	Params []float64 `yaml:"params"`
}

// Catalog maps index names to their distributions.
type Catalog map[string]Distribution

// LoadCatalog parses the embedded catalog and checks it covers every index.
func LoadCatalog() (Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog decodes a YAML catalog.
func ParseCatalog(data []byte) (Catalog, error) {
	var entries []Distribution
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := make(Catalog, len(entries))
	for _, d := range entries {
		if !domain.IsIndex(d.Index) {
			return nil, fmt.Errorf("catalog: %w: %q", domain.ErrUnknownIndex, d.Index)
		}
		if d.Min >= d.Max {
			return nil, fmt.Errorf("catalog %s: empty range [%g, %g]", d.Index, d.Min, d.Max)
		}
		if _, err := d.sampler(rand.NewPCG(0, 0)); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", d.Index, err)
		}
		c[d.Index] = d
	}
	for _, name := range domain.IndexNames {
		if _, ok := c[name]; !ok {
			return nil, fmt.Errorf("catalog: no distribution for %s", name)
		}
	}
	return c, nil
}

type sampler interface {
	Rand() float64
}

func (d Distribution) sampler(src rand.Source) (sampler, error) {
	want := map[string]int{"normal": 2, "uniform": 2, "beta": 2, "gamma": 2, "exponential": 1, "weibull": 2}
	n, ok := want[d.Shape]
	if !ok {
		return nil, fmt.Errorf("unknown distribution %q", d.Shape)
	}
	if len(d.Params) != n {
		return nil, fmt.Errorf("%s takes %d parameters, got %d", d.Shape, n, len(d.Params))
	}
	p := d.Params

	switch d.Shape {
	case "normal":
		return distuv.Normal{Mu: p[0], Sigma: p[1], Src: src}, nil
	case "uniform":
		return distuv.Uniform{Min: p[0], Max: p[1], Src: src}, nil
	case "beta":
		return distuv.Beta{Alpha: p[0], Beta: p[1], Src: src}, nil
	case "gamma":
		return distuv.Gamma{Alpha: p[0], Beta: 1 / p[1], Src: src}, nil
	case "exponential":
		return distuv.Exponential{Rate: 1 / p[0], Src: src}, nil
	default:
		return distuv.Weibull{K: p[0], Lambda: p[1], Src: src}, nil
	}
}

// Clip limits v to the distribution's value range.
func (d Distribution) Clip(v float64) float64 {
	return min(max(v, d.Min), d.Max)
}
