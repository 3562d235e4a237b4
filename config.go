/*
Copyright © 2024 the LESNest authors.
This file is part of LESNest.

LESNest is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

LESNest is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with LESNest.  If not, see <http://www.gnu.org/licenses/>.
*/

package lesnest

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/spatialmodel/lesnest/basestate"
)

// RunConfig is the TOML configuration of a complete preprocessing run:
// the domain chain, the vertical grid, the base-state profiles, the
// reanalysis input, and the pipeline options. Input for the innermost
// domain is generated.
type RunConfig struct {
	// Domains is the nesting chain, outermost first. Each domain is
	// nested in the one before it.
	Domains []DomainTOML

	Grid struct {
		Z     []float64
		Zsize float64
	}

	BaseState struct {
		// Pbot is the surface pressure [Pa].
		Pbot float64
		// Thl and Qt are the initial liquid-water potential
		// temperature [K] and total water [kg/kg] profiles at the full
		// levels. An empty Qt selects the dry solver.
		Thl []float64
		Qt  []float64
	}

	Input struct {
		Path                    string
		LonVar, LatVar, TimeVar string
		VertVar                 string
		VertCoord               string
		Fields                  map[string]string
	}

	Pipeline struct {
		SigmaH             float64
		PerturbFields      []string
		PerturbAmplitude   float64
		PerturbMaxHeight   float64
		PerturbSize        int
		PerturbSeed        int64
		ClipAtZero         []string
		SaveIndividualLBCs bool
		NameSuffix         string
		OutputDir          string
		NTasks             int
		Dtype              string
	}
}

// DomainTOML is the TOML form of a DomainConfig, with the anchor as a
// string.
type DomainTOML struct {
	Name            string
	Xsize, Ysize    float64
	Itot, Jtot      int
	NGhost, NSponge int

	CenterInParent                 bool
	XStartInParent, YStartInParent float64

	Lon, Lat float64
	Anchor   string
	Proj     string
}

// LoadConfig reads a RunConfig from a TOML file.
func LoadConfig(path string) (*RunConfig, error) {
	c := new(RunConfig)
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("lesnest: while reading configuration file: %v", err)
	}
	return c, nil
}

// Nest builds the domain chain described by the configuration.
func (c *RunConfig) Nest() (*Nest, error) {
	if len(c.Domains) == 0 {
		return nil, fmt.Errorf("lesnest: configuration contains no domains")
	}
	n := NewNest()
	parent := NoParent
	for _, dt := range c.Domains {
		dc := DomainConfig{
			Name:           dt.Name,
			Xsize:          dt.Xsize,
			Ysize:          dt.Ysize,
			Itot:           dt.Itot,
			Jtot:           dt.Jtot,
			NGhost:         dt.NGhost,
			NSponge:        dt.NSponge,
			CenterInParent: dt.CenterInParent,
			XStartInParent: dt.XStartInParent,
			YStartInParent: dt.YStartInParent,
			Lon:            dt.Lon,
			Lat:            dt.Lat,
			Proj:           dt.Proj,
		}
		if dt.Anchor != "" {
			a, err := ParseAnchor(dt.Anchor)
			if err != nil {
				return nil, fmt.Errorf("lesnest: domain %q: %v", dt.Name, err)
			}
			dc.Anchor = a
		}
		d, err := NewDomain(dc)
		if err != nil {
			return nil, err
		}
		parent, err = n.Add(d, parent)
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Run executes the configured preprocessing: it builds the nest,
// vertical grid, and base state, reads the reanalysis input, and runs
// the pipeline for the innermost domain.
func (c *RunConfig) Run() error {
	nest, err := c.Nest()
	if err != nil {
		return err
	}
	target := nest.Domains[len(nest.Domains)-1]

	grid, err := NewVerticalGrid(c.Grid.Z, c.Grid.Zsize)
	if err != nil {
		return err
	}

	if len(c.BaseState.Thl) != grid.Ktot {
		return fmt.Errorf("lesnest: base-state thl has %d levels but the vertical grid has %d", len(c.BaseState.Thl), grid.Ktot)
	}
	var base *basestate.Profile[float64]
	if len(c.BaseState.Qt) == 0 {
		base, err = basestate.Dry(c.BaseState.Thl, c.BaseState.Pbot, grid.Z, grid.Zh)
	} else {
		if len(c.BaseState.Qt) != grid.Ktot {
			return fmt.Errorf("lesnest: base-state qt has %d levels but the vertical grid has %d", len(c.BaseState.Qt), grid.Ktot)
		}
		base, err = basestate.Moist(c.BaseState.Thl, c.BaseState.Qt, c.BaseState.Pbot, grid.Z, grid.Zh)
	}
	if err != nil {
		return err
	}

	dtype, err := ParseDtype(c.Pipeline.Dtype)
	if err != nil {
		return err
	}
	var vc VertCoord
	switch c.Input.VertCoord {
	case "height", "":
		vc = HeightCoord
	case "pressure":
		vc = PressureCoord
	default:
		return fmt.Errorf("lesnest: invalid vertical coordinate %q; want height or pressure", c.Input.VertCoord)
	}

	in, err := ReadReanalysis(ReanalysisFile{
		Path:      c.Input.Path,
		LonVar:    c.Input.LonVar,
		LatVar:    c.Input.LatVar,
		TimeVar:   c.Input.TimeVar,
		VertVar:   c.Input.VertVar,
		VertCoord: vc,
		Fields:    c.Input.Fields,
	})
	if err != nil {
		return err
	}

	p, err := NewPipeline(target, grid, base, PipelineConfig{
		SigmaH:             c.Pipeline.SigmaH,
		PerturbFields:      c.Pipeline.PerturbFields,
		PerturbAmplitude:   c.Pipeline.PerturbAmplitude,
		PerturbMaxHeight:   c.Pipeline.PerturbMaxHeight,
		PerturbSize:        c.Pipeline.PerturbSize,
		PerturbSeed:        c.Pipeline.PerturbSeed,
		ClipAtZero:         c.Pipeline.ClipAtZero,
		SaveIndividualLBCs: c.Pipeline.SaveIndividualLBCs,
		NameSuffix:         c.Pipeline.NameSuffix,
		OutputDir:          c.Pipeline.OutputDir,
		NTasks:             c.Pipeline.NTasks,
		Dtype:              dtype,
	})
	if err != nil {
		return err
	}
	return p.Run(in)
}
