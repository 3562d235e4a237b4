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
	"hash/fnv"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/lesnest/basestate"
)

var log = logrus.StandardLogger()

// divTolerance is the relative tolerance on the remaining divergence
// after the correction solve.
const divTolerance = 1.e-11

// blendDepth is the depth over which the source vertical velocity is
// blended to zero at the surface [m].
const blendDepth = 500.

// VertCoord identifies the vertical coordinate of the reanalysis data.
type VertCoord int

const (
	// HeightCoord marks source levels given as heights [m].
	HeightCoord VertCoord = iota
	// PressureCoord marks source levels given as pressures [Pa].
	// Target levels are then taken from the base-state pressure
	// profile rather than matched by height.
	PressureCoord
)

// ReanalysisInput holds externally supplied reanalysis data on a
// rectilinear geographic grid. Field arrays are indexed
// (time, level, lat, lon).
type ReanalysisInput struct {
	// Fields maps field names to 4-d arrays in physical units.
	// The names "u", "v", and "w" denote the momentum components.
	Fields map[string]*sparse.DenseArray
	// Lon and Lat are the geographic axes of the source grid.
	Lon, Lat []float64
	// Vert is the source vertical coordinate (height or pressure)
	// per grid point and time, indexed like the fields.
	Vert *sparse.DenseArray
	// VertCoord identifies what Vert contains.
	VertCoord VertCoord
	// Time is the source time axis in seconds.
	Time []float64
}

// PipelineConfig holds the tunable options of a nesting pipeline.
type PipelineConfig struct {
	// SigmaH is the standard deviation of the Gaussian smoothing
	// filter [m]; zero disables smoothing.
	SigmaH float64

	// PerturbFields lists fields that receive structured noise to
	// seed turbulence. The noise is uniform in [-PerturbAmplitude,
	// PerturbAmplitude] on blocks of PerturbSize cells, applied below
	// PerturbMaxHeight [m], deterministically from PerturbSeed.
	PerturbFields    []string
	PerturbAmplitude float64
	PerturbMaxHeight float64
	PerturbSize      int
	PerturbSeed      int64

	// ClipAtZero lists fields clamped to non-negative values after
	// all corrections.
	ClipAtZero []string

	// SaveIndividualLBCs emits per-face boundary files in addition to
	// the full volumes.
	SaveIndividualLBCs bool

	NameSuffix string
	OutputDir  string

	// NTasks is the number of concurrent workers; zero means
	// runtime.NumCPU().
	NTasks int

	Dtype Dtype
}

// Pipeline interpolates reanalysis fields onto a nested domain,
// smooths them, corrects the horizontal momentum to be divergence
// free, and writes the simulation model's initial and boundary files.
// The domain, vertical grid, and base state are shared read-only
// across the worker pool.
type Pipeline struct {
	domain *Domain
	vgrid  *VerticalGrid
	base   *basestate.Profile[float64]
	cfg    PipelineConfig
}

// NewPipeline assembles a pipeline for the given domain, vertical
// grid, and base state. The domain must have a geographic anchor, and
// the base state must live on the vertical grid.
func NewPipeline(d *Domain, g *VerticalGrid, b *basestate.Profile[float64], cfg PipelineConfig) (*Pipeline, error) {
	if !d.HasGeo() {
		return nil, fmt.Errorf("lesnest: pipeline: domain %q has no geographic anchor", d.Name)
	}
	if g.HasGhost() {
		g = g.Interior()
	}
	if len(b.Rho) != g.Ktot || len(b.Rhoh) != g.Ktot+1 {
		return nil, fmt.Errorf("lesnest: pipeline: base state has %d levels but the vertical grid has %d", len(b.Rho), g.Ktot)
	}
	if cfg.NTasks <= 0 {
		cfg.NTasks = runtime.NumCPU()
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	return &Pipeline{domain: d, vgrid: g, base: b, cfg: cfg}, nil
}

// job is one unit of pipeline work: a scalar field at one time step,
// or (for name "") all momentum components at one time step.
type job struct {
	name string
	t    int
}

// Run processes all fields and time steps from in, writing one binary
// volume per (field, time) and, when configured, per-face boundary
// files. Missing momentum components, a non-monotonic time axis, shape
// mismatches, and correction non-convergence all abort the run.
func (p *Pipeline) Run(in *ReanalysisInput) error {
	if err := p.check(in); err != nil {
		return err
	}
	d := p.domain
	projPad := d.ProjPad

	log.Infof("lesnest: creating input for domain %q in %s", d.Name, p.cfg.OutputDir)

	facS, err := newInterpFactors(in.Lon, in.Lat, projPad.Lon, projPad.Lat)
	if err != nil {
		return err
	}
	facU, err := newInterpFactors(in.Lon, in.Lat, projPad.LonU, projPad.LatU)
	if err != nil {
		return err
	}
	facV, err := newInterpFactors(in.Lon, in.Lat, projPad.LonV, projPad.LatV)
	if err != nil {
		return err
	}

	_, haveU := in.Fields["u"]
	_, haveV := in.Fields["v"]
	_, haveW := in.Fields["w"]
	haveMomentum := haveU && haveV && haveW
	if (haveU || haveV || haveW) && !haveMomentum {
		return fmt.Errorf("lesnest: pipeline: momentum requires u, v, and w; have u=%v, v=%v, w=%v", haveU, haveV, haveW)
	}

	var jobs []job
	for name := range in.Fields {
		if name == "u" || name == "v" || name == "w" {
			continue
		}
		for t := range in.Time {
			jobs = append(jobs, job{name: name, t: t})
		}
	}
	if haveMomentum {
		for t := range in.Time {
			jobs = append(jobs, job{t: t})
		}
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}
	work := make(chan job)
	for w := 0; w < p.cfg.NTasks; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for jb := range work {
				if failed() {
					continue
				}
				var err error
				if jb.name == "" {
					err = p.processMomentum(in, jb.t, facU, facV, facS)
				} else {
					err = p.processScalar(in, jb.name, jb.t, facS)
				}
				if err != nil {
					fail(err)
				}
			}
		}()
	}
	for _, jb := range jobs {
		work <- jb
	}
	close(work)
	wg.Wait()
	return firstErr
}

// check validates the reanalysis input against the pipeline
// configuration before any work is queued.
func (p *Pipeline) check(in *ReanalysisInput) error {
	if len(in.Time) == 0 {
		return fmt.Errorf("lesnest: pipeline: empty time axis")
	}
	for t := 1; t < len(in.Time); t++ {
		if in.Time[t] <= in.Time[t-1] {
			return fmt.Errorf("lesnest: pipeline: time axis not strictly increasing at index %d: %g <= %g",
				t, in.Time[t], in.Time[t-1])
		}
	}
	if in.Vert == nil || len(in.Vert.Shape) != 4 {
		return fmt.Errorf("lesnest: pipeline: source vertical coordinate must be a 4-d array")
	}
	want := in.Vert.Shape
	if want[0] != len(in.Time) {
		return fmt.Errorf("lesnest: pipeline: vertical coordinate has %d time steps but the time axis has %d", want[0], len(in.Time))
	}
	if want[2] != len(in.Lat) || want[3] != len(in.Lon) {
		return fmt.Errorf("lesnest: pipeline: vertical coordinate shape %v does not match %dx%d source grid", want, len(in.Lat), len(in.Lon))
	}
	for name, fld := range in.Fields {
		if fld == nil || len(fld.Shape) != 4 {
			return fmt.Errorf("lesnest: pipeline: field %q must be a 4-d array", name)
		}
		for d := 0; d < 4; d++ {
			if fld.Shape[d] != want[d] {
				return fmt.Errorf("lesnest: pipeline: field %q shape %v does not match vertical coordinate shape %v", name, fld.Shape, want)
			}
		}
	}
	for _, name := range p.cfg.ClipAtZero {
		if _, ok := in.Fields[name]; !ok {
			return fmt.Errorf("lesnest: pipeline: clip_at_zero field %q not in input", name)
		}
	}
	return nil
}

// targetFull returns the target vertical coordinate values at the full
// levels: heights, or base-state pressures for pressure-coordinate
// sources.
func (p *Pipeline) targetFull(in *ReanalysisInput) []float64 {
	if in.VertCoord == PressureCoord {
		return p.base.P
	}
	return p.vgrid.Z
}

// targetHalf is targetFull at the half levels.
func (p *Pipeline) targetHalf(in *ReanalysisInput) []float64 {
	if in.VertCoord == PressureCoord {
		return p.base.Ph
	}
	return p.vgrid.Zh
}

// sigmaCells converts the configured smoothing length to grid cells.
func (p *Pipeline) sigmaCells() float64 {
	if p.cfg.SigmaH <= 0 {
		return 0
	}
	return math.Ceil(p.cfg.SigmaH / p.domain.Dx)
}

// processScalar interpolates, smooths, optionally perturbs and clips,
// and writes a single scalar field at a single time step.
func (p *Pipeline) processScalar(in *ReanalysisInput, name string, t int, fac *interpFactors) error {
	log.Debugf("lesnest: processing field %s at t=%d", name, t)
	projPad := p.domain.ProjPad
	fld := sparse.ZerosDense(p.vgrid.Ktot, projPad.Jtot, projPad.Itot)

	src := timeSlice(in.Fields[name], t)
	vert := timeSlice(in.Vert, t)
	if err := interpolateField(fld, src, vert, fac, p.targetFull(in)); err != nil {
		return fmt.Errorf("lesnest: field %s at t=%d: %v", name, t, err)
	}
	gaussianFilter(fld, p.sigmaCells())
	if p.perturbs(name) {
		p.addPerturbation(fld, name, t, p.vgrid.Z)
	}
	if p.clips(name) {
		clipAtZero(fld)
	}
	if err := p.save(name, fld, p.vgrid.Ktot, in.Time[t]); err != nil {
		return fmt.Errorf("lesnest: field %s at t=%d: %v", name, t, err)
	}
	return nil
}

// processMomentum interpolates all momentum components at a single
// time step, blends the vertical velocity to zero at the surface,
// corrects the horizontal components to be divergence free, and writes
// the results.
func (p *Pipeline) processMomentum(in *ReanalysisInput, t int, facU, facV, facS *interpFactors) error {
	log.Debugf("lesnest: processing momentum at t=%d", t)
	d := p.domain
	g := p.vgrid
	projPad := d.ProjPad

	u := sparse.ZerosDense(g.Ktot, projPad.Jtot, projPad.Itot)
	v := sparse.ZerosDense(g.Ktot, projPad.Jtot, projPad.Itot)
	w := sparse.ZerosDense(g.Ktot+1, projPad.Jtot, projPad.Itot)

	vert := timeSlice(in.Vert, t)
	if err := interpolateField(u, timeSlice(in.Fields["u"], t), vert, facU, p.targetFull(in)); err != nil {
		return fmt.Errorf("lesnest: momentum u at t=%d: %v", t, err)
	}
	if err := interpolateField(v, timeSlice(in.Fields["v"], t), vert, facV, p.targetFull(in)); err != nil {
		return fmt.Errorf("lesnest: momentum v at t=%d: %v", t, err)
	}
	if err := interpolateField(w, timeSlice(in.Fields["w"], t), vert, facS, p.targetHalf(in)); err != nil {
		return fmt.Errorf("lesnest: momentum w at t=%d: %v", t, err)
	}

	sigma := p.sigmaCells()
	gaussianFilter(u, sigma)
	gaussianFilter(v, sigma)
	gaussianFilter(w, sigma)

	blendWToSurface(w, g.Zh, blendDepth)

	dxi, dyi := 1/d.Dx, 1/d.Dy
	correctMeanDivergence(u, v, w, p.base.Rho, p.base.Rhoh, g.Dzi, projPad.Xh, projPad.Yh, dxi, dyi)
	if err := solveDivergenceFree(u, v, w, p.base.Rho, p.base.Rhoh, g.Dzi, dxi, dyi, divTolerance); err != nil {
		return fmt.Errorf("lesnest: momentum at t=%d: %v", t, err)
	}
	div, kd, jd, id := maxDivergence(u, v, w, p.base.Rho, p.base.Rhoh, g.Dzi, dxi, dyi)
	log.Debugf("lesnest: maximum divergence at t=%d: %.3e at i=%d, j=%d, k=%d", t, div, id, jd, kd)

	for name, fld := range map[string]*sparse.DenseArray{"u": u, "v": v} {
		if p.perturbs(name) {
			p.addPerturbation(fld, name, t, g.Z)
		}
	}
	if err := p.save("u", u, g.Ktot, in.Time[t]); err != nil {
		return fmt.Errorf("lesnest: momentum at t=%d: %v", t, err)
	}
	if err := p.save("v", v, g.Ktot, in.Time[t]); err != nil {
		return fmt.Errorf("lesnest: momentum at t=%d: %v", t, err)
	}
	// The top half level is not part of the model's w field.
	if err := p.save("w", w, g.Ktot, in.Time[t]); err != nil {
		return fmt.Errorf("lesnest: momentum at t=%d: %v", t, err)
	}
	return nil
}

func (p *Pipeline) save(name string, fld *sparse.DenseArray, nk int, seconds float64) error {
	return saveField(name, fld, p.domain, nk, seconds, p.cfg.SaveIndividualLBCs,
		p.cfg.NameSuffix, p.cfg.OutputDir, p.cfg.Dtype)
}

func (p *Pipeline) perturbs(name string) bool {
	return contains(p.cfg.PerturbFields, name) && p.cfg.PerturbAmplitude > 0
}

func (p *Pipeline) clips(name string) bool {
	return contains(p.cfg.ClipAtZero, name)
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// addPerturbation adds blocky uniform noise below the configured
// height to seed turbulence. The noise is deterministic in the
// configured seed, the field name, and the time index, so reruns and
// worker scheduling do not change the output.
func (p *Pipeline) addPerturbation(fld *sparse.DenseArray, name string, t int, z []float64) {
	size := p.cfg.PerturbSize
	if size <= 0 {
		size = 1
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%d", name, t)
	rnd := rand.New(rand.NewSource(p.cfg.PerturbSeed ^ int64(h.Sum64())))

	nk, nj, ni := fld.Shape[0], fld.Shape[1], fld.Shape[2]
	for k := 0; k < nk && k < len(z); k++ {
		if z[k] >= p.cfg.PerturbMaxHeight {
			break
		}
		for jb := 0; jb < nj; jb += size {
			for ib := 0; ib < ni; ib += size {
				val := (2*rnd.Float64() - 1) * p.cfg.PerturbAmplitude
				for j := jb; j < jb+size && j < nj; j++ {
					for i := ib; i < ib+size && i < ni; i++ {
						fld.AddVal(val, k, j, i)
					}
				}
			}
		}
	}
}

// clipAtZero clamps negative values to zero in place.
func clipAtZero(fld *sparse.DenseArray) {
	for i, v := range fld.Elements {
		if v < 0 {
			fld.Elements[i] = 0
		}
	}
}

// timeSlice copies the 3-d cube at time index t out of a 4-d array.
func timeSlice(arr *sparse.DenseArray, t int) *sparse.DenseArray {
	nk, nj, ni := arr.Shape[1], arr.Shape[2], arr.Shape[3]
	out := sparse.ZerosDense(nk, nj, ni)
	n := nk * nj * ni
	copy(out.Elements, arr.Elements[t*n:(t+1)*n])
	return out
}
