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
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/sparse"

	"github.com/spatialmodel/lesnest/basestate"
)

// testPipelineSetup builds a small geo-referenced domain, vertical
// grid, and base state, plus synthetic reanalysis input covering the
// domain.
func testPipelineSetup(t *testing.T) (*Domain, *VerticalGrid, *basestate.Profile[float64], *ReanalysisInput) {
	t.Helper()
	d, err := NewDomain(DomainConfig{
		Name: "test", Xsize: 1600, Ysize: 1600, Itot: 16, Jtot: 16,
		NGhost: 1, NSponge: 2,
		Lon: testLon, Lat: testLat, Anchor: AnchorCenter, Proj: testProj,
	})
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewVerticalGrid(uniformLevels(8, 400), 400)
	if err != nil {
		t.Fatal(err)
	}
	thl := make([]float64, g.Ktot)
	for k, zk := range g.Z {
		thl[k] = 290 + 0.005*zk
	}
	b, err := basestate.Dry(thl, 101300, g.Z, g.Zh)
	if err != nil {
		t.Fatal(err)
	}

	// An 11x11 degree grid of 0.02-degree cells generously covers the
	// padded 2 km domain.
	const nt, nk, nj, ni = 2, 5, 11, 11
	lon := make([]float64, ni)
	lat := make([]float64, nj)
	for i := range lon {
		lon[i] = 4.8 + 0.02*float64(i)
	}
	for j := range lat {
		lat[j] = 51.9 + 0.02*float64(j)
	}
	zSrc := []float64{10, 100, 250, 500, 1000}

	vert := sparse.ZerosDense(nt, nk, nj, ni)
	mk := func(f func(k, j, i int) float64) *sparse.DenseArray {
		a := sparse.ZerosDense(nt, nk, nj, ni)
		for tt := 0; tt < nt; tt++ {
			for k := 0; k < nk; k++ {
				for j := 0; j < nj; j++ {
					for i := 0; i < ni; i++ {
						a.Set(f(k, j, i), tt, k, j, i)
					}
				}
			}
		}
		return a
	}
	for tt := 0; tt < nt; tt++ {
		for k := 0; k < nk; k++ {
			for j := 0; j < nj; j++ {
				for i := 0; i < ni; i++ {
					vert.Set(zSrc[k], tt, k, j, i)
				}
			}
		}
	}

	in := &ReanalysisInput{
		Fields: map[string]*sparse.DenseArray{
			"thl": mk(func(k, j, i int) float64 { return 285 + 0.01*zSrc[k] + 2*(lon[i]-4.9) + 3*(lat[j]-52) }),
			"qt":  mk(func(k, j, i int) float64 { return 0.004 - 0.000002*zSrc[k] }),
			"u":   mk(func(k, j, i int) float64 { return 5 + 0.5*(lat[j]-52)*100 }),
			"v":   mk(func(k, j, i int) float64 { return -2 + 0.5*(lon[i]-4.9)*100 }),
			"w":   mk(func(k, j, i int) float64 { return 0.05 }),
		},
		Lon:       lon,
		Lat:       lat,
		Vert:      vert,
		VertCoord: HeightCoord,
		Time:      []float64{0, 3600},
	}
	return d, g, b, in
}

func runTestPipeline(t *testing.T, dir string) {
	t.Helper()
	d, g, b, in := testPipelineSetup(t)
	p, err := NewPipeline(d, g, b, PipelineConfig{
		SigmaH:             150,
		PerturbFields:      []string{"thl"},
		PerturbAmplitude:   0.1,
		PerturbMaxHeight:   100,
		PerturbSize:        2,
		PerturbSeed:        7,
		ClipAtZero:         []string{"qt"},
		SaveIndividualLBCs: true,
		OutputDir:          dir,
		NTasks:             2,
		Dtype:              Float64,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Run(in); err != nil {
		t.Fatal(err)
	}
}

func TestPipeline(t *testing.T) {
	dir := t.TempDir()
	runTestPipeline(t, dir)

	const volumeSize = 8 * 16 * 16 * 8 // ktot x jtot x itot x 8 bytes
	for _, name := range []string{"thl", "qt", "u", "v", "w"} {
		for _, ts := range []string{"0000000", "0003600"} {
			fi, err := os.Stat(filepath.Join(dir, name+"."+ts))
			if err != nil {
				t.Fatalf("missing output: %v", err)
			}
			if fi.Size() != volumeSize {
				t.Errorf("%s.%s: %d bytes; want %d", name, ts, fi.Size(), volumeSize)
			}
		}
		for _, face := range lbcFaces {
			if _, err := os.Stat(filepath.Join(dir, name+"_"+face+".0000000")); err != nil {
				t.Errorf("missing boundary file: %v", err)
			}
		}
	}

	// The u west strip is one cell wider than the scalar strip.
	depth := 1 + 2 // nghost + nsponge
	rows := 20 - 2 // padded size minus the outermost cells
	check := func(name string, want int) {
		t.Helper()
		fi, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if fi.Size() != int64(want) {
			t.Errorf("%s: %d bytes; want %d", name, fi.Size(), want)
		}
	}
	check("thl_west.0000000", 8*rows*depth*8)
	check("u_west.0000000", 8*rows*(depth+1)*8)
	check("v_south.0000000", 8*(depth+1)*rows*8)
	check("w_north.0000000", 8*depth*rows*8)
}

// TestPipelineDeterminism checks that two runs with the same seed are
// byte-identical, including the perturbed fields, regardless of worker
// scheduling.
func TestPipelineDeterminism(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	runTestPipeline(t, dir1)
	runTestPipeline(t, dir2)

	for _, name := range []string{"thl.0000000", "thl.0003600", "u.0000000", "w.0003600"} {
		b1, err := os.ReadFile(filepath.Join(dir1, name))
		if err != nil {
			t.Fatal(err)
		}
		b2, err := os.ReadFile(filepath.Join(dir2, name))
		if err != nil {
			t.Fatal(err)
		}
		if string(b1) != string(b2) {
			t.Errorf("%s differs between identical runs", name)
		}
	}
}

func TestPipelineValidation(t *testing.T) {
	d, g, b, in := testPipelineSetup(t)
	p, err := NewPipeline(d, g, b, PipelineConfig{OutputDir: t.TempDir(), NTasks: 1})
	if err != nil {
		t.Fatal(err)
	}

	delete(in.Fields, "w")
	if err := p.Run(in); err == nil {
		t.Error("incomplete momentum accepted")
	}

	_, _, _, in = testPipelineSetup(t)
	in.Time = []float64{3600, 0}
	if err := p.Run(in); err == nil {
		t.Error("non-monotonic time axis accepted")
	}

	_, _, _, in = testPipelineSetup(t)
	in.Fields["thl"] = sparse.ZerosDense(2, 5, 11, 10)
	if err := p.Run(in); err == nil {
		t.Error("mismatched field shape accepted")
	}

	_, _, _, in = testPipelineSetup(t)
	in.Lon[len(in.Lon)-1] = 4.95 // domain no longer covered
	if err := p.Run(in); err == nil {
		t.Error("source grid not covering the domain accepted")
	}

	// A domain without a geographic anchor cannot be nested into.
	plain, err := NewDomain(DomainConfig{Name: "plain", Xsize: 1600, Ysize: 1600, Itot: 16, Jtot: 16})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewPipeline(plain, g, b, PipelineConfig{}); err == nil {
		t.Error("domain without projection accepted")
	}
}
