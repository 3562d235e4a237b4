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
)

const testConfig = `
[[domains]]
name = "outer"
xsize = 3200.0
ysize = 3200.0
itot = 32
jtot = 32
lon = 4.9
lat = 52.0
anchor = "center"
proj = "+proj=lcc +lat_1=52 +lat_2=52 +lat_0=52 +lon_0=4.9 +x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs"

[[domains]]
name = "inner"
xsize = 1600.0
ysize = 1600.0
itot = 32
jtot = 32
nghost = 1
nsponge = 2
centerinparent = true
lon = 4.9
lat = 52.0
anchor = "center"
proj = "+proj=lcc +lat_1=52 +lat_2=52 +lat_0=52 +lon_0=4.9 +x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs"

[grid]
z = [25.0, 75.0, 125.0, 175.0]
zsize = 200.0

[basestate]
pbot = 101300.0
thl = [290.0, 290.5, 291.0, 291.5]

[input]
path = "era5.nc"
lonvar = "lon"
latvar = "lat"
timevar = "time"
vertvar = "zg"
vertcoord = "height"

[input.fields]
thl = "ta"
u = "ua"
v = "va"
w = "wa"

[pipeline]
sigmah = 150.0
perturbfields = ["thl"]
perturbamplitude = 0.1
perturbmaxheight = 100.0
perturbsize = 2
perturbseed = 7
clipatzero = ["qt"]
saveindividuallbcs = true
outputdir = "out"
ntasks = 4
dtype = "float32"
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lesnest.toml")
	if err := os.WriteFile(path, []byte(testConfig), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	if len(c.Domains) != 2 || c.Domains[1].Name != "inner" {
		t.Fatalf("domains = %+v", c.Domains)
	}
	if c.Pipeline.SigmaH != 150 || !c.Pipeline.SaveIndividualLBCs || c.Pipeline.Dtype != "float32" {
		t.Errorf("pipeline options = %+v", c.Pipeline)
	}
	if c.Input.Fields["u"] != "ua" {
		t.Errorf("input fields = %v", c.Input.Fields)
	}
	if len(c.BaseState.Qt) != 0 {
		t.Errorf("expected dry base state, got qt = %v", c.BaseState.Qt)
	}

	n, err := c.Nest()
	if err != nil {
		t.Fatal(err)
	}
	if len(n.Domains) != 2 {
		t.Fatalf("nest has %d domains", len(n.Domains))
	}
	inner := n.Domains[1]
	if inner.Parent() != 0 {
		t.Errorf("inner parent handle = %d", inner.Parent())
	}
	if inner.XStartInParent != 800 || inner.YStartInParent != 800 {
		t.Errorf("inner placement = (%g, %g); want (800, 800)", inner.XStartInParent, inner.YStartInParent)
	}
	if !inner.HasGeo() {
		t.Error("inner domain lost its geographic anchor")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing configuration file accepted")
	}

	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("domains = 3"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("malformed configuration accepted")
	}

	c := new(RunConfig)
	if _, err := c.Nest(); err == nil {
		t.Error("configuration without domains accepted")
	}
}
