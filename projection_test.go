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
	"math"
	"testing"
)

// testProj is a Lambert conformal conic projection centered on the
// Netherlands.
const testProj = "+proj=lcc +lat_1=52 +lat_2=52 +lat_0=52 +lon_0=4.9 " +
	"+x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs"

const (
	testLon = 4.9
	testLat = 52.0
)

func TestProjectionRoundTrip(t *testing.T) {
	const degreeTolerance = 1.e-6
	const meterTolerance = 1.e-4

	p, err := NewProjection(testProj, testLon, testLat, AnchorCenter, 3200, 3200, 32, 32)
	if err != nil {
		t.Fatal(err)
	}

	// The anchor coordinate must land on the domain center.
	x, y, err := p.ToXY(testLon, testLat)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(x-1600) > meterTolerance || math.Abs(y-1600) > meterTolerance {
		t.Errorf("anchor maps to (%g, %g); want (1600, 1600)", x, y)
	}

	for _, xy := range [][2]float64{{0, 0}, {3200, 0}, {1600, 1600}, {0, 3200}, {137.5, 2012.5}} {
		lon, lat, err := p.ToLonLat(xy[0], xy[1])
		if err != nil {
			t.Fatal(err)
		}
		xb, yb, err := p.ToXY(lon, lat)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(xb-xy[0]) > meterTolerance || math.Abs(yb-xy[1]) > meterTolerance {
			t.Errorf("round trip of (%g, %g) gives (%g, %g)", xy[0], xy[1], xb, yb)
		}
		lonb, latb, err := p.ToLonLat(xb, yb)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(lonb-lon) > degreeTolerance || math.Abs(latb-lat) > degreeTolerance {
			t.Errorf("round trip of (%g, %g) gives (%g, %g)", lon, lat, lonb, latb)
		}
	}
}

func TestProjectionAnchors(t *testing.T) {
	const meterTolerance = 1.e-4
	cases := []struct {
		anchor Anchor
		ax, ay float64
	}{
		{AnchorCenter, 800, 400},
		{AnchorSouthWest, 0, 0},
		{AnchorNorthWest, 0, 800},
		{AnchorSouthEast, 1600, 0},
		{AnchorNorthEast, 1600, 800},
	}
	for _, c := range cases {
		p, err := NewProjection(testProj, testLon, testLat, c.anchor, 1600, 800, 16, 8)
		if err != nil {
			t.Fatal(err)
		}
		x, y, err := p.ToXY(testLon, testLat)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(x-c.ax) > meterTolerance || math.Abs(y-c.ay) > meterTolerance {
			t.Errorf("anchor %v maps to (%g, %g); want (%g, %g)", c.anchor, x, y, c.ax, c.ay)
		}
	}
}

func TestProjectionCoordinates(t *testing.T) {
	const degreeTolerance = 1.e-9

	p, err := NewProjection(testProj, testLon, testLat, AnchorSouthWest, 1600, 800, 16, 8)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Lon.Shape; got[0] != 8 || got[1] != 16 {
		t.Fatalf("scalar coordinate shape = %v; want [8 16]", got)
	}

	// The u points sit on the x faces and the v points on the y faces.
	lon, lat, err := p.ToLonLat(p.Xh[3], p.Y[5])
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(p.LonU.Get(5, 3)-lon) > degreeTolerance || math.Abs(p.LatU.Get(5, 3)-lat) > degreeTolerance {
		t.Errorf("u point (5, 3) = (%g, %g); want (%g, %g)", p.LonU.Get(5, 3), p.LatU.Get(5, 3), lon, lat)
	}
	lon, lat, err = p.ToLonLat(p.X[3], p.Yh[5])
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(p.LonV.Get(5, 3)-lon) > degreeTolerance || math.Abs(p.LatV.Get(5, 3)-lat) > degreeTolerance {
		t.Errorf("v point (5, 3) = (%g, %g); want (%g, %g)", p.LonV.Get(5, 3), p.LatV.Get(5, 3), lon, lat)
	}
}

func TestProjectionBounds(t *testing.T) {
	p, err := NewProjection(testProj, testLon, testLat, AnchorCenter, 3200, 3200, 32, 32)
	if err != nil {
		t.Fatal(err)
	}
	b := p.GeoBounds()
	if !(b.Min.X < testLon && testLon < b.Max.X && b.Min.Y < testLat && testLat < b.Max.Y) {
		t.Errorf("anchor (%g, %g) outside geographic bounds %+v", testLon, testLat, b)
	}
	// 3200 m is roughly 0.03 degrees latitude; the box must be small.
	if b.Max.Y-b.Min.Y > 0.1 || b.Max.X-b.Min.X > 0.2 {
		t.Errorf("geographic bounds %+v implausibly large for a 3.2 km domain", b)
	}
}

func TestParseAnchor(t *testing.T) {
	for _, a := range []Anchor{AnchorCenter, AnchorSouthWest, AnchorNorthWest, AnchorSouthEast, AnchorNorthEast} {
		got, err := ParseAnchor(a.String())
		if err != nil {
			t.Fatal(err)
		}
		if got != a {
			t.Errorf("ParseAnchor(%q) = %v; want %v", a.String(), got, a)
		}
	}
	if _, err := ParseAnchor("middle"); err == nil {
		t.Error("invalid anchor name accepted")
	}
}

func TestDomainPaddedProjection(t *testing.T) {
	const degreeTolerance = 1.e-9

	d, err := NewDomain(DomainConfig{
		Name: "d", Xsize: 1600, Ysize: 1600, Itot: 16, Jtot: 16, NGhost: 1,
		Lon: testLon, Lat: testLat, Anchor: AnchorCenter, Proj: testProj,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.ProjPad.Itot != 16+2*d.NPad || d.ProjPad.Jtot != 16+2*d.NPad {
		t.Fatalf("padded projection is %dx%d; want %dx%d",
			d.ProjPad.Itot, d.ProjPad.Jtot, 16+2*d.NPad, 16+2*d.NPad)
	}
	// The padded and unpadded projections share the geographic anchor,
	// so interior scalar points coincide.
	pad := d.NPad
	for _, ji := range [][2]int{{0, 0}, {7, 3}, {15, 15}} {
		j, i := ji[0], ji[1]
		if math.Abs(d.Proj.Lon.Get(j, i)-d.ProjPad.Lon.Get(j+pad, i+pad)) > degreeTolerance ||
			math.Abs(d.Proj.Lat.Get(j, i)-d.ProjPad.Lat.Get(j+pad, i+pad)) > degreeTolerance {
			t.Errorf("interior point (%d, %d) moved between padded and unpadded projections", j, i)
		}
	}
}
