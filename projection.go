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
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
)

// longLatProj is the spatial reference definition for geographic
// coordinates in degrees.
const longLatProj = "+proj=longlat +datum=WGS84 +no_defs"

// Anchor specifies which point of the domain the geographic anchor
// coordinate refers to.
type Anchor int

const (
	// AnchorCenter places the anchor coordinate at the domain center.
	AnchorCenter Anchor = iota
	// AnchorSouthWest places the anchor coordinate at the south-west corner.
	AnchorSouthWest
	// AnchorNorthWest places the anchor coordinate at the north-west corner.
	AnchorNorthWest
	// AnchorSouthEast places the anchor coordinate at the south-east corner.
	AnchorSouthEast
	// AnchorNorthEast places the anchor coordinate at the north-east corner.
	AnchorNorthEast
)

func (a Anchor) String() string {
	switch a {
	case AnchorCenter:
		return "center"
	case AnchorSouthWest:
		return "southwest"
	case AnchorNorthWest:
		return "northwest"
	case AnchorSouthEast:
		return "southeast"
	case AnchorNorthEast:
		return "northeast"
	}
	return fmt.Sprintf("unknown(%d)", int(a))
}

// ParseAnchor converts an anchor name to an Anchor.
func ParseAnchor(s string) (Anchor, error) {
	switch strings.ToLower(s) {
	case "center", "":
		return AnchorCenter, nil
	case "southwest":
		return AnchorSouthWest, nil
	case "northwest":
		return AnchorNorthWest, nil
	case "southeast":
		return AnchorSouthEast, nil
	case "northeast":
		return AnchorNorthEast, nil
	}
	return 0, fmt.Errorf("lesnest: invalid anchor %q", s)
}

// Projection maps between geographic coordinates [degrees] and local
// Cartesian domain coordinates [m] for a single grid anchor and
// orientation. The local origin is placed so that the anchor coordinate
// maps to the requested anchor point of the domain. All coordinate
// arrays are computed at construction time and are immutable afterward.
type Projection struct {
	Itot, Jtot   int
	Dx, Dy       float64
	Xsize, Ysize float64

	// X and Y are the local coordinates of the scalar (cell center)
	// points; Xh and Yh are the coordinates of the cell faces
	// (lengths itot+1 and jtot+1).
	X, Xh, Y, Yh []float64

	// Geographic coordinates of the three staggered grid-point
	// families, each with shape (jtot, itot): scalar points, u points
	// (x faces), and v points (y faces).
	Lon, Lat   *sparse.DenseArray
	LonU, LatU *sparse.DenseArray
	LonV, LatV *sparse.DenseArray

	forward proj.Transformer // geographic degrees -> projected meters
	inverse proj.Transformer // projected meters -> geographic degrees

	// Projected coordinates of the local origin.
	xOff, yOff float64

	bounds geom.Polygon
}

// NewProjection constructs a projection for a grid of itot x jtot cells
// spanning xsize x ysize meters, anchored so that the geographic
// coordinate (lon, lat) [degrees] falls on the given anchor point.
// projStr is a Proj4-format cartographic projection definition.
func NewProjection(projStr string, lon, lat float64, anchor Anchor, xsize, ysize float64, itot, jtot int) (*Projection, error) {
	// Local coordinates of the anchor point.
	var ax, ay float64
	switch anchor {
	case AnchorCenter:
		ax, ay = xsize/2, ysize/2
	case AnchorSouthWest:
		ax, ay = 0, 0
	case AnchorNorthWest:
		ax, ay = 0, ysize
	case AnchorSouthEast:
		ax, ay = xsize, 0
	case AnchorNorthEast:
		ax, ay = xsize, ysize
	default:
		return nil, fmt.Errorf("lesnest: projection: invalid anchor %v", anchor)
	}
	return newProjectionAnchored(projStr, lon, lat, ax, ay, xsize, ysize, itot, jtot)
}

// newProjectionAnchored constructs a projection whose geographic anchor
// (lon, lat) falls on the local coordinate (ax, ay). It is the common
// constructor behind the unpadded and ghost-padded projections of a
// Domain: the padded projection uses the same geographic anchor with its
// local anchor coordinate shifted by the pad width.
func newProjectionAnchored(projStr string, lon, lat, ax, ay, xsize, ysize float64, itot, jtot int) (*Projection, error) {
	if itot <= 0 || jtot <= 0 {
		return nil, fmt.Errorf("lesnest: projection: cell counts must be positive: itot=%d, jtot=%d", itot, jtot)
	}
	if xsize <= 0 || ysize <= 0 {
		return nil, fmt.Errorf("lesnest: projection: domain extents must be positive: xsize=%g, ysize=%g", xsize, ysize)
	}

	gridSR, err := proj.Parse(projStr)
	if err != nil {
		return nil, fmt.Errorf("lesnest: while parsing projection %q: %v", projStr, err)
	}
	geoSR, err := proj.Parse(longLatProj)
	if err != nil {
		return nil, fmt.Errorf("lesnest: while parsing geographic reference: %v", err)
	}
	forward, err := geoSR.NewTransform(gridSR)
	if err != nil {
		return nil, fmt.Errorf("lesnest: while creating forward transform: %v", err)
	}
	inverse, err := gridSR.NewTransform(geoSR)
	if err != nil {
		return nil, fmt.Errorf("lesnest: while creating inverse transform: %v", err)
	}

	p := &Projection{
		Itot:    itot,
		Jtot:    jtot,
		Dx:      xsize / float64(itot),
		Dy:      ysize / float64(jtot),
		Xsize:   xsize,
		Ysize:   ysize,
		forward: forward,
		inverse: inverse,
	}

	xe, ye, err := forward(lon, lat)
	if err != nil {
		return nil, fmt.Errorf("lesnest: while projecting anchor (%g, %g): %v", lon, lat, err)
	}
	p.xOff = xe - ax
	p.yOff = ye - ay

	p.X = make([]float64, itot)
	p.Xh = make([]float64, itot+1)
	for i := 0; i < itot; i++ {
		p.X[i] = (float64(i) + 0.5) * p.Dx
		p.Xh[i] = float64(i) * p.Dx
	}
	p.Xh[itot] = xsize
	p.Y = make([]float64, jtot)
	p.Yh = make([]float64, jtot+1)
	for j := 0; j < jtot; j++ {
		p.Y[j] = (float64(j) + 0.5) * p.Dy
		p.Yh[j] = float64(j) * p.Dy
	}
	p.Yh[jtot] = ysize

	if err := p.fillCoordinates(); err != nil {
		return nil, err
	}
	if err := p.fillBounds(); err != nil {
		return nil, err
	}
	return p, nil
}

// fillCoordinates precomputes the geographic coordinates of the scalar,
// u, and v grid-point families.
func (p *Projection) fillCoordinates() error {
	p.Lon = sparse.ZerosDense(p.Jtot, p.Itot)
	p.Lat = sparse.ZerosDense(p.Jtot, p.Itot)
	p.LonU = sparse.ZerosDense(p.Jtot, p.Itot)
	p.LatU = sparse.ZerosDense(p.Jtot, p.Itot)
	p.LonV = sparse.ZerosDense(p.Jtot, p.Itot)
	p.LatV = sparse.ZerosDense(p.Jtot, p.Itot)
	for j := 0; j < p.Jtot; j++ {
		for i := 0; i < p.Itot; i++ {
			lon, lat, err := p.ToLonLat(p.X[i], p.Y[j])
			if err != nil {
				return fmt.Errorf("lesnest: while inverting scalar point (%d, %d): %v", j, i, err)
			}
			p.Lon.Set(lon, j, i)
			p.Lat.Set(lat, j, i)

			lon, lat, err = p.ToLonLat(p.Xh[i], p.Y[j])
			if err != nil {
				return fmt.Errorf("lesnest: while inverting u point (%d, %d): %v", j, i, err)
			}
			p.LonU.Set(lon, j, i)
			p.LatU.Set(lat, j, i)

			lon, lat, err = p.ToLonLat(p.X[i], p.Yh[j])
			if err != nil {
				return fmt.Errorf("lesnest: while inverting v point (%d, %d): %v", j, i, err)
			}
			p.LonV.Set(lon, j, i)
			p.LatV.Set(lat, j, i)
		}
	}
	return nil
}

// fillBounds computes the geographic bounding polygon of the domain
// edge, sampling each edge at every cell face to follow the projection's
// curvature.
func (p *Projection) fillBounds() error {
	var ring []geom.Point
	add := func(x, y float64) error {
		lon, lat, err := p.ToLonLat(x, y)
		if err != nil {
			return fmt.Errorf("lesnest: while computing bounding polygon: %v", err)
		}
		ring = append(ring, geom.Point{X: lon, Y: lat})
		return nil
	}
	for i := 0; i <= p.Itot; i++ { // south edge, west to east
		if err := add(p.Xh[i], 0); err != nil {
			return err
		}
	}
	for j := 1; j <= p.Jtot; j++ { // east edge, south to north
		if err := add(p.Xsize, p.Yh[j]); err != nil {
			return err
		}
	}
	for i := p.Itot - 1; i >= 0; i-- { // north edge, east to west
		if err := add(p.Xh[i], p.Ysize); err != nil {
			return err
		}
	}
	for j := p.Jtot - 1; j > 0; j-- { // west edge, north to south
		if err := add(0, p.Yh[j]); err != nil {
			return err
		}
	}
	p.bounds = geom.Polygon{ring}
	return nil
}

// ToXY converts a geographic coordinate [degrees] to local domain
// coordinates [m].
func (p *Projection) ToXY(lon, lat float64) (x, y float64, err error) {
	x, y, err = p.forward(lon, lat)
	if err != nil {
		return 0, 0, fmt.Errorf("lesnest: while projecting (%g, %g): %v", lon, lat, err)
	}
	return x - p.xOff, y - p.yOff, nil
}

// ToLonLat converts local domain coordinates [m] to a geographic
// coordinate [degrees].
func (p *Projection) ToLonLat(x, y float64) (lon, lat float64, err error) {
	lon, lat, err = p.inverse(x+p.xOff, y+p.yOff)
	if err != nil {
		return 0, 0, fmt.Errorf("lesnest: while inverting (%g, %g): %v", x, y, err)
	}
	return lon, lat, nil
}

// Bounds returns the geographic bounding polygon of the domain edge.
func (p *Projection) Bounds() geom.Polygon {
	return p.bounds
}

// GeoBounds returns the geographic bounding box of the domain.
func (p *Projection) GeoBounds() *geom.Bounds {
	return p.bounds.Bounds()
}
