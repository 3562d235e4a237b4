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
	"math"
)

// placementTolerance is the maximum deviation, in parent grid cells,
// between a requested child placement and the nearest integer number of
// parent cells. Anything beyond this is an invalid nesting, not a
// rounding candidate.
const placementTolerance = 1e-8

// NoParent is the parent handle of a root domain in a Nest.
const NoParent = -1

// DomainConfig holds the geometry, nesting placement, and optional
// geographic anchor of a single Cartesian simulation domain.
type DomainConfig struct {
	Name string

	Xsize, Ysize float64 // horizontal extents [m]
	Itot, Jtot   int     // cell counts

	NGhost  int // ghost cells per lateral boundary
	NSponge int // sponge (relaxation) cells per lateral boundary

	// Placement within the parent domain, either centered or at an
	// explicit offset of the child's south-west corner from the
	// parent's south-west corner [m]. Ignored for root domains.
	CenterInParent                 bool
	XStartInParent, YStartInParent float64

	// Optional geographic anchor. When Proj is empty the domain
	// exists only in abstract Cartesian space and projection queries
	// are unavailable.
	Lon, Lat float64
	Anchor   Anchor
	Proj     string // Proj4-format projection definition
}

// Domain describes one nested Cartesian grid: extent, resolution,
// ghost and sponge margins, placement within its parent, and the
// projections used to locate it on the globe. Domains are linked into a
// tree by a Nest; the parent and child fields are integer handles into
// the owning Nest, not object references.
type Domain struct {
	Name string

	Xsize, Ysize float64
	Itot, Jtot   int
	Dx, Dy       float64

	NGhost  int
	NSponge int
	// NPad is the ghost padding per side of the padded projection:
	// one cell more than NGhost so that velocity fields corrected for
	// divergence remain well-defined at the outermost ghost cell.
	NPad int

	// Placement of the south-west corner relative to the parent
	// domain, and relative to the root of the nest.
	XStartInParent, YStartInParent float64
	XOffset, YOffset               float64

	parent, child int

	config DomainConfig

	// Proj and ProjPad are the unpadded and ghost-padded projections;
	// nil when the domain has no geographic anchor.
	Proj    *Projection
	ProjPad *Projection
}

// NewDomain validates the requested geometry and constructs a Domain.
// The domain is not yet placed in a nest; use Nest.Add for that.
func NewDomain(c DomainConfig) (*Domain, error) {
	if c.Itot <= 0 || c.Jtot <= 0 {
		return nil, fmt.Errorf("lesnest: domain %q: cell counts must be positive: itot=%d, jtot=%d", c.Name, c.Itot, c.Jtot)
	}
	if c.Xsize <= 0 || c.Ysize <= 0 {
		return nil, fmt.Errorf("lesnest: domain %q: extents must be positive: xsize=%g, ysize=%g", c.Name, c.Xsize, c.Ysize)
	}
	if c.NGhost < 0 || c.NSponge < 0 {
		return nil, fmt.Errorf("lesnest: domain %q: ghost and sponge counts must be non-negative: n_ghost=%d, n_sponge=%d", c.Name, c.NGhost, c.NSponge)
	}
	d := &Domain{
		Name:           c.Name,
		Xsize:          c.Xsize,
		Ysize:          c.Ysize,
		Itot:           c.Itot,
		Jtot:           c.Jtot,
		Dx:             c.Xsize / float64(c.Itot),
		Dy:             c.Ysize / float64(c.Jtot),
		NGhost:         c.NGhost,
		NSponge:        c.NSponge,
		NPad:           c.NGhost + 1,
		XStartInParent: c.XStartInParent,
		YStartInParent: c.YStartInParent,
		parent:         NoParent,
		child:          NoParent,
		config:         c,
	}

	if c.Proj != "" {
		var err error
		d.Proj, err = NewProjection(c.Proj, c.Lon, c.Lat, c.Anchor, c.Xsize, c.Ysize, c.Itot, c.Jtot)
		if err != nil {
			return nil, fmt.Errorf("lesnest: domain %q: %v", c.Name, err)
		}
		// The padded projection shares the geographic anchor; only
		// the anchor's local coordinate shifts by the pad width.
		var ax, ay float64
		switch c.Anchor {
		case AnchorCenter:
			ax, ay = c.Xsize/2, c.Ysize/2
		case AnchorSouthWest:
			ax, ay = 0, 0
		case AnchorNorthWest:
			ax, ay = 0, c.Ysize
		case AnchorSouthEast:
			ax, ay = c.Xsize, 0
		case AnchorNorthEast:
			ax, ay = c.Xsize, c.Ysize
		default:
			return nil, fmt.Errorf("lesnest: domain %q: invalid anchor %v", c.Name, c.Anchor)
		}
		pad := float64(d.NPad)
		d.ProjPad, err = newProjectionAnchored(c.Proj, c.Lon, c.Lat,
			ax+pad*d.Dx, ay+pad*d.Dy,
			c.Xsize+2*pad*d.Dx, c.Ysize+2*pad*d.Dy,
			c.Itot+2*d.NPad, c.Jtot+2*d.NPad)
		if err != nil {
			return nil, fmt.Errorf("lesnest: domain %q: padded projection: %v", c.Name, err)
		}
	}
	return d, nil
}

// HasGeo reports whether the domain has a geographic anchor.
func (d *Domain) HasGeo() bool { return d.Proj != nil }

// Parent returns the Nest handle of the parent domain, or NoParent.
func (d *Domain) Parent() int { return d.parent }

// Child returns the Nest handle of the child domain, or NoParent.
func (d *Domain) Child() int { return d.child }

// AbsBounds returns the bounding box of the domain in the Cartesian
// coordinates of the nest root.
func (d *Domain) AbsBounds() (x0, y0, x1, y1 float64) {
	return d.XOffset, d.YOffset, d.XOffset + d.Xsize, d.YOffset + d.Ysize
}

// Nest is an index-based forest of domains. Each domain holds an
// integer handle to its parent; handles are indices into Domains.
// Topology is expected to be a tree; no cycle detection is performed.
type Nest struct {
	Domains []*Domain
}

// NewNest creates an empty nest.
func NewNest() *Nest { return &Nest{} }

// Add places domain d in the nest under the domain with handle parent
// (NoParent for a root domain) and returns d's handle. The placement of
// the child's south-west corner must coincide with an integer number of
// parent grid cells in each direction, and the child must lie entirely
// within the parent; violations are construction errors.
func (n *Nest) Add(d *Domain, parent int) (int, error) {
	if parent == NoParent {
		d.parent = NoParent
		d.XOffset, d.YOffset = 0, 0
		n.Domains = append(n.Domains, d)
		return len(n.Domains) - 1, nil
	}
	if parent < 0 || parent >= len(n.Domains) {
		return 0, fmt.Errorf("lesnest: nest: invalid parent handle %d for domain %q", parent, d.Name)
	}
	p := n.Domains[parent]
	if p.child != NoParent {
		return 0, fmt.Errorf("lesnest: nest: domain %q already has a child", p.Name)
	}

	xstart, ystart := d.XStartInParent, d.YStartInParent
	if d.config.CenterInParent {
		xstart = (p.Xsize - d.Xsize) / 2
		ystart = (p.Ysize - d.Ysize) / 2
	}
	if err := checkPlacement(d.Name, "x", xstart, p.Dx); err != nil {
		return 0, err
	}
	if err := checkPlacement(d.Name, "y", ystart, p.Dy); err != nil {
		return 0, err
	}
	if xstart < 0 || ystart < 0 || xstart+d.Xsize > p.Xsize || ystart+d.Ysize > p.Ysize {
		return 0, fmt.Errorf("lesnest: nest: domain %q at (%g, %g) extends outside parent %q",
			d.Name, xstart, ystart, p.Name)
	}

	d.XStartInParent, d.YStartInParent = xstart, ystart
	d.XOffset = p.XOffset + xstart
	d.YOffset = p.YOffset + ystart
	d.parent = parent
	n.Domains = append(n.Domains, d)
	handle := len(n.Domains) - 1
	p.child = handle
	return handle, nil
}

// checkPlacement verifies that a child offset lands on an integer
// number of parent cells.
func checkPlacement(name, dir string, start, parentD float64) error {
	cells := start / parentD
	if math.Abs(cells-math.Round(cells)) > placementTolerance {
		return fmt.Errorf("lesnest: nest: domain %q %s offset %g m is %g parent cells; placement must be an integer number of parent cells",
			name, dir, start, cells)
	}
	return nil
}
