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

import "fmt"

// VerticalGrid holds the full- and half-level heights and spacings of a
// single model column, reconstructed with the second-order (centered)
// discretization used by the simulation model. The half levels must
// match the model's own vertical grid definition exactly for the
// divergence correction to hold.
type VerticalGrid struct {
	Ktot  int
	Zsize float64

	Z  []float64 // full-level heights [m], length Ktot
	Zh []float64 // half-level heights [m], length Ktot+1

	Dz, Dzi   []float64 // full-level spacing and inverse, length Ktot
	Dzh, Dzhi []float64 // half-level spacing and inverse, length Ktot+1

	ghost bool
}

// NewVerticalGrid reconstructs the half-level heights implied by the
// given monotonically increasing full-level heights and domain top:
// zh[0] = 0, zh[k] = (z[k-1]+z[k])/2, zh[ktot] = zsize. It returns a
// configuration error if the heights are not strictly increasing or do
// not lie inside (0, zsize).
func NewVerticalGrid(z []float64, zsize float64) (*VerticalGrid, error) {
	ktot := len(z)
	if ktot < 2 {
		return nil, fmt.Errorf("lesnest: vertical grid: need at least 2 levels, got %d", ktot)
	}
	if zsize <= 0 {
		return nil, fmt.Errorf("lesnest: vertical grid: domain top must be positive: zsize=%g", zsize)
	}
	if z[0] <= 0 || z[ktot-1] >= zsize {
		return nil, fmt.Errorf("lesnest: vertical grid: levels must lie inside (0, %g): z[0]=%g, z[%d]=%g",
			zsize, z[0], ktot-1, z[ktot-1])
	}
	for k := 1; k < ktot; k++ {
		if z[k] <= z[k-1] {
			return nil, fmt.Errorf("lesnest: vertical grid: heights not strictly increasing at level %d: %g <= %g",
				k, z[k], z[k-1])
		}
	}

	g := &VerticalGrid{
		Ktot:  ktot,
		Zsize: zsize,
		Z:     append([]float64(nil), z...),
		Zh:    make([]float64, ktot+1),
	}
	g.Zh[0] = 0
	for k := 1; k < ktot; k++ {
		g.Zh[k] = 0.5 * (z[k-1] + z[k])
	}
	g.Zh[ktot] = zsize
	g.fillSpacings()
	return g, nil
}

// fillSpacings derives the level spacings and their inverses from Z and
// Zh. The outermost half-level spacings use mirrored ghost distances.
func (g *VerticalGrid) fillSpacings() {
	n := len(g.Z)
	g.Dz = make([]float64, n)
	g.Dzi = make([]float64, n)
	for k := 0; k < n; k++ {
		g.Dz[k] = g.Zh[k+1] - g.Zh[k]
		g.Dzi[k] = 1 / g.Dz[k]
	}
	g.Dzh = make([]float64, n+1)
	g.Dzhi = make([]float64, n+1)
	for k := 1; k < n; k++ {
		g.Dzh[k] = g.Z[k] - g.Z[k-1]
	}
	g.Dzh[0] = 2 * (g.Z[0] - g.Zh[0])
	g.Dzh[n] = 2 * (g.Zh[n] - g.Z[n-1])
	for k := 0; k <= n; k++ {
		g.Dzhi[k] = 1 / g.Dzh[k]
	}
}

// HasGhost reports whether the grid includes ghost levels.
func (g *VerticalGrid) HasGhost() bool { return g.ghost }

// WithGhost returns a copy of the grid with one mirrored ghost level
// below the surface and one above the domain top.
func (g *VerticalGrid) WithGhost() *VerticalGrid {
	if g.ghost {
		return g
	}
	n := g.Ktot
	o := &VerticalGrid{
		Ktot:  n + 2,
		Zsize: g.Zsize,
		Z:     make([]float64, n+2),
		Zh:    make([]float64, n+3),
		ghost: true,
	}
	o.Z[0] = -g.Z[0]
	copy(o.Z[1:], g.Z)
	o.Z[n+1] = 2*g.Zsize - g.Z[n-1]
	o.Zh[0] = -g.Zh[1]
	copy(o.Zh[1:], g.Zh)
	o.Zh[n+2] = 2*g.Zsize - g.Zh[n-1]
	o.fillSpacings()
	return o
}

// Interior returns a copy of the grid with any ghost levels stripped.
func (g *VerticalGrid) Interior() *VerticalGrid {
	if !g.ghost {
		return g
	}
	n := g.Ktot - 2
	o := &VerticalGrid{
		Ktot:  n,
		Zsize: g.Zsize,
		Z:     append([]float64(nil), g.Z[1:n+1]...),
		Zh:    append([]float64(nil), g.Zh[1:n+2]...),
	}
	o.fillSpacings()
	return o
}
