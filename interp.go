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

	"github.com/ctessum/sparse"
)

// interpFactors holds precomputed horizontal bilinear interpolation
// indices and weights from a rectilinear geographic source grid onto
// one staggered family of target grid points. The factors are computed
// once per family and reused for every field and time step.
type interpFactors struct {
	il, jl *sparse.DenseArrayInt // western and southern source indices
	fx, fy *sparse.DenseArray    // fractional distances toward the east and north
}

// newInterpFactors locates each target point (lonT, latT) within the
// rectilinear source grid spanned by the strictly increasing axes
// lonSrc and latSrc. Target points outside the source grid are an
// error: extrapolating boundary conditions from reanalysis data would
// silently produce garbage.
func newInterpFactors(lonSrc, latSrc []float64, lonT, latT *sparse.DenseArray) (*interpFactors, error) {
	if len(lonSrc) < 2 || len(latSrc) < 2 {
		return nil, fmt.Errorf("lesnest: interpolation: source grid needs at least 2 points per axis, got %dx%d", len(lonSrc), len(latSrc))
	}
	for i := 1; i < len(lonSrc); i++ {
		if lonSrc[i] <= lonSrc[i-1] {
			return nil, fmt.Errorf("lesnest: interpolation: source longitudes not strictly increasing at index %d", i)
		}
	}
	for j := 1; j < len(latSrc); j++ {
		if latSrc[j] <= latSrc[j-1] {
			return nil, fmt.Errorf("lesnest: interpolation: source latitudes not strictly increasing at index %d", j)
		}
	}

	f := &interpFactors{
		il: sparse.ZerosDenseInt(lonT.Shape...),
		jl: sparse.ZerosDenseInt(lonT.Shape...),
		fx: sparse.ZerosDense(lonT.Shape...),
		fy: sparse.ZerosDense(lonT.Shape...),
	}
	for n, lon := range lonT.Elements {
		lat := latT.Elements[n]
		il, fx, err := locate(lonSrc, lon)
		if err != nil {
			return nil, fmt.Errorf("lesnest: interpolation: target longitude %g outside source grid [%g, %g]",
				lon, lonSrc[0], lonSrc[len(lonSrc)-1])
		}
		jl, fy, err := locate(latSrc, lat)
		if err != nil {
			return nil, fmt.Errorf("lesnest: interpolation: target latitude %g outside source grid [%g, %g]",
				lat, latSrc[0], latSrc[len(latSrc)-1])
		}
		f.il.Elements[n] = il
		f.jl.Elements[n] = jl
		f.fx.Elements[n] = fx
		f.fy.Elements[n] = fy
	}
	return f, nil
}

// locate finds the interval of the strictly increasing axis containing
// v, returning the lower index and the fractional position within the
// interval.
func locate(axis []float64, v float64) (int, float64, error) {
	n := len(axis)
	if v < axis[0] || v > axis[n-1] {
		return 0, 0, fmt.Errorf("out of range")
	}
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if axis[mid] <= v {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo, (v - axis[lo]) / (axis[lo+1] - axis[lo]), nil
}

// interpolateField tri-linearly interpolates the source field src with
// source vertical coordinate srcVert (both with shape (ks, js, is))
// onto the target grid, writing into dst with shape (len(targetVert),
// jtot, itot). targetVert holds the target vertical coordinate values
// (heights, or base-state pressures when the source vertical coordinate
// is pressure); the source column may run in either direction. Values
// outside the source column are extrapolated as constants.
func interpolateField(dst, src, srcVert *sparse.DenseArray, f *interpFactors, targetVert []float64) error {
	if len(src.Shape) != 3 || len(srcVert.Shape) != 3 {
		return fmt.Errorf("lesnest: interpolation: need 3-d source arrays, got %d-d and %d-d", len(src.Shape), len(srcVert.Shape))
	}
	for d := 0; d < 3; d++ {
		if src.Shape[d] != srcVert.Shape[d] {
			return fmt.Errorf("lesnest: interpolation: source field shape %v does not match vertical coordinate shape %v", src.Shape, srcVert.Shape)
		}
	}
	ks := src.Shape[0]
	jtot, itot := f.fx.Shape[0], f.fx.Shape[1]
	kt := len(targetVert)
	if dst.Shape[0] != kt || dst.Shape[1] != jtot || dst.Shape[2] != itot {
		return fmt.Errorf("lesnest: interpolation: destination shape %v does not match (%d, %d, %d)", dst.Shape, kt, jtot, itot)
	}

	col := make([]float64, ks)  // source field column at the target point
	vert := make([]float64, ks) // source vertical coordinate column
	for j := 0; j < jtot; j++ {
		for i := 0; i < itot; i++ {
			il := f.il.Get(j, i)
			jl := f.jl.Get(j, i)
			fx := f.fx.Get(j, i)
			fy := f.fy.Get(j, i)
			w00 := (1 - fx) * (1 - fy)
			w10 := fx * (1 - fy)
			w01 := (1 - fx) * fy
			w11 := fx * fy
			for k := 0; k < ks; k++ {
				col[k] = w00*src.Get(k, jl, il) + w10*src.Get(k, jl, il+1) +
					w01*src.Get(k, jl+1, il) + w11*src.Get(k, jl+1, il+1)
				vert[k] = w00*srcVert.Get(k, jl, il) + w10*srcVert.Get(k, jl, il+1) +
					w01*srcVert.Get(k, jl+1, il) + w11*srcVert.Get(k, jl+1, il+1)
			}
			for k := 0; k < kt; k++ {
				dst.Set(interpColumn(vert, col, targetVert[k]), k, j, i)
			}
		}
	}
	return nil
}

// interpColumn linearly interpolates the column (vert, col) at v.
// vert must be monotonic but may run in either direction; v outside
// the column takes the nearest end value.
func interpColumn(vert, col []float64, v float64) float64 {
	n := len(vert)
	ascending := vert[n-1] > vert[0]
	if ascending {
		if v <= vert[0] {
			return col[0]
		}
		if v >= vert[n-1] {
			return col[n-1]
		}
	} else {
		if v >= vert[0] {
			return col[0]
		}
		if v <= vert[n-1] {
			return col[n-1]
		}
	}
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		below := vert[mid] <= v
		if !ascending {
			below = vert[mid] >= v
		}
		if below {
			lo = mid
		} else {
			hi = mid
		}
	}
	fr := (v - vert[lo]) / (vert[hi] - vert[lo])
	return col[lo] + fr*(col[hi]-col[lo])
}
