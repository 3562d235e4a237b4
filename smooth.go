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

	"github.com/ctessum/sparse"
)

// gaussianKernel returns a normalized 1-d Gaussian kernel with standard
// deviation sigma grid cells, truncated at 4 sigma.
func gaussianKernel(sigma float64) []float64 {
	radius := int(4*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		w := math.Exp(-0.5 * float64(i) * float64(i) / (sigma * sigma))
		kernel[i+radius] = w
		sum += w
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// gaussianFilter smooths each horizontal slice of the 3-d field fld
// (k, j, i) in place with a separable Gaussian of standard deviation
// sigma grid cells, reflecting at the boundaries. Each vertical level
// is filtered independently.
func gaussianFilter(fld *sparse.DenseArray, sigma float64) {
	if sigma <= 0 {
		return
	}
	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2
	nk, nj, ni := fld.Shape[0], fld.Shape[1], fld.Shape[2]
	row := make([]float64, maxInt(ni, nj))
	for k := 0; k < nk; k++ {
		for j := 0; j < nj; j++ { // filter along i
			for i := 0; i < ni; i++ {
				row[i] = fld.Get(k, j, i)
			}
			for i := 0; i < ni; i++ {
				var v float64
				for m := -radius; m <= radius; m++ {
					v += kernel[m+radius] * row[reflect(i+m, ni)]
				}
				fld.Set(v, k, j, i)
			}
		}
		for i := 0; i < ni; i++ { // filter along j
			for j := 0; j < nj; j++ {
				row[j] = fld.Get(k, j, i)
			}
			for j := 0; j < nj; j++ {
				var v float64
				for m := -radius; m <= radius; m++ {
					v += kernel[m+radius] * row[reflect(j+m, nj)]
				}
				fld.Set(v, k, j, i)
			}
		}
	}
}

// reflect maps an out-of-range index back into [0, n) by mirroring at
// the array edges.
func reflect(i, n int) int {
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
