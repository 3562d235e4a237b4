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

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// blendWToSurface linearly blends the vertical velocity to zero below
// zmax. Reanalysis vertical velocity is unreliable near the surface,
// and the surface value must be exactly zero.
func blendWToSurface(w *sparse.DenseArray, zh []float64, zmax float64) {
	nj, ni := w.Shape[1], w.Shape[2]
	for k := 0; k < w.Shape[0]; k++ {
		if zh[k] >= zmax {
			break
		}
		fac := zh[k] / zmax
		for j := 0; j < nj; j++ {
			for i := 0; i < ni; i++ {
				w.Set(w.Get(k, j, i)*fac, k, j, i)
			}
		}
	}
}

// divergence is the density-weighted finite-volume divergence of the
// staggered velocity field at cell (k, j, i): u and v live on the x and
// y faces of the cell (indices i and i+1, j and j+1), w on the bottom
// and top faces (k and k+1).
func divergence(u, v, w *sparse.DenseArray, rho, rhoh, dzi []float64, dxi, dyi float64, k, j, i int) float64 {
	return rho[k]*((u.Get(k, j, i+1)-u.Get(k, j, i))*dxi+
		(v.Get(k, j+1, i)-v.Get(k, j, i))*dyi) +
		(rhoh[k+1]*w.Get(k+1, j, i)-rhoh[k]*w.Get(k, j, i))*dzi[k]
}

// correctMeanDivergence adds a linear ramp to u and v at every level so
// that the domain-mean horizontal mass divergence matches the
// subsidence implied by the source vertical velocity. The correction is
// split evenly between the two components and is centered so the mean
// winds are unchanged. xh and yh are the face coordinates of the grid
// the fields live on.
func correctMeanDivergence(u, v, w *sparse.DenseArray, rho, rhoh, dzi, xh, yh []float64, dxi, dyi float64) {
	ktot := u.Shape[0]
	// Divergence is defined on cells that have all faces in-array.
	nj, ni := u.Shape[1]-1, u.Shape[2]-1
	nc := float64(nj * ni)
	xc := (xh[0] + xh[ni]) / 2
	yc := (yh[0] + yh[nj]) / 2

	for k := 0; k < ktot; k++ {
		var div float64
		for j := 0; j < nj; j++ {
			for i := 0; i < ni; i++ {
				div += divergence(u, v, w, rho, rhoh, dzi, dxi, dyi, k, j, i)
			}
		}
		// Required uniform change in du/dx + dv/dy.
		c := -div / nc / rho[k]
		for j := 0; j <= nj; j++ {
			for i := 0; i <= ni; i++ {
				u.AddVal(0.5*c*(xh[i]-xc), k, j, i)
				v.AddVal(0.5*c*(yh[j]-yc), k, j, i)
			}
		}
	}
}

// solveDivergenceFree corrects u and v so that the density-weighted
// divergence vanishes at every cell, holding w fixed. For each level it
// solves a discrete Poisson problem for a scalar correction potential
// with homogeneous Neumann conditions on the pad boundary, using
// matrix-free conjugate gradients; the CG residual is the remaining
// divergence, so the iteration runs until its maximum falls below
// relTol times the largest initial divergence. The domain-mean
// divergence must already be consistent with w (see
// correctMeanDivergence); the leftover mean is removed from the
// right-hand side and reported in the returned maximum.
func solveDivergenceFree(u, v, w *sparse.DenseArray, rho, rhoh, dzi []float64, dxi, dyi float64, relTol float64) error {
	ktot := u.Shape[0]
	nj, ni := u.Shape[1]-1, u.Shape[2]-1
	nc := nj * ni

	b := make([]float64, nc)
	phi := make([]float64, nc)
	r := make([]float64, nc)
	p := make([]float64, nc)
	ap := make([]float64, nc)

	for k := 0; k < ktot; k++ {
		for j := 0; j < nj; j++ {
			for i := 0; i < ni; i++ {
				b[j*ni+i] = divergence(u, v, w, rho, rhoh, dzi, dxi, dyi, k, j, i)
			}
		}
		scale := floats.Norm(b, math.Inf(1))
		if scale == 0 {
			continue
		}
		// The Neumann problem is only solvable for a mean-free right-hand
		// side; the ramp correction has already made the mean negligible.
		mean := floats.Sum(b) / float64(nc)
		floats.AddConst(-mean, b)

		tol := relTol * scale
		for i := range phi {
			phi[i] = 0
		}
		copy(r, b)
		copy(p, r)
		rsold := floats.Dot(r, r)
		converged := floats.Norm(r, math.Inf(1)) < tol
		for it := 0; it < 10*nc && !converged; it++ {
			applyPoisson(ap, p, rho[k], dxi, dyi, nj, ni)
			alpha := rsold / floats.Dot(p, ap)
			floats.AddScaled(phi, alpha, p)
			floats.AddScaled(r, -alpha, ap)
			if floats.Norm(r, math.Inf(1)) < tol {
				converged = true
				break
			}
			rsnew := floats.Dot(r, r)
			floats.Scale(rsnew/rsold, p)
			floats.Add(p, r)
			rsold = rsnew
		}
		if !converged {
			return fmt.Errorf("lesnest: divergence correction did not converge at level %d: residual %g, tolerance %g",
				k, floats.Norm(r, math.Inf(1)), tol)
		}
		// Apply the potential gradient to the horizontal velocities on
		// the faces interior to the solve region.
		for j := 0; j < nj; j++ {
			for i := 1; i < ni; i++ {
				u.AddVal((phi[j*ni+i]-phi[j*ni+i-1])*dxi, k, j, i)
			}
		}
		for j := 1; j < nj; j++ {
			for i := 0; i < ni; i++ {
				v.AddVal((phi[j*ni+i]-phi[(j-1)*ni+i])*dyi, k, j, i)
			}
		}
	}
	return nil
}

// applyPoisson computes dst = -rho * laplacian(phi) on the solve
// region with homogeneous Neumann boundaries, which is the negated
// change in cell divergence caused by adding the gradient of phi to
// the face velocities.
func applyPoisson(dst, phi []float64, rho, dxi, dyi float64, nj, ni int) {
	cx := rho * dxi * dxi
	cy := rho * dyi * dyi
	for j := 0; j < nj; j++ {
		for i := 0; i < ni; i++ {
			n := j*ni + i
			var lap float64
			if i > 0 {
				lap += cx * (phi[n-1] - phi[n])
			}
			if i < ni-1 {
				lap += cx * (phi[n+1] - phi[n])
			}
			if j > 0 {
				lap += cy * (phi[n-ni] - phi[n])
			}
			if j < nj-1 {
				lap += cy * (phi[n+ni] - phi[n])
			}
			dst[n] = -lap
		}
	}
}

// maxDivergence returns the largest absolute density-weighted
// divergence over all cells with complete face data, and its location.
func maxDivergence(u, v, w *sparse.DenseArray, rho, rhoh, dzi []float64, dxi, dyi float64) (div float64, kd, jd, id int) {
	ktot := u.Shape[0]
	nj, ni := u.Shape[1]-1, u.Shape[2]-1
	for k := 0; k < ktot; k++ {
		for j := 0; j < nj; j++ {
			for i := 0; i < ni; i++ {
				d := math.Abs(divergence(u, v, w, rho, rhoh, dzi, dxi, dyi, k, j, i))
				if d > div {
					div, kd, jd, id = d, k, j, i
				}
			}
		}
	}
	return div, kd, jd, id
}
