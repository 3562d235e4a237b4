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

// Package basestate computes the hydrostatic reference pressure and
// density profiles of an anelastic simulation model. The discretization
// follows the model's own base-state solver: the hydrostatic relation
// is integrated upward in Exner form level by level, with a saturation
// adjustment at every level for the moist variant. The solver is
// generic over the floating-point width because the host model's base
// state is computed in a specific precision and bitwise consistency
// matters.
package basestate

import (
	"fmt"
	"math"
)

// Float constrains the floating-point width of a base-state
// computation.
type Float interface {
	~float32 | ~float64
}

// Physical constants matching the host model.
const (
	grav = 9.81     // gravitational acceleration [m/s2]
	rd   = 287.04   // gas constant for dry air [J/kg/K]
	rv   = 461.5    // gas constant for water vapor [J/kg/K]
	cp   = 1005.    // specific heat of air at constant pressure [J/kg/K]
	lv   = 2.501e6  // latent heat of vaporization [J/kg]
	p00  = 1.e5     // reference pressure [Pa]
	t0   = 273.15   // freezing point [K]
	ep   = rd / rv
	rdcp = rd / cp
)

// Saturation adjustment iteration limits. The tolerance is relative on
// the iterated temperature.
const (
	satTolerance = 1.e-5
	satMaxIter   = 100
)

// Profile is a hydrostatic base-state profile at full and half levels.
// It is computed once and never mutated afterward.
type Profile[T Float] struct {
	P, Ph     []T // pressure [Pa]
	Rho, Rhoh []T // density [kg/m3]
	Thv, Thvh []T // virtual potential temperature [K]
	Ex, Exh   []T // Exner function [-]
}

// Dry computes the hydrostatic base state for a dry atmosphere from a
// liquid-water potential temperature profile thl [K] at the full levels
// z [m], a surface pressure pbot [Pa], and the half levels zh [m]
// (length len(z)+1, zh[0]=0, zh[len(z)]=domain top).
func Dry[T Float](thl []T, pbot T, z, zh []T) (*Profile[T], error) {
	return solve(thl, nil, pbot, z, zh)
}

// Moist computes the hydrostatic base state for a moist atmosphere from
// liquid-water potential temperature thl [K] and total water mixing
// ratio qt [kg/kg] profiles. As qt tends to zero the result converges
// to the dry solution.
func Moist[T Float](thl, qt []T, pbot T, z, zh []T) (*Profile[T], error) {
	if len(qt) != len(thl) {
		return nil, fmt.Errorf("basestate: thl and qt length mismatch: %d != %d", len(thl), len(qt))
	}
	return solve(thl, qt, pbot, z, zh)
}

// solve integrates the hydrostatic relation bottom to top. qt may be
// nil for the dry variant. Each level's pressure follows from the
// virtual potential temperature of the level below, so the integration
// order is load-bearing.
func solve[T Float](thl, qt []T, pbot T, z, zh []T) (*Profile[T], error) {
	n := len(thl)
	if n < 2 {
		return nil, fmt.Errorf("basestate: need at least 2 levels, got %d", n)
	}
	if len(z) != n || len(zh) != n+1 {
		return nil, fmt.Errorf("basestate: grid size mismatch: len(z)=%d, len(zh)=%d for %d levels", len(z), len(zh), n)
	}
	if pbot <= 0 {
		return nil, fmt.Errorf("basestate: surface pressure must be positive: %g", float64(pbot))
	}

	b := &Profile[T]{
		P: make([]T, n), Ph: make([]T, n+1),
		Rho: make([]T, n), Rhoh: make([]T, n+1),
		Thv: make([]T, n), Thvh: make([]T, n+1),
		Ex: make([]T, n), Exh: make([]T, n+1),
	}

	qtAt := func(k int) T {
		if qt == nil {
			return 0
		}
		return qt[k]
	}
	// Surface and top values are extrapolated from the two adjacent
	// full levels; interior half levels are centered averages. This
	// matches the host model's second-order grid.
	thlSurf := thl[0] - z[0]*(thl[1]-thl[0])/(z[1]-z[0])
	thlTop := thl[n-1] + (zh[n]-z[n-1])*(thl[n-1]-thl[n-2])/(z[n-1]-z[n-2])
	var qtSurf, qtTop T
	if qt != nil {
		qtSurf = qt[0] - z[0]*(qt[1]-qt[0])/(z[1]-z[0])
		qtTop = qt[n-1] + (zh[n]-z[n-1])*(qt[n-1]-qt[n-2])/(z[n-1]-z[n-2])
	}

	b.Ph[0] = pbot
	b.Exh[0] = exner(pbot)
	r := satAdjust(thlSurf, qtSurf, b.Ph[0], b.Exh[0])
	if !r.converged {
		return nil, &NonConvergenceError{Level: -1, Height: 0, Iterations: r.iterations}
	}
	b.Thvh[0] = virtualTheta(b.Exh[0], thlSurf, qtSurf, r.ql)
	b.Rhoh[0] = b.Ph[0] / (rd * b.Exh[0] * b.Thvh[0])

	for k := 0; k < n; k++ {
		// Full level from the half level below.
		b.P[k] = hydrostatic(b.Ph[k], z[k]-zh[k], b.Thvh[k])
		b.Ex[k] = exner(b.P[k])
		r = satAdjust(thl[k], qtAt(k), b.P[k], b.Ex[k])
		if !r.converged {
			return nil, &NonConvergenceError{Level: k, Height: float64(z[k]), Iterations: r.iterations}
		}
		b.Thv[k] = virtualTheta(b.Ex[k], thl[k], qtAt(k), r.ql)
		b.Rho[k] = b.P[k] / (rd * b.Ex[k] * b.Thv[k])

		// Half level above from the full level.
		b.Ph[k+1] = hydrostatic(b.P[k], zh[k+1]-z[k], b.Thv[k])
		b.Exh[k+1] = exner(b.Ph[k+1])
		var thlh, qth T
		if k+1 == n {
			thlh, qth = thlTop, qtTop
		} else {
			thlh = (thl[k] + thl[k+1]) / 2
			if qt != nil {
				qth = (qt[k] + qt[k+1]) / 2
			}
		}
		r = satAdjust(thlh, qth, b.Ph[k+1], b.Exh[k+1])
		if !r.converged {
			return nil, &NonConvergenceError{Level: k, Height: float64(zh[k+1]), Iterations: r.iterations}
		}
		b.Thvh[k+1] = virtualTheta(b.Exh[k+1], thlh, qth, r.ql)
		b.Rhoh[k+1] = b.Ph[k+1] / (rd * b.Exh[k+1] * b.Thvh[k+1])

		if b.P[k] <= 0 || b.Ph[k+1] <= 0 {
			return nil, fmt.Errorf("basestate: non-positive pressure at level %d; check the input profiles", k)
		}
	}
	return b, nil
}

// NonConvergenceError reports a saturation adjustment that exhausted
// its iteration budget. Level -1 denotes the surface.
type NonConvergenceError struct {
	Level      int
	Height     float64
	Iterations int
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("basestate: saturation adjustment did not converge at level %d (z=%g m) after %d iterations",
		e.Level, e.Height, e.Iterations)
}

// hydrostatic integrates the hydrostatic relation in Exner form over a
// layer of thickness dz with constant virtual potential temperature.
func hydrostatic[T Float](p, dz, thv T) T {
	return powT(powT(p, T(rdcp))-T(grav)*powT(T(p00), T(rdcp))*dz/(T(cp)*thv), T(1/rdcp))
}

// exner is the Exner function (p/p0)^(Rd/cp).
func exner[T Float](p T) T {
	return powT(p/T(p00), T(rdcp))
}

// virtualTheta is the virtual potential temperature of a partially
// condensed air parcel.
func virtualTheta[T Float](exn, thl, qt, ql T) T {
	return (thl + T(lv)*ql/(T(cp)*exn)) * (1 - (1-T(rv/rd))*qt - T(rv/rd)*ql)
}

// esat is the saturation vapor pressure over liquid water [Pa],
// evaluated with the polynomial fit used by the host model.
func esat[T Float](t T) T {
	const (
		c0 = 0.6105851e+03
		c1 = 0.4440316e+02
		c2 = 0.1430341e+01
		c3 = 0.2641412e-01
		c4 = 0.2995057e-03
		c5 = 0.2031998e-05
		c6 = 0.6936113e-08
		c7 = 0.2564861e-11
		c8 = -0.3704404e-13
	)
	x := t - T(t0)
	if x < -80 {
		x = -80
	}
	return T(c0) + x*(T(c1)+x*(T(c2)+x*(T(c3)+x*(T(c4)+x*(T(c5)+x*(T(c6)+x*(T(c7)+x*T(c8))))))))
}

// qsat is the saturation specific humidity [kg/kg] at pressure p and
// temperature t.
func qsat[T Float](p, t T) T {
	es := esat(t)
	return T(ep) * es / (p - (1-T(ep))*es)
}

// satResult is the outcome of a saturation adjustment: either a
// converged liquid water content or an exhausted iteration budget.
type satResult[T Float] struct {
	ql         T
	iterations int
	converged  bool
}

// satAdjust partitions total water qt between vapor and liquid in
// thermodynamic equilibrium at pressure p, iterating temperature with
// bounded Newton steps. An unsaturated parcel converges immediately.
func satAdjust[T Float](thl, qt, p, exn T) satResult[T] {
	tl := thl * exn // liquid water temperature
	if qt-qsat(p, tl) <= 0 {
		return satResult[T]{ql: 0, converged: true}
	}
	tnr := tl
	for i := 0; i < satMaxIter; i++ {
		tnrOld := tnr
		qs := qsat(p, tnr)
		f := tnr - tl - T(lv/cp)*(qt-qs)
		fPrime := 1 + T(lv)*T(lv)*qs/(T(rv)*T(cp)*tnr*tnr)
		tnr -= f / fPrime
		if absT(tnr-tnrOld)/tnrOld < T(satTolerance) {
			ql := qt - qsat(p, tnr)
			if ql < 0 {
				ql = 0
			}
			return satResult[T]{ql: ql, iterations: i + 1, converged: true}
		}
	}
	return satResult[T]{iterations: satMaxIter}
}

func powT[T Float](x, y T) T {
	return T(math.Pow(float64(x), float64(y)))
}

func absT[T Float](x T) T {
	if x < 0 {
		return -x
	}
	return x
}
