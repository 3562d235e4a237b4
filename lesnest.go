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

// Package lesnest prepares initial and lateral boundary conditions for a
// nested large-eddy simulation from coarse-resolution reanalysis data.
// It maps a Cartesian simulation grid onto geographic coordinates,
// interpolates reanalysis fields onto the staggered model grid, smooths
// them, and corrects the horizontal wind so the result is discretely
// divergence free with respect to the model's base-state density.
package lesnest

// Version is the version of this preprocessor.
const Version = "0.1.0"
