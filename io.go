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
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/sparse"
)

// Dtype selects the floating-point width of the binary output.
type Dtype int

const (
	// Float64 writes 8-byte little-endian floats.
	Float64 Dtype = iota
	// Float32 writes 4-byte little-endian floats.
	Float32
)

// ParseDtype converts a type name to a Dtype.
func ParseDtype(s string) (Dtype, error) {
	switch strings.ToLower(s) {
	case "float64", "f8", "":
		return Float64, nil
	case "float32", "f4":
		return Float32, nil
	}
	return 0, fmt.Errorf("lesnest: invalid dtype %q", s)
}

// region selects a box of a 3-d array: all bounds are half-open.
type region struct {
	kbeg, kend int
	jbeg, jend int
	ibeg, iend int
}

// fieldFileName builds the simulation model's restart-field file name:
// the field name, an optional suffix tag, and the time in seconds as a
// seven-digit extension.
func fieldFileName(dir, name, suffix string, seconds float64) string {
	if suffix != "" {
		name = name + "_" + suffix
	}
	return filepath.Join(dir, fmt.Sprintf("%s.%07d", name, int(seconds)))
}

// writeRegion writes the selected box of fld to path in the simulation
// model's restart-field convention: raw values in the requested
// precision, row-major with the vertical level as the slowest index, no
// header or metadata.
func writeRegion(path string, fld *sparse.DenseArray, r region, dtype Dtype) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("lesnest: while creating %s: %v", path, err)
	}
	w := bufio.NewWriter(f)
	for k := r.kbeg; k < r.kend; k++ {
		for j := r.jbeg; j < r.jend; j++ {
			for i := r.ibeg; i < r.iend; i++ {
				v := fld.Get(k, j, i)
				var err error
				if dtype == Float32 {
					err = binary.Write(w, binary.LittleEndian, float32(v))
				} else {
					err = binary.Write(w, binary.LittleEndian, v)
				}
				if err != nil {
					f.Close()
					return fmt.Errorf("lesnest: while writing %s: %v", path, err)
				}
			}
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("lesnest: while writing %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("lesnest: while closing %s: %v", path, err)
	}
	return nil
}

// interior returns the region of a padded 3-d field with the ghost
// padding stripped, keeping nk vertical levels.
func interior(fld *sparse.DenseArray, npad, nk int) region {
	return region{
		kbeg: 0, kend: nk,
		jbeg: npad, jend: fld.Shape[1] - npad,
		ibeg: npad, iend: fld.Shape[2] - npad,
	}
}

// lbcFaces are the lateral boundary faces in output order.
var lbcFaces = [4]string{"west", "east", "south", "north"}

// lbcRegion returns the boundary strip of the given face for a padded
// field of the given staggered family ("s", "u", "v", or "w"). The
// strip is nghost+nsponge cells deep, measured inward from the first
// ghost cell (the outermost pad cell is excluded: it exists only to
// keep the divergence correction well-defined). The u family gains one
// extra face on the west strip and the v family on the south strip,
// since those faces bound the first interior cell.
func lbcRegion(family, face string, fld *sparse.DenseArray, nghost, nsponge, nk int) region {
	nj, ni := fld.Shape[1], fld.Shape[2]
	depth := nghost + nsponge
	r := region{
		kbeg: 0, kend: nk,
		jbeg: 1, jend: nj - 1,
		ibeg: 1, iend: ni - 1,
	}
	switch face {
	case "west":
		r.iend = 1 + depth
		if family == "u" {
			r.iend++
		}
	case "east":
		r.ibeg = ni - 1 - depth
	case "south":
		r.jend = 1 + depth
		if family == "v" {
			r.jend++
		}
	case "north":
		r.jbeg = nj - 1 - depth
	default:
		panic(fmt.Errorf("lesnest: invalid boundary face %q", face))
	}
	return r
}

// family returns the staggered grid-point family of a field name.
func family(name string) string {
	switch name {
	case "u", "v", "w":
		return name
	}
	return "s"
}

// saveField writes the pad-stripped volume of fld and, if lbcs is
// true, the four lateral boundary strips, for the given field name and
// time.
func saveField(name string, fld *sparse.DenseArray, d *Domain, nk int, seconds float64, lbcs bool, suffix, dir string, dtype Dtype) error {
	if err := writeRegion(fieldFileName(dir, name, suffix, seconds), fld, interior(fld, d.NPad, nk), dtype); err != nil {
		return err
	}
	if !lbcs {
		return nil
	}
	fam := family(name)
	for _, face := range lbcFaces {
		path := fieldFileName(dir, name+"_"+face, suffix, seconds)
		if err := writeRegion(path, fld, lbcRegion(fam, face, fld, d.NGhost, d.NSponge, nk), dtype); err != nil {
			return err
		}
	}
	return nil
}
