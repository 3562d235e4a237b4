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
	"os"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// ReanalysisFile describes where the pipeline input is found in a
// NetCDF file. Field variables must be 4-d (time, level, lat, lon) and
// already in the model's physical units.
type ReanalysisFile struct {
	Path string

	LonVar, LatVar, TimeVar string
	// VertVar is the 4-d vertical coordinate variable (heights or
	// pressures, per VertCoord).
	VertVar   string
	VertCoord VertCoord

	// Fields maps pipeline field names ("u", "v", "w", "thl", ...) to
	// NetCDF variable names.
	Fields map[string]string
}

// ReadReanalysis reads the variables described by rf into a
// ReanalysisInput. Latitudes stored north-to-south are flipped so both
// axes increase, as the interpolation requires.
func ReadReanalysis(rf ReanalysisFile) (*ReanalysisInput, error) {
	f, err := os.Open(rf.Path)
	if err != nil {
		return nil, fmt.Errorf("lesnest: while opening reanalysis file: %v", err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("lesnest: while reading reanalysis file %s: %v", rf.Path, err)
	}

	lon, err := readAxis(ff, rf.LonVar)
	if err != nil {
		return nil, err
	}
	lat, err := readAxis(ff, rf.LatVar)
	if err != nil {
		return nil, err
	}
	tAxis, err := readAxis(ff, rf.TimeVar)
	if err != nil {
		return nil, err
	}
	vert, err := readVar4(ff, rf.VertVar)
	if err != nil {
		return nil, err
	}

	flipLat := len(lat) > 1 && lat[1] < lat[0]
	if flipLat {
		for i, j := 0, len(lat)-1; i < j; i, j = i+1, j-1 {
			lat[i], lat[j] = lat[j], lat[i]
		}
		flipLatAxis(vert)
	}

	in := &ReanalysisInput{
		Fields:    make(map[string]*sparse.DenseArray, len(rf.Fields)),
		Lon:       lon,
		Lat:       lat,
		Vert:      vert,
		VertCoord: rf.VertCoord,
		Time:      tAxis,
	}
	for name, ncVar := range rf.Fields {
		fld, err := readVar4(ff, ncVar)
		if err != nil {
			return nil, err
		}
		if flipLat {
			flipLatAxis(fld)
		}
		in.Fields[name] = fld
	}
	return in, nil
}

// readVar4 reads a 4-d variable into a DenseArray.
func readVar4(ff *cdf.File, varName string) (*sparse.DenseArray, error) {
	dims := ff.Header.Lengths(varName)
	if len(dims) == 0 {
		return nil, fmt.Errorf("lesnest: read netcdf: variable %v not in file", varName)
	}
	if len(dims) != 4 {
		return nil, fmt.Errorf("lesnest: read netcdf: variable %v has %d dimensions, want 4 (time, level, lat, lon)", varName, len(dims))
	}
	r := ff.Reader(varName, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("lesnest: read netcdf variable %s: %v", varName, err)
	}
	data := sparse.ZerosDense(dims...)
	if err := fillFloat64(data.Elements, buf); err != nil {
		return nil, fmt.Errorf("lesnest: read netcdf variable %s: %v", varName, err)
	}
	return data, nil
}

// readAxis reads a 1-d coordinate variable.
func readAxis(ff *cdf.File, varName string) ([]float64, error) {
	dims := ff.Header.Lengths(varName)
	if len(dims) == 0 {
		return nil, fmt.Errorf("lesnest: read netcdf: variable %v not in file", varName)
	}
	if len(dims) != 1 {
		return nil, fmt.Errorf("lesnest: read netcdf: axis variable %v has %d dimensions, want 1", varName, len(dims))
	}
	r := ff.Reader(varName, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("lesnest: read netcdf variable %s: %v", varName, err)
	}
	out := make([]float64, dims[0])
	if err := fillFloat64(out, buf); err != nil {
		return nil, fmt.Errorf("lesnest: read netcdf variable %s: %v", varName, err)
	}
	return out, nil
}

func fillFloat64(dst []float64, buf interface{}) error {
	switch b := buf.(type) {
	case []float32:
		for i, v := range b {
			dst[i] = float64(v)
		}
	case []float64:
		copy(dst, b)
	case []int32:
		for i, v := range b {
			dst[i] = float64(v)
		}
	default:
		return fmt.Errorf("unsupported data type %T", buf)
	}
	return nil
}

// flipLatAxis reverses the latitude (third) dimension of a 4-d array
// in place.
func flipLatAxis(arr *sparse.DenseArray) {
	nt, nk, nj, ni := arr.Shape[0], arr.Shape[1], arr.Shape[2], arr.Shape[3]
	for t := 0; t < nt; t++ {
		for k := 0; k < nk; k++ {
			base := (t*nk + k) * nj * ni
			for j, jr := 0, nj-1; j < jr; j, jr = j+1, jr-1 {
				r1 := arr.Elements[base+j*ni : base+(j+1)*ni]
				r2 := arr.Elements[base+jr*ni : base+(jr+1)*ni]
				for i := range r1 {
					r1[i], r2[i] = r2[i], r1[i]
				}
			}
		}
	}
}
