// Package grid holds the in-memory representation of a regular lat/lon data
// field and the file codecs the pipeline exchanges with the external remap
// tool: NetCDF classic for tile slices and remap outputs, plus the zarr and
// ASCII-raster export writers.
package grid

import (
	"fmt"
	"math"

	"regrid-pipeline/internal/model"
)

// coordEps absorbs float noise when comparing coordinate values that round-trip
// through file headers.
const coordEps = 1e-9

// Grid is a single-variable 2D field on a regular lat/lon grid. Lat runs north
// to south (descending), lon west to east (ascending), matching the convention
// of the datasets this pipeline was built for. Values are row-major
// [lat][lon]; missing cells are NaN.
type Grid struct {
	Name   string
	Lat    []float64
	Lon    []float64
	Values []float64
	DType  string // one of the DType* constants, the on-disk value type
	Attrs  map[string]string
}

// New creates a grid and checks the coordinate conventions.
func New(name string, lat, lon, values []float64, dtype string) (*Grid, error) {
	if len(lat) == 0 || len(lon) == 0 {
		return nil, fmt.Errorf("grid %s: empty coordinate vector", name)
	}
	if len(values) != len(lat)*len(lon) {
		return nil, fmt.Errorf("grid %s: %d values for %dx%d cells",
			name, len(values), len(lat), len(lon))
	}
	for i := 1; i < len(lat); i++ {
		if lat[i] >= lat[i-1] {
			return nil, fmt.Errorf("grid %s: lat must be strictly descending", name)
		}
	}
	for i := 1; i < len(lon); i++ {
		if lon[i] <= lon[i-1] {
			return nil, fmt.Errorf("grid %s: lon must be strictly ascending", name)
		}
	}
	if !ValidDType(dtype) {
		return nil, fmt.Errorf("grid %s: unknown dtype %q", name, dtype)
	}
	return &Grid{Name: name, Lat: lat, Lon: lon, Values: values, DType: dtype,
		Attrs: map[string]string{}}, nil
}

// At returns the value at lat index i, lon index j.
func (g *Grid) At(i, j int) float64 { return g.Values[i*len(g.Lon)+j] }

// Set assigns the value at lat index i, lon index j.
func (g *Grid) Set(i, j int, v float64) { g.Values[i*len(g.Lon)+j] = v }

// BBox returns the bounds spanned by the coordinate vectors.
func (g *Grid) BBox() model.BBox {
	return model.BBox{
		LatMin: g.Lat[len(g.Lat)-1],
		LatMax: g.Lat[0],
		LonMin: g.Lon[0],
		LonMax: g.Lon[len(g.Lon)-1],
	}
}

// Subset selects the cells whose coordinates fall inside b, inclusive on all
// edges. Returns an error when the window contains no cells.
func (g *Grid) Subset(b model.BBox) (*Grid, error) {
	latIdx := indexRange(g.Lat, b.LatMin, b.LatMax)
	lonIdx := indexRange(g.Lon, b.LonMin, b.LonMax)
	if len(latIdx) == 0 || len(lonIdx) == 0 {
		return nil, fmt.Errorf("grid %s: no cells in window lat[%g,%g] lon[%g,%g]",
			g.Name, b.LatMin, b.LatMax, b.LonMin, b.LonMax)
	}

	lat := make([]float64, len(latIdx))
	lon := make([]float64, len(lonIdx))
	values := make([]float64, len(latIdx)*len(lonIdx))
	for a, i := range latIdx {
		lat[a] = g.Lat[i]
		for c, j := range lonIdx {
			lon[c] = g.Lon[j]
			values[a*len(lonIdx)+c] = g.At(i, j)
		}
	}

	sub := &Grid{Name: g.Name, Lat: lat, Lon: lon, Values: values, DType: g.DType,
		Attrs: map[string]string{}}
	for k, v := range g.Attrs {
		sub.Attrs[k] = v
	}
	return sub, nil
}

// indexRange returns the indices of coords within [lo, hi], preserving the
// vector's own order.
func indexRange(coords []float64, lo, hi float64) []int {
	var idx []int
	for i, v := range coords {
		if v >= lo-coordEps && v <= hi+coordEps {
			idx = append(idx, i)
		}
	}
	return idx
}

// CountMissing reports how many cells are NaN.
func (g *Grid) CountMissing() int {
	n := 0
	for _, v := range g.Values {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// cellSizes returns the absolute coordinate step in lat and lon, or an error
// when either vector is irregular. Needed by the raster export, which can only
// express a single uniform cell size.
func (g *Grid) cellSizes() (dLat, dLon float64, err error) {
	if len(g.Lat) < 2 || len(g.Lon) < 2 {
		return 0, 0, fmt.Errorf("grid %s: too small to derive cell size", g.Name)
	}
	dLat = g.Lat[0] - g.Lat[1]
	for i := 1; i < len(g.Lat); i++ {
		if math.Abs((g.Lat[i-1]-g.Lat[i])-dLat) > 1e-6 {
			return 0, 0, fmt.Errorf("grid %s: irregular lat spacing", g.Name)
		}
	}
	dLon = g.Lon[1] - g.Lon[0]
	for i := 1; i < len(g.Lon); i++ {
		if math.Abs((g.Lon[i]-g.Lon[i-1])-dLon) > 1e-6 {
			return 0, 0, fmt.Errorf("grid %s: irregular lon spacing", g.Name)
		}
	}
	return dLat, dLon, nil
}
