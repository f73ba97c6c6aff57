package grid

import "fmt"

// Open loads a grid from a NetCDF file and normalizes it for the pipeline:
// the variable is renamed to name when one is given (dots replaced upstream),
// and a south-to-north latitude axis is flipped so lat always runs north to
// south. The Go analog of the original prep helpers.
func Open(path, name string) (*Grid, error) {
	g, err := ReadNetCDF(path)
	if err != nil {
		return nil, err
	}
	if name != "" {
		g.Name = name
	}
	return Normalize(g)
}

// Normalize enforces the lat-descending convention, flipping the grid when the
// file stored latitude ascending.
func Normalize(g *Grid) (*Grid, error) {
	if len(g.Lat) < 2 || g.Lat[0] > g.Lat[1] {
		return g, nil
	}
	nLat, nLon := len(g.Lat), len(g.Lon)
	lat := make([]float64, nLat)
	values := make([]float64, len(g.Values))
	for i := 0; i < nLat; i++ {
		src := nLat - 1 - i
		lat[i] = g.Lat[src]
		copy(values[i*nLon:(i+1)*nLon], g.Values[src*nLon:(src+1)*nLon])
	}
	flipped, err := New(g.Name, lat, g.Lon, values, g.DType)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", g.Name, err)
	}
	flipped.Attrs = g.Attrs
	return flipped, nil
}
