package grid

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
)

// WriteArcASCII persists g as an ESRI ASCII grid, the single-band raster
// export. The format carries one uniform cell size, so it refuses grids whose
// lat and lon spacing differ.
func WriteArcASCII(g *Grid, path string) error {
	dLat, dLon, err := g.cellSizes()
	if err != nil {
		return err
	}
	if math.Abs(dLat-dLon) > 1e-6 {
		return fmt.Errorf("grid %s: raster export needs square cells, got dlat=%g dlon=%g",
			g.Name, dLat, dLon)
	}
	cell := dLon

	nodata := "-9999"
	if fv, ok := g.Attrs["_FillValue"]; ok {
		nodata = fv
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("raster %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "ncols %d\n", len(g.Lon))
	fmt.Fprintf(w, "nrows %d\n", len(g.Lat))
	// Coordinates are cell centers; the header wants the lower-left corner.
	fmt.Fprintf(w, "xllcorner %s\n", formatValue(g.Lon[0]-cell/2))
	fmt.Fprintf(w, "yllcorner %s\n", formatValue(g.Lat[len(g.Lat)-1]-cell/2))
	fmt.Fprintf(w, "cellsize %s\n", formatValue(cell))
	fmt.Fprintf(w, "NODATA_value %s\n", nodata)

	// Rows run north to south, matching the lat vector.
	for i := range g.Lat {
		for j := range g.Lon {
			if j > 0 {
				w.WriteByte(' ')
			}
			v := g.At(i, j)
			if math.IsNaN(v) {
				w.WriteString(nodata)
			} else {
				w.WriteString(formatValue(v))
			}
		}
		w.WriteByte('\n')
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("raster %s: %w", path, err)
	}
	return nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
