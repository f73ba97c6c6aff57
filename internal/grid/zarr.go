package grid

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// zarrChunk caps chunk edge length; large outputs are split so no single chunk
// file holds more than zarrChunk^2 cells.
const zarrChunk = 5000

// WriteZarr persists g as a zarr v2 directory store rooted at dir: a group
// with three arrays (lat, lon and the data variable), raw little-endian
// uncompressed chunks. An existing store at dir is replaced.
func WriteZarr(g *Grid, dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("zarr %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("zarr %s: %w", dir, err)
	}
	if err := writeJSON(filepath.Join(dir, ".zgroup"), map[string]interface{}{
		"zarr_format": 2,
	}); err != nil {
		return err
	}

	if err := writeZarr1D(filepath.Join(dir, "lat"), g.Lat); err != nil {
		return err
	}
	if err := writeZarr1D(filepath.Join(dir, "lon"), g.Lon); err != nil {
		return err
	}
	return writeZarr2D(filepath.Join(dir, g.Name), g)
}

func zarrDtype(dtype string) string {
	switch dtype {
	case DTypeFloat32:
		return "<f4"
	case DTypeInt32:
		return "<i4"
	case DTypeInt16:
		return "<i2"
	default:
		return "<f8"
	}
}

func writeZarr1D(dir string, vals []float64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("zarr %s: %w", dir, err)
	}
	meta := map[string]interface{}{
		"zarr_format": 2,
		"shape":       []int{len(vals)},
		"chunks":      []int{len(vals)},
		"dtype":       "<f8",
		"compressor":  nil,
		"filters":     nil,
		"fill_value":  nil,
		"order":       "C",
	}
	if err := writeJSON(filepath.Join(dir, ".zarray"), meta); err != nil {
		return err
	}
	raw := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
	}
	return writeRaw(filepath.Join(dir, "0"), raw)
}

func writeZarr2D(dir string, g *Grid) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("zarr %s: %w", dir, err)
	}
	nLat, nLon := len(g.Lat), len(g.Lon)
	chunkLat := min(nLat, zarrChunk)
	chunkLon := min(nLon, zarrChunk)

	meta := map[string]interface{}{
		"zarr_format": 2,
		"shape":       []int{nLat, nLon},
		"chunks":      []int{chunkLat, chunkLon},
		"dtype":       zarrDtype(g.DType),
		"compressor":  nil,
		"filters":     nil,
		"fill_value":  nil,
		"order":       "C",
	}
	if fv, ok := g.Attrs["_FillValue"]; ok {
		if f, err := strconv.ParseFloat(fv, 64); err == nil {
			meta["fill_value"] = f
		}
	}
	if err := writeJSON(filepath.Join(dir, ".zarray"), meta); err != nil {
		return err
	}

	attrs := map[string]interface{}{"_ARRAY_DIMENSIONS": []string{"lat", "lon"}}
	for k, v := range g.Attrs {
		attrs[k] = v
	}
	if err := writeJSON(filepath.Join(dir, ".zattrs"), attrs); err != nil {
		return err
	}

	for ci := 0; ci*chunkLat < nLat; ci++ {
		for cj := 0; cj*chunkLon < nLon; cj++ {
			raw, err := encodeChunk(g, ci*chunkLat, cj*chunkLon, chunkLat, chunkLon)
			if err != nil {
				return fmt.Errorf("zarr %s: %w", dir, err)
			}
			name := fmt.Sprintf("%d.%d", ci, cj)
			if err := writeRaw(filepath.Join(dir, name), raw); err != nil {
				return err
			}
		}
	}
	return nil
}

// encodeChunk serializes one chunk in C order. Cells past the array edge are
// written as the dtype's zero, as zarr expects full-size edge chunks.
func encodeChunk(g *Grid, i0, j0, chunkLat, chunkLon int) ([]byte, error) {
	size := 8
	switch g.DType {
	case DTypeFloat32, DTypeInt32:
		size = 4
	case DTypeInt16:
		size = 2
	}
	raw := make([]byte, chunkLat*chunkLon*size)
	for i := 0; i < chunkLat; i++ {
		for j := 0; j < chunkLon; j++ {
			var v float64
			if i0+i < len(g.Lat) && j0+j < len(g.Lon) {
				v = g.At(i0+i, j0+j)
			}
			off := (i*chunkLon + j) * size
			switch g.DType {
			case DTypeFloat32:
				binary.LittleEndian.PutUint32(raw[off:], math.Float32bits(float32(v)))
			case DTypeInt32:
				binary.LittleEndian.PutUint32(raw[off:], uint32(int32(math.Round(v))))
			case DTypeInt16:
				binary.LittleEndian.PutUint16(raw[off:], uint16(int16(math.Round(v))))
			default:
				binary.LittleEndian.PutUint64(raw[off:], math.Float64bits(v))
			}
		}
	}
	return raw, nil
}

func writeJSON(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("zarr %s: %w", path, err)
	}
	return writeRaw(path, raw)
}

func writeRaw(path string, raw []byte) error {
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("zarr %s: %w", path, err)
	}
	return nil
}
