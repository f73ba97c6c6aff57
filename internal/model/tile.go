package model

import (
	"fmt"
	"strconv"
	"strings"
)

// BBox is a geographic bounding box in degrees.
type BBox struct {
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
}

// TileSpec is one tile of the global lat/lon partition. Tiles from the global
// grid are sizeTiles degrees on a side and aligned to lat=-90, lon=-180.
type TileSpec struct {
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
}

// BBox returns the tile's own bounds.
func (t TileSpec) BBox() BBox {
	return BBox{LatMin: t.LatMin, LatMax: t.LatMax, LonMin: t.LonMin, LonMax: t.LonMax}
}

// Padded returns the tile bounds extended by olap degrees on every side.
func (t TileSpec) Padded(olap float64) BBox {
	return BBox{
		LatMin: t.LatMin - olap,
		LatMax: t.LatMax + olap,
		LonMin: t.LonMin - olap,
		LonMax: t.LonMax + olap,
	}
}

// Touches reports whether the tile intersects the given bounding box. The test
// is inclusive on all four edges, so a box edge that falls exactly on a tile
// boundary matches the tiles on both sides of that boundary.
func (t TileSpec) Touches(b BBox) bool {
	return t.LatMax >= b.LatMin && t.LatMin <= b.LatMax &&
		t.LonMax >= b.LonMin && t.LonMin <= b.LonMax
}

// FileKey renders the four tile bounds as the fixed-order fragment embedded in
// every intermediate filename, e.g. "0_30_-30_0". The key is a derived,
// write-only artifact: tile identity travels as the TileSpec itself.
func (t TileSpec) FileKey() string {
	return formatCoord(t.LatMin) + "_" + formatCoord(t.LatMax) + "_" +
		formatCoord(t.LonMin) + "_" + formatCoord(t.LonMax)
}

func (t TileSpec) String() string {
	return fmt.Sprintf("tile[%g,%g]x[%g,%g]", t.LatMin, t.LatMax, t.LonMin, t.LonMax)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseFileKey recovers a TileSpec from the trailing four underscore-separated
// bounds of a filename fragment, e.g. "tile_out_0_30_-30_0" -> [0,30]x[-30,0].
func ParseFileKey(key string) (TileSpec, error) {
	parts := strings.Split(key, "_")
	if len(parts) < 4 {
		return TileSpec{}, fmt.Errorf("tile key %q: need 4 bounds", key)
	}
	parts = parts[len(parts)-4:]

	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return TileSpec{}, fmt.Errorf("tile key %q: bad bound %q: %w", key, p, err)
		}
		vals[i] = v
	}

	t := TileSpec{LatMin: vals[0], LatMax: vals[1], LonMin: vals[2], LonMax: vals[3]}
	if t.LatMin >= t.LatMax || t.LonMin >= t.LonMax {
		return TileSpec{}, fmt.Errorf("tile key %q: degenerate bounds", key)
	}
	return t, nil
}
