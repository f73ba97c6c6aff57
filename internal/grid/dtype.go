package grid

import "math"

// Value types a grid can carry on disk. In memory everything is float64; the
// dtype records what the source file held so the final output can be cast back.
const (
	DTypeFloat64 = "float64"
	DTypeFloat32 = "float32"
	DTypeInt32   = "int32"
	DTypeInt16   = "int16"
)

// ValidDType reports whether name is a supported value type.
func ValidDType(name string) bool {
	switch name {
	case DTypeFloat64, DTypeFloat32, DTypeInt32, DTypeInt16:
		return true
	}
	return false
}

// CastValue coerces v to the representable range and precision of dtype.
// Integer types round half away from zero; float32 goes through a 32-bit
// round trip. NaN passes through untouched for float types and is the caller's
// problem for integer types (finalize replaces NaN before casting).
func CastValue(v float64, dtype string) float64 {
	if math.IsNaN(v) {
		return v
	}
	switch dtype {
	case DTypeFloat32:
		return float64(float32(v))
	case DTypeInt32:
		return float64(int32(math.Round(v)))
	case DTypeInt16:
		return float64(int16(math.Round(v)))
	default:
		return v
	}
}
