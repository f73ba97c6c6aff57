package grid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
)

// Minimal NetCDF classic (CDF-1) codec. The pipeline only needs the subset the
// external remap tool consumes and produces: two coordinate vectors named lat
// and lon, one 2D data variable, and flat attributes. Big-endian throughout,
// no record dimension.

const (
	ncDimension = 0x0A
	ncVariable  = 0x0B
	ncAttribute = 0x0C

	ncChar   = 2
	ncShort  = 3
	ncInt    = 4
	ncFloat  = 5
	ncDouble = 6
)

var ncTypeSize = map[int32]int{ncChar: 1, ncShort: 2, ncInt: 4, ncFloat: 4, ncDouble: 8}

func ncTypeFor(dtype string) int32 {
	switch dtype {
	case DTypeFloat32:
		return ncFloat
	case DTypeInt32:
		return ncInt
	case DTypeInt16:
		return ncShort
	default:
		return ncDouble
	}
}

func dtypeForNC(t int32) (string, error) {
	switch t {
	case ncFloat:
		return DTypeFloat32, nil
	case ncInt:
		return DTypeInt32, nil
	case ncShort:
		return DTypeInt16, nil
	case ncDouble:
		return DTypeFloat64, nil
	}
	return "", fmt.Errorf("netcdf: unsupported variable type %d", t)
}

// WriteNetCDF persists g as a CDF-1 file at path, overwriting any existing
// file. Variable attributes from g.Attrs are written as character attributes,
// except _FillValue which is written as a numeric attribute of the variable's
// own type.
func WriteNetCDF(g *Grid, path string) error {
	nLat, nLon := len(g.Lat), len(g.Lon)
	dataType := ncTypeFor(g.DType)

	latBytes := encodeDoubles(g.Lat)
	lonBytes := encodeDoubles(g.Lon)
	dataBytes, err := encodeTyped(g.Values, dataType)
	if err != nil {
		return fmt.Errorf("netcdf %s: %w", path, err)
	}

	// Header with zero begins first, to learn its length.
	header := buildHeader(g, nLat, nLon, dataType, [3]int32{0, 0, 0},
		[3]int32{int32(len(latBytes)), int32(len(lonBytes)), int32(len(dataBytes))})

	begin := int32(len(header))
	begins := [3]int32{begin, begin + int32(len(latBytes)), begin + int32(len(latBytes)+len(lonBytes))}
	header = buildHeader(g, nLat, nLon, dataType, begins,
		[3]int32{int32(len(latBytes)), int32(len(lonBytes)), int32(len(dataBytes))})

	var buf bytes.Buffer
	buf.Write(header)
	buf.Write(latBytes)
	buf.Write(lonBytes)
	buf.Write(dataBytes)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("netcdf %s: %w", path, err)
	}
	return nil
}

func buildHeader(g *Grid, nLat, nLon int, dataType int32, begins, vsizes [3]int32) []byte {
	var b bytes.Buffer
	b.WriteString("CDF\x01")
	writeInt32(&b, 0) // numrecs

	// dim_list
	writeInt32(&b, ncDimension)
	writeInt32(&b, 2)
	writeName(&b, "lat")
	writeInt32(&b, int32(nLat))
	writeName(&b, "lon")
	writeInt32(&b, int32(nLon))

	// gatt_list: absent
	writeInt32(&b, 0)
	writeInt32(&b, 0)

	// var_list
	writeInt32(&b, ncVariable)
	writeInt32(&b, 3)

	writeVarHeader(&b, "lat", []int32{0}, map[string]string{
		"units": "degrees_north", "standard_name": "latitude",
	}, ncDouble, vsizes[0], begins[0], 0, math.NaN())

	writeVarHeader(&b, "lon", []int32{1}, map[string]string{
		"units": "degrees_east", "standard_name": "longitude",
	}, ncDouble, vsizes[1], begins[1], 0, math.NaN())

	fill := math.NaN()
	attrs := map[string]string{}
	for k, v := range g.Attrs {
		if k == "_FillValue" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				fill = f
				continue
			}
		}
		attrs[k] = v
	}
	writeVarHeader(&b, g.Name, []int32{0, 1}, attrs, dataType, vsizes[2], begins[2], dataType, fill)

	return b.Bytes()
}

func writeVarHeader(b *bytes.Buffer, name string, dimids []int32, attrs map[string]string,
	ncType, vsize, begin, fillType int32, fill float64) {
	writeName(b, name)
	writeInt32(b, int32(len(dimids)))
	for _, d := range dimids {
		writeInt32(b, d)
	}

	nAttrs := len(attrs)
	hasFill := !math.IsNaN(fill)
	if hasFill {
		nAttrs++
	}
	if nAttrs == 0 {
		writeInt32(b, 0)
		writeInt32(b, 0)
	} else {
		writeInt32(b, ncAttribute)
		writeInt32(b, int32(nAttrs))
		keys := make([]string, 0, len(attrs))
		for k := range attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeName(b, k)
			writeInt32(b, ncChar)
			writeInt32(b, int32(len(attrs[k])))
			b.WriteString(attrs[k])
			pad(b, len(attrs[k]))
		}
		if hasFill {
			writeName(b, "_FillValue")
			writeInt32(b, fillType)
			writeInt32(b, 1)
			raw, _ := encodeTyped([]float64{fill}, fillType)
			b.Write(raw)
		}
	}

	writeInt32(b, ncType)
	writeInt32(b, vsize)
	writeInt32(b, begin)
}

// ReadNetCDF loads a CDF-1 file written by this codec or by the external remap
// tool. It expects lat and lon coordinate variables and exactly one 2D data
// variable on (lat, lon); any other variables (e.g. a carried-over coordinate
// reference like spatial_ref) are ignored.
func ReadNetCDF(path string) (*Grid, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("netcdf %s: %w", path, err)
	}
	r := &ncReader{buf: raw, path: path}
	return r.parse()
}

type ncVar struct {
	name   string
	dimids []int32
	attrs  map[string]string
	fill   float64
	hasFill bool
	ncType int32
	begin  int32
}

type ncReader struct {
	buf  []byte
	off  int
	path string
}

func (r *ncReader) parse() (*Grid, error) {
	if len(r.buf) < 8 || string(r.buf[:3]) != "CDF" || r.buf[3] != 1 {
		return nil, fmt.Errorf("netcdf %s: not a CDF-1 file", r.path)
	}
	r.off = 8 // magic + numrecs

	dims, err := r.readDims()
	if err != nil {
		return nil, err
	}
	if err := r.skipAttrs(); err != nil { // global attrs
		return nil, err
	}
	vars, err := r.readVars()
	if err != nil {
		return nil, err
	}

	var latVar, lonVar, dataVar *ncVar
	for i := range vars {
		v := &vars[i]
		switch {
		case v.name == "lat" && len(v.dimids) == 1:
			latVar = v
		case v.name == "lon" && len(v.dimids) == 1:
			lonVar = v
		case len(v.dimids) == 2:
			dataVar = v
		}
	}
	if latVar == nil || lonVar == nil || dataVar == nil {
		return nil, fmt.Errorf("netcdf %s: need lat, lon and one 2D variable", r.path)
	}

	lat, err := r.readValues(latVar, dims)
	if err != nil {
		return nil, err
	}
	lon, err := r.readValues(lonVar, dims)
	if err != nil {
		return nil, err
	}
	values, err := r.readValues(dataVar, dims)
	if err != nil {
		return nil, err
	}

	dtype, err := dtypeForNC(dataVar.ncType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.path, err)
	}
	if len(values) != len(lat)*len(lon) {
		return nil, fmt.Errorf("netcdf %s: %d values for %dx%d cells",
			r.path, len(values), len(lat), len(lon))
	}
	// Axis orientation is not enforced here; Normalize flips ascending-lat
	// files into the pipeline convention.
	g := &Grid{Name: dataVar.name, Lat: lat, Lon: lon, Values: values,
		DType: dtype, Attrs: map[string]string{}}
	for k, v := range dataVar.attrs {
		g.Attrs[k] = v
	}
	if dataVar.hasFill {
		g.Attrs["_FillValue"] = strconv.FormatFloat(dataVar.fill, 'g', -1, 64)
	}
	return g, nil
}

func (r *ncReader) readDims() ([]int32, error) {
	tag, n, err := r.readTag(ncDimension)
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	dims := make([]int32, n)
	for i := range dims {
		if _, err := r.readString(); err != nil {
			return nil, err
		}
		dims[i], err = r.readInt32()
		if err != nil {
			return nil, err
		}
	}
	return dims, nil
}

func (r *ncReader) skipAttrs() error {
	_, err := r.readAttrs()
	return err
}

func (r *ncReader) readAttrs() (map[string]interface{}, error) {
	tag, n, err := r.readTag(ncAttribute)
	if err != nil {
		return nil, err
	}
	attrs := map[string]interface{}{}
	if tag == 0 {
		return attrs, nil
	}
	for i := int32(0); i < n; i++ {
		name, err := r.readString()
		if err != nil {
			return nil, err
		}
		ncType, err := r.readInt32()
		if err != nil {
			return nil, err
		}
		nelems, err := r.readInt32()
		if err != nil {
			return nil, err
		}
		size, ok := ncTypeSize[ncType]
		if !ok {
			return nil, fmt.Errorf("netcdf %s: attr %s: unsupported type %d", r.path, name, ncType)
		}
		total := int(nelems) * size
		if r.off+total > len(r.buf) {
			return nil, fmt.Errorf("netcdf %s: truncated attr %s", r.path, name)
		}
		raw := r.buf[r.off : r.off+total]
		r.off += total + padLen(total)

		if ncType == ncChar {
			attrs[name] = string(raw)
		} else {
			vals := decodeTyped(raw, ncType)
			if len(vals) > 0 {
				attrs[name] = vals[0]
			}
		}
	}
	return attrs, nil
}

func (r *ncReader) readVars() ([]ncVar, error) {
	tag, n, err := r.readTag(ncVariable)
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	vars := make([]ncVar, n)
	for i := range vars {
		v := &vars[i]
		if v.name, err = r.readString(); err != nil {
			return nil, err
		}
		rank, err := r.readInt32()
		if err != nil {
			return nil, err
		}
		v.dimids = make([]int32, rank)
		for d := range v.dimids {
			if v.dimids[d], err = r.readInt32(); err != nil {
				return nil, err
			}
		}
		attrs, err := r.readAttrs()
		if err != nil {
			return nil, err
		}
		v.attrs = map[string]string{}
		for k, av := range attrs {
			switch val := av.(type) {
			case string:
				v.attrs[k] = val
			case float64:
				if k == "_FillValue" {
					v.fill, v.hasFill = val, true
				}
			}
		}
		if v.ncType, err = r.readInt32(); err != nil {
			return nil, err
		}
		if _, err = r.readInt32(); err != nil { // vsize
			return nil, err
		}
		if v.begin, err = r.readInt32(); err != nil {
			return nil, err
		}
	}
	return vars, nil
}

func (r *ncReader) readValues(v *ncVar, dims []int32) ([]float64, error) {
	n := 1
	for _, d := range v.dimids {
		if int(d) >= len(dims) {
			return nil, fmt.Errorf("netcdf %s: var %s: bad dim id %d", r.path, v.name, d)
		}
		n *= int(dims[d])
	}
	size, ok := ncTypeSize[v.ncType]
	if !ok {
		return nil, fmt.Errorf("netcdf %s: var %s: unsupported type %d", r.path, v.name, v.ncType)
	}
	start, end := int(v.begin), int(v.begin)+n*size
	if start < 0 || end > len(r.buf) {
		return nil, fmt.Errorf("netcdf %s: var %s: data out of range", r.path, v.name)
	}
	return decodeTyped(r.buf[start:end], v.ncType), nil
}

func (r *ncReader) readTag(want int32) (tag, nelems int32, err error) {
	if tag, err = r.readInt32(); err != nil {
		return 0, 0, err
	}
	if nelems, err = r.readInt32(); err != nil {
		return 0, 0, err
	}
	if tag != 0 && tag != want {
		return 0, 0, fmt.Errorf("netcdf %s: expected tag %d, got %d", r.path, want, tag)
	}
	return tag, nelems, nil
}

func (r *ncReader) readInt32() (int32, error) {
	if r.off+4 > len(r.buf) {
		return 0, fmt.Errorf("netcdf %s: truncated header", r.path)
	}
	v := int32(binary.BigEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	return v, nil
}

func (r *ncReader) readString() (string, error) {
	n, err := r.readInt32()
	if err != nil {
		return "", err
	}
	if r.off+int(n) > len(r.buf) {
		return "", fmt.Errorf("netcdf %s: truncated name", r.path)
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n) + padLen(int(n))
	return s, nil
}

// --- encoding helpers ---

func writeInt32(b *bytes.Buffer, v int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	b.Write(tmp[:])
}

func writeName(b *bytes.Buffer, name string) {
	writeInt32(b, int32(len(name)))
	b.WriteString(name)
	pad(b, len(name))
}

func pad(b *bytes.Buffer, n int) {
	for i := 0; i < padLen(n); i++ {
		b.WriteByte(0)
	}
}

func padLen(n int) int {
	if n%4 == 0 {
		return 0
	}
	return 4 - n%4
}

func encodeDoubles(vals []float64) []byte {
	out := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.BigEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

func encodeTyped(vals []float64, ncType int32) ([]byte, error) {
	switch ncType {
	case ncDouble:
		return encodeDoubles(vals), nil
	case ncFloat:
		out := make([]byte, len(vals)*4)
		for i, v := range vals {
			binary.BigEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
		}
		return out, nil
	case ncInt:
		out := make([]byte, len(vals)*4)
		for i, v := range vals {
			binary.BigEndian.PutUint32(out[i*4:], uint32(int32(math.Round(v))))
		}
		return out, nil
	case ncShort:
		out := make([]byte, len(vals)*2)
		for i, v := range vals {
			binary.BigEndian.PutUint16(out[i*2:], uint16(int16(math.Round(v))))
		}
		padded := len(out)
		if padded%4 != 0 {
			out = append(out, make([]byte, padLen(padded))...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported nc type %d", ncType)
}

func decodeTyped(raw []byte, ncType int32) []float64 {
	switch ncType {
	case ncDouble:
		out := make([]float64, len(raw)/8)
		for i := range out {
			out[i] = math.Float64frombits(binary.BigEndian.Uint64(raw[i*8:]))
		}
		return out
	case ncFloat:
		out := make([]float64, len(raw)/4)
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:])))
		}
		return out
	case ncInt:
		out := make([]float64, len(raw)/4)
		for i := range out {
			out[i] = float64(int32(binary.BigEndian.Uint32(raw[i*4:])))
		}
		return out
	case ncShort:
		out := make([]float64, len(raw)/2)
		for i := range out {
			out[i] = float64(int16(binary.BigEndian.Uint16(raw[i*2:])))
		}
		return out
	}
	return nil
}
