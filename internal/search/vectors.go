package search

import (
	"encoding/binary"
	"math"
)

// Vector is an embedding in the shape the store persists it: little-endian
// float32 components packed four bytes apiece into a BLOB column. Chunk and
// fact rows both carry their vectors inline this way, so scoring never needs
// a side lookup.
type Vector []float32

// DecodeVector unpacks a stored BLOB. A ragged length means the row was not
// written by this codec; callers treat nil as "no vector".
func DecodeVector(b []byte) Vector {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make(Vector, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// Encode packs the vector for storage.
func (v Vector) Encode() []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Cosine returns the cosine similarity against other, in [-1, 1]. Mismatched
// dimensions and zero vectors score 0, so a malformed row can never outrank
// a real match.
func (v Vector) Cosine(other Vector) float64 {
	if len(v) != len(other) || len(v) == 0 {
		return 0
	}
	var dot, normV, normO float64
	for i := range v {
		a, b := float64(v[i]), float64(other[i])
		dot += a * b
		normV += a * a
		normO += b * b
	}
	denom := math.Sqrt(normV * normO)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
