package store

import (
	"encoding/binary"
	"math"
	"strconv"

	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
)

// EncodeEmbedding serializes v as little-endian IEEE-754 float32, four
// bytes per value.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding parses a blob written by EncodeEmbedding. The blob must
// hold exactly dim values; anything else is ErrDimensionMismatch. A dim of
// zero or less accepts any whole number of values.
func DecodeEmbedding(blob []byte, dim int) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, taxerrors.New(taxerrors.ErrCodeDimensionMismatch, "embedding blob is not a whole number of float32 values", nil).
			WithDetail("bytes", strconv.Itoa(len(blob)))
	}
	n := len(blob) / 4
	if dim > 0 && n != dim {
		return nil, taxerrors.DimensionMismatch(dim, n)
	}
	if n == 0 {
		return nil, nil
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}
