package detector

import (
	"encoding/binary"
	"math"

	"github.com/zeebo/blake3"
)

// AxisSeed derives a sampler seed from the run seed and the values of one
// series. The axis label is not part of the input, so reordering columns
// reorders results without changing them.
func AxisSeed(runSeed uint64, values []float64) uint64 {
	h := blake3.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], runSeed)
	h.Write(buf[:])
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return binary.LittleEndian.Uint64(h.Sum(nil)[:8])
}
