package sketch

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

const (
	MinPrecision = 4
	MaxPrecision = 16

	hashBits = 32
	two32    = float64(1 << 32)
)

// ErrInvalidPrecision is returned when a sketch is configured outside
// [MinPrecision, MaxPrecision].
var ErrInvalidPrecision = errors.New("invalid precision")

// HyperLogLog estimates the number of distinct strings added to it using
// 2^p byte registers.
//
// A HyperLogLog is not safe for concurrent writers. Registry serialises
// access per counter.
type HyperLogLog struct {
	precision uint8
	m         uint32
	registers []uint8
	alpha     float64
}

func NewHyperLogLog(precision int) (*HyperLogLog, error) {
	if precision < MinPrecision || precision > MaxPrecision {
		return nil, fmt.Errorf("%w: %d not in [%d,%d]", ErrInvalidPrecision, precision, MinPrecision, MaxPrecision)
	}

	p := uint8(precision)
	m := uint32(1) << p

	return &HyperLogLog{
		precision: p,
		m:         m,
		registers: make([]uint8, m),
		alpha:     alphaFor(m),
	}, nil
}

func alphaFor(m uint32) float64 {
	switch m {
	case 16:
		return 0.673
	case 32:
		return 0.697
	case 64:
		return 0.709
	default:
		return 0.7213 / (1 + 1.079/float64(m))
	}
}

// Add records value. Adding the same value again never changes the estimate.
func (hll *HyperLogLog) Add(value string) {
	hll.AddHash(Hash32(value))
}

// AddHash records a precomputed 32-bit hash.
func (hll *HyperLogLog) AddHash(hash uint32) {
	idx := hash >> (hashBits - hll.precision)
	w := hash << hll.precision

	// w has 32-p significant bits; an all-zero remainder ranks at the width + 1.
	zeros := bits.LeadingZeros32(w)
	if width := hashBits - int(hll.precision); zeros > width {
		zeros = width
	}

	rank := uint8(zeros) + 1
	if rank > hll.registers[idx] {
		hll.registers[idx] = rank
	}
}

// Estimate returns the bias-corrected cardinality estimate.
func (hll *HyperLogLog) Estimate() float64 {
	sum := 0.0
	zeros := 0

	for _, val := range hll.registers {
		sum += math.Ldexp(1, -int(val))
		if val == 0 {
			zeros++
		}
	}

	m := float64(hll.m)
	estimate := hll.alpha * m * m / sum

	switch {
	case estimate <= 2.5*m:
		if zeros != 0 {
			return math.Round(m * math.Log(m/float64(zeros)))
		}
		return math.Round(estimate)
	case estimate >= two32:
		// Every register saturated: the hash space is exhausted.
		return two32
	case estimate > two32/30:
		return -two32 * math.Log(1-estimate/two32)
	default:
		return math.Round(estimate)
	}
}

func (hll *HyperLogLog) Precision() int {
	return int(hll.precision)
}

// MemoryUsageBytes reports one byte per register.
func (hll *HyperLogLog) MemoryUsageBytes() int64 {
	return int64(hll.m)
}

// Registers returns a copy of the register array.
func (hll *HyperLogLog) Registers() []uint8 {
	out := make([]uint8, len(hll.registers))
	copy(out, hll.registers)
	return out
}
