package sketch

import (
	"fmt"
	"math"
)

// CountMinSketch approximates per-key frequencies. Estimates never undercount.
type CountMinSketch struct {
	width      int
	depth      int
	seeds      []uint32
	counters   [][]int64
	totalCount int64
}

func NewCountMinSketch(width, depth int) (*CountMinSketch, error) {
	if width <= 0 || depth <= 0 {
		return nil, fmt.Errorf("count-min dimensions must be positive, got width=%d depth=%d", width, depth)
	}

	counters := make([][]int64, depth)
	seeds := make([]uint32, depth)
	for i := range counters {
		counters[i] = make([]int64, width)
		seeds[i] = HashSeed + uint32(i)*0x61c88647
	}

	return &CountMinSketch{
		width:    width,
		depth:    depth,
		seeds:    seeds,
		counters: counters,
	}, nil
}

func (cms *CountMinSketch) Add(key string, count int64) {
	for i := 0; i < cms.depth; i++ {
		idx := cms.index(key, i)
		cms.counters[i][idx] += count
	}
	cms.totalCount += count
}

func (cms *CountMinSketch) Query(key string) int64 {
	min := int64(math.MaxInt64)

	for i := 0; i < cms.depth; i++ {
		idx := cms.index(key, i)
		if cms.counters[i][idx] < min {
			min = cms.counters[i][idx]
		}
	}

	return min
}

func (cms *CountMinSketch) TotalCount() int64 {
	return cms.totalCount
}

// MemoryUsageBytes reports the size of the counter table.
func (cms *CountMinSketch) MemoryUsageBytes() int64 {
	return int64(cms.width) * int64(cms.depth) * 8
}

func (cms *CountMinSketch) index(key string, row int) uint32 {
	return hashWithSeed(key, cms.seeds[row]) % uint32(cms.width)
}
