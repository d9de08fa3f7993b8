package main

import (
	"slices"
)

// sizeHistogram is a sorted list of per-shard example counts.
type sizeHistogram []int64

func newSizeHistogram(counts []int64) sizeHistogram {
	sorted := slices.Clone(counts)
	slices.Sort(sorted)
	return sorted
}

func (s sizeHistogram) avg() float64 {
	if len(s) == 0 {
		return 0
	}
	return float64(s.sum()) / float64(len(s))
}

func (s sizeHistogram) min() int64 {
	return s[0]
}

func (s sizeHistogram) max() int64 {
	return s[len(s)-1]
}

func (s sizeHistogram) percentile(p float32) int64 {
	if p < 0 || p > 100 {
		panic("percentile out of range")
	}
	idx := int(float32(len(s)) * p / 100)
	if idx >= len(s) {
		idx = len(s) - 1
	}
	return s[idx]
}

func (s sizeHistogram) sum() int64 {
	var sum int64
	for _, size := range s {
		sum += size
	}
	return sum
}
