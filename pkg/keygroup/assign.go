package keygroup

import (
	"github.com/spaolacci/murmur3"
)

// Assign maps a serialized key to its key group under the given maximum
// parallelism. The mapping is stable across restarts and rescaling, so a
// key always lands in the same group regardless of current parallelism.
func Assign(key []byte, maxParallelism int) int {
	if maxParallelism <= 0 || maxParallelism > MaxKeyGroups {
		maxParallelism = MaxKeyGroups
	}
	return int(murmur3.Sum32(key) % uint32(maxParallelism))
}

// RangeOfOperator computes the key-group range owned by the operator
// instance with the given index, when maxParallelism key groups are
// spread over parallelism instances. Ranges of adjacent indices are
// contiguous and together cover [0, maxParallelism).
func RangeOfOperator(maxParallelism, parallelism, operatorIndex int) (Range, error) {
	if parallelism <= 0 || parallelism > maxParallelism || operatorIndex < 0 || operatorIndex >= parallelism {
		return Range{}, ErrInvalidRange
	}
	start := operatorIndex * maxParallelism / parallelism
	end := (operatorIndex+1)*maxParallelism/parallelism - 1
	return NewRange(start, end)
}
