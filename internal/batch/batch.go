// Package batch partitions an ordered run of records into fixed-size batches.
package batch

import (
	"errors"
	"fmt"
	"iter"
	"slices"
)

// ErrBatchSize is returned for a batch size below one.
var ErrBatchSize = errors.New("batch size must be a positive integer")

// Split returns the batches of at most size items that partition items in
// order. The last batch may be shorter. The sequence is lazy and can be
// ranged over any number of times. The batch index is yielded with each
// batch.
func Split[T any](items []T, size int) (iter.Seq2[int, []T], error) {
	if err := CheckSize(size); err != nil {
		return nil, err
	}
	return func(yield func(int, []T) bool) {
		n := len(items)
		for i := 0; i < n; i += size {
			begin := i
			limit := begin + size
			if limit > n {
				limit = n
			}
			if !yield(i/size, slices.Clip(items[begin:limit])) {
				return
			}
		}
	}, nil
}

// CheckSize rejects batch sizes below one.
func CheckSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("%w: got %d", ErrBatchSize, size)
	}
	return nil
}

// Count returns the number of batches Split produces for n items.
func Count(n, size int) int {
	if size <= 0 || n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Limit truncates items to at most n leading items. A negative n keeps
// everything.
func Limit[T any](items []T, n int) []T {
	if n < 0 || n >= len(items) {
		return items
	}
	return items[:n]
}
