// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package combinator enumerates the n-ary cartesian product of candidate
// sequences in a fixed mixed-radix order.
//
// Sequence 0 is the fastest-varying digit:
//
//	All([][]int{{1, 2}, {10, 20}})
//	// [1 10] [2 10] [1 20] [2 20]
//
// The product of zero sequences is a single empty tuple. Any empty input
// sequence makes the product empty.
package combinator

import (
	"iter"
	"math"
)

// Count returns the number of tuples in the product, saturating at
// math.MaxInt.
func Count[T any](seqs [][]T) int {
	n := 1
	for _, s := range seqs {
		if len(s) == 0 {
			return 0
		}
		if n > math.MaxInt/len(s) {
			return math.MaxInt
		}
		n *= len(s)
	}
	return n
}

// All yields every tuple of the product. Each yielded slice is freshly
// allocated and may be retained by the caller.
func All[T any](seqs [][]T) iter.Seq[[]T] {
	return func(yield func([]T) bool) {
		for _, s := range seqs {
			if len(s) == 0 {
				return
			}
		}
		digits := make([]int, len(seqs))
		for {
			tuple := make([]T, len(seqs))
			for i, d := range digits {
				tuple[i] = seqs[i][d]
			}
			if !yield(tuple) {
				return
			}
			i := 0
			for ; i < len(digits); i++ {
				digits[i]++
				if digits[i] < len(seqs[i]) {
					break
				}
				digits[i] = 0
			}
			if i == len(digits) {
				return
			}
		}
	}
}

// Cartesian materializes All.
func Cartesian[T any](seqs [][]T) [][]T {
	n := Count(seqs)
	if n == 0 {
		return nil
	}
	out := make([][]T, 0, min(n, 1<<16))
	for tuple := range All(seqs) {
		out = append(out, tuple)
	}
	return out
}
