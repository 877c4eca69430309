package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrRowSpec flags an unparseable or out-of-range row selection.
var ErrRowSpec = errors.New("invalid row selection")

// parseRowSpec expands a 1-based selection like "1,3-5" into zero-based
// row indexes against rowCount data rows. An empty spec selects every
// row. Duplicate selections collapse; order of first mention is kept.
func parseRowSpec(spec string, rowCount int) ([]int, error) {
	if strings.TrimSpace(spec) == "" {
		all := make([]int, rowCount)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}

	var indexes []int
	seen := make(map[int]bool)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		first, last := part, part
		if i := strings.IndexByte(part, '-'); i >= 0 {
			first, last = strings.TrimSpace(part[:i]), strings.TrimSpace(part[i+1:])
		}
		lo, err := strconv.Atoi(first)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrRowSpec, part)
		}
		hi, err := strconv.Atoi(last)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrRowSpec, part)
		}
		if lo < 1 || hi > rowCount || lo > hi {
			return nil, fmt.Errorf("%w: %q out of range 1-%d", ErrRowSpec, part, rowCount)
		}
		for n := lo; n <= hi; n++ {
			if !seen[n] {
				seen[n] = true
				indexes = append(indexes, n-1)
			}
		}
	}
	if len(indexes) == 0 {
		return nil, fmt.Errorf("%w: %q selects nothing", ErrRowSpec, spec)
	}
	return indexes, nil
}
