package loader

// Range is the half-open index range [Start, End) of a batch owned by one worker.
type Range struct {
	Start int
	End   int
}

// Len returns the number of rows in the range.
func (r Range) Len() int { return r.End - r.Start }

// Partition splits n rows into one contiguous range per worker.
//
// Every worker gets n/workers rows and the last one also takes the remainder,
// so the ranges are disjoint and cover [0, n) exactly. With fewer rows than
// workers all but the last range are empty.
//
// Edge cases:
//   - workers < 1 is treated as 1.
//   - n <= 0 yields workers empty ranges.
func Partition(n, workers int) []Range {
	if workers < 1 {
		workers = 1
	}
	if n < 0 {
		n = 0
	}
	chunk := n / workers
	out := make([]Range, workers)
	for i := range out {
		out[i] = Range{Start: i * chunk, End: (i + 1) * chunk}
	}
	out[workers-1].End = n
	return out
}
