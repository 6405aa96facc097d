package history

// Downsample decimates rows past the threshold by keeping every
// factor-th row, starting with the first. Inputs at or under the
// threshold, or a factor under 2, pass through unchanged.
func Downsample(rows []Row, threshold, factor int) []Row {
	if threshold <= 0 || factor <= 1 || len(rows) <= threshold {
		return rows
	}
	kept := make([]Row, 0, (len(rows)+factor-1)/factor)
	for i := 0; i < len(rows); i += factor {
		kept = append(kept, rows[i])
	}
	return kept
}
