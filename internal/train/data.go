package train

// MakeBatches cuts a token stream into non-overlapping windows of seqLen
// tokens and groups them batchSize at a time. A trailing window shorter than
// seqLen is dropped; a trailing batch with fewer rows is kept. Masks are nil
// since every row is full.
func MakeBatches(tokens []int32, seqLen, batchSize int) []Batch {
	if seqLen < 2 || batchSize < 1 {
		return nil
	}

	var batches []Batch
	rows := make([][]int32, 0, batchSize)
	for i := 0; i+seqLen <= len(tokens); i += seqLen {
		rows = append(rows, tokens[i:i+seqLen])
		if len(rows) == batchSize {
			batches = append(batches, Batch{IDs: rows})
			rows = make([][]int32, 0, batchSize)
		}
	}
	if len(rows) > 0 {
		batches = append(batches, Batch{IDs: rows})
	}
	return batches
}

// SplitHoldout keeps the last ceil(frac*len) batches for evaluation, leaving
// at least one batch for training whenever there are two or more.
func SplitHoldout(batches []Batch, frac float64) (trainSet, evalSet []Batch) {
	if frac <= 0 || len(batches) < 2 {
		return batches, nil
	}
	n := int(frac*float64(len(batches)) + 0.999999)
	n = min(max(n, 1), len(batches)-1)
	cut := len(batches) - n
	return batches[:cut], batches[cut:]
}
