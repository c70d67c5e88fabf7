package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
}

func TestFor_EachIndexOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}

	seen := make([]int32, 257)
	For(len(seen), func(i int) {
		atomic.AddInt32(&seen[i], 1)
	}, cfg)

	for i, c := range seen {
		assert.Equal(t, int32(1), c, "index %d", i)
	}
}

func TestForPairs(t *testing.T) {
	cfg := DefaultConfig().WithMinChunk(1)

	batch, heads := 3, 5
	results := make([][]bool, batch)
	for b := range results {
		results[b] = make([]bool, heads)
	}

	ForPairs(batch, heads, func(b, h int) {
		results[b][h] = true
	}, cfg)

	for b := 0; b < batch; b++ {
		for h := 0; h < heads; h++ {
			assert.True(t, results[b][h], "missing result at [%d][%d]", b, h)
		}
	}
}

func TestFor_Sequential(t *testing.T) {
	var order []int
	For(10, func(i int) {
		order = append(order, i)
	}, Sequential())

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestWithMinChunk_Floor(t *testing.T) {
	assert.Equal(t, 1, DefaultConfig().WithMinChunk(0).MinChunkSize)
	assert.Equal(t, 8, DefaultConfig().WithMinChunk(8).MinChunkSize)
}
