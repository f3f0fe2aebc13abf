package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEachVisitsEveryIndexOnce(t *testing.T) {
	for _, p := range []*Pool{nil, New(1, 1), New(4, 2), New(16, 64)} {
		counts := make([]int32, 1000)
		err := p.ForEach(context.Background(), len(counts), func(i int) error {
			atomic.AddInt32(&counts[i], 1)
			return nil
		})
		require.NoError(t, err)
		for i, c := range counts {
			assert.EqualValues(t, 1, c, "index %d", i)
		}
	}
}

func TestForEachStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var ran int32
	err := New(4, 4).ForEach(context.Background(), 10000, func(i int) error {
		atomic.AddInt32(&ran, 1)
		if i == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Less(t, int(atomic.LoadInt32(&ran)), 10000)
}

func TestForEachHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(2, 2).ForEach(ctx, 100, func(int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestForEachWithStateCreatesOneStatePerWorker(t *testing.T) {
	var created int32
	p := New(3, 8)
	err := ForEachWithState(context.Background(), p, 500,
		func() *[]int {
			atomic.AddInt32(&created, 1)
			return new([]int)
		},
		func(s *[]int, i int) error {
			*s = append(*s, i)
			return nil
		})
	require.NoError(t, err)
	assert.LessOrEqual(t, int(created), p.Workers())
}
