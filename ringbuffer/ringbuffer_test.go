package ringbuffer_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gregoryjjb/pinloop/ringbuffer"
)

func TestRing(t *testing.T) {
	t.Run("PreservesInsertionOrder", func(t *testing.T) {
		r := ringbuffer.New[int](4)
		for i := 1; i <= 3; i++ {
			require.True(t, r.Push(i))
		}

		var got []int
		n := r.Drain(10, func(v int) { got = append(got, v) })

		assert.Equal(t, 3, n)
		assert.Equal(t, []int{1, 2, 3}, got)
		assert.Equal(t, 0, r.Len())
	})

	t.Run("DropsNewestWhenFull", func(t *testing.T) {
		r := ringbuffer.New[int](8)
		for i := 0; i < 20; i++ {
			r.Push(i)
		}

		assert.Equal(t, 8, r.Len())
		assert.Equal(t, uint64(12), r.Dropped())

		var got []int
		r.Drain(100, func(v int) { got = append(got, v) })
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, got)
	})

	t.Run("DrainRespectsBatchBound", func(t *testing.T) {
		r := ringbuffer.New[int](8)
		for i := 0; i < 6; i++ {
			r.Push(i)
		}

		assert.Equal(t, 4, r.Drain(4, func(int) {}))
		assert.Equal(t, 2, r.Len())
	})

	t.Run("WrapsAround", func(t *testing.T) {
		r := ringbuffer.New[int](2)
		for i := 0; i < 10; i++ {
			require.True(t, r.Push(i))
			v, ok := r.Pop()
			require.True(t, ok)
			assert.Equal(t, i, v)
		}
		_, ok := r.Pop()
		assert.False(t, ok)
	})

	t.Run("ResetDropped", func(t *testing.T) {
		r := ringbuffer.New[int](1)
		r.Push(1)
		r.Push(2)
		assert.Equal(t, uint64(1), r.ResetDropped())
		assert.Equal(t, uint64(0), r.Dropped())
	})

	t.Run("ConcurrentProducers", func(t *testing.T) {
		r := ringbuffer.New[int](1024)

		var wg sync.WaitGroup
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					r.Push(i)
				}
			}()
		}

		consumed := 0
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

	loop:
		for {
			consumed += r.Drain(16, func(int) {})
			select {
			case <-done:
				consumed += r.Drain(1024, func(int) {})
				break loop
			default:
			}
		}

		assert.Equal(t, 400, consumed)
		assert.Equal(t, uint64(0), r.Dropped())
	})
}
