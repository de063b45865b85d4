package timeseries

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBuffFillAndOverwrite(t *testing.T) {
	rb := NewRingBuff[int](4)
	assert.Equal(t, 4, rb.Capacity())
	assert.Equal(t, 0, rb.Size())

	for n := 1; n <= 6; n++ {
		rb.PushBack(n)
		if n <= 4 {
			assert.Equal(t, n, rb.Size())
		} else {
			assert.Equal(t, 4, rb.Size())
		}
		// newest element always sits at cend-1
		assert.Equal(t, n, rb.CEnd().Prev().Value())
	}

	// oldest two were overwritten
	assert.Equal(t, []int{3, 4, 5, 6}, collect(rb))
}

func collect(rb *RingBuff[int]) []int {
	var out []int
	for it := rb.CBegin(); !it.Equal(rb.CEnd()); it = it.Next() {
		out = append(out, it.Value())
	}
	return out
}

func TestRingBuffClear(t *testing.T) {
	rb := NewRingBuff[int](3)
	rb.PushBack(1)
	rb.PushBack(2)
	rb.Clear()
	assert.Equal(t, 0, rb.Size())
	assert.Equal(t, 3, rb.Capacity())

	rb.PushBack(9)
	assert.Equal(t, []int{9}, collect(rb))
}

func TestIteratorRandomAccess(t *testing.T) {
	rb := NewRingBuff[int](5)
	for n := 10; n < 80; n += 10 {
		rb.PushBack(n) // stores 30..70 after wrap
	}
	require.Equal(t, 5, rb.Size())

	begin := rb.CBegin()
	end := rb.CEnd()
	assert.Equal(t, 5, end.Diff(begin))
	assert.Equal(t, 50, begin.Add(2).Value())
	assert.Equal(t, 50, end.Sub(3).Value())
	assert.True(t, begin.Before(end))
	assert.True(t, begin.Add(5).Equal(end))
}

func TestForwardEqualsReverse(t *testing.T) {
	rb := NewRingBuff[int](4)
	for n := 1; n <= 6; n++ {
		rb.PushBack(n)
	}

	// *(cbegin + k) == *((crend - 1) - k) for every k
	for k := 0; k < rb.Size(); k++ {
		forward := rb.CBegin().Add(k).Value()
		reverse := rb.CREnd().Sub(1).Sub(k).Value()
		assert.Equal(t, forward, reverse, "k=%d", k)
	}

	// reverse traversal yields newest first
	var out []int
	for it := rb.CRBegin(); !it.Equal(rb.CREnd()); it = it.Next() {
		out = append(out, it.Value())
	}
	assert.Equal(t, []int{6, 5, 4, 3}, out)
}

func TestMutableIterator(t *testing.T) {
	rb := NewRingBuff[int](3)
	rb.PushBack(1)
	rb.PushBack(2)
	rb.PushBack(3)

	it := rb.Begin().Next()
	it.Set(42)
	assert.Equal(t, []int{1, 42, 3}, collect(rb))
	assert.Equal(t, 42, it.Const().Value())
	assert.Equal(t, 2, rb.End().Diff(it))
}
