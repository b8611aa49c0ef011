package pma

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingMemory records every word access.
type countingMemory struct {
	*Memory
	loads, stores []int
}

func (c *countingMemory) LoadWord(i int) uint16 {
	c.loads = append(c.loads, i)
	return c.Memory.LoadWord(i)
}

func (c *countingMemory) StoreWord(i int, v uint16) {
	c.stores = append(c.stores, i)
	c.Memory.StoreWord(i, v)
}

func fill(m *Memory, v uint16) {
	for i := range m.words {
		m.words[i] = v
	}
}

func TestCopyRoundTrip(t *testing.T) {
	const packet = 64
	rng := rand.New(rand.NewSource(1))

	for offset := 0; offset < 4; offset++ {
		for n := 0; n <= packet; n++ {
			m := NewMemory(256)
			fill(m, 0xA5A5)
			src := make([]byte, n)
			rng.Read(src)

			base := 32 + offset
			CopyTo(m, base, src)

			got := make([]byte, n)
			CopyFrom(got, m, base)
			require.Equal(t, src, got, "offset=%d n=%d", base, n)
		}
	}
}

func TestCopyToPreservesNeighbours(t *testing.T) {
	tests := []struct {
		name   string
		offset int
		data   []byte
	}{
		{"aligned even length", 4, []byte{1, 2, 3, 4}},
		{"aligned odd length", 4, []byte{1, 2, 3}},
		{"unaligned even length", 5, []byte{1, 2, 3, 4}},
		{"unaligned odd length", 5, []byte{1, 2, 3}},
		{"single unaligned byte", 7, []byte{9}},
		{"single aligned byte", 6, []byte{9}},
		{"empty", 5, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMemory(32)
			fill(m, 0xEEEE)
			CopyTo(m, tt.offset, tt.data)

			all := make([]byte, m.Size())
			CopyFrom(all, m, 0)
			for i, b := range all {
				if i >= tt.offset && i < tt.offset+len(tt.data) {
					assert.Equal(t, tt.data[i-tt.offset], b, "byte %d", i)
				} else {
					assert.Equal(t, byte(0xEE), b, "byte %d altered", i)
				}
			}
		})
	}
}

func TestCopyToWordAccesses(t *testing.T) {
	m := &countingMemory{Memory: NewMemory(32)}

	// 5 bytes at an odd offset: leading RMW, two full words, no trailer.
	CopyTo(m, 3, []byte{1, 2, 3, 4, 5})
	assert.Equal(t, []int{1}, m.loads)
	assert.Equal(t, []int{1, 2, 3}, m.stores)

	m.loads, m.stores = nil, nil

	// 3 bytes aligned: one full word then a trailing RMW.
	CopyTo(m, 8, []byte{1, 2, 3})
	assert.Equal(t, []int{5}, m.loads)
	assert.Equal(t, []int{4, 5}, m.stores)
}

func TestWordByteOrder(t *testing.T) {
	m := NewMemory(4)
	CopyTo(m, 0, []byte{0x34, 0x12, 0x78, 0x56})
	assert.Equal(t, uint16(0x1234), m.LoadWord(0))
	assert.Equal(t, uint16(0x5678), m.LoadWord(1))
}

func TestNewMemoryRoundsUp(t *testing.T) {
	assert.Equal(t, 12, NewMemory(11).Size())
	assert.Equal(t, 512, NewMemory(512).Size())
}

func TestCheckRange(t *testing.T) {
	assert.NoError(t, CheckRange(64, 0, 64))
	assert.NoError(t, CheckRange(64, 63, 1))
	assert.Error(t, CheckRange(64, 63, 2))
	assert.Error(t, CheckRange(64, -1, 1))
}
