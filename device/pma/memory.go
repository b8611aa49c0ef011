package pma

import (
	"fmt"

	"github.com/ardnew/pmausb/pkg"
)

// WordAccessor is word-granular access to packet memory.
// Index is a word index, not a byte offset.
type WordAccessor interface {
	LoadWord(index int) uint16
	StoreWord(index int, value uint16)
}

// Memory is a word-addressed packet memory region.
type Memory struct {
	words []uint16
}

// NewMemory allocates a packet memory region of size bytes.
// An odd size is rounded up to the next word.
func NewMemory(size int) *Memory {
	return &Memory{words: make([]uint16, (size+1)/2)}
}

// Size returns the region size in bytes.
func (m *Memory) Size() int {
	return len(m.words) * 2
}

// LoadWord returns the word at index.
func (m *Memory) LoadWord(index int) uint16 {
	return m.words[index]
}

// StoreWord writes the word at index.
func (m *Memory) StoreWord(index int, value uint16) {
	m.words[index] = value
}

// CopyTo copies src into packet memory starting at byte offset dst.
func CopyTo(m WordAccessor, dst int, src []byte) {
	w := dst / 2
	s := src

	// Unaligned leading byte goes into the high half of its word.
	if dst&1 != 0 && len(s) > 0 {
		m.StoreWord(w, m.LoadWord(w)&0x00FF|uint16(s[0])<<8)
		s = s[1:]
		w++
	}

	for ; len(s) >= 2; s = s[2:] {
		m.StoreWord(w, uint16(s[0])|uint16(s[1])<<8)
		w++
	}

	// Trailing byte keeps the high half of the final word.
	if len(s) == 1 {
		m.StoreWord(w, m.LoadWord(w)&0xFF00|uint16(s[0]))
	}
}

// CopyFrom copies len(dst) bytes out of packet memory starting at byte
// offset src.
func CopyFrom(dst []byte, m WordAccessor, src int) {
	w := src / 2
	d := dst

	if src&1 != 0 && len(d) > 0 {
		d[0] = byte(m.LoadWord(w) >> 8)
		d = d[1:]
		w++
	}

	for ; len(d) >= 2; d = d[2:] {
		v := m.LoadWord(w)
		d[0] = byte(v)
		d[1] = byte(v >> 8)
		w++
	}

	if len(d) == 1 {
		d[0] = byte(m.LoadWord(w))
	}
}

// CheckRange reports whether [offset, offset+n) lies within a region of
// size bytes.
func CheckRange(size, offset, n int) error {
	if offset < 0 || n < 0 || offset+n > size {
		return fmt.Errorf("%w: [%d, %d) outside %d bytes",
			pkg.ErrInvalidParameter, offset, offset+n, size)
	}
	return nil
}
