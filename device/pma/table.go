package pma

import (
	"fmt"

	"github.com/ardnew/pmausb/pkg"
)

// EntrySize is the size in bytes of one buffer descriptor table entry.
const EntrySize = 8

// Word offsets within a table entry.
const (
	wordTxAddr  = 0
	wordTxCount = 1
	wordRxAddr  = 2
	wordRxCount = 3
)

// Receive count register fields.
const (
	RxCountMask     = 0x03FF // Bytes received by the last OUT/SETUP
	rxBlockSize32   = 0x8000 // Block size is 32 bytes
	rxNumBlockShift = 10
)

// Entry is a decoded buffer descriptor table entry.
type Entry struct {
	TxAddr  uint16 // Transmit buffer byte offset
	TxCount uint16 // Bytes to transmit on the next IN
	RxAddr  uint16 // Receive buffer byte offset
	RxCount uint16 // Raw receive count register (allocation + received)
}

// Table is the buffer descriptor table inside packet memory.
type Table struct {
	mem  WordAccessor
	base int // byte offset of entry 0, word aligned
}

// NewTable returns the descriptor table located at byte offset base.
func NewTable(mem WordAccessor, base int) *Table {
	return &Table{mem: mem, base: base &^ 1}
}

func (t *Table) word(ep, field int) int {
	return (t.base+ep*EntrySize)/2 + field
}

// Entry returns the decoded table entry for endpoint ep.
func (t *Table) Entry(ep int) Entry {
	return Entry{
		TxAddr:  t.mem.LoadWord(t.word(ep, wordTxAddr)),
		TxCount: t.mem.LoadWord(t.word(ep, wordTxCount)),
		RxAddr:  t.mem.LoadWord(t.word(ep, wordRxAddr)),
		RxCount: t.mem.LoadWord(t.word(ep, wordRxCount)),
	}
}

// TxAddr returns the transmit buffer offset of endpoint ep.
func (t *Table) TxAddr(ep int) int {
	return int(t.mem.LoadWord(t.word(ep, wordTxAddr)))
}

// RxAddr returns the receive buffer offset of endpoint ep.
func (t *Table) RxAddr(ep int) int {
	return int(t.mem.LoadWord(t.word(ep, wordRxAddr)))
}

// TxCount returns the number of bytes armed for the next IN on ep.
func (t *Table) TxCount(ep int) int {
	return int(t.mem.LoadWord(t.word(ep, wordTxCount)))
}

// SetTxCount sets the number of bytes to transmit on the next IN on ep.
func (t *Table) SetTxCount(ep, n int) {
	t.mem.StoreWord(t.word(ep, wordTxCount), uint16(n))
}

// RxCount returns the number of bytes received by the last OUT or SETUP.
func (t *Table) RxCount(ep int) int {
	return int(t.mem.LoadWord(t.word(ep, wordRxCount)) & RxCountMask)
}

// SetRxCount records n received bytes, keeping the buffer allocation bits.
// The controller does this on reception.
func (t *Table) SetRxCount(ep, n int) {
	i := t.word(ep, wordRxCount)
	t.mem.StoreWord(i, t.mem.LoadWord(i)&^RxCountMask|uint16(n)&RxCountMask)
}

// RxCapacity decodes the receive buffer allocation of ep in bytes.
func (t *Table) RxCapacity(ep int) int {
	v := t.mem.LoadWord(t.word(ep, wordRxCount))
	blocks := int(v>>rxNumBlockShift) & 0x1F
	if v&rxBlockSize32 != 0 {
		return (blocks + 1) * 32
	}
	return blocks * 2
}

// Reset points endpoint ep at its buffers and clears both transfer counts.
func (t *Table) Reset(ep int, b Buffers) {
	t.mem.StoreWord(t.word(ep, wordTxAddr), uint16(b.Tx))
	t.mem.StoreWord(t.word(ep, wordTxCount), 0)
	t.mem.StoreWord(t.word(ep, wordRxAddr), uint16(b.Rx))
	t.mem.StoreWord(t.word(ep, wordRxCount), RxAllocation(b.Size))
}

// RxAllocation encodes a receive buffer size into the count register
// allocation bits. Sizes up to 62 bytes use 2-byte blocks, larger sizes
// use 32-byte blocks.
func RxAllocation(size int) uint16 {
	if size > 62 {
		return rxBlockSize32 | uint16(size/32-1)<<rxNumBlockShift
	}
	return uint16(size/2) << rxNumBlockShift
}

// Buffers is the packet memory placement of one endpoint.
type Buffers struct {
	Tx   int // Transmit buffer byte offset
	Rx   int // Receive buffer byte offset
	Size int // Size of each buffer in bytes
}

// Layout is the static placement of the descriptor table and all endpoint
// buffers in packet memory.
type Layout struct {
	TableBase int
	Endpoints []Buffers
}

// NewLayout places a descriptor table for n endpoints at offset 0 followed
// by one transmit and one receive buffer of packetSize bytes per endpoint.
func NewLayout(memSize, n, packetSize int) (Layout, error) {
	if n <= 0 || packetSize <= 0 || packetSize%2 != 0 {
		return Layout{}, fmt.Errorf("%w: %d endpoints of %d bytes",
			pkg.ErrInvalidParameter, n, packetSize)
	}
	if packetSize > 62 && packetSize%32 != 0 {
		return Layout{}, fmt.Errorf("%w: packet size %d not a multiple of 32",
			pkg.ErrInvalidParameter, packetSize)
	}
	l := Layout{Endpoints: make([]Buffers, n)}
	next := n * EntrySize
	for ep := range l.Endpoints {
		l.Endpoints[ep] = Buffers{Tx: next, Rx: next + packetSize, Size: packetSize}
		next += 2 * packetSize
	}
	if next > memSize {
		return Layout{}, fmt.Errorf("%w: need %d bytes, have %d",
			pkg.ErrLayoutOverflow, next, memSize)
	}
	return l, nil
}

// End returns the first byte offset past the last buffer.
func (l Layout) End() int {
	end := l.TableBase + len(l.Endpoints)*EntrySize
	for _, b := range l.Endpoints {
		if e := b.Rx + b.Size; e > end {
			end = e
		}
		if e := b.Tx + b.Size; e > end {
			end = e
		}
	}
	return end
}

// Overlaps reports whether any two regions of the layout intersect.
func (l Layout) Overlaps() bool {
	type region struct{ lo, hi int }
	regions := []region{{l.TableBase, l.TableBase + len(l.Endpoints)*EntrySize}}
	for _, b := range l.Endpoints {
		regions = append(regions,
			region{b.Tx, b.Tx + b.Size},
			region{b.Rx, b.Rx + b.Size})
	}
	for i := range regions {
		for j := i + 1; j < len(regions); j++ {
			if regions[i].lo < regions[j].hi && regions[j].lo < regions[i].hi {
				return true
			}
		}
	}
	return false
}
