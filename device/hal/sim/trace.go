package sim

import (
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/ardnew/pmausb/pkg"
)

// Kind identifies a traced bus event.
type Kind string

// Traced bus events.
const (
	KindSetup   Kind = "SETUP"
	KindIn      Kind = "IN"
	KindOut     Kind = "OUT"
	KindReset   Kind = "RESET"
	KindSuspend Kind = "SUSPEND"
	KindResume  Kind = "RESUME"
)

// Record is one traced bus event.
type Record struct {
	Seq       uint64 `cbor:"seq"`
	Kind      Kind   `cbor:"kind"`
	Address   uint8  `cbor:"addr"`
	Endpoint  uint8  `cbor:"ep"`
	Data      []byte `cbor:"data,omitempty"`
	Handshake string `cbor:"hs"`
}

// Trace records bus events in order. It is safe for concurrent use.
type Trace struct {
	mu      sync.Mutex
	seq     uint64
	records []Record
}

// NewTrace returns an empty trace.
func NewTrace() *Trace {
	return &Trace{}
}

func (t *Trace) add(kind Kind, addr, ep uint8, data []byte, hs pkg.Handshake) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.records = append(t.records, Record{
		Seq:       t.seq,
		Kind:      kind,
		Address:   addr,
		Endpoint:  ep,
		Data:      append([]byte(nil), data...),
		Handshake: hs.String(),
	})
}

// Records returns a copy of the recorded events.
func (t *Trace) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Record(nil), t.records...)
}

// Len returns the number of recorded events.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// WriteTo encodes the trace as a CBOR array of records.
func (t *Trace) WriteTo(w io.Writer) (int64, error) {
	b, err := cbor.Marshal(t.Records())
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

// ReadTrace decodes records written by Trace.WriteTo.
func ReadTrace(r io.Reader) ([]Record, error) {
	var records []Record
	if err := cbor.NewDecoder(r).Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

func (p *Peripheral) record(kind Kind, addr, ep uint8, data []byte, hs pkg.Handshake) {
	if p.trace != nil {
		p.trace.add(kind, addr, ep, data, hs)
	}
}
