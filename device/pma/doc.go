// Package pma models the dedicated USB packet memory of a full-speed device
// controller and the buffer descriptor table that lives inside it.
//
// The packet memory is only addressable in 16-bit words: byte offset 2k is
// the low byte of word k and byte offset 2k+1 is its high byte. [CopyTo] and
// [CopyFrom] are byte-exact copies on top of that word interface. An odd
// leading or trailing byte is merged into its word with a read-modify-write,
// so bytes outside the copied range are never altered.
//
// # Buffer Descriptor Table
//
// [Table] owns the per-endpoint descriptor entries
//
//	+0 tx_addr  +2 tx_count  +4 rx_addr  +6 rx_count
//
// and [Layout] is the static placement of the table and the endpoint
// buffers. A layout is computed once from the endpoint count and packet
// size; buffers never overlap each other or the table.
//
// All higher layers touch packet memory through this package only.
package pma
