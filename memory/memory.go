// Package memory provides the 64k of RAM which the emulator's programs
// see, and which block I/O transfers records into and out of.
package memory

// Memory provides 64K bytes array memory.
type Memory struct {
	buf [65536]uint8
}

// Set sets a byte at addr of memory.
func (m *Memory) Set(addr uint16, value uint8) {
	m.buf[addr] = value
}

// Get returns a byte at addr of memory.
func (m *Memory) Get(addr uint16) uint8 {
	return m.buf[addr]
}

// GetU16 returns a word from the given address of memory.
func (m *Memory) GetU16(addr uint16) uint16 {
	l := m.Get(addr)
	h := m.Get(addr + 1)
	return (uint16(h) << 8) | uint16(l)
}

// SetRange copies bytes from the given data to the specified
// starting address in RAM.
//
// Writes which run past the top of memory wrap around to 0x0000,
// as they would on the real hardware.
func (m *Memory) SetRange(addr uint16, data ...uint8) {
	for _, d := range data {
		m.buf[addr] = d
		addr++
	}
}

// FillRange fills an area of memory with the given byte
func (m *Memory) FillRange(addr uint16, size int, char uint8) {
	for size > 0 {
		m.buf[addr] = char
		addr++
		size--
	}
}

// GetRange returns the contents of a given range
func (m *Memory) GetRange(addr uint16, size int) []uint8 {
	ret := make([]uint8, 0, size)
	for size > 0 {
		ret = append(ret, m.buf[addr])
		addr++
		size--
	}
	return ret
}
