package cpu

import "github.com/tkellan/dmgcore/jeebie/bit"

// Decode peeks at the byte(s) starting at the current PC, without advancing
// it, and returns the Opcode function that implements it. It records the
// raw opcode value (0xCBxx for CB-prefixed instructions) on the CPU so
// opcode bodies and the disassembler can report it.
func Decode(c *CPU) Opcode {
	first := c.bus.Read(c.pc)

	if first == 0xCB {
		second := c.bus.Read(c.pc + 1)
		c.currentOpcode = 0xCB00 | uint16(second)
		return decode(c.currentOpcode)
	}

	c.currentOpcode = uint16(first)
	return decode(c.currentOpcode)
}

// readImmediate reads the byte immediately following the opcode and
// advances PC past it.
func (c *CPU) readImmediate() uint8 {
	value := c.bus.Read(c.pc)
	c.pc++
	return value
}

// readImmediateWord reads the 16-bit little-endian word immediately
// following the opcode and advances PC past it.
func (c *CPU) readImmediateWord() uint16 {
	low := c.readImmediate()
	high := c.readImmediate()
	return bit.Combine(high, low)
}

// readSignedImmediate reads the byte immediately following the opcode as a
// signed displacement and advances PC past it.
func (c *CPU) readSignedImmediate() int8 {
	return int8(c.readImmediate())
}
