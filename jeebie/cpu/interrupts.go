package cpu

import "github.com/tkellan/dmgcore/jeebie/addr"

// interruptVectors maps each IF/IE bit to its fixed service routine address,
// in hardware priority order: VBlank first, Joypad last.
var interruptVectors = [5]uint16{0x40, 0x48, 0x50, 0x58, 0x60}

// handleInterrupts checks IE&IF for a pending interrupt and, if IME is set,
// services the highest priority one: pushes PC, jumps to its vector, clears
// IME and the serviced IF bit, and charges the 20 cycle dispatch cost. It
// reports whether any interrupt is pending regardless of IME, so callers
// can use it to wake the CPU from HALT without servicing.
func (c *CPU) handleInterrupts() bool {
	flags := c.bus.Read(addr.IF) & c.bus.Read(addr.IE) & 0x1F
	if flags == 0 {
		return false
	}

	if !c.interruptsEnabled {
		return true
	}

	for bit := uint8(0); bit < 5; bit++ {
		if flags&(1<<bit) == 0 {
			continue
		}

		c.interruptsEnabled = false
		c.bus.Write(addr.IF, c.bus.Read(addr.IF)&^(1<<bit))
		c.pushStack(c.pc)
		c.pc = interruptVectors[bit]
		c.bus.Tick(20)
		c.cycles += 20
		break
	}

	return true
}
