package cpu

// Flag is one of the 4 possible flags used in the flag register (high part of AF)
type Flag uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

// Bus is the memory-mapped interface the CPU executes against. *memory.MMU
// satisfies it; tests use it directly so opcode bodies never need a type switch.
type Bus interface {
	Read(address uint16) uint8
	Write(address uint16, value uint8)
	Tick(cycles int)
	ReadBit(index uint8, address uint16) bool
}

// CPU is the main struct holding Sharp LR35902 state.
type CPU struct {
	bus Bus

	a, f, b, c, d, e, h, l uint8
	sp, pc                 uint16

	currentOpcode uint16

	interruptsEnabled bool
	eiPending         bool
	halted            bool
	haltBug           bool
	stopped           bool

	cycles uint64
}

// New returns a CPU with the documented DMG post-boot-ROM register state,
// as if the boot ROM had already run and handed off control at 0x0100.
func New(bus Bus) *CPU {
	return &CPU{
		bus: bus,
		a:   0x01,
		f:   0xB0,
		b:   0x00,
		c:   0x13,
		d:   0x00,
		e:   0xD8,
		h:   0x01,
		l:   0x4D,
		sp:  0xFFFE,
		pc:  0x0100,
	}
}

// Tick executes exactly one step of the fetch-decode-execute cycle, servicing
// a pending interrupt first if one is latched, and returns the number of
// T-cycles consumed.
func (c *CPU) Tick() int {
	startCycles := c.cycles

	pending := c.handleInterrupts()
	if c.cycles != startCycles {
		// handleInterrupts serviced an interrupt: pushed PC, jumped to the
		// vector and already charged the 20 dispatch cycles.
		return int(c.cycles - startCycles)
	}

	if c.halted {
		if pending {
			c.halted = false
			if !c.interruptsEnabled {
				c.haltBug = true
			}
		} else {
			c.bus.Tick(4)
			c.cycles += 4
			return 4
		}
	}

	opcode := Decode(c)

	if c.haltBug {
		// the byte after HALT is fetched without advancing PC, so the next
		// fetch reads it again as the start of the following instruction.
		c.haltBug = false
	} else {
		c.pc++
		if c.currentOpcode > 0xFF {
			c.pc++
		}
	}

	wasEiPending := c.eiPending
	cycles := opcode(c)
	if wasEiPending {
		c.eiPending = false
		c.interruptsEnabled = true
	}

	// CB-prefixed opcode bodies tick the bus themselves as they go.
	if c.currentOpcode <= 0xFF {
		c.bus.Tick(cycles)
	}
	c.cycles += uint64(cycles)

	return cycles
}

// ResetToBootROM rewinds the CPU to power-on reset state (PC=0x0000, all
// registers zeroed) so execution starts at the boot ROM's entry point
// instead of the documented post-boot state New() assumes. The boot ROM
// itself is responsible for initializing SP and the other registers before
// handing off to cartridge code at 0x0100.
func (c *CPU) ResetToBootROM() {
	c.a, c.f, c.b, c.c, c.d, c.e, c.h, c.l = 0, 0, 0, 0, 0, 0, 0, 0
	c.sp = 0
	c.pc = 0
}

// GetPC returns the current program counter, for debugger and disassembler use.
func (c *CPU) GetPC() uint16 { return c.pc }

// GetSP returns the current stack pointer.
func (c *CPU) GetSP() uint16 { return c.sp }

// GetAF returns the combined AF register pair.
func (c *CPU) GetAF() uint16 { return c.getAF() }

// GetBC returns the combined BC register pair.
func (c *CPU) GetBC() uint16 { return c.getBC() }

// GetDE returns the combined DE register pair.
func (c *CPU) GetDE() uint16 { return c.getDE() }

// GetHL returns the combined HL register pair.
func (c *CPU) GetHL() uint16 { return c.getHL() }

// GetA, GetF, GetB, GetC, GetD, GetE, GetH, GetL expose the individual 8-bit registers.
func (c *CPU) GetA() uint8 { return c.a }
func (c *CPU) GetF() uint8 { return c.f }
func (c *CPU) GetB() uint8 { return c.b }
func (c *CPU) GetC() uint8 { return c.c }
func (c *CPU) GetD() uint8 { return c.d }
func (c *CPU) GetE() uint8 { return c.e }
func (c *CPU) GetH() uint8 { return c.h }
func (c *CPU) GetL() uint8 { return c.l }

// IME reports whether the interrupt master enable flag is set.
func (c *CPU) IME() bool { return c.interruptsEnabled }

// IsHalted reports whether the CPU is currently in the HALT state.
func (c *CPU) IsHalted() bool { return c.halted }

// GetCycles returns the total number of T-cycles executed since construction.
func (c *CPU) GetCycles() uint64 { return c.cycles }
