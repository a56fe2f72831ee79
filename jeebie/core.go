package jeebie

import (
	"fmt"
	"io/ioutil"
	"log/slog"
	"sync"

	"github.com/tkellan/dmgcore/jeebie/addr"
	"github.com/tkellan/dmgcore/jeebie/cpu"
	"github.com/tkellan/dmgcore/jeebie/debug"
	"github.com/tkellan/dmgcore/jeebie/memory"
	"github.com/tkellan/dmgcore/jeebie/video"
)

// DebuggerState represents the current debugger mode
type DebuggerState int

const (
	DebuggerRunning   DebuggerState = iota // Normal execution
	DebuggerPaused                         // Paused, waiting for commands
	DebuggerStep                           // Execute one instruction then pause
	DebuggerStepFrame                      // Execute one frame then pause
)

// Emulator represents the root struct and entry point for running the emulation
type Emulator struct {
	cpu *cpu.CPU
	gpu *video.GPU
	mem *memory.MMU

	debugSession *debug.Session

	// Construction options, applied in init()
	bootROM      []byte
	timerSeed    uint16
	timerSeedSet bool
	serialPort   memory.SerialPort

	// Debugger state
	debuggerState    DebuggerState
	debuggerMutex    sync.RWMutex
	stepRequested    bool
	frameRequested   bool
	instructionCount uint64
	frameCount       uint64
}

// Option configures an Emulator at construction time, the way
// serial.LogSinkOption configures a LogSink.
type Option func(*Emulator)

// WithBootROM overlays the given 256-byte boot ROM at 0x0000-0x00FF until
// the guest disables it by writing to 0xFF50, instead of starting at the
// documented post-boot register state.
func WithBootROM(data []byte) Option {
	return func(e *Emulator) { e.bootROM = data }
}

// WithTimerSeed overrides the internal divider seed the timer starts from.
// Absent this option, the emulator seeds it the same way New() always has.
func WithTimerSeed(seed uint16) Option {
	return func(e *Emulator) { e.timerSeed = seed; e.timerSeedSet = true }
}

// WithSerialPort wires a custom serial device in place of the default
// log-sink, e.g. to connect two emulator instances through a pipe.
func WithSerialPort(port memory.SerialPort) Option {
	return func(e *Emulator) { e.serialPort = port }
}

func (e *Emulator) init(mem *memory.MMU) {
	if e.serialPort != nil {
		mem.SetSerialPort(e.serialPort)
	}

	if e.bootROM != nil {
		mem.SetBootROM(e.bootROM)
		e.cpu = cpu.New(mem)
		e.cpu.ResetToBootROM()
	} else {
		e.cpu = cpu.New(mem)
	}

	if e.timerSeedSet {
		mem.SetTimerSeed(e.timerSeed)
	} else {
		mem.SetTimerSeed(0xABCC)
	}

	e.gpu = video.NewGpu(mem)
	e.mem = mem
	e.debugSession = debug.NewSession(e)
}

var _ debug.Target = (*Emulator)(nil)

// Registers satisfies debug.Target, snapshotting CPU state for a
// GetRegisters debug command.
func (e *Emulator) Registers() debug.CPUState {
	return debug.CPUState{
		A: e.cpu.GetA(), F: e.cpu.GetF(), B: e.cpu.GetB(), C: e.cpu.GetC(),
		D: e.cpu.GetD(), E: e.cpu.GetE(), H: e.cpu.GetH(), L: e.cpu.GetL(),
		SP: e.cpu.GetSP(), PC: e.cpu.GetPC(), IME: e.cpu.IME(), Cycles: e.cpu.GetCycles(),
	}
}

// ReadByte satisfies debug.Target, letting a Session peek memory without
// depending on *memory.MMU directly.
func (e *Emulator) ReadByte(addr uint16) uint8 { return e.mem.Read(addr) }

// StepInstruction satisfies debug.Target, executing exactly one CPU
// instruction (ticking the GPU to keep them in lockstep) and returning the
// number of cycles it took.
func (e *Emulator) StepInstruction() int {
	cycles := e.cpu.Tick()
	e.gpu.Tick(cycles)
	e.instructionCount++
	return cycles
}

// DebugSession returns the emulator's debug command/response channel pair.
func (e *Emulator) DebugSession() *debug.Session {
	return e.debugSession
}

// ExtractDebugData satisfies backend.DebugDataProvider, giving backends a
// snapshot of CPU/OAM/VRAM state without exposing the emulator's internals.
func (e *Emulator) ExtractDebugData() *debug.CompleteDebugData {
	pc := e.cpu.GetPC()
	lcdc := e.mem.Read(addr.LCDC)
	ly := e.mem.Read(addr.LY)

	spriteHeight := 8
	if lcdc&0x04 != 0 {
		spriteHeight = 16
	}

	snapshotStart := pc
	if snapshotStart > 16 {
		snapshotStart -= 16
	} else {
		snapshotStart = 0
	}
	snapshotBytes := make([]uint8, 48)
	for i := range snapshotBytes {
		snapshotBytes[i] = e.mem.Read(snapshotStart + uint16(i))
	}

	var debuggerState debug.DebuggerState
	switch e.GetDebuggerState() {
	case DebuggerPaused:
		debuggerState = debug.DebuggerPaused
	case DebuggerStep:
		debuggerState = debug.DebuggerStepInstruction
	case DebuggerStepFrame:
		debuggerState = debug.DebuggerStepFrame
	default:
		debuggerState = debug.DebuggerRunning
	}

	return &debug.CompleteDebugData{
		OAM:  debug.ExtractOAMData(e.mem, int(ly), spriteHeight),
		VRAM: debug.ExtractVRAMData(e.mem),
		CPU: &debug.CPUState{
			A: e.cpu.GetA(), F: e.cpu.GetF(), B: e.cpu.GetB(), C: e.cpu.GetC(),
			D: e.cpu.GetD(), E: e.cpu.GetE(), H: e.cpu.GetH(), L: e.cpu.GetL(),
			SP: e.cpu.GetSP(), PC: pc, IME: e.cpu.IME(), Cycles: e.cpu.GetCycles(),
		},
		Memory:          &debug.MemorySnapshot{StartAddr: snapshotStart, Bytes: snapshotBytes},
		DebuggerState:   debuggerState,
		InterruptEnable: e.mem.Read(addr.IE),
		InterruptFlags:  e.mem.Read(addr.IF),
	}
}

func newWithOptions(mem *memory.MMU, opts []Option) *Emulator {
	e := &Emulator{}
	for _, opt := range opts {
		opt(e)
	}
	e.init(mem)
	return e
}

// New creates a new emulator instance
func New(opts ...Option) *Emulator {
	return newWithOptions(memory.NewWithCartridge(memory.NewCartridge()), opts)
}

// NewWithFile creates a new emulator instance and loads the file specified into it.
func NewWithFile(path string, opts ...Option) (*Emulator, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	slog.Debug("Loaded ROM data", "size", len(data))

	cart, err := memory.NewCartridgeWithData(data)
	if err != nil {
		return nil, err
	}

	return newWithOptions(memory.NewWithCartridge(cart), opts), nil
}

func (e *Emulator) RunUntilFrame() {
	e.debugSession.ProcessPending()

	e.debuggerMutex.RLock()
	state := e.debuggerState
	e.debuggerMutex.RUnlock()

	// Handle paused state - don't execute anything
	if state == DebuggerPaused {
		return
	}

	// Handle step instruction - execute one instruction then pause
	if state == DebuggerStep {
		e.debuggerMutex.Lock()
		if e.stepRequested {
			e.stepRequested = false
			e.debuggerMutex.Unlock()

			// Execute one CPU instruction
			oldPC := e.cpu.GetPC()
			cycles := e.cpu.Tick()
			e.gpu.Tick(cycles)
			e.instructionCount++

			// Log the executed instruction
			slog.Debug("Step executed", "pc", fmt.Sprintf("0x%04X", oldPC), "new_pc", fmt.Sprintf("0x%04X", e.cpu.GetPC()))

			// Pause after execution
			e.SetDebuggerState(DebuggerPaused)
		} else {
			e.debuggerMutex.Unlock()
		}
		return
	}

	// Handle step frame - execute one frame then pause
	if state == DebuggerStepFrame {
		e.debuggerMutex.Lock()
		frameRequested := e.frameRequested
		if frameRequested {
			e.frameRequested = false
		}
		e.debuggerMutex.Unlock()

		if frameRequested {
			// Execute one full frame
			total := 0
			for {
				cycles := e.cpu.Tick()
				e.gpu.Tick(cycles)
				e.instructionCount++
				total += cycles

				if total >= 70224 {
					break
				}
			}
			e.frameCount++
			slog.Debug("Frame step completed", "frame", e.frameCount, "instructions", e.instructionCount)
			e.SetDebuggerState(DebuggerPaused)
		}
		return
	}

	// Normal execution (DebuggerRunning)
	total := 0
	for {
		cycles := e.cpu.Tick()
		e.gpu.Tick(cycles)
		e.instructionCount++

		total += cycles

		if total >= 70224 {
			e.frameCount++
			// Log every 60 frames (once per second at 60 FPS) only when running
			if e.frameCount%60 == 0 {
				slog.Debug("Frame completed", "frame", e.frameCount, "pc", fmt.Sprintf("0x%04X", e.cpu.GetPC()))
			}
			return
		}
	}
}

func (e *Emulator) GetCurrentFrame() *video.FrameBuffer {
	return e.gpu.GetFrameBuffer()
}

func (e *Emulator) HandleKeyPress(key memory.JoypadKey) {
	e.mem.HandleKeyPress(key)
}

func (e *Emulator) HandleKeyRelease(key memory.JoypadKey) {
	e.mem.HandleKeyRelease(key)
}

func (e *Emulator) GetCPU() *cpu.CPU {
	return e.cpu
}

// Debugger control methods
func (e *Emulator) SetDebuggerState(state DebuggerState) {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.debuggerState = state
	slog.Debug("Debugger state changed", "state", state)
}

func (e *Emulator) GetDebuggerState() DebuggerState {
	e.debuggerMutex.RLock()
	defer e.debuggerMutex.RUnlock()
	return e.debuggerState
}

func (e *Emulator) DebuggerPause() {
	e.SetDebuggerState(DebuggerPaused)
	slog.Info("Emulator paused")
}

func (e *Emulator) DebuggerResume() {
	e.SetDebuggerState(DebuggerRunning)
	slog.Info("Emulator resumed")
}

func (e *Emulator) DebuggerStepInstruction() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.stepRequested = true
	e.debuggerState = DebuggerStep
	slog.Info("Step instruction requested")
}

func (e *Emulator) DebuggerStepFrame() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.frameRequested = true
	e.debuggerState = DebuggerStepFrame
	slog.Info("Step frame requested")
}

func (e *Emulator) GetInstructionCount() uint64 {
	return e.instructionCount
}

func (e *Emulator) GetFrameCount() uint64 {
	return e.frameCount
}

func (e *Emulator) GetMMU() *memory.MMU {
	return e.mem
}
