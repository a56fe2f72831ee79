package debug

import (
	"sync"

	"github.com/tkellan/dmgcore/jeebie/disasm"
)

// Target is the minimal surface a debug Session drives: read CPU state,
// peek memory, and execute single instructions at a safe point.
type Target interface {
	Registers() CPUState
	ReadByte(addr uint16) uint8
	StepInstruction() int
}

// CommandKind identifies which debug command a Command carries, mirroring
// the commands named in the external interface: SetStepMode,
// ExecuteInstruction(n), ExecuteNextInstructions(n), GetNextInstructions(n),
// GetRegisters, WatchAddress(addr), GetAddresses.
type CommandKind int

const (
	CmdSetStepMode CommandKind = iota
	CmdExecuteInstruction
	CmdExecuteNextInstructions
	CmdGetNextInstructions
	CmdGetRegisters
	CmdWatchAddress
	CmdClearWatch
	CmdGetAddresses
)

// Command is a single typed message sent from a debugger into a Session.
type Command struct {
	Kind  CommandKind
	Count int    // ExecuteNextInstructions, GetNextInstructions
	Addr  uint16 // WatchAddress, ClearWatch
}

// ResponseKind identifies which field of a Response carries the payload.
type ResponseKind int

const (
	RespStepModeSet ResponseKind = iota
	RespInstructionsExecuted
	RespNextInstructions
	RespRegisters
	RespAddressesWatched
)

// Response mirrors the Command that produced it.
type Response struct {
	Kind                 ResponseKind
	StepMode             bool
	InstructionsExecuted int
	NextInstructions     []DisasmLine
	Registers            CPUState
	WatchedAddresses     map[uint16]uint8
}

// sessionQueueCapacity bounds both the command and response channels. A full
// queue drops the newest message rather than blocking either side.
const sessionQueueCapacity = 16

// Session is the debug command/response channel pair: the debugger and the
// emulator core exchange typed messages through bounded queues with
// try_send/try_recv semantics, processed at a safe point before the next
// instruction fetch rather than concurrently with it.
type Session struct {
	target    Target
	commands  chan Command
	responses chan Response

	mu       sync.Mutex
	stepMode bool
	watches  map[uint16]struct{}
}

// NewSession creates a Session driving target. Nothing is processed until
// ProcessPending is called.
func NewSession(target Target) *Session {
	return &Session{
		target:    target,
		commands:  make(chan Command, sessionQueueCapacity),
		responses: make(chan Response, sessionQueueCapacity),
		watches:   make(map[uint16]struct{}),
	}
}

// TrySend enqueues a command. Returns false and drops the command if the
// queue is full.
func (s *Session) TrySend(cmd Command) bool {
	select {
	case s.commands <- cmd:
		return true
	default:
		return false
	}
}

// TryRecv returns the oldest pending response without blocking.
func (s *Session) TryRecv() (Response, bool) {
	select {
	case r := <-s.responses:
		return r, true
	default:
		return Response{}, false
	}
}

// StepMode reports whether single-step mode is currently active.
func (s *Session) StepMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepMode
}

// ProcessPending drains and executes every command currently queued. The
// emulator calls this once per tick, before fetching the next instruction.
func (s *Session) ProcessPending() {
	for {
		select {
		case cmd := <-s.commands:
			s.handle(cmd)
		default:
			return
		}
	}
}

func (s *Session) handle(cmd Command) {
	switch cmd.Kind {
	case CmdSetStepMode:
		s.mu.Lock()
		s.stepMode = !s.stepMode
		stepMode := s.stepMode
		s.mu.Unlock()
		s.respond(Response{Kind: RespStepModeSet, StepMode: stepMode})

	case CmdExecuteInstruction:
		s.target.StepInstruction()
		s.respond(Response{Kind: RespInstructionsExecuted, InstructionsExecuted: 1})

	case CmdExecuteNextInstructions:
		n := cmd.Count
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			s.target.StepInstruction()
		}
		s.respond(Response{Kind: RespInstructionsExecuted, InstructionsExecuted: n})

	case CmdGetNextInstructions:
		s.respond(Response{Kind: RespNextInstructions, NextInstructions: s.nextInstructions(cmd.Count)})

	case CmdGetRegisters:
		s.respond(Response{Kind: RespRegisters, Registers: s.target.Registers()})

	case CmdWatchAddress:
		s.mu.Lock()
		s.watches[cmd.Addr] = struct{}{}
		s.mu.Unlock()
		s.respond(s.watchedResponse())

	case CmdClearWatch:
		s.mu.Lock()
		delete(s.watches, cmd.Addr)
		s.mu.Unlock()
		s.respond(s.watchedResponse())

	case CmdGetAddresses:
		s.respond(s.watchedResponse())
	}
}

func (s *Session) nextInstructions(count int) []DisasmLine {
	if count <= 0 {
		count = 1
	}

	pc := s.target.Registers().PC
	lines := make([]DisasmLine, 0, count)
	addr := pc

	for i := 0; i < count; i++ {
		snapshot := make([]byte, 3)
		for j := range snapshot {
			snapshot[j] = s.target.ReadByte(addr + uint16(j))
		}

		instruction, length := disasm.DisassembleBytes(snapshot, 0)
		lines = append(lines, DisasmLine{
			Address:     addr,
			Instruction: instruction,
			IsCurrent:   addr == pc,
		})
		addr += uint16(length)
	}

	return lines
}

func (s *Session) watchedResponse() Response {
	s.mu.Lock()
	addrs := make([]uint16, 0, len(s.watches))
	for addr := range s.watches {
		addrs = append(addrs, addr)
	}
	s.mu.Unlock()

	values := make(map[uint16]uint8, len(addrs))
	for _, addr := range addrs {
		values[addr] = s.target.ReadByte(addr)
	}
	return Response{Kind: RespAddressesWatched, WatchedAddresses: values}
}

// respond enqueues a response, dropping it if the debugger side isn't
// draining the queue fast enough.
func (s *Session) respond(r Response) {
	select {
	case s.responses <- r:
	default:
	}
}
