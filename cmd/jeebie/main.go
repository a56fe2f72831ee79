package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli"
	"github.com/tkellan/dmgcore/jeebie"
	"github.com/tkellan/dmgcore/jeebie/backend"
	"github.com/tkellan/dmgcore/jeebie/backend/headless"
	bsdl2 "github.com/tkellan/dmgcore/jeebie/backend/sdl2"
	"github.com/tkellan/dmgcore/jeebie/backend/terminal"
	"github.com/tkellan/dmgcore/jeebie/debug"
	"github.com/tkellan/dmgcore/jeebie/input"
	"github.com/tkellan/dmgcore/jeebie/input/action"
	"github.com/tkellan/dmgcore/jeebie/input/event"
)

const frameTime = time.Second / 60

func main() {
	app := cli.NewApp()
	app.Name = "Jeebie"
	app.Description = "A simple gameboy emulator"
	app.Usage = "jeebie [options] <ROM file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "Path to the ROM file",
		},
		cli.StringFlag{
			Name:  "backend",
			Usage: "Rendering backend: terminal, sdl2, or headless",
			Value: "terminal",
		},
		cli.StringFlag{
			Name:  "boot-rom",
			Usage: "Path to a 256-byte boot ROM image to run before the cartridge",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run in headless mode (required for headless)",
			Value: 0,
		},
		cli.IntFlag{
			Name:  "snapshot-interval",
			Usage: "Save frame snapshots every N frames in headless mode (0 = disabled)",
			Value: 0,
		},
		cli.StringFlag{
			Name:  "snapshot-dir",
			Usage: "Directory to save frame snapshots (default: temp directory)",
		},
		cli.BoolFlag{
			Name:  "debug-step",
			Usage: "Start paused in single-step debugger mode",
		},
		cli.StringSliceFlag{
			Name:  "watch",
			Usage: "Watch a memory address, e.g. --watch 0xFF40 (repeatable)",
		},
		cli.BoolFlag{
			Name:  "show-debug",
			Usage: "Show the backend's debug overlay (registers, OAM/VRAM) if supported",
		},
	}
	app.Action = runEmulator

	if err := app.Run(os.Args); err != nil {
		slog.Error("Error running emulator", "error", err)
		os.Exit(1)
	}
}

func runEmulator(c *cli.Context) error {
	romPath := c.String("rom")
	if romPath == "" {
		if c.NArg() > 0 {
			romPath = c.Args().Get(0)
		} else {
			cli.ShowAppHelp(c)
			return errors.New("no ROM path provided")
		}
	}

	var opts []jeebie.Option
	if bootROMPath := c.String("boot-rom"); bootROMPath != "" {
		data, err := os.ReadFile(bootROMPath)
		if err != nil {
			return fmt.Errorf("failed to read boot ROM: %w", err)
		}
		opts = append(opts, jeebie.WithBootROM(data))
	}

	emu, err := jeebie.NewWithFile(romPath, opts...)
	if err != nil {
		return err
	}

	if c.Bool("debug-step") {
		emu.SetDebuggerState(jeebie.DebuggerPaused)
	}

	session := emu.DebugSession()
	for _, raw := range c.StringSlice("watch") {
		addr, err := parseWatchAddress(raw)
		if err != nil {
			return err
		}
		session.TrySend(debug.Command{Kind: debug.CmdWatchAddress, Addr: addr})
	}

	be, err := selectBackend(c)
	if err != nil {
		return err
	}

	config := backend.BackendConfig{
		Title:         "Jeebie",
		ShowDebug:     c.Bool("show-debug"),
		DebugProvider: emu,
	}
	if err := be.Init(config); err != nil {
		return err
	}
	defer be.Cleanup()

	inputManager := input.NewManager(emu.GetMMU())
	inputManager.On(action.EmulatorPauseToggle, event.Press, func() {
		if emu.GetDebuggerState() == jeebie.DebuggerPaused {
			emu.DebuggerResume()
		} else {
			emu.DebuggerPause()
		}
	})
	inputManager.On(action.EmulatorStepInstruction, event.Press, emu.DebuggerStepInstruction)
	inputManager.On(action.EmulatorStepFrame, event.Press, emu.DebuggerStepFrame)

	ticker := time.NewTicker(frameTime)
	defer ticker.Stop()

	running := true
	for running {
		<-ticker.C

		emu.RunUntilFrame()

		for {
			resp, ok := session.TryRecv()
			if !ok {
				break
			}
			logDebugResponse(resp)
		}

		events, err := be.Update(emu.GetCurrentFrame())
		if err != nil {
			return err
		}

		for _, evt := range events {
			if evt.Action == action.EmulatorQuit {
				running = false
				continue
			}
			inputManager.Trigger(evt.Action, evt.Type)
		}
	}

	return nil
}

func selectBackend(c *cli.Context) (backend.Backend, error) {
	switch c.String("backend") {
	case "terminal":
		return terminal.New(), nil
	case "sdl2":
		return bsdl2.New(), nil
	case "headless":
		frames := c.Int("frames")
		if frames <= 0 {
			return nil, errors.New("headless backend requires --frames with a positive value")
		}
		snapshotConfig, err := headless.CreateSnapshotConfig(c.Int("snapshot-interval"), c.String("snapshot-dir"), c.String("rom"))
		if err != nil {
			return nil, err
		}
		return headless.New(frames, snapshotConfig), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want terminal, sdl2, or headless)", c.String("backend"))
	}
}

func parseWatchAddress(raw string) (uint16, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	raw = strings.TrimPrefix(raw, "0X")
	value, err := strconv.ParseUint(raw, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid --watch address %q: %w", raw, err)
	}
	return uint16(value), nil
}

func logDebugResponse(resp debug.Response) {
	switch resp.Kind {
	case debug.RespAddressesWatched:
		for addr, value := range resp.WatchedAddresses {
			slog.Debug("watch", "addr", fmt.Sprintf("0x%04X", addr), "value", fmt.Sprintf("0x%02X", value))
		}
	case debug.RespRegisters:
		slog.Debug("registers", "pc", fmt.Sprintf("0x%04X", resp.Registers.PC), "sp", fmt.Sprintf("0x%04X", resp.Registers.SP))
	case debug.RespInstructionsExecuted:
		slog.Debug("step", "instructions", resp.InstructionsExecuted)
	case debug.RespStepModeSet:
		slog.Debug("step mode", "enabled", resp.StepMode)
	case debug.RespNextInstructions:
		for _, line := range resp.NextInstructions {
			slog.Debug("disasm", "addr", fmt.Sprintf("0x%04X", line.Address), "instruction", line.Instruction)
		}
	}
}
