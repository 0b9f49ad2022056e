package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	lochsemu "github.com/JackBro/lochsemu"
)

// traceStepDoc is one line of a host-supplied offline trace file: a single
// recorded TContext, serialized the way a real CPU emulator's execution
// log would be. lochsdbg replays these through the engine's post-execute
// pipeline without a live Decoder/Processor, since the host emulator that
// would otherwise drive it is a separate, external component.
type traceStepDoc struct {
	Eip       uint32             `json:"eip"`
	GPRegs    [8]uint32          `json:"gpr"`
	Flags     uint32             `json:"flags"`
	Mr        lochsemu.MemAccess `json:"mr"`
	Mw        lochsemu.MemAccess `json:"mw"`
	ExecFlags uint32             `json:"exec_flags"`
	ProcEntry uint32             `json:"proc_entry"`
}

func (d traceStepDoc) toContext() lochsemu.TContext {
	return lochsemu.TContext{
		Eip:       d.Eip,
		GPRegs:    d.GPRegs,
		Flags:     d.Flags,
		Mr:        d.Mr,
		Mw:        d.Mw,
		ExecFlags: d.ExecFlags,
		ProcEntry: d.ProcEntry,
	}
}

// replayTrace feeds every JSON-lines step in path through engine's
// OnPostExecute, as if a live CPU had just executed it. Returns the number
// of steps replayed.
func replayTrace(path string, engine *lochsemu.Engine) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("lochsdbg: opening trace file %q: %w", path, err)
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var step traceStepDoc
		if err := json.Unmarshal(line, &step); err != nil {
			return n, fmt.Errorf("lochsdbg: parsing trace line %d: %w", n+1, err)
		}
		ctx := step.toContext()
		engine.OnPostExecute(nil, nil, ctx)
		n++
	}
	if err := sc.Err(); err != nil && err != io.EOF {
		return n, fmt.Errorf("lochsdbg: reading trace file %q: %w", path, err)
	}
	return n, nil
}
