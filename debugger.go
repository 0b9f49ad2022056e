package lochsemu

import (
	"encoding/json"
	"sync"
)

// Breakpoint is a single address breakpoint. Module/Offset/Desc/Enabled are
// the portable, serialized identity (an address relocated at a different
// load base still resolves); Address/ModuleName are resolved at load time
// and never archived. Mirrors original_source/Prophet/dbg/breakpoint.h's
// serialize/non-serialize field split.
type Breakpoint struct {
	// serialize
	Module  uint32
	Offset  uint32
	Desc    string
	Enabled bool

	// non-serialize
	Address    uint32
	ModuleName string
}

type breakpointDoc struct {
	Module  uint32 `json:"module"`
	Offset  uint32 `json:"offset"`
	Desc    string `json:"desc"`
	Enabled bool   `json:"enabled"`
}

// Watchpoint fires when the byte range it covers is written. Like
// Breakpoint, only the module-relative identity is archived.
type Watchpoint struct {
	Module  uint32
	Offset  uint32
	Len     uint32
	Desc    string
	Enabled bool

	Address uint32
}

type watchpointDoc struct {
	Module  uint32 `json:"module"`
	Offset  uint32 `json:"offset"`
	Len     uint32 `json:"len"`
	Desc    string `json:"desc"`
	Enabled bool   `json:"enabled"`
}

// Debugger owns the breakpoint/watchpoint tables and the internal
// subscriber hooks the Engine drives. RWMutex-guarded maps keyed by a
// stable id, the same shape as debug_cpu_x86.go's DebugX86.
type Debugger struct {
	mu          sync.RWMutex
	breakpoints map[uint64]*Breakpoint
	watchpoints map[uint64]*Watchpoint
	nextID      uint64

	currentThreadID uint32
}

// NewDebugger returns an empty Debugger.
func NewDebugger() *Debugger {
	return &Debugger{
		breakpoints: make(map[uint64]*Breakpoint),
		watchpoints: make(map[uint64]*Watchpoint),
	}
}

// AddBreakpoint registers bp and returns its id.
func (d *Debugger) AddBreakpoint(bp *Breakpoint) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.breakpoints[id] = bp
	return id
}

// RemoveBreakpoint drops a previously added breakpoint.
func (d *Debugger) RemoveBreakpoint(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.breakpoints, id)
}

// AddWatchpoint registers wp and returns its id.
func (d *Debugger) AddWatchpoint(wp *Watchpoint) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.watchpoints[id] = wp
	return id
}

// RemoveWatchpoint drops a previously added watchpoint.
func (d *Debugger) RemoveWatchpoint(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.watchpoints, id)
}

// HitBreakpoint reports whether any enabled breakpoint resolves to addr.
func (d *Debugger) HitBreakpoint(addr uint32) (*Breakpoint, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, bp := range d.breakpoints {
		if bp.Enabled && bp.Address == addr {
			return bp, true
		}
	}
	return nil, false
}

// HitWatchpoint reports whether any enabled watchpoint covers
// [addr, addr+n).
func (d *Debugger) HitWatchpoint(addr uint32, n int) (*Watchpoint, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, wp := range d.watchpoints {
		if !wp.Enabled {
			continue
		}
		lo, hi := wp.Address, wp.Address+wp.Len
		if addr < hi && addr+uint32(n) > lo {
			return wp, true
		}
	}
	return nil, false
}

// --- Engine subscriber hooks ---

// OnPreExecute does not itself check the instruction's address against the
// breakpoint table: the host reports a hit via HitBreakpoint at its own
// pre-execute call site, where breaking the run loop is its responsibility.
func (d *Debugger) OnPreExecute(ev *PreExecuteEvent) {}

func (d *Debugger) OnPostExecute(ev *PostExecuteEvent) {}

func (d *Debugger) OnMemRead(ev *MemReadEvent) {}

// OnMemWrite does not itself check the write against watchpoints: like
// OnPreExecute's breakpoint check, reporting a hit is the host's
// responsibility via HitWatchpoint, called at the host's own mem-write
// call site where it can act on the result (break the run loop, notify
// the GUI). The subscriber hook exists only to keep Debugger's shape
// uniform across every event family.
func (d *Debugger) OnMemWrite(ev *MemWriteEvent) {}

func (d *Debugger) OnProcessPreRun(ev *ProcessPreRunEvent) {}

func (d *Debugger) OnProcessPostLoad(ev *ProcessPostLoadEvent) {}

func (d *Debugger) OnThreadCreate(ev *ThreadEvent) {
	d.mu.Lock()
	d.currentThreadID = ev.ThreadID
	d.mu.Unlock()
}

func (d *Debugger) OnThreadExit(ev *ThreadEvent) {}

// OnTerminate is called once from Engine.Terminate.
func (d *Debugger) OnTerminate() {}

// GetCurrentThreadId returns the most recently created thread id (the
// original's notion of "the thread the GUI/CLI is inspecting").
func (d *Debugger) GetCurrentThreadId() uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.currentThreadID
}

// --- Serializable ---

type debuggerDoc struct {
	Breakpoints []breakpointDoc `json:"breakpoints"`
	Watchpoints []watchpointDoc `json:"watchpoints"`
}

// Serialize emits every breakpoint/watchpoint's serializable fields only.
func (d *Debugger) Serialize() (json.RawMessage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	doc := debuggerDoc{}
	for _, bp := range d.breakpoints {
		doc.Breakpoints = append(doc.Breakpoints, breakpointDoc{
			Module: bp.Module, Offset: bp.Offset, Desc: bp.Desc, Enabled: bp.Enabled,
		})
	}
	for _, wp := range d.watchpoints {
		doc.Watchpoints = append(doc.Watchpoints, watchpointDoc{
			Module: wp.Module, Offset: wp.Offset, Len: wp.Len, Desc: wp.Desc, Enabled: wp.Enabled,
		})
	}
	return json.Marshal(doc)
}

// Deserialize replaces the breakpoint/watchpoint tables with the archived
// ones. Address/ModuleName (non-serialized) are left zero; the caller must
// re-resolve them once the target module is loaded at its actual base.
func (d *Debugger) Deserialize(data json.RawMessage) error {
	var doc debuggerDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.breakpoints = make(map[uint64]*Breakpoint, len(doc.Breakpoints))
	for _, b := range doc.Breakpoints {
		id := d.nextID
		d.nextID++
		d.breakpoints[id] = &Breakpoint{Module: b.Module, Offset: b.Offset, Desc: b.Desc, Enabled: b.Enabled}
	}
	d.watchpoints = make(map[uint64]*Watchpoint, len(doc.Watchpoints))
	for _, w := range doc.Watchpoints {
		id := d.nextID
		d.nextID++
		d.watchpoints[id] = &Watchpoint{Module: w.Module, Offset: w.Offset, Len: w.Len, Desc: w.Desc, Enabled: w.Enabled}
	}
	return nil
}
