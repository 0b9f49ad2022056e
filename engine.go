package lochsemu

import (
	"go.uber.org/zap"
)

// --- events ---
//
// Every event family carries the payload the original's event classes
// carry, plus a Vetoed flag a pre-pass plugin can set to stop the event
// from reaching the internal subscribers and the post-observation pass.
// Grounded on original_source/Prophet/engine.cpp's PreExecuteEvent /
// PostExecuteEvent / MemReadEvent / ... hierarchy.

type PreExecuteEvent struct {
	Cpu    *Processor
	Inst   *Inst
	Vetoed bool
}

// Veto stops the event short of the internal subscribers and the
// post-observation plugin pass.
func (e *PreExecuteEvent) Veto() { e.Vetoed = true }

type PostExecuteEvent struct {
	Cpu    *Processor
	Inst   *Inst
	Ctx    *TContext
	Vetoed bool
}

func (e *PostExecuteEvent) Veto() { e.Vetoed = true }

type MemReadEvent struct {
	Cpu    *Processor
	Addr   uint32
	Data   []byte
	Vetoed bool
}

func (e *MemReadEvent) Veto() { e.Vetoed = true }

type MemWriteEvent struct {
	Cpu    *Processor
	Addr   uint32
	Data   []byte
	Vetoed bool
}

func (e *MemWriteEvent) Veto() { e.Vetoed = true }

type ProcessPreRunEvent struct {
	Cpu    *Processor
	Vetoed bool
}

func (e *ProcessPreRunEvent) Veto() { e.Vetoed = true }

type ProcessPostRunEvent struct {
	Vetoed bool
}

func (e *ProcessPostRunEvent) Veto() { e.Vetoed = true }

type ProcessPreLoadEvent struct {
	Vetoed bool
}

func (e *ProcessPreLoadEvent) Veto() { e.Vetoed = true }

type ProcessPostLoadEvent struct {
	BinaryPath string
	ModuleName string
	Vetoed     bool
}

func (e *ProcessPostLoadEvent) Veto() { e.Vetoed = true }

type WinapiCallEvent struct {
	Cpu      *Processor
	ApiIndex uint32
	Vetoed   bool
}

func (e *WinapiCallEvent) Veto() { e.Vetoed = true }

type ThreadEvent struct {
	ThreadID uint32
	Vetoed   bool
}

func (e *ThreadEvent) Veto() { e.Vetoed = true }

// --- internal subscriber interfaces ---
//
// The engine only needs the handful of hooks it actually calls; concrete
// Debugger/Protocol/Disassembler/RunTrace implementations satisfy these
// structurally, no explicit `implements` wiring required.

type debuggerSub interface {
	OnPreExecute(*PreExecuteEvent)
	OnPostExecute(*PostExecuteEvent)
	OnMemRead(*MemReadEvent)
	OnMemWrite(*MemWriteEvent)
	OnProcessPreRun(*ProcessPreRunEvent)
	OnProcessPostLoad(*ProcessPostLoadEvent)
	OnThreadCreate(*ThreadEvent)
	OnThreadExit(*ThreadEvent)
	OnTerminate()
}

type protocolSub interface {
	OnPreExecute(*PreExecuteEvent)
	OnPostExecute(*PostExecuteEvent)
	OnMemRead(*MemReadEvent)
	OnMemWrite(*MemWriteEvent)
	OnProcessPreRun(*ProcessPreRunEvent)
	OnProcessPostRun(*ProcessPostRunEvent)
	OnProcessPreLoad(*ProcessPreLoadEvent)
	OnProcessPostLoad(*ProcessPostLoadEvent)
	OnWinapiPreCall(*WinapiCallEvent)
	OnWinapiPostCall(*WinapiCallEvent)
	OnExecuteTrace(*TContext)
}

// Engine is the event bus tying every core component together: it ensures
// the current instruction is disassembled, then drives pre/post-execute,
// mem-read/write, process lifecycle, and winapi call events through a
// fixed subscriber order with plugin veto/observe passes on either side.
// Grounded on original_source/Prophet/engine.cpp.
type Engine struct {
	Disasm   *Disassembler
	Debugger debuggerSub
	Tracer   *RunTrace
	Taint    *TaintEngine
	Protocol protocolSub
	Plugins  *PluginHost
	Archive  *Archive

	enabled       bool
	archiveLoaded bool
	instExecuted  uint64

	log *zap.SugaredLogger
}

// NewEngine wires the core components together. Any of debugger/taint/
// protocol may be nil (their hooks are then simply skipped) to support
// using the Engine in tests that only exercise a subset of the pipeline.
func NewEngine(disasm *Disassembler, debugger debuggerSub, tracer *RunTrace, taint *TaintEngine, protocol protocolSub, plugins *PluginHost, archive *Archive, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = NopLogger()
	}
	return &Engine{
		Disasm:   disasm,
		Debugger: debugger,
		Tracer:   tracer,
		Taint:    taint,
		Protocol: protocol,
		Plugins:  plugins,
		Archive:  archive,
		enabled:  true,
		log:      log,
	}
}

// InstExecuted returns the running count of OnPostExecute calls, counted
// even while the engine is disabled (matching m_instExecuted++'s position
// in the original, before the enabled check).
func (en *Engine) InstExecuted() uint64 { return en.instExecuted }

// OnPreExecute ensures eip is disassembled, then dispatches the
// debugger → protocol subscriber chain between a
// pre-veto and a post-observation plugin pass.
func (en *Engine) OnPreExecute(mem MemorySectionLookup, cpu *Processor, eip uint32) {
	if !en.enabled {
		return
	}

	var inst *Inst
	if en.Disasm != nil {
		var err error
		inst, err = en.Disasm.Disassemble(mem, eip)
		if err != nil {
			en.log.Debugw("lochsemu: disassembly failed", "eip", eip, "err", err)
		}
	}

	ev := &PreExecuteEvent{Cpu: cpu, Inst: inst}

	if en.Plugins != nil {
		en.Plugins.OnPreExecute(ev, true)
	}
	if ev.Vetoed {
		return
	}

	if en.Debugger != nil {
		en.Debugger.OnPreExecute(ev)
	}
	if en.Protocol != nil {
		en.Protocol.OnPreExecute(ev)
	}

	if en.Plugins != nil {
		en.Plugins.OnPreExecute(ev, false)
	}
}

// OnPostExecute applies the taint propagation rule for the executed
// instruction, records ctx into the trace buffer, and forwards it to
// Protocol's OnExecuteTrace, inside the same tracer → debugger → protocol
// subscriber order as every other event family. Per §2's data flow, taint
// dispatch happens "after the host executes the instruction ... then
// appends a TContext to the Trace Buffer", so Dispatch runs before Trace.
func (en *Engine) OnPostExecute(cpu *Processor, inst *Inst, ctx TContext) {
	en.instExecuted++

	if !en.enabled {
		return
	}
	ev := &PostExecuteEvent{Cpu: cpu, Inst: inst, Ctx: &ctx}

	if en.Plugins != nil {
		en.Plugins.OnPostExecute(ev, true)
	}
	if ev.Vetoed {
		return
	}

	if en.Taint != nil {
		en.Taint.Dispatch(ev.Ctx)
	}
	if en.Tracer != nil {
		en.Tracer.Trace(ctx)
	}
	if en.Debugger != nil {
		en.Debugger.OnPostExecute(ev)
	}
	if en.Protocol != nil {
		en.Protocol.OnPostExecute(ev)
		en.Protocol.OnExecuteTrace(ev.Ctx)
	}

	if en.Plugins != nil {
		en.Plugins.OnPostExecute(ev, false)
	}
}

func (en *Engine) OnMemRead(cpu *Processor, addr uint32, data []byte) {
	if !en.enabled {
		return
	}
	ev := &MemReadEvent{Cpu: cpu, Addr: addr, Data: data}

	if en.Plugins != nil {
		en.Plugins.OnMemRead(ev, true)
	}
	if ev.Vetoed {
		return
	}

	if en.Debugger != nil {
		en.Debugger.OnMemRead(ev)
	}
	if en.Protocol != nil {
		en.Protocol.OnMemRead(ev)
	}

	if en.Plugins != nil {
		en.Plugins.OnMemRead(ev, false)
	}
}

func (en *Engine) OnMemWrite(cpu *Processor, addr uint32, data []byte) {
	if !en.enabled {
		return
	}
	ev := &MemWriteEvent{Cpu: cpu, Addr: addr, Data: data}

	if en.Plugins != nil {
		en.Plugins.OnMemWrite(ev, true)
	}
	if ev.Vetoed {
		return
	}

	if en.Debugger != nil {
		en.Debugger.OnMemWrite(ev)
	}
	if en.Protocol != nil {
		en.Protocol.OnMemWrite(ev)
	}

	if en.Plugins != nil {
		en.Plugins.OnMemWrite(ev, false)
	}
}

func (en *Engine) OnProcessPreRun(cpu *Processor) {
	if !en.enabled {
		return
	}
	ev := &ProcessPreRunEvent{Cpu: cpu}

	if en.Plugins != nil {
		en.Plugins.OnProcessPreRun(ev, true)
	}
	if ev.Vetoed {
		return
	}

	if en.Debugger != nil {
		en.Debugger.OnProcessPreRun(ev)
	}
	if en.Protocol != nil {
		en.Protocol.OnProcessPreRun(ev)
	}

	if en.Plugins != nil {
		en.Plugins.OnProcessPreRun(ev, false)
	}
}

// OnProcessPostRun notifies Protocol, then saves the archive (matching the
// original's SaveArchive() call at this exact point).
func (en *Engine) OnProcessPostRun() error {
	if !en.enabled {
		return nil
	}
	ev := &ProcessPostRunEvent{}

	if en.Plugins != nil {
		en.Plugins.OnProcessPostRun(ev, true)
	}
	if ev.Vetoed {
		return nil
	}

	if en.Protocol != nil {
		en.Protocol.OnProcessPostRun(ev)
	}

	var err error
	if en.Archive != nil {
		err = en.Archive.Save()
	}

	if en.Plugins != nil {
		en.Plugins.OnProcessPostRun(ev, false)
	}
	return err
}

func (en *Engine) OnProcessPreLoad() {
	if !en.enabled {
		return
	}
	ev := &ProcessPreLoadEvent{}

	if en.Plugins != nil {
		en.Plugins.OnProcessPreLoad(ev, true)
	}
	if ev.Vetoed {
		return
	}

	if en.Protocol != nil {
		en.Protocol.OnProcessPreLoad(ev)
	}

	if en.Plugins != nil {
		en.Plugins.OnProcessPreLoad(ev, false)
	}
}

// OnProcessPostLoad loads the archive before the internal subscribers run
// (matching the original's LoadArchive call preceding
// m_debugger.OnProcessPostLoad/m_tracer.OnProcessPostLoad).
func (en *Engine) OnProcessPostLoad(binaryPath, moduleName string) error {
	if !en.enabled {
		return nil
	}
	ev := &ProcessPostLoadEvent{BinaryPath: binaryPath, ModuleName: moduleName}

	if en.Plugins != nil {
		en.Plugins.OnProcessPostLoad(ev, true)
	}
	if ev.Vetoed {
		return nil
	}

	var err error
	if en.Archive != nil {
		err = en.Archive.Load(binaryPath, moduleName)
		en.archiveLoaded = err == nil
	}

	if en.Debugger != nil {
		en.Debugger.OnProcessPostLoad(ev)
	}
	if en.Protocol != nil {
		en.Protocol.OnProcessPostLoad(ev)
	}

	if en.Plugins != nil {
		en.Plugins.OnProcessPostLoad(ev, false)
	}
	return err
}

func (en *Engine) OnWinapiPreCall(cpu *Processor, apiIndex uint32) {
	if !en.enabled {
		return
	}
	ev := &WinapiCallEvent{Cpu: cpu, ApiIndex: apiIndex}

	if en.Plugins != nil {
		en.Plugins.OnWinapiPreCall(ev, true)
	}
	if ev.Vetoed {
		return
	}

	if en.Protocol != nil {
		en.Protocol.OnWinapiPreCall(ev)
	}

	if en.Plugins != nil {
		en.Plugins.OnWinapiPreCall(ev, false)
	}
}

func (en *Engine) OnWinapiPostCall(cpu *Processor, apiIndex uint32) {
	if !en.enabled {
		return
	}
	ev := &WinapiCallEvent{Cpu: cpu, ApiIndex: apiIndex}

	if en.Plugins != nil {
		en.Plugins.OnWinapiPostCall(ev, true)
	}
	if ev.Vetoed {
		return
	}

	if en.Protocol != nil {
		en.Protocol.OnWinapiPostCall(ev)
	}

	if en.Plugins != nil {
		en.Plugins.OnWinapiPostCall(ev, false)
	}
}

func (en *Engine) OnThreadCreate(threadID uint32) {
	if !en.enabled {
		return
	}
	ev := &ThreadEvent{ThreadID: threadID}

	if en.Plugins != nil {
		en.Plugins.OnThreadCreate(ev, true)
	}
	if ev.Vetoed {
		return
	}

	if en.Debugger != nil {
		en.Debugger.OnThreadCreate(ev)
	}

	if en.Plugins != nil {
		en.Plugins.OnThreadCreate(ev, false)
	}
}

func (en *Engine) OnThreadExit(threadID uint32) {
	if !en.enabled {
		return
	}
	ev := &ThreadEvent{ThreadID: threadID}

	if en.Plugins != nil {
		en.Plugins.OnThreadExit(ev, true)
	}
	if ev.Vetoed {
		return
	}

	if en.Debugger != nil {
		en.Debugger.OnThreadExit(ev)
	}

	if en.Plugins != nil {
		en.Plugins.OnThreadExit(ev, false)
	}
}

// Terminate saves the archive, disables the engine (every subsequent event
// callback becomes a no-op), and notifies the debugger. In-flight handlers
// complete normally; only new calls observe enabled == false.
func (en *Engine) Terminate() error {
	var err error
	if en.Archive != nil && en.archiveLoaded {
		err = en.Archive.Save()
	}
	en.enabled = false
	if en.Debugger != nil {
		en.Debugger.OnTerminate()
	}
	return err
}

// Enabled reports the engine's live/cancelled state.
func (en *Engine) Enabled() bool { return en.enabled }
