package lochsemu

import "testing"

func TestDebuggerBreakpointHit(t *testing.T) {
	d := NewDebugger()
	id := d.AddBreakpoint(&Breakpoint{Address: 0x401000, Enabled: true})

	bp, ok := d.HitBreakpoint(0x401000)
	if !ok || bp == nil {
		t.Fatalf("expected a breakpoint hit at 0x401000")
	}
	if _, ok := d.HitBreakpoint(0x402000); ok {
		t.Fatalf("unrelated address should not hit a breakpoint")
	}

	d.RemoveBreakpoint(id)
	if _, ok := d.HitBreakpoint(0x401000); ok {
		t.Fatalf("breakpoint should no longer hit after removal")
	}
}

func TestDebuggerDisabledBreakpointDoesNotHit(t *testing.T) {
	d := NewDebugger()
	d.AddBreakpoint(&Breakpoint{Address: 0x1000, Enabled: false})
	if _, ok := d.HitBreakpoint(0x1000); ok {
		t.Fatalf("a disabled breakpoint should never report a hit")
	}
}

func TestDebuggerWatchpointRangeOverlap(t *testing.T) {
	d := NewDebugger()
	d.AddWatchpoint(&Watchpoint{Address: 0x2000, Len: 4, Enabled: true})

	if _, ok := d.HitWatchpoint(0x2002, 1); !ok {
		t.Fatalf("a write inside the watched range should hit")
	}
	if _, ok := d.HitWatchpoint(0x1000, 4); ok {
		t.Fatalf("a write entirely before the watched range should not hit")
	}
	if _, ok := d.HitWatchpoint(0x2004, 4); ok {
		t.Fatalf("a write starting exactly at the watched range's end should not hit")
	}
}

func TestDebuggerThreadTracking(t *testing.T) {
	d := NewDebugger()
	d.OnThreadCreate(&ThreadEvent{ThreadID: 42})
	if got := d.GetCurrentThreadId(); got != 42 {
		t.Fatalf("GetCurrentThreadId() = %d, want 42", got)
	}
}

func TestDebuggerSerializeDeserializeDropsResolvedFields(t *testing.T) {
	d := NewDebugger()
	d.AddBreakpoint(&Breakpoint{Module: 1, Offset: 0x20, Desc: "entry", Enabled: true, Address: 0x401020, ModuleName: "target.exe"})
	d.AddWatchpoint(&Watchpoint{Module: 1, Offset: 0x30, Len: 4, Desc: "flag", Enabled: true, Address: 0x401030})

	raw, err := d.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	restored := NewDebugger()
	if err := restored.Deserialize(raw); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	if len(restored.breakpoints) != 1 || len(restored.watchpoints) != 1 {
		t.Fatalf("expected 1 breakpoint and 1 watchpoint restored, got %d/%d", len(restored.breakpoints), len(restored.watchpoints))
	}
	for _, bp := range restored.breakpoints {
		if bp.Offset != 0x20 || bp.Desc != "entry" {
			t.Errorf("restored breakpoint lost serialized fields: %+v", bp)
		}
		if bp.Address != 0 || bp.ModuleName != "" {
			t.Errorf("restored breakpoint should not carry resolved fields: %+v", bp)
		}
	}
}
