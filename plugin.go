package lochsemu

// Plugin is the external extension point the engine dispatches every event
// family to, twice: once before the internal subscribers run (pre=true, a
// plugin may veto the event at this point) and once after (pre=false, an
// observe-only pass). Mirrors original_source/Prophet/engine.cpp's
// `m_plugins.OnXxx(event, true/false)` calls. A plugin embeds BasePlugin to
// pick up no-op defaults for every hook it doesn't care about.
type Plugin interface {
	Name() string
	OnPreExecute(ev *PreExecuteEvent, pre bool)
	OnPostExecute(ev *PostExecuteEvent, pre bool)
	OnMemRead(ev *MemReadEvent, pre bool)
	OnMemWrite(ev *MemWriteEvent, pre bool)
	OnProcessPreRun(ev *ProcessPreRunEvent, pre bool)
	OnProcessPostRun(ev *ProcessPostRunEvent, pre bool)
	OnProcessPreLoad(ev *ProcessPreLoadEvent, pre bool)
	OnProcessPostLoad(ev *ProcessPostLoadEvent, pre bool)
	OnWinapiPreCall(ev *WinapiCallEvent, pre bool)
	OnWinapiPostCall(ev *WinapiCallEvent, pre bool)
	OnThreadCreate(ev *ThreadEvent, pre bool)
	OnThreadExit(ev *ThreadEvent, pre bool)
}

// BasePlugin gives every hook a no-op default, and Name an empty string, so
// a concrete plugin only needs to override the handful of event families it
// actually cares about.
type BasePlugin struct{}

func (BasePlugin) Name() string { return "" }

func (BasePlugin) OnPreExecute(*PreExecuteEvent, bool)           {}
func (BasePlugin) OnPostExecute(*PostExecuteEvent, bool)         {}
func (BasePlugin) OnMemRead(*MemReadEvent, bool)                 {}
func (BasePlugin) OnMemWrite(*MemWriteEvent, bool)                {}
func (BasePlugin) OnProcessPreRun(*ProcessPreRunEvent, bool)      {}
func (BasePlugin) OnProcessPostRun(*ProcessPostRunEvent, bool)    {}
func (BasePlugin) OnProcessPreLoad(*ProcessPreLoadEvent, bool)    {}
func (BasePlugin) OnProcessPostLoad(*ProcessPostLoadEvent, bool)  {}
func (BasePlugin) OnWinapiPreCall(*WinapiCallEvent, bool)         {}
func (BasePlugin) OnWinapiPostCall(*WinapiCallEvent, bool)        {}
func (BasePlugin) OnThreadCreate(*ThreadEvent, bool)              {}
func (BasePlugin) OnThreadExit(*ThreadEvent, bool)                {}

// PluginHost holds the registered plugins in registration order and fans
// each event out to all of them. The enabled flag passed to NewPluginHost
// gates the whole host off without the engine needing to know plugins exist
// at all; config.go has no key for it, the caller chooses the value.
type PluginHost struct {
	enabled bool
	plugins []Plugin
}

// NewPluginHost returns a host with plugin dispatch gated by enabled.
func NewPluginHost(enabled bool) *PluginHost {
	return &PluginHost{enabled: enabled}
}

// Register appends a plugin, preserving registration order as dispatch
// order (matches the original's single fixed m_plugins vector).
func (h *PluginHost) Register(p Plugin) {
	h.plugins = append(h.plugins, p)
}

func (h *PluginHost) OnPreExecute(ev *PreExecuteEvent, pre bool) {
	if !h.enabled {
		return
	}
	for _, p := range h.plugins {
		p.OnPreExecute(ev, pre)
	}
}

func (h *PluginHost) OnPostExecute(ev *PostExecuteEvent, pre bool) {
	if !h.enabled {
		return
	}
	for _, p := range h.plugins {
		p.OnPostExecute(ev, pre)
	}
}

func (h *PluginHost) OnMemRead(ev *MemReadEvent, pre bool) {
	if !h.enabled {
		return
	}
	for _, p := range h.plugins {
		p.OnMemRead(ev, pre)
	}
}

func (h *PluginHost) OnMemWrite(ev *MemWriteEvent, pre bool) {
	if !h.enabled {
		return
	}
	for _, p := range h.plugins {
		p.OnMemWrite(ev, pre)
	}
}

func (h *PluginHost) OnProcessPreRun(ev *ProcessPreRunEvent, pre bool) {
	if !h.enabled {
		return
	}
	for _, p := range h.plugins {
		p.OnProcessPreRun(ev, pre)
	}
}

func (h *PluginHost) OnProcessPostRun(ev *ProcessPostRunEvent, pre bool) {
	if !h.enabled {
		return
	}
	for _, p := range h.plugins {
		p.OnProcessPostRun(ev, pre)
	}
}

func (h *PluginHost) OnProcessPreLoad(ev *ProcessPreLoadEvent, pre bool) {
	if !h.enabled {
		return
	}
	for _, p := range h.plugins {
		p.OnProcessPreLoad(ev, pre)
	}
}

func (h *PluginHost) OnProcessPostLoad(ev *ProcessPostLoadEvent, pre bool) {
	if !h.enabled {
		return
	}
	for _, p := range h.plugins {
		p.OnProcessPostLoad(ev, pre)
	}
}

func (h *PluginHost) OnWinapiPreCall(ev *WinapiCallEvent, pre bool) {
	if !h.enabled {
		return
	}
	for _, p := range h.plugins {
		p.OnWinapiPreCall(ev, pre)
	}
}

func (h *PluginHost) OnWinapiPostCall(ev *WinapiCallEvent, pre bool) {
	if !h.enabled {
		return
	}
	for _, p := range h.plugins {
		p.OnWinapiPostCall(ev, pre)
	}
}

func (h *PluginHost) OnThreadCreate(ev *ThreadEvent, pre bool) {
	if !h.enabled {
		return
	}
	for _, p := range h.plugins {
		p.OnThreadCreate(ev, pre)
	}
}

func (h *PluginHost) OnThreadExit(ev *ThreadEvent, pre bool) {
	if !h.enabled {
		return
	}
	for _, p := range h.plugins {
		p.OnThreadExit(ev, pre)
	}
}
