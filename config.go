package lochsemu

import (
	"fmt"

	"github.com/go-ini/ini"
)

// Config is the parsed contents of lochsdbg.ini: [General], [Taint], and
// [Tracer] sections, each key with the documented default applied when
// absent.
type Config struct {
	General GeneralConfig
	Taint   TaintConfig
	Tracer  TracerConfig
}

// GeneralConfig is the [General] section.
type GeneralConfig struct {
	Enabled    bool
	ArchiveDir string
}

// TaintConfig is the [Taint] section.
type TaintConfig struct {
	Rules TaintRule
}

// TracerConfig is the [Tracer] section.
type TracerConfig struct {
	MaxTraces    int
	MergeCallJmp bool
}

// DefaultConfig returns the documented defaults, used both as the base a
// loaded file overrides and as the config for a run with no ini file at
// all.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{Enabled: true, ArchiveDir: "archive"},
		Taint:   TaintConfig{Rules: TaintRuleLoadAddrReg | TaintRuleSaveAddrReg},
		Tracer:  TracerConfig{MaxTraces: 4096, MergeCallJmp: true},
	}
}

// LoadConfig reads path with go-ini/ini, starting from DefaultConfig and
// overriding only the keys actually present.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := ini.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("lochsemu: loading config %q: %w", path, err)
	}

	gen := f.Section("General")
	if k, err := gen.GetKey("Enabled"); err == nil {
		cfg.General.Enabled, _ = k.Bool()
	}
	if k, err := gen.GetKey("ArchiveDir"); err == nil {
		cfg.General.ArchiveDir = k.String()
	}

	taint := f.Section("Taint")
	if k, err := taint.GetKey("Rules"); err == nil {
		v, err := k.Uint()
		if err == nil {
			cfg.Taint.Rules = TaintRule(v)
		}
	}

	tracer := f.Section("Tracer")
	if k, err := tracer.GetKey("MaxTraces"); err == nil {
		if v, err := k.Int(); err == nil {
			cfg.Tracer.MaxTraces = v
		}
	}
	if k, err := tracer.GetKey("MergeCallJmp"); err == nil {
		cfg.Tracer.MergeCallJmp, _ = k.Bool()
	}

	return cfg, nil
}
