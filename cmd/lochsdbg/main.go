// Command lochsdbg drives the taint/disassembly/protocol-analysis core
// against a host-supplied execution trace, and inspects archived run state.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	lochsemu "github.com/JackBro/lochsemu"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const version = "0.1.0"

var (
	configPath string
	tracePath  string
	binaryPath string
	moduleName string
	verbose    bool
)

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// buildEngine wires a fresh Engine the way lochsdbg's run command does:
// debugger and protocol registered with the archive (the tracer and taint
// engine are wired into the engine but not archived), no live disassembler (there is no host CPU backing this offline replay).
func buildEngine(cfg lochsemu.Config) (*lochsemu.Engine, *lochsemu.Archive, error) {
	log, err := lochsemu.NewLogger(verbose)
	if err != nil {
		return nil, nil, fmt.Errorf("lochsdbg: building logger: %w", err)
	}

	archive, err := lochsemu.NewArchive(cfg.General.ArchiveDir)
	if err != nil {
		return nil, nil, err
	}

	debugger := lochsemu.NewDebugger()
	tracer := lochsemu.NewRunTrace(cfg.Tracer.MaxTraces, cfg.Tracer.MergeCallJmp)
	taint := lochsemu.NewTaintEngine(cfg.Taint.Rules, log)
	protocol := lochsemu.NewProtocol(func() lochsemu.CallStack { return nil })
	plugins := lochsemu.NewPluginHost(true)

	archive.Register("debugger", debugger)
	archive.Register("protocol", protocol)

	engine := lochsemu.NewEngine(nil, debugger, tracer, taint, protocol, plugins, archive, log)
	return engine, archive, nil
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay a trace file through the analysis engine",
		Long:  "Loads lochsdbg.ini, wires an engine, and drives it from a host-supplied JSON-lines trace file for offline replay or testing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := lochsemu.DefaultConfig()
			if configPath != "" {
				loaded, err := lochsemu.LoadConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if !cfg.General.Enabled {
				fmt.Println("lochsdbg: General.Enabled=false, nothing to do")
				return nil
			}

			engine, _, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			if binaryPath == "" {
				return fmt.Errorf("lochsdbg: --binary is required")
			}
			if err := engine.OnProcessPostLoad(binaryPath, moduleName); err != nil {
				return fmt.Errorf("lochsdbg: loading archive: %w", err)
			}

			n, err := replayTrace(tracePath, engine)
			if err != nil {
				return err
			}

			if err := engine.OnProcessPostRun(); err != nil {
				return fmt.Errorf("lochsdbg: saving archive: %w", err)
			}
			if err := engine.Terminate(); err != nil {
				return fmt.Errorf("lochsdbg: terminating engine: %w", err)
			}

			fmt.Printf("replayed %d trace steps (%d instructions executed)\n", n, engine.InstExecuted())
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to lochsdbg.ini")
	cmd.Flags().StringVar(&tracePath, "trace", "", "path to a JSON-lines trace file")
	cmd.Flags().StringVar(&binaryPath, "binary", "", "path to the analyzed binary (used to key the archive)")
	cmd.Flags().StringVar(&moduleName, "module", "main", "module name recorded alongside the archive key")
	cmd.MarkFlagRequired("trace")
	cmd.MarkFlagRequired("binary")
	return cmd
}

func archiveCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "archive",
		Short: "Inspect persisted archive files",
	}

	inspect := &cobra.Command{
		Use:   "inspect <path>",
		Short: "Dump an archive file's component keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("lochsdbg: reading archive %q: %w", args[0], err)
			}
			var doc map[string]json.RawMessage
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("lochsdbg: parsing archive %q: %w", args[0], err)
			}
			for key, raw := range doc {
				if isInteractive() {
					fmt.Printf("\033[1m%s\033[0m: %d bytes\n", key, len(raw))
				} else {
					fmt.Printf("%s: %d bytes\n", key, len(raw))
				}
			}
			return nil
		},
	}
	root.AddCommand(inspect)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print lochsdbg's version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lochsdbg %s\n", version)
		},
	}
}

func main() {
	root := &cobra.Command{
		Use:   "lochsdbg",
		Short: "Offline driver for the lochsemu taint/disassembly/protocol-analysis core",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose (development) logging")
	root.AddCommand(runCmd(), archiveCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
