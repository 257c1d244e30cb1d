// Ember CLI - runs compiled Ember artifacts
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/emberlang/ember/lang"
	"github.com/emberlang/ember/manifest"
	"github.com/emberlang/ember/vm"
	"github.com/emberlang/ember/vm/dist"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	checkOnly := flag.Bool("check", false, "Run the static stack check and exit")
	disasm := flag.Bool("disasm", false, "Print the artifact's instructions and exit")
	showStack := flag.Bool("stack", false, "Print the final data stack after execution")
	maxDepth := flag.Int("max-depth", 0, "Override the call depth limit (-1 for unlimited)")
	maxSteps := flag.Int("max-steps", 0, "Override the execution step limit (-1 for unlimited)")
	maxStack := flag.Int("max-stack", 0, "Override the stack size limit (-1 for unlimited)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ember [options] <artifact.emc>\n\n")
		fmt.Fprintf(os.Stderr, "Runs a compiled Ember artifact. Execution limits come from the nearest\n")
		fmt.Fprintf(os.Stderr, "ember.toml [limits] section unless overridden on the command line.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ember app.emc                 # Run an artifact\n")
		fmt.Fprintf(os.Stderr, "  ember -check app.emc          # Static stack check only\n")
		fmt.Fprintf(os.Stderr, "  ember -disasm app.emc         # List instructions\n")
		fmt.Fprintf(os.Stderr, "  ember -max-steps 100000 app.emc\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)
	log := commonlog.GetLogger("ember")

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	path := flag.Arg(0)

	prog, err := dist.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log.Infof("loaded %s: %d instructions, %d words", path, len(prog.Main()), len(prog.Words))

	if *disasm {
		printDisasm(prog)
		return
	}

	if *checkOnly {
		if err := checkProgram(prog); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("ok")
		return
	}

	cfg := loadConfig(log)
	applyOverride(&cfg.MaxCallDepth, *maxDepth)
	applyOverride(&cfg.MaxSteps, *maxSteps)
	applyOverride(&cfg.MaxStackSize, *maxStack)

	machine := vm.NewWithConfig(cfg)
	if err := machine.Run(prog); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if *showStack {
		for _, v := range machine.Stack() {
			fmt.Println(v)
		}
	}
}

// loadConfig picks up limits from the nearest ember.toml, falling back to
// the machine defaults when there is none.
func loadConfig(log commonlog.Logger) vm.Config {
	cwd, err := os.Getwd()
	if err != nil {
		return vm.DefaultConfig()
	}
	m, err := manifest.FindAndLoad(cwd)
	if err != nil {
		log.Warningf("ignoring manifest: %v", err)
		return vm.DefaultConfig()
	}
	if m == nil {
		return vm.DefaultConfig()
	}
	log.Infof("using limits from %s", m.Dir)
	return m.VMConfig()
}

func applyOverride(limit *int, flagValue int) {
	switch {
	case flagValue < 0:
		*limit = 0
	case flagValue > 0:
		*limit = flagValue
	}
}

func checkProgram(prog *lang.Program) error {
	if err := vm.CheckOps(prog.Main()); err != nil {
		return fmt.Errorf("main: %w", err)
	}
	for name, body := range prog.Words {
		if err := vm.CheckOps(body); err != nil {
			return fmt.Errorf("word '%s': %w", name, err)
		}
	}
	return nil
}

func printDisasm(prog *lang.Program) {
	fmt.Println("main:")
	for i, op := range prog.Main() {
		fmt.Printf("  %4d  %s\n", i, op)
	}
	for name, body := range prog.Words {
		fmt.Printf("%s:\n", name)
		for i, op := range body {
			fmt.Printf("  %4d  %s\n", i, op)
		}
	}
}
