package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wasmlab/watfront/engine"
	"github.com/wasmlab/watfront/wast"
	"github.com/wasmlab/watfront/wat"
)

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
)

func main() {
	var (
		funcName    = flag.String("func", "", "Function to invoke (module mode)")
		funcArgs    = flag.String("args", "", "Comma-separated scalar arguments for -func")
		list        = flag.Bool("list", false, "List exported functions and exit")
		interactive = flag.Bool("i", false, "Interactive invoke picker")
		verbose     = flag.Bool("v", false, "Verbose logging")
		memPages    = flag.Uint("mem-pages", 0, "Memory limit in 64KiB pages (0 = default)")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: watrun [flags] <file.wat|file.wast>")
		fmt.Fprintln(os.Stderr, "       watrun -list <file.wat>")
		fmt.Fprintln(os.Stderr, "       watrun -i <file.wat>  (interactive mode)")
		flag.PrintDefaults()
		os.Exit(1)
	}
	file := flag.Arg(0)

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		passStyle = lipgloss.NewStyle()
		failStyle = lipgloss.NewStyle()
		labelStyle = lipgloss.NewStyle()
	}

	log := zap.NewNop()
	if *verbose {
		var err error
		log, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		engine.SetLogger(log)
	}

	cfg := &engine.Config{MemoryLimitPages: uint32(*memPages)}

	var err error
	if filepath.Ext(file) == ".wast" {
		err = runScript(file, cfg, log)
	} else if *interactive {
		err = runInteractive(file, cfg)
	} else {
		err = runModule(file, cfg, *funcName, *funcArgs, *list)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", failStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

func runScript(file string, cfg *engine.Config, log *zap.Logger) error {
	ctx := context.Background()
	source, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close(ctx)

	sum, err := wast.New(eng, log).Run(ctx, string(source))
	fmt.Printf("%s %s\n", labelStyle.Render("Script:"), file)
	fmt.Printf("%s %d directives, %d asserts, %d modules\n",
		labelStyle.Render("Processed:"), sum.Directives, sum.Asserts, sum.Modules)
	if err != nil {
		fmt.Println(failStyle.Render("FAIL"))
		return err
	}
	fmt.Println(passStyle.Render("PASS"))
	return nil
}

func runModule(file string, cfg *engine.Config, funcName, funcArgs string, listOnly bool) error {
	ctx := context.Background()
	source, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	bin, err := wat.Compile(string(source))
	if err != nil {
		return err
	}
	fmt.Printf("%s %s (%d bytes of wasm)\n", labelStyle.Render("Module:"), file, len(bin))

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close(ctx)

	inst, err := eng.Instantiate(ctx, bin, "main")
	if err != nil {
		return err
	}

	sigs := inst.ExportedFunctions()
	fmt.Println(labelStyle.Render("Exported functions:"))
	for _, sig := range sigs {
		fmt.Printf("  %s\n", formatSig(sig))
	}
	if listOnly {
		return nil
	}

	if funcName == "" {
		if len(sigs) != 1 {
			fmt.Println("\nUse -func to pick a function, or -i for interactive mode.")
			return nil
		}
		funcName = sigs[0].Name
	}

	var sig *engine.FuncSig
	for i := range sigs {
		if sigs[i].Name == funcName {
			sig = &sigs[i]
			break
		}
	}
	if sig == nil {
		return fmt.Errorf("no exported function %q", funcName)
	}

	var rawArgs []string
	if funcArgs != "" {
		rawArgs = strings.Split(funcArgs, ",")
	}
	args, err := parseArgs(sig.Params, rawArgs)
	if err != nil {
		return err
	}

	result, err := eng.Invoke(ctx, inst, funcName, args)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", labelStyle.Render("Result:"), formatValue(result))
	return nil
}
