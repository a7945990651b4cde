// Completion: 100% - Command dispatch complete
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/xyproto/swsb/internal/engine"
	"github.com/xyproto/swsb/internal/ir"
	"github.com/xyproto/swsb/internal/swsb"
)

// cli.go - subcommands of the swsb command
//
// - swsb analyze <file>... (annotate listings with scoreboard information)
// - swsb platforms         (list the supported platforms)
// - swsb help | version
// - swsb <file>            (shorthand for analyze)

// errDiagnostics means the diagnostics were already printed
var errDiagnostics = errors.New("listing has errors")

var commands = []string{"analyze", "help", "platforms", "version"}

// listingExtensions are accepted as a bare file argument
var listingExtensions = []string{".isa", ".asm", ".lst", ".kernel"}

// CommandContext holds the execution context for a CLI command
type CommandContext struct {
	Config Config
	Stdout io.Writer
	Stderr io.Writer
}

func (ctx *CommandContext) logf(format string, args ...any) {
	if ctx.Config.Verbose {
		fmt.Fprintf(ctx.Stderr, format+"\n", args...)
	}
}

// RunCLI determines which command to run from the positional arguments
func RunCLI(args []string, cfg Config, stdout, stderr io.Writer) error {
	ctx := &CommandContext{Config: cfg, Stdout: stdout, Stderr: stderr}

	if len(args) == 0 {
		return cmdHelp(ctx)
	}

	switch args[0] {
	case "analyze":
		if len(args) < 2 {
			return fmt.Errorf("usage: swsb analyze <file>... [-o output]")
		}
		return cmdAnalyze(ctx, args[1:])
	case "platforms":
		return cmdPlatforms(ctx)
	case "help", "-h", "--help":
		return cmdHelp(ctx)
	case "version":
		fmt.Fprintln(ctx.Stdout, versionString)
		return nil
	}

	if looksLikeListing(args[0]) {
		return cmdAnalyze(ctx, args)
	}
	if s := engine.SuggestSimilar(args[0], commands, 1); len(s) > 0 {
		return fmt.Errorf("unknown command %q, did you mean %q?", args[0], s[0])
	}
	return fmt.Errorf("unknown command %q (run 'swsb help' for usage)", args[0])
}

func looksLikeListing(arg string) bool {
	for _, ext := range listingExtensions {
		if strings.HasSuffix(arg, ext) {
			return true
		}
	}
	info, err := os.Stat(arg)
	return err == nil && info.Mode().IsRegular()
}

// analysisResult is one annotated listing
type analysisResult struct {
	Kernels []*ir.Kernel
	Stats   []swsb.Stats
}

// Listing renders every kernel, separated by blank lines
func (r *analysisResult) Listing() string {
	var sb strings.Builder
	for i, k := range r.Kernels {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(k.String())
	}
	return sb.String()
}

// analyzeSource parses and annotates one listing. Listing problems are
// reported to ec and surface as errDiagnostics.
func analyzeSource(goctx context.Context, ctx *CommandContext, file, source string, ec *ErrorCollector) (*analysisResult, error) {
	kernels := ParseListing(file, source, ec)
	if ec.HasErrors() {
		return nil, errDiagnostics
	}
	if len(kernels) == 0 {
		return nil, fmt.Errorf("%s: no .kernel found", file)
	}

	caps, err := ctx.Config.LookupPlatform()
	if err != nil {
		return nil, err
	}
	ctx.logf("%s: %d kernel(s) for %s", file, len(kernels), caps)

	// positions change once syncs are inserted, so remember the lines first
	lineOf := sourceLines(kernels)

	var mu sync.Mutex
	opts := swsb.Options{Logf: func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		ctx.logf(format, args...)
	}}
	stats, err := swsb.NewAnalyzer(caps, opts).RunAll(goctx, kernels, ctx.Config.Jobs)
	if err != nil {
		ec.AddError(AnalysisError(err, file, lineOf))
		return nil, errDiagnostics
	}
	return &analysisResult{Kernels: kernels, Stats: stats}, nil
}

// sourceLines maps a kernel name and an instruction position back to the
// source line the instruction was parsed from, 0 when unknown
func sourceLines(kernels []*ir.Kernel) func(kernel string, pos int) int {
	lines := make(map[*ir.Kernel][]int, len(kernels))
	for _, k := range kernels {
		for _, bb := range k.Blocks {
			for _, inst := range bb.Insts {
				lines[k] = append(lines[k], inst.Line)
			}
		}
	}
	return func(kernel string, pos int) int {
		i := slices.IndexFunc(kernels, func(k *ir.Kernel) bool { return k.Name == kernel })
		if i < 0 {
			return 0
		}
		if l := lines[kernels[i]]; pos >= 0 && pos < len(l) {
			return l[pos]
		}
		return 0
	}
}

// analyzeFiles runs every file once and writes the combined listing
func analyzeFiles(goctx context.Context, ctx *CommandContext, files []string) error {
	var out strings.Builder
	failed := 0
	for _, file := range files {
		source, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		ec := NewErrorCollector(0)
		res, err := analyzeSource(goctx, ctx, file, string(source), ec)
		if errors.Is(err, errDiagnostics) {
			fmt.Fprint(ctx.Stderr, ec.Report(ctx.Config.UseColor(ctx.Stderr)))
			failed++
			continue
		}
		if err != nil {
			return err
		}
		if len(files) > 1 {
			fmt.Fprintf(&out, "// %s\n", filepath.Base(file))
		}
		out.WriteString(res.Listing())
		if ctx.Config.Stats {
			for i, k := range res.Kernels {
				fmt.Fprintf(ctx.Stderr, "%s: kernel %s: %s\n", file, k.Name, res.Stats[i])
			}
			if len(res.Kernels) > 1 {
				fmt.Fprintf(ctx.Stderr, "%s: total: %s\n", file, swsb.Total(res.Stats))
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d listing(s) failed", failed, len(files))
	}

	if ctx.Config.Output == "" {
		_, err := io.WriteString(ctx.Stdout, out.String())
		return err
	}
	if err := os.WriteFile(ctx.Config.Output, []byte(out.String()), 0o644); err != nil {
		return err
	}
	ctx.logf("wrote %s", ctx.Config.Output)
	return nil
}

func cmdAnalyze(ctx *CommandContext, files []string) error {
	goctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := analyzeFiles(goctx, ctx, files)
	if !ctx.Config.Watch {
		return err
	}
	if err != nil {
		fmt.Fprintf(ctx.Stderr, "Error: %v\n", err)
	}
	return watchFiles(goctx, ctx, files)
}

// watchFiles re-analyzes every listing whenever one of them changes, until
// goctx is cancelled
func watchFiles(goctx context.Context, ctx *CommandContext, files []string) error {
	var mu sync.Mutex
	reanalyze := func(reason string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(ctx.Stderr, reason)
		if err := analyzeFiles(goctx, ctx, files); err != nil {
			fmt.Fprintf(ctx.Stderr, "Error: %v\n", err)
		}
	}
	setupReloadSignal(goctx, reanalyze)

	watcher, err := NewFileWatcher(func(path string) {
		reanalyze("File changed: " + filepath.Base(path))
	})
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %v", err)
	}
	defer watcher.Close()

	for _, file := range files {
		if err := watcher.AddFile(file); err != nil {
			return fmt.Errorf("failed to watch file: %v", err)
		}
	}
	fmt.Fprintf(ctx.Stderr, "Watching %d file(s), press Ctrl-C to stop\n", len(files))
	watcher.Watch(goctx)
	return nil
}

func cmdPlatforms(ctx *CommandContext) error {
	for _, name := range engine.GenerationNames() {
		gen, err := engine.ParseGeneration(name)
		if err != nil {
			return err
		}
		p, err := engine.LookupPlatform(gen)
		if err != nil {
			return err
		}
		marker := " "
		if name == ctx.Config.Platform {
			marker = "*"
		}
		fmt.Fprintf(ctx.Stdout, "%s %s\n", marker, p)
	}
	return nil
}

func cmdHelp(ctx *CommandContext) error {
	fmt.Fprintf(ctx.Stdout, `%s - software scoreboard annotation for Xe GPU kernels

USAGE:
    swsb [flags] <command> [arguments]

COMMANDS:
    analyze <file>...     Annotate listings with distances, tokens and syncs
    platforms             List the supported platforms
    help                  Show this help message
    version               Show version information

SHORTHAND:
    swsb <file.isa>       Same as 'swsb analyze <file.isa>'

FLAGS (must come before the command):
    -platform <name>      Target platform (default: %s)
    -tokens <n>           Override the scoreboard token count
    -grf <n>              Override the general register count
    -j, -jobs <n>         Kernels analyzed in parallel
    -o, -output <file>    Write the annotated listing to a file
    -stats                Print per-kernel statistics to stderr
    -watch                Re-analyze when a listing changes
    -no-color             Plain diagnostics
    -v, -verbose          Trace evictions, injected syncs and macro splits
    -V, -version          Print version information and exit

ENVIRONMENT:
    SWSB_PLATFORM, SWSB_TOKENS, SWSB_GRF, SWSB_JOBS, SWSB_VERBOSE and
    SWSB_NO_COLOR set the defaults that the flags above override.

LISTING FORMAT:
    .kernel main
    .block entry
        add (8|M0) r1.0<1>:f r2.0<8;8,1>:f r3.0<8;8,1>:f
        send.mem (16|M0) r10.0:ud r4.0:ud desc(mlen=2,rlen=4)
        send.gtwy (8|M0) null:ud r127.0:ud desc(mlen=1,rlen=0,eot)
`, versionString, defaultPlatform)
	return nil
}
