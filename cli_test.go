package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const rawListing = `.kernel k
.block entry
    mov (8|M0) r1.0<1>:f r9.0<8;8,1>:f
    add (8|M0) r3.0<1>:d r1.0<8;8,1>:d r6.0<8;8,1>:d
`

const annotatedListing = `.kernel k
.block entry
    mov (8|M0) r1.0<1>:f r9.0<8;8,1>:f
    add (8|M0) r3.0<1>:d r1.0<8;8,1>:d r6.0<8;8,1>:d {F@1}
    sync.nop (1|M0) null:ud {A@1}
`

func testConfig() Config {
	return Config{Platform: "xehpg", Jobs: 2, NoColor: true}
}

func testContext(cfg Config) (*CommandContext, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &CommandContext{Config: cfg, Stdout: &stdout, Stderr: &stderr}, &stdout, &stderr
}

func writeListing(t *testing.T, name, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyzeSource(t *testing.T) {
	ctx, _, _ := testContext(testConfig())
	ec := NewErrorCollector(0)
	res, err := analyzeSource(context.Background(), ctx, "k.isa", rawListing, ec)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Listing(); got != annotatedListing {
		t.Errorf("got:\n%s\nwant:\n%s", got, annotatedListing)
	}
	if res.Stats[0].Instructions != 2 || res.Stats[0].Syncs != 1 {
		t.Errorf("unexpected stats: %s", res.Stats[0])
	}
}

func TestAnalyzeSourceIsStable(t *testing.T) {
	ctx, _, _ := testContext(testConfig())
	res, err := analyzeSource(context.Background(), ctx, "k.isa", rawListing, NewErrorCollector(0))
	if err != nil {
		t.Fatal(err)
	}
	// feeding the annotated listing back in must not change any annotation
	// of the original instructions
	again, err := analyzeSource(context.Background(), ctx, "k.isa", strings.Replace(res.Listing(), "    sync.nop (1|M0) null:ud {A@1}\n", "", 1), NewErrorCollector(0))
	if err != nil {
		t.Fatal(err)
	}
	if again.Listing() != res.Listing() {
		t.Errorf("second pass changed the listing:\n%s", again.Listing())
	}
}

func TestAnalyzeSourceErrors(t *testing.T) {
	ctx, _, _ := testContext(testConfig())
	ec := NewErrorCollector(0)
	if _, err := analyzeSource(context.Background(), ctx, "k.isa", ".kernel k\n    mvo (8|M0) r1.0:f r2.0:f\n", ec); !errors.Is(err, errDiagnostics) {
		t.Fatalf("expected errDiagnostics, got %v", err)
	}
	if !strings.Contains(ec.Report(false), "did you mean") {
		t.Errorf("expected a suggestion in the report:\n%s", ec.Report(false))
	}

	if _, err := analyzeSource(context.Background(), ctx, "empty.isa", "// nothing here\n", NewErrorCollector(0)); err == nil {
		t.Error("expected an error for a listing without kernels")
	}

	bad := testConfig()
	bad.Platform = "gen9"
	ctx, _, _ = testContext(bad)
	if _, err := analyzeSource(context.Background(), ctx, "k.isa", rawListing, NewErrorCollector(0)); err == nil {
		t.Error("expected an error for an unsupported platform")
	}
}

func TestSourceLines(t *testing.T) {
	ec := NewErrorCollector(0)
	kernels := ParseListing("k.isa", rawListing+".kernel other\n\n    nop (1|M0)\n", ec)
	if ec.HasErrors() || len(kernels) != 2 {
		t.Fatalf("unexpected parse:\n%s", ec.Report(false))
	}
	lineOf := sourceLines(kernels)
	for _, tt := range []struct {
		kernel string
		pos    int
		line   int
	}{
		{"k", 0, 3},
		{"k", 1, 4},
		{"other", 0, 7},
		{"other", 1, 0},
		{"missing", 0, 0},
	} {
		if got := lineOf(tt.kernel, tt.pos); got != tt.line {
			t.Errorf("%s at %d: line %d, want %d", tt.kernel, tt.pos, got, tt.line)
		}
	}
}

func TestRunCLIAnalyze(t *testing.T) {
	path := writeListing(t, "k.isa", rawListing)

	var stdout, stderr bytes.Buffer
	if err := RunCLI([]string{"analyze", path}, testConfig(), &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != annotatedListing {
		t.Errorf("got:\n%s", stdout.String())
	}

	// a bare listing is shorthand for analyze
	stdout.Reset()
	if err := RunCLI([]string{path}, testConfig(), &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != annotatedListing {
		t.Errorf("shorthand got:\n%s", stdout.String())
	}
}

func TestRunCLIOutputAndStats(t *testing.T) {
	path := writeListing(t, "k.isa", rawListing)
	out := filepath.Join(t.TempDir(), "k.out")

	cfg := testConfig()
	cfg.Output = out
	cfg.Stats = true
	var stdout, stderr bytes.Buffer
	if err := RunCLI([]string{"analyze", path}, cfg, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	if stdout.Len() != 0 {
		t.Errorf("nothing should go to stdout with -o, got %q", stdout.String())
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != annotatedListing {
		t.Errorf("unexpected output file:\n%s", data)
	}
	if !strings.Contains(stderr.String(), "kernel k: 2 instructions") {
		t.Errorf("expected statistics on stderr, got %q", stderr.String())
	}
}

func TestRunCLIReportsListingErrors(t *testing.T) {
	good := writeListing(t, "good.isa", rawListing)
	bad := writeListing(t, "bad.isa", ".kernel k\n    add (8|M0) r1.0:f r2.0:q9\n")

	var stdout, stderr bytes.Buffer
	err := RunCLI([]string{"analyze", good, bad}, testConfig(), &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("expected one failed listing, got %v", err)
	}
	if !strings.Contains(stderr.String(), "bad.isa:2:") || !strings.Contains(stderr.String(), "1 error(s) found") {
		t.Errorf("unexpected diagnostics:\n%s", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Error("no listing is written when one of the inputs fails")
	}
}

func TestRunCLICommands(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := RunCLI([]string{"version"}, testConfig(), &stdout, &stderr); err != nil || strings.TrimSpace(stdout.String()) != versionString {
		t.Errorf("version: %q, %v", stdout.String(), err)
	}

	stdout.Reset()
	if err := RunCLI([]string{"platforms"}, testConfig(), &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"gen12lp", "xehp", "xehpg", "xehpc", "xe2"} {
		if !strings.Contains(stdout.String(), name+" (") {
			t.Errorf("platforms does not list %s:\n%s", name, stdout.String())
		}
	}
	if !strings.Contains(stdout.String(), "* xehpg") {
		t.Errorf("the configured platform should be marked:\n%s", stdout.String())
	}

	stdout.Reset()
	if err := RunCLI(nil, testConfig(), &stdout, &stderr); err != nil || !strings.Contains(stdout.String(), "USAGE:") {
		t.Errorf("no arguments should print help, got %v", err)
	}

	err := RunCLI([]string{"analyse"}, testConfig(), &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), `did you mean "analyze"`) {
		t.Errorf("expected a suggestion, got %v", err)
	}
	if err := RunCLI([]string{"analyze"}, testConfig(), &stdout, &stderr); err == nil {
		t.Error("analyze without files should fail")
	}
}
