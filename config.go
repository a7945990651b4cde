// Completion: 100% - Configuration complete, flags override the environment
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/xyproto/env/v2"

	"github.com/xyproto/swsb/internal/engine"
)

const defaultPlatform = "xehpg"

// Config is everything a command needs to know besides its arguments
type Config struct {
	Platform string
	Tokens   int // 0 keeps the platform's token pool
	GRF      int // 0 keeps the platform's register count
	Jobs     int
	Verbose  bool
	NoColor  bool
	Output   string
	Watch    bool
	Stats    bool
	Version  bool
}

// ConfigFromEnv reads the SWSB_* environment variables on top of the defaults
func ConfigFromEnv() Config {
	// env caches os.Environ on first use
	env.Load()
	return Config{
		Platform: env.Str("SWSB_PLATFORM", defaultPlatform),
		Tokens:   env.Int("SWSB_TOKENS", 0),
		GRF:      env.Int("SWSB_GRF", 0),
		Jobs:     env.Int("SWSB_JOBS", runtime.NumCPU()),
		Verbose:  env.Bool("SWSB_VERBOSE"),
		NoColor:  env.Bool("SWSB_NO_COLOR") || env.Has("NO_COLOR"),
	}
}

// ParseFlags parses args on top of cfg, so a flag wins over the environment
// it was defaulted from. It returns the positional arguments.
//
// Go's flag package stops at the first non-flag argument, so flags come
// before the command: swsb -platform xe2 analyze k.isa
func ParseFlags(args []string, cfg Config, output io.Writer) (Config, []string, error) {
	fs := flag.NewFlagSet("swsb", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&cfg.Platform, "platform", cfg.Platform, "target platform (gen12lp, xehp, xehpg, xehpc, xe2)")
	fs.IntVar(&cfg.Tokens, "tokens", cfg.Tokens, "override the number of scoreboard tokens (0 = platform default)")
	fs.IntVar(&cfg.GRF, "grf", cfg.GRF, "override the number of general registers (0 = platform default)")
	fs.IntVar(&cfg.Jobs, "j", cfg.Jobs, "number of kernels analyzed in parallel")
	fs.IntVar(&cfg.Jobs, "jobs", cfg.Jobs, "number of kernels analyzed in parallel")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "verbose mode (trace token evictions, injected syncs and macro splits)")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "verbose mode (trace token evictions, injected syncs and macro splits)")
	fs.StringVar(&cfg.Output, "o", cfg.Output, "write the annotated listing to this file instead of stdout")
	fs.StringVar(&cfg.Output, "output", cfg.Output, "write the annotated listing to this file instead of stdout")
	fs.BoolVar(&cfg.Watch, "watch", cfg.Watch, "watch mode: re-analyze when the listing changes")
	fs.BoolVar(&cfg.Stats, "stats", cfg.Stats, "print per-kernel statistics to stderr")
	fs.BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "disable colored diagnostics")
	fs.BoolVar(&cfg.Version, "V", false, "print version information and exit")
	fs.BoolVar(&cfg.Version, "version", false, "print version information and exit")

	if err := fs.Parse(args); err != nil {
		return cfg, nil, err
	}
	if cfg.Jobs < 1 {
		return cfg, nil, fmt.Errorf("-jobs must be at least 1, got %d", cfg.Jobs)
	}
	if cfg.Tokens < 0 || cfg.GRF < 0 {
		return cfg, nil, fmt.Errorf("-tokens and -grf cannot be negative")
	}
	return cfg, fs.Args(), nil
}

// LookupPlatform resolves the configured platform and applies the overrides
func (c Config) LookupPlatform() (*engine.Platform, error) {
	gen, err := engine.ParseGeneration(c.Platform)
	if err != nil {
		return nil, err
	}
	p, err := engine.LookupPlatform(gen)
	if err != nil {
		return nil, err
	}
	if c.Tokens > 32 {
		return nil, fmt.Errorf("at most 32 scoreboard tokens are encodable, got %d", c.Tokens)
	}
	return p.WithTokens(c.Tokens).WithGRF(c.GRF), nil
}

// UseColor reports whether diagnostics on w should be colored
func (c Config) UseColor(w io.Writer) bool {
	if c.NoColor {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
