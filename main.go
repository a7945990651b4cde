// Completion: 100% - Entry point complete
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

const versionString = "swsb 1.0.0"

// VerboseMode enables trace output on stderr
var VerboseMode bool

func main() {
	cfg, args, err := ParseFlags(os.Args[1:], ConfigFromEnv(), os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if cfg.Version {
		fmt.Println(versionString)
		os.Exit(0)
	}

	VerboseMode = cfg.Verbose
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "----=[ %s ]=----\n", versionString)
	}

	if err := RunCLI(args, cfg, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
