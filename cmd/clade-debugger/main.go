//go:build windows

// Command clade-debugger is the Windows counterpart to clade-preload:
// with no LD_PRELOAD equivalent for interposing on process creation,
// it launches the build under the Windows debug API and reconstructs
// each child's command line from its PEB instead.
//
// Grounded on clade/intercept/windows/debugger.cpp's wmain.
package main

import (
	"fmt"
	"os"

	"github.com/clade-build/clade/internal/debugdriver"
	"github.com/clade-build/clade/internal/envvars"
	"github.com/clade-build/clade/internal/sink"
)

func readRespFile(name string) ([]byte, bool) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, false
	}
	return data, true
}

func main() {
	argv := os.Args[1:]
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "clade-debugger: command to execute is missing")
		os.Exit(1)
	}

	// The normal heap manager avoids extra checks a debuggee otherwise
	// runs under when its parent is a debugger.
	os.Setenv("_NO_DEBUG_HEAP", "1")

	pid, err := debugdriver.Spawn(argv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "clade-debugger: %v\n", err)
		os.Exit(1)
	}

	driver := &debugdriver.Driver{
		Sink:         sink.ConfigFromEnv(envvars.InterceptExec),
		FallbackPath: os.Getenv(envvars.InterceptExecFallback),
		ReadRespFile: readRespFile,
	}

	if err := driver.Run(pid); err != nil {
		fmt.Fprintf(os.Stderr, "clade-debugger: %v\n", err)
		os.Exit(1)
	}
}
