// Command govers inspects and converts govers-encoded records.
//
// Usage:
//
//	govers inspect [--format F] [--jsonc] FILE
//	govers transcode --from F --to G [-o OUT] FILE
//	govers snapshot FILE
//
// Formats are json, yaml, cbor and binary; when --format or --from is
// omitted it is guessed from the file extension. FILE "-" reads stdin.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// usageError marks errors caused by bad invocation.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	lang   string
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	e := &env{stdin: stdin, stdout: stdout, stderr: stderr}
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}
	var err error
	switch args[0] {
	case "inspect":
		err = e.inspect(args[1:])
	case "transcode":
		err = e.transcode(args[1:])
	case "snapshot":
		err = e.snapshot(args[1:])
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		err = usagef("unknown command %q", args[0])
	}
	if err == nil {
		return 0
	}
	if errors.Is(err, errHelp) {
		return 0
	}
	fmt.Fprintf(stderr, "error: %s\n", describe(err))
	var ue *usageError
	if errors.As(err, &ue) {
		printUsage(stderr)
		return 2
	}
	return 1
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `govers inspects and converts versioned records.

Usage:
  govers inspect [--format F] [--jsonc] FILE
  govers transcode --from F --to G [-o OUT] FILE
  govers snapshot FILE

Formats: json, yaml, cbor, binary (transcode: self-describing formats only).
Every command accepts -v for debug logging and --lang en|ja for messages.
`)
}
