package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// build info - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"

	AppName string = "trainer"
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	if len(args) == 0 {
		usage(errOut)
		return errUsage
	}

	cmd, rest := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "drill":
		return drillCommand(ctx, rest, out, errOut)
	case "drive":
		return driveCommand(ctx, rest, in, out, errOut)
	case "sessions":
		return sessionsCommand(ctx, rest, out, errOut)
	case "tutorial":
		return tutorialCommand(rest, out, errOut)
	case "version":
		fmt.Fprintf(out, "%s %s (built %s)\n", AppName, CurrentVersion, BuildDate)
		return nil
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		fmt.Fprintf(errOut, "unknown command %q\n\n", cmd)
		usage(errOut)
		return errUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `Usage: %s <command> [flags]

Commands:
  drill     run a Lua drill against a fresh session and record it
  drive     read dispatcher commands from stdin, one per line
  sessions  list recorded sessions
  tutorial  print the active tutorial script as JSON
  version   print the version

Run '%s <command> -h' for the flags of a command.
`, AppName, AppName)
}
