// portal is a terminal client for the SNDA backend. It keeps the session in
// the configured store so that consecutive invocations stay logged in.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"snda-portal/internal/config"
	"snda-portal/internal/observability"

	"github.com/spf13/pflag"
)

// exitError carries a non-default exit status
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
}

type command struct {
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"login":  {"exchange credentials for a session", runLogin},
	"logout": {"forget the stored session", runLogout},
	"whoami": {"show the logged-in profile", runWhoami},
	"fetch":  {"perform an authenticated request against the API", runFetch},
	"watch":  {"follow a realtime channel and print stories", runWatch},
}

var commandOrder = []string{"login", "logout", "whoami", "fetch", "watch"}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var configFile, logLevel, logFormat string

	flagSet := pflag.NewFlagSet("portal", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&configFile, "config", "", "TOML overlay for endpoints, storage keys and cookie lifetimes")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default from LOG_LEVEL)")
	flagSet.StringVar(&logFormat, "log-format", "text", "json or text")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stderr, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 {
		printHelp(stderr, flagSet)
		return nil
	}

	name := flagSet.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		return &exitError{code: 2, err: fmt.Errorf("unknown command %q", name)}
	}

	if configFile != "" {
		os.Setenv("PORTAL_CONFIG_FILE", configFile)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	observability.InitLogger(stderr, logLevel, logFormat)

	return cmd.run(ctx, &env{stdin: stdin, stdout: stdout, stderr: stderr, cfg: cfg}, flagSet.Args()[1:])
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "portal: SNDA command line client\n\nUsage:\n  portal [flags] <command> [command flags]\n\nCommands:\n")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "\nFlags:\n%s", flagSet.FlagUsages())
}
