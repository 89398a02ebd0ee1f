// Command entryctl drives the finance entry client from the shell.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/DataProRU/Auto-transfers-accounting/internal/app"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/config"
	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/logger"
)

// Version information (populated at build time)
var (
	version   = "dev"
	gitCommit = "unknown"
)

// errUsage marks a bad invocation; the command's usage has already been printed.
var errUsage = errors.New("usage")

type command struct {
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

// env is what every command gets to work with.
type env struct {
	app *app.App
	out io.Writer
}

var commands = map[string]command{
	"login":    {"Sign in and persist the session", runLogin},
	"logout":   {"Sign out and forget the session", runLogout},
	"whoami":   {"Show the signed-in user", runWhoami},
	"refdata":  {"List reference data for the form", runRefdata},
	"submit":   {"Submit a transaction", runSubmit},
	"invoices": {"List issued invoices or print their statement", runInvoices},
	"settle":   {"Preview, share or pay an invoice", runSettle},
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `entryctl - finance entry client

USAGE:
    entryctl [-config <path>] [-v] <command> [options]

COMMANDS:
`)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "    %-10s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(os.Stderr, `
Run "entryctl <command> -h" for command options.

EXAMPLES:
    entryctl login -u alice
    entryctl submit -f income.yaml
    entryctl submit -set company=1 -set operation=1 -set amount=250 -set currency=USD \
        -set payment_type=1 -set date_finish=2026-03-12 -set wallet=7
    entryctl invoices -unpaid
    entryctl settle -invoice 40 -out invoice-40.pdf
    entryctl settle -invoice 40 -wallet 7
`)
}

func main() {
	configPath := flag.String("config", "", "Path to a config file (default: config.toml lookup)")
	verbose := flag.Bool("v", false, "Log at debug level")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("entryctl %s (%s)\n", version, gitCommit)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}

	code := run(*configPath, *verbose, cmd, args[1:])
	os.Exit(code)
}

func run(configPath string, verbose bool, cmd command, args []string) int {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Format: "console", Output: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = a.Close(context.Background()) }()

	if err := cmd.run(ctx, &env{app: a, out: os.Stdout}, args); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", describe(err))
		return 1
	}
	return 0
}
