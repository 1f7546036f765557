package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dealshub/dealshub-go/config"
	"github.com/dealshub/dealshub-go/internal/bootstrap"
	"github.com/dealshub/dealshub-go/internal/migrate"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
	In     io.Reader
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = time.Minute
	adminEventOrigin        = "dealshub-admin"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr, os.Stdin)) //nolint:forbidigo // exit code is the CLI contract
}

// execute runs one subcommand and returns the process exit code. Logs go to
// stderr so stdout stays parseable.
func execute(args []string, stdout, stderr io.Writer, stdin io.Reader) int {
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if len(args) == 0 {
		_ = printUsage(stderr)
		return exitUsage
	}
	cmd, ok := findCommand(args[0])
	if !ok {
		_ = writef(stderr, "unknown command %q\n\n", args[0])
		_ = printUsage(stderr)
		return exitUsage
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		return exitFailure
	}
	if logger, err = bootstrap.ConfigureLogger(cfg.Observability.Logging, stderr); err != nil {
		_ = writef(stderr, "configure logger: %v\n", err)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmdCtx := &commandContext{Ctx: ctx, Logger: logger, Config: cfg, Out: stdout, In: stdin}
	if err := cmd.run(cmdCtx, args[1:]); err != nil {
		logger.ErrorContext(ctx, "command failed", "command", cmd.name, "error", err)
		return exitFailure
	}
	return exitOK
}

// commands lists the subcommands in the order usage prints them.
func commands() []command {
	return []command{
		{name: "migrate", description: "Apply profile store migrations (--status to list them)", run: runMigrations},
		{name: "grant-role", description: "Grant a role to a user and refresh their live sessions", run: runGrantRole},
		{name: "revoke-role", description: "Revoke a role from a user and refresh their live sessions", run: runRevokeRole},
		{name: "show-profile", description: "Print a user's profile and resolved roles", run: runShowProfile},
		{name: "list-sessions", description: "List persisted browser sessions", run: runListSessions},
		{name: "purge-sessions", description: "Delete persisted browser sessions and sign their users out", run: runPurgeSessions},
	}
}

func findCommand(name string) (command, bool) {
	for _, c := range commands() {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printUsage(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "Usage: dealshub-admin <command> [flags]\n\nCommands:\n"); err != nil {
		return err
	}
	for _, c := range commands() {
		if err := writef(tw, "  %s\t%s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return tw.Flush()
}

type migrateOptions struct {
	Timeout time.Duration
	Status  bool
}

// runMigrations applies pending migrations, or with --status only reports
// which ones are applied.
func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	return withInfra(cmdCtx, needDB, func(conns *infra) error {
		if !opts.Status {
			return bootstrap.RunMigrations(ctx, conns.DB, cmdCtx.Logger)
		}
		status, err := migrate.Status(ctx, conns.DB)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		return renderMigrationStatus(cmdCtx.Out, status)
	})
}

func renderMigrationStatus(w io.Writer, status []migrate.Migration) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "VERSION\tSTATE\tAPPLIED AT\n"); err != nil {
		return err
	}
	for _, m := range status {
		state, at := "pending", "-"
		if m.Applied {
			state, at = "applied", m.AppliedAt.UTC().Format(time.RFC3339)
		}
		if err := writef(tw, "%s\t%s\t%s\n", m.Version, state, at); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts migrateOptions
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "how long migrations may run")
	fs.BoolVar(&opts.Status, "status", false, "list migrations and whether they are applied, without applying")
	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

// confirmAction asks on the command's input unless --yes or --dry-run was given.
func confirmAction(cmdCtx *commandContext, prompt string, yes, dryRun bool) error {
	if dryRun || yes {
		return nil
	}

	if err := writef(cmdCtx.Out, "%s\nContinue? [y/N]: ", prompt); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	in := cmdCtx.In
	if in == nil {
		in = os.Stdin
	}
	resp, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errors.New("aborted by user")
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
