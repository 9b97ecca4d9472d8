// Command formsummary summarises, lists and exports finalized form
// instances.
//
//	formsummary forms
//	formsummary summary --date 2024-05-10 --match fokontany=Ambohitra
//	formsummary list --all-dates
//	formsummary export --dir ./exports
//	formsummary share
//	formsummary fields path/to/instance.xml
//	formsummary select --form pay --date 2024-05-10
//	formsummary validate
//
// Exit codes: 0 success, 1 runtime failure, 2 usage or configuration error.
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

	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"formsummary/internal/config"
	"formsummary/internal/datenorm"
	"formsummary/internal/display"
	"formsummary/internal/instances"
	"formsummary/internal/logging"
	"formsummary/internal/summary"

	// register every instance store backend; config picks one.
	_ "formsummary/internal/instances/all"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// usageError marks errors that map to exit code 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

// app is the per-invocation state shared by subcommands. It is built in
// PersistentPreRunE and torn down by run.
type app struct {
	stdout, stderr io.Writer

	cfgPath string
	verbose bool

	cfg      *config.Config
	log      *zap.Logger
	cal      datenorm.Calendar
	printer  display.Printer
	repo     instances.Repository
	pipeline *summary.Pipeline
	cleanups []func()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	defer a.close()

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "formsummary: %v\n", err)
	var ue usageError
	if errors.As(err, &ue) || strings.HasPrefix(err.Error(), "unknown command") {
		return exitUsage
	}
	return exitFailure
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "formsummary",
		Short:         "Summarise and export finalized form instances",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", config.DefaultPath, "configuration YAML path")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logs")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	root.AddCommand(
		a.formsCommand(),
		a.summaryCommand(),
		a.listCommand(),
		a.exportCommand(),
		a.shareCommand(),
		a.fieldsCommand(),
		a.selectCommand(),
		a.validateCommand(),
	)
	return root
}

// loadConfig reads and validates the configuration and builds the logger.
func (a *app) loadConfig() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return usageError{err}
	}
	issues := config.Validate(cfg, instances.Kinds())
	for _, iss := range issues {
		fmt.Fprintln(a.stderr, iss.String())
	}
	if config.HasErrors(issues) {
		return usagef("configuration is invalid: %s", a.cfgPath)
	}
	a.cfg = cfg

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, a.verbose, a.stderr)
	if err != nil {
		return usageError{err}
	}
	a.log = log
	a.cleanups = append(a.cleanups, func() { _ = log.Sync() })

	cal, err := datenorm.Named(cfg.Calendar.Timezone)
	if err != nil {
		return usageError{err}
	}
	a.cal = cal
	a.printer = display.New(cfg.Display.Language, cal)
	return nil
}

// open builds everything a store-backed subcommand needs.
func (a *app) open(cmd *cobra.Command) error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	ctx := cmd.Context()

	cleanup, err := initMetrics(ctx, a.cfg.Metrics, a.cfg.FlushInterval(), a.log)
	if err != nil {
		return err
	}
	a.cleanups = append(a.cleanups, cleanup)

	repo, err := instances.Open(ctx, instances.StoreConfig{
		Kind:         a.cfg.Store.Kind,
		DSN:          a.cfg.Store.DSN,
		Dir:          a.cfg.Store.Dir,
		DisplayNames: a.cfg.Store.DisplayNames,
	})
	if err != nil {
		return err
	}
	a.repo = repo
	a.cleanups = append(a.cleanups, repo.Close)

	a.pipeline = summary.New(repo, summary.Options{
		Fields: summary.Fields{
			Date:     a.cfg.Fields.Date,
			Sum:      a.cfg.Fields.Sum,
			Distinct: a.cfg.Fields.Distinct,
			ListID:   a.cfg.Fields.ListID,
		},
		Calendar: a.cal,
		Logger:   a.log,
	})
	a.log.Debug("store opened", zap.String("kind", a.cfg.Store.Kind))
	return nil
}

// close runs cleanups in reverse order.
func (a *app) close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}
