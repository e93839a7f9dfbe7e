package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mongrel/internal/config"
	"mongrel/internal/logging"

	// register every backend; the config selects which one runs.
	_ "mongrel/internal/source/csvfile"
	_ "mongrel/internal/source/jsonfile"
	_ "mongrel/internal/source/mongo"
	_ "mongrel/internal/storage/all"
)

// main is the entry point for the mongrel binary. Every subcommand loads and
// validates the configuration before it runs.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// app carries the state shared by the subcommands of one invocation.
type app struct {
	cfgPath string
	envFile string
	verbose bool

	stdout io.Writer
	stderr io.Writer

	cfg      *config.Config
	log      zerolog.Logger
	closeLog func() error // nil until setup runs and after the sink is closed
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	return newApp(stdout, stderr).rootCmd()
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mongrel",
		Short: "Move nested documents into relational tables",
		Long: `mongrel discovers the relations hidden in a document collection, turns an
operator-edited mapping into relational DDL, and streams the documents into
the resulting tables.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "YAML config path (defaults and MONGREL_* env only when empty)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logs")

	root.AddCommand(
		a.validateCmd(),
		a.discoverCmd(),
		a.autoconfigCmd(),
		a.ddlCmd(),
		a.transferCmd(),
	)
	// cobra skips post-run hooks when RunE fails, so the log sink is closed here.
	for _, c := range root.Commands() {
		c.RunE = a.closingLog(c.RunE)
	}
	return root
}

func (a *app) closingLog(run func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if cerr := a.closeLogs(); err == nil {
				err = cerr
			}
		}()
		return run(cmd, args)
	}
}

// closeLogs closes the log sink opened by setup. Later calls do nothing.
func (a *app) closeLogs() error {
	if a.closeLog == nil {
		return nil
	}
	c := a.closeLog
	a.closeLog = nil
	return c()
}

// setup loads and validates the configuration, then builds the logger.
func (a *app) setup(*cobra.Command, []string) error {
	cfg, err := config.Load(config.Options{Path: a.cfgPath, EnvFile: a.envFile})
	if err != nil {
		return err
	}

	issues := config.Validate(*cfg)
	for _, iss := range issues {
		_, _ = fmt.Fprintln(a.stderr, iss.String())
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("configuration is invalid: %s", describe(a.cfgPath))
	}

	level := cfg.Log.Level
	if a.verbose {
		level = zerolog.DebugLevel.String()
	}
	l, closeLog, err := logging.New(logging.Options{
		Level:      level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Console:    a.stderr,
	})
	if err != nil {
		return err
	}
	a.cfg, a.log, a.closeLog = cfg, l, closeLog
	return nil
}

func describe(path string) string {
	if path == "" {
		return "defaults and environment"
	}
	return path
}

func (a *app) printf() logging.Printf { return logging.Printf{L: a.log} }
