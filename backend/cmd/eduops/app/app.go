// Package app wires configuration, logging and the eduops subcommands.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/JustUsingaWebsite/eduops/backend/internal/config"
	"github.com/JustUsingaWebsite/eduops/backend/internal/integrate"
	"github.com/JustUsingaWebsite/eduops/backend/internal/llm"
	"github.com/JustUsingaWebsite/eduops/backend/internal/logging"
	"github.com/JustUsingaWebsite/eduops/backend/internal/output"
)

// App holds the state shared by every command.
type App struct {
	version string

	stdout io.Writer
	stderr io.Writer

	flags    globalFlags
	envFiles []string

	config *config.Config
	logger zerolog.Logger
	format output.Format

	fixedLogger *zerolog.Logger
	gen         llm.Generator
}

type globalFlags struct {
	configFile string
	verbose    bool
	quiet      bool
	noColor    bool
	format     string
	logLevel   string
}

// Option customizes an App.
type Option func(*App)

// WithOutput redirects command output and errors.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(a *App) {
		a.stdout = stdout
		a.stderr = stderr
	}
}

// WithLogger replaces the logger built from configuration.
func WithLogger(l zerolog.Logger) Option {
	return func(a *App) { a.fixedLogger = &l }
}

// WithGenerator replaces the Gemini client used by summarize and serve.
func WithGenerator(g llm.Generator) Option {
	return func(a *App) { a.gen = g }
}

// WithEnvFiles sets the .env files read before the environment.
func WithEnvFiles(files ...string) Option {
	return func(a *App) { a.envFiles = append([]string{}, files...) }
}

// New creates an App. Configuration is read when a command runs, after the
// flags are parsed.
func New(version string, opts ...Option) *App {
	a := &App{
		version: version,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the configuration loaded for the running command.
func (a *App) Config() *config.Config { return a.config }

// Logger returns the application logger.
func (a *App) Logger() zerolog.Logger { return a.logger }

// Execute runs the CLI with args.
func (a *App) Execute(ctx context.Context, args []string) error {
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	return root.ExecuteContext(ctx)
}

func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "eduops",
		Short:   "Education statistics integration toolkit",
		Version: a.version,
		Long: `eduops merges the school-level api, KESS and digital infrastructure
exports on the school code, and analyses the regional statistics behind them.`,
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configFile, "config", "", "config file (default is ./.eduops.yaml or $HOME/.eduops.yaml)")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	pf.BoolVarP(&a.flags.quiet, "quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	pf.BoolVar(&a.flags.noColor, "no-color", false, "disable colored log output")
	pf.StringVarP(&a.flags.format, "format", "o", "", "output format: table, json, yaml, csv")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")

	root.SetVersionTemplate("eduops {{.Version}}\n")

	root.AddCommand(
		a.integrateCommand(),
		a.lookupCommand(),
		a.filterCommand(),
		a.replaceCommand(),
		a.previewCommand(),
		a.exportCommand(),
		a.statsCommand(),
		a.chartsCommand(),
		a.summarizeCommand(),
		a.serveCommand(),
	)
	return root
}

// setup runs before every command.
func (a *App) setup(_ *cobra.Command, _ []string) error {
	format, err := output.ParseFormat(a.flags.format)
	if err != nil {
		return err
	}
	a.format = output.DetectFormat(string(format))

	cfg, err := config.Load(config.Options{ConfigFile: a.flags.configFile, EnvFiles: a.envFiles})
	if err != nil {
		return err
	}
	a.config = cfg

	if a.fixedLogger != nil {
		a.logger = *a.fixedLogger
		return nil
	}
	a.logger = logging.New(&logging.Config{
		Level:   a.logLevel(),
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		NoColor: a.flags.noColor || os.Getenv("NO_COLOR") != "",
	})
	return nil
}

// logLevel applies, in order: --log-level, -q, -v, configuration.
func (a *App) logLevel() string {
	switch {
	case a.flags.logLevel != "":
		return a.flags.logLevel
	case a.flags.verbose && a.flags.quiet:
		fmt.Fprintln(a.stderr, "Warning: both --verbose and --quiet specified, using --quiet")
		return "warn"
	case a.flags.quiet:
		return "warn"
	case a.flags.verbose:
		return "debug"
	default:
		return a.config.Log.Level
	}
}

func (a *App) print(data any) error {
	return output.NewFormatter(a.format).Format(a.stdout, data)
}

func (a *App) integrateOptions() integrate.Options {
	cfg := a.config
	opts := integrate.DefaultOptions(cfg.Data.API, cfg.Data.KESS, cfg.Data.Infra, cfg.Output.CSV)
	opts.ExcelOutput = cfg.Output.XLSX
	opts.Key = cfg.Key.Column
	opts.KeyAliases = cfg.Key.Aliases
	return opts
}

func (a *App) generator(ctx context.Context) (llm.Generator, error) {
	if a.gen != nil {
		return a.gen, nil
	}
	g, err := llm.NewGemini(ctx, a.config.LLM.APIKey, llm.Options{
		Model:       a.config.LLM.Model,
		MaxTokens:   a.config.LLM.MaxTokens,
		Temperature: a.config.LLM.Temperature,
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ContextWithSignals returns a context cancelled on SIGINT or SIGTERM.
func ContextWithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// ExitOnError prints err to stderr and exits with status 1.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString("eduops: " + err.Error() + "\n")
		os.Exit(1)
	}
}
