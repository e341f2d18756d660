// Package cli implements the gitwire command line.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire/cache"
	"github.com/jmgilman/gitwire/config"
	"github.com/jmgilman/gitwire/fetch"
	"github.com/jmgilman/gitwire/filter"
	"github.com/jmgilman/gitwire/internal/logging"
	"github.com/jmgilman/gitwire/wire"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that override settings.
const EnvPrefix = "GITWIRE"

var (
	successColor = color.New(color.FgGreen, color.Bold)
	failureColor = color.New(color.FgRed, color.Bold)
)

// Settings are the tool settings merged from flags, environment and the user
// configuration file.
type Settings struct {
	CacheDir     string
	LogLevel     string
	Jobs         int
	SingleThread bool
}

// App holds the state of one command line invocation.
type App struct {
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	workDir string
	fetcher wire.Fetcher
	v       *viper.Viper

	settings Settings
	logger   *logging.Logger
	failed   bool
}

// Option configures an App.
type Option func(*App)

// WithIO replaces the standard streams.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(a *App) {
		a.in = in
		a.out = out
		a.errOut = errOut
	}
}

// WithWorkDir sets the directory the project root is searched from.
func WithWorkDir(dir string) Option {
	return func(a *App) {
		a.workDir = dir
	}
}

// WithFetcher replaces the git fetcher.
func WithFetcher(f wire.Fetcher) Option {
	return func(a *App) {
		a.fetcher = f
	}
}

// New creates an App reading the standard streams.
func New(opts ...Option) *App {
	a := &App{
		in:      os.Stdin,
		out:     os.Stdout,
		errOut:  os.Stderr,
		workDir: ".",
		v:       viper.New(),
		logger:  logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Execute runs the command line and returns the process exit code.
func (a *App) Execute(ctx context.Context, args []string) int {
	root := a.Command()
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		failureColor.Fprintln(a.errOut, err.Error())
		return 1
	}
	if a.failed {
		return 1
	}
	return 0
}

// Command builds the root command.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "gitwire",
		Short: "Copy parts of remote git repositories into this one",
		Long: `gitwire copies directories and files out of remote git repositories into the
current project as declared in .gitwire.toml, and checks that the copies still
match their origin.

Repositories are cached per URL and revision, so several entries reading from
the same upstream fetch it once.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringP("name", "n", "", "Narrow down the entries to operate on by name")
	flags.BoolP("singlethread", "s", false, "Process entries one at a time in declaration order")
	flags.IntP("jobs", "j", wire.DefaultConcurrency, "Maximum number of concurrent fetches")
	flags.String("cache-dir", "", "Cache directory (default: <tmp>/"+cache.Namespace+")")
	flags.String("log-level", "warn", "Log level: debug, info, warn or error")
	flags.String("config", "", "Tool settings file (default: $XDG_CONFIG_HOME/gitwire/config.toml)")
	// --target is an alias of --name.
	root.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "target" {
			name = "name"
		}
		return pflag.NormalizedName(name)
	})

	for _, key := range []string{"cache-dir", "log-level", "jobs", "singlethread"} {
		_ = a.v.BindPFlag(key, flags.Lookup(key))
	}

	root.AddCommand(a.syncCommand(), a.checkCommand(), a.cacheCommand())
	return root
}

func (a *App) setup(cmd *cobra.Command, _ []string) error {
	a.v.SetEnvPrefix(EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = defaultSettingsPath()
	}
	if path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			if explicit, _ := cmd.Flags().GetString("config"); explicit != "" || !os.IsNotExist(err) {
				return errors.WithContext(
					errors.Wrap(err, errors.CodeInvalidConfig, "failed to read settings"), "path", path)
			}
		}
	}

	a.settings = Settings{
		CacheDir:     a.v.GetString("cache-dir"),
		LogLevel:     a.v.GetString("log-level"),
		Jobs:         a.v.GetInt("jobs"),
		SingleThread: a.v.GetBool("singlethread"),
	}

	level, err := logging.ParseLevel(a.settings.LogLevel)
	if err != nil {
		return err
	}
	logConfig := logging.DefaultConfig()
	logConfig.Level = level
	logConfig.Output = a.errOut
	a.logger = logging.NewLogger(logConfig)
	return nil
}

func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "gitwire", "config.toml")
}

func (a *App) concurrency() int {
	if a.settings.SingleThread {
		return 1
	}
	return a.settings.Jobs
}

func (a *App) mode() wire.Mode {
	if a.settings.SingleThread {
		return wire.ModeSingle
	}
	return wire.ModeParallel
}

func (a *App) manager() (*cache.Manager, error) {
	root := a.settings.CacheDir
	if root == "" {
		root = cache.DefaultRoot()
	}
	return cache.NewManager(root,
		cache.WithLocks(cache.NewLockManager(root)),
		cache.WithLogger(a.logger.WithOperation("cache")))
}

func (a *App) gitFetcher() wire.Fetcher {
	if a.fetcher != nil {
		return a.fetcher
	}
	return fetch.New(fetch.WithLogger(a.logger.WithOperation("fetch")))
}

func (a *App) contentFilter() *filter.Filter {
	return filter.New(filter.WithLogger(a.logger.WithOperation("filter")))
}

func (a *App) resolve(cmd *cobra.Command, ef *entryFlags) (*wire.Resolution, error) {
	override, err := ef.entry()
	if err != nil {
		return nil, err
	}

	name, _ := cmd.Flags().GetString("name")
	opts := []wire.ResolverOption{wire.WithResolverLogger(a.logger.WithOperation("resolve"))}
	if a.interactive() {
		opts = append(opts, wire.WithPrompter(newLinePrompter(a.in, a.errOut)))
	}

	loader := config.NewLoader(config.WithLogger(a.logger.WithOperation("config")))
	return wire.NewResolver(loader, opts...).Resolve(cmd.Context(), wire.Request{
		WorkDir:    a.workDir,
		NameFilter: name,
		Override:   override,
		Save:       ef.save,
		Append:     ef.appendEntry,
	})
}

func (a *App) interactive() bool {
	f, ok := a.in.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func (a *App) report(ok bool) {
	if ok {
		successColor.Fprintln(a.out, "Success")
		return
	}
	a.failed = true
	failureColor.Fprintln(a.out, "Failure")
}
