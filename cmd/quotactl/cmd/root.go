// Package cmd provides the CLI commands for quotactl.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ryhazerus/quota"
	"github.com/ryhazerus/quota/internal/config"
	"github.com/ryhazerus/quota/store"
	"github.com/ryhazerus/quota/store/redis"
)

// app carries flag values and the loaded configuration between the root
// command and its subcommands.
type app struct {
	cfgFile string
	subject string
	expires string
	minute  int64
	month   int64

	cfg    *config.Config
	logger zerolog.Logger
}

// NewRootCommand builds the quotactl command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "quotactl",
		Short: "quotactl - inspect and manage per-subject quotas",
		Long: `quotactl manages the minute and month quota windows of a subject
in the configured counter store.

Config is loaded from quotactl.yaml in the current directory or
$HOME/.quotactl/. Environment variables override config values with the
QUOTA_ prefix, for example QUOTA_STORE_DRIVER=sqlite.

Limits default to the limits section of the config and can be overridden
per command with --minute and --month.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: ./quotactl.yaml)")
	pf.StringVarP(&a.subject, "subject", "s", "", "subject identifier (required)")
	pf.Int64Var(&a.minute, "minute", 0, "minute window limit (default from config)")
	pf.Int64Var(&a.month, "month", 0, "month window limit (default from config)")
	pf.StringVar(&a.expires, "expires", "", "explicit month window end, RFC 3339")

	root.AddCommand(
		a.limitsCommand("create", "Initialise both windows with fresh limits", quota.Handle.Create),
		a.limitsCommand("update", "Change limits, keeping month consumption", quota.Handle.Update),
		a.limitsCommand("reset", "Reinitialise both windows and clear subject events", quota.Handle.Reset),
		a.hitCommand(),
		a.remainingCommand(),
		a.usageCommand(),
		a.recordCommand(),
		a.purgeCommand(),
		a.configCommand(),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().
		Logger()

	flags := cmd.Flags()
	if !flags.Changed("minute") {
		a.minute = cfg.Limits.Minute
	}
	if !flags.Changed("month") {
		a.month = cfg.Limits.Month
	}
	return nil
}

// backend holds everything opened for one command run.
type backend struct {
	tracker *quota.Tracker
	sqlite  *store.SQLiteStore
	events  *store.SQLiteEventStore
}

func (b *backend) Close() error {
	err := b.tracker.Close()
	if b.events != nil {
		err = errors.Join(err, b.events.Close())
	}
	return err
}

func (a *app) open() (*backend, error) {
	b := &backend{}
	sc := a.cfg.Store

	var s store.Store
	switch sc.Driver {
	case config.DriverMemory:
		s = store.NewMemoryStore()
	case config.DriverSQLite, config.DriverTiered:
		sq, err := store.NewSQLiteStore(sc.DSN)
		if err != nil {
			return nil, err
		}
		b.sqlite = sq
		s = sq
		if sc.Driver == config.DriverTiered {
			s = store.NewTieredStore(sq, sc.CacheTTL)
		}
	case config.DriverRedis:
		s = redis.New(goredis.NewClient(&goredis.Options{Addr: sc.RedisAddr}), sc.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}

	opts := []quota.Option{quota.WithStore(s), quota.WithLogger(a.logger)}
	if a.cfg.Events.DSN != "" {
		es, err := store.NewSQLiteEventStore(a.cfg.Events.DSN)
		if err != nil {
			s.Close()
			return nil, err
		}
		b.events = es
		opts = append(opts, quota.WithEventStore(es))
	}

	b.tracker = quota.New(opts...)
	return b, nil
}

func (a *app) bind(t *quota.Tracker) (quota.Handle, error) {
	var opts []quota.BindOption
	if a.expires != "" {
		at, err := time.Parse(time.RFC3339, a.expires)
		if err != nil {
			return quota.Handle{}, fmt.Errorf("invalid --expires: %w", err)
		}
		opts = append(opts, quota.WithExpiry(at))
	}
	h, err := t.Bind(a.subject, opts...)
	if err != nil {
		return quota.Handle{}, fmt.Errorf("%w (use --subject)", err)
	}
	return h, nil
}

// run opens the backend, binds the subject and calls fn.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, b *backend, h quota.Handle, out io.Writer) error) error {
	b, err := a.open()
	if err != nil {
		return err
	}
	defer b.Close()

	h, err := a.bind(b.tracker)
	if err != nil {
		return err
	}
	return fn(cmd.Context(), b, h, cmd.OutOrStdout())
}
