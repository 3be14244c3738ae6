package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ryhazerus/quota"
)

func (a *app) limitsCommand(use, short string, op func(quota.Handle, context.Context, int64, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, _ *backend, h quota.Handle, out io.Writer) error {
				if err := op(h, ctx, a.minute, a.month); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: minute=%d month=%d\n", use, a.minute, a.month)
				return nil
			})
		},
	}
}

func (a *app) hitCommand() *cobra.Command {
	var failOnDeny bool
	cmd := &cobra.Command{
		Use:   "hit",
		Short: "Run one admission check and consume quota when admitted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, _ *backend, h quota.Handle, out io.Writer) error {
				d, err := h.Hit(ctx, a.minute, a.month)
				if err != nil {
					return err
				}
				if d.Allowed {
					fmt.Fprintf(out, "allowed: minute=%d month=%d\n", d.MinuteRemaining, d.MonthRemaining)
					return nil
				}
				fmt.Fprintf(out, "denied: %s: minute=%d month=%d\n", d.Reason, d.MinuteRemaining, d.MonthRemaining)
				if failOnDeny {
					return d.Err()
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&failOnDeny, "fail-on-deny", false, "exit non-zero when the check is denied")
	return cmd
}

func (a *app) remainingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remaining <minute|month>",
		Short: "Print what is left of a window, recreating it when missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := quota.ParseWindow(args[0])
			if err != nil {
				return err
			}
			limit := a.minute
			if w == quota.Month {
				limit = a.month
			}
			return a.run(cmd, func(ctx context.Context, _ *backend, h quota.Handle, out io.Writer) error {
				n, err := h.Remaining(ctx, w, limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, n)
				return nil
			})
		},
	}
}

func (a *app) usageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show limit, used and remaining for both windows without changing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, _ *backend, h quota.Handle, out io.Writer) error {
				u, err := h.Usage(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "WINDOW\tLIMIT\tUSED\tREMAINING\tINITIALISED")
				for _, row := range []struct {
					w  quota.Window
					wu quota.WindowUsage
				}{{quota.Minute, u.Minute}, {quota.Month, u.Month}} {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%v\n", row.w, row.wu.Limit, row.wu.Used, row.wu.Remaining, row.wu.Initialized)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				if !u.MonthExpiresAt.IsZero() {
					fmt.Fprintf(out, "month window ends %s\n", u.MonthExpiresAt.UTC().Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}

func (a *app) recordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "record <event>",
		Short: "Record a usage event for the subject in the event store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, b *backend, h quota.Handle, out io.Writer) error {
				if b.events == nil {
					return errors.New("no event store configured (set events.dsn)")
				}
				if err := b.events.Record(ctx, h.Subject(), args[0], time.Now()); err != nil {
					return err
				}
				n, err := b.events.Count(ctx, h.Subject())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "recorded %s: %d events\n", args[0], n)
				return nil
			})
		},
	}
}

func (a *app) purgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired entries from a SQLite store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.open()
			if err != nil {
				return err
			}
			defer b.Close()

			if b.sqlite == nil {
				return fmt.Errorf("purge needs the sqlite or tiered driver, not %q", a.cfg.Store.Driver)
			}
			n, err := b.sqlite.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired entries\n", n)
			return nil
		},
	}
}

func (a *app) configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cfg.WriteYAML(cmd.OutOrStdout())
		},
	}
}
