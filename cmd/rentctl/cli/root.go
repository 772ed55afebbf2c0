// Package cli builds the rentctl command tree.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-rent/internal/billing"
	"github.com/odyssey-erp/odyssey-rent/jobs"
)

// ErrUnbalanced makes rentctl exit non-zero when the ledger check finds drift.
var ErrUnbalanced = errors.New("ledger check found unbalanced events")

// Deps supplies backends lazily so --help never dials Redis or Postgres.
type Deps struct {
	Queue  func() (Queue, error)
	Ledger func(ctx context.Context) (jobs.UnbalancedLister, func(), error)
	Logger *slog.Logger
}

// NewRootCommand assembles rentctl.
func NewRootCommand(deps Deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "rentctl",
		Short:         "Operate the rent billing engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newJobsCommand(deps), newLedgerCommand(deps))
	return root
}

func newJobsCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Enqueue and inspect background jobs"}

	var propertyID int64
	trigger := &cobra.Command{
		Use:   "trigger [billing-tick|gl-integrity]",
		Short: "Enqueue a job now",
		Example: `  rentctl jobs trigger billing-tick
  rentctl jobs trigger billing-tick --property 12
  rentctl jobs trigger gl-integrity`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, ok := jobAliases[args[0]]
			if !ok {
				return fmt.Errorf("unknown job %q", args[0])
			}
			if propertyID < 0 {
				return errors.New("--property must not be negative")
			}
			q, err := deps.Queue()
			if err != nil {
				return err
			}
			defer q.Close()
			info, err := q.Trigger(cmd.Context(), name, propertyID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return err
		},
	}
	trigger.Flags().Int64Var(&propertyID, "property", 0, "limit the billing tick to one property")

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Print default queue counters as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := deps.Queue()
			if err != nil {
				return err
			}
			defer q.Close()
			stats, err := q.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	}

	cmd.AddCommand(trigger, inspect)
	return cmd
}

var jobAliases = map[string]string{
	"billing-tick": jobs.TaskBillingTick,
	"gl-integrity": jobs.TaskGLIntegrity,
}

func newLedgerCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{Use: "ledger", Short: "General ledger maintenance"}
	check := &cobra.Command{
		Use:   "check",
		Short: "Report ledger events whose debits and credits differ",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lister, closeFn, err := deps.Ledger(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			job := &jobs.GLIntegrityJob{Ledger: lister, Logger: deps.Logger}
			events, err := job.Run(cmd.Context())
			if err != nil && !errors.Is(err, billing.ErrLedgerImbalance) {
				return err
			}
			out := cmd.OutOrStdout()
			if len(events) == 0 {
				_, err := fmt.Fprintln(out, "ledger balanced")
				return err
			}
			for _, ev := range events {
				if _, err := fmt.Fprintf(out, "%s debit=%s credit=%s\n",
					ev.EventRef, ev.Debit.StringFixed(2), ev.Credit.StringFixed(2)); err != nil {
					return err
				}
			}
			return fmt.Errorf("%w: %d", ErrUnbalanced, len(events))
		},
	}
	cmd.AddCommand(check)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs the root command and exits non-zero on failure.
func Execute(ctx context.Context, deps Deps) {
	if err := NewRootCommand(deps).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "rentctl: %v\n", err)
		os.Exit(1)
	}
}
