package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// ExitError carries a non-default process exit code out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operations tooling for the general ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newFXCommand(), newJobsCommand(), newMigrateCommand())
	return rootCmd
}

func newFXCommand() *cobra.Command {
	fxCmd := &cobra.Command{Use: "fx", Short: "Exchange rate checks"}

	var opts FXValidateOptions
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Report missing rates a revaluation on --date would need",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.New(ctx, cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			module, err := accounting.New(accounting.Config{
				Pool:            pool,
				Logger:          app.NewLogger(cfg),
				SequenceBackend: accounting.SequenceMemory,
				ForexEnabled:    true,
			})
			if err != nil {
				return err
			}
			var currencies CurrencySource
			if svc, err := module.Forex.Get(); err == nil {
				currencies = svc
			}
			fxCLI, err := NewFXOpsCLI(currencies, module.Rates)
			if err != nil {
				return err
			}
			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()
			if code := fxCLI.ValidateCommand(ctx, opts); code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}
	validateCmd.Flags().StringVar(&opts.Date, "date", time.Now().Format(time.DateOnly), "revaluation date (YYYY-MM-DD)")
	validateCmd.Flags().StringSliceVar(&opts.Pairs, "pair", nil, "explicit FROM/TO pair; repeatable")
	validateCmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	fxCmd.AddCommand(validateCmd)
	return fxCmd
}

func newJobsCommand() *cobra.Command {
	jobsCmd := &cobra.Command{Use: "jobs", Short: "Ledger background jobs"}

	var (
		date   string
		userID int64
	)
	triggerCmd := &cobra.Command{
		Use:       "trigger <task>",
		Short:     "Enqueue a ledger task",
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobs.TaskTypes,
		RunE: func(cmd *cobra.Command, args []string) error {
			var at time.Time
			if date != "" {
				parsed, err := time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("invalid --date %q (expected YYYY-MM-DD)", date)
				}
				at = parsed
			}
			jobsCLI, err := jobsFromEnv()
			if err != nil {
				return err
			}
			defer jobsCLI.Close()
			info, err := jobsCLI.Trigger(cmd.Context(), args[0], at, userID)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	triggerCmd.Flags().StringVar(&date, "date", "", "as-of date for the task (YYYY-MM-DD)")
	triggerCmd.Flags().Int64Var(&userID, "user", 0, "acting user id (defaults to SYSTEM_USER_ID)")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show ledger queue counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobsCLI, err := jobsFromEnv()
			if err != nil {
				return err
			}
			defer jobsCLI.Close()
			stats, err := jobsCLI.InspectQueues()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}

	jobsCmd.AddCommand(triggerCmd, statsCmd)
	return jobsCmd
}

func jobsFromEnv() (*JobsCLI, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	return NewJobsCLI(cfg.RedisAddr)
}

func newMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:       "migrate <up|down|version>",
		Short:     "Apply or inspect the ledger schema migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{db.MigrateUp, db.MigrateDown, "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			var status db.MigrationStatus
			if args[0] == "version" {
				status, err = db.MigrationVersion(cfg.PGDSN)
			} else {
				status, err = db.Migrate(cfg.PGDSN, args[0])
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schema version=%d dirty=%t changed=%t\n", status.Version, status.Dirty, status.Changed)
			if status.Dirty {
				return &ExitError{Code: 2}
			}
			return nil
		},
	}
	return migrateCmd
}
