package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/db"
	"github.com/nkiryanov/yieldmart/internal/logger"
	"github.com/nkiryanov/yieldmart/internal/repository/postgres"
	"github.com/nkiryanov/yieldmart/internal/service/campaign"
	"github.com/nkiryanov/yieldmart/internal/service/jobqueue"
)

// Root command serves when no subcommand given
func newRootCmd(c *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "yieldmart",
		Short:         "Ledger, payouts, commissions and background jobs of the investment store",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, c)
		},
	}

	c.RegisterFlags(root.PersistentFlags())

	root.AddCommand(newServeCmd(c))
	root.AddCommand(newMigrateCmd(c))
	root.AddCommand(newEnqueueCmd(c))

	return root
}

func newServeCmd(c *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API, payout scheduler, job processor and campaign poller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, c)
		},
	}
}

func serve(cmd *cobra.Command, c *Config) error {
	app, err := NewServerApp(cmd.Context(), c)
	if err != nil {
		return err
	}
	return app.Run(cmd.Context())
}

func newMigrateCmd(c *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.DatabaseDSN == "" {
				return errors.New("database DSN is required")
			}
			if err := db.Migrate(c.DatabaseDSN); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return err
		},
	}
}

func newEnqueueCmd(c *Config) *cobra.Command {
	enqueue := &cobra.Command{
		Use:   "enqueue",
		Short: "Put a job to the queue",
	}

	var campaignID string
	dispatch := &cobra.Command{
		Use:   "dispatch-campaign",
		Short: "Queue fan-out of a campaign to its pending recipients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := uuid.Parse(campaignID)
			if err != nil {
				return fmt.Errorf("invalid campaign id: %w", err)
			}

			pool, err := db.Connect(cmd.Context(), c.DatabaseDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			storage := postgres.NewStorage(pool)
			dispatcher := campaign.NewDispatcher(storage, jobqueue.NewClient(storage, c.JobMaxAttempts), logger.NewNoOpLogger())

			job, err := dispatcher.EnqueueDispatch(cmd.Context(), id)
			switch {
			case err == nil:
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "queued job %s\n", job.ID)
			case errors.Is(err, apperrors.ErrJobAlreadyQueued):
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "dispatch already queued as job %s\n", job.ID)
			}
			return err
		},
	}
	dispatch.Flags().StringVar(&campaignID, "campaign", "", "Campaign id")
	_ = dispatch.MarkFlagRequired("campaign")

	enqueue.AddCommand(dispatch)
	return enqueue
}
