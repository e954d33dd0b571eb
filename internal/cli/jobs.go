package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
)

var errNeedsForce = errors.New("refusing to continue without --force")

func newListCommand(a *app) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := job.ParseState(status)
			if err != nil {
				return err
			}
			list, err := a.client().ListJobs(cmd.Context(), state, limit)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), list, func(w io.Writer) error {
				return printJobs(w, list)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only jobs in this state (pending, running, retrying, completed, failed, cancelled)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs")
	return cmd
}

func newCancelCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return err
			}
			if err := a.client().CancelJob(cmd.Context(), jobID); err != nil {
				return err
			}
			resp := map[string]any{"id": jobID, "cancelled": true}
			return a.render(cmd.OutOrStdout(), resp, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Cancelled job %s\n", jobID)
				return err
			})
		},
	}
}

func newRetryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Re-enqueue a dead-lettered job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return err
			}
			newID, err := a.client().Retry(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			resp := map[string]any{"id": newID, "original": jobID}
			return a.render(cmd.OutOrStdout(), resp, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Retried job %s as %s\n", jobID, newID)
				return err
			})
		},
	}
}

func newRetryAllCommand(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "retry-all",
		Short: "Re-enqueue every dead-lettered job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				return errNeedsForce
			}
			n, err := a.client().RetryAll(cmd.Context())
			if err != nil {
				return err
			}
			resp := map[string]int{"retried": n}
			return a.render(cmd.OutOrStdout(), resp, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Retried %d dead-lettered job(s)\n", n)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm the bulk retry")
	return cmd
}

func newClearDeadLetterCommand(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "clear-dead-letter",
		Short: "Delete every dead-lettered job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				return errNeedsForce
			}
			n, err := a.client().ClearDeadLetters(cmd.Context())
			if err != nil {
				return err
			}
			resp := map[string]int{"cleared": n}
			return a.render(cmd.OutOrStdout(), resp, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Cleared %d dead-lettered job(s)\n", n)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm the deletion")
	return cmd
}
