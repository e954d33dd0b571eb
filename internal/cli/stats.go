package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

func newStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show engine statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := a.client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), stats, func(w io.Writer) error {
				return printStats(w, stats)
			})
		},
	}
}

func newWatchCommand(a *app) *cobra.Command {
	var (
		interval time.Duration
		count    int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print statistics periodically until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval <= 0 {
				return fmt.Errorf("interval must be positive, got %s", interval)
			}
			ctx := cmd.Context()
			c := a.client()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for i := 0; count == 0 || i < count; i++ {
				if i > 0 {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
				}

				stats, err := c.Stats(ctx)
				if err != nil {
					return err
				}
				err = a.render(cmd.OutOrStdout(), stats, func(w io.Writer) error {
					fmt.Fprintf(w, "── %s ──\n", time.Now().Format(time.TimeOnly))
					return printStats(w, stats)
				})
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many refreshes (0 runs until interrupted)")
	return cmd
}
