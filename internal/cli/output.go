package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/jobs/api"
	"github.com/xraph/jobs/engine"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// render writes v as JSON or YAML, or calls text for the human format.
func (a *app) render(w io.Writer, v any, text func(io.Writer) error) error {
	switch a.output {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(w)
	}
}

func printJobs(w io.Writer, list []engine.JobInfo) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No jobs found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATE\tPRIORITY\tATTEMPTS\tENQUEUED\tERROR")
	for _, j := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d/%d\t%s\t%s\n",
			j.ID, j.Type, j.State, j.Priority,
			j.Attempts, j.MaxRetries+1,
			j.EnqueuedAt.Local().Format(time.DateTime),
			truncate(j.Error, 48),
		)
	}
	return tw.Flush()
}

func printStats(w io.Writer, s api.StatsResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := []struct {
		label string
		value any
	}{
		{"Accepting", s.Accepting},
		{"Queue depth", s.QueueDepth},
		{"Enqueued", s.Enqueued},
		{"Rejected", s.Rejected},
		{"Running", s.Running},
		{"Pending", s.Pending},
		{"Completed", s.Completed},
		{"Failed", s.Failed},
		{"Retried", s.Retried},
		{"Dead letter", s.DeadLettered},
		{"Cancelled", s.Cancelled},
		{"Success rate", fmt.Sprintf("%.1f%%", s.SuccessRate)},
		{"Avg execution", fmt.Sprintf("%.1fms", s.AvgMS)},
		{"p50 / p95 / p99", fmt.Sprintf("%.1fms / %.1fms / %.1fms", s.P50MS, s.P95MS, s.P99MS)},
		{"Persistence", fmt.Sprintf("processed=%d failed=%d dropped=%d queued=%d",
			s.Persistence.Processed, s.Persistence.Failed, s.Persistence.Dropped, s.Persistence.Queued)},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s:\t%v\n", r.label, r.value)
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
