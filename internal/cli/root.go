// Package cli implements the jobs command line: the serve command that runs
// the engine behind the admin API, and operator commands that talk to a
// running server through the HTTP client.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xraph/jobs/client"
	"github.com/xraph/jobs/engine"
)

// DefaultServer is the admin endpoint used when --server is not given.
const DefaultServer = "http://localhost:8080"

// Option configures the root command.
type Option func(*app)

// WithHandlers registers job handlers on the engine built by serve.
func WithHandlers(fn func(*engine.Engine)) Option {
	return func(a *app) { a.register = fn }
}

// WithVersion sets the version reported by --version.
func WithVersion(v string) Option {
	return func(a *app) { a.version = v }
}

type app struct {
	v        *viper.Viper
	register func(*engine.Engine)
	version  string

	cfgFile string
	server  string
	output  string
	timeout time.Duration
}

// NewRootCommand builds the command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{v: viper.New(), version: "dev"}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:   "jobs",
		Short: "Background job engine and admin CLI",
		Long: `Run the job engine or manage a running one over its admin API.

Operator commands talk to --server (default ` + DefaultServer + `), which
can also be set with JOBS_SERVER.`,
		Version:       a.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			switch a.output {
			case outputText, outputJSON, outputYAML:
				return nil
			default:
				return fmt.Errorf("unknown output format %q (want text, json or yaml)", a.output)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./jobs.yaml)")
	pf.StringVar(&a.server, "server", "", "admin API base URL")
	pf.StringVarP(&a.output, "output", "o", outputText, "output format: text, json or yaml")
	pf.DurationVar(&a.timeout, "timeout", 10*time.Second, "per-request timeout")

	root.AddCommand(
		newServeCommand(a),
		newListCommand(a),
		newStatsCommand(a),
		newRetryCommand(a),
		newRetryAllCommand(a),
		newCancelCommand(a),
		newClearDeadLetterCommand(a),
		newWatchCommand(a),
	)
	return root
}

// client returns an admin client for the configured server. The flag wins
// over JOBS_SERVER.
func (a *app) client() *client.Client {
	server := a.server
	if server == "" {
		_ = a.v.BindEnv("server", "JOBS_SERVER")
		server = a.v.GetString("server")
	}
	if server == "" {
		server = DefaultServer
	}
	return client.New(server, client.WithTimeout(a.timeout))
}
