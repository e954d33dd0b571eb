// Command jobs runs the background job engine with its admin API, and
// manages a running engine from the command line.
//
// Usage:
//
//	jobs serve --addr :8080
//
// Then in another terminal:
//
//	# Enqueue a job
//	curl -X POST http://localhost:8080/admin/jobs/enqueue \
//	  -H "Content-Type: application/json" \
//	  -d '{"type":"sleep","payload":{"duration":"2s"},"priority":5}'
//
//	# Inspect the engine
//	jobs list --status running
//	jobs stats -o yaml
//	jobs watch --interval 1s
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/xraph/jobs/internal/cli"
)

var version = "dev"

func main() {
	cmd := cli.NewRootCommand(
		cli.WithVersion(version),
		cli.WithHandlers(registerBuiltins),
	)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
