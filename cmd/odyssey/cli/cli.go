// Package cli implements the operational subcommands of the odyssey binary.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"
)

var nowUTC = func() time.Time { return time.Now().UTC() }

// Env carries the lazily built dependencies of the subcommands, so that
// `jobs` never opens a database connection.
type Env struct {
	Jobs   func() (*JobsCLI, error)
	Users  func(ctx context.Context) (*UsersCLI, func(), error)
	Stdout io.Writer
	Stderr io.Writer
}

// IsCommand reports whether name is a subcommand handled by Run.
func IsCommand(name string) bool {
	return name == "jobs" || name == "users"
}

// Run executes args, which start with the subcommand name, and returns the
// process exit code.
func Run(ctx context.Context, args []string, env Env) int {
	if len(args) < 2 {
		usage(env.Stderr)
		return 2
	}
	switch args[0] + " " + args[1] {
	case "jobs trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		fs.SetOutput(env.Stderr)
		jsonOut := fs.Bool("json", false, "print the enqueued task as JSON")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		c, err := env.Jobs()
		if err != nil {
			_, _ = fmt.Fprintf(env.Stderr, "jobs: %v\n", err)
			return 1
		}
		defer c.Close()
		return c.TriggerCommand(ctx, JobsTriggerOptions{
			Name:       fs.Arg(0),
			JSONOutput: *jsonOut,
			Stdout:     env.Stdout,
			Stderr:     env.Stderr,
		})
	case "jobs stats":
		c, err := env.Jobs()
		if err != nil {
			_, _ = fmt.Fprintf(env.Stderr, "jobs: %v\n", err)
			return 1
		}
		defer c.Close()
		return c.StatsCommand(ctx, env.Stdout, env.Stderr)
	case "users create":
		fs := flag.NewFlagSet("users create", flag.ContinueOnError)
		fs.SetOutput(env.Stderr)
		opts := UsersCreateOptions{Stdout: env.Stdout, Stderr: env.Stderr}
		fs.StringVar(&opts.Email, "email", "", "login email")
		fs.StringVar(&opts.Name, "name", "", "display name")
		fs.StringVar(&opts.Password, "password", "", "initial password (min 8 characters)")
		fs.StringVar(&opts.Role, "role", "staff", "admin, staff or viewer")
		fs.BoolVar(&opts.JSONOutput, "json", false, "print the created user as JSON")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		c, cleanup, err := env.Users(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(env.Stderr, "users: %v\n", err)
			return 1
		}
		defer cleanup()
		return c.CreateCommand(ctx, opts)
	}
	usage(env.Stderr)
	return 2
}

func usage(w io.Writer) {
	_, _ = fmt.Fprint(w, `usage:
  odyssey                          start the HTTP server
  odyssey jobs trigger [--json] <balances:overdue_sweep|balances:reconcile>
  odyssey jobs stats
  odyssey users create --email E --name N --password P [--role admin|staff|viewer] [--json]
`)
}
