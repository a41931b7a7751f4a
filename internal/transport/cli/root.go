package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// LockoutAdmin is the operator side of the lockout service.
type LockoutAdmin interface {
	ForceUnlock(ctx context.Context, identifier, actor string) (domain.LockoutStatus, error)
	Inspect(ctx context.Context, identifier, actor string) (domain.LockoutStatus, error)
	ListLocked(ctx context.Context, actor string) ([]domain.LockedAccount, error)
}

// Runtime is what a command needs once connections are open.
type Runtime struct {
	Lockout LockoutAdmin
	// Migrate creates the database schema when it is missing.
	Migrate func(ctx context.Context) error
	Close   func()
}

// Opener connects the backing stores. It runs once per command invocation.
type Opener func(ctx context.Context) (*Runtime, error)

type app struct {
	open   Opener
	stdout io.Writer
	stderr io.Writer
	actor  string
	output string
}

// NewRootCommand builds authctl writing to the process streams.
func NewRootCommand(open Opener) *cobra.Command {
	return NewRootCommandWithIO(open, os.Stdout, os.Stderr)
}

// NewRootCommandWithIO builds authctl with explicit output streams.
func NewRootCommandWithIO(open Opener, out, errOut io.Writer) *cobra.Command {
	a := &app{open: open, stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:           "authctl",
		Short:         "Operate the alumni authentication core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch a.output {
			case outputText, outputJSON:
			default:
				return fmt.Errorf("unsupported output %q (use %s or %s)", a.output, outputText, outputJSON)
			}
			if strings.TrimSpace(a.actor) == "" {
				a.actor = defaultActor()
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&a.actor, "actor", "", "operator name recorded in the audit log (defaults to $USER)")
	cmd.PersistentFlags().StringVarP(&a.output, "output", "o", outputText, "output format: text or json")

	cmd.AddCommand(
		newUnlockAccountCmd(a),
		newLockoutStatusCmd(a),
		newListLockedAccountsCmd(a),
		newMigrateCmd(a),
	)
	cmd.SetErrPrefix("authctl: ")
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd
}

// withRuntime opens the runtime for the duration of fn.
func (a *app) withRuntime(ctx context.Context, fn func(*Runtime) error) error {
	if a.open == nil {
		return fmt.Errorf("no backend configured")
	}
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	if rt.Close != nil {
		defer rt.Close()
	}
	return fn(rt)
}

func defaultActor() string {
	if user := strings.TrimSpace(os.Getenv("USER")); user != "" {
		return "cli:" + user
	}
	return "cli"
}
