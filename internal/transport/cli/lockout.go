package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
)

type statusView struct {
	Identifier        string `json:"identifier"`
	Locked            bool   `json:"locked"`
	RemainingMinutes  int    `json:"remaining_minutes"`
	FailedAttempts    int    `json:"failed_attempts"`
	AttemptsRemaining int    `json:"attempts_remaining"`
}

func newStatusView(s domain.LockoutStatus) statusView {
	return statusView{
		Identifier:        s.Identifier,
		Locked:            s.Locked,
		RemainingMinutes:  s.RemainingMinutes,
		FailedAttempts:    s.FailedAttempts,
		AttemptsRemaining: s.AttemptsRemaining,
	}
}

type lockedView struct {
	Identifier       string `json:"identifier"`
	UserID           string `json:"user_id,omitempty"`
	Username         string `json:"username,omitempty"`
	Email            string `json:"email,omitempty"`
	RemainingMinutes int    `json:"remaining_minutes"`
	FailedAttempts   int    `json:"failed_attempts"`
}

func newLockedViews(accounts []domain.LockedAccount) []lockedView {
	out := make([]lockedView, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, lockedView{
			Identifier:       acc.Identifier,
			UserID:           acc.UserID,
			Username:         acc.Username,
			Email:            acc.Email,
			RemainingMinutes: acc.RemainingMinutes,
			FailedAttempts:   acc.FailedAttempts,
		})
	}
	return out
}

func newUnlockAccountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock-account <identifier>",
		Short: "Clear the lock and failure counter of a username or email",
		Long: `Clear the lock flag and failed-attempt counter of an identifier.

When the identifier resolves to a user, the user's username and email are
unlocked as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), func(rt *Runtime) error {
				before, err := rt.Lockout.ForceUnlock(cmd.Context(), args[0], a.actor)
				if err != nil {
					return fmt.Errorf("unlock %s: %w", args[0], err)
				}
				if a.output == outputJSON {
					return writeJSON(a.stdout, map[string]any{
						"identifier":      before.Identifier,
						"was_locked":      before.Locked,
						"failed_attempts": before.FailedAttempts,
						"unlocked":        true,
					})
				}
				if before.Locked {
					fmt.Fprintf(a.stdout, "Unlocked %s (%d failed attempts cleared)\n", before.Identifier, before.FailedAttempts)
				} else {
					fmt.Fprintf(a.stdout, "%s was not locked; failure counter cleared\n", before.Identifier)
				}
				return nil
			})
		},
	}
}

func newLockoutStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lockout-status <identifier>",
		Short: "Show the lock state of a username or email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), func(rt *Runtime) error {
				status, err := rt.Lockout.Inspect(cmd.Context(), args[0], a.actor)
				if err != nil {
					return fmt.Errorf("lockout status %s: %w", args[0], err)
				}
				if a.output == outputJSON {
					return writeJSON(a.stdout, newStatusView(status))
				}
				if status.Locked {
					fmt.Fprintf(a.stdout, "%s is LOCKED for %d more minute(s)\n", status.Identifier, status.RemainingMinutes)
				} else {
					fmt.Fprintf(a.stdout, "%s is not locked\n", status.Identifier)
				}
				fmt.Fprintf(a.stdout, "Failed attempts: %d\n", status.FailedAttempts)
				if !status.Locked {
					fmt.Fprintf(a.stdout, "Attempts remaining: %d\n", status.AttemptsRemaining)
				}
				return nil
			})
		},
	}
}

func newListLockedAccountsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list-locked-accounts",
		Short: "List every identifier that is currently locked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRuntime(cmd.Context(), func(rt *Runtime) error {
				accounts, err := rt.Lockout.ListLocked(cmd.Context(), a.actor)
				if err != nil {
					return fmt.Errorf("list locked accounts: %w", err)
				}
				if a.output == outputJSON {
					return writeJSON(a.stdout, map[string]any{"accounts": newLockedViews(accounts), "count": len(accounts)})
				}
				if len(accounts) == 0 {
					fmt.Fprintln(a.stdout, "No locked accounts")
					return nil
				}
				return writeLockedTable(a.stdout, accounts)
			})
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the account tables when they are missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRuntime(cmd.Context(), func(rt *Runtime) error {
				if rt.Migrate == nil {
					return fmt.Errorf("migrations are not available")
				}
				if err := rt.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				fmt.Fprintln(a.stdout, "Schema is up to date")
				return nil
			})
		},
	}
}

func writeLockedTable(w io.Writer, accounts []domain.LockedAccount) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTIFIER\tUSERNAME\tEMAIL\tFAILED\tMINUTES LEFT")
	for _, acc := range accounts {
		username, email := acc.Username, acc.Email
		if username == "" {
			username = "-"
		}
		if email == "" {
			email = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", acc.Identifier, username, email, acc.FailedAttempts, acc.RemainingMinutes)
	}
	fmt.Fprintf(tw, "\nTotal locked: %d\n", len(accounts))
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
