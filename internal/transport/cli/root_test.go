package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/usecase"
)

type fakeLockout struct {
	status   domain.LockoutStatus
	accounts []domain.LockedAccount
	err      error

	actors   []string
	unlocked []string
}

func (f *fakeLockout) ForceUnlock(_ context.Context, identifier, actor string) (domain.LockoutStatus, error) {
	f.actors = append(f.actors, actor)
	f.unlocked = append(f.unlocked, identifier)
	return f.status, f.err
}

func (f *fakeLockout) Inspect(_ context.Context, _ string, actor string) (domain.LockoutStatus, error) {
	f.actors = append(f.actors, actor)
	return f.status, f.err
}

func (f *fakeLockout) ListLocked(_ context.Context, actor string) ([]domain.LockedAccount, error) {
	f.actors = append(f.actors, actor)
	return f.accounts, f.err
}

func run(t *testing.T, lockout *fakeLockout, args ...string) (string, error) {
	t.Helper()
	closed := false
	open := func(context.Context) (*Runtime, error) {
		return &Runtime{Lockout: lockout, Close: func() { closed = true }}, nil
	}
	var out, errOut bytes.Buffer
	cmd := NewRootCommandWithIO(open, &out, &errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	if err == nil && !closed {
		t.Fatal("runtime was not closed")
	}
	return out.String(), err
}

func TestUnlockAccount(t *testing.T) {
	lockout := &fakeLockout{status: domain.LockoutStatus{Identifier: "alice", Locked: true, FailedAttempts: 5}}

	out, err := run(t, lockout, "unlock-account", "Alice", "--actor", "registrar")
	require.NoError(t, err)
	require.Contains(t, out, "Unlocked alice (5 failed attempts cleared)")
	require.Equal(t, []string{"Alice"}, lockout.unlocked)
	require.Equal(t, []string{"registrar"}, lockout.actors)
}

func TestUnlockAccountNotLocked(t *testing.T) {
	lockout := &fakeLockout{status: domain.LockoutStatus{Identifier: "bob"}}

	out, err := run(t, lockout, "unlock-account", "bob")
	require.NoError(t, err)
	require.Contains(t, out, "bob was not locked")
}

func TestUnlockAccountRequiresIdentifier(t *testing.T) {
	_, err := run(t, &fakeLockout{}, "unlock-account")
	require.Error(t, err)
}

func TestLockoutStatusText(t *testing.T) {
	lockout := &fakeLockout{status: domain.LockoutStatus{Identifier: "alice", Locked: true, RemainingMinutes: 12, FailedAttempts: 5}}

	out, err := run(t, lockout, "lockout-status", "alice")
	require.NoError(t, err)
	require.Contains(t, out, "alice is LOCKED for 12 more minute(s)")
	require.Contains(t, out, "Failed attempts: 5")
	require.NotContains(t, out, "Attempts remaining")
}

func TestLockoutStatusJSON(t *testing.T) {
	lockout := &fakeLockout{status: domain.LockoutStatus{Identifier: "carol", FailedAttempts: 2, AttemptsRemaining: 3}}

	out, err := run(t, lockout, "lockout-status", "carol", "-o", "json")
	require.NoError(t, err)

	var view statusView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Equal(t, statusView{Identifier: "carol", FailedAttempts: 2, AttemptsRemaining: 3}, view)
}

func TestListLockedAccountsTable(t *testing.T) {
	lockout := &fakeLockout{accounts: []domain.LockedAccount{
		{Identifier: "alice", UserID: "u1", Username: "alice", Email: "alice@example.edu", RemainingMinutes: 30, FailedAttempts: 5},
		{Identifier: "ghost", RemainingMinutes: 7, FailedAttempts: 6},
	}}

	out, err := run(t, lockout, "list-locked-accounts")
	require.NoError(t, err)
	require.Contains(t, out, "IDENTIFIER")
	require.Contains(t, out, "alice@example.edu")
	require.Contains(t, out, "Total locked: 2")

	lines := strings.Split(out, "\n")
	var ghost string
	for _, line := range lines {
		if strings.HasPrefix(line, "ghost") {
			ghost = line
		}
	}
	require.Contains(t, ghost, "-")
}

func TestListLockedAccountsEmpty(t *testing.T) {
	out, err := run(t, &fakeLockout{}, "list-locked-accounts")
	require.NoError(t, err)
	require.Equal(t, "No locked accounts\n", out)
}

func TestCommandSurfacesServiceErrors(t *testing.T) {
	lockout := &fakeLockout{err: usecase.ErrTransientFailure}

	_, err := run(t, lockout, "list-locked-accounts")
	require.ErrorIs(t, err, usecase.ErrTransientFailure)
}

func TestRejectsUnknownOutput(t *testing.T) {
	_, err := run(t, &fakeLockout{}, "list-locked-accounts", "-o", "yaml")
	require.ErrorContains(t, err, "unsupported output")
}

func TestDefaultActorFromEnvironment(t *testing.T) {
	t.Setenv("USER", "ops")
	lockout := &fakeLockout{}

	_, err := run(t, lockout, "lockout-status", "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"cli:ops"}, lockout.actors)
}

func TestMigrate(t *testing.T) {
	migrated := false
	open := func(context.Context) (*Runtime, error) {
		return &Runtime{Migrate: func(context.Context) error {
			migrated = true
			return nil
		}}, nil
	}
	var out bytes.Buffer
	cmd := NewRootCommandWithIO(open, &out, &bytes.Buffer{})
	cmd.SetArgs([]string{"migrate"})
	require.NoError(t, cmd.Execute())
	require.True(t, migrated)
	require.Equal(t, "Schema is up to date\n", out.String())
}

func TestOpenFailure(t *testing.T) {
	open := func(context.Context) (*Runtime, error) { return nil, errors.New("redis down") }
	cmd := NewRootCommandWithIO(open, &bytes.Buffer{}, &bytes.Buffer{})
	cmd.SetArgs([]string{"list-locked-accounts"})
	require.ErrorContains(t, cmd.Execute(), "redis down")
}
