package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
)

func TestCodeServiceIssueVerifyOnce(t *testing.T) {
	h := newHarness(t)
	h.random.codes = []string{"482913"}
	ctx := context.Background()

	code, err := h.deps.Codes.Issue(ctx, "A@X.edu", domain.CodePurposeSignup)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if code != "482913" {
		t.Fatalf("unexpected code %q", code)
	}

	result, err := h.deps.Codes.Verify(ctx, "a@x.edu", domain.CodePurposeSignup, code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Outcome != domain.CodeOK {
		t.Fatalf("expected ok, got %s", result.Outcome)
	}

	again, err := h.deps.Codes.Verify(ctx, "a@x.edu", domain.CodePurposeSignup, code)
	if err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if again.Outcome != domain.CodeExpired {
		t.Fatalf("expected expired on reuse, got %s", again.Outcome)
	}
}

func TestCodeServiceExhaustsAfterMaxAttempts(t *testing.T) {
	h := newHarness(t)
	h.random.codes = []string{"482913"}
	ctx := context.Background()

	if _, err := h.deps.Codes.Issue(ctx, "a@x.edu", domain.CodePurposeSignup); err != nil {
		t.Fatalf("issue: %v", err)
	}

	expected := []domain.CodeVerification{
		{Outcome: domain.CodeInvalid, RemainingAttempts: 2},
		{Outcome: domain.CodeInvalid, RemainingAttempts: 1},
		{Outcome: domain.CodeExhausted},
		{Outcome: domain.CodeExpired},
	}
	for i, want := range expected {
		got, err := h.deps.Codes.Verify(ctx, "a@x.edu", domain.CodePurposeSignup, "000000")
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if got != want {
			t.Fatalf("attempt %d: expected %+v, got %+v", i+1, want, got)
		}
	}

	got, err := h.deps.Codes.Verify(ctx, "a@x.edu", domain.CodePurposeSignup, "482913")
	if err != nil {
		t.Fatalf("verify after exhaustion: %v", err)
	}
	if got.Outcome != domain.CodeExpired {
		t.Fatalf("correct code after exhaustion must read as expired, got %s", got.Outcome)
	}
}

func TestCodeServiceMalformedCodeUsesAttempt(t *testing.T) {
	h := newHarness(t)
	h.random.codes = []string{"482913"}
	ctx := context.Background()

	if _, err := h.deps.Codes.Issue(ctx, "a@x.edu", domain.CodePurposePasswordReset); err != nil {
		t.Fatalf("issue: %v", err)
	}

	for i, submitted := range []string{"48291", "48291x"} {
		got, err := h.deps.Codes.Verify(ctx, "a@x.edu", domain.CodePurposePasswordReset, submitted)
		if err != nil {
			t.Fatalf("verify %q: %v", submitted, err)
		}
		if got.Outcome != domain.CodeInvalid || got.RemainingAttempts != 2-i {
			t.Fatalf("verify %q: unexpected %+v", submitted, got)
		}
	}
}

func TestCodeServiceExpiresFromIssueTime(t *testing.T) {
	h := newHarness(t)
	h.random.codes = []string{"482913"}
	ctx := context.Background()

	if _, err := h.deps.Codes.Issue(ctx, "a@x.edu", domain.CodePurposeSignup); err != nil {
		t.Fatalf("issue: %v", err)
	}

	h.clock.Advance(10 * time.Minute)
	if got, _ := h.deps.Codes.Verify(ctx, "a@x.edu", domain.CodePurposeSignup, "111111"); got.Outcome != domain.CodeInvalid {
		t.Fatalf("expected invalid inside ttl, got %s", got.Outcome)
	}

	h.clock.Advance(5 * time.Minute)
	got, err := h.deps.Codes.Verify(ctx, "a@x.edu", domain.CodePurposeSignup, "482913")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Outcome != domain.CodeExpired {
		t.Fatalf("expected expired at issue+ttl, got %s", got.Outcome)
	}
}

func TestCodeServiceReissueResetsAttempts(t *testing.T) {
	h := newHarness(t)
	h.random.codes = []string{"111111", "222222"}
	ctx := context.Background()

	if _, err := h.deps.Codes.Issue(ctx, "a@x.edu", domain.CodePurposeSignup); err != nil {
		t.Fatalf("issue: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := h.deps.Codes.Verify(ctx, "a@x.edu", domain.CodePurposeSignup, "999999"); err != nil {
			t.Fatalf("verify: %v", err)
		}
	}

	if _, err := h.deps.Codes.Issue(ctx, "a@x.edu", domain.CodePurposeSignup); err != nil {
		t.Fatalf("reissue: %v", err)
	}
	got, err := h.deps.Codes.Verify(ctx, "a@x.edu", domain.CodePurposeSignup, "111111")
	if err != nil {
		t.Fatalf("verify old code: %v", err)
	}
	if got.Outcome != domain.CodeInvalid || got.RemainingAttempts != 2 {
		t.Fatalf("expected fresh attempt budget, got %+v", got)
	}

	got, err = h.deps.Codes.Verify(ctx, "a@x.edu", domain.CodePurposeSignup, "222222")
	if err != nil {
		t.Fatalf("verify new code: %v", err)
	}
	if got.Outcome != domain.CodeOK {
		t.Fatalf("expected ok, got %s", got.Outcome)
	}
}

func TestCodeServicePurposesAreIsolated(t *testing.T) {
	h := newHarness(t)
	h.random.codes = []string{"111111"}
	ctx := context.Background()

	if _, err := h.deps.Codes.Issue(ctx, "a@x.edu", domain.CodePurposeSignup); err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := h.deps.Codes.Verify(ctx, "a@x.edu", domain.CodePurposePasswordReset, "111111")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Outcome != domain.CodeExpired {
		t.Fatalf("expected expired for other purpose, got %s", got.Outcome)
	}
}

func TestCodeServiceFailsClosedOnStoreError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.deps.Codes.Issue(ctx, "a@x.edu", domain.CodePurposeSignup); err != nil {
		t.Fatalf("issue: %v", err)
	}
	h.store.err = errors.New("connection refused")

	_, err := h.deps.Codes.Verify(ctx, "a@x.edu", domain.CodePurposeSignup, "123456")
	if !errors.Is(err, ErrTransientFailure) {
		t.Fatalf("expected transient failure, got %v", err)
	}
	if _, err := h.deps.Codes.Issue(ctx, "a@x.edu", domain.CodePurposeSignup); !errors.Is(err, ErrTransientFailure) {
		t.Fatalf("expected transient failure on issue, got %v", err)
	}
}

func TestCodeServiceRejectsUnknownPurpose(t *testing.T) {
	h := newHarness(t)
	_, err := h.deps.Codes.Issue(context.Background(), "a@x.edu", domain.CodePurpose("bogus"))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
