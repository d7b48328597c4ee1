package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestLedger(store *memStore, sender *mockSender, clock *testClock, opts ...OTPLedgerOption) *OTPLedger {
	opts = append([]OTPLedgerOption{WithOTPClock(clock.Now)}, opts...)
	return NewOTPLedger(zap.NewNop(), store, sender, opts...)
}

func TestGenerateOTP_FormatAndHash(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, hash, err := generateOTP()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !isValidOTPCode(code) {
			t.Fatalf("code %q is not 6 ascii digits", code)
		}
		if !verifyOTP(code, hash) {
			t.Fatalf("hash does not verify its own code")
		}
		if hash == code {
			t.Fatalf("code stored in clear")
		}
	}
}

func TestIsValidOTPCode(t *testing.T) {
	cases := map[string]bool{
		"007421":  true,
		"000000":  true,
		"12345":   false,
		"1234567": false,
		"12a456":  false,
		"１２３４５６": false,
	}
	for code, want := range cases {
		if got := isValidOTPCode(code); got != want {
			t.Fatalf("isValidOTPCode(%q) = %v, want %v", code, got, want)
		}
	}
}

func TestOTPLedger_LeadingZerosSurvive(t *testing.T) {
	store := newMemStore()
	sender := newMockSender()
	clock := &testClock{now: time.Now()}
	ledger := newTestLedger(store, sender, clock)
	ledger.generator = func() (string, string, error) {
		return "007421", "salt:" + hashOTP("salt", "007421"), nil
	}

	code, err := ledger.Issue(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if code != "007421" || sender.lastCode("a@b.com") != "007421" {
		t.Fatalf("expected zero-padded code, got %q", code)
	}
	if err := ledger.Verify(context.Background(), "a@b.com", "007421"); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestOTPLedger_IssueReplacesPrevious(t *testing.T) {
	store := newMemStore()
	sender := newMockSender()
	clock := &testClock{now: time.Now()}
	ledger := newTestLedger(store, sender, clock)
	ctx := context.Background()

	first, err := ledger.Issue(ctx, " A@B.com ")
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	second, err := ledger.Resend(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if got := store.otpCount("a@b.com"); got != 1 {
		t.Fatalf("expected exactly one live entry, got %d", got)
	}
	if first != second {
		if err := ledger.Verify(ctx, "a@b.com", first); !errors.Is(err, ErrOTPMismatch) {
			t.Fatalf("expected first code to be invalidated, got %v", err)
		}
	}
	if err := ledger.Verify(ctx, "a@b.com", second); err != nil {
		t.Fatalf("verify second: %v", err)
	}
}

func TestOTPLedger_VerifyOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("never issued", func(t *testing.T) {
		ledger := newTestLedger(newMemStore(), newMockSender(), &testClock{now: time.Now()})
		if err := ledger.Verify(ctx, "a@b.com", "123456"); !errors.Is(err, ErrOTPNotFound) {
			t.Fatalf("expected ErrOTPNotFound, got %v", err)
		}
	})

	t.Run("single use", func(t *testing.T) {
		store := newMemStore()
		sender := newMockSender()
		ledger := newTestLedger(store, sender, &testClock{now: time.Now()})
		code, err := ledger.Issue(ctx, "a@b.com")
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if err := ledger.Verify(ctx, "a@b.com", code); err != nil {
			t.Fatalf("verify: %v", err)
		}
		if store.otpCount("a@b.com") != 0 {
			t.Fatalf("expected entry to be deleted")
		}
		if err := ledger.Verify(ctx, "a@b.com", code); !errors.Is(err, ErrOTPNotFound) {
			t.Fatalf("expected ErrOTPNotFound on reuse, got %v", err)
		}
	})

	t.Run("expired at the boundary", func(t *testing.T) {
		clock := &testClock{now: time.Now()}
		ledger := newTestLedger(newMemStore(), newMockSender(), clock)
		code, err := ledger.Issue(ctx, "a@b.com")
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		clock.now = clock.now.Add(DefaultOTPTTL)
		if err := ledger.Verify(ctx, "a@b.com", code); !errors.Is(err, ErrOTPExpired) {
			t.Fatalf("expected ErrOTPExpired, got %v", err)
		}
	})

	t.Run("mismatch keeps entry", func(t *testing.T) {
		store := newMemStore()
		ledger := newTestLedger(store, newMockSender(), &testClock{now: time.Now()})
		code, err := ledger.Issue(ctx, "a@b.com")
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		wrong := "000000"
		if code == wrong {
			wrong = "111111"
		}
		if err := ledger.Verify(ctx, "a@b.com", wrong); !errors.Is(err, ErrOTPMismatch) {
			t.Fatalf("expected ErrOTPMismatch, got %v", err)
		}
		if store.otpCount("a@b.com") != 1 {
			t.Fatalf("a wrong guess must not consume the entry")
		}
	})
}

func TestOTPLedger_IssueFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing email", func(t *testing.T) {
		ledger := newTestLedger(newMemStore(), newMockSender(), &testClock{now: time.Now()})
		if _, err := ledger.Resend(ctx, "   "); !errors.Is(err, ErrMissingEmail) {
			t.Fatalf("expected ErrMissingEmail, got %v", err)
		}
	})

	t.Run("sender failure", func(t *testing.T) {
		sender := newMockSender()
		sender.err = errBoom
		store := newMemStore()
		ledger := newTestLedger(store, sender, &testClock{now: time.Now()})
		if _, err := ledger.Issue(ctx, "a@b.com"); !errors.Is(err, ErrEmailSendFailure) {
			t.Fatalf("expected ErrEmailSendFailure, got %v", err)
		}
		if n := store.otpCount("a@b.com"); n != 0 {
			t.Fatalf("undelivered code must not stay live, got %d entries", n)
		}
		if err := ledger.Verify(ctx, "a@b.com", "000000"); !errors.Is(err, ErrOTPNotFound) {
			t.Fatalf("expected ErrOTPNotFound after failed delivery, got %v", err)
		}

		sender.err = nil
		code, err := ledger.Resend(ctx, "a@b.com")
		if err != nil {
			t.Fatalf("resend after failed delivery: %v", err)
		}
		if err := ledger.Verify(ctx, "a@b.com", code); err != nil {
			t.Fatalf("verify resent code: %v", err)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		ledger := newTestLedger(newMemStore(), newMockSender(), &testClock{now: time.Now()},
			WithOTPRateLimiter(NewOTPRateLimiter(time.Minute, 1)))
		if _, err := ledger.Issue(ctx, "a@b.com"); err != nil {
			t.Fatalf("first issue: %v", err)
		}
		if _, err := ledger.Resend(ctx, "a@b.com"); !errors.Is(err, ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
	})
}

func TestOTPLedger_CustomTTL(t *testing.T) {
	store := newMemStore()
	clock := &testClock{now: time.Now()}
	ledger := newTestLedger(store, newMockSender(), clock, WithOTPTTL(time.Minute))
	if _, err := ledger.Issue(context.Background(), "a@b.com"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	entry, err := store.Latest(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got := entry.ExpiresAt.Sub(entry.CreatedAt); got != time.Minute {
		t.Fatalf("expected 1m ttl, got %v", got)
	}
}
