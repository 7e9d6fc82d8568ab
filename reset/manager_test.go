package reset_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/deskauth/reset"
	"github.com/MrEthical07/deskauth/store/memory"
)

func newManager() (*reset.Manager, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := reset.NewManager(memory.New(), reset.DefaultTTL).WithClock(func() time.Time { return now })
	return m, &now
}

func TestSecondRequestSupersedesFirst(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	t1, err := m.RequestReset(ctx, "u1", "user@example.com", "10.0.0.1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if len(t1.Token) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(t1.Token))
	}
	t2, err := m.RequestReset(ctx, "u1", "user@example.com", "10.0.0.1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	row, rejection, err := m.Validate(ctx, t1.Token)
	if err != nil {
		t.Fatalf("validate t1: %v", err)
	}
	if row != nil || rejection != reset.RejectedUsed {
		t.Fatalf("expected t1 superseded, got %v %s", row, rejection)
	}

	row, rejection, err = m.Validate(ctx, t2.Token)
	if err != nil {
		t.Fatalf("validate t2: %v", err)
	}
	if row == nil || rejection != reset.Accepted || row.Email != "user@example.com" {
		t.Fatalf("expected t2 valid, got %v %s", row, rejection)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	issued, err := m.RequestReset(ctx, "u1", "user@example.com", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	calls := 0
	apply := func(context.Context, *reset.Token) error {
		calls++
		return nil
	}
	rejection, err := m.Consume(ctx, issued.Token, apply)
	if err != nil || rejection != reset.Accepted {
		t.Fatalf("first consume: %s %v", rejection, err)
	}
	rejection, err = m.Consume(ctx, issued.Token, apply)
	if err != nil || rejection != reset.RejectedUsed {
		t.Fatalf("second consume: %s %v", rejection, err)
	}
	if calls != 1 {
		t.Fatalf("apply ran %d times", calls)
	}
	if row, _, _ := m.Validate(ctx, issued.Token); row != nil {
		t.Fatalf("consumed token still validates")
	}
}

func TestFailedApplyLeavesTokenUsable(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	issued, err := m.RequestReset(ctx, "u1", "user@example.com", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	boom := errors.New("write failed")
	if _, err := m.Consume(ctx, issued.Token, func(context.Context, *reset.Token) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected apply error, got %v", err)
	}
	row, rejection, err := m.Validate(ctx, issued.Token)
	if err != nil || row == nil {
		t.Fatalf("token should survive a failed apply: %s %v", rejection, err)
	}
}

func TestValidateRejections(t *testing.T) {
	m, now := newManager()
	ctx := context.Background()

	if row, rejection, err := m.Validate(ctx, "missing"); err != nil || row != nil || rejection != reset.RejectedNotFound {
		t.Fatalf("expected not found, got %v %s %v", row, rejection, err)
	}

	issued, err := m.RequestReset(ctx, "u1", "user@example.com", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	*now = now.Add(reset.DefaultTTL)
	if row, rejection, err := m.Validate(ctx, issued.Token); err != nil || row != nil || rejection != reset.RejectedExpired {
		t.Fatalf("expected expired, got %v %s %v", row, rejection, err)
	}
}

func TestInvalidateAllForUser(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	if _, err := m.RequestReset(ctx, "u1", "a@example.com", ""); err != nil {
		t.Fatalf("request: %v", err)
	}
	other, err := m.RequestReset(ctx, "u2", "b@example.com", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	n, err := m.InvalidateAllForUser(ctx, "u1")
	if err != nil || n != 1 {
		t.Fatalf("invalidate: %d %v", n, err)
	}
	if row, _, _ := m.Validate(ctx, other.Token); row == nil {
		t.Fatalf("other user's token invalidated")
	}
}

func TestConcurrentRequestsLeaveOneLiveToken(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	const n = 16
	tokens := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			issued, err := m.RequestReset(ctx, "u1", "user@example.com", "")
			if err != nil {
				t.Errorf("request: %v", err)
				return
			}
			tokens[i] = issued.Token
		}()
	}
	wg.Wait()

	live := 0
	for _, tok := range tokens {
		if row, _, err := m.Validate(ctx, tok); err == nil && row != nil {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("expected one live token, got %d", live)
	}
}
