package refresh_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/deskauth/refresh"
	"github.com/MrEthical07/deskauth/store/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newManager(t *testing.T) (*refresh.Manager, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return refresh.NewManager(memory.New(), refresh.WithClock(c.Now), refresh.WithTTL(time.Hour)), c
}

func TestIssueReturnsLongHexToken(t *testing.T) {
	m, _ := newManager(t)
	issued, err := m.Issue(context.Background(), "u1", "firefox", "10.0.0.1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(issued.Token) != 128 {
		t.Fatalf("expected 128 hex chars, got %d", len(issued.Token))
	}
	if issued.FamilyID == "" {
		t.Fatalf("expected family id")
	}
}

func TestRotateThenReuseRevokesFamily(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	first, err := m.Issue(ctx, "u1", "firefox", "10.0.0.1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	out, err := m.ValidateAndRotate(ctx, first.Token, "", "")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if out.Rotation == nil || out.Failure != refresh.FailureNone {
		t.Fatalf("expected rotation, got %+v", out)
	}
	if out.Rotation.Token == first.Token {
		t.Fatalf("rotation must produce a new token")
	}
	if out.Rotation.FamilyID != first.FamilyID || out.Rotation.UserID != "u1" {
		t.Fatalf("rotation left the family: %+v", out.Rotation)
	}

	replay, err := m.ValidateAndRotate(ctx, first.Token, "", "")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.Failure != refresh.FailureReuse || replay.Rotation != nil {
		t.Fatalf("expected reuse failure, got %+v", replay)
	}
	if replay.FamilyRevoked != 1 {
		t.Fatalf("expected the live head to be revoked, got %d", replay.FamilyRevoked)
	}

	// The legitimate holder's token died with the family.
	after, err := m.ValidateAndRotate(ctx, out.Rotation.Token, "", "")
	if err != nil {
		t.Fatalf("rotate head: %v", err)
	}
	if after.Rotation != nil {
		t.Fatalf("expected revoked head to be rejected")
	}
}

func TestValidateRejectsUnknownAndExpired(t *testing.T) {
	m, c := newManager(t)
	ctx := context.Background()

	for _, tok := range []string{"", "deadbeef"} {
		out, err := m.ValidateAndRotate(ctx, tok, "", "")
		if err != nil {
			t.Fatalf("validate %q: %v", tok, err)
		}
		if out.Failure != refresh.FailureNotFound {
			t.Fatalf("expected not found for %q, got %s", tok, out.Failure)
		}
	}

	issued, err := m.Issue(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c.Advance(time.Hour)
	out, err := m.ValidateAndRotate(ctx, issued.Token, "", "")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if out.Failure != refresh.FailureExpired {
		t.Fatalf("expected expired, got %s", out.Failure)
	}
}

func TestConcurrentRotationHasOneWinner(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	issued, err := m.Issue(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := m.ValidateAndRotate(ctx, issued.Token, "", "")
			if err != nil {
				t.Errorf("rotate: %v", err)
				return
			}
			if out.Rotation != nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", winners)
	}
}

func TestSessionsAndBulkRevocation(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	a, err := m.Issue(ctx, "u1", "laptop", "10.0.0.1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Issue(ctx, "u1", "phone", "10.0.0.2"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Issue(ctx, "u2", "phone", "10.0.0.3"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	sessions, err := m.ListSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	if n, err := m.EndSession(ctx, a.Token, "u2", refresh.ReasonLogout); err != nil || n != 0 {
		t.Fatalf("foreign end session revoked %d (err %v)", n, err)
	}
	if n, err := m.EndSession(ctx, a.Token, "u1", refresh.ReasonLogout); err != nil || n != 1 {
		t.Fatalf("end session revoked %d (err %v)", n, err)
	}

	n, err := m.RevokeAllForUser(ctx, "u1", refresh.ReasonLogoutAll)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 remaining token revoked, got %d", n)
	}
	sessions, err = m.ListSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}

	other, err := m.ListSessions(ctx, "u2")
	if err != nil || len(other) != 1 {
		t.Fatalf("other user's sessions touched: %d (err %v)", len(other), err)
	}
}
