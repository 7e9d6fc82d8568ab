package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/deskauth/internal/config"
	"github.com/MrEthical07/deskauth/store/memory"
)

func TestEnsureAdminIsIdempotent(t *testing.T) {
	store := memory.New()
	cfg := &config.Config{}
	cfg.Bootstrap.AdminUsername = "admin"
	cfg.Bootstrap.AdminPassword = "admin123"
	cfg.Auth.BcryptCost = 4
	log := slog.New(slog.DiscardHandler)

	for i := 0; i < 2; i++ {
		if err := ensureAdmin(context.Background(), store, cfg, log); err != nil {
			t.Fatalf("ensureAdmin #%d: %v", i, err)
		}
	}

	u, err := store.FindActiveUserByUsername(context.Background(), "admin")
	if err != nil {
		t.Fatalf("admin not created: %v", err)
	}
	if u.Role != "admin" || u.Email != "admin@localhost" {
		t.Fatalf("admin = %+v", u)
	}
}

func TestEnsureAdminRequiresPassword(t *testing.T) {
	cfg := &config.Config{}
	cfg.Bootstrap.AdminUsername = "admin"
	if err := ensureAdmin(context.Background(), memory.New(), cfg, slog.New(slog.DiscardHandler)); err == nil {
		t.Fatal("expected error without password")
	}
}

func TestLogMailerHidesToken(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	_ = newLogMailer(log, false).SendPasswordReset(context.Background(), "a@example.com", "secret-token", time.Now())
	if strings.Contains(buf.String(), "secret-token") {
		t.Fatalf("token leaked: %s", buf.String())
	}

	buf.Reset()
	_ = newLogMailer(log, true).SendPasswordReset(context.Background(), "a@example.com", "secret-token", time.Now())
	if !strings.Contains(buf.String(), "secret-token") {
		t.Fatalf("token missing in local mode: %s", buf.String())
	}
}
