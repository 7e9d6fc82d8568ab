package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/internal/config"
	"github.com/MrEthical07/deskauth/password"
)

// ensureAdmin creates the bootstrap admin if it does not exist yet.
func ensureAdmin(ctx context.Context, users deskauth.UserStore, cfg *config.Config, log *slog.Logger) error {
	const op = "main.ensureAdmin"

	b := cfg.Bootstrap
	if b.AdminUsername == "" {
		return nil
	}
	if b.AdminPassword == "" {
		return fmt.Errorf("%s: admin password is required", op)
	}

	_, err := users.FindActiveUserByUsername(ctx, b.AdminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, deskauth.ErrUserNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}

	hash, err := password.NewBcrypt(cfg.Auth.BcryptCost).Hash(b.AdminPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	email := b.AdminEmail
	if email == "" {
		email = b.AdminUsername + "@localhost"
	}

	now := time.Now().UTC()
	err = users.CreateUser(ctx, &deskauth.User{
		ID:           uuid.NewString(),
		Username:     b.AdminUsername,
		Email:        email,
		Role:         "admin",
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if errors.Is(err, deskauth.ErrAccountExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("bootstrap admin created", slog.String("username", b.AdminUsername))
	return nil
}
