package deskauth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	internalmetrics "github.com/MrEthical07/deskauth/internal/metrics"
)

const (
	maxUsernameLength = 64
	maxPasswordLength = 72 // bcrypt ignores input past 72 bytes
)

// Register creates an active account with the configured default role and
// returns its summary. It does not log the user in.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*UserSummary, error) {
	const op = "deskauth.Register"

	if err := e.ready(); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength || strings.ContainsAny(username, " \t\r\n") {
		return nil, ErrInvalidInput
	}
	if _, err := mail.ParseAddress(email); err != nil || strings.Contains(email, "<") {
		return nil, ErrInvalidInput
	}
	if err := e.checkPasswordPolicy(req.Password); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, e.internal(ctx, op, err)
	}

	now := e.now().UTC()
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Role:         e.config.Account.DefaultRole,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metrics.Inc(internalmetrics.RegisterDuplicate)
			e.emitAudit(ctx, auditEventRegister, false, "", ErrAccountExists, nil)
			return nil, ErrAccountExists
		}
		return nil, e.internal(ctx, op, err)
	}

	e.metrics.Inc(internalmetrics.RegisterSuccess)
	e.emitAudit(ctx, auditEventRegister, true, u.ID, nil, nil)
	summary := u.Summary()
	return &summary, nil
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	if utf8.RuneCountInString(pw) < e.config.Password.MinLength || len(pw) > maxPasswordLength {
		return ErrWeakPassword
	}
	return nil
}
