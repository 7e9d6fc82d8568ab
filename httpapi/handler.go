// Package httpapi serves the deskauth engine as JSON over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/middleware"
)

// Auth is the engine surface the handlers call. *deskauth.Engine satisfies it.
type Auth interface {
	Authenticate(ctx context.Context, token string) (*deskauth.Identity, error)
	Login(ctx context.Context, req deskauth.LoginRequest) (*deskauth.LoginResult, error)
	Register(ctx context.Context, req deskauth.RegisterRequest) (*deskauth.UserSummary, error)
	Refresh(ctx context.Context, refreshToken, deviceInfo, ipAddress string) (*deskauth.TokenPair, error)
	Logout(ctx context.Context, req deskauth.LogoutRequest) error
	RequestPasswordReset(ctx context.Context, email string) error
	VerifyResetToken(ctx context.Context, token string) (*deskauth.ResetTokenInfo, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	Me(ctx context.Context, userID string) (*deskauth.UserSummary, error)
	ListSessions(ctx context.Context, userID string) ([]deskauth.Session, error)
	RevokeSession(ctx context.Context, userID, familyID string) error
	SetupTOTP(ctx context.Context, userID string) (*deskauth.TOTPSetup, error)
	VerifyTOTPSetup(ctx context.Context, userID, code string) ([]string, error)
	DisableTOTP(ctx context.Context, userID, password string) error
	RegenerateBackupCodes(ctx context.Context, userID, password string) ([]string, error)
}

// Options tunes a Handler.
type Options struct {
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
	Logger     *slog.Logger
}

// Handler owns the /auth routes.
type Handler struct {
	auth Auth
	opts Options
	log  *slog.Logger
}

func New(auth Auth, opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Handler{auth: auth, opts: opts, log: log.With(slog.String("component", "httpapi"))}
}

// RegisterRoutes mounts every /auth route on router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	guard := middleware.Guard(h.auth)
	protected := func(fn http.HandlerFunc) http.Handler { return guard(fn) }

	r := router.PathPrefix("/auth").Subrouter()
	r.Use(mux.MiddlewareFunc(middleware.ClientInfo(h.opts.TrustProxy)))

	r.HandleFunc("/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)
	r.HandleFunc("/password/forgot", h.forgotPassword).Methods(http.MethodPost)
	r.HandleFunc("/password/reset/{token}", h.verifyResetToken).Methods(http.MethodGet)
	r.HandleFunc("/password/reset", h.resetPassword).Methods(http.MethodPost)

	r.Handle("/logout", protected(h.logout)).Methods(http.MethodPost)
	r.Handle("/me", protected(h.me)).Methods(http.MethodGet)
	r.Handle("/sessions", protected(h.listSessions)).Methods(http.MethodGet)
	r.Handle("/sessions/{familyID}", protected(h.revokeSession)).Methods(http.MethodDelete)
	r.Handle("/2fa/setup", protected(h.setupTOTP)).Methods(http.MethodPost)
	r.Handle("/2fa/verify", protected(h.verifyTOTP)).Methods(http.MethodPost)
	r.Handle("/2fa/disable", protected(h.disableTOTP)).Methods(http.MethodPost)
	r.Handle("/2fa/backup-codes", protected(h.regenerateBackupCodes)).Methods(http.MethodPost)
}

// Router returns a fresh router with every route mounted.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return router
}
