package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/middleware"
)

// identity is only called behind Guard.
func identity(r *http.Request) *deskauth.Identity {
	id, _ := middleware.IdentityFromContext(r.Context())
	return id
}

type sessionView struct {
	FamilyID   string    `json:"id"`
	DeviceInfo string    `json:"deviceInfo"`
	IPAddress  string    `json:"ipAddress"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.auth.ListSessions(r.Context(), identity(r).UserID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	err := h.auth.RevokeSession(r.Context(), identity(r).UserID, mux.Vars(r)["familyID"])
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type codeRequest struct {
	Code string `json:"code"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type backupCodesResponse struct {
	BackupCodes []string `json:"backupCodes"`
}

func (h *Handler) setupTOTP(w http.ResponseWriter, r *http.Request) {
	setup, err := h.auth.SetupTOTP(r.Context(), identity(r).UserID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setup)
}

func (h *Handler) verifyTOTP(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	codes, err := h.auth.VerifyTOTPSetup(r.Context(), identity(r).UserID, req.Code)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, backupCodesResponse{BackupCodes: codes})
}

func (h *Handler) disableTOTP(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.auth.DisableTOTP(r.Context(), identity(r).UserID, req.Password); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) regenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decode(w, r, &req) {
		return
	}
	codes, err := h.auth.RegenerateBackupCodes(r.Context(), identity(r).UserID, req.Password)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, backupCodesResponse{BackupCodes: codes})
}
