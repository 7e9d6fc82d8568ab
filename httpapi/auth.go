package httpapi

import (
	"net/http"

	"github.com/MrEthical07/deskauth"
)

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	TOTPCode   string `json:"totpCode,omitempty"`
	DeviceInfo string `json:"deviceInfo,omitempty"`
}

type loginResponse struct {
	RequiresTwoFactor bool `json:"requires2FA,omitempty"`
	*deskauth.TokenPair
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	res, err := h.auth.Login(r.Context(), deskauth.LoginRequest{
		Username:   req.Username,
		Password:   req.Password,
		TOTPCode:   req.TOTPCode,
		DeviceInfo: req.DeviceInfo,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if res.RequiresTwoFactor {
		writeJSON(w, http.StatusOK, loginResponse{RequiresTwoFactor: true})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{TokenPair: res.Tokens})
}

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := h.auth.Register(r.Context(), deskauth.RegisterRequest(req))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceInfo   string `json:"deviceInfo,omitempty"`
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh token is required")
		return
	}
	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken, req.DeviceInfo, "")
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
	AllDevices   bool   `json:"allDevices,omitempty"`
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	id := identity(r)

	var req logoutRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	err := h.auth.Logout(r.Context(), deskauth.LogoutRequest{
		JTI:          id.JTI,
		UserID:       id.UserID,
		ExpiresAt:    id.ExpiresAt,
		RefreshToken: req.RefreshToken,
		AllDevices:   req.AllDevices,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(r.Context(), identity(r).UserID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
