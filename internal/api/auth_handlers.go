package api

import (
	"net/http"

	"spis/m/internal/apperr"
	"spis/m/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func clientInfo(r *http.Request) auth.Client {
	return auth.Client{UserAgent: r.UserAgent(), IP: clientIP(r)}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	h.log.Info(h.log.WithUserID(r.Context(), user.ID), "auth.registered")
	respondData(w, http.StatusCreated, user, "User registered successfully")
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	pair, err := h.auth.Login(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusOK, pair, "Login successful")
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken, clientInfo(r))
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusOK, pair, "")
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	if err := h.auth.Logout(r.Context(), id.TokenID); err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusOK, nil, "Logged out")
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	user, err := h.auth.Profile(r.Context(), id.UserID)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			err = apperr.New(apperr.CodeUnauthorized, "account no longer exists")
		}
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusOK, user, "")
}
