package api

import (
	"net/http"

	"spis/m/domain"
	"spis/m/internal/apperr"
	"spis/m/internal/users"
)

// resetPasswordRequest takes the new password as either "password" or "new_password".
type resetPasswordRequest struct {
	Password    string `json:"password"`
	NewPassword string `json:"new_password"`
}

func (req resetPasswordRequest) value() string {
	if req.Password != "" {
		return req.Password
	}
	return req.NewPassword
}

// selfOrAdmin reports whether the caller may act on the account id.
func selfOrAdmin(r *http.Request, id int64) bool {
	caller := identityFrom(r.Context())
	return caller != nil && (caller.Role == domain.RoleAdmin || caller.UserID == id)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	active, err := queryBool(r, "is_active")
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	q := r.URL.Query()
	list, err := h.users.List(r.Context(), users.ListFilter{
		Role:   q.Get("role"),
		Active: active,
		Search: q.Get("search"),
	})
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondList(w, list)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req users.CreateInput
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	u, err := h.users.Create(r.Context(), req)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusCreated, u, "User created successfully")
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	if !selfOrAdmin(r, id) {
		respondError(r.Context(), h.log, w, apperr.New(apperr.CodeForbidden, "insufficient permissions"))
		return
	}
	u, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusOK, u, "")
}

// updateUser lets admins change any allowed field; everyone else may only edit their own
// name and phone.
func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	if !selfOrAdmin(r, id) {
		respondError(r.Context(), h.log, w, apperr.New(apperr.CodeForbidden, "insufficient permissions"))
		return
	}
	var req users.UpdateInput
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	caller := identityFrom(r.Context())
	if req.Role != nil || req.IsActive != nil {
		if caller.Role != domain.RoleAdmin {
			respondError(r.Context(), h.log, w, apperr.New(apperr.CodeForbidden, "only admins may change role or status"))
			return
		}
		if caller.UserID == id {
			respondError(r.Context(), h.log, w, apperr.New(apperr.CodeValidation, "cannot change your own role or status"))
			return
		}
	}
	u, err := h.users.Update(r.Context(), id, req)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusOK, u, "User updated successfully")
}

func (h *Handler) toggleUserStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	if identityFrom(r.Context()).UserID == id {
		respondError(r.Context(), h.log, w, apperr.New(apperr.CodeValidation, "cannot change your own status"))
		return
	}
	u, err := h.users.ToggleStatus(r.Context(), id)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	msg := "User deactivated successfully"
	if u.IsActive {
		msg = "User activated successfully"
	}
	respondData(w, http.StatusOK, u, msg)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	if !selfOrAdmin(r, id) {
		respondError(r.Context(), h.log, w, apperr.New(apperr.CodeForbidden, "insufficient permissions"))
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	password := req.value()
	if password == "" {
		respondError(r.Context(), h.log, w, apperr.New(apperr.CodeValidation, "validation failed").
			WithDetails(map[string]string{"password": "is required"}))
		return
	}
	if err := h.users.ResetPassword(r.Context(), id, password); err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusOK, nil, "Password reset successfully")
}
