package api

import (
	"net/http"

	"spis/m/internal/suppliers"
)

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	list, err := h.suppliers.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondList(w, list)
}

func (h *Handler) getSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	s, err := h.suppliers.Get(r.Context(), id)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusOK, s, "")
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var req suppliers.Input
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	s, err := h.suppliers.Create(r.Context(), req)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusCreated, s, "Supplier created successfully")
}

func (h *Handler) updateSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	var req suppliers.UpdateInput
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	s, err := h.suppliers.Update(r.Context(), id, req)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusOK, s, "Supplier updated successfully")
}

func (h *Handler) deleteSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	if err := h.suppliers.Delete(r.Context(), id); err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusOK, nil, "Supplier deleted successfully")
}
