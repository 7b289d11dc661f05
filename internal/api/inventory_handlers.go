package api

import (
	"net/http"

	"spis/m/internal/inventory"
)

type restockRequest struct {
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) listMedicines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lowStock, err := queryBool(r, queryKey(r, "low_stock", "lowStock"))
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	supplierID, err := queryID(r, "supplier_id")
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}

	list, err := h.inventory.List(r.Context(), inventory.ListFilter{
		Category:   q.Get("category"),
		Search:     q.Get("search"),
		LowStock:   lowStock != nil && *lowStock,
		SupplierID: supplierID,
		Sort:       q.Get("sort"),
		Order:      q.Get("order"),
	})
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondList(w, list)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	list, err := h.inventory.LowStock(r.Context())
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondList(w, list)
}

func (h *Handler) expiringSoon(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 0)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	days = inventory.ClampExpiryWindow(days, h.cfg.App.ExpiringWindowDays)
	list, err := h.inventory.ExpiringSoon(r.Context(), days)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondList(w, list)
}

func (h *Handler) getMedicine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	med, err := h.inventory.Get(r.Context(), id)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusOK, med, "")
}

func (h *Handler) medicineLogs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	logs, err := h.inventory.Logs(r.Context(), id)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondList(w, logs)
}

func (h *Handler) createMedicine(w http.ResponseWriter, r *http.Request) {
	var req inventory.CreateInput
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	med, err := h.inventory.Create(r.Context(), req, identityFrom(r.Context()).UserID)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusCreated, med, "Medicine added successfully")
}

func (h *Handler) updateMedicine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	var req inventory.UpdateInput
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	med, err := h.inventory.Update(r.Context(), id, req, identityFrom(r.Context()).UserID)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusOK, med, "Medicine updated successfully")
}

func (h *Handler) restockMedicine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	var req restockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	med, err := h.inventory.Restock(r.Context(), id, req.Quantity, identityFrom(r.Context()).UserID)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusOK, med, "Stock updated successfully")
}

func (h *Handler) deleteMedicine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	if err := h.inventory.Delete(r.Context(), id); err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusOK, nil, "Medicine deleted successfully")
}
