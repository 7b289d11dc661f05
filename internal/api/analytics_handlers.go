package api

import (
	"net/http"
)

const recentSalesLimit = 10

func (h *Handler) dailySales(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 0)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	out, err := h.analytics.DailySales(r.Context(), days)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondList(w, out)
}

func (h *Handler) topMedicines(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	out, err := h.analytics.TopMedicines(r.Context(), limit)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondList(w, out)
}

func (h *Handler) categoryStock(w http.ResponseWriter, r *http.Request) {
	out, err := h.analytics.CategoryStock(r.Context())
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondList(w, out)
}

func (h *Handler) recentSales(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", recentSalesLimit)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	out, err := h.sales.Recent(r.Context(), limit)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondList(w, out)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	out, err := h.analytics.Summary(r.Context())
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusOK, out, "")
}

func (h *Handler) expiryRisk(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 0)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	out, err := h.analytics.ExpiryRisk(r.Context(), days)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondList(w, out)
}
