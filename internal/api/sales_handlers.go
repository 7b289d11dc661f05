package api

import (
	"bytes"
	"fmt"
	"net/http"

	"spis/m/internal/database"
	"spis/m/internal/sales"
)

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req sales.CreateInput
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	receipt, err := h.sales.Create(r.Context(), req, identityFrom(r.Context()).UserID)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	h.log.Info(h.log.WithFields(r.Context(), map[string]any{
		"sale_id":        receipt.ID,
		"invoice_number": receipt.InvoiceNumber,
		"items":          len(req.Items),
	}), "sale.created")
	respondData(w, http.StatusCreated, receipt, "Sale created successfully")
}

func (h *Handler) saleFilter(r *http.Request) (sales.Filter, error) {
	var f sales.Filter
	var err error
	if f.StartDate, err = queryDate(r, queryKey(r, "start_date", "startDate")); err != nil {
		return f, err
	}
	if f.EndDate, err = queryDate(r, queryKey(r, "end_date", "endDate")); err != nil {
		return f, err
	}
	if f.UserID, err = queryID(r, "user_id"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit", sales.DefaultListLimit); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(r, "offset", 0); err != nil {
		return f, err
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.PaymentMethod = r.URL.Query().Get("payment_method")
	return f, nil
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	f, err := h.saleFilter(r)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	list, err := h.sales.List(r.Context(), f)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondList(w, list)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	sale, err := h.sales.Get(r.Context(), id)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	respondData(w, http.StatusOK, sale, "")
}

// exportSales renders the whole filtered history; errors surface before any CSV byte is written.
func (h *Handler) exportSales(w http.ResponseWriter, r *http.Request) {
	f, err := h.saleFilter(r)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	var buf bytes.Buffer
	n, err := h.sales.Export(r.Context(), f, &buf)
	if err != nil {
		respondError(r.Context(), h.log, w, err)
		return
	}
	h.log.Info(h.log.WithField(r.Context(), "rows", n), "sales.exported")

	name := fmt.Sprintf("sales-%s.csv", database.Now().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
