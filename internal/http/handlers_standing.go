package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"tesoro/internal/auth"
	"tesoro/internal/core"
)

func (s *Server) handleCreateStandingOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowedError("POST").Write(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	session, _ := auth.SessionFromContext(r.Context())

	vaultName := core.CanonicalName(sanitizeInput(r.Form.Get("vault")))
	vault, err := s.store.GetVault(r.Context(), session.UserID, vaultName)
	if err != nil {
		ErrorResponse(errorStatus(err), "Unknown vault: "+vaultName).Write(w)
		return
	}

	amount, err := core.ParseAmountToCents(r.Form.Get("amount"))
	if err != nil {
		UnprocessableEntityError("Invalid amount").Write(w)
		return
	}
	start, err := parseDateField(r.Form.Get("start_date"))
	if err != nil {
		UnprocessableEntityError("Invalid start date, expected YYYY-MM-DD").Write(w)
		return
	}
	end, err := parseDateField(r.Form.Get("end_date"))
	if err != nil {
		UnprocessableEntityError("Invalid end date, expected YYYY-MM-DD").Write(w)
		return
	}

	order := core.StandingOrder{
		VaultID:     vault.ID,
		Type:        core.TransactionType(strings.ToLower(sanitizeInput(r.Form.Get("type")))),
		Amount:      core.Money{Cents: amount},
		Category:    sanitizeInput(r.Form.Get("category")),
		Description: sanitizeInput(r.Form.Get("description")),
		Every:       core.Frequency(strings.ToLower(sanitizeInput(r.Form.Get("frequency")))),
		StartDate:   start,
		EndDate:     end,
	}
	if err := order.Validate(); err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	id, err := s.store.CreateStandingOrder(r.Context(), order)
	if err != nil {
		slog.ErrorContext(r.Context(), "Standing order create failed", "error", err)
		InternalServerError("Could not create the standing order").Write(w)
		return
	}

	slog.InfoContext(r.Context(), "Standing order created via web",
		"id", id, "vault", vaultName, "frequency", string(order.Every))
	SuccessResponse("Standing order created: "+order.Description).
		TriggerOrdersChanged().
		Write(w)
}

func (s *Server) handleToggleStandingOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowedError("POST").Write(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	session, _ := auth.SessionFromContext(r.Context())
	id, err := strconv.ParseInt(r.Form.Get("id"), 10, 64)
	if err != nil {
		BadRequestError("Invalid standing order id").Write(w)
		return
	}
	active := r.Form.Get("active") == "true"

	if err := s.store.SetStandingOrderActive(r.Context(), session.UserID, id, active); err != nil {
		slog.WarnContext(r.Context(), "Standing order toggle failed", "error", err, "id", id)
		ErrorResponse(http.StatusNotFound, "Standing order not found").Write(w)
		return
	}

	msg := "Standing order paused"
	if active {
		msg = "Standing order resumed"
	}
	SuccessResponse(msg).TriggerOrdersChanged().Write(w)
}

func (s *Server) handleStandingOrderList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	session, _ := auth.SessionFromContext(r.Context())

	orders, err := s.store.ListStandingOrders(r.Context(), session.UserID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Standing order list error", "error", err)
		_, _ = w.Write([]byte(`<section id="standing-orders"><div class="placeholder">Could not load standing orders</div></section>`))
		return
	}

	type row struct {
		ID          int64
		Vault       string
		Type        string
		Amount      string
		Description string
		Frequency   string
		LastRun     string
		Active      bool
	}
	data := struct{ Orders []row }{}
	for _, o := range orders {
		lastRun := "never"
		if !o.LastRun.IsZero() {
			lastRun = o.LastRun.Format("2006-01-02")
		}
		data.Orders = append(data.Orders, row{
			ID:          o.ID,
			Vault:       o.VaultName,
			Type:        string(o.Type),
			Amount:      o.Amount.Format(),
			Description: o.Description,
			Frequency:   string(o.Every),
			LastRun:     lastRun,
			Active:      o.Active,
		})
	}

	if err := s.templates.ExecuteTemplate(w, "standing_orders.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution error", "error", err, "template", "standing_orders.html")
	}
}
