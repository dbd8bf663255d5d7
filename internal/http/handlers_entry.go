package http

import (
	"context"
	"log/slog"
	"net/http"

	"tesoro/internal/auth"
	"tesoro/internal/core"
	"tesoro/internal/services"
)

// parseEntryForm parses the single-entry form shared by deposits and
// withdrawals.
func parseEntryForm(r *http.Request) (services.EntryParams, *HTMXResponse) {
	amount, err := core.ParseAmountToCents(r.Form.Get("amount"))
	if err != nil {
		return services.EntryParams{}, UnprocessableEntityError("Invalid amount")
	}
	date, err := parseDateField(r.Form.Get("date"))
	if err != nil {
		return services.EntryParams{}, UnprocessableEntityError("Invalid date, expected YYYY-MM-DD")
	}
	quantity, err := parseQuantity(r.Form.Get("quantity"))
	if err != nil {
		return services.EntryParams{}, UnprocessableEntityError("Invalid quantity")
	}

	return services.EntryParams{
		Vault:       sanitizeInput(r.Form.Get("vault")),
		Amount:      core.Money{Cents: amount},
		Category:    sanitizeInput(r.Form.Get("category")),
		Description: sanitizeInput(r.Form.Get("description")),
		Quantity:    quantity,
		Unit:        sanitizeInput(r.Form.Get("unit")),
		Date:        date,
	}, nil
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleSingleEntry(w, r, "Deposit recorded", s.ledger.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleSingleEntry(w, r, "Withdrawal recorded", s.ledger.Withdraw)
}

func (s *Server) handleSingleEntry(w http.ResponseWriter, r *http.Request, successMsg string,
	apply func(ctx context.Context, userID int64, p services.EntryParams) (core.Transaction, error)) {
	if r.Method != http.MethodPost {
		MethodNotAllowedError("POST").Write(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	session, _ := auth.SessionFromContext(r.Context())
	params, errResp := parseEntryForm(r)
	if errResp != nil {
		errResp.Write(w)
		return
	}

	entry, err := apply(r.Context(), session.UserID, params)
	if err != nil {
		slog.WarnContext(r.Context(), "Entry rejected",
			"error", err, "vault", params.Vault, "amount_cents", params.Amount.Cents)
		ErrorResponse(errorStatus(err), err.Error()).Write(w)
		return
	}

	s.invalidateMonth(session.UserID, entry.Date.Year(), entry.Date.Month())
	SuccessResponse(successMsg+": "+entry.Description+" "+entry.Amount.Format()).
		TriggerEntryCreated(entry.Date.Year(), entry.Date.Month()).
		TriggerVaultsChanged().
		Write(w)
}

// parseTransferForm parses the form shared by transfers and loans.
func parseTransferForm(r *http.Request) (services.TransferParams, *HTMXResponse) {
	amount, err := core.ParseAmountToCents(r.Form.Get("amount"))
	if err != nil {
		return services.TransferParams{}, UnprocessableEntityError("Invalid amount")
	}
	date, err := parseDateField(r.Form.Get("date"))
	if err != nil {
		return services.TransferParams{}, UnprocessableEntityError("Invalid date, expected YYYY-MM-DD")
	}

	return services.TransferParams{
		FromVault:   sanitizeInput(r.Form.Get("from_vault")),
		ToUser:      sanitizeInput(r.Form.Get("to_user")),
		ToVault:     sanitizeInput(r.Form.Get("to_vault")),
		Amount:      core.Money{Cents: amount},
		Description: sanitizeInput(r.Form.Get("description")),
		Date:        date,
	}, nil
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowedError("POST").Write(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	session, _ := auth.SessionFromContext(r.Context())
	params, errResp := parseTransferForm(r)
	if errResp != nil {
		errResp.Write(w)
		return
	}

	user := core.User{ID: session.UserID, Username: session.Username}
	if err := s.ledger.Transfer(r.Context(), user, params); err != nil {
		slog.WarnContext(r.Context(), "Transfer rejected",
			"error", err, "from_vault", params.FromVault, "to_vault", params.ToVault)
		ErrorResponse(errorStatus(err), err.Error()).Write(w)
		return
	}

	year, month := entryYearMonth(params.Date)
	s.invalidateMonth(session.UserID, year, month)
	SuccessResponse("Transfer recorded: "+params.Amount.Format()).
		TriggerEntryCreated(year, month).
		TriggerVaultsChanged().
		Write(w)
}

func (s *Server) handleLoan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowedError("POST").Write(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	session, _ := auth.SessionFromContext(r.Context())
	params, errResp := parseTransferForm(r)
	if errResp != nil {
		errResp.Write(w)
		return
	}
	if params.ToUser == "" {
		UnprocessableEntityError("Loan recipient is required").Write(w)
		return
	}

	user := core.User{ID: session.UserID, Username: session.Username}
	if err := s.ledger.Loan(r.Context(), user, params); err != nil {
		slog.WarnContext(r.Context(), "Loan rejected",
			"error", err, "from_vault", params.FromVault, "to_user", params.ToUser)
		ErrorResponse(errorStatus(err), err.Error()).Write(w)
		return
	}

	year, month := entryYearMonth(params.Date)
	s.invalidateMonth(session.UserID, year, month)
	SuccessResponse("Loan recorded: "+params.Amount.Format()+" to "+core.CanonicalName(params.ToUser)).
		TriggerEntryCreated(year, month).
		TriggerVaultsChanged().
		TriggerLoansChanged().
		Write(w)
}
