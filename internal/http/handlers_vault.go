package http

import (
	"log/slog"
	"net/http"
	"time"

	"tesoro/internal/auth"
	"tesoro/internal/core"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "path", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	session, _ := auth.SessionFromContext(r.Context())
	now := time.Now()

	categories, units, err := s.store.Taxonomy(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Taxonomy list error", "error", err)
	}
	vaults, err := s.store.ListVaults(r.Context(), session.UserID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Vault list error", "error", err)
	}

	data := struct {
		Username   string
		Today      string
		Year       int
		Month      int
		Vaults     []core.Vault
		Categories []string
		Units      []string
	}{
		Username:   session.Username,
		Today:      now.Format("2006-01-02"),
		Year:       now.Year(),
		Month:      int(now.Month()),
		Vaults:     vaults,
		Categories: categories,
		Units:      units,
	}

	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Index template execution failed", "error", err, "template", "index.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleCreateVault(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowedError("POST").Write(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	session, _ := auth.SessionFromContext(r.Context())
	name := core.CanonicalName(sanitizeInput(r.Form.Get("name")))
	if name == "" {
		UnprocessableEntityError("Vault name is required").Write(w)
		return
	}

	vault, err := s.store.CreateVault(r.Context(), session.UserID, name)
	if err != nil {
		slog.WarnContext(r.Context(), "Vault create failed", "error", err, "vault", name)
		ErrorResponse(errorStatus(err), "Could not create vault: "+err.Error()).Write(w)
		return
	}

	s.invalidateUserSummaries(session.UserID)
	SuccessResponse("Vault created: "+vault.Name).
		TriggerVaultsChanged().
		Write(w)
}

func (s *Server) handleDeleteVault(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		MethodNotAllowedError("POST, DELETE").Write(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	session, _ := auth.SessionFromContext(r.Context())
	name := core.CanonicalName(sanitizeInput(r.Form.Get("name")))

	if err := s.store.DeleteVault(r.Context(), session.UserID, name); err != nil {
		slog.WarnContext(r.Context(), "Vault delete failed", "error", err, "vault", name)
		ErrorResponse(errorStatus(err), "Could not remove vault: "+err.Error()).Write(w)
		return
	}

	s.invalidateUserSummaries(session.UserID)
	SuccessResponse("Vault removed: "+name).
		TriggerVaultsChanged().
		TriggerOrdersChanged().
		Write(w)
}

func (s *Server) handleVaultList(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	vaults, err := s.store.ListVaults(r.Context(), session.UserID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Vault list error", "error", err)
		InternalServerError("Could not load vaults").Write(w)
		return
	}

	type row struct {
		Name    string
		Balance string
		IsMain  bool
	}
	data := struct{ Vaults []row }{}
	for _, v := range vaults {
		data.Vaults = append(data.Vaults, row{
			Name:    v.Name,
			Balance: v.Balance.Format(),
			IsMain:  v.Name == core.DefaultVaultName,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "vaults.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution error", "error", err, "template", "vaults.html")
	}
}

// invalidateUserSummaries drops the user's current-month cache entries.
// Balance changes show up in every month's vault panel, but the current
// month is what the dashboard displays.
func (s *Server) invalidateUserSummaries(userID int64) {
	now := time.Now()
	s.invalidateMonth(userID, now.Year(), int(now.Month()))
}
