package http

import (
	"errors"
	"log/slog"
	"net/http"

	"tesoro/internal/auth"
	"tesoro/internal/core"
)

type authPage struct {
	Error    string
	Username string
}

func (s *Server) renderAuthPage(w http.ResponseWriter, r *http.Request, name string, data authPage) {
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution failed", "error", err, "template", name)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.renderAuthPage(w, r, "login.html", authPage{})
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderAuthPage(w, r, "login.html", authPage{Error: "Invalid request format"})
		return
	}

	username := sanitizeInput(r.Form.Get("username"))
	session, err := s.auth.LogIn(r.Context(), username, r.Form.Get("password"))
	if err != nil {
		msg := "Login failed"
		switch {
		case errors.Is(err, core.ErrUnknownUser):
			msg = "Unknown username"
		case errors.Is(err, core.ErrWrongPassword):
			msg = "Wrong password"
		default:
			slog.ErrorContext(r.Context(), "Login error", "error", err, "username", username)
		}
		w.WriteHeader(http.StatusUnauthorized)
		s.renderAuthPage(w, r, "login.html", authPage{Error: msg, Username: username})
		return
	}

	s.auth.SetCookie(w, session)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.renderAuthPage(w, r, "signup.html", authPage{})
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderAuthPage(w, r, "signup.html", authPage{Error: "Invalid request format"})
		return
	}

	username := sanitizeInput(r.Form.Get("username"))
	session, err := s.auth.SignUp(r.Context(), username,
		r.Form.Get("password"), r.Form.Get("confirm"))
	if err != nil {
		msg := "Signup failed"
		switch {
		case errors.Is(err, core.ErrUserExists):
			msg = "Username already taken"
		case errors.Is(err, core.ErrPasswordMismatch):
			msg = "Passwords must match"
		case errors.Is(err, core.ErrEmptyUsername), errors.Is(err, auth.ErrEmptyPassword):
			msg = "Username and password are required"
		default:
			slog.ErrorContext(r.Context(), "Signup error", "error", err, "username", username)
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		s.renderAuthPage(w, r, "signup.html", authPage{Error: msg, Username: username})
		return
	}

	s.auth.SetCookie(w, session)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		s.auth.LogOut(cookie.Value)
	}
	auth.ClearCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
