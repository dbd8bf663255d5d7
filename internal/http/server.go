// Package http serves the web UI: session-guarded forms over the ledger
// with htmx-refreshed dashboard partials.
package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"tesoro/internal/auth"
	"tesoro/internal/backend"
	"tesoro/internal/cache"
	"tesoro/internal/core"
	"tesoro/internal/middleware/ratelimit"
	"tesoro/internal/middleware/security"
	"tesoro/internal/middleware/trace"
	"tesoro/internal/services"
	"tesoro/internal/storage"
	appweb "tesoro/web"
)

const partialTimeout = 7 * time.Second

type Server struct {
	http.Server
	store     backend.Store
	ledger    *services.LedgerService
	bulk      *services.BulkService
	auth      *auth.Service
	templates *template.Template

	tracer   *trace.Middleware
	limiter  *ratelimit.Limiter
	headers  *security.HeadersMiddleware
	detector *security.Detector

	summaryCache *cache.LRUCache[core.MonthSummary]
	ledgerCache  *cache.LRUCache[[]storage.LedgerEntry]
	caches       *cache.Manager

	shutdownOnce sync.Once
}

// NewServer wires routes, templates and the middleware chain, returning a
// ready-to-run server.
func NewServer(addr string, store backend.Store, ledger *services.LedgerService, bulk *services.BulkService, authSvc *auth.Service) *Server {
	mux := http.NewServeMux()

	detector := security.NewDetector()
	s := &Server{
		store:  store,
		ledger: ledger,
		bulk:   bulk,
		auth:   authSvc,

		tracer:   trace.NewMiddleware(detector.ClientIP),
		limiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		headers:  security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		detector: detector,

		summaryCache: cache.NewLRUCache[core.MonthSummary](100, 5*time.Minute),
		ledgerCache:  cache.NewLRUCache[[]storage.LedgerEntry](200, 5*time.Minute),
		caches:       cache.NewManager(),
	}

	s.caches.Register(s.summaryCache)
	s.caches.Register(s.ledgerCache)
	s.caches.Register(authSvc.Sessions())
	s.caches.StartCleanup(10 * time.Minute)

	funcs := template.FuncMap{
		"iterate": func(n int) []int {
			out := make([]int, n)
			for i := range out {
				out[i] = i
			}
			return out
		},
		"add": func(a, b int) int { return a + b },
	}
	t, err := template.New("").Funcs(funcs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/signup", s.handleSignup)

	// Everything below requires a session.
	protected := map[string]http.HandlerFunc{
		"/":                       s.handleIndex,
		"/logout":                 s.handleLogout,
		"/vaults":                 s.handleCreateVault,
		"/vaults/delete":          s.handleDeleteVault,
		"/deposits":               s.handleDeposit,
		"/withdrawals":            s.handleWithdraw,
		"/transfers":              s.handleTransfer,
		"/loans":                  s.handleLoan,
		"/bulk":                   s.handleBulk,
		"/standing-orders":        s.handleCreateStandingOrder,
		"/standing-orders/toggle": s.handleToggleStandingOrder,
		"/ui/month-summary":       s.handleMonthSummary,
		"/ui/vaults":              s.handleVaultList,
		"/ui/loans":               s.handleLoanOverview,
		"/ui/standing-orders":     s.handleStandingOrderList,
		"/export.csv":             s.handleExportCSV,
	}
	for path, h := range protected {
		mux.Handle(path, authSvc.Middleware(h))
	}

	handler := s.tracer.Middleware(
		s.headers.Middleware(
			s.limiter.Middleware(s.detector.ClientIP)(mux)))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Shutdown stops the background cache cleanup before draining the HTTP
// server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusServiceUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if _, _, err := s.store.Taxonomy(ctx); err != nil {
		slog.ErrorContext(ctx, "Readiness taxonomy check failed", "error", err)
		http.Error(w, "storage not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// --- cached reads ---

func summaryKey(userID int64, year, month int) string {
	return strconv.FormatInt(userID, 10) + "-" + strconv.Itoa(year) + "-" + strconv.Itoa(month)
}

func (s *Server) invalidateMonth(userID int64, year, month int) {
	key := summaryKey(userID, year, month)
	s.summaryCache.Delete(key)
	s.ledgerCache.Delete(key)
}

func (s *Server) getSummary(ctx context.Context, userID int64, year, month int) (core.MonthSummary, error) {
	key := summaryKey(userID, year, month)
	if data, found := s.summaryCache.Get(key); found {
		slog.DebugContext(ctx, "Summary cache hit", "year", year, "month", month)
		return data, nil
	}

	cctx, cancel := context.WithTimeout(ctx, partialTimeout)
	defer cancel()
	data, err := s.store.ReadMonthSummary(cctx, userID, year, month)
	if err != nil {
		return core.MonthSummary{}, fmt.Errorf("read month summary (year=%d, month=%d): %w", year, month, err)
	}
	s.summaryCache.Set(key, data)
	return data, nil
}

func (s *Server) getMonthLedger(ctx context.Context, userID int64, year, month int) ([]storage.LedgerEntry, error) {
	key := summaryKey(userID, year, month)
	if items, found := s.ledgerCache.Get(key); found {
		result := make([]storage.LedgerEntry, len(items))
		copy(result, items)
		return result, nil
	}

	cctx, cancel := context.WithTimeout(ctx, partialTimeout)
	defer cancel()
	items, err := s.store.ListLedger(cctx, userID, year, month)
	if err != nil {
		return nil, fmt.Errorf("list month ledger (year=%d, month=%d): %w", year, month, err)
	}
	s.ledgerCache.Set(key, items)
	return items, nil
}
