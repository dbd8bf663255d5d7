package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"tesoro/internal/auth"
	"tesoro/internal/backend"
	"tesoro/internal/services"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := backend.NewMemoryStore()
	ledger := services.NewLedgerService(store, nil)
	bulk := services.NewBulkService(store, nil)
	authSvc := auth.NewService(store, time.Hour)

	srv := NewServer("127.0.0.1:0", store, ledger, bulk, authSvc)
	if srv.templates == nil {
		t.Fatal("templates failed to parse")
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func signup(t *testing.T, srv *Server, username string) *http.Cookie {
	t.Helper()
	rec := postForm(srv, nil, "/signup", url.Values{
		"username": {username},
		"password": {"correct horse"},
		"confirm":  {"correct horse"},
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("signup status = %d, want %d (body: %s)", rec.Code, http.StatusSeeOther, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookie {
			return c
		}
	}
	t.Fatal("signup did not set a session cookie")
	return nil
}

func postForm(srv *Server, cookie *http.Cookie, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func get(srv *Server, cookie *http.Cookie, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestDashboardRequiresSession(t *testing.T) {
	srv := newTestServer(t)

	rec := get(srv, nil, "/")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want /login", loc)
	}
}

func TestSignupThenDashboard(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	rec := get(srv, cookie, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Alice") {
		t.Error("dashboard does not show the username")
	}
	if !strings.Contains(body, `value="Main"`) {
		t.Error("dashboard does not offer the Main vault")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	srv := newTestServer(t)
	signup(t, srv, "alice")

	rec := postForm(srv, nil, "/login", url.Values{
		"username": {"alice"},
		"password": {"not it"},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(rec.Body.String(), "Wrong password") {
		t.Error("response does not name the failure")
	}
}

func TestLoginUnknownUser(t *testing.T) {
	srv := newTestServer(t)

	rec := postForm(srv, nil, "/login", url.Values{
		"username": {"nobody"},
		"password": {"whatever"},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	rec := postForm(srv, cookie, "/logout", nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("logout status = %d, want %d", rec.Code, http.StatusSeeOther)
	}

	rec = get(srv, cookie, "/")
	if rec.Code != http.StatusSeeOther {
		t.Errorf("after logout status = %d, want redirect to login", rec.Code)
	}
}

func TestDepositShowsUpInVaultPanel(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	rec := postForm(srv, cookie, "/deposits", url.Values{
		"vault":       {"Main"},
		"amount":      {"120,50"},
		"category":    {"Salary"},
		"description": {"august pay"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("HX-Trigger"), "vaults:changed") {
		t.Error("deposit did not trigger a vault refresh")
	}

	rec = get(srv, cookie, "/ui/vaults")
	if rec.Code != http.StatusOK {
		t.Fatalf("vault panel status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "€120,50") {
		t.Errorf("vault panel does not show the new balance: %s", rec.Body.String())
	}
}

func TestWithdrawOverdraftRejected(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	rec := postForm(srv, cookie, "/withdrawals", url.Values{
		"vault":       {"Main"},
		"amount":      {"10,00"},
		"category":    {"Groceries"},
		"description": {"bread"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	if !strings.Contains(rec.Body.String(), "insufficient funds") {
		t.Errorf("body = %s, want insufficient funds", rec.Body.String())
	}
}

func TestDepositInvalidAmount(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	rec := postForm(srv, cookie, "/deposits", url.Values{
		"vault":       {"Main"},
		"amount":      {"abc"},
		"category":    {"Salary"},
		"description": {"nope"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

func TestTransferBetweenOwnVaults(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	if rec := postForm(srv, cookie, "/vaults", url.Values{"name": {"savings"}}); rec.Code != http.StatusOK {
		t.Fatalf("create vault status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	if rec := postForm(srv, cookie, "/deposits", url.Values{
		"vault": {"Main"}, "amount": {"500"}, "category": {"Salary"}, "description": {"pay"},
	}); rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d", rec.Code)
	}

	rec := postForm(srv, cookie, "/transfers", url.Values{
		"from_vault": {"Main"},
		"to_vault":   {"Savings"},
		"amount":     {"200"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("transfer status = %d (body: %s)", rec.Code, rec.Body.String())
	}

	body := get(srv, cookie, "/ui/vaults").Body.String()
	if !strings.Contains(body, "€300,00") || !strings.Contains(body, "€200,00") {
		t.Errorf("vault panel after transfer = %s", body)
	}
}

func TestTransferToSameVaultRejected(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	rec := postForm(srv, cookie, "/transfers", url.Values{
		"from_vault": {"Main"},
		"to_vault":   {"Main"},
		"amount":     {"10"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

func TestLoanToNewCounterparty(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	if rec := postForm(srv, cookie, "/deposits", url.Values{
		"vault": {"Main"}, "amount": {"100"}, "category": {"Salary"}, "description": {"pay"},
	}); rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d", rec.Code)
	}

	rec := postForm(srv, cookie, "/loans", url.Values{
		"from_vault": {"Main"},
		"to_user":    {"bob"},
		"to_vault":   {"Main"},
		"amount":     {"40"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("loan status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("HX-Trigger"), "loans:changed") {
		t.Error("loan did not trigger a loans refresh")
	}

	body := get(srv, cookie, "/ui/loans").Body.String()
	if !strings.Contains(body, "Bob") || !strings.Contains(body, "€40,00") {
		t.Errorf("loan panel = %s", body)
	}
}

func TestLoanRequiresRecipient(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	rec := postForm(srv, cookie, "/loans", url.Values{
		"from_vault": {"Main"},
		"to_vault":   {"Main"},
		"amount":     {"40"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

func TestDeleteMainVaultRejected(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	rec := postForm(srv, cookie, "/vaults/delete", url.Values{"name": {"Main"}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

func TestDuplicateVaultRejected(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	rec := postForm(srv, cookie, "/vaults", url.Values{"name": {"main"}})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusConflict, rec.Body.String())
	}
}

func TestMonthSummaryPartial(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	for _, form := range []url.Values{
		{"vault": {"Main"}, "amount": {"2000"}, "category": {"Salary"}, "description": {"pay"}},
	} {
		if rec := postForm(srv, cookie, "/deposits", form); rec.Code != http.StatusOK {
			t.Fatalf("deposit status = %d", rec.Code)
		}
	}
	if rec := postForm(srv, cookie, "/withdrawals", url.Values{
		"vault": {"Main"}, "amount": {"75,50"}, "category": {"Groceries"}, "description": {"weekly shop"},
	}); rec.Code != http.StatusOK {
		t.Fatalf("withdrawal status = %d", rec.Code)
	}

	rec := get(srv, cookie, "/ui/month-summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "€1924,50") {
		t.Errorf("summary net missing: %s", body)
	}
	if !strings.Contains(body, "Groceries") {
		t.Errorf("summary category breakdown missing: %s", body)
	}
	if !strings.Contains(body, "weekly shop") {
		t.Errorf("summary entries missing: %s", body)
	}
}

func TestMonthSummaryCacheInvalidation(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	// Prime the cache on an empty month, then write an entry.
	if rec := get(srv, cookie, "/ui/month-summary"); rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rec.Code)
	}
	if rec := postForm(srv, cookie, "/deposits", url.Values{
		"vault": {"Main"}, "amount": {"10"}, "category": {"Salary"}, "description": {"tip"},
	}); rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d", rec.Code)
	}

	body := get(srv, cookie, "/ui/month-summary").Body.String()
	if !strings.Contains(body, "€10,00") {
		t.Errorf("summary still serves the stale cached month: %s", body)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	srv := newTestServer(t)
	alice := signup(t, srv, "alice")
	bob := signup(t, srv, "bob")

	if rec := postForm(srv, alice, "/deposits", url.Values{
		"vault": {"Main"}, "amount": {"999"}, "category": {"Salary"}, "description": {"pay"},
	}); rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d", rec.Code)
	}

	body := get(srv, bob, "/ui/vaults").Body.String()
	if strings.Contains(body, "€999,00") {
		t.Error("another user's balance leaked into the vault panel")
	}
}

func TestBulkValidateReportsRowErrors(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	rec := postForm(srv, cookie, "/bulk", url.Values{
		"action":        {"validate"},
		"type[]":        {"deposit", "withdraw"},
		"vault[]":       {"Main", "Main"},
		"amount[]":      {"50", ""},
		"category[]":    {"Salary", "Groceries"},
		"description[]": {"pay", "shop"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusUnprocessableEntity, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Row 2") {
		t.Errorf("body does not point at the failing row: %s", rec.Body.String())
	}
}

func TestBulkProcessRecordsAllRows(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	rec := postForm(srv, cookie, "/bulk", url.Values{
		"type[]":        {"deposit", "withdraw"},
		"vault[]":       {"Main", "Main"},
		"amount[]":      {"100", "30"},
		"category[]":    {"Salary", "Groceries"},
		"description[]": {"pay", "shop"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", rec.Code, rec.Body.String())
	}

	body := get(srv, cookie, "/ui/vaults").Body.String()
	if !strings.Contains(body, "€70,00") {
		t.Errorf("vault panel after bulk = %s", body)
	}
}

func TestDepositUnknownCategoryRejected(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	rec := postForm(srv, cookie, "/deposits", url.Values{
		"vault": {"Main"}, "amount": {"10"},
		"category": {"Nonexistent Category"}, "description": {"sneaky"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (body: %s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "unknown category") {
		t.Errorf("body = %s", rec.Body.String())
	}

	// The vault panel stays untouched.
	body := get(srv, cookie, "/ui/vaults").Body.String()
	if strings.Contains(body, "€10,00") {
		t.Errorf("rejected deposit changed the balance: %s", body)
	}
}

func TestBulkAcceptsLowercaseVaultNames(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	rec := postForm(srv, cookie, "/bulk", url.Values{
		"type[]":        {"deposit"},
		"vault[]":       {"main"},
		"amount[]":      {"10"},
		"category[]":    {"Salary"},
		"description[]": {"pay"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", rec.Code, rec.Body.String())
	}

	body := get(srv, cookie, "/ui/vaults").Body.String()
	if !strings.Contains(body, "€10,00") {
		t.Errorf("vault panel after bulk = %s", body)
	}
}

func TestBulkInvalidatesBackdatedMonth(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	// Prime the cache for an empty past month, then apply a batch dated
	// inside it.
	if rec := get(srv, cookie, "/ui/month-summary?year=2026&month=5"); rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rec.Code)
	}

	rec := postForm(srv, cookie, "/bulk", url.Values{
		"type[]":        {"deposit"},
		"vault[]":       {"Main"},
		"amount[]":      {"42"},
		"category[]":    {"Salary"},
		"description[]": {"back pay"},
		"date[]":        {"2026-05-10"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("bulk status = %d (body: %s)", rec.Code, rec.Body.String())
	}

	body := get(srv, cookie, "/ui/month-summary?year=2026&month=5").Body.String()
	if !strings.Contains(body, "€42,00") {
		t.Errorf("backdated month still serves the stale cache: %s", body)
	}
}

func TestStandingOrderLifecycle(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	rec := postForm(srv, cookie, "/standing-orders", url.Values{
		"vault":       {"Main"},
		"type":        {"withdraw"},
		"amount":      {"9,99"},
		"category":    {"Leisure"},
		"description": {"streaming"},
		"frequency":   {"monthly"},
		"start_date":  {"2026-09-01"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d (body: %s)", rec.Code, rec.Body.String())
	}

	body := get(srv, cookie, "/ui/standing-orders").Body.String()
	if !strings.Contains(body, "streaming") || !strings.Contains(body, "monthly") {
		t.Errorf("standing order list = %s", body)
	}

	rec = postForm(srv, cookie, "/standing-orders/toggle", url.Values{
		"id": {"1"}, "active": {"false"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "paused") {
		t.Errorf("toggle body = %s", rec.Body.String())
	}
}

func TestExportCSV(t *testing.T) {
	srv := newTestServer(t)
	cookie := signup(t, srv, "alice")

	if rec := postForm(srv, cookie, "/deposits", url.Values{
		"vault": {"Main"}, "amount": {"12,34"}, "category": {"Salary"}, "description": {"pay"},
	}); rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d", rec.Code)
	}

	rec := get(srv, cookie, "/export.csv")
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "date,vault,type,description,amount,category") {
		t.Errorf("csv header = %q", strings.SplitN(body, "\n", 2)[0])
	}
	if !strings.Contains(body, "12.34") {
		t.Errorf("csv body missing the amount: %s", body)
	}
}

func TestSecurityHeadersPresent(t *testing.T) {
	srv := newTestServer(t)

	rec := get(srv, nil, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options header")
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy header")
	}
}

func TestReadyz(t *testing.T) {
	srv := newTestServer(t)

	rec := get(srv, nil, "/readyz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", rec.Code, rec.Body.String())
	}
}
