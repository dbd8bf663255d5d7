package backend

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"tesoro/internal/core"
	"tesoro/internal/storage"
)

// MemoryStore keeps the whole ledger in process memory. It mirrors the
// SQLite repository's semantics, including the balance guard and the
// sync-status lifecycle, so handler tests and local development run
// against the same behavior without a database file.
type MemoryStore struct {
	mu sync.Mutex

	users  map[string]core.User // keyed by username
	vaults []*memVault
	ledger []*memEntry
	loans  map[[2]int64]*memLoan
	orders []*memOrder

	categories []string
	units      []string

	nextUserID  int64
	nextVaultID int64
	nextEntryID int64
	nextOrderID int64
}

type memVault struct {
	core.Vault
	deleted bool
}

type memEntry struct {
	core.Transaction
	syncStatus string
	version    int64
	createdAt  time.Time
}

type memLoan struct {
	amount    int64
	updatedAt time.Time
}

type memOrder struct {
	core.StandingOrder
	lastRun core.Date
	active  bool
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]core.User),
		loans: make(map[[2]int64]*memLoan),
		categories: []string{
			"Salary", "Groceries", "Household", "Transport", "Health",
			"Dining", "Leisure", "Gifts", "Savings", "Transfer", "Loan", "Other",
		},
		units: []string{"kg", "g", "l", "ml", "pcs"},
	}
}

func (s *MemoryStore) Close() error { return nil }

// --- users ---

func (s *MemoryStore) CreateUser(_ context.Context, username, passwordHash string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[username]; ok {
		if existing.PasswordHash != "" {
			return core.User{}, core.ErrUserExists
		}
		existing.PasswordHash = passwordHash
		s.users[username] = existing
		return existing, nil
	}
	return s.insertUser(username, passwordHash), nil
}

func (s *MemoryStore) insertUser(username, passwordHash string) core.User {
	s.nextUserID++
	u := core.User{ID: s.nextUserID, Username: username, PasswordHash: passwordHash}
	s.users[username] = u

	s.nextVaultID++
	s.vaults = append(s.vaults, &memVault{Vault: core.Vault{
		ID:     s.nextVaultID,
		UserID: u.ID,
		Name:   core.DefaultVaultName,
	}})
	return u
}

func (s *MemoryStore) GetUser(_ context.Context, username string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return core.User{}, core.ErrUnknownUser
	}
	return u, nil
}

func (s *MemoryStore) EnsureUser(_ context.Context, username string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[username]; ok {
		return u, nil
	}
	return s.insertUser(username, ""), nil
}

// --- vaults ---

func (s *MemoryStore) CreateVault(_ context.Context, userID int64, name string) (core.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findVault(userID, name) != nil {
		return core.Vault{}, core.ErrVaultExists
	}
	s.nextVaultID++
	v := &memVault{Vault: core.Vault{ID: s.nextVaultID, UserID: userID, Name: name}}
	s.vaults = append(s.vaults, v)
	return v.Vault, nil
}

// findVault returns the live vault with this owner and name, or nil.
// Callers hold s.mu.
func (s *MemoryStore) findVault(userID int64, name string) *memVault {
	for _, v := range s.vaults {
		if v.UserID == userID && v.Name == name && !v.deleted {
			return v
		}
	}
	return nil
}

func (s *MemoryStore) vaultByID(id int64) *memVault {
	for _, v := range s.vaults {
		if v.ID == id && !v.deleted {
			return v
		}
	}
	return nil
}

func (s *MemoryStore) GetVault(_ context.Context, userID int64, name string) (core.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.findVault(userID, name)
	if v == nil {
		return core.Vault{}, core.ErrUnknownVault
	}
	return v.Vault, nil
}

func (s *MemoryStore) ListVaults(_ context.Context, userID int64) ([]core.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Vault
	for _, v := range s.vaults {
		if v.UserID == userID && !v.deleted {
			out = append(out, v.Vault)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteVault(_ context.Context, userID int64, name string) error {
	if name == core.DefaultVaultName {
		return core.ErrMainVaultDelete
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.findVault(userID, name)
	if v == nil {
		return core.ErrUnknownVault
	}
	if v.Balance.Cents != 0 {
		main := s.findVault(userID, core.DefaultVaultName)
		if main == nil {
			return core.ErrUnknownVault
		}
		main.Balance.Cents += v.Balance.Cents
	}
	v.deleted = true
	v.Balance.Cents = 0
	for _, o := range s.orders {
		if o.VaultID == v.ID {
			o.active = false
		}
	}
	return nil
}

// --- ledger ---

// applyEntry mirrors the SQLite balance guard: an outflow only lands when
// the vault can cover it. Callers hold s.mu.
func (s *MemoryStore) applyEntry(t core.Transaction) (int64, error) {
	v := s.vaultByID(t.VaultID)
	if v == nil {
		return 0, core.ErrUnknownVault
	}
	if t.Amount.Cents < 0 && v.Balance.Cents+t.Amount.Cents < 0 {
		return 0, core.ErrInsufficientFunds
	}
	v.Balance.Cents += t.Amount.Cents

	s.nextEntryID++
	t.ID = s.nextEntryID
	s.ledger = append(s.ledger, &memEntry{
		Transaction: t,
		syncStatus:  "pending",
		version:     1,
		createdAt:   time.Now(),
	})
	return t.ID, nil
}

func (s *MemoryStore) Append(_ context.Context, t core.Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyEntry(t)
}

func (s *MemoryStore) AppendPair(_ context.Context, out, in core.Transaction) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outID, err := s.applyEntry(out)
	if err != nil {
		return 0, 0, err
	}
	inID, err := s.applyEntry(in)
	if err != nil {
		// Undo the debit so the pair stays atomic.
		s.rollbackEntry(outID, out)
		return 0, 0, err
	}
	return outID, inID, nil
}

// rollbackEntry reverses a just-applied entry. Callers hold s.mu.
func (s *MemoryStore) rollbackEntry(id int64, t core.Transaction) {
	if v := s.vaultByID(t.VaultID); v != nil {
		v.Balance.Cents -= t.Amount.Cents
	}
	for i, e := range s.ledger {
		if e.ID == id {
			s.ledger = append(s.ledger[:i], s.ledger[i+1:]...)
			break
		}
	}
}

func (s *MemoryStore) AppendLoan(_ context.Context, out, in core.Transaction) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outID, err := s.applyEntry(out)
	if err != nil {
		return 0, 0, err
	}
	inID, err := s.applyEntry(in)
	if err != nil {
		s.rollbackEntry(outID, out)
		return 0, 0, err
	}

	key := [2]int64{out.VaultID, in.VaultID}
	l, ok := s.loans[key]
	if !ok {
		l = &memLoan{}
		s.loans[key] = l
	}
	l.amount += in.Amount.Cents
	l.updatedAt = time.Now()
	return outID, inID, nil
}

func (s *MemoryStore) AppendBatch(_ context.Context, entries []core.Transaction) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(entries))
	applied := make([]core.Transaction, 0, len(entries))
	for _, e := range entries {
		id, err := s.applyEntry(e)
		if err != nil {
			for i := len(ids) - 1; i >= 0; i-- {
				s.rollbackEntry(ids[i], applied[i])
			}
			return nil, fmt.Errorf("entry %q: %w", e.Description, err)
		}
		ids = append(ids, id)
		applied = append(applied, e)
	}
	return ids, nil
}

func (s *MemoryStore) ListLedger(_ context.Context, userID int64, year, month int) ([]storage.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.LedgerEntry
	for i := len(s.ledger) - 1; i >= 0; i-- {
		e := s.ledger[i]
		le, ok := s.toLedgerEntry(e, userID)
		if !ok || e.Date.Year() != year || e.Date.Month() != month {
			continue
		}
		out = append(out, le)
	}
	return out, nil
}

func (s *MemoryStore) ListLedgerAll(_ context.Context, userID int64) ([]storage.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.LedgerEntry
	for _, e := range s.ledger {
		if le, ok := s.toLedgerEntry(e, userID); ok {
			out = append(out, le)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Date, out[j].Date
		if !a.Equal(b.Time) {
			return a.Before(b.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// toLedgerEntry resolves the entry's vault and filters by owner. Deleted
// vaults still resolve so history survives vault removal. Callers hold s.mu.
func (s *MemoryStore) toLedgerEntry(e *memEntry, userID int64) (storage.LedgerEntry, bool) {
	for _, v := range s.vaults {
		if v.ID == e.VaultID {
			if v.UserID != userID {
				return storage.LedgerEntry{}, false
			}
			return storage.LedgerEntry{Transaction: e.Transaction, VaultName: v.Name}, true
		}
	}
	return storage.LedgerEntry{}, false
}

// --- aggregates ---

func (s *MemoryStore) ReadMonthSummary(_ context.Context, userID int64, year, month int) (core.MonthSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := core.MonthSummary{Year: year, Month: month}
	byCategory := make(map[string]int64)

	for _, e := range s.ledger {
		if _, ok := s.toLedgerEntry(e, userID); !ok {
			continue
		}
		if e.Date.Year() != year || e.Date.Month() != month {
			continue
		}
		summary.Net.Cents += e.Amount.Cents
		if e.Amount.Cents < 0 {
			summary.Spent.Cents -= e.Amount.Cents
			byCategory[e.Category] -= e.Amount.Cents
		} else {
			summary.Received.Cents += e.Amount.Cents
		}
	}

	for name, cents := range byCategory {
		summary.ByCategory = append(summary.ByCategory, core.CategoryAmount{
			Name: name, Amount: core.Money{Cents: cents},
		})
	}
	sort.Slice(summary.ByCategory, func(i, j int) bool {
		return summary.ByCategory[i].Amount.Cents > summary.ByCategory[j].Amount.Cents
	})

	for _, v := range s.vaults {
		if v.UserID == userID && !v.deleted {
			summary.Vaults = append(summary.Vaults, core.VaultBalance{Name: v.Name, Balance: v.Balance})
			summary.Total.Cents += v.Balance.Cents
		}
	}
	return summary, nil
}

func (s *MemoryStore) ReadLoanOverview(_ context.Context, userID int64) ([]core.LoanBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type position struct {
		lb        core.LoanBalance
		updatedAt time.Time
	}
	var positions []position

	for key, l := range s.loans {
		if l.amount == 0 {
			continue
		}
		from, to := s.vaultAnyByID(key[0]), s.vaultAnyByID(key[1])
		if from == nil || to == nil {
			continue
		}
		if from.UserID != userID && to.UserID != userID {
			continue
		}
		positions = append(positions, position{
			lb: core.LoanBalance{
				FromUser:  s.usernameByID(from.UserID),
				FromVault: from.Name,
				ToUser:    s.usernameByID(to.UserID),
				ToVault:   to.Name,
				Amount:    core.Money{Cents: l.amount},
			},
			updatedAt: l.updatedAt,
		})
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].updatedAt.After(positions[j].updatedAt)
	})

	out := make([]core.LoanBalance, 0, len(positions))
	for _, p := range positions {
		out = append(out, p.lb)
	}
	return out, nil
}

func (s *MemoryStore) vaultAnyByID(id int64) *memVault {
	for _, v := range s.vaults {
		if v.ID == id {
			return v
		}
	}
	return nil
}

func (s *MemoryStore) usernameByID(id int64) string {
	for name, u := range s.users {
		if u.ID == id {
			return name
		}
	}
	return ""
}

// --- export queue ---

func (s *MemoryStore) ListPendingSync(_ context.Context, limit int) ([]storage.PendingSyncEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []storage.PendingSyncEntry
	for _, e := range s.ledger {
		if e.syncStatus != "pending" {
			continue
		}
		pending = append(pending, storage.PendingSyncEntry{
			ID: e.ID, Version: e.version, CreatedAt: e.createdAt,
		})
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (s *MemoryStore) GetSyncRow(_ context.Context, id int64) (storage.SyncRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryByID(id)
	if e == nil {
		return storage.SyncRow{}, fmt.Errorf("transaction %d not found", id)
	}
	v := s.vaultAnyByID(e.VaultID)
	if v == nil {
		return storage.SyncRow{}, fmt.Errorf("transaction %d not found", id)
	}
	return storage.SyncRow{
		ID:          e.ID,
		Version:     e.version,
		Username:    s.usernameByID(v.UserID),
		Vault:       v.Name,
		Type:        e.Type,
		Amount:      e.Amount,
		Category:    e.Category,
		Description: e.Description,
		Quantity:    e.Quantity,
		Unit:        e.Unit,
		Date:        e.Date,
		SyncStatus:  e.syncStatus,
	}, nil
}

func (s *MemoryStore) entryByID(id int64) *memEntry {
	for _, e := range s.ledger {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (s *MemoryStore) MarkSynced(_ context.Context, id int64) error {
	return s.setSyncStatus(id, "synced")
}

func (s *MemoryStore) MarkSyncError(_ context.Context, id int64) error {
	return s.setSyncStatus(id, "error")
}

func (s *MemoryStore) setSyncStatus(id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.entryByID(id); e != nil {
		e.syncStatus = status
	}
	return nil
}

// --- standing orders ---

func (s *MemoryStore) CreateStandingOrder(_ context.Context, so core.StandingOrder) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextOrderID++
	so.ID = s.nextOrderID
	s.orders = append(s.orders, &memOrder{StandingOrder: so, active: true})
	return so.ID, nil
}

func (s *MemoryStore) ListStandingOrders(_ context.Context, userID int64) ([]storage.StandingOrderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.StandingOrderState
	for _, o := range s.orders {
		v := s.vaultAnyByID(o.VaultID)
		if v == nil || v.UserID != userID {
			continue
		}
		out = append(out, s.toOrderState(o, v))
	}
	return out, nil
}

func (s *MemoryStore) ListActiveStandingOrders(_ context.Context) ([]storage.StandingOrderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.StandingOrderState
	for _, o := range s.orders {
		if !o.active {
			continue
		}
		v := s.vaultAnyByID(o.VaultID)
		if v == nil {
			continue
		}
		out = append(out, s.toOrderState(o, v))
	}
	return out, nil
}

func (s *MemoryStore) toOrderState(o *memOrder, v *memVault) storage.StandingOrderState {
	return storage.StandingOrderState{
		StandingOrder: o.StandingOrder,
		VaultName:     v.Name,
		Username:      s.usernameByID(v.UserID),
		LastRun:       o.lastRun,
		Active:        o.active,
	}
}

func (s *MemoryStore) MarkStandingOrderRun(_ context.Context, id int64, ran core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		if o.ID == id {
			o.lastRun = ran
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) SetStandingOrderActive(_ context.Context, userID, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		if o.ID != id {
			continue
		}
		v := s.vaultAnyByID(o.VaultID)
		if v == nil || v.UserID != userID {
			break
		}
		o.active = active
		return nil
	}
	return sql.ErrNoRows
}

// --- bulk-entry lookups ---

func (s *MemoryStore) VaultBalances(username string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return map[string]int64{}, nil
	}
	balances := make(map[string]int64)
	for _, v := range s.vaults {
		if v.UserID == u.ID && !v.deleted {
			balances[v.Name] = v.Balance.Cents
		}
	}
	return balances, nil
}

func (s *MemoryStore) VaultExists(username, vault string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return false, nil
	}
	return s.findVault(u.ID, vault) != nil, nil
}

func (s *MemoryStore) UserExists(username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.users[username]
	return ok, nil
}

func (s *MemoryStore) CategoryNames() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.categories...), nil
}

func (s *MemoryStore) UnitNames() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.units...), nil
}

func (s *MemoryStore) Taxonomy(_ context.Context) ([]string, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.categories...), append([]string(nil), s.units...), nil
}
