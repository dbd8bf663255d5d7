package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// The methods below back core.BulkLookup. They take no context because
// bulk validation runs synchronously inside a request and the queries
// are cheap point lookups.

func (r *SQLiteRepository) VaultBalances(username string) (map[string]int64, error) {
	rows, err := r.db.Query(
		`SELECT v.name, v.balance_cents
		 FROM vaults v JOIN users u ON u.id = v.user_id
		 WHERE u.username = ? AND v.deleted = 0`, username)
	if err != nil {
		return nil, fmt.Errorf("vault balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]int64)
	for rows.Next() {
		var name string
		var cents int64
		if err := rows.Scan(&name, &cents); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances[name] = cents
	}
	return balances, rows.Err()
}

func (r *SQLiteRepository) VaultExists(username, vault string) (bool, error) {
	var one int64
	err := r.db.QueryRow(
		`SELECT 1 FROM vaults v JOIN users u ON u.id = v.user_id
		 WHERE u.username = ? AND v.name = ? AND v.deleted = 0`, username, vault).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check vault: %w", err)
	}
	return true, nil
}

func (r *SQLiteRepository) UserExists(username string) (bool, error) {
	var one int64
	err := r.db.QueryRow("SELECT 1 FROM users WHERE username = ?", username).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return true, nil
}

func (r *SQLiteRepository) CategoryNames() ([]string, error) {
	return r.names("SELECT name FROM categories ORDER BY name")
}

func (r *SQLiteRepository) UnitNames() ([]string, error) {
	return r.names("SELECT name FROM units ORDER BY name")
}

func (r *SQLiteRepository) names(query string) ([]string, error) {
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Taxonomy returns categories and units together, for form rendering.
func (r *SQLiteRepository) Taxonomy(ctx context.Context) (categories, units []string, err error) {
	categories, err = r.CategoryNames()
	if err != nil {
		return nil, nil, err
	}
	units, err = r.UnitNames()
	if err != nil {
		return nil, nil, err
	}
	return categories, units, nil
}
