// Package storage is the SQLite persistence layer. All balance changes
// happen inside database transactions with a guard on the vault balance,
// so two concurrent withdrawals can never drive a vault negative.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"tesoro/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on any error.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CreateUser registers a new account holder with their Main vault. A
// username that already exists as a loan counterparty (no password) is
// claimed instead of rejected.
func (r *SQLiteRepository) CreateUser(ctx context.Context, username, passwordHash string) (core.User, error) {
	var user core.User
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var existingID int64
		var existingHash string
		err := tx.QueryRowContext(ctx,
			"SELECT id, password_hash FROM users WHERE username = ?", username).
			Scan(&existingID, &existingHash)
		switch {
		case err == nil:
			if existingHash != "" {
				return core.ErrUserExists
			}
			// Claim a counterparty account created by someone's loan
			if _, err := tx.ExecContext(ctx,
				"UPDATE users SET password_hash = ? WHERE id = ?", passwordHash, existingID); err != nil {
				return fmt.Errorf("claim user: %w", err)
			}
			user = core.User{ID: existingID, Username: username, PasswordHash: passwordHash}
			return nil
		case errors.Is(err, sql.ErrNoRows):
			id, err := insertUser(ctx, tx, username, passwordHash)
			if err != nil {
				return err
			}
			user = core.User{ID: id, Username: username, PasswordHash: passwordHash}
			return nil
		default:
			return fmt.Errorf("check username: %w", err)
		}
	})
	if err != nil {
		return core.User{}, err
	}

	slog.InfoContext(ctx, "User created", "username", username, "id", user.ID)
	return user, nil
}

func insertUser(ctx context.Context, tx *sql.Tx, username, passwordHash string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (username, password_hash) VALUES (?, ?)", username, passwordHash)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("user id: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO vaults (user_id, name) VALUES (?, ?)", id, core.DefaultVaultName); err != nil {
		return 0, fmt.Errorf("create default vault: %w", err)
	}
	return id, nil
}

// GetUser looks a user up by username.
func (r *SQLiteRepository) GetUser(ctx context.Context, username string) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash FROM users WHERE username = ?", username).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrUnknownUser
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// EnsureUser returns the named user, creating a password-less counterparty
// account (with its Main vault) if none exists yet.
func (r *SQLiteRepository) EnsureUser(ctx context.Context, username string) (core.User, error) {
	u, err := r.GetUser(ctx, username)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, core.ErrUnknownUser) {
		return core.User{}, err
	}

	err = r.withTx(ctx, func(tx *sql.Tx) error {
		id, err := insertUser(ctx, tx, username, "")
		if err != nil {
			return err
		}
		u = core.User{ID: id, Username: username}
		return nil
	})
	if err != nil {
		return core.User{}, err
	}

	slog.InfoContext(ctx, "Counterparty user created", "username", username, "id", u.ID)
	return u, nil
}

// CreateVault adds a named vault for the user.
func (r *SQLiteRepository) CreateVault(ctx context.Context, userID int64, name string) (core.Vault, error) {
	var v core.Vault
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var existing int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM vaults WHERE user_id = ? AND name = ? AND deleted = 0", userID, name).
			Scan(&existing)
		if err == nil {
			return core.ErrVaultExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check vault name: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			"INSERT INTO vaults (user_id, name) VALUES (?, ?)", userID, name)
		if err != nil {
			return fmt.Errorf("insert vault: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("vault id: %w", err)
		}
		v = core.Vault{ID: id, UserID: userID, Name: name}
		return nil
	})
	if err != nil {
		return core.Vault{}, err
	}

	slog.InfoContext(ctx, "Vault created", "vault", name, "user_id", userID)
	return v, nil
}

// GetVault looks a live vault up by owner and name.
func (r *SQLiteRepository) GetVault(ctx context.Context, userID int64, name string) (core.Vault, error) {
	var v core.Vault
	err := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, name, balance_cents FROM vaults WHERE user_id = ? AND name = ? AND deleted = 0",
		userID, name).
		Scan(&v.ID, &v.UserID, &v.Name, &v.Balance.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Vault{}, core.ErrUnknownVault
	}
	if err != nil {
		return core.Vault{}, fmt.Errorf("get vault: %w", err)
	}
	return v, nil
}

// ListVaults returns the user's live vaults, Main first.
func (r *SQLiteRepository) ListVaults(ctx context.Context, userID int64) ([]core.Vault, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, user_id, name, balance_cents FROM vaults WHERE user_id = ? AND deleted = 0 ORDER BY id",
		userID)
	if err != nil {
		return nil, fmt.Errorf("list vaults: %w", err)
	}
	defer rows.Close()

	var vaults []core.Vault
	for rows.Next() {
		var v core.Vault
		if err := rows.Scan(&v.ID, &v.UserID, &v.Name, &v.Balance.Cents); err != nil {
			return nil, fmt.Errorf("scan vault: %w", err)
		}
		vaults = append(vaults, v)
	}
	return vaults, rows.Err()
}

// DeleteVault removes a vault, moving any remaining balance into the
// user's Main vault. Main itself cannot be removed. The vault's standing
// orders are deactivated so the scheduler never touches a dead vault.
func (r *SQLiteRepository) DeleteVault(ctx context.Context, userID int64, name string) error {
	if name == core.DefaultVaultName {
		return core.ErrMainVaultDelete
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var vaultID, balance int64
		err := tx.QueryRowContext(ctx,
			"SELECT id, balance_cents FROM vaults WHERE user_id = ? AND name = ? AND deleted = 0",
			userID, name).
			Scan(&vaultID, &balance)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrUnknownVault
		}
		if err != nil {
			return fmt.Errorf("load vault: %w", err)
		}

		if balance != 0 {
			res, err := tx.ExecContext(ctx,
				"UPDATE vaults SET balance_cents = balance_cents + ? WHERE user_id = ? AND name = ? AND deleted = 0",
				balance, userID, core.DefaultVaultName)
			if err != nil {
				return fmt.Errorf("move balance to main: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return core.ErrUnknownVault
			}
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE vaults SET deleted = 1, balance_cents = 0 WHERE id = ?", vaultID); err != nil {
			return fmt.Errorf("delete vault: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE standing_orders SET active = 0 WHERE vault_id = ?", vaultID); err != nil {
			return fmt.Errorf("deactivate standing orders: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Vault deleted", "vault", name, "user_id", userID)
	return nil
}
