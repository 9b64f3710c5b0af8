package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avolkov/tokenmarket/internal/core/domain"
	"github.com/avolkov/tokenmarket/internal/port"
)

const (
	categoryUnique   = "unique"
	categoryFungible = "fungible"
)

// MySQLRegistry implements the item registry on MySQL: item rows, per-holder
// holdings, operator approvals, and the minter role set. Transfers run in a
// single transaction with a quantity guard, so custody can never go negative
// and a failed call changes nothing.
type MySQLRegistry struct {
	db *sql.DB
}

func NewMySQLRegistry(db *sql.DB) *MySQLRegistry {
	return &MySQLRegistry{db: db}
}

// EnsureSchema creates the registry tables and seeds the id counters. Each
// category hands out sequential identifiers starting at zero; unique ids get
// the high bit on top.
func (r *MySQLRegistry) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			token_id   BIGINT UNSIGNED PRIMARY KEY,
			uri        TEXT NOT NULL,
			supply     BIGINT UNSIGNED NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS holdings (
			token_id BIGINT UNSIGNED NOT NULL,
			owner    VARCHAR(64) NOT NULL,
			quantity BIGINT UNSIGNED NOT NULL,
			PRIMARY KEY (token_id, owner)
		)`,
		`CREATE TABLE IF NOT EXISTS approvals (
			owner    VARCHAR(64) NOT NULL,
			operator VARCHAR(64) NOT NULL,
			approved BOOLEAN NOT NULL,
			PRIMARY KEY (owner, operator)
		)`,
		`CREATE TABLE IF NOT EXISTS minters (
			address VARCHAR(64) PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS token_counters (
			category VARCHAR(16) PRIMARY KEY,
			next     BIGINT UNSIGNED NOT NULL
		)`,
		`INSERT IGNORE INTO token_counters (category, next) VALUES ('unique', 0), ('fungible', 0)`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure registry schema: %w", err)
		}
	}
	return nil
}

func (r *MySQLRegistry) MintUnique(ctx context.Context, owner, uri string) (uint64, error) {
	seq, err := r.mint(ctx, categoryUnique, owner, uri, 1)
	if err != nil {
		return 0, err
	}
	return domain.UniqueFlag | seq, nil
}

func (r *MySQLRegistry) MintFungible(ctx context.Context, owner, uri string, amount uint64) (uint64, error) {
	return r.mint(ctx, categoryFungible, owner, uri, amount)
}

func (r *MySQLRegistry) mint(ctx context.Context, category, owner, uri string, amount uint64) (uint64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE token_counters SET next = LAST_INSERT_ID(next + 1) WHERE category = ?`, category)
	if err != nil {
		return 0, fmt.Errorf("advance counter: %w", err)
	}
	next, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	seq := uint64(next) - 1

	tokenID := seq
	if category == categoryUnique {
		tokenID = domain.UniqueFlag | seq
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO items (token_id, uri, supply, created_at) VALUES (?, ?, ?, ?)`,
		tokenID, uri, amount, time.Now(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert item: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO holdings (token_id, owner, quantity) VALUES (?, ?, ?)`,
		tokenID, owner, amount,
	)
	if err != nil {
		return 0, fmt.Errorf("insert holding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit mint: %w", err)
	}
	return seq, nil
}

func (r *MySQLRegistry) Transfer(ctx context.Context, operator, from, to string, tokenID, qty uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if operator != from {
		var approved bool
		err := tx.QueryRowContext(ctx, `
			SELECT approved FROM approvals WHERE owner = ? AND operator = ?`, from, operator,
		).Scan(&approved)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !approved) {
			return port.ErrNotAuthorized
		}
		if err != nil {
			return fmt.Errorf("query approval: %w", err)
		}
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM items WHERE token_id = ?`, tokenID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return port.ErrUnknownToken
	}
	if err != nil {
		return fmt.Errorf("query item: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE holdings SET quantity = quantity - ?
		WHERE token_id = ? AND owner = ? AND quantity >= ?`,
		qty, tokenID, from, qty,
	)
	if err != nil {
		return fmt.Errorf("debit holding: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return port.ErrInsufficientBalance
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO holdings (token_id, owner, quantity) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity)`,
		tokenID, to, qty,
	)
	if err != nil {
		return fmt.Errorf("credit holding: %w", err)
	}

	return tx.Commit()
}

func (r *MySQLRegistry) BalanceOf(ctx context.Context, owner string, tokenID uint64) (uint64, error) {
	var qty uint64
	err := r.db.QueryRowContext(ctx, `
		SELECT quantity FROM holdings WHERE token_id = ? AND owner = ?`, tokenID, owner,
	).Scan(&qty)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query holding: %w", err)
	}
	return qty, nil
}

func (r *MySQLRegistry) SetApprovalForAll(ctx context.Context, owner, operator string, approved bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO approvals (owner, operator, approved) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE approved = VALUES(approved)`,
		owner, operator, approved,
	)
	if err != nil {
		return fmt.Errorf("upsert approval: %w", err)
	}
	return nil
}

func (r *MySQLRegistry) IsApprovedForAll(ctx context.Context, owner, operator string) (bool, error) {
	var approved bool
	err := r.db.QueryRowContext(ctx, `
		SELECT approved FROM approvals WHERE owner = ? AND operator = ?`, owner, operator,
	).Scan(&approved)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query approval: %w", err)
	}
	return approved, nil
}

func (r *MySQLRegistry) GrantMinterRole(ctx context.Context, addr string) error {
	_, err := r.db.ExecContext(ctx, `INSERT IGNORE INTO minters (address) VALUES (?)`, addr)
	if err != nil {
		return fmt.Errorf("insert minter: %w", err)
	}
	return nil
}

func (r *MySQLRegistry) IsMinter(ctx context.Context, addr string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM minters WHERE address = ?`, addr).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query minter: %w", err)
	}
	return count > 0, nil
}
