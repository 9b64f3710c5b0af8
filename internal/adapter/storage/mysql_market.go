package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avolkov/tokenmarket/internal/core/domain"
)

// MySQLMarket persists listing/auction records and sale receipts. Records are
// keyed by token id and upserted in place; a reset is just an upsert with an
// empty seller.
type MySQLMarket struct {
	db *sql.DB
}

func NewMySQLMarket(db *sql.DB) *MySQLMarket {
	return &MySQLMarket{db: db}
}

// EnsureSchema creates the marketplace tables when they do not exist yet.
func (m *MySQLMarket) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS listings (
			token_id   BIGINT UNSIGNED PRIMARY KEY,
			price      BIGINT UNSIGNED NOT NULL,
			seller     VARCHAR(64) NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS auctions (
			token_id       BIGINT UNSIGNED PRIMARY KEY,
			seller         VARCHAR(64) NOT NULL DEFAULT '',
			highest_bidder VARCHAR(64) NOT NULL DEFAULT '',
			highest_bid    BIGINT UNSIGNED NOT NULL,
			bid_count      INT UNSIGNED NOT NULL,
			started_at     DATETIME NOT NULL,
			updated_at     DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id         VARCHAR(36) PRIMARY KEY,
			token_id   BIGINT UNSIGNED NOT NULL,
			seller     VARCHAR(64) NOT NULL,
			buyer      VARCHAR(64) NOT NULL,
			price      BIGINT UNSIGNED NOT NULL,
			kind       VARCHAR(16) NOT NULL,
			created_at DATETIME NOT NULL,
			KEY idx_sales_token (token_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure market schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLMarket) GetListing(ctx context.Context, tokenID uint64) (*domain.Listing, error) {
	var l domain.Listing
	err := m.db.QueryRowContext(ctx, `
		SELECT token_id, price, seller, created_at, updated_at
		FROM listings WHERE token_id = ?`, tokenID,
	).Scan(&l.TokenID, &l.Price, &l.Seller, &l.CreatedAt, &l.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query listing: %w", err)
	}
	return &l, nil
}

func (m *MySQLMarket) PutListing(ctx context.Context, listing domain.Listing) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO listings (token_id, price, seller, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			price = VALUES(price), seller = VALUES(seller), updated_at = VALUES(updated_at)`,
		listing.TokenID, listing.Price, listing.Seller, listing.CreatedAt, listing.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}
	return nil
}

func (m *MySQLMarket) GetAuction(ctx context.Context, tokenID uint64) (*domain.Auction, error) {
	var a domain.Auction
	err := m.db.QueryRowContext(ctx, `
		SELECT token_id, seller, highest_bidder, highest_bid, bid_count, started_at, updated_at
		FROM auctions WHERE token_id = ?`, tokenID,
	).Scan(&a.TokenID, &a.Seller, &a.HighestBidder, &a.HighestBid, &a.BidCount, &a.StartedAt, &a.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query auction: %w", err)
	}
	return &a, nil
}

func (m *MySQLMarket) PutAuction(ctx context.Context, auction domain.Auction) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO auctions (token_id, seller, highest_bidder, highest_bid, bid_count, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			seller = VALUES(seller), highest_bidder = VALUES(highest_bidder),
			highest_bid = VALUES(highest_bid), bid_count = VALUES(bid_count),
			started_at = VALUES(started_at), updated_at = VALUES(updated_at)`,
		auction.TokenID, auction.Seller, auction.HighestBidder, auction.HighestBid,
		auction.BidCount, auction.StartedAt, auction.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert auction: %w", err)
	}
	return nil
}

func (m *MySQLMarket) RecordSale(ctx context.Context, sale domain.Sale) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO sales (id, token_id, seller, buyer, price, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.TokenID, sale.Seller, sale.Buyer, sale.Price, string(sale.Kind), sale.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}
