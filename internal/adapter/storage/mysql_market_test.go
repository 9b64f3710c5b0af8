package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/tokenmarket/internal/core/domain"
)

func getMarket(t *testing.T) (*MySQLMarket, *sql.DB) {
	db := getMySQLDB(t)
	market := NewMySQLMarket(db)
	if err := market.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema failed: %v", err)
	}
	return market, db
}

// testTokenID derives a per-run token id that stays clear of minted ids.
func testTokenID() uint64 {
	return domain.UniqueFlag | uint64(time.Now().UnixNano())&0xFFFFFFFF
}

func TestListing_RoundTrip(t *testing.T) {
	market, db := getMarket(t)
	defer db.Close()

	ctx := context.Background()
	tokenID := testTokenID()
	now := time.Now().Truncate(time.Second)

	listing := domain.Listing{
		TokenID:   tokenID,
		Price:     100,
		Seller:    "test-seller",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := market.PutListing(ctx, listing); err != nil {
		t.Fatalf("PutListing failed: %v", err)
	}

	got, err := market.GetListing(ctx, tokenID)
	if err != nil {
		t.Fatalf("GetListing failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected listing, got nil")
	}
	if got.Price != 100 || got.Seller != "test-seller" || !got.Active() {
		t.Errorf("unexpected listing: %+v", got)
	}

	// Reset keeps the row but clears the seller.
	listing.Seller = ""
	listing.UpdatedAt = now.Add(time.Second)
	if err := market.PutListing(ctx, listing); err != nil {
		t.Fatalf("PutListing reset failed: %v", err)
	}

	got, err = market.GetListing(ctx, tokenID)
	if err != nil {
		t.Fatalf("GetListing failed: %v", err)
	}
	if got == nil || got.Active() {
		t.Errorf("expected inactive record to remain readable, got %+v", got)
	}
	if got.Price != 100 {
		t.Errorf("expected price 100 readable after reset, got %d", got.Price)
	}

	db.ExecContext(ctx, `DELETE FROM listings WHERE token_id = ?`, tokenID)
}

func TestGetListing_NotFound(t *testing.T) {
	market, db := getMarket(t)
	defer db.Close()

	got, err := market.GetListing(context.Background(), testTokenID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing listing, got %+v", got)
	}
}

func TestAuction_RoundTrip(t *testing.T) {
	market, db := getMarket(t)
	defer db.Close()

	ctx := context.Background()
	tokenID := testTokenID()
	now := time.Now().Truncate(time.Second)

	auction := domain.Auction{
		TokenID:    tokenID,
		Seller:     "test-seller",
		HighestBid: 100,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	if err := market.PutAuction(ctx, auction); err != nil {
		t.Fatalf("PutAuction failed: %v", err)
	}

	// A bid updates the row in place.
	auction.HighestBidder = "test-bidder"
	auction.HighestBid = 200
	auction.BidCount = 1
	auction.UpdatedAt = now.Add(time.Second)
	if err := market.PutAuction(ctx, auction); err != nil {
		t.Fatalf("PutAuction update failed: %v", err)
	}

	got, err := market.GetAuction(ctx, tokenID)
	if err != nil {
		t.Fatalf("GetAuction failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected auction, got nil")
	}
	if got.HighestBidder != "test-bidder" || got.HighestBid != 200 || got.BidCount != 1 {
		t.Errorf("unexpected auction: %+v", got)
	}
	if got.StartedAt.Unix() != now.Unix() {
		t.Errorf("expected started_at %v, got %v", now, got.StartedAt)
	}

	db.ExecContext(ctx, `DELETE FROM auctions WHERE token_id = ?`, tokenID)
}

func TestGetAuction_NotFound(t *testing.T) {
	market, db := getMarket(t)
	defer db.Close()

	got, err := market.GetAuction(context.Background(), testTokenID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing auction, got %+v", got)
	}
}

func TestRecordSale(t *testing.T) {
	market, db := getMarket(t)
	defer db.Close()

	ctx := context.Background()
	sale := domain.Sale{
		ID:        uuid.NewString(),
		TokenID:   testTokenID(),
		Seller:    "test-seller",
		Buyer:     "test-buyer",
		Price:     400,
		Kind:      domain.SaleKindAuction,
		CreatedAt: time.Now(),
	}

	if err := market.RecordSale(ctx, sale); err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}

	var kind string
	var price uint64
	err := db.QueryRowContext(ctx, `SELECT kind, price FROM sales WHERE id = ?`, sale.ID).Scan(&kind, &price)
	if err != nil {
		t.Fatalf("sale not found: %v", err)
	}
	if kind != string(domain.SaleKindAuction) || price != 400 {
		t.Errorf("unexpected sale row: kind=%s price=%d", kind, price)
	}

	db.ExecContext(ctx, `DELETE FROM sales WHERE id = ?`, sale.ID)
}
