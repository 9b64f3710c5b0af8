package port

import (
	"context"

	"github.com/avolkov/tokenmarket/internal/core/domain"
)

// MarketRepository persists the per-token listing and auction records plus
// sale receipts. Records are upserted by token id and reset in place rather
// than deleted.
type MarketRepository interface {
	// GetListing returns nil when no record exists for tokenID.
	GetListing(ctx context.Context, tokenID uint64) (*domain.Listing, error)
	PutListing(ctx context.Context, listing domain.Listing) error

	// GetAuction returns nil when no record exists for tokenID.
	GetAuction(ctx context.Context, tokenID uint64) (*domain.Auction, error)
	PutAuction(ctx context.Context, auction domain.Auction) error

	RecordSale(ctx context.Context, sale domain.Sale) error
}
