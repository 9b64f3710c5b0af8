package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avolkov/tokenmarket/internal/core/domain"
	"github.com/avolkov/tokenmarket/internal/port"
)

var (
	ErrDuplicateListing = errors.New("listing already exists")
	// ErrNotOwnerOrNoListing deliberately conflates "no such listing" and
	// "caller is not the seller": cancel callers cannot probe who listed what.
	ErrNotOwnerOrNoListing = errors.New("no listing or caller is not the seller")
	ErrNoSuchListing       = errors.New("no such listing")
	ErrFungibleToken       = errors.New("fungible tokens cannot be listed")
)

// ListingService is the fixed-price sale engine. It pulls the listed item into
// marketplace escrow for the lifetime of the listing and settles payment
// through the currency ledger on buy.
//
// State transitions are serialized by the engine mutex. Every failed call
// leaves state exactly as before: external moves are ordered so that any later
// failure triggers the inverse, marketplace-outbound move before the error is
// returned.
type ListingService struct {
	registry port.ItemRegistry
	ledger   port.CurrencyLedger
	repo     port.MarketRepository
	account  string

	mu  sync.Mutex
	now func() time.Time
}

// NewListingService builds the engine. account is the marketplace's own
// address in both the registry and the ledger; escrowed items and in-flight
// auction funds live there.
func NewListingService(registry port.ItemRegistry, ledger port.CurrencyLedger, repo port.MarketRepository, account string) *ListingService {
	return &ListingService{
		registry: registry,
		ledger:   ledger,
		repo:     repo,
		account:  account,
		now:      time.Now,
	}
}

// List creates a fixed-price listing and pulls the item into escrow. The
// registry enforces that seller holds the item and has approved the
// marketplace as operator.
func (s *ListingService) List(ctx context.Context, seller string, tokenID, price uint64) error {
	if !domain.IsUnique(tokenID) {
		return ErrFungibleToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.repo.GetListing(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("load listing: %w", err)
	}
	if current != nil && current.Active() {
		return ErrDuplicateListing
	}

	if err := s.registry.Transfer(ctx, s.account, seller, s.account, tokenID, 1); err != nil {
		return fmt.Errorf("escrow item: %w", err)
	}

	now := s.now()
	listing := domain.Listing{
		TokenID:   tokenID,
		Price:     price,
		Seller:    seller,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.PutListing(ctx, listing); err != nil {
		if rbErr := s.registry.Transfer(ctx, s.account, s.account, seller, tokenID, 1); rbErr != nil {
			zap.L().With(zap.Uint64("tokenId", tokenID), zap.Error(rbErr)).Error("CRITICAL: failed to return escrowed item after store failure")
		}
		return fmt.Errorf("store listing: %w", err)
	}

	zap.L().With(
		zap.Uint64("tokenId", tokenID),
		zap.String("seller", seller),
		zap.Uint64("price", price),
	).Info("Listing created")

	return nil
}

// Cancel returns the escrowed item to the seller and resets the listing.
func (s *ListingService) Cancel(ctx context.Context, caller string, tokenID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, err := s.repo.GetListing(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("load listing: %w", err)
	}
	if listing == nil || !listing.Active() || listing.Seller != caller {
		return ErrNotOwnerOrNoListing
	}

	if err := s.registry.Transfer(ctx, s.account, s.account, caller, tokenID, 1); err != nil {
		return fmt.Errorf("release item: %w", err)
	}

	reset := *listing
	reset.Seller = ""
	reset.UpdatedAt = s.now()
	if err := s.repo.PutListing(ctx, reset); err != nil {
		if rbErr := s.registry.Transfer(ctx, s.account, caller, s.account, tokenID, 1); rbErr != nil {
			zap.L().With(zap.Uint64("tokenId", tokenID), zap.Error(rbErr)).Error("CRITICAL: failed to re-escrow item after reset failure")
		}
		return fmt.Errorf("reset listing: %w", err)
	}

	zap.L().With(
		zap.Uint64("tokenId", tokenID),
		zap.String("seller", caller),
	).Info("Listing cancelled")

	return nil
}

// Buy settles an active listing: exactly the asking price moves from the buyer
// to the seller and the item leaves escrow for the buyer. Payment is routed
// through the marketplace account in two hops so that every compensating move
// is marketplace-outbound and never needs a participant's authorization.
func (s *ListingService) Buy(ctx context.Context, buyer string, tokenID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, err := s.repo.GetListing(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("load listing: %w", err)
	}
	if listing == nil || !listing.Active() {
		return ErrNoSuchListing
	}

	// The buyer must have pre-authorized at least the asking price; the
	// ledger surfaces the insufficiency otherwise.
	if err := s.ledger.TransferFrom(ctx, s.account, buyer, s.account, listing.Price); err != nil {
		return fmt.Errorf("collect payment: %w", err)
	}

	if err := s.registry.Transfer(ctx, s.account, s.account, buyer, tokenID, 1); err != nil {
		if rbErr := s.ledger.Transfer(ctx, s.account, buyer, listing.Price); rbErr != nil {
			zap.L().With(zap.Uint64("tokenId", tokenID), zap.String("buyer", buyer), zap.Error(rbErr)).Error("CRITICAL: failed to refund buyer after item release failure")
		}
		return fmt.Errorf("release item: %w", err)
	}

	reset := *listing
	reset.Seller = ""
	reset.UpdatedAt = s.now()
	if err := s.repo.PutListing(ctx, reset); err != nil {
		// The item is already with the buyer and cannot be pulled back;
		// payment stays parked in the marketplace account for the operator.
		zap.L().With(zap.Uint64("tokenId", tokenID), zap.Error(err)).Error("CRITICAL: trade settled but listing reset failed")
		return fmt.Errorf("reset listing: %w", err)
	}

	if err := s.ledger.Transfer(ctx, s.account, listing.Seller, listing.Price); err != nil {
		zap.L().With(zap.Uint64("tokenId", tokenID), zap.String("seller", listing.Seller), zap.Error(err)).Error("CRITICAL: seller payout failed; funds remain in marketplace account")
		return fmt.Errorf("pay seller: %w", err)
	}

	recordSale(ctx, s.repo, domain.Sale{
		ID:        uuid.NewString(),
		TokenID:   tokenID,
		Seller:    listing.Seller,
		Buyer:     buyer,
		Price:     listing.Price,
		Kind:      domain.SaleKindFixedPrice,
		CreatedAt: s.now(),
	})

	zap.L().With(
		zap.Uint64("tokenId", tokenID),
		zap.String("seller", listing.Seller),
		zap.String("buyer", buyer),
		zap.Uint64("price", listing.Price),
	).Info("Listing sold")

	return nil
}

// GetListing returns the stored record, or the empty record when the token
// was never listed.
func (s *ListingService) GetListing(ctx context.Context, tokenID uint64) (domain.Listing, error) {
	listing, err := s.repo.GetListing(ctx, tokenID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("load listing: %w", err)
	}
	if listing == nil {
		return domain.Listing{TokenID: tokenID}, nil
	}
	return *listing, nil
}
