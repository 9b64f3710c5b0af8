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

// Defaults, exposed for introspection. An auction only pays the seller once at
// least MinBidCount raises were accepted; fewer than that and the auction is
// treated as failed regardless of bid size, so a seller cannot self-deal a
// one-bid "auction" without genuine price discovery.
const (
	MinBidCount     uint32 = 3
	AuctionDuration        = 72 * time.Hour
)

var (
	ErrDuplicateAuction        = errors.New("auction already exists")
	ErrNoSuchAuction           = errors.New("no such auction")
	ErrInsufficientBidIncrease = errors.New("bid does not exceed current highest")
	ErrAuctionStillRunning     = errors.New("auction still running")
)

// AuctionService is the timed English-auction engine. Funds are escrowed at
// bid time: every accepted bid moves the full amount into the marketplace
// account immediately, so the winning payout never depends on an allowance
// that the bidder could have revoked before finish.
type AuctionService struct {
	registry port.ItemRegistry
	ledger   port.CurrencyLedger
	repo     port.MarketRepository
	account  string
	duration time.Duration
	minBids  uint32

	mu  sync.Mutex
	now func() time.Time
}

func NewAuctionService(registry port.ItemRegistry, ledger port.CurrencyLedger, repo port.MarketRepository, account string, duration time.Duration, minBids uint32) *AuctionService {
	if duration <= 0 {
		duration = AuctionDuration
	}
	if minBids == 0 {
		minBids = MinBidCount
	}
	return &AuctionService{
		registry: registry,
		ledger:   ledger,
		repo:     repo,
		account:  account,
		duration: duration,
		minBids:  minBids,
		now:      time.Now,
	}
}

// Duration returns the fixed auction duration.
func (s *AuctionService) Duration() time.Duration { return s.duration }

// MinBids returns the bid-count threshold below which a finished auction fails.
func (s *AuctionService) MinBids() uint32 { return s.minBids }

// Open lists an item on auction, pulling it into escrow. The clock starts
// here: the auction becomes finishable once the fixed duration has elapsed.
func (s *AuctionService) Open(ctx context.Context, seller string, tokenID, startPrice uint64) error {
	if !domain.IsUnique(tokenID) {
		return ErrFungibleToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.repo.GetAuction(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("load auction: %w", err)
	}
	if current != nil && current.Active() {
		return ErrDuplicateAuction
	}

	if err := s.registry.Transfer(ctx, s.account, seller, s.account, tokenID, 1); err != nil {
		return fmt.Errorf("escrow item: %w", err)
	}

	now := s.now()
	auction := domain.Auction{
		TokenID:    tokenID,
		Seller:     seller,
		HighestBid: startPrice,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.PutAuction(ctx, auction); err != nil {
		if rbErr := s.registry.Transfer(ctx, s.account, s.account, seller, tokenID, 1); rbErr != nil {
			zap.L().With(zap.Uint64("tokenId", tokenID), zap.Error(rbErr)).Error("CRITICAL: failed to return escrowed item after store failure")
		}
		return fmt.Errorf("store auction: %w", err)
	}

	zap.L().With(
		zap.Uint64("tokenId", tokenID),
		zap.String("seller", seller),
		zap.Uint64("startPrice", startPrice),
		zap.Time("endsAt", auction.EndsAt(s.duration)),
	).Info("Auction opened")

	return nil
}

// Bid accepts a raise strictly above the current highest bid. The new bid is
// escrowed first; the displaced bidder (if any) is refunded their exact
// previous bid in the same serialized transition, so funds are never
// double-committed.
func (s *AuctionService) Bid(ctx context.Context, bidder string, tokenID, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, err := s.repo.GetAuction(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("load auction: %w", err)
	}
	if auction == nil || !auction.Active() {
		return ErrNoSuchAuction
	}
	if amount <= auction.HighestBid {
		return ErrInsufficientBidIncrease
	}

	if err := s.ledger.TransferFrom(ctx, s.account, bidder, s.account, amount); err != nil {
		return fmt.Errorf("escrow bid: %w", err)
	}

	if auction.HighestBidder != "" {
		if err := s.ledger.Transfer(ctx, s.account, auction.HighestBidder, auction.HighestBid); err != nil {
			// The previous bid stands; hand the new bidder their money back.
			if rbErr := s.ledger.Transfer(ctx, s.account, bidder, amount); rbErr != nil {
				zap.L().With(zap.Uint64("tokenId", tokenID), zap.String("bidder", bidder), zap.Error(rbErr)).Error("CRITICAL: failed to refund rejected bid")
			}
			return fmt.Errorf("refund displaced bidder: %w", err)
		}
	}

	updated := *auction
	updated.HighestBidder = bidder
	updated.HighestBid = amount
	updated.BidCount++
	updated.UpdatedAt = s.now()
	if err := s.repo.PutAuction(ctx, updated); err != nil {
		if rbErr := s.ledger.Transfer(ctx, s.account, bidder, amount); rbErr != nil {
			zap.L().With(zap.Uint64("tokenId", tokenID), zap.String("bidder", bidder), zap.Error(rbErr)).Error("CRITICAL: failed to refund bid after store failure")
		}
		if auction.HighestBidder != "" {
			// Relies on the displaced bidder's standing allowance.
			if rbErr := s.ledger.TransferFrom(ctx, s.account, auction.HighestBidder, s.account, auction.HighestBid); rbErr != nil {
				zap.L().With(zap.Uint64("tokenId", tokenID), zap.String("bidder", auction.HighestBidder), zap.Error(rbErr)).Error("CRITICAL: failed to re-escrow displaced bid after store failure")
			}
		}
		return fmt.Errorf("store auction: %w", err)
	}

	zap.L().With(
		zap.Uint64("tokenId", tokenID),
		zap.String("bidder", bidder),
		zap.Uint64("amount", amount),
		zap.Uint32("bidCount", updated.BidCount),
	).Info("Bid accepted")

	return nil
}

// Finish resolves an auction once the duration has elapsed. With enough bids
// the item goes to the highest bidder and the escrowed winning bid is paid out
// to the seller; otherwise the auction failed, the item returns to the seller
// and the last bidder is refunded. Either way only the seller field is
// cleared, leaving the final bid state readable.
func (s *AuctionService) Finish(ctx context.Context, tokenID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, err := s.repo.GetAuction(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("load auction: %w", err)
	}
	if auction == nil || !auction.Active() {
		return ErrNoSuchAuction
	}
	if s.now().Before(auction.EndsAt(s.duration)) {
		return ErrAuctionStillRunning
	}

	reset := *auction
	reset.Seller = ""
	reset.UpdatedAt = s.now()

	if auction.BidCount >= s.minBids {
		return s.settle(ctx, *auction, reset)
	}
	return s.abort(ctx, *auction, reset)
}

func (s *AuctionService) settle(ctx context.Context, auction, reset domain.Auction) error {
	if err := s.registry.Transfer(ctx, s.account, s.account, auction.HighestBidder, auction.TokenID, 1); err != nil {
		return fmt.Errorf("release item: %w", err)
	}

	if err := s.repo.PutAuction(ctx, reset); err != nil {
		zap.L().With(zap.Uint64("tokenId", auction.TokenID), zap.Error(err)).Error("CRITICAL: item released but auction reset failed")
		return fmt.Errorf("reset auction: %w", err)
	}

	if err := s.ledger.Transfer(ctx, s.account, auction.Seller, auction.HighestBid); err != nil {
		zap.L().With(zap.Uint64("tokenId", auction.TokenID), zap.String("seller", auction.Seller), zap.Error(err)).Error("CRITICAL: seller payout failed; funds remain in marketplace account")
		return fmt.Errorf("pay seller: %w", err)
	}

	recordSale(ctx, s.repo, domain.Sale{
		ID:        uuid.NewString(),
		TokenID:   auction.TokenID,
		Seller:    auction.Seller,
		Buyer:     auction.HighestBidder,
		Price:     auction.HighestBid,
		Kind:      domain.SaleKindAuction,
		CreatedAt: s.now(),
	})

	zap.L().With(
		zap.Uint64("tokenId", auction.TokenID),
		zap.String("seller", auction.Seller),
		zap.String("winner", auction.HighestBidder),
		zap.Uint64("price", auction.HighestBid),
		zap.Uint32("bidCount", auction.BidCount),
	).Info("Auction settled")

	return nil
}

func (s *AuctionService) abort(ctx context.Context, auction, reset domain.Auction) error {
	if err := s.registry.Transfer(ctx, s.account, s.account, auction.Seller, auction.TokenID, 1); err != nil {
		return fmt.Errorf("return item: %w", err)
	}

	if err := s.repo.PutAuction(ctx, reset); err != nil {
		// The seller's approval for the marketplace normally still stands.
		if rbErr := s.registry.Transfer(ctx, s.account, auction.Seller, s.account, auction.TokenID, 1); rbErr != nil {
			zap.L().With(zap.Uint64("tokenId", auction.TokenID), zap.Error(rbErr)).Error("CRITICAL: failed to re-escrow item after reset failure")
		}
		return fmt.Errorf("reset auction: %w", err)
	}

	if auction.HighestBidder != "" {
		if err := s.ledger.Transfer(ctx, s.account, auction.HighestBidder, auction.HighestBid); err != nil {
			zap.L().With(zap.Uint64("tokenId", auction.TokenID), zap.String("bidder", auction.HighestBidder), zap.Error(err)).Error("CRITICAL: bidder refund failed; funds remain in marketplace account")
			return fmt.Errorf("refund bidder: %w", err)
		}
	}

	zap.L().With(
		zap.Uint64("tokenId", auction.TokenID),
		zap.String("seller", auction.Seller),
		zap.Uint32("bidCount", auction.BidCount),
	).Info("Auction closed without sale")

	return nil
}

// GetAuction returns the stored record, or the empty record when the token was
// never auctioned.
func (s *AuctionService) GetAuction(ctx context.Context, tokenID uint64) (domain.Auction, error) {
	auction, err := s.repo.GetAuction(ctx, tokenID)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("load auction: %w", err)
	}
	if auction == nil {
		return domain.Auction{TokenID: tokenID}, nil
	}
	return *auction, nil
}
