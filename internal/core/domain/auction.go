package domain

import "time"

// Auction is a timed English-auction offer for a single unique item. While the
// auction is active the marketplace holds the item in escrow and the current
// highest bid in its currency account.
//
// HighestBid starts at the seller's asking price and strictly increases with
// each accepted bid. BidCount counts accepted raises only; the initial ask is
// not a bid. On reset only Seller is cleared, so the final bid fields stay
// readable after the auction closes.
type Auction struct {
	TokenID       uint64
	Seller        string
	HighestBidder string
	HighestBid    uint64
	BidCount      uint32
	StartedAt     time.Time
	UpdatedAt     time.Time
}

// Active reports whether the auction is open. Same seller-sentinel convention
// as Listing.
func (a Auction) Active() bool {
	return a.Seller != ""
}

// EndsAt returns the moment the auction becomes finishable.
func (a Auction) EndsAt(duration time.Duration) time.Time {
	return a.StartedAt.Add(duration)
}
