package domain

import "time"

// Listing is a fixed-price sale offer for a single unique item. While the
// listing is active the marketplace holds the item in escrow.
type Listing struct {
	TokenID   uint64
	Price     uint64
	Seller    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the listing currently exists. An empty seller is the
// reset sentinel covering both "never listed" and "just fulfilled/cancelled";
// records are reset, never deleted, so a token with an inactive record may be
// listed again.
func (l Listing) Active() bool {
	return l.Seller != ""
}
