package domain

import "time"

type SaleKind string

const (
	SaleKindFixedPrice SaleKind = "fixed_price"
	SaleKindAuction    SaleKind = "auction"
)

// Sale is the receipt written after a completed trade. Receipts are
// best-effort bookkeeping: a failed write is logged and never unwinds a
// settled trade.
type Sale struct {
	ID        string
	TokenID   uint64
	Seller    string
	Buyer     string
	Price     uint64
	Kind      SaleKind
	CreatedAt time.Time
}
