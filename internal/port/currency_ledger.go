package port

import (
	"context"
	"errors"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// CurrencyLedger is the fungible balance ledger trades settle in. Direct
// transfers are only issued out of accounts the caller controls; spending
// someone else's balance goes through the allowance granted with Approve.
type CurrencyLedger interface {
	BalanceOf(ctx context.Context, owner string) (uint64, error)

	// Mint credits freshly issued currency. Used by seeding and tests.
	Mint(ctx context.Context, to string, amount uint64) error

	Approve(ctx context.Context, owner, spender string, amount uint64) error
	Allowance(ctx context.Context, owner, spender string) (uint64, error)

	Transfer(ctx context.Context, from, to string, amount uint64) error

	// TransferFrom spends spender's allowance on from's balance. Fails with
	// ErrInsufficientAllowance before touching funds, ErrInsufficientFunds
	// when the allowance covers the amount but the balance does not.
	TransferFrom(ctx context.Context, spender, from, to string, amount uint64) error
}
