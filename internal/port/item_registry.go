package port

import (
	"context"
	"errors"
)

var (
	ErrUnknownToken        = errors.New("unknown token")
	ErrNotAuthorized       = errors.New("operator not authorized by holder")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrNotMinter           = errors.New("address lacks minter role")
)

// ItemRegistry owns item existence and custody bookkeeping. The marketplace
// is one operator among others: it may only move a holder's items after the
// holder has approved it via SetApprovalForAll.
type ItemRegistry interface {
	// MintUnique assigns the next identifier in the unique space and credits
	// owner with quantity 1.
	MintUnique(ctx context.Context, owner, uri string) (uint64, error)

	// MintFungible assigns the next identifier in the fungible space and
	// credits owner with the full supply.
	MintFungible(ctx context.Context, owner, uri string, amount uint64) (uint64, error)

	// Transfer moves qty of tokenID between holders. The operator must be the
	// holder itself or approved for all of the holder's items.
	Transfer(ctx context.Context, operator, from, to string, tokenID, qty uint64) error

	BalanceOf(ctx context.Context, owner string, tokenID uint64) (uint64, error)

	SetApprovalForAll(ctx context.Context, owner, operator string, approved bool) error
	IsApprovedForAll(ctx context.Context, owner, operator string) (bool, error)

	GrantMinterRole(ctx context.Context, addr string) error
	IsMinter(ctx context.Context, addr string) (bool, error)
}
