package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/avolkov/tokenmarket/internal/port"
)

// ItemService is the thin mint/role glue in front of the item registry. Who
// may mint is the registry's call; the service just gates on the role before
// passing through.
type ItemService struct {
	registry port.ItemRegistry
}

func NewItemService(registry port.ItemRegistry) *ItemService {
	return &ItemService{registry: registry}
}

func (s *ItemService) CreateUnique(ctx context.Context, caller, owner, uri string) (uint64, error) {
	if err := s.requireMinter(ctx, caller); err != nil {
		return 0, err
	}

	tokenID, err := s.registry.MintUnique(ctx, owner, uri)
	if err != nil {
		return 0, fmt.Errorf("mint unique item: %w", err)
	}

	zap.L().With(
		zap.Uint64("tokenId", tokenID),
		zap.String("owner", owner),
		zap.String("uri", uri),
	).Info("Unique item minted")

	return tokenID, nil
}

func (s *ItemService) CreateFungible(ctx context.Context, caller, owner, uri string, amount uint64) (uint64, error) {
	if err := s.requireMinter(ctx, caller); err != nil {
		return 0, err
	}

	tokenID, err := s.registry.MintFungible(ctx, owner, uri, amount)
	if err != nil {
		return 0, fmt.Errorf("mint fungible item: %w", err)
	}

	zap.L().With(
		zap.Uint64("tokenId", tokenID),
		zap.String("owner", owner),
		zap.String("uri", uri),
		zap.Uint64("amount", amount),
	).Info("Fungible item minted")

	return tokenID, nil
}

func (s *ItemService) GrantMinter(ctx context.Context, addr string) error {
	if err := s.registry.GrantMinterRole(ctx, addr); err != nil {
		return fmt.Errorf("grant minter role: %w", err)
	}

	zap.L().With(zap.String("address", addr)).Info("Minter role granted")
	return nil
}

func (s *ItemService) requireMinter(ctx context.Context, caller string) error {
	ok, err := s.registry.IsMinter(ctx, caller)
	if err != nil {
		return fmt.Errorf("check minter role: %w", err)
	}
	if !ok {
		return port.ErrNotMinter
	}
	return nil
}
