package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/avolkov/tokenmarket/internal/core/domain"
	"github.com/avolkov/tokenmarket/internal/port"
)

// recordSale writes the trade receipt. Receipts are bookkeeping only; a
// failure is logged and never unwinds a settled trade.
func recordSale(ctx context.Context, repo port.MarketRepository, sale domain.Sale) {
	if err := repo.RecordSale(ctx, sale); err != nil {
		zap.L().With(
			zap.String("saleId", sale.ID),
			zap.Uint64("tokenId", sale.TokenID),
			zap.Error(err),
		).Error("Failed to record sale")
	}
}
