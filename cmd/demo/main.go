package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/avolkov/tokenmarket/internal/adapter/storage"
	"github.com/avolkov/tokenmarket/internal/config"
	"github.com/avolkov/tokenmarket/internal/core/service"
)

const (
	operator = "demo-operator"
	seller   = "demo-seller"
	buyer    = "demo-buyer"
	bidderA  = "demo-bidder-a"
	bidderB  = "demo-bidder-b"

	auctionDuration = 2 * time.Second
)

// End-to-end exercise against live MySQL and Redis: a fixed-price sale and a
// full three-bid auction with a shortened duration.
func main() {
	config.Init()
	cfg := config.Get()

	ctx := context.Background()

	db, err := sql.Open("mysql", cfg.MysqlDSN)
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to connect to mysql")
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to connect to redis")
	}
	defer rdb.Close()

	registry := storage.NewMySQLRegistry(db)
	market := storage.NewMySQLMarket(db)
	ledger := storage.NewRedisLedger(rdb)
	must(registry.EnsureSchema(ctx))
	must(market.EnsureSchema(ctx))

	listings := service.NewListingService(registry, ledger, market, cfg.MarketAccount)
	auctions := service.NewAuctionService(registry, ledger, market, cfg.MarketAccount, auctionDuration, service.MinBidCount)
	items := service.NewItemService(registry)

	// Seed participants.
	must(items.GrantMinter(ctx, operator))
	for _, addr := range []string{buyer, bidderA, bidderB} {
		must(ledger.Mint(ctx, addr, 1_000_000))
	}
	for _, addr := range []string{seller, buyer, bidderA, bidderB} {
		must(registry.SetApprovalForAll(ctx, addr, cfg.MarketAccount, true))
	}

	// Fixed-price sale.
	saleToken, err := items.CreateUnique(ctx, operator, seller, "ipfs://demo-sale-item")
	must(err)
	must(listings.List(ctx, seller, saleToken, 100))
	must(ledger.Approve(ctx, buyer, cfg.MarketAccount, 100))
	must(listings.Buy(ctx, buyer, saleToken))
	held, err := registry.BalanceOf(ctx, buyer, saleToken)
	must(err)
	fmt.Printf("sale: token %d now held by %s (balance %d)\n", saleToken, buyer, held)

	// Auction with three raises.
	auctionToken, err := items.CreateUnique(ctx, operator, seller, "ipfs://demo-auction-item")
	must(err)
	must(auctions.Open(ctx, seller, auctionToken, 100))

	must(ledger.Approve(ctx, bidderA, cfg.MarketAccount, 1_000_000))
	must(ledger.Approve(ctx, bidderB, cfg.MarketAccount, 1_000_000))
	must(auctions.Bid(ctx, bidderA, auctionToken, 200))
	must(auctions.Bid(ctx, bidderB, auctionToken, 300))
	must(auctions.Bid(ctx, bidderA, auctionToken, 400))

	time.Sleep(auctionDuration + time.Second)
	must(auctions.Finish(ctx, auctionToken))

	record, err := auctions.GetAuction(ctx, auctionToken)
	must(err)
	sellerBalance, err := ledger.BalanceOf(ctx, seller)
	must(err)
	fmt.Printf("auction: token %d won by %s at %d after %d bids, seller balance %d\n",
		auctionToken, record.HighestBidder, record.HighestBid, record.BidCount, sellerBalance)
}

func must(err error) {
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Demo step failed")
	}
}
