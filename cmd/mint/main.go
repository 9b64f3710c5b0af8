package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/avolkov/tokenmarket/internal/adapter/storage"
	"github.com/avolkov/tokenmarket/internal/config"
	"github.com/avolkov/tokenmarket/internal/core/service"
)

// Operator tool for registry chores: minting items and handing out the minter
// role.
func main() {
	action := flag.String("action", "", "one of: mint-unique, mint-fungible, grant-minter")
	caller := flag.String("caller", "", "acting address (must hold the minter role for mints)")
	owner := flag.String("owner", "", "owner of the minted item")
	uri := flag.String("uri", "", "metadata URI")
	amount := flag.Uint64("amount", 0, "supply for fungible mints")
	address := flag.String("address", "", "address for grant-minter")
	flag.Parse()

	config.Init()
	cfg := config.Get()

	db, err := sql.Open("mysql", cfg.MysqlDSN)
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to connect to mysql")
	}
	defer db.Close()

	ctx := context.Background()
	registry := storage.NewMySQLRegistry(db)
	if err := registry.EnsureSchema(ctx); err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to ensure registry schema")
	}
	items := service.NewItemService(registry)

	switch *action {
	case "mint-unique":
		tokenID, err := items.CreateUnique(ctx, *caller, *owner, *uri)
		if err != nil {
			zap.L().With(zap.Error(err)).Fatal("Mint failed")
		}
		fmt.Printf("minted unique item %d for %s\n", tokenID, *owner)

	case "mint-fungible":
		tokenID, err := items.CreateFungible(ctx, *caller, *owner, *uri, *amount)
		if err != nil {
			zap.L().With(zap.Error(err)).Fatal("Mint failed")
		}
		fmt.Printf("minted fungible item %d (supply %d) for %s\n", tokenID, *amount, *owner)

	case "grant-minter":
		if err := items.GrantMinter(ctx, *address); err != nil {
			zap.L().With(zap.Error(err)).Fatal("Grant failed")
		}
		fmt.Printf("granted minter role to %s\n", *address)

	default:
		flag.Usage()
		os.Exit(2)
	}
}
