package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/avolkov/tokenmarket/internal/adapter/handler"
	"github.com/avolkov/tokenmarket/internal/adapter/storage"
	"github.com/avolkov/tokenmarket/internal/config"
	"github.com/avolkov/tokenmarket/internal/core/service"
)

func main() {
	config.Init()
	cfg := config.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sql.Open("mysql", cfg.MysqlDSN)
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to connect to mysql")
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to ping mysql")
	}
	zap.L().Info("Connected to mysql")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to connect to redis")
	}
	zap.L().Info("Connected to redis")

	registry := storage.NewMySQLRegistry(db)
	market := storage.NewMySQLMarket(db)
	ledger := storage.NewRedisLedger(rdb)

	if err := registry.EnsureSchema(ctx); err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to ensure registry schema")
	}
	if err := market.EnsureSchema(ctx); err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to ensure market schema")
	}

	listingService := service.NewListingService(registry, ledger, market, cfg.MarketAccount)
	auctionService := service.NewAuctionService(registry, ledger, market, cfg.MarketAccount, cfg.AuctionDuration, cfg.MinBidCount)
	itemService := service.NewItemService(registry)

	// gRPC carries the health/readiness endpoint only; the marketplace API is
	// HTTP JSON.
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to listen for grpc")
	}

	go func() {
		zap.L().With(zap.String("addr", cfg.GRPCAddr)).Info("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			zap.L().With(zap.Error(err)).Error("gRPC server error")
		}
	}()

	httpHandler := handler.NewHTTPHandler(listingService, auctionService, itemService, registry, ledger)
	router := mux.NewRouter()
	httpHandler.Register(router)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		zap.L().With(zap.String("addr", cfg.HTTPAddr)).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			zap.L().With(zap.Error(err)).Error("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.L().Info("Shutting down")
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	zap.L().Info("HTTP server stopped")

	grpcServer.GracefulStop()
	zap.L().Info("gRPC server stopped")

	rdb.Close()
	db.Close()
	zap.L().Info("Connections closed")
}
