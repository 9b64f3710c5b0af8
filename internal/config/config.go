package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/avolkov/tokenmarket/internal/core/service"
	"github.com/avolkov/tokenmarket/internal/log"
)

type Config struct {
	Env   string
	Debug bool

	HTTPAddr string
	GRPCAddr string

	MysqlDSN  string
	RedisAddr string

	// MarketAccount is the marketplace's own address in the registry and the
	// ledger; escrowed items and in-flight auction funds live there.
	MarketAccount string

	AuctionDuration time.Duration
	MinBidCount     uint32

	LogPath string
}

// Init loads .env when present and installs the global logger. A missing .env
// is fine outside development; everything has a default.
func Init() {
	_ = godotenv.Load(".env")

	cfg := Get()
	log.NewLogger(cfg.LogPath, cfg.Debug)
}

func Get() *Config {
	return &Config{
		Env:             getString("ENV", "dev"),
		Debug:           getBool("DEBUG", false),
		HTTPAddr:        getString("HTTP_ADDR", ":8080"),
		GRPCAddr:        getString("GRPC_ADDR", ":50051"),
		MysqlDSN:        getString("MYSQL_DSN", "root:root@tcp(localhost:3306)/tokenmarket?parseTime=true"),
		RedisAddr:       getString("REDIS_ADDR", "localhost:6379"),
		MarketAccount:   getString("MARKET_ACCOUNT", "marketplace"),
		AuctionDuration: getDuration("AUCTION_DURATION", service.AuctionDuration),
		MinBidCount:     uint32(getInt("MIN_BID_COUNT", int(service.MinBidCount))),
		LogPath:         getString("LOG_PATH", "./var/tokenmarket.log"),
	}
}

func getString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if val, err := strconv.Atoi(getString(key, "")); err == nil {
		return val
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if val, err := strconv.ParseBool(getString(key, "")); err == nil {
		return val
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if val, err := time.ParseDuration(getString(key, "")); err == nil {
		return val
	}
	return defaultValue
}
