package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/avolkov/tokenmarket/internal/port"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func clearAccounts(ctx context.Context, client *redis.Client, owners ...string) {
	for _, owner := range owners {
		client.Del(ctx, balanceKeyPrefix+owner)
	}
}

func TestMintAndBalance(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	ledger := NewRedisLedger(client)

	clearAccounts(ctx, client, "test-alice")

	balance, err := ledger.BalanceOf(ctx, "test-alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 0 {
		t.Errorf("expected fresh account at 0, got %d", balance)
	}

	if err := ledger.Mint(ctx, "test-alice", 1000); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if err := ledger.Mint(ctx, "test-alice", 500); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	balance, _ = ledger.BalanceOf(ctx, "test-alice")
	if balance != 1500 {
		t.Errorf("expected balance 1500, got %d", balance)
	}
}

func TestTransfer_Funds(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	ledger := NewRedisLedger(client)

	clearAccounts(ctx, client, "test-from", "test-to")
	ledger.Mint(ctx, "test-from", 100)

	if err := ledger.Transfer(ctx, "test-from", "test-to", 60); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	from, _ := ledger.BalanceOf(ctx, "test-from")
	to, _ := ledger.BalanceOf(ctx, "test-to")
	if from != 40 || to != 60 {
		t.Errorf("expected 40/60, got %d/%d", from, to)
	}

	// Overdraft rejected, balances untouched.
	err := ledger.Transfer(ctx, "test-from", "test-to", 41)
	if !errors.Is(err, port.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got: %v", err)
	}
	from, _ = ledger.BalanceOf(ctx, "test-from")
	if from != 40 {
		t.Errorf("expected balance unchanged at 40, got %d", from)
	}
}

func TestTransferFrom_Allowance(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	ledger := NewRedisLedger(client)

	clearAccounts(ctx, client, "test-owner", "test-sink")
	client.Del(ctx, allowanceKey("test-owner", "test-spender"))

	ledger.Mint(ctx, "test-owner", 1000)

	// No allowance yet.
	err := ledger.TransferFrom(ctx, "test-spender", "test-owner", "test-sink", 100)
	if !errors.Is(err, port.ErrInsufficientAllowance) {
		t.Errorf("expected ErrInsufficientAllowance, got: %v", err)
	}

	if err := ledger.Approve(ctx, "test-owner", "test-spender", 300); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	if err := ledger.TransferFrom(ctx, "test-spender", "test-owner", "test-sink", 100); err != nil {
		t.Fatalf("TransferFrom failed: %v", err)
	}

	// The spend draws the allowance down.
	remaining, err := ledger.Allowance(ctx, "test-owner", "test-spender")
	if err != nil {
		t.Fatalf("Allowance failed: %v", err)
	}
	if remaining != 200 {
		t.Errorf("expected allowance 200, got %d", remaining)
	}

	owner, _ := ledger.BalanceOf(ctx, "test-owner")
	sink, _ := ledger.BalanceOf(ctx, "test-sink")
	if owner != 900 || sink != 100 {
		t.Errorf("expected 900/100, got %d/%d", owner, sink)
	}

	err = ledger.TransferFrom(ctx, "test-spender", "test-owner", "test-sink", 201)
	if !errors.Is(err, port.ErrInsufficientAllowance) {
		t.Errorf("expected ErrInsufficientAllowance, got: %v", err)
	}
}

func TestTransferFrom_InsufficientFunds(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	ledger := NewRedisLedger(client)

	clearAccounts(ctx, client, "test-broke", "test-sink")
	client.Del(ctx, allowanceKey("test-broke", "test-spender"))

	ledger.Mint(ctx, "test-broke", 50)
	ledger.Approve(ctx, "test-broke", "test-spender", 100)

	err := ledger.TransferFrom(ctx, "test-spender", "test-broke", "test-sink", 100)
	if !errors.Is(err, port.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got: %v", err)
	}

	// Allowance untouched on a failed spend.
	remaining, _ := ledger.Allowance(ctx, "test-broke", "test-spender")
	if remaining != 100 {
		t.Errorf("expected allowance unchanged at 100, got %d", remaining)
	}
}

func TestTransfer_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	ledger := NewRedisLedger(client)

	clearAccounts(ctx, client, "test-hot", "test-drain")

	initialFunds := 20
	totalRequests := 50
	ledger.Mint(ctx, "test-hot", uint64(initialFunds))

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ledger.Transfer(ctx, "test-hot", "test-drain", 1)
			if err == nil {
				successCount.Add(1)
				return
			}
			if !errors.Is(err, port.ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	// The Lua guard admits exactly as many unit transfers as there were funds.
	if successCount.Load() != int32(initialFunds) {
		t.Errorf("expected %d successes, got %d", initialFunds, successCount.Load())
	}

	balance, _ := ledger.BalanceOf(ctx, "test-hot")
	if balance != 0 {
		t.Errorf("expected drained balance 0, got %d", balance)
	}
}
