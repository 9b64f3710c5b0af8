package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/avolkov/tokenmarket/internal/port"
)

const (
	balanceKeyPrefix   = "cash:bal:"
	allowanceKeyPrefix = "cash:allow:"
)

var transferScript = redis.NewScript(`
local amount = tonumber(ARGV[1])

local balance = tonumber(redis.call('GET', KEYS[1]) or '0')
if balance < amount then
	return 0
end

redis.call('DECRBY', KEYS[1], amount)
redis.call('INCRBY', KEYS[2], amount)
return 1
`)

var transferFromScript = redis.NewScript(`
local amount = tonumber(ARGV[1])

local allowance = tonumber(redis.call('GET', KEYS[1]) or '0')
if allowance < amount then
	return -1
end

local balance = tonumber(redis.call('GET', KEYS[2]) or '0')
if balance < amount then
	return 0
end

redis.call('DECRBY', KEYS[1], amount)
redis.call('DECRBY', KEYS[2], amount)
redis.call('INCRBY', KEYS[3], amount)
return 1
`)

// RedisLedger implements the currency ledger on Redis. Balances and
// allowances are plain counters; the funds/allowance checks and the moves run
// inside Lua scripts so a transfer is atomic under concurrent callers.
type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func (l *RedisLedger) BalanceOf(ctx context.Context, owner string) (uint64, error) {
	val, err := l.client.Get(ctx, balanceKeyPrefix+owner).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return val, nil
}

func (l *RedisLedger) Mint(ctx context.Context, to string, amount uint64) error {
	return l.client.IncrBy(ctx, balanceKeyPrefix+to, int64(amount)).Err()
}

func (l *RedisLedger) Approve(ctx context.Context, owner, spender string, amount uint64) error {
	return l.client.Set(ctx, allowanceKey(owner, spender), amount, 0).Err()
}

func (l *RedisLedger) Allowance(ctx context.Context, owner, spender string) (uint64, error) {
	val, err := l.client.Get(ctx, allowanceKey(owner, spender)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get allowance: %w", err)
	}
	return val, nil
}

func (l *RedisLedger) Transfer(ctx context.Context, from, to string, amount uint64) error {
	keys := []string{balanceKeyPrefix + from, balanceKeyPrefix + to}
	result, err := transferScript.Run(ctx, l.client, keys, amount).Int()
	if err != nil {
		return fmt.Errorf("run transfer script: %w", err)
	}
	if result == 0 {
		return port.ErrInsufficientFunds
	}
	return nil
}

func (l *RedisLedger) TransferFrom(ctx context.Context, spender, from, to string, amount uint64) error {
	keys := []string{
		allowanceKey(from, spender),
		balanceKeyPrefix + from,
		balanceKeyPrefix + to,
	}
	result, err := transferFromScript.Run(ctx, l.client, keys, amount).Int()
	if err != nil {
		return fmt.Errorf("run transfer-from script: %w", err)
	}
	switch result {
	case -1:
		return port.ErrInsufficientAllowance
	case 0:
		return port.ErrInsufficientFunds
	}
	return nil
}

func allowanceKey(owner, spender string) string {
	return allowanceKeyPrefix + owner + ":" + spender
}
