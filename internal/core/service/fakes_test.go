package service

import (
	"context"
	"sync"
	"testing"

	"github.com/avolkov/tokenmarket/internal/core/domain"
	"github.com/avolkov/tokenmarket/internal/port"
)

const market = "market"

// Mock ItemRegistry
type fakeRegistry struct {
	mu           sync.Mutex
	holdings     map[uint64]map[string]uint64
	approvals    map[string]map[string]bool
	minters      map[string]bool
	uris         map[uint64]string
	nextUnique   uint64
	nextFungible uint64
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		holdings:  make(map[uint64]map[string]uint64),
		approvals: make(map[string]map[string]bool),
		minters:   make(map[string]bool),
		uris:      make(map[uint64]string),
	}
}

func (r *fakeRegistry) credit(tokenID uint64, owner string, qty uint64) {
	if r.holdings[tokenID] == nil {
		r.holdings[tokenID] = make(map[string]uint64)
	}
	r.holdings[tokenID][owner] += qty
}

func (r *fakeRegistry) MintUnique(ctx context.Context, owner, uri string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokenID := domain.UniqueFlag | r.nextUnique
	r.nextUnique++
	r.uris[tokenID] = uri
	r.credit(tokenID, owner, 1)
	return tokenID, nil
}

func (r *fakeRegistry) MintFungible(ctx context.Context, owner, uri string, amount uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokenID := r.nextFungible
	r.nextFungible++
	r.uris[tokenID] = uri
	r.credit(tokenID, owner, amount)
	return tokenID, nil
}

func (r *fakeRegistry) Transfer(ctx context.Context, operator, from, to string, tokenID, qty uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if operator != from && !r.approvals[from][operator] {
		return port.ErrNotAuthorized
	}
	if _, ok := r.uris[tokenID]; !ok {
		return port.ErrUnknownToken
	}
	if r.holdings[tokenID][from] < qty {
		return port.ErrInsufficientBalance
	}
	r.holdings[tokenID][from] -= qty
	r.credit(tokenID, to, qty)
	return nil
}

func (r *fakeRegistry) BalanceOf(ctx context.Context, owner string, tokenID uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.holdings[tokenID][owner], nil
}

func (r *fakeRegistry) SetApprovalForAll(ctx context.Context, owner, operator string, approved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.approvals[owner] == nil {
		r.approvals[owner] = make(map[string]bool)
	}
	r.approvals[owner][operator] = approved
	return nil
}

func (r *fakeRegistry) IsApprovedForAll(ctx context.Context, owner, operator string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.approvals[owner][operator], nil
}

func (r *fakeRegistry) GrantMinterRole(ctx context.Context, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.minters[addr] = true
	return nil
}

func (r *fakeRegistry) IsMinter(ctx context.Context, addr string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minters[addr], nil
}

// Mock CurrencyLedger
type fakeLedger struct {
	mu         sync.Mutex
	balances   map[string]uint64
	allowances map[string]map[string]uint64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances:   make(map[string]uint64),
		allowances: make(map[string]map[string]uint64),
	}
}

func (l *fakeLedger) BalanceOf(ctx context.Context, owner string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[owner], nil
}

func (l *fakeLedger) Mint(ctx context.Context, to string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[to] += amount
	return nil
}

func (l *fakeLedger) Approve(ctx context.Context, owner, spender string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[string]uint64)
	}
	l.allowances[owner][spender] = amount
	return nil
}

func (l *fakeLedger) Allowance(ctx context.Context, owner, spender string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[owner][spender], nil
}

func (l *fakeLedger) Transfer(ctx context.Context, from, to string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[from] < amount {
		return port.ErrInsufficientFunds
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *fakeLedger) TransferFrom(ctx context.Context, spender, from, to string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.allowances[from][spender] < amount {
		return port.ErrInsufficientAllowance
	}
	if l.balances[from] < amount {
		return port.ErrInsufficientFunds
	}
	l.allowances[from][spender] -= amount
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *fakeLedger) total() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var sum uint64
	for _, b := range l.balances {
		sum += b
	}
	return sum
}

// Mock MarketRepository
type fakeRepo struct {
	mu       sync.Mutex
	listings map[uint64]domain.Listing
	auctions map[uint64]domain.Auction
	sales    []domain.Sale
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		listings: make(map[uint64]domain.Listing),
		auctions: make(map[uint64]domain.Auction),
	}
}

func (r *fakeRepo) GetListing(ctx context.Context, tokenID uint64) (*domain.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[tokenID]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (r *fakeRepo) PutListing(ctx context.Context, listing domain.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings[listing.TokenID] = listing
	return nil
}

func (r *fakeRepo) GetAuction(ctx context.Context, tokenID uint64) (*domain.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[tokenID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *fakeRepo) PutAuction(ctx context.Context, auction domain.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions[auction.TokenID] = auction
	return nil
}

func (r *fakeRepo) RecordSale(ctx context.Context, sale domain.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sales = append(r.sales, sale)
	return nil
}

// Test fixture wiring the engines against the fakes.
type marketFixture struct {
	registry *fakeRegistry
	ledger   *fakeLedger
	repo     *fakeRepo
	listings *ListingService
	auctions *AuctionService
}

func newFixture() *marketFixture {
	registry := newFakeRegistry()
	ledger := newFakeLedger()
	repo := newFakeRepo()
	return &marketFixture{
		registry: registry,
		ledger:   ledger,
		repo:     repo,
		listings: NewListingService(registry, ledger, repo, market),
		auctions: NewAuctionService(registry, ledger, repo, market, AuctionDuration, MinBidCount),
	}
}

// mintNFT mints a unique item for owner and approves the marketplace as
// operator, the setup every listing/auction flow needs.
func (f *marketFixture) mintNFT(t *testing.T, owner string) uint64 {
	t.Helper()

	tokenID, err := f.registry.MintUnique(context.Background(), owner, "ipfs://item")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if err := f.registry.SetApprovalForAll(context.Background(), owner, market, true); err != nil {
		t.Fatalf("approval failed: %v", err)
	}
	return tokenID
}

func (f *marketFixture) itemHolder(t *testing.T, tokenID uint64, owner string) uint64 {
	t.Helper()

	qty, err := f.registry.BalanceOf(context.Background(), owner, tokenID)
	if err != nil {
		t.Fatalf("balance query failed: %v", err)
	}
	return qty
}

func (f *marketFixture) cash(t *testing.T, owner string) uint64 {
	t.Helper()

	balance, err := f.ledger.BalanceOf(context.Background(), owner)
	if err != nil {
		t.Fatalf("cash query failed: %v", err)
	}
	return balance
}
