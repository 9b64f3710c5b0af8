package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/avolkov/tokenmarket/internal/core/service"
	"github.com/avolkov/tokenmarket/internal/port"
)

// HTTPHandler exposes the marketplace over JSON. Caller identity travels in
// the request body; there is no authentication layer here, the engines treat
// the supplied address as the acting participant.
type HTTPHandler struct {
	listings *service.ListingService
	auctions *service.AuctionService
	items    *service.ItemService
	registry port.ItemRegistry
	ledger   port.CurrencyLedger
}

func NewHTTPHandler(
	listings *service.ListingService,
	auctions *service.AuctionService,
	items *service.ItemService,
	registry port.ItemRegistry,
	ledger port.CurrencyLedger,
) *HTTPHandler {
	return &HTTPHandler{
		listings: listings,
		auctions: auctions,
		items:    items,
		registry: registry,
		ledger:   ledger,
	}
}

// Register wires all routes onto the router.
func (h *HTTPHandler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/api/config", h.MarketConfig).Methods(http.MethodGet)

	r.HandleFunc("/api/items/unique", h.CreateUnique).Methods(http.MethodPost)
	r.HandleFunc("/api/items/fungible", h.CreateFungible).Methods(http.MethodPost)
	r.HandleFunc("/api/items/approvals", h.SetApproval).Methods(http.MethodPost)
	r.HandleFunc("/api/items/{tokenId}/balance", h.ItemBalance).Methods(http.MethodGet)
	r.HandleFunc("/api/minters", h.GrantMinter).Methods(http.MethodPost)

	r.HandleFunc("/api/currency/mint", h.MintCurrency).Methods(http.MethodPost)
	r.HandleFunc("/api/currency/approvals", h.ApproveCurrency).Methods(http.MethodPost)
	r.HandleFunc("/api/currency/balance", h.CurrencyBalance).Methods(http.MethodGet)

	r.HandleFunc("/api/listings", h.CreateListing).Methods(http.MethodPost)
	r.HandleFunc("/api/listings/{tokenId}", h.GetListing).Methods(http.MethodGet)
	r.HandleFunc("/api/listings/{tokenId}/cancel", h.CancelListing).Methods(http.MethodPost)
	r.HandleFunc("/api/listings/{tokenId}/buy", h.Buy).Methods(http.MethodPost)

	r.HandleFunc("/api/auctions", h.OpenAuction).Methods(http.MethodPost)
	r.HandleFunc("/api/auctions/{tokenId}", h.GetAuction).Methods(http.MethodGet)
	r.HandleFunc("/api/auctions/{tokenId}/bids", h.PlaceBid).Methods(http.MethodPost)
	r.HandleFunc("/api/auctions/{tokenId}/finish", h.FinishAuction).Methods(http.MethodPost)
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type mintItemRequest struct {
	Caller string `json:"caller"`
	Owner  string `json:"owner"`
	URI    string `json:"uri"`
	Amount uint64 `json:"amount,omitempty"`
}

type mintItemResponse struct {
	TokenID uint64 `json:"token_id"`
}

type approvalRequest struct {
	Owner    string `json:"owner"`
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

type currencyMintRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type currencyApproveRequest struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  uint64 `json:"amount"`
}

type createListingRequest struct {
	Seller  string `json:"seller"`
	TokenID uint64 `json:"token_id"`
	Price   uint64 `json:"price"`
}

type callerRequest struct {
	Caller string `json:"caller"`
}

type buyRequest struct {
	Buyer string `json:"buyer"`
}

type openAuctionRequest struct {
	Seller     string `json:"seller"`
	TokenID    uint64 `json:"token_id"`
	StartPrice uint64 `json:"start_price"`
}

type bidRequest struct {
	Bidder string `json:"bidder"`
	Amount uint64 `json:"amount"`
}

type listingResponse struct {
	TokenID uint64 `json:"token_id"`
	Price   uint64 `json:"price"`
	Seller  string `json:"seller"`
	Active  bool   `json:"active"`
}

type auctionResponse struct {
	TokenID       uint64 `json:"token_id"`
	Seller        string `json:"seller"`
	HighestBidder string `json:"highest_bidder"`
	HighestBid    uint64 `json:"highest_bid"`
	BidCount      uint32 `json:"bid_count"`
	Active        bool   `json:"active"`
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) MarketConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{
		"min_bid_count":            uint64(h.auctions.MinBids()),
		"auction_duration_seconds": uint64(h.auctions.Duration().Seconds()),
	})
}

func (h *HTTPHandler) CreateUnique(w http.ResponseWriter, r *http.Request) {
	var req mintItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Caller == "" || req.Owner == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tokenID, err := h.items.CreateUnique(r.Context(), req.Caller, req.Owner, req.URI)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mintItemResponse{TokenID: tokenID})
}

func (h *HTTPHandler) CreateFungible(w http.ResponseWriter, r *http.Request) {
	var req mintItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Caller == "" || req.Owner == "" || req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tokenID, err := h.items.CreateFungible(r.Context(), req.Caller, req.Owner, req.URI, req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mintItemResponse{TokenID: tokenID})
}

func (h *HTTPHandler) GrantMinter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.items.GrantMinter(r.Context(), req.Address); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "minter role granted"})
}

func (h *HTTPHandler) SetApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Owner == "" || req.Operator == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.registry.SetApprovalForAll(r.Context(), req.Owner, req.Operator, req.Approved); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "approval updated"})
}

func (h *HTTPHandler) ItemBalance(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := tokenIDVar(w, r)
	if !ok {
		return
	}
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "missing owner")
		return
	}

	qty, err := h.registry.BalanceOf(r.Context(), owner, tokenID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"balance": qty})
}

func (h *HTTPHandler) MintCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyMintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" || req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.ledger.Mint(r.Context(), req.To, req.Amount); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "currency minted"})
}

func (h *HTTPHandler) ApproveCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Owner == "" || req.Spender == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.ledger.Approve(r.Context(), req.Owner, req.Spender, req.Amount); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "allowance set"})
}

func (h *HTTPHandler) CurrencyBalance(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "missing owner")
		return
	}

	balance, err := h.ledger.BalanceOf(r.Context(), owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"balance": balance})
}

func (h *HTTPHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Seller == "" || req.TokenID == 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.listings.List(r.Context(), req.Seller, req.TokenID, req.Price); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, statusResponse{Success: true, Message: "listing created"})
}

func (h *HTTPHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := tokenIDVar(w, r)
	if !ok {
		return
	}

	listing, err := h.listings.GetListing(r.Context(), tokenID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listingResponse{
		TokenID: listing.TokenID,
		Price:   listing.Price,
		Seller:  listing.Seller,
		Active:  listing.Active(),
	})
}

func (h *HTTPHandler) CancelListing(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := tokenIDVar(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Caller == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.listings.Cancel(r.Context(), req.Caller, tokenID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "listing cancelled"})
}

func (h *HTTPHandler) Buy(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := tokenIDVar(w, r)
	if !ok {
		return
	}
	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Buyer == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.listings.Buy(r.Context(), req.Buyer, tokenID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "item purchased"})
}

func (h *HTTPHandler) OpenAuction(w http.ResponseWriter, r *http.Request) {
	var req openAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Seller == "" || req.TokenID == 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.auctions.Open(r.Context(), req.Seller, req.TokenID, req.StartPrice); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, statusResponse{Success: true, Message: "auction opened"})
}

func (h *HTTPHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := tokenIDVar(w, r)
	if !ok {
		return
	}

	auction, err := h.auctions.GetAuction(r.Context(), tokenID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auctionResponse{
		TokenID:       auction.TokenID,
		Seller:        auction.Seller,
		HighestBidder: auction.HighestBidder,
		HighestBid:    auction.HighestBid,
		BidCount:      auction.BidCount,
		Active:        auction.Active(),
	})
}

func (h *HTTPHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := tokenIDVar(w, r)
	if !ok {
		return
	}
	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Bidder == "" || req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.auctions.Bid(r.Context(), req.Bidder, tokenID, req.Amount); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "bid accepted"})
}

func (h *HTTPHandler) FinishAuction(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := tokenIDVar(w, r)
	if !ok {
		return
	}

	if err := h.auctions.Finish(r.Context(), tokenID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "auction finished"})
}

func tokenIDVar(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	tokenID, err := strconv.ParseUint(mux.Vars(r)["tokenId"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return 0, false
	}
	return tokenID, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, service.ErrDuplicateListing), errors.Is(err, service.ErrDuplicateAuction):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrNoSuchListing), errors.Is(err, service.ErrNoSuchAuction),
		errors.Is(err, service.ErrNotOwnerOrNoListing), errors.Is(err, port.ErrUnknownToken):
		// Cancel by a non-seller deliberately looks like a missing listing.
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrInsufficientBidIncrease), errors.Is(err, service.ErrFungibleToken),
		errors.Is(err, service.ErrAuctionStillRunning):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, port.ErrInsufficientFunds), errors.Is(err, port.ErrInsufficientAllowance):
		status, message = http.StatusPaymentRequired, err.Error()
	case errors.Is(err, port.ErrNotAuthorized), errors.Is(err, port.ErrNotMinter):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, port.ErrInsufficientBalance):
		status, message = http.StatusConflict, err.Error()
	}

	writeError(w, status, message)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, statusResponse{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
