package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"chefcoin-bridge/internal/domain"
	"chefcoin-bridge/internal/settlement"
	"chefcoin-bridge/internal/tax"
)

func withWallet(ctx context.Context, wallet string) context.Context {
	return context.WithValue(ctx, walletKey{}, wallet)
}

func walletFrom(ctx context.Context) string {
	wallet, _ := ctx.Value(walletKey{}).(string)
	return wallet
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("invalid request body: %v", err)))
		return false
	}
	return true
}

type createSwapIntentRequest struct {
	Amount  float64 `json:"amount"`
	Purpose string  `json:"purpose,omitempty"`
}

type createSwapIntentResponse struct {
	IntentID    string        `json:"intentId,omitempty"`
	Transaction string        `json:"transaction"`
	Breakdown   tax.Breakdown `json:"breakdown"`
}

func (s *Server) handleCreateSwapIntent(w http.ResponseWriter, r *http.Request) {
	var req createSwapIntentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.engine.CreateSwapIntent(r.Context(), walletFrom(r.Context()), req.Amount, settlement.Purpose(req.Purpose))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSwapIntentResponse{
		IntentID:    result.IntentID,
		Transaction: result.Transaction,
		Breakdown:   result.Breakdown,
	})
}

type confirmSwapIntentRequest struct {
	IntentID  string `json:"intentId"`
	Signature string `json:"signature"`
}

type confirmSwapIntentResponse struct {
	Balance   int64         `json:"balance"`
	Breakdown tax.Breakdown `json:"breakdown"`
}

func (s *Server) handleConfirmSwapIntent(w http.ResponseWriter, r *http.Request) {
	var req confirmSwapIntentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.IntentID == "" || req.Signature == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("intentId and signature are required"))
		return
	}

	result, err := s.engine.ConfirmSwapIntent(r.Context(), walletFrom(r.Context()), req.IntentID, req.Signature)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, confirmSwapIntentResponse{
		Balance:   result.Balance,
		Breakdown: result.Breakdown,
	})
}

type redeemRequest struct {
	Amount      float64 `json:"amount"`
	Destination string  `json:"destination,omitempty"`
}

type redeemResponse struct {
	Balance   int64         `json:"balance"`
	Signature string        `json:"signature"`
	Breakdown tax.Breakdown `json:"breakdown"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.engine.Redeem(r.Context(), walletFrom(r.Context()), req.Amount, req.Destination)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, redeemResponse{
		Balance:   result.Balance,
		Signature: result.Signature,
		Breakdown: result.Breakdown,
	})
}

type createPurchaseIntentRequest struct {
	ItemID string  `json:"itemId"`
	Price  float64 `json:"price"`
}

type createPurchaseIntentResponse struct {
	IntentID    string `json:"intentId"`
	Transaction string `json:"transaction"`
	Message     string `json:"message"`
}

func (s *Server) handleCreatePurchaseIntent(w http.ResponseWriter, r *http.Request) {
	var req createPurchaseIntentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	wallet := walletFrom(r.Context())
	intent, err := s.engine.CreatePurchaseIntent(r.Context(), wallet, req.ItemID, req.Price)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	// The payment itself rides the swap transfer path, minus the intent.
	payment, err := s.engine.CreateSwapIntent(r.Context(), wallet, req.Price, settlement.PurposePurchase)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createPurchaseIntentResponse{
		IntentID:    intent.IntentID,
		Transaction: payment.Transaction,
		Message:     intent.Message,
	})
}

type confirmPurchaseIntentRequest struct {
	IntentID  string `json:"intentId"`
	Signature string `json:"signature"`
}

type confirmPurchaseIntentResponse struct {
	OwnedItems []string `json:"ownedItems"`
}

func (s *Server) handleConfirmPurchaseIntent(w http.ResponseWriter, r *http.Request) {
	var req confirmPurchaseIntentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.IntentID == "" || req.Signature == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("intentId and signature are required"))
		return
	}

	owned, err := s.engine.ConfirmPurchaseIntent(r.Context(), walletFrom(r.Context()), req.IntentID, req.Signature)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, confirmPurchaseIntentResponse{OwnedItems: owned})
}

type enqueueSwapRequest struct {
	SwapType             string  `json:"swapType"`
	Amount               float64 `json:"amount"`
	TransactionSignature string  `json:"transactionSignature,omitempty"`
}

type swapRequestResponse struct {
	RequestID            string     `json:"requestId"`
	WalletAddress        string     `json:"walletAddress"`
	SwapType             string     `json:"swapType"`
	Amount               int64      `json:"amount"`
	Status               string     `json:"status"`
	TransactionSignature string     `json:"transactionSignature,omitempty"`
	ErrorMessage         string     `json:"errorMessage,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	ProcessedAt          *time.Time `json:"processedAt,omitempty"`
}

func toSwapRequestResponse(req *domain.SwapRequest) swapRequestResponse {
	return swapRequestResponse{
		RequestID:            req.ID,
		WalletAddress:        req.WalletAddress,
		SwapType:             string(req.SwapType),
		Amount:               req.Amount,
		Status:               string(req.Status),
		TransactionSignature: req.TransactionSignature,
		ErrorMessage:         req.ErrorMessage,
		CreatedAt:            req.CreatedAt,
		ProcessedAt:          req.ProcessedAt,
	}
}

func (s *Server) handleEnqueueSwap(w http.ResponseWriter, r *http.Request) {
	var req enqueueSwapRequest
	if !decodeBody(w, r, &req) {
		return
	}

	created, err := s.processor.EnqueueSwap(r.Context(), walletFrom(r.Context()), domain.SwapDirection(req.SwapType), req.Amount, req.TransactionSignature)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, toSwapRequestResponse(created))
}

func (s *Server) handleGetSwapRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.processor.GetSwapRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	// Rows are wallet-scoped; other wallets get the same answer as a
	// missing row.
	if req.WalletAddress != walletFrom(r.Context()) {
		writeJSON(w, http.StatusNotFound, errorBody("swap request not found"))
		return
	}

	writeJSON(w, http.StatusOK, toSwapRequestResponse(req))
}

type refundResponse struct {
	RefundedAmount int64 `json:"refundedAmount"`
	Balance        int64 `json:"balance"`
}

func (s *Server) handleRefundSwapRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := s.processor.GetSwapRequest(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.WalletAddress != walletFrom(r.Context()) {
		writeJSON(w, http.StatusNotFound, errorBody("swap request not found"))
		return
	}

	result, err := s.processor.Refund(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, refundResponse{
		RefundedAmount: result.RefundedAmount,
		Balance:        result.NewBalance,
	})
}

type balanceResponse struct {
	Chefcoins  int64    `json:"chefcoins"`
	OwnedItems []string `json:"ownedItems"`
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	entry, err := s.engine.Balance(r.Context(), walletFrom(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	items := entry.OwnedItems
	if items == nil {
		items = []string{}
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		Chefcoins:  entry.Chefcoins,
		OwnedItems: items,
	})
}
