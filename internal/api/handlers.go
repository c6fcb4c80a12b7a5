package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"parkwell.io/rewards-service/internal/auth"
	"parkwell.io/rewards-service/internal/chat"
	"parkwell.io/rewards-service/internal/store"
	"parkwell.io/rewards-service/internal/wallet"
)

type contextKey string

const userIDKey contextKey = "userID"

type APIHandler struct {
	walletService *wallet.Service
	chatService   *chat.Service
	devLoginUser  string
	devLoginPass  string
}

func NewAPIHandler(ws *wallet.Service, cs *chat.Service, devLoginUser, devLoginPass string) *APIHandler {
	return &APIHandler{
		walletService: ws,
		chatService:   cs,
		devLoginUser:  devLoginUser,
		devLoginPass:  devLoginPass,
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireWalletOwner rejects requests where the token subject does not
// match the wallet owner in the URL.
func (h *APIHandler) requireWalletOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := chi.URLParam(r, "userID")
	tokenUser, _ := r.Context().Value(userIDKey).(string)
	if tokenUser == "" || tokenUser != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return "", false
	}
	return userID, true
}

type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

// LoginHandler is a development stand-in for the external identity
// provider: it exchanges the configured credentials for a bearer token.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if h.devLoginUser == "" || h.devLoginPass == "" {
		http.Error(w, "Login is handled by the identity provider", http.StatusNotImplemented)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.UserID != h.devLoginUser || req.Password != h.devLoginPass {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(req.UserID)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", req.UserID, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (h *APIHandler) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireWalletOwner(w, r)
	if !ok {
		return
	}

	walletRecord, err := h.walletService.GetBalance(userID)
	if err != nil {
		h.writeWalletError(w, userID, "get wallet", err)
		return
	}
	json.NewEncoder(w).Encode(walletRecord)
}

type LedgerOperationRequest struct {
	Amount      int64  `json:"amount"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

type LedgerOperationResponse struct {
	Wallet  *store.Wallet `json:"wallet"`
	Message string        `json:"message"`
}

func (h *APIHandler) EarnHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireWalletOwner(w, r)
	if !ok {
		return
	}

	var req LedgerOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	walletRecord, _, err := h.walletService.Earn(userID, req.Amount, req.Action, req.Description)
	if err != nil {
		h.writeWalletError(w, userID, "earn", err)
		return
	}

	json.NewEncoder(w).Encode(LedgerOperationResponse{
		Wallet:  walletRecord,
		Message: "Coins earned successfully",
	})
}

func (h *APIHandler) SpendHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireWalletOwner(w, r)
	if !ok {
		return
	}

	var req LedgerOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	walletRecord, _, err := h.walletService.Spend(userID, req.Amount, req.Action, req.Description)
	if err != nil {
		h.writeWalletError(w, userID, "spend", err)
		return
	}

	json.NewEncoder(w).Encode(LedgerOperationResponse{
		Wallet:  walletRecord,
		Message: "Coins spent successfully",
	})
}

func (h *APIHandler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireWalletOwner(w, r)
	if !ok {
		return
	}

	limit := wallet.DefaultTransactionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	txns, err := h.walletService.ListTransactions(userID, limit)
	if err != nil {
		h.writeWalletError(w, userID, "list transactions", err)
		return
	}
	if txns == nil {
		txns = []store.Transaction{}
	}
	json.NewEncoder(w).Encode(txns)
}

func (h *APIHandler) writeWalletError(w http.ResponseWriter, userID, op string, err error) {
	switch {
	case errors.Is(err, wallet.ErrInsufficientBalance):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "Insufficient balance"})
	case errors.Is(err, wallet.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Wallet %s failed for user %s: %v", op, userID, err)
		http.Error(w, "Failed to process wallet operation", http.StatusInternalServerError)
	}
}

type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "Message cannot be empty", http.StatusBadRequest)
		return
	}

	replyText, sessionID, err := h.chatService.HandleMessage(r.Context(), req.SessionID, req.Message)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(ChatResponse{
		Response:  replyText,
		SessionID: sessionID,
	})
}

func (h *APIHandler) EndChatHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	h.chatService.EndSession(sessionID)
	w.WriteHeader(http.StatusNoContent)
}
