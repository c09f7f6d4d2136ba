package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
	"github.com/radieske/p2p-bet-exchange/internal/wallet-service/dto"
	"github.com/radieske/p2p-bet-exchange/internal/wallet-service/ledger"
)

// UserHeader é preenchido pelo gateway com o usuário autenticado
const UserHeader = "X-User-ID"

// Wallet define as operações de carteira usadas pelo handler HTTP
type Wallet interface {
	Deposit(ctx context.Context, userID string, amount decimal.Decimal) (ledger.Balance, error)
	Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (ledger.Balance, error)
	Balance(ctx context.Context, userID string) (ledger.Balance, error)
	Transactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error)
}

// Server expõe endpoints HTTP para operações de carteira (wallet)
type Server struct {
	log    *zap.Logger
	wallet Wallet
}

// NewServer instancia o servidor HTTP de wallet
func NewServer(log *zap.Logger, w Wallet) *Server { return &Server{log: log, wallet: w} }

// Router retorna o mux HTTP com as rotas da API de wallet
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /wallet", s.withUser(s.getWallet))
	mux.HandleFunc("POST /wallet/deposit", s.withUser(s.deposit))
	mux.HandleFunc("POST /wallet/withdraw", s.withUser(s.withdraw))
	mux.HandleFunc("GET /wallet/transactions", s.withUser(s.transactions))
	return mux
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (s *Server) withUser(h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := strings.TrimSpace(r.Header.Get(UserHeader))
		if uid == "" {
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "missing " + UserHeader, Code: "unauthenticated"})
			return
		}
		h(w, r, uid)
	}
}

// getWallet retorna o saldo; carteira inexistente aparece zerada
func (s *Server) getWallet(w http.ResponseWriter, r *http.Request, userID string) {
	bal, err := s.wallet.Balance(r.Context(), userID)
	if errors.Is(err, model.ErrNotFound) {
		bal, err = ledger.Balance{}, nil
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, walletResponse(userID, bal))
}

// deposit adiciona saldo à carteira do usuário
func (s *Server) deposit(w http.ResponseWriter, r *http.Request, userID string) {
	s.move(w, r, userID, s.wallet.Deposit)
}

// withdraw só alcança o saldo disponível (fora do escrow)
func (s *Server) withdraw(w http.ResponseWriter, r *http.Request, userID string) {
	s.move(w, r, userID, s.wallet.Withdraw)
}

func (s *Server) move(w http.ResponseWriter, r *http.Request, userID string,
	op func(context.Context, string, decimal.Decimal) (ledger.Balance, error)) {
	var req dto.AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json", Code: "invalid_amount"})
		return
	}
	bal, err := op(r.Context(), userID, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, walletResponse(userID, bal))
}

func (s *Server) transactions(w http.ResponseWriter, r *http.Request, userID string) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid limit", Code: "invalid_amount"})
			return
		}
		limit = n
	}
	txs, err := s.wallet.Transactions(r.Context(), userID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]dto.TransactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, dto.TransactionResponse{
			ID:            t.ID,
			Type:          string(t.Type),
			Amount:        t.Amount,
			BalanceBefore: t.BalanceBefore,
			BalanceAfter:  t.BalanceAfter,
			ReferenceID:   t.ReferenceID,
			Description:   t.Description,
			CreatedAt:     t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func walletResponse(userID string, b ledger.Balance) dto.WalletResponse {
	return dto.WalletResponse{UserID: userID, Balance: b.Balance, EscrowBalance: b.EscrowBalance, Available: b.Available}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case model.IsInvariant(err):
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, model.ErrInvalidAmount):
		status = http.StatusBadRequest
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("wallet request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, dto.ErrorResponse{Error: msg, Code: model.Code(err)})
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
