package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-exchange/internal/bet-service/dto"
	"github.com/radieske/p2p-bet-exchange/internal/bet-service/matching"
	"github.com/radieske/p2p-bet-exchange/internal/bet-service/service"
	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
)

// UserHeader é preenchido pelo gateway com o usuário autenticado
const UserHeader = "X-User-ID"

// Bets é o subconjunto do service usado pelos handlers
type Bets interface {
	CreateBet(ctx context.Context, userID string, cmd service.CreateBetCommand) (service.Created, error)
	CancelBet(ctx context.Context, userID, betID string) (model.Bet, error)
	Available(ctx context.Context, limit int) ([]model.Bet, error)
	UserBets(ctx context.Context, userID string) ([]model.Bet, error)
	Bet(ctx context.Context, id string) (model.Bet, error)
	ByChallenge(ctx context.Context, token string) (model.Bet, error)
}

type Matcher interface {
	AcceptBet(ctx context.Context, userID, betID string) (matching.Result, error)
}

// FeedCache guarda o feed público padrão; nil desliga o cache
type FeedCache interface {
	GetFeed(ctx context.Context, dst any) (bool, error)
	SetFeed(ctx context.Context, v any) error
	Invalidate(ctx context.Context) error
}

type Server struct {
	log   *zap.Logger
	bets  Bets
	match Matcher
	feed  FeedCache
}

func NewServer(log *zap.Logger, b Bets, m Matcher, feed FeedCache) *Server {
	return &Server{log: log, bets: b, match: m, feed: feed}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/bets/available", s.available)
	r.Get("/bets/challenge/{token}", s.challenge)
	r.Get("/bets/{id}", s.getBet)

	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/bets/mine", s.mine)
		r.Post("/bets", s.createBet)
		r.Post("/bets/accept", s.acceptFromBody) // formato antigo: {"betId": ...}
		r.Post("/bets/{id}/accept", s.acceptBet)
		r.Post("/bets/{id}/cancel", s.cancelBet)
	})
	return r
}

type userKey struct{}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := strings.TrimSpace(r.Header.Get(UserHeader))
		if uid == "" {
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "missing " + UserHeader, Code: "unauthenticated"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, uid)))
	})
}

func userID(r *http.Request) string {
	if uid, ok := r.Context().Value(userKey{}).(string); ok {
		return uid
	}
	// rotas públicas: o header é opcional e só decide se o token aparece
	return strings.TrimSpace(r.Header.Get(UserHeader))
}

func (s *Server) createBet(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json", Code: "invalid_bet"})
		return
	}
	public := true
	if req.IsPublic != nil {
		public = *req.IsPublic
	}
	uid := userID(r)
	created, err := s.bets.CreateBet(r.Context(), uid, service.CreateBetCommand{
		MatchID:        req.MatchID,
		MatchTitle:     req.MatchTitle,
		MatchStartTime: req.MatchStartTime,
		Side:           model.Side(strings.ToUpper(req.BetType)),
		Outcome:        model.Outcome(strings.ToUpper(req.Outcome)),
		Odds:           req.Odds,
		Stake:          req.Stake,
		IsPublic:       public,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if public {
		s.invalidateFeed(r.Context())
	}
	writeJSON(w, http.StatusCreated, dto.CreateBetResponse{
		Bet:           dto.BetFromModel(created.Bet, uid),
		ChallengeLink: created.ChallengeLink,
	})
}

func (s *Server) acceptBet(w http.ResponseWriter, r *http.Request) {
	s.accept(w, r, chi.URLParam(r, "id"))
}

func (s *Server) acceptFromBody(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BetID string `json:"betId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BetID == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "betId required", Code: "invalid_bet"})
		return
	}
	s.accept(w, r, req.BetID)
}

func (s *Server) accept(w http.ResponseWriter, r *http.Request, betID string) {
	uid := userID(r)
	res, err := s.match.AcceptBet(r.Context(), uid, betID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.invalidateFeed(r.Context())
	writeJSON(w, http.StatusOK, dto.AcceptBetResponse{
		Bet:        dto.BetFromModel(res.Original, uid),
		MatchedBet: dto.BetFromModel(res.Matched, uid),
		Escrow: dto.EscrowResponse{
			ID:           res.Escrow.ID,
			BackerUserID: res.Escrow.BackerUserID,
			LayerUserID:  res.Escrow.LayerUserID,
			TotalHeld:    res.Escrow.TotalHeld,
			Status:       string(res.Escrow.Status),
		},
	})
}

func (s *Server) cancelBet(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	b, err := s.bets.CancelBet(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.invalidateFeed(r.Context())
	writeJSON(w, http.StatusOK, dto.BetFromModel(b, uid))
}

func (s *Server) available(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid limit", Code: "invalid_bet"})
			return
		}
		limit = n
	}
	// só o feed padrão passa pelo cache
	cacheable := s.feed != nil && (limit <= 0 || limit >= service.DefaultFeedLimit)
	if cacheable {
		var cached []dto.BetResponse
		if ok, err := s.feed.GetFeed(r.Context(), &cached); err == nil && ok {
			writeJSON(w, http.StatusOK, cached)
			return
		} else if err != nil {
			s.log.Warn("feed cache read failed", zap.Error(err))
		}
	}

	bets, err := s.bets.Available(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// o feed é compartilhado: nunca expõe tokens
	out := dto.BetsFromModel(bets, "")
	if cacheable {
		if err := s.feed.SetFeed(r.Context(), out); err != nil {
			s.log.Warn("feed cache write failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) mine(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	bets, err := s.bets.UserBets(r.Context(), uid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BetsFromModel(bets, uid))
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	b, err := s.bets.Bet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BetFromModel(b, userID(r)))
}

func (s *Server) challenge(w http.ResponseWriter, r *http.Request) {
	b, err := s.bets.ByChallenge(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BetFromModel(b, userID(r)))
}

func (s *Server) invalidateFeed(ctx context.Context) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Invalidate(ctx); err != nil {
		s.log.Warn("feed cache invalidate failed", zap.Error(err))
	}
}

// statusOf mapeia a taxonomia de erros do domínio para HTTP
func statusOf(err error) int {
	switch {
	case model.IsInvariant(err):
		return http.StatusInternalServerError
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, model.ErrContended),
		errors.Is(err, model.ErrAlreadyMatched),
		errors.Is(err, model.ErrNoLongerAvailable),
		errors.Is(err, model.ErrNotSettleable):
		return http.StatusConflict
	case errors.Is(err, model.ErrSelfMatch),
		errors.Is(err, model.ErrMatchStarted),
		errors.Is(err, model.ErrInvalidBet),
		errors.Is(err, model.ErrInvalidAmount):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	if errors.Is(err, model.ErrContended) {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, dto.ErrorResponse{Error: msg, Code: model.Code(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
