package model

import (
	"errors"
	"fmt"
)

// Erros de negócio: abortam a transação e voltam para quem chamou
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrContended         = errors.New("bet is being processed by another user, retry")
	ErrAlreadyMatched    = errors.New("bet already matched")
	ErrNoLongerAvailable = errors.New("bet is no longer available")
	ErrMatchStarted      = errors.New("match has already started")
	ErrSelfMatch         = errors.New("cannot accept your own bet")
	ErrNotFound          = errors.New("not found")
	ErrNotSettleable     = errors.New("bet cannot be settled")
	ErrInvalidBet        = errors.New("invalid bet")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// InvariantError indica violação de invariante do ledger (defeito, não erro do usuário).
// Nunca deve ser engolido: quem recebe loga como erro e dispara alerta.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Detail)
}

// Invariant cria um InvariantError formatado
func Invariant(op, format string, args ...any) error {
	return &InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// IsInvariant informa se err (ou algum erro encadeado) é violação de invariante
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// Retryable: só Contended vale a pena repetir sem mudar nada
func Retryable(err error) bool {
	return errors.Is(err, ErrContended)
}

// Code devolve um rótulo curto do erro, usado em métricas e no corpo das respostas HTTP
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case IsInvariant(err):
		return "invariant_violation"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrContended):
		return "contended"
	case errors.Is(err, ErrAlreadyMatched):
		return "already_matched"
	case errors.Is(err, ErrNoLongerAvailable):
		return "no_longer_available"
	case errors.Is(err, ErrMatchStarted):
		return "match_started"
	case errors.Is(err, ErrSelfMatch):
		return "self_match"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotSettleable):
		return "not_settleable"
	case errors.Is(err, ErrInvalidBet):
		return "invalid_bet"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	}
	return "internal"
}
