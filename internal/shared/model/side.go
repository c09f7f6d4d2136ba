package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side é o lado da aposta: BACK aposta a favor do resultado, LAY contra
type Side string

const (
	Back Side = "BACK"
	Lay  Side = "LAY"
)

// Outcome é o resultado previsto (ou real) de uma partida
type Outcome string

const (
	HomeWin Outcome = "HOME_WIN"
	AwayWin Outcome = "AWAY_WIN"
	Draw    Outcome = "DRAW"
)

// MoneyPlaces é a escala usada em todos os valores monetários (NUMERIC(15,2))
const MoneyPlaces = 2

var one = decimal.NewFromInt(1)

func (s Side) Valid() bool { return s == Back || s == Lay }

func (o Outcome) Valid() bool { return o == HomeWin || o == AwayWin || o == Draw }

// Opposite devolve o lado contrário; usado para montar a contra-aposta no matching
func (s Side) Opposite() Side {
	switch s {
	case Back:
		return Lay
	case Lay:
		return Back
	}
	panic(fmt.Sprintf("model: unknown side %q", string(s)))
}

// Liability calcula o máximo que uma posição pode perder.
// BACK arrisca o stake; LAY arrisca stake*(odds-1).
func Liability(side Side, stake, odds decimal.Decimal) decimal.Decimal {
	switch side {
	case Back:
		return stake.Round(MoneyPlaces)
	case Lay:
		return stake.Mul(odds.Sub(one)).Round(MoneyPlaces)
	}
	panic(fmt.Sprintf("model: unknown side %q", string(side)))
}

// CounterLiability é a liability de quem aceita uma aposta do lado `original`:
// o aceitante fica implicitamente do lado oposto.
func CounterLiability(original Side, stake, odds decimal.Decimal) decimal.Decimal {
	return Liability(original.Opposite(), stake, odds)
}

// Wins decide se uma posição ganha dado o previsto e o real.
// BACK ganha se o resultado previsto aconteceu; LAY ganha caso contrário.
func Wins(side Side, predicted, actual Outcome) bool {
	switch side {
	case Back:
		return predicted == actual
	case Lay:
		return predicted != actual
	}
	panic(fmt.Sprintf("model: unknown side %q", string(side)))
}

// PlatformFee calcula a taxa da plataforma sobre o pote e o prêmio líquido do vencedor
func PlatformFee(totalHeld, feePercent decimal.Decimal) (fee, payout decimal.Decimal) {
	fee = totalHeld.Mul(feePercent).Div(decimal.NewFromInt(100)).Round(MoneyPlaces)
	return fee, totalHeld.Sub(fee)
}
