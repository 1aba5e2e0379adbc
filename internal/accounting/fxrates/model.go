package fxrates

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// ExchangeRate converts one unit of From into To on Date.
type ExchangeRate struct {
	From      string          `json:"from_currency_code"`
	To        string          `json:"to_currency_code"`
	Date      time.Time       `json:"rate_date"`
	Rate      decimal.Decimal `json:"exchange_rate_value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Pair identifies a conversion direction.
type Pair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (p Pair) String() string { return p.From + "/" + p.To }

// NormalizeCode upper-cases code and checks it is a known ISO 4217 currency.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("%w: unknown currency %q", shared.ErrInvalidRate, code)
	}
	return unit.String(), nil
}

func normalizePair(from, to string) (Pair, error) {
	f, err := NormalizeCode(from)
	if err != nil {
		return Pair{}, err
	}
	t, err := NormalizeCode(to)
	if err != nil {
		return Pair{}, err
	}
	return Pair{From: f, To: t}, nil
}
