package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/fxrates"
)

// ExitCodeGaps is returned by fx validate when a required rate is missing.
const ExitCodeGaps = 10

// CurrencySource lists the currencies a revaluation needs rates for.
type CurrencySource interface {
	RequiredCurrencies(ctx context.Context) (string, []string, error)
}

// FXOpsCLI offers operational helpers around the exchange rate store.
type FXOpsCLI struct {
	currencies CurrencySource
	rates      fxrates.RateLookup
}

// NewFXOpsCLI constructs a new helper instance. currencies may be nil when
// every validation names its pairs explicitly.
func NewFXOpsCLI(currencies CurrencySource, rates fxrates.RateLookup) (*FXOpsCLI, error) {
	if rates == nil {
		return nil, errors.New("fx cli: rate lookup required")
	}
	return &FXOpsCLI{currencies: currencies, rates: rates}, nil
}

// FXValidateOptions defines available flags for the fx validate command.
type FXValidateOptions struct {
	Date       string
	Pairs      []string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// FXValidateSummary describes the JSON response for fx validate.
type FXValidateSummary struct {
	OK        bool                       `json:"ok"`
	Date      string                     `json:"date"`
	Gaps      []string                   `json:"gaps"`
	Available []FXValidationAvailability `json:"available"`
}

// FXValidationAvailability reports the rate a pair would use.
type FXValidationAvailability struct {
	Pair     string `json:"pair"`
	Rate     string `json:"rate"`
	RateDate string `json:"rate_date"`
}

// ValidateCommand executes the fx validate workflow, prints the outcome and
// returns the process exit code.
func (c *FXOpsCLI) ValidateCommand(ctx context.Context, opts FXValidateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(opts.Date))
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx validate: invalid date %q (expected YYYY-MM-DD)\n", opts.Date)
		return 1
	}
	pairs, err := c.pairs(ctx, opts.Pairs)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx validate: %v\n", err)
		return 1
	}
	coverage, err := fxrates.Validate(ctx, c.rates, date, pairs)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx validate: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(buildValidateSummary(coverage)); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "fx validate: encode json: %v\n", err)
			return 1
		}
	} else {
		renderValidateHuman(opts.Stdout, coverage)
	}
	if coverage.HasGaps() {
		return ExitCodeGaps
	}
	return 0
}

// pairs parses explicit FROM/TO pairs or, without any, derives every
// foreign currency to the functional currency.
func (c *FXOpsCLI) pairs(ctx context.Context, raw []string) ([]fxrates.Pair, error) {
	if len(raw) > 0 {
		out := make([]fxrates.Pair, 0, len(raw))
		for _, item := range raw {
			from, to, ok := strings.Cut(strings.TrimSpace(item), "/")
			if !ok || from == "" || to == "" {
				return nil, fmt.Errorf("invalid pair %q (expected FROM/TO)", item)
			}
			out = append(out, fxrates.Pair{From: from, To: to})
		}
		return out, nil
	}
	if c.currencies == nil {
		return nil, errors.New("no pairs given and open positions are unavailable")
	}
	functional, codes, err := c.currencies.RequiredCurrencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("load open positions: %w", err)
	}
	out := make([]fxrates.Pair, 0, len(codes))
	for _, code := range codes {
		if strings.EqualFold(code, functional) {
			continue
		}
		out = append(out, fxrates.Pair{From: code, To: functional})
	}
	return out, nil
}

func buildValidateSummary(coverage fxrates.Coverage) FXValidateSummary {
	gaps := make([]string, 0, len(coverage.Gaps))
	for _, gap := range coverage.Gaps {
		gaps = append(gaps, gap.String())
	}
	available := make([]FXValidationAvailability, 0, len(coverage.Available))
	for pair, rate := range coverage.Available {
		available = append(available, FXValidationAvailability{
			Pair:     pair,
			Rate:     rate.Rate.String(),
			RateDate: rate.Date.Format(time.DateOnly),
		})
	}
	sort.Slice(available, func(i, j int) bool { return available[i].Pair < available[j].Pair })
	return FXValidateSummary{
		OK:        len(gaps) == 0,
		Date:      coverage.Date.Format(time.DateOnly),
		Gaps:      gaps,
		Available: available,
	}
}

func renderValidateHuman(out io.Writer, coverage fxrates.Coverage) {
	_, _ = fmt.Fprintf(out, "FX validation for %s: %d pair(s) checked\n", coverage.Date.Format(time.DateOnly), coverage.Checked)
	if !coverage.HasGaps() {
		_, _ = fmt.Fprintln(out, "All required FX rates are present.")
	} else {
		_, _ = fmt.Fprintf(out, "%d gap(s) detected:\n", len(coverage.Gaps))
		for _, gap := range coverage.Gaps {
			_, _ = fmt.Fprintf(out, " - %s missing\n", gap)
		}
	}
	summary := buildValidateSummary(coverage)
	for _, a := range summary.Available {
		_, _ = fmt.Fprintf(out, " - %s %s (as of %s)\n", a.Pair, a.Rate, a.RateDate)
	}
}
