package fxrates

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// RateLookup is the read side of the rate store.
type RateLookup interface {
	GetRateForDate(ctx context.Context, from, to string, date time.Time) (*ExchangeRate, error)
}

// Coverage summarises which pairs have a usable rate on a date.
type Coverage struct {
	Date      time.Time               `json:"date"`
	Checked   int                     `json:"checked"`
	Gaps      []Pair                  `json:"gaps"`
	Available map[string]ExchangeRate `json:"available"`
}

// HasGaps reports whether any pair lacks a rate.
func (c Coverage) HasGaps() bool { return len(c.Gaps) > 0 }

// Validate checks every pair for a rate on or before date.
func Validate(ctx context.Context, lookup RateLookup, date time.Time, pairs []Pair) (Coverage, error) {
	if lookup == nil {
		return Coverage{}, fmt.Errorf("fxrates: rate lookup required")
	}
	if date.IsZero() {
		return Coverage{}, fmt.Errorf("fxrates: date is required")
	}
	res := Coverage{Date: date, Gaps: make([]Pair, 0), Available: map[string]ExchangeRate{}}
	seen := map[Pair]struct{}{}
	unique := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		n, err := normalizePair(p.From, p.To)
		if err != nil {
			return Coverage{}, err
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		unique = append(unique, n)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].String() < unique[j].String() })
	for _, p := range unique {
		res.Checked++
		rate, err := lookup.GetRateForDate(ctx, p.From, p.To, date)
		if err != nil {
			return Coverage{}, err
		}
		if rate == nil {
			res.Gaps = append(res.Gaps, p)
			continue
		}
		res.Available[p.String()] = *rate
	}
	return res, nil
}
