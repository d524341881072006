// Package extract turns a rendered page into a rates.Snapshot.
//
// The retailer's markup changes often, so extraction runs an ordered list of
// strategies and keeps the result of the first one that recognises anything.
package extract

import (
	"errors"
	"regexp"
	"strings"

	"github.com/test7679/gold-rate-alert/internal/fetcher"
	"github.com/test7679/gold-rate-alert/internal/rates"
)

// ErrNoRates means the page loaded but no strategy recognised a rate.
var ErrNoRates = errors.New("no recognised gold or silver rate on page")

const (
	StrategyStructured = "structured"
	StrategyTextScan   = "text-scan"
	StrategyLoose      = "loose"
)

const maxLooseDigits = 6

// DefaultItemSelectors target the dropdown list that carries the rates.
var DefaultItemSelectors = []string{"li a"}

var (
	goldPattern   = regexp.MustCompile(`Gold Price\s*(\d{2})\s*KT\s*/\s*1\s*g\s*(?:₹|Rs\.?|INR)?\s*([^\s<]+)`)
	silverPattern = regexp.MustCompile(`Silver Price\s*(?:/\s*1\s*g\s*)?(?:₹|Rs\.?|INR)?\s*([^\s<]+)`)
	// the price token runs to the next blank or tag so "11250.75" is seen whole and rejected
	loosePattern  = regexp.MustCompile(`\b(24|22|18)\s*(?i:K(?:T|arat)?)\b[\s\S]{0,80}?(?:[\s>:=₹-]|Rs\.?|INR)(\d{4,6}[^\s<]*)`)
)

// Strategy is a pure extraction attempt over a page.
type Strategy struct {
	Name    string
	Extract func(page *fetcher.Page) rates.Snapshot
}

// Result is the snapshot together with the strategy that produced it.
type Result struct {
	Snapshot rates.Snapshot
	Strategy string
}

// Extractor applies strategies in priority order.
type Extractor struct {
	strategies []Strategy
}

// New builds the default strategy chain. Item selectors default to DefaultItemSelectors.
func New(itemSelectors []string) *Extractor {
	if len(itemSelectors) == 0 {
		itemSelectors = DefaultItemSelectors
	}
	return NewWithStrategies(
		Strategy{Name: StrategyStructured, Extract: structured(itemSelectors)},
		Strategy{Name: StrategyTextScan, Extract: textScan},
		Strategy{Name: StrategyLoose, Extract: loose},
	)
}

// NewWithStrategies builds an extractor over an explicit chain.
func NewWithStrategies(strategies ...Strategy) *Extractor {
	return &Extractor{strategies: strategies}
}

// Extract returns the first non-empty snapshot, or ErrNoRates.
func (e *Extractor) Extract(page *fetcher.Page) (Result, error) {
	if page == nil {
		return Result{}, ErrNoRates
	}
	for _, s := range e.strategies {
		snap := s.Extract(page)
		if !snap.IsEmpty() {
			return Result{Snapshot: snap, Strategy: s.Name}, nil
		}
	}
	return Result{}, ErrNoRates
}

func structured(selectors []string) func(*fetcher.Page) rates.Snapshot {
	return func(page *fetcher.Page) rates.Snapshot {
		b := rates.NewBuilder()
		for _, sel := range selectors {
			for _, item := range page.Query(sel) {
				if !strings.Contains(item, "Gold Price") && !strings.Contains(item, "Silver Price") {
					continue
				}
				scanPriced(b, item)
			}
		}
		return b.Snapshot()
	}
}

func textScan(page *fetcher.Page) rates.Snapshot {
	b := rates.NewBuilder()
	scanPriced(b, corpus(page))
	return b.Snapshot()
}

func loose(page *fetcher.Page) rates.Snapshot {
	b := rates.NewBuilder()
	for _, m := range loosePattern.FindAllStringSubmatch(corpus(page), -1) {
		if len(m[2]) > maxLooseDigits {
			continue
		}
		if key, ok := rates.ParseKey(m[1]); ok {
			b.Add(key, m[2])
		}
	}
	return b.Snapshot()
}

// scanPriced applies the "Gold Price"/"Silver Price" patterns to text.
func scanPriced(b *rates.Builder, text string) {
	for _, m := range goldPattern.FindAllStringSubmatch(text, -1) {
		if key, ok := rates.ParseKey(m[1]); ok {
			b.Add(key, m[2])
		}
	}
	for _, m := range silverPattern.FindAllStringSubmatch(text, -1) {
		b.Add(rates.Silver, m[1])
	}
}

func corpus(page *fetcher.Page) string {
	return page.Text() + "\n" + fetcher.Normalize(page.HTML())
}
