package tally

import (
	"context"
	"fmt"
	"log"

	"github.com/lvdashuaibi/livevote/internal/model"
)

// Ledger is the read side of the vote store the engine aggregates.
type Ledger interface {
	CountByOption(ctx context.Context) (map[string]int, error)
}

// Cache holds a precomputed tally. Cache failures are logged and
// swallowed; the ledger is always able to answer.
type Cache interface {
	GetTally(ctx context.Context) (model.Tally, bool, error)
	SetTally(ctx context.Context, tally model.Tally) error
}

// Engine derives the current tally from the ledger. The tally is never
// stored as mutable state of its own: writers call Refresh after a
// commit and readers recompute (or hit the cache) on demand.
type Engine struct {
	ledger Ledger
	cache  Cache
}

// NewEngine builds an engine over the ledger. cache may be nil.
func NewEngine(ledger Ledger, cache Cache) *Engine {
	return &Engine{ledger: ledger, cache: cache}
}

// Compute returns the current tally, zero-filled over the full fixed
// option set. Reads through the cache when one is configured.
func (e *Engine) Compute(ctx context.Context) (model.Tally, error) {
	if e.cache != nil {
		cached, hit, err := e.cache.GetTally(ctx)
		if err != nil {
			log.Printf("tally cache read failed: %v", err)
		} else if hit {
			return cached, nil
		}
	}

	return e.Refresh(ctx)
}

// Refresh recomputes the tally from the ledger and overwrites the
// cache. Called after every committed vote and on cache misses.
func (e *Engine) Refresh(ctx context.Context) (model.Tally, error) {
	counts, err := e.ledger.CountByOption(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate ledger: %w", err)
	}

	tally := make(model.Tally, len(model.Options))
	for _, option := range model.Options {
		tally[option] = counts[option]
	}

	if e.cache != nil {
		if err := e.cache.SetTally(ctx, tally); err != nil {
			log.Printf("tally cache write failed: %v", err)
		}
	}

	return tally, nil
}

// Leaders returns every option holding the maximum count, in fixed
// option order. More than one entry means a tie; callers must surface
// it as such rather than picking a winner.
func Leaders(tally model.Tally) []string {
	max := 0
	for _, option := range model.Options {
		if tally[option] > max {
			max = tally[option]
		}
	}

	var leaders []string
	for _, option := range model.Options {
		if tally[option] == max {
			leaders = append(leaders, option)
		}
	}
	return leaders
}

// Total returns the number of votes across all options.
func Total(tally model.Tally) int {
	sum := 0
	for _, count := range tally {
		sum += count
	}
	return sum
}
