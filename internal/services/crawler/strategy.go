package crawler

import (
	"context"
	"fmt"

	"github.com/ternarybob/pharmyrus/internal/interfaces"
	"github.com/ternarybob/pharmyrus/internal/models"
)

// Strategy is one locator plus extraction function for a field.
// Extract receives every node the locator resolved and reports whether it
// produced a usable value.
type Strategy[T any] struct {
	Name    string
	Locator interfaces.Locator
	Extract func(nodes []interfaces.DOMNode) (T, bool)
}

// Chain is the ordered list of strategies for one logical field.
// Strategies are only ever appended.
type Chain[T any] struct {
	Field      string
	Strategies []Strategy[T]
}

// Match is the outcome of running a chain. Index is 1-based and zero when
// nothing matched.
type Match[T any] struct {
	Value    T
	Found    bool
	Strategy string
	Index    int
	Attempts []models.StrategyAttempt
}

// NewChain creates a chain for field
func NewChain[T any](field string, strategies ...Strategy[T]) *Chain[T] {
	return &Chain[T]{Field: field, Strategies: strategies}
}

// Append adds strategies after the existing ones
func (c *Chain[T]) Append(strategies ...Strategy[T]) *Chain[T] {
	c.Strategies = append(c.Strategies, strategies...)
	return c
}

// Len returns the number of strategies in the chain
func (c *Chain[T]) Len() int {
	return len(c.Strategies)
}

// Run tries each strategy in order and stops at the first match. A strategy
// that errors or panics is recorded as a fault and the chain moves on.
// Finding nothing is not an error.
func (c *Chain[T]) Run(ctx context.Context, page interfaces.PageSession) Match[T] {
	match := Match[T]{Attempts: make([]models.StrategyAttempt, 0, len(c.Strategies))}

	for i, s := range c.Strategies {
		if ctx.Err() != nil {
			break
		}

		value, ok, err := runStrategy(ctx, page, s)
		attempt := models.StrategyAttempt{
			Field:    c.Field,
			Strategy: s.Name,
			Index:    i + 1,
		}

		switch {
		case err != nil:
			attempt.Outcome = models.StrategyFault
			attempt.Detail = err.Error()
		case ok:
			attempt.Outcome = models.StrategyMatched
		default:
			attempt.Outcome = models.StrategyMiss
		}
		match.Attempts = append(match.Attempts, attempt)

		if ok && err == nil {
			match.Value = value
			match.Found = true
			match.Strategy = s.Name
			match.Index = i + 1
			return match
		}
	}

	return match
}

// runStrategy resolves the locator and extracts, converting panics to errors.
func runStrategy[T any](ctx context.Context, page interfaces.PageSession, s Strategy[T]) (value T, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value, ok, err = zero, false, fmt.Errorf("strategy %s panicked: %v", s.Name, r)
		}
	}()

	nodes, err := page.QueryAll(ctx, s.Locator)
	if err != nil {
		var zero T
		return zero, false, err
	}
	if len(nodes) == 0 {
		var zero T
		return zero, false, nil
	}
	value, ok = s.Extract(nodes)
	return value, ok, nil
}
