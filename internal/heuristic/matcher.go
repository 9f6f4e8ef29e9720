// Package heuristic implements local command resolution by text similarity:
// the offline alternative to remote interpretation, used when the client is
// configured for heuristic processing.
//
// Matching is a two-stage procedure:
//
//  1. Cache probe: the normalized input is looked up in a bounded FIFO cache
//     of previous results. A hit returns immediately with no similarity
//     computation.
//
//  2. Similarity search: each known command pair is scored with normalized
//     Levenshtein similarity (1 − distance/maxLen). Pairs whose length ratio
//     is below 0.3 are clearly dissimilar and skipped without computing the
//     distance; the search stops early once a candidate reaches 0.98.
//
// The best candidate must reach a 0.3 similarity floor, otherwise the match
// fails with a [*NoMatchError] carrying the best score observed — a normal
// negative result, not a fault.
package heuristic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/parley-voice/parley/internal/history"
)

const (
	// similarityFloor is the minimum similarity for a match to be accepted.
	similarityFloor = 0.3

	// lengthRatioFloor short-circuits pairs whose lengths differ too much to
	// ever reach the similarity floor.
	lengthRatioFloor = 0.3

	// earlyExitSimilarity stops the search once a near-perfect match is found.
	earlyExitSimilarity = 0.98

	// cacheSimilarity is the minimum similarity for a result to be cached.
	cacheSimilarity = 0.7

	// defaultCacheSize bounds the result cache when the config leaves it zero.
	defaultCacheSize = 100
)

// ErrNoSimilarCommand is the sentinel matched by errors.Is when no history
// entry reaches the similarity floor.
var ErrNoSimilarCommand = errors.New("no similar command found")

// NoMatchError reports a failed match together with the best similarity
// observed, so the user can see how close the nearest command was.
type NoMatchError struct {
	// BestSimilarity is the highest score any history entry reached.
	BestSimilarity float64
}

// Error implements the error interface.
func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no similar command found (best similarity %.2f)", e.BestSimilarity)
}

// Unwrap makes errors.Is(err, ErrNoSimilarCommand) work.
func (e *NoMatchError) Unwrap() error { return ErrNoSimilarCommand }

// ActionExecutor runs the action paired with a matched command. It is the
// matcher's only collaborator with side effects; everything else is a pure
// decision procedure over externally supplied data.
type ActionExecutor interface {
	// Execute performs the action and returns a human-readable result.
	Execute(ctx context.Context, action history.ActionDescriptor) (string, error)
}

// ExecFunc adapts a function to the [ActionExecutor] interface.
type ExecFunc func(ctx context.Context, action history.ActionDescriptor) (string, error)

// Execute implements [ActionExecutor].
func (f ExecFunc) Execute(ctx context.Context, action history.ActionDescriptor) (string, error) {
	return f(ctx, action)
}

// Result is a successful match.
type Result struct {
	// Pair is the matched history entry.
	Pair history.CommandPair

	// Similarity is the normalized Levenshtein score in [0, 1].
	Similarity float64

	// ExecutionResult is the action executor's report.
	ExecutionResult string
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithCacheSize bounds the result cache. Values ≤ 0 fall back to the default.
func WithCacheSize(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.cache = newFIFOCache(n)
		}
	}
}

// WithLookupObserver registers a callback invoked for every cache probe,
// reporting whether it hit. Used to feed metrics without coupling the matcher
// to an instrumentation backend.
func WithLookupObserver(fn func(hit bool)) Option {
	return func(m *Matcher) {
		m.onLookup = fn
	}
}

// Matcher resolves spoken commands against the command history.
// All methods are safe for concurrent use.
type Matcher struct {
	store    history.Store
	exec     ActionExecutor
	onLookup func(hit bool)

	mu     sync.Mutex
	cache  *fifoCache
	hits   int64
	misses int64
}

// New creates a [Matcher] over the given history store and action executor.
func New(store history.Store, exec ActionExecutor, opts ...Option) *Matcher {
	m := &Matcher{
		store: store,
		exec:  exec,
		cache: newFIFOCache(defaultCacheSize),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match resolves input to the most similar known command and executes its
// action. A repeated input returns the identical cached result without
// recomputation, as long as no eviction happened in between.
func (m *Matcher) Match(ctx context.Context, input string) (*Result, error) {
	norm := Normalize(input)
	if norm == "" {
		return nil, &NoMatchError{}
	}

	m.mu.Lock()
	if res, ok := m.cache.get(norm); ok {
		m.hits++
		m.mu.Unlock()
		m.observeLookup(true)
		return res, nil
	}
	m.misses++
	m.mu.Unlock()
	m.observeLookup(false)

	pairs, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("heuristic: load history: %w", err)
	}

	var (
		best     history.CommandPair
		bestSim  float64
		bestSeen bool
	)
	for _, pair := range pairs {
		sim := Similarity(norm, Normalize(pair.UserCommand))
		if !bestSeen || sim > bestSim {
			best, bestSim, bestSeen = pair, sim, true
		}
		if sim >= earlyExitSimilarity {
			break
		}
	}

	if !bestSeen || bestSim < similarityFloor {
		return nil, &NoMatchError{BestSimilarity: bestSim}
	}

	execResult, err := m.exec.Execute(ctx, best.Action)
	if err != nil {
		return nil, fmt.Errorf("heuristic: execute %q: %w", best.Action.Name, err)
	}

	res := &Result{Pair: best, Similarity: bestSim, ExecutionResult: execResult}
	if bestSim > cacheSimilarity {
		m.mu.Lock()
		m.cache.put(norm, res)
		m.mu.Unlock()
	}
	return res, nil
}

func (m *Matcher) observeLookup(hit bool) {
	if m.onLookup != nil {
		m.onLookup(hit)
	}
}

// CacheStats reports cache probe counts since construction.
func (m *Matcher) CacheStats() (hits, misses int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses
}

// Normalize lowercases, trims, strips punctuation, and collapses runs of
// whitespace, so "Open Settings!" and "open settings" compare equal.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Similarity scores two normalized strings in [0, 1] using edit distance:
// 1 − levenshtein(a, b) / max(runes(a), runes(b)). Lengths are counted in
// runes to match the rune-based distance. Strings whose lengths differ by
// more than the ratio floor score 0 without computing the distance.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		if la == lb {
			return 1
		}
		return 0
	}
	shorter, longer := la, lb
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	if float64(shorter)/float64(longer) < lengthRatioFloor {
		return 0
	}
	dist := matchr.Levenshtein(a, b)
	return 1 - float64(dist)/float64(longer)
}
