// Package gate decides whether a content item is worth sending through
// extraction at all, before any job is created or money is spent.
package gate

import (
	"strings"
	"unicode"
)

const (
	defaultMinContentLength = 100
	defaultMaxContentLength = 500000
	defaultMinWords         = 50
)

// Reason explains why the gate rejected a content item.
type Reason string

const (
	ReasonOK             Reason = ""
	ReasonDisabled       Reason = "processing disabled"
	ReasonTooShort       Reason = "content below minimum length"
	ReasonTooLong        Reason = "content above maximum length"
	ReasonTooFewWords    Reason = "content has too few words"
	ReasonNotProse       Reason = "content does not look like prose"
	ReasonBudgetExceeded Reason = "daily cost limit reached"
)

// Gate is a pure predicate over content and the current daily spend. It
// holds only configuration; all inputs arrive per call, so the same gate can
// be shared across queues.
//
// A Gate should be created using NewGate.
type Gate struct {
	enabled        bool
	minLength      int
	maxLength      int
	minWords       int
	dailyCostLimit float64
}

// NewGateParams contains configuration for creating a Gate.
//
// Zero-valued bounds fall back to the defaults; DailyCostLimit of zero means
// no spend is allowed except for free providers, so set it deliberately.
type NewGateParams struct {
	Enabled        bool
	MinLength      int
	MaxLength      int
	MinWords       int
	DailyCostLimit float64
}

// NewGate creates a gate.
func NewGate(params NewGateParams) *Gate {
	g := &Gate{
		enabled:        params.Enabled,
		minLength:      params.MinLength,
		maxLength:      params.MaxLength,
		minWords:       params.MinWords,
		dailyCostLimit: params.DailyCostLimit,
	}
	if g.minLength <= 0 {
		g.minLength = defaultMinContentLength
	}
	if g.maxLength <= 0 {
		g.maxLength = defaultMaxContentLength
	}
	if g.minWords <= 0 {
		g.minWords = defaultMinWords
	}
	return g
}

// Check evaluates every eligibility rule in order and returns the first
// failing one. ReasonOK means the content should be processed.
func (g *Gate) Check(content string, dailySpend float64) Reason {
	if !g.enabled {
		return ReasonDisabled
	}

	length := len(content)
	if length < g.minLength {
		return ReasonTooShort
	}
	if length > g.maxLength {
		return ReasonTooLong
	}
	if len(strings.Fields(content)) < g.minWords {
		return ReasonTooFewWords
	}
	if !looksLikeProse(content) {
		return ReasonNotProse
	}
	if dailySpend >= g.dailyCostLimit {
		return ReasonBudgetExceeded
	}
	return ReasonOK
}

// ShouldProcess reports whether the content passes every eligibility rule.
func (g *Gate) ShouldProcess(content string, dailySpend float64) bool {
	return g.Check(content, dailySpend) == ReasonOK
}

// looksLikeProse is a cheap heuristic against markup dumps and token soup:
// real prose carries sentence-ending punctuation or at least an uppercase
// letter somewhere.
func looksLikeProse(content string) bool {
	if strings.ContainsAny(content, ".!?") {
		return true
	}
	for _, r := range content {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}
