// Package parser splits a raw search query into a bang token and the
// remaining search terms.
package parser

import (
	"strings"
)

// DefaultSymbol marks a bang token when no symbol is configured.
const DefaultSymbol = "!"

// Result is the outcome of parsing one query.
type Result struct {
	// Token is the normalised bang token, empty when Found is false.
	Token string
	Found bool
	// Remainder holds the search terms without the bang. When no bang is
	// found it is the original query, byte for byte.
	Remainder string
}

// Parse looks for a bang in the first whitespace-delimited term, then in the
// last one. A term that is nothing but symbol characters is not a bang.
func Parse(query, symbol string) Result {
	if symbol == "" {
		symbol = DefaultSymbol
	}
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return Result{Remainder: query}
	}

	if first := terms[0]; strings.HasPrefix(first, symbol) {
		if tok := NormalizeToken(first, symbol); tok != "" {
			return Result{Token: tok, Found: true, Remainder: strings.Join(terms[1:], " ")}
		}
	}
	if len(terms) > 1 {
		if last := terms[len(terms)-1]; strings.HasPrefix(last, symbol) {
			if tok := NormalizeToken(last, symbol); tok != "" {
				return Result{Token: tok, Found: true, Remainder: strings.Join(terms[:len(terms)-1], " ")}
			}
		}
	}
	return Result{Remainder: query}
}

// NormalizeToken lowercases a token and strips every leading and trailing
// occurrence of symbol.
func NormalizeToken(token, symbol string) string {
	if symbol == "" {
		symbol = DefaultSymbol
	}
	token = strings.TrimSpace(token)
	for strings.HasPrefix(token, symbol) {
		token = token[len(symbol):]
	}
	for strings.HasSuffix(token, symbol) {
		token = token[:len(token)-len(symbol)]
	}
	return strings.ToLower(token)
}
