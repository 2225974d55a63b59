// Package symbols converts venue specific instrument symbols to and from a
// canonical BASE/QUOTE representation. All lookup tables are immutable
// static data; the mapper is stateless per call.
package symbols

import (
	"fmt"
	"strings"

	"quoteflow/internal/venue"
)

// Mapping describes how an exchange symbol maps onto the universal form,
// with a [0,1] confidence score for the mapping.
type Mapping struct {
	ExchangeSymbol  string     `json:"exchange_symbol"`
	Venue           string     `json:"venue"`
	UniversalSymbol string     `json:"universal_symbol"`
	BaseAsset       string     `json:"base_asset"`
	QuoteAsset      string     `json:"quote_asset"`
	QuoteType       QuoteClass `json:"quote_type"`
	Confidence      float64    `json:"confidence"`
}

// Confidence scoring: 0.5 baseline, +0.1 for an unambiguous split, +0.2 per
// table-resolved side. A split with several plausible candidates is capped
// at 0.45; an unsplittable symbol passes through at 0.3.
const (
	confBaseline     = 0.5
	confCleanSplit   = 0.1
	confResolvedSide = 0.2
	confAmbiguousCap = 0.45
	confUnsplittable = 0.3
)

// Mapper resolves symbols using the venue capability table for per-venue
// formatting conventions.
type Mapper struct {
	caps venue.CapabilitySet
}

func NewMapper(caps venue.CapabilitySet) *Mapper {
	return &Mapper{caps: caps}
}

// Normalize maps an exchange symbol to the universal representation. It
// never fails: a symbol that cannot be split passes through unchanged with
// low confidence.
func (m *Mapper) Normalize(symbol, venueID string) Mapping {
	cleaned := strings.ToUpper(strings.TrimSpace(symbol))
	mapping := Mapping{
		ExchangeSymbol:  symbol,
		Venue:           venueID,
		UniversalSymbol: cleaned,
		QuoteType:       QuoteClassOther,
	}
	if cleaned == "" {
		mapping.UniversalSymbol = ""
		return mapping
	}

	rawBase, rawQuote, ambiguous, ok := m.split(cleaned, venueID)
	if !ok {
		mapping.Confidence = confUnsplittable
		return mapping
	}

	base, baseResolved := resolveBase(rawBase)
	quote, quoteResolved := resolveAsset(rawQuote)

	conf := confBaseline + confCleanSplit
	if baseResolved {
		conf += confResolvedSide
	}
	if quoteResolved {
		conf += confResolvedSide
	}
	if ambiguous && conf > confAmbiguousCap {
		conf = confAmbiguousCap
	}
	if conf > 1 {
		conf = 1
	}

	mapping.UniversalSymbol = base + "/" + quote
	mapping.BaseAsset = base
	mapping.QuoteAsset = quote
	mapping.QuoteType = ClassifyQuote(quote)
	mapping.Confidence = conf
	return mapping
}

// split isolates base and quote tokens, preferring the venue's declared
// separator, then common separators, then a longest-suffix match against
// the recognized quote table for concatenated forms.
func (m *Mapper) split(symbol, venueID string) (base, quote string, ambiguous, ok bool) {
	if c, found := m.caps.Lookup(strings.ToLower(venueID)); found && c.Separator != "" {
		if i := strings.Index(symbol, c.Separator); i > 0 && i < len(symbol)-1 {
			return symbol[:i], symbol[i+len(c.Separator):], false, true
		}
	}

	for _, sep := range []string{"-", "_", "/"} {
		if i := strings.Index(symbol, sep); i > 0 && i < len(symbol)-1 {
			return symbol[:i], symbol[i+1:], false, true
		}
	}

	return splitConcatenated(symbol)
}

type splitCandidate struct {
	base     string
	quote    string
	resolved int
}

// splitConcatenated tries every recognized quote suffix, longest first, and
// keeps the candidate that resolves the most tokens against the asset
// table. Remaining ties prefer the shorter base token. The split counts as
// ambiguous when more than one candidate shares the best score.
func splitConcatenated(symbol string) (base, quote string, ambiguous, ok bool) {
	var candidates []splitCandidate
	for _, suffix := range quoteSuffixes {
		if !strings.HasSuffix(symbol, suffix) || len(symbol) <= len(suffix) {
			continue
		}
		cand := splitCandidate{base: symbol[:len(symbol)-len(suffix)], quote: suffix}
		if _, resolved := resolveBase(cand.base); resolved {
			cand.resolved++
		}
		if _, resolved := resolveAsset(cand.quote); resolved {
			cand.resolved++
		}
		candidates = append(candidates, cand)
	}

	if len(candidates) == 0 {
		return "", "", false, false
	}

	best := candidates[0]
	tied := 1
	for _, cand := range candidates[1:] {
		switch {
		case cand.resolved > best.resolved:
			best = cand
			tied = 1
		case cand.resolved == best.resolved:
			tied++
			if len(cand.base) < len(best.base) {
				best = cand
			}
		}
	}

	return best.base, best.quote, tied > 1, true
}

// resolveBase strips a known multiplier prefix before the alias lookup.
// Venues denote redenominated tokens this way, e.g. 1000BONK.
func resolveBase(raw string) (string, bool) {
	stripped := stripMultiplierPrefix(raw)
	return resolveAsset(stripped)
}

func stripMultiplierPrefix(token string) string {
	for _, prefix := range multiplierPrefixes {
		rest := strings.TrimPrefix(token, prefix)
		if rest == token || rest == "" {
			continue
		}
		// Keep tokens like 1000 intact and do not create all-digit bases.
		if isDigits(rest) {
			continue
		}
		return rest
	}
	return token
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func resolveAsset(raw string) (string, bool) {
	if canonical, ok := assetAliases[raw]; ok {
		return canonical, true
	}
	return raw, false
}

// ClassifyQuote returns the quote currency class for a canonical ticker.
func ClassifyQuote(quote string) QuoteClass {
	if class, ok := quoteClasses[quote]; ok {
		return class
	}
	return QuoteClassOther
}

// Denormalize builds the venue specific symbol for a universal BASE/QUOTE
// string: venue preferred aliases, the venue's multiplier prefix convention
// for redenominated bases, and the venue separator.
func (m *Mapper) Denormalize(universal, venueID string) (string, error) {
	parts := strings.SplitN(strings.ToUpper(strings.TrimSpace(universal)), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid universal symbol %q: %w", universal, venue.ErrInvalidArgument)
	}
	base, quote := parts[0], parts[1]

	venueID = strings.ToLower(venueID)
	if preferred, ok := venuePreferredAliases[venueID]; ok {
		if alias, ok := preferred[base]; ok {
			base = alias
		}
		if alias, ok := preferred[quote]; ok {
			quote = alias
		}
	}

	separator := "-"
	if c, ok := m.caps.Lookup(venueID); ok {
		separator = c.Separator
		if prefix, ok := c.BasePrefixes[base]; ok {
			base = prefix + base
		}
	}

	return base + separator + quote, nil
}

// Validate reports whether an exchange symbol normalizes to the expected
// universal symbol, comparing base and quote assets exactly and ignoring
// confidence.
func (m *Mapper) Validate(symbol, expectedUniversal, venueID string) bool {
	parts := strings.SplitN(strings.ToUpper(strings.TrimSpace(expectedUniversal)), "/", 2)
	if len(parts) != 2 {
		return false
	}
	mapping := m.Normalize(symbol, venueID)
	return mapping.BaseAsset == parts[0] && mapping.QuoteAsset == parts[1]
}
