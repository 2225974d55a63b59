package venue

// Operation identifies one of the venue-facing capabilities.
type Operation string

const (
	OpSpotQuotes Operation = "spot_quotes"
	OpOrderBook  Operation = "l2_orderbook"
	OpFunding    Operation = "funding_rates"
)

// Capability describes what a venue supports and its symbol formatting
// convention. Capability records are process-wide static configuration,
// built once at startup and never mutated afterwards.
type Capability struct {
	Venue string

	SupportsSpot      bool
	SupportsOrderBook bool
	SupportsFunding   bool

	// Symbol convention: separator between base and quote ("" for
	// concatenated forms) and whether the quote asset is suffixed.
	Separator     string
	QuoteSuffixed bool

	// FundingIntervalHours is the venue's fixed funding period.
	FundingIntervalHours float64

	// BasePrefixes maps canonical base assets to the multiplier prefix the
	// venue reintroduces when formatting symbols, e.g. BONK -> "1000".
	BasePrefixes map[string]string
}

// Supports reports whether the capability covers the given operation.
func (c Capability) Supports(op Operation) bool {
	switch op {
	case OpSpotQuotes:
		return c.SupportsSpot
	case OpOrderBook:
		return c.SupportsOrderBook
	case OpFunding:
		return c.SupportsFunding
	}
	return false
}

// CapabilitySet is a read-only lookup from venue id to capability record.
type CapabilitySet map[string]Capability

// Lookup returns the capability record for a venue.
func (s CapabilitySet) Lookup(venue string) (Capability, bool) {
	c, ok := s[venue]
	return c, ok
}

// Require returns an UnsupportedCapability error when the venue is unknown
// or does not offer the operation.
func (s CapabilitySet) Require(venue string, op Operation) error {
	c, ok := s[venue]
	if !ok || !c.Supports(op) {
		return UnsupportedCapabilityError(venue, op)
	}
	return nil
}

// DefaultCapabilities returns the built-in capability table for the venues
// this service knows about.
func DefaultCapabilities() CapabilitySet {
	memePrefixes := map[string]string{
		"BONK": "1000",
		"PEPE": "1000",
		"SHIB": "1000",
		"FLOKI": "1000",
	}

	return CapabilitySet{
		"binance": {
			Venue:                "binance",
			SupportsSpot:         true,
			SupportsOrderBook:    true,
			SupportsFunding:      true,
			Separator:            "",
			QuoteSuffixed:        true,
			FundingIntervalHours: 8,
			BasePrefixes:         memePrefixes,
		},
		"bybit": {
			Venue:                "bybit",
			SupportsSpot:         true,
			SupportsOrderBook:    true,
			SupportsFunding:      true,
			Separator:            "",
			QuoteSuffixed:        true,
			FundingIntervalHours: 8,
			BasePrefixes:         memePrefixes,
		},
		"kucoin": {
			Venue:                "kucoin",
			SupportsSpot:         true,
			SupportsOrderBook:    true,
			SupportsFunding:      true,
			Separator:            "-",
			QuoteSuffixed:        true,
			FundingIntervalHours: 8,
		},
		"okx": {
			Venue:                "okx",
			SupportsSpot:         true,
			SupportsOrderBook:    true,
			SupportsFunding:      true,
			Separator:            "-",
			QuoteSuffixed:        true,
			FundingIntervalHours: 8,
		},
		"bitmart": {
			Venue:                "bitmart",
			SupportsSpot:         true,
			SupportsOrderBook:    true,
			SupportsFunding:      false,
			Separator:            "_",
			QuoteSuffixed:        true,
			FundingIntervalHours: 8,
		},
		"derive": {
			Venue:                "derive",
			SupportsSpot:         true,
			SupportsOrderBook:    true,
			SupportsFunding:      true,
			Separator:            "-",
			QuoteSuffixed:        false,
			FundingIntervalHours: 1,
		},
		"mock": {
			Venue:             "mock",
			SupportsSpot:      true,
			SupportsOrderBook: true,
			Separator:         "-",
			QuoteSuffixed:     true,
		},
	}
}
