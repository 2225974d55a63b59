package symbols

// QuoteClass buckets quote currencies for classification.
type QuoteClass string

const (
	QuoteClassUSDStable   QuoteClass = "usd_stable"
	QuoteClassMajorFiat   QuoteClass = "major_fiat"
	QuoteClassMajorCrypto QuoteClass = "major_crypto"
	QuoteClassOther       QuoteClass = "other"
)

// quoteClasses classifies recognized quote assets. Everything else is
// QuoteClassOther.
var quoteClasses = map[string]QuoteClass{
	"USD":  QuoteClassUSDStable,
	"USDT": QuoteClassUSDStable,
	"USDC": QuoteClassUSDStable,
	"BUSD": QuoteClassUSDStable,
	"DAI":  QuoteClassUSDStable,
	"TUSD": QuoteClassUSDStable,
	"PAX":  QuoteClassUSDStable,

	"EUR": QuoteClassMajorFiat,
	"GBP": QuoteClassMajorFiat,
	"JPY": QuoteClassMajorFiat,
	"KRW": QuoteClassMajorFiat,

	"BTC": QuoteClassMajorCrypto,
	"ETH": QuoteClassMajorCrypto,
	"BNB": QuoteClassMajorCrypto,
	"SOL": QuoteClassMajorCrypto,
}

// quoteSuffixes lists recognized quote tickers for splitting concatenated
// symbols, ordered longest first so USDT wins over USD.
var quoteSuffixes = []string{
	"USDT", "USDC", "BUSD", "TUSD",
	"USD", "DAI", "PAX",
	"EUR", "GBP", "JPY", "KRW",
	"BTC", "ETH", "BNB", "SOL",
}

// multiplierPrefixes are redenomination markers stripped from base tokens,
// longest numeric prefix first.
var multiplierPrefixes = []string{"1000", "100", "10"}

// assetAliases maps venue-specific or historical tickers to canonical
// names. Many-to-one; identity entries mark assets as table-resolved for
// confidence scoring.
var assetAliases = map[string]string{
	// historical variants
	"XBT":    "BTC",
	"BCC":    "BCH",
	"BCHABC": "BCH",
	"BCHSV":  "BSV",

	// stablecoins
	"USD":  "USD",
	"USDT": "USDT",
	"USDC": "USDC",
	"BUSD": "BUSD",
	"DAI":  "DAI",
	"TUSD": "TUSD",
	"PAX":  "PAX",

	// fiat
	"EUR": "EUR",
	"GBP": "GBP",
	"JPY": "JPY",
	"KRW": "KRW",

	// majors and layer 1s
	"BTC":   "BTC",
	"ETH":   "ETH",
	"BNB":   "BNB",
	"SOL":   "SOL",
	"ADA":   "ADA",
	"DOT":   "DOT",
	"AVAX":  "AVAX",
	"MATIC": "MATIC",
	"ATOM":  "ATOM",
	"NEAR":  "NEAR",
	"FTM":   "FTM",
	"ALGO":  "ALGO",

	// meme coins
	"DOGE": "DOGE",
	"SHIB": "SHIB",
	"BONK": "BONK",
	"PEPE": "PEPE",
	"WIF":  "WIF",

	// defi
	"UNI":  "UNI",
	"AAVE": "AAVE",
	"COMP": "COMP",
	"LINK": "LINK",
	"MKR":  "MKR",
	"INCH": "INCH",
}

// venuePreferredAliases selects the venue's preferred ticker when
// denormalizing a canonical asset. The alias table above is many-to-one and
// not reversible in general.
var venuePreferredAliases = map[string]map[string]string{
	"kraken": {
		"BTC": "XBT",
	},
	"kucoin-futures": {
		"BTC": "XBT",
	},
}
