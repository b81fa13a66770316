package flow

import (
	"strconv"
	"strings"

	"flowmon/internal/models"
)

// fingerprintTrades is how many of the most recent trade ids feed the
// fingerprint.
const fingerprintTrades = 5

// Fingerprint is a compact signature of the latest raw inputs, used to
// decide whether a poll actually changed anything worth republishing.
// It is computed from raw fields only, never from derived stats.
type Fingerprint struct {
	LastPrice          string
	PriceChangePercent string
	BestBid            string
	BestAsk            string
	TradeIDs           string
}

// ComputeFingerprint builds the signature from one cycle's raw results.
// Missing inputs contribute empty fields, so "still missing" compares
// equal to "was missing".
func ComputeFingerprint(data *models.MarketData) Fingerprint {
	var fp Fingerprint
	if data == nil {
		return fp
	}
	if data.Ticker != nil {
		fp.LastPrice = strconv.FormatFloat(data.Ticker.LastPrice, 'f', -1, 64)
		fp.PriceChangePercent = strconv.FormatFloat(data.Ticker.PriceChangePercent, 'f', -1, 64)
	}
	if data.Book != nil {
		fp.BestBid = strconv.FormatFloat(data.Book.BidPrice, 'f', -1, 64)
		fp.BestAsk = strconv.FormatFloat(data.Book.AskPrice, 'f', -1, 64)
	}
	n := len(data.Trades)
	if n > fingerprintTrades {
		n = fingerprintTrades
	}
	ids := make([]string, 0, n)
	for _, t := range data.Trades[:n] {
		ids = append(ids, strconv.FormatInt(t.ID, 10))
	}
	fp.TradeIDs = strings.Join(ids, ",")
	return fp
}

// Equal reports exact field equality. No numeric tolerance: two
// fingerprints match only when every field is byte-identical.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f == other
}
