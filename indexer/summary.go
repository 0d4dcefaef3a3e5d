package indexer

import (
	"sort"

	"github.com/shopspring/decimal"
)

// TokenSummary is the per ticker view shown next to the coin balance.
type TokenSummary struct {
	Ticker       string `json:"ticker"`
	Balance      string `json:"balance"`
	Transferable string `json:"transferable"`
	UTXOCount    int    `json:"utxo_count"`

	// Sum of the balances of inscriptions in the transfer state. These are the ones that a plain
	// spend would destroy.
	PendingTransfer string `json:"pending_transfer"`
}

// SummarizeTokens returns one summary per ticker sorted by ticker.
func SummarizeTokens(tokens []OverlayToken) []TokenSummary {
	result := make([]TokenSummary, 0, len(tokens))
	for _, token := range tokens {
		pending := decimal.Zero
		for _, utxo := range token.UTXOs {
			if utxo.Operation != OperationTransfer {
				continue
			}

			balance, err := decimal.NewFromString(utxo.Balance)
			if err != nil {
				continue // normalized values always parse
			}
			pending = pending.Add(balance)
		}

		result = append(result, TokenSummary{
			Ticker:          token.Ticker,
			Balance:         token.Balance,
			Transferable:    token.Transferable,
			UTXOCount:       len(token.UTXOs),
			PendingTransfer: pending.String(),
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Ticker < result[j].Ticker
	})

	return result
}
