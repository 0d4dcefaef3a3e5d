package indexer

import (
	"strings"

	"github.com/nodecattel/junkiewally/bitcoin"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// The services return loosely shaped JSON. These raw types are decoded and then normalized into
// the exported types exactly once, here.

type rawUTXO struct {
	TxID   string `json:"txid"`
	Vout   *int64 `json:"vout"`
	Value  *int64 `json:"value"`
	Status struct {
		Confirmed   bool   `json:"confirmed"`
		BlockHeight uint32 `json:"block_height"`
	} `json:"status"`
	Hex string `json:"hex"`
}

type rawAddressInscriptions struct {
	Outpoints    []string `json:"outpoint"`
	Inscriptions []struct {
		Outpoint      string `json:"outpoint"`
		InscriptionID string `json:"inscription_id"`
	} `json:"inscriptions"`
}

type rawTokenBalanceResponse struct {
	Tokens []rawToken `json:"junk20"`
}

type rawToken struct {
	Tick         string         `json:"tick"`
	Available    string         `json:"available"`
	Transferable string         `json:"transferable"`
	UTXOs        []rawTokenUTXO `json:"utxos"`
}

type rawTokenUTXO struct {
	InscriptionID     string `json:"inscription_id"`
	InscriptionNumber int64  `json:"inscription_number"`
	Balance           string `json:"balance"`
	Operation         string `json:"operation"`

	// Older responses nest the token fields.
	Junk20 *struct {
		Balance   string `json:"balance"`
		Operation string `json:"operation"`
	} `json:"junk20"`
}

type rawInscriptionRef struct {
	InscriptionID string `json:"inscription_id"`
	Genesis       string `json:"genesis"`
	Owner         string `json:"owner"`
	Height        uint32 `json:"height"`
	ContentType   string `json:"content_type"`
}

func normalizeUTXOs(raw []rawUTXO) ([]bitcoin.UTXO, error) {
	result := make([]bitcoin.UTXO, 0, len(raw))
	for i, r := range raw {
		txid, err := bitcoin.ParseTxID(r.TxID)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedResponse, "utxo %d: %s", i, err)
		}

		if r.Vout == nil || *r.Vout < 0 || *r.Vout > 0xffffffff {
			return nil, errors.Wrapf(ErrMalformedResponse, "utxo %d: vout", i)
		}

		if r.Value == nil || *r.Value < 0 {
			return nil, errors.Wrapf(ErrMalformedResponse, "utxo %d: value", i)
		}

		utxo := bitcoin.UTXO{
			TxID:  *txid,
			Index: uint32(*r.Vout),
			Value: uint64(*r.Value),
			Status: bitcoin.Status{
				Confirmed:   r.Status.Confirmed,
				BlockHeight: r.Status.BlockHeight,
			},
		}

		if len(r.Hex) > 0 {
			b, err := decodeHex(r.Hex)
			if err != nil {
				return nil, errors.Wrapf(ErrMalformedResponse, "utxo %d: hex: %s", i, err)
			}
			utxo.RawTx = b
		}

		result = append(result, utxo)
	}

	return result, nil
}

func normalizeInscribedOutpoints(raw []rawAddressInscriptions) (InscribedOutpoints, error) {
	result := make(InscribedOutpoints)
	for _, entry := range raw {
		for _, s := range entry.Outpoints {
			outpoint, err := bitcoin.ParseOutPoint(s)
			if err != nil {
				return nil, errors.Wrap(ErrMalformedResponse, err.Error())
			}

			if _, exists := result[outpoint]; !exists {
				result[outpoint] = []string{}
			}
		}

		for _, inscription := range entry.Inscriptions {
			outpoint, err := bitcoin.ParseOutPoint(inscription.Outpoint)
			if err != nil {
				return nil, errors.Wrap(ErrMalformedResponse, err.Error())
			}

			if len(inscription.InscriptionID) == 0 {
				if _, exists := result[outpoint]; !exists {
					result[outpoint] = []string{}
				}
				continue
			}

			result[outpoint] = appendUnique(result[outpoint], inscription.InscriptionID)
		}
	}

	return result, nil
}

// normalizeTokens maps the service's "available" field to Balance. This is the only place that
// mapping happens.
func normalizeTokens(raw []rawToken) ([]OverlayToken, error) {
	result := make([]OverlayToken, 0, len(raw))
	for _, r := range raw {
		ticker := strings.TrimSpace(r.Tick)
		if len(ticker) == 0 {
			ticker = "unknown"
		}

		balance, err := normalizeAmount(r.Available)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedResponse, "%s available: %s", ticker, err)
		}

		transferable, err := normalizeAmount(r.Transferable)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedResponse, "%s transferable: %s", ticker, err)
		}

		token := OverlayToken{
			Ticker:       ticker,
			Balance:      balance,
			Transferable: transferable,
			UTXOs:        make([]OverlayTokenUTXO, 0, len(r.UTXOs)),
		}

		for i, u := range r.UTXOs {
			if len(u.InscriptionID) == 0 {
				return nil, errors.Wrapf(ErrMalformedResponse, "%s utxo %d: missing inscription id",
					ticker, i)
			}

			amount, operation := u.Balance, u.Operation
			if u.Junk20 != nil {
				amount, operation = u.Junk20.Balance, u.Junk20.Operation
			}

			utxoBalance, err := normalizeAmount(amount)
			if err != nil {
				return nil, errors.Wrapf(ErrMalformedResponse, "%s utxo %d balance: %s", ticker,
					i, err)
			}

			token.UTXOs = append(token.UTXOs, OverlayTokenUTXO{
				InscriptionID:     u.InscriptionID,
				InscriptionNumber: u.InscriptionNumber,
				Balance:           utxoBalance,
				Operation:         strings.ToLower(strings.TrimSpace(operation)),
			})
		}

		result = append(result, token)
	}

	return result, nil
}

func normalizeInscriptionRefs(raw []rawInscriptionRef) ([]InscriptionRef, error) {
	result := make([]InscriptionRef, 0, len(raw))
	for i, r := range raw {
		id := r.InscriptionID
		if len(id) == 0 {
			id = r.Genesis
		}
		if len(id) == 0 {
			return nil, errors.Wrapf(ErrMalformedResponse, "inscription %d: missing id", i)
		}

		result = append(result, InscriptionRef{
			InscriptionID: id,
			Owner:         r.Owner,
			Height:        r.Height,
			ContentType:   r.ContentType,
		})
	}

	return result, nil
}

// normalizeAmount returns the canonical decimal string of a token amount. Empty amounts are zero.
func normalizeAmount(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) == 0 {
		return "0", nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return "", err
	}

	if d.IsNegative() {
		return "", errors.New("negative amount")
	}

	return d.String(), nil
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
