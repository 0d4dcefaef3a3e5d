package bitcoin

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
)

// Status is the confirmation state of the transaction that created an output.
type Status struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint32 `json:"block_height,omitempty"`
}

// UTXO is an unspent output as reported by the index. It is never mutated by this module, only
// read and classified.
type UTXO struct {
	TxID   chainhash.Hash `json:"txid"`
	Index  uint32         `json:"vout"`
	Value  uint64         `json:"value"`
	Status Status         `json:"status"`

	// Optional serialized transaction that created the output.
	RawTx []byte `json:"hex,omitempty"`
}

type jsonUTXO struct {
	TxID   string `json:"txid"`
	Index  uint32 `json:"vout"`
	Value  uint64 `json:"value"`
	Status Status `json:"status"`
	RawTx  string `json:"hex,omitempty"`
}

// OutPoint returns the (txid, vout) identity of the output.
func (u UTXO) OutPoint() OutPoint {
	return OutPoint{TxID: u.TxID, Index: u.Index}
}

// ID returns the "txid:vout" form of the outpoint.
func (u UTXO) ID() string {
	return fmt.Sprintf("%s:%d", u.TxID.String(), u.Index)
}

func (u UTXO) Equal(other UTXO) bool {
	return u.TxID.IsEqual(&other.TxID) && u.Index == other.Index && u.Value == other.Value
}

// MarshalJSON writes the txid and raw tx as hex strings.
func (u UTXO) MarshalJSON() ([]byte, error) {
	js := jsonUTXO{
		TxID:   u.TxID.String(),
		Index:  u.Index,
		Value:  u.Value,
		Status: u.Status,
	}
	if len(u.RawTx) > 0 {
		js.RawTx = hex.EncodeToString(u.RawTx)
	}

	return json.Marshal(js)
}

// UnmarshalJSON reads the format written by MarshalJSON.
func (u *UTXO) UnmarshalJSON(data []byte) error {
	var js jsonUTXO
	if err := json.Unmarshal(data, &js); err != nil {
		return err
	}

	hash, err := ParseTxID(js.TxID)
	if err != nil {
		return errors.Wrap(err, "txid")
	}

	u.TxID = *hash
	u.Index = js.Index
	u.Value = js.Value
	u.Status = js.Status
	u.RawTx = nil

	if len(js.RawTx) > 0 {
		b, err := hex.DecodeString(js.RawTx)
		if err != nil {
			return errors.Wrap(err, "hex")
		}
		u.RawTx = b
	}

	return nil
}

// SumValues returns the total value of the outputs.
func SumValues(utxos []UTXO) uint64 {
	result := uint64(0)
	for _, utxo := range utxos {
		result += utxo.Value
	}
	return result
}
