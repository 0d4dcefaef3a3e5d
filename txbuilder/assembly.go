package txbuilder

import (
	"bytes"
	"fmt"
	"math"

	"github.com/nodecattel/junkiewally/bitcoin"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// UnsignedTx is an assembled tx ready for the Signer.
type UnsignedTx struct {
	MsgTx  *wire.MsgTx
	Inputs []*InputSupplement // Input Data that is not in wire.MsgTx

	// Index of the change output, or -1 when there is none.
	ChangeIndex int
	Fee         uint64
}

// BuildUnsignedTx assembles the tx paying payments from the selection. When the receiver pays the
// fee it is taken from the first payment. ownerScript is the locking script of the wallet's
// address. It receives the change and is used for inputs whose creating tx isn't known. Change
// below dustLimit is added to the fee.
func BuildUnsignedTx(selection *Selection, payments []Payment, ownerScript []byte,
	dustLimit uint64) (*UnsignedTx, error) {

	if len(payments) == 0 {
		return nil, newError(ErrorCodeInvalidAmount, "no payments")
	}

	paymentTotal := uint64(0)
	for _, payment := range payments {
		paymentTotal += payment.Value
	}
	if paymentTotal != selection.Amount {
		return nil, newError(ErrorCodeValueMismatch,
			fmt.Sprintf("payments %d, selection amount %d", paymentTotal, selection.Amount))
	}

	result := &UnsignedTx{
		MsgTx:       wire.NewMsgTx(DefaultVersion),
		ChangeIndex: -1,
		Fee:         selection.Fee,
	}

	seen := make(map[bitcoin.OutPoint]bool)
	for _, utxo := range selection.Inputs {
		if seen[utxo.OutPoint()] {
			return nil, newError(ErrorCodeDuplicateInput, utxo.ID())
		}
		seen[utxo.OutPoint()] = true

		input, err := inputSupplement(utxo, ownerScript)
		if err != nil {
			return nil, errors.Wrapf(err, "input %s", utxo.ID())
		}
		result.Inputs = append(result.Inputs, input)

		txin := wire.NewTxIn(wire.NewOutPoint(&utxo.TxID, utxo.Index), nil, nil)
		txin.Sequence = wire.MaxTxInSequenceNum
		result.MsgTx.AddTxIn(txin)
	}

	for i, payment := range payments {
		value := payment.Value
		if i == 0 && selection.ReceiverPaysFee {
			if value <= selection.Fee {
				return nil, newError(ErrorCodeAmountBelowFee,
					fmt.Sprintf("payment %d, fee %d", value, selection.Fee))
			}
			value -= selection.Fee
		}

		if err := addOutput(result.MsgTx, payment.LockingScript, value); err != nil {
			return nil, errors.Wrapf(err, "payment %d", i)
		}
	}

	if selection.Change > 0 {
		if selection.Change < dustLimit {
			result.Fee += selection.Change
		} else {
			if len(ownerScript) == 0 {
				return nil, newError(ErrorCodeMissingInputData, "change script needed")
			}
			if err := addOutput(result.MsgTx, ownerScript, selection.Change); err != nil {
				return nil, errors.Wrap(err, "change")
			}
			result.ChangeIndex = len(result.MsgTx.TxOut) - 1
		}
	}

	// Inputs must equal outputs plus fee.
	outputTotal := uint64(0)
	for _, txout := range result.MsgTx.TxOut {
		outputTotal += uint64(txout.Value)
	}
	if selection.TotalInput != outputTotal+result.Fee {
		return nil, newError(ErrorCodeValueMismatch,
			fmt.Sprintf("inputs %d, outputs %d, fee %d", selection.TotalInput, outputTotal,
				result.Fee))
	}

	return result, nil
}

func addOutput(tx *wire.MsgTx, lockingScript []byte, value uint64) error {
	if len(lockingScript) == 0 {
		return newError(ErrorCodeMissingInputData, "missing locking script")
	}
	if value > math.MaxInt64 {
		return newError(ErrorCodeInvalidAmount, fmt.Sprintf("value %d", value))
	}

	tx.AddTxOut(wire.NewTxOut(int64(value), lockingScript))
	return nil
}

// inputSupplement returns the locking script and value of the output being spent. When the UTXO
// carries the tx that created it the output is taken from that tx and checked against the UTXO.
func inputSupplement(utxo bitcoin.UTXO, ownerScript []byte) (*InputSupplement, error) {
	if len(utxo.RawTx) == 0 {
		if len(ownerScript) == 0 {
			return nil, newError(ErrorCodeMissingInputData, "no raw tx or owner script")
		}

		return &InputSupplement{
			LockingScript: ownerScript,
			Value:         utxo.Value,
		}, nil
	}

	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(utxo.RawTx)); err != nil {
		return nil, newError(ErrorCodeInputMismatch, fmt.Sprintf("deserialize: %s", err))
	}

	hash := tx.TxHash()
	if !hash.IsEqual(&utxo.TxID) {
		return nil, newError(ErrorCodeInputMismatch, fmt.Sprintf("raw tx hash %s", hash))
	}

	if int(utxo.Index) >= len(tx.TxOut) {
		return nil, newError(ErrorCodeInputMismatch,
			fmt.Sprintf("index %d, outputs %d", utxo.Index, len(tx.TxOut)))
	}

	output := tx.TxOut[utxo.Index]
	if output.Value < 0 || uint64(output.Value) != utxo.Value {
		return nil, newError(ErrorCodeInputMismatch,
			fmt.Sprintf("raw tx value %d, utxo value %d", output.Value, utxo.Value))
	}

	return &InputSupplement{
		LockingScript: output.PkScript,
		Value:         utxo.Value,
	}, nil
}
