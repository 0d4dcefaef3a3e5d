package txbuilder

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

const (
	FeeModelLinear = "linear"
	FeeModelSize   = "size"

	// Linear model sizes. They approximate signed legacy inputs and outputs.
	LinearBaseSize   = 10
	LinearInputSize  = 148
	LinearOutputSize = 34

	// P2PKH input size 149
	//   Previous Transaction ID = 32 bytes
	//   Previous Transaction Output Index = 4 bytes
	//   script size = 1 byte
	//   Signature push to stack = 74
	//       push size = 1 byte
	//       signature up to = 72 bytes
	//       signature hash type = 1 byte
	//   Public key push to stack = 34
	//       push size = 1 byte
	//       public key size = 33 bytes
	//   Sequence number = 4
	MaximumP2PKHInputSize = 32 + 4 + 1 + 74 + 34 + 4

	// Size of output not including script
	OutputBaseSize = 8

	// P2PKH output size 34
	//   amount = 8 bytes
	//   script size = 1 byte
	//   Script (25 bytes) OP_DUP OP_HASH160 <Push Data byte, PUB KEY HASH (20 bytes)> OP_EQUALVERIFY
	//     OP_CHECKSIG
	P2PKHOutputSize = OutputBaseSize + 26

	// BaseTxSize is the size of the tx not included in inputs and outputs.
	//   Version = 4 bytes
	//   LockTime = 4 bytes
	BaseTxSize = 8
)

// FeeModel estimates the signed size of a tx from its input and output counts. Models are chosen
// by name at construction so a wallet can move to a new one without changing callers.
type FeeModel interface {
	Name() string
	EstimatedSize(inputCount, outputCount int) uint64
}

// LinearFeeModel is base 10 + 148 per input + 34 per output.
type LinearFeeModel struct{}

// SizeFeeModel counts maximum P2PKH input and output sizes plus the var int counts.
type SizeFeeModel struct{}

func (LinearFeeModel) Name() string {
	return FeeModelLinear
}

func (LinearFeeModel) EstimatedSize(inputCount, outputCount int) uint64 {
	return LinearBaseSize + uint64(inputCount)*LinearInputSize +
		uint64(outputCount)*LinearOutputSize
}

func (SizeFeeModel) Name() string {
	return FeeModelSize
}

func (SizeFeeModel) EstimatedSize(inputCount, outputCount int) uint64 {
	return BaseTxSize + uint64(wire.VarIntSerializeSize(uint64(inputCount))) +
		uint64(wire.VarIntSerializeSize(uint64(outputCount))) +
		uint64(inputCount)*MaximumP2PKHInputSize + uint64(outputCount)*P2PKHOutputSize
}

// FeeModelByName returns the fee model with the name.
func FeeModelByName(name string) (FeeModel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case FeeModelLinear, "":
		return LinearFeeModel{}, nil
	case FeeModelSize:
		return SizeFeeModel{}, nil
	default:
		return nil, errors.Wrap(ErrUnknownFeeModel, name)
	}
}

// EstimatedFee returns the fee in satoshis for the counts at feeRate satoshis per byte.
func EstimatedFee(model FeeModel, inputCount, outputCount int, feeRate uint64) (uint64, error) {
	size := model.EstimatedSize(inputCount, outputCount)
	hi, fee := bits.Mul64(size, feeRate)
	if hi != 0 {
		return 0, newError(ErrorCodeInvalidFeeRate, fmt.Sprintf("fee overflow: %d * %d", size,
			feeRate))
	}

	return fee, nil
}
