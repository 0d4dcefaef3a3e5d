package txbuilder

import (
	"context"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

const (
	SubSystem = "TxBuilder" // For logger

	// DefaultVersion is the default TX version used by assembly.
	DefaultVersion = int32(1)

	// DefaultMaxInputs bounds the size of the tx and the signing work.
	DefaultMaxInputs = 500

	// DefaultOutputCount is a payment and its change.
	DefaultOutputCount = 2

	// DefaultDustLimit is the smallest change output that is kept. Smaller change goes to the fee.
	DefaultDustLimit = uint64(546)
)

var (
	ErrInsufficientFunds = errors.New("Insufficient Funds")
	ErrTooManyInputs     = errors.New("Too Many Inputs")
	ErrInvalidAmount     = errors.New("Invalid Amount")
	ErrInvalidFeeRate    = errors.New("Invalid Fee Rate")
	ErrAmountBelowFee    = errors.New("Amount Below Fee")
	ErrDuplicateInput    = errors.New("Duplicate Input")
	ErrMissingInputData  = errors.New("Missing Input Data")
	ErrInputMismatch     = errors.New("Input Mismatch")
	ErrMissingAddress    = errors.New("Missing Address")
	ErrValueMismatch     = errors.New("Value Mismatch")
	ErrUnknownFeeModel   = errors.New("Unknown Fee Model")
)

// InputSupplement contains data required to sign an input that is not already in the wire.MsgTx.
type InputSupplement struct {
	LockingScript []byte `json:"locking_script"`
	Value         uint64 `json:"value"`
}

// Payment is an output paying value to a locking script.
type Payment struct {
	LockingScript []byte `json:"locking_script"`
	Value         uint64 `json:"value"`
}

// Signer is the signing capability. Key management lives behind it.
type Signer interface {
	// SignTx returns the tx with all inputs signed. The inputs supply the locking script and value
	// of each output being spent, in input order.
	SignTx(ctx context.Context, tx *wire.MsgTx, inputs []*InputSupplement) (*wire.MsgTx, error)
}
