package bitcoin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
)

var (
	ErrInvalidOutPoint = errors.New("Invalid OutPoint")
	ErrInvalidTxID     = errors.New("Invalid TxID")
)

// OutPoint identifies an output by the transaction that created it and its index. It is comparable
// so it can be used as a map key.
type OutPoint struct {
	TxID  chainhash.Hash
	Index uint32
}

func NewOutPoint(txid chainhash.Hash, index uint32) OutPoint {
	return OutPoint{TxID: txid, Index: index}
}

// ParseOutPoint parses the "txid:vout" format.
func ParseOutPoint(s string) (OutPoint, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return OutPoint{}, errors.Wrapf(ErrInvalidOutPoint, "format: %s", s)
	}

	hash, err := ParseTxID(parts[0])
	if err != nil {
		return OutPoint{}, errors.Wrapf(ErrInvalidOutPoint, "txid: %s", err)
	}

	index, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return OutPoint{}, errors.Wrapf(ErrInvalidOutPoint, "index: %s", err)
	}

	return OutPoint{TxID: *hash, Index: uint32(index)}, nil
}

// ParseTxID parses a full length hex txid in display (big endian) order.
func ParseTxID(s string) (*chainhash.Hash, error) {
	if len(s) != chainhash.MaxHashStringSize {
		return nil, errors.Wrapf(ErrInvalidTxID, "length %d", len(s))
	}

	hash, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidTxID, err.Error())
	}

	return hash, nil
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Index)
}

// MarshalText writes the "txid:vout" format so outpoints can be JSON map keys.
func (o OutPoint) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *OutPoint) UnmarshalText(text []byte) error {
	result, err := ParseOutPoint(string(text))
	if err != nil {
		return err
	}

	*o = result
	return nil
}
