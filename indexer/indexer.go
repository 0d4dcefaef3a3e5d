package indexer

import (
	"context"
	"fmt"

	"github.com/nodecattel/junkiewally/bitcoin"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
)

const (
	SubSystem = "Indexer" // For logger

	OperationMint     = "mint"
	OperationTransfer = "transfer"
	OperationDeploy   = "deploy"
)

var (
	ErrTimeout           = errors.New("Timed Out")
	ErrMalformedResponse = errors.New("Malformed Response")
	ErrBroadcastRejected = errors.New("Broadcast Rejected")
)

// Client is the query contract of the indexing and content services. Implementations only move
// data. They never decide whether an output is safe to spend.
type Client interface {
	// ListUTXOs returns all unspent outputs for an address.
	ListUTXOs(ctx context.Context, address string) ([]bitcoin.UTXO, error)

	// ListInscribedOutpoints returns every outpoint at the address known to carry an inscription,
	// in one call regardless of how many outputs the address has.
	ListInscribedOutpoints(ctx context.Context, address string) (InscribedOutpoints, error)

	// GetOverlayTokenBalances returns per ticker balances including the inscriptions backing them.
	GetOverlayTokenBalances(ctx context.Context, address string) ([]OverlayToken, error)

	// FindInscriptionAtOutpoint is the slower per outpoint lookup. It returns an empty list when
	// nothing is inscribed at the outpoint.
	FindInscriptionAtOutpoint(ctx context.Context, address string,
		outpoint bitcoin.OutPoint) ([]InscriptionRef, error)

	GetFeeRates(ctx context.Context) (*FeeRates, error)
	BroadcastTx(ctx context.Context, rawTx []byte) (*chainhash.Hash, error)
}

// InscribedOutpoints maps each inscribed outpoint to the ids of the inscriptions on it. The list is
// empty when the service only reports that the outpoint is inscribed.
type InscribedOutpoints map[bitcoin.OutPoint][]string

func (ios InscribedOutpoints) Contains(outpoint bitcoin.OutPoint) bool {
	_, exists := ios[outpoint]
	return exists
}

// OverlayToken is the balance of one ticker at an address.
type OverlayToken struct {
	Ticker       string             `json:"ticker"`
	Balance      string             `json:"balance"`
	Transferable string             `json:"transferable"`
	UTXOs        []OverlayTokenUTXO `json:"utxos"`
}

// OverlayTokenUTXO is an inscription that holds part of a ticker's balance.
type OverlayTokenUTXO struct {
	InscriptionID     string `json:"inscription_id"`
	InscriptionNumber int64  `json:"inscription_number"`
	Balance           string `json:"balance"`
	Operation         string `json:"operation"`
}

// InscriptionRef is an inscription found at an outpoint.
type InscriptionRef struct {
	InscriptionID string `json:"inscription_id"`
	Owner         string `json:"owner"`
	Height        uint32 `json:"height"`
	ContentType   string `json:"content_type,omitempty"`
}

// FeeRates are in satoshis per byte.
type FeeRates struct {
	Fast uint64 `json:"fast"`
	Slow uint64 `json:"slow"`
}

type HTTPError struct {
	Status  int
	Message string
}

func (err HTTPError) Error() string {
	if len(err.Message) > 0 {
		return fmt.Sprintf("HTTP Status %d : %s", err.Status, err.Message)
	}

	return fmt.Sprintf("HTTP Status %d", err.Status)
}

// IsRetryable returns true for failures that may succeed when repeated.
func IsRetryable(err error) bool {
	cause := errors.Cause(err)
	if cause == ErrTimeout {
		return true
	}

	if httpErr, ok := cause.(HTTPError); ok {
		return httpErr.Status == 429 || httpErr.Status >= 500
	}

	return false
}
