package send

import (
	"bytes"
	"context"

	"github.com/nodecattel/junkiewally/bitcoin"
	"github.com/nodecattel/junkiewally/indexer"
	"github.com/nodecattel/junkiewally/protection"
	"github.com/nodecattel/junkiewally/txbuilder"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tokenized/logger"
)

const (
	SubSystem = "Send" // For logger
)

var (
	ErrNotProtected = errors.New("Not Protected")
	ErrNotFound     = errors.New("Not Found")
	ErrNoSigner     = errors.New("No Signer")
)

// Spender runs the send flow: list outputs, keep the safe ones, select, assemble, sign, and
// broadcast. Any failure to classify blocks the send.
type Spender struct {
	client    indexer.Client
	provider  *protection.Provider
	selector  *txbuilder.Selector
	signer    txbuilder.Signer
	dustLimit uint64
}

type SendRequest struct {
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`

	// Locking scripts of the payee and of the wallet's own address.
	ToScript    []byte `json:"to_script"`
	OwnerScript []byte `json:"owner_script"`

	Amount uint64 `json:"amount"`

	// Zero uses the index's fast fee rate.
	FeeRate         uint64 `json:"fee_rate"`
	ReceiverPaysFee bool   `json:"receiver_pays_fee"`
}

// InscriptionSendRequest moves the inscription at Outpoint to the payee. Safe outputs only pay
// the fee.
type InscriptionSendRequest struct {
	FromAddress string           `json:"from_address"`
	ToAddress   string           `json:"to_address"`
	ToScript    []byte           `json:"to_script"`
	OwnerScript []byte           `json:"owner_script"`
	Outpoint    bitcoin.OutPoint `json:"outpoint"`
	FeeRate     uint64           `json:"fee_rate"`
}

type Preview struct {
	Selection    *txbuilder.Selection    `json:"selection"`
	Requirements *txbuilder.Requirements `json:"requirements"`
	FeeRate      uint64                  `json:"fee_rate"`
	Tx           *txbuilder.UnsignedTx   `json:"-"`
}

type SendResult struct {
	TxID      chainhash.Hash       `json:"txid"`
	RawTx     []byte               `json:"raw_tx"`
	Selection *txbuilder.Selection `json:"selection"`
	Fee       uint64               `json:"fee"`
}

func NewSpender(client indexer.Client, provider *protection.Provider,
	selector *txbuilder.Selector, signer txbuilder.Signer, dustLimit uint64) *Spender {

	return &Spender{
		client:    client,
		provider:  provider,
		selector:  selector,
		signer:    signer,
		dustLimit: dustLimit,
	}
}

// Preview runs the send flow up to assembly without signing or broadcasting.
func (s *Spender) Preview(ctx context.Context, request SendRequest) (*Preview, error) {
	ctx = logger.ContextWithLogSubSystem(ctx, SubSystem)
	ctx = logger.ContextWithLogTrace(ctx, uuid.New().String())

	return s.prepare(ctx, request)
}

// Send funds, signs, and broadcasts a payment from the safe outputs of the address.
func (s *Spender) Send(ctx context.Context, request SendRequest) (*SendResult, error) {
	ctx = logger.ContextWithLogSubSystem(ctx, SubSystem)
	ctx = logger.ContextWithLogTrace(ctx, uuid.New().String())

	if s.signer == nil {
		return nil, ErrNoSigner
	}

	preview, err := s.prepare(ctx, request)
	if err != nil {
		return nil, err
	}

	result, err := s.signAndBroadcast(ctx, request.FromAddress, preview.Tx)
	if err != nil {
		return nil, err
	}
	result.Selection = preview.Selection

	logger.InfoWithFields(ctx, []logger.Field{
		logger.Stringer("txid", result.TxID),
		logger.String("from", request.FromAddress),
		logger.String("to", request.ToAddress),
		logger.Uint64("amount", request.Amount),
		logger.Uint64("fee", result.Fee),
		logger.Int("inputs", len(preview.Selection.Inputs)),
	}, "Sent payment")

	return result, nil
}

func (s *Spender) prepare(ctx context.Context, request SendRequest) (*Preview, error) {
	if err := txbuilder.ValidateSpendParams(txbuilder.SpendParams{
		FromAddress: request.FromAddress,
		ToAddress:   request.ToAddress,
		Amount:      request.Amount,
		FeeRate:     1, // zero fee rate is replaced below
	}); err != nil {
		return nil, err
	}

	feeRate, err := s.feeRate(ctx, request.FeeRate)
	if err != nil {
		return nil, err
	}

	utxos, err := s.client.ListUTXOs(ctx, request.FromAddress)
	if err != nil {
		return nil, errors.Wrap(protection.ErrIndexUnavailable, errors.Wrap(err, "list utxos").Error())
	}

	safe, err := s.provider.GetSafeUTXOs(ctx, request.FromAddress, utxos)
	if err != nil {
		return nil, errors.Wrap(err, "safe utxos")
	}

	result := &Preview{
		Requirements: s.selector.AnalyzeRequirements(safe, utxos, request.Amount, feeRate),
		FeeRate:      feeRate,
	}

	selection, err := s.selector.SelectInputsForSpend(safe, txbuilder.SpendRequest{
		Amount:          request.Amount,
		FeeRate:         feeRate,
		ReceiverPaysFee: request.ReceiverPaysFee,
	})
	if err != nil {
		logger.WarnWithFields(ctx, []logger.Field{
			logger.String("address", request.FromAddress),
			logger.Uint64("amount", request.Amount),
			logger.Uint64("safe_balance", bitcoin.SumValues(safe)),
			logger.Int("protected", len(utxos)-len(safe)),
		}, "Failed to select inputs : %s", err)
		return nil, errors.Wrap(err, "select")
	}
	result.Selection = selection

	tx, err := txbuilder.BuildUnsignedTx(selection, []txbuilder.Payment{
		{LockingScript: request.ToScript, Value: request.Amount},
	}, request.OwnerScript, s.dustLimit)
	if err != nil {
		return nil, errors.Wrap(err, "build tx")
	}
	result.Tx = tx

	return result, nil
}

// SendInscription moves one protected output to the payee. This is the only path that spends a
// protected output and it does so only for the output named in the request.
func (s *Spender) SendInscription(ctx context.Context,
	request InscriptionSendRequest) (*SendResult, error) {

	ctx = logger.ContextWithLogSubSystem(ctx, SubSystem)
	ctx = logger.ContextWithLogTrace(ctx, uuid.New().String())

	if s.signer == nil {
		return nil, ErrNoSigner
	}

	if err := txbuilder.ValidateSpendParams(txbuilder.SpendParams{
		FromAddress: request.FromAddress,
		ToAddress:   request.ToAddress,
		Amount:      1, // the value is the inscription output's
		FeeRate:     1,
	}); err != nil {
		return nil, err
	}

	feeRate, err := s.feeRate(ctx, request.FeeRate)
	if err != nil {
		return nil, err
	}

	utxos, err := s.client.ListUTXOs(ctx, request.FromAddress)
	if err != nil {
		return nil, errors.Wrap(protection.ErrIndexUnavailable, errors.Wrap(err, "list utxos").Error())
	}

	analysis, err := s.provider.Analyze(ctx, request.FromAddress, utxos)
	if err != nil {
		return nil, errors.Wrap(err, "analyze")
	}

	classified, exists := analysis.Find(request.Outpoint)
	if !exists {
		return nil, errors.Wrap(ErrNotFound, request.Outpoint.String())
	}
	if !classified.Classification.Protected {
		return nil, errors.Wrap(ErrNotProtected, request.Outpoint.String())
	}

	selection, err := s.selector.SelectFeeInputs(analysis.Safe,
		[]bitcoin.UTXO{classified.UTXO}, 1, feeRate)
	if err != nil {
		return nil, errors.Wrap(err, "select fee inputs")
	}

	tx, err := txbuilder.BuildUnsignedTx(selection, []txbuilder.Payment{
		{LockingScript: request.ToScript, Value: classified.UTXO.Value},
	}, request.OwnerScript, s.dustLimit)
	if err != nil {
		return nil, errors.Wrap(err, "build tx")
	}

	result, err := s.signAndBroadcast(ctx, request.FromAddress, tx)
	if err != nil {
		return nil, err
	}
	result.Selection = selection

	logger.InfoWithFields(ctx, []logger.Field{
		logger.Stringer("txid", result.TxID),
		logger.Stringer("outpoint", request.Outpoint),
		logger.String("reason", string(classified.Classification.Reason)),
		logger.String("to", request.ToAddress),
		logger.Uint64("fee", result.Fee),
	}, "Sent inscription")

	return result, nil
}

func (s *Spender) feeRate(ctx context.Context, feeRate uint64) (uint64, error) {
	if feeRate > 0 {
		return feeRate, nil
	}

	rates, err := s.client.GetFeeRates(ctx)
	if err != nil {
		return 0, errors.Wrap(protection.ErrIndexUnavailable, errors.Wrap(err, "fee rates").Error())
	}

	return rates.Fast, nil
}

func (s *Spender) signAndBroadcast(ctx context.Context, address string,
	tx *txbuilder.UnsignedTx) (*SendResult, error) {

	signed, err := s.signer.SignTx(ctx, tx.MsgTx, tx.Inputs)
	if err != nil {
		return nil, errors.Wrap(err, "sign")
	}

	buf := &bytes.Buffer{}
	if err := signed.Serialize(buf); err != nil {
		return nil, errors.Wrap(err, "serialize")
	}

	txid, err := s.client.BroadcastTx(ctx, buf.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "broadcast")
	}

	// The spent outputs are gone and the change is new.
	s.provider.Refresh(ctx, address)

	return &SendResult{
		TxID:  *txid,
		RawTx: buf.Bytes(),
		Fee:   tx.Fee,
	}, nil
}
