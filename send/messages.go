package send

import (
	"github.com/nodecattel/junkiewally/protection"
	"github.com/nodecattel/junkiewally/txbuilder"

	"github.com/pkg/errors"
)

const (
	MessageIndexUnavailable = "Unable to verify which of your coins hold inscriptions or tokens. " +
		"Sending is blocked until the index can be reached."
	MessageInsufficientFunds = "Not enough spendable balance. Coins holding inscriptions or " +
		"tokens are never used to pay."
	MessageTooManyInputs = "This payment needs too many coins. Consolidate your balance first."
	MessageAmountBelowFee = "The amount is too small to pay the network fee."
	MessageInvalidAmount  = "Enter an amount greater than zero."
	MessageInvalidFeeRate = "Enter a fee rate greater than zero."
	MessageMissingAddress = "Enter the address to send to."
	MessageNotProtected   = "That output holds no inscription."
	MessageFailed         = "The transaction could not be created."
)

// UserMessage returns the message shown to the user for a send failure. Classification failures
// and balance failures get different messages so a user is never told to retry with protected
// coins.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	switch errors.Cause(err) {
	case protection.ErrIndexUnavailable:
		return MessageIndexUnavailable
	case txbuilder.ErrInsufficientFunds:
		return MessageInsufficientFunds
	case txbuilder.ErrTooManyInputs:
		return MessageTooManyInputs
	case txbuilder.ErrAmountBelowFee:
		return MessageAmountBelowFee
	case txbuilder.ErrInvalidAmount:
		return MessageInvalidAmount
	case txbuilder.ErrInvalidFeeRate:
		return MessageInvalidFeeRate
	case txbuilder.ErrMissingAddress:
		return MessageMissingAddress
	case ErrNotProtected:
		return MessageNotProtected
	default:
		return MessageFailed
	}
}

// IsBlocking returns true for failures that must stop the send and be shown to the user as is.
func IsBlocking(err error) bool {
	switch errors.Cause(err) {
	case protection.ErrIndexUnavailable, txbuilder.ErrInsufficientFunds,
		txbuilder.ErrTooManyInputs:
		return true
	default:
		return false
	}
}
