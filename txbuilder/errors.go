package txbuilder

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	ErrorCodeInsufficientValue = 1
	ErrorCodeTooManyInputs     = 2
	ErrorCodeInvalidAmount     = 3
	ErrorCodeInvalidFeeRate    = 4
	ErrorCodeAmountBelowFee    = 5
	ErrorCodeDuplicateInput    = 6
	ErrorCodeMissingInputData  = 7
	ErrorCodeInputMismatch     = 8
	ErrorCodeValueMismatch     = 9
)

// IsErrorCode returns true if err, or an error it wraps, is a tx builder error with the code.
func IsErrorCode(err error, code int) bool {
	var er *txBuilderError
	if !errors.As(err, &er) {
		return false
	}
	return er.code == code
}

func ErrorMessage(err error) string {
	var er *txBuilderError
	if !errors.As(err, &er) {
		return ""
	}
	return er.message
}

type txBuilderError struct {
	code    int
	message string
}

func (err *txBuilderError) Error() string {
	if len(err.message) == 0 {
		return errorCodeString(err.code)
	}
	return fmt.Sprintf("%s : %s", errorCodeString(err.code), err.message)
}

// Cause returns the sentinel error of the code so errors.Cause comparisons work.
func (err *txBuilderError) Cause() error {
	switch err.code {
	case ErrorCodeInsufficientValue:
		return ErrInsufficientFunds
	case ErrorCodeTooManyInputs:
		return ErrTooManyInputs
	case ErrorCodeInvalidAmount:
		return ErrInvalidAmount
	case ErrorCodeInvalidFeeRate:
		return ErrInvalidFeeRate
	case ErrorCodeAmountBelowFee:
		return ErrAmountBelowFee
	case ErrorCodeDuplicateInput:
		return ErrDuplicateInput
	case ErrorCodeMissingInputData:
		return ErrMissingInputData
	case ErrorCodeInputMismatch:
		return ErrInputMismatch
	case ErrorCodeValueMismatch:
		return ErrValueMismatch
	default:
		return nil
	}
}

func errorCodeString(code int) string {
	switch code {
	case ErrorCodeInsufficientValue:
		return "Insufficient Funds"
	case ErrorCodeTooManyInputs:
		return "Too Many Inputs"
	case ErrorCodeInvalidAmount:
		return "Invalid Amount"
	case ErrorCodeInvalidFeeRate:
		return "Invalid Fee Rate"
	case ErrorCodeAmountBelowFee:
		return "Amount Below Fee"
	case ErrorCodeDuplicateInput:
		return "Duplicate Input"
	case ErrorCodeMissingInputData:
		return "Missing Input Data"
	case ErrorCodeInputMismatch:
		return "Input Mismatch"
	case ErrorCodeValueMismatch:
		return "Value Mismatch"
	default:
		return "Unknown Error Code"
	}
}

func newError(code int, message string) *txBuilderError {
	result := txBuilderError{code: code, message: message}
	return &result
}
