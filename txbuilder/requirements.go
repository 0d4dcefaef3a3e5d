package txbuilder

import (
	"fmt"
	"strings"

	"github.com/nodecattel/junkiewally/bitcoin"

	"github.com/pkg/errors"
)

// Requirements summarizes whether a spend can be funded from the safe outputs, for display before
// the user confirms.
type Requirements struct {
	CanProceed        bool           `json:"can_proceed"`
	RequiredAmount    uint64         `json:"required_amount"`
	AvailableAmount   uint64         `json:"available_amount"`
	EstimatedFee      uint64         `json:"estimated_fee"`
	RecommendedInputs []bitcoin.UTXO `json:"recommended_inputs"`
	ProtectedCount    int            `json:"protected_count"`
	Warnings          []string       `json:"warnings,omitempty"`

	// Err is the selection failure when CanProceed is false.
	Err error `json:"-"`
}

// AnalyzeRequirements runs the selection for amount against safe and reports the outcome. all is
// every output of the address, used to count the protected ones.
func (s *Selector) AnalyzeRequirements(safe, all []bitcoin.UTXO, amount,
	feeRate uint64) *Requirements {

	result := &Requirements{
		AvailableAmount: bitcoin.SumValues(safe),
	}

	if len(all) > len(safe) {
		result.ProtectedCount = len(all) - len(safe)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d outputs hold inscriptions and are protected from spending",
				result.ProtectedCount))
	}

	selection, err := s.SelectInputsForSpend(safe, SpendRequest{
		Amount:  amount,
		FeeRate: feeRate,
	})
	if err != nil {
		result.Err = err

		// Report the fee as if every safe output were spent.
		inputCount := len(safe)
		if inputCount == 0 {
			inputCount = 1
		}
		if fee, ferr := EstimatedFee(s.FeeModel, inputCount, DefaultOutputCount,
			feeRate); ferr == nil {
			result.EstimatedFee = fee
		}
		result.RequiredAmount = amount + result.EstimatedFee

		switch errors.Cause(err) {
		case ErrInsufficientFunds:
			result.Warnings = append(result.Warnings, "Insufficient spendable balance")
		case ErrTooManyInputs:
			result.Warnings = append(result.Warnings,
				"Too many inputs required, consolidate outputs first")
		default:
			result.Warnings = append(result.Warnings, err.Error())
		}

		return result
	}

	result.CanProceed = true
	result.EstimatedFee = selection.Fee
	result.RequiredAmount = amount + selection.Fee
	result.RecommendedInputs = selection.Inputs
	return result
}

// SpendParams are the user entered values of a send.
type SpendParams struct {
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`
	Amount      uint64 `json:"amount"`
	FeeRate     uint64 `json:"fee_rate"`
}

// ValidationError lists every problem with spend parameters. Cause returns the first problem.
type ValidationError struct {
	Problems []error
}

func (err *ValidationError) Error() string {
	messages := make([]string, len(err.Problems))
	for i, problem := range err.Problems {
		messages[i] = problem.Error()
	}
	return strings.Join(messages, ", ")
}

func (err *ValidationError) Cause() error {
	if len(err.Problems) == 0 {
		return nil
	}
	return errors.Cause(err.Problems[0])
}

// ValidateSpendParams returns a *ValidationError when any parameter is missing or zero.
func ValidateSpendParams(params SpendParams) error {
	var problems []error

	if len(strings.TrimSpace(params.FromAddress)) == 0 {
		problems = append(problems, errors.Wrap(ErrMissingAddress, "from"))
	}
	if len(strings.TrimSpace(params.ToAddress)) == 0 {
		problems = append(problems, errors.Wrap(ErrMissingAddress, "to"))
	}
	if params.Amount == 0 {
		problems = append(problems, errors.Wrap(ErrInvalidAmount, "must be greater than zero"))
	}
	if params.FeeRate == 0 {
		problems = append(problems, errors.Wrap(ErrInvalidFeeRate, "must be greater than zero"))
	}

	if len(problems) == 0 {
		return nil
	}

	return &ValidationError{Problems: problems}
}
