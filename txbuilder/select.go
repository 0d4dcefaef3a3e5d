package txbuilder

import (
	"fmt"
	"sort"

	"github.com/nodecattel/junkiewally/bitcoin"
)

// Selector chooses inputs from safe outputs. Selection is deterministic: outputs are taken largest
// first, and outputs of equal value keep the order they were given in.
type Selector struct {
	FeeModel  FeeModel
	MaxInputs int
}

// SpendRequest describes a payment to fund.
type SpendRequest struct {
	Amount  uint64 `json:"amount"`
	FeeRate uint64 `json:"fee_rate"` // satoshis per byte

	// When set the fee is taken from the payment instead of added to it.
	ReceiverPaysFee bool `json:"receiver_pays_fee"`

	// Output count used in the fee estimate. Zero means a payment and change.
	Outputs int `json:"outputs,omitempty"`
}

// Selection is the funding chosen for a tx.
type Selection struct {
	Inputs     []bitcoin.UTXO `json:"inputs"`
	TotalInput uint64         `json:"total_input"`

	// Amount is the value of the outputs being paid before any fee is taken from them.
	Amount          uint64 `json:"amount"`
	Fee             uint64 `json:"fee"`
	Change          uint64 `json:"change"`
	ReceiverPaysFee bool   `json:"receiver_pays_fee"`
}

func NewSelector(feeModel FeeModel, maxInputs int) *Selector {
	if feeModel == nil {
		feeModel = LinearFeeModel{}
	}
	if maxInputs <= 0 {
		maxInputs = DefaultMaxInputs
	}

	return &Selector{
		FeeModel:  feeModel,
		MaxInputs: maxInputs,
	}
}

// SelectInputsForSpend selects inputs from safe to pay request.Amount plus the fee. The fee is
// estimated for one input first and re-estimated with the actual input count until the selected
// inputs cover it.
func (s *Selector) SelectInputsForSpend(safe []bitcoin.UTXO,
	request SpendRequest) (*Selection, error) {

	if request.Amount == 0 {
		return nil, newError(ErrorCodeInvalidAmount, "amount must be greater than zero")
	}

	outputs := request.Outputs
	if outputs <= 0 {
		outputs = DefaultOutputCount
	}

	return s.selectFunding(safe, nil, request.Amount, outputs, request.FeeRate,
		request.ReceiverPaysFee)
}

// SelectFeeInputs selects inputs from safe that only pay the fee of a tx that deliberately spends
// assetInputs. Each asset input's value passes through to the asset outputs unchanged. The
// returned inputs are the asset inputs followed by the funding inputs. assetOutputs does not
// include the change output.
func (s *Selector) SelectFeeInputs(safe, assetInputs []bitcoin.UTXO, assetOutputs int,
	feeRate uint64) (*Selection, error) {

	if len(assetInputs) == 0 {
		return nil, newError(ErrorCodeInvalidAmount, "no asset inputs")
	}
	if assetOutputs <= 0 {
		assetOutputs = len(assetInputs)
	}

	seen := make(map[bitcoin.OutPoint]bool)
	for _, utxo := range assetInputs {
		if seen[utxo.OutPoint()] {
			return nil, newError(ErrorCodeDuplicateInput, utxo.ID())
		}
		seen[utxo.OutPoint()] = true
	}

	// Asset inputs are never used as funding.
	var candidates []bitcoin.UTXO
	for _, utxo := range safe {
		if !seen[utxo.OutPoint()] {
			candidates = append(candidates, utxo)
		}
	}

	return s.selectFunding(candidates, assetInputs, bitcoin.SumValues(assetInputs),
		assetOutputs+1, feeRate, false)
}

func (s *Selector) selectFunding(candidates, preset []bitcoin.UTXO, amount uint64, outputs int,
	feeRate uint64, receiverPaysFee bool) (*Selection, error) {

	if feeRate == 0 {
		return nil, newError(ErrorCodeInvalidFeeRate, "fee rate must be greater than zero")
	}

	maxInputs := s.MaxInputs
	if maxInputs <= 0 {
		maxInputs = DefaultMaxInputs
	}

	sorted := sortLargestFirst(candidates)
	available := bitcoin.SumValues(sorted)
	presetValue := bitcoin.SumValues(preset)

	estimate := 1 // first pass assumes one funding input
	for {
		fee, err := EstimatedFee(s.FeeModel, len(preset)+estimate, outputs, feeRate)
		if err != nil {
			return nil, err
		}

		required := amount
		if receiverPaysFee {
			if fee >= amount {
				return nil, newError(ErrorCodeAmountBelowFee,
					fmt.Sprintf("amount %d, fee %d", amount, fee))
			}
		} else {
			required += fee
			if required < amount {
				return nil, newError(ErrorCodeInvalidAmount, "amount overflow")
			}
		}

		needed := uint64(0)
		if required > presetValue {
			needed = required - presetValue
		}

		if available < needed {
			return nil, newError(ErrorCodeInsufficientValue,
				fmt.Sprintf("available %d, required %d", available, needed))
		}

		count, total := 0, uint64(0)
		for _, utxo := range sorted {
			if total >= needed {
				break
			}
			total += utxo.Value
			count++
		}

		if len(preset)+count > maxInputs {
			return nil, newError(ErrorCodeTooManyInputs,
				fmt.Sprintf("%d inputs, max %d", len(preset)+count, maxInputs))
		}

		if count > estimate {
			// The fee for this many inputs is higher than estimated. Select again with it.
			estimate = count
			continue
		}

		// The fee may be estimated for more inputs than selected when fewer funding inputs cover
		// it, which only over pays.
		inputs := make([]bitcoin.UTXO, 0, len(preset)+count)
		inputs = append(inputs, preset...)
		inputs = append(inputs, sorted[:count]...)

		result := &Selection{
			Inputs:          inputs,
			TotalInput:      presetValue + total,
			Amount:          amount,
			Fee:             fee,
			ReceiverPaysFee: receiverPaysFee,
		}
		result.Change = result.TotalInput - required

		return result, nil
	}
}

// sortLargestFirst returns a copy sorted by descending value. Equal values keep their order.
func sortLargestFirst(utxos []bitcoin.UTXO) []bitcoin.UTXO {
	result := make([]bitcoin.UTXO, len(utxos))
	copy(result, utxos)

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Value > result[j].Value
	})

	return result
}

// PaymentValue is the value received by the payee after any fee taken from the payment.
func (s Selection) PaymentValue() uint64 {
	if s.ReceiverPaysFee {
		return s.Amount - s.Fee
	}
	return s.Amount
}
