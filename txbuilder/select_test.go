package txbuilder

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/nodecattel/junkiewally/bitcoin"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/go-test/deep"
	"github.com/pkg/errors"
)

func testUTXO(b byte, index uint32, value uint64) bitcoin.UTXO {
	var hash chainhash.Hash
	for i := range hash {
		hash[i] = b
	}

	return bitcoin.UTXO{
		TxID:  hash,
		Index: index,
		Value: value,
	}
}

func Test_Select_Scenarios(t *testing.T) {
	a := testUTXO(0xaa, 0, 100000000)
	b := testUTXO(0xbb, 1, 50000000)
	c := testUTXO(0xcc, 0, 25000000)
	safe := []bitcoin.UTXO{b} // a and c hold inscriptions

	selector := NewSelector(LinearFeeModel{}, 0)

	t.Run("safe balance too low", func(t *testing.T) {
		_, err := selector.SelectInputsForSpend(safe, SpendRequest{
			Amount:  75000000,
			FeeRate: 10,
		})
		if errors.Cause(err) != ErrInsufficientFunds {
			t.Fatalf("Wrong error : got %v, want %s", err, ErrInsufficientFunds)
		}

		if !IsErrorCode(err, ErrorCodeInsufficientValue) {
			t.Errorf("Wrong error code : %s", err)
		}

		// The full balance would have covered it.
		if bitcoin.SumValues([]bitcoin.UTXO{a, b, c}) < 75000000 {
			t.Errorf("Total balance should cover amount")
		}
	})

	t.Run("single input", func(t *testing.T) {
		selection, err := selector.SelectInputsForSpend(safe, SpendRequest{
			Amount:  40000000,
			FeeRate: 10,
		})
		if err != nil {
			t.Fatalf("Failed to select : %s", err)
		}

		want := &Selection{
			Inputs:     []bitcoin.UTXO{b},
			TotalInput: 50000000,
			Amount:     40000000,
			Fee:        2260,
			Change:     9997740,
		}

		if diff := deep.Equal(selection, want); diff != nil {
			t.Errorf("Wrong selection : %v", diff)
		}
	})
}

func Test_Select_ZeroChange(t *testing.T) {
	selector := NewSelector(LinearFeeModel{}, 0)
	safe := []bitcoin.UTXO{testUTXO(1, 0, 40002260)}

	selection, err := selector.SelectInputsForSpend(safe, SpendRequest{
		Amount:  40000000,
		FeeRate: 10,
	})
	if err != nil {
		t.Fatalf("Failed to select : %s", err)
	}

	if selection.Change != 0 {
		t.Errorf("Wrong change : got %d, want %d", selection.Change, 0)
	}
	if selection.Fee != 2260 {
		t.Errorf("Wrong fee : got %d, want %d", selection.Fee, 2260)
	}

	// One satoshi short.
	safe[0].Value--
	if _, err := selector.SelectInputsForSpend(safe, SpendRequest{
		Amount:  40000000,
		FeeRate: 10,
	}); errors.Cause(err) != ErrInsufficientFunds {
		t.Errorf("Wrong error : got %v, want %s", err, ErrInsufficientFunds)
	}
}

func Test_Select_Empty(t *testing.T) {
	selector := NewSelector(LinearFeeModel{}, 0)

	_, err := selector.SelectInputsForSpend(nil, SpendRequest{
		Amount:  1,
		FeeRate: 1,
	})
	if errors.Cause(err) != ErrInsufficientFunds {
		t.Fatalf("Wrong error : got %v, want %s", err, ErrInsufficientFunds)
	}
}

func Test_Select_FeeRefinement(t *testing.T) {
	selector := NewSelector(LinearFeeModel{}, 0)

	// Each input pays for itself plus a little so every added input raises the fee.
	var safe []bitcoin.UTXO
	for i := 0; i < 10; i++ {
		safe = append(safe, testUTXO(byte(i), 0, 10000))
	}

	selection, err := selector.SelectInputsForSpend(safe, SpendRequest{
		Amount:  60000,
		FeeRate: 5,
	})
	if err != nil {
		t.Fatalf("Failed to select : %s", err)
	}

	wantFee := (uint64(10) + uint64(len(selection.Inputs))*148 + 2*34) * 5
	if selection.Fee != wantFee {
		t.Errorf("Wrong fee : got %d, want %d", selection.Fee, wantFee)
	}

	if selection.TotalInput < 60000+selection.Fee {
		t.Errorf("Inputs don't cover amount and fee : %d < %d", selection.TotalInput,
			60000+selection.Fee)
	}

	if len(selection.Inputs) != 7 {
		t.Errorf("Wrong input count : got %d, want %d", len(selection.Inputs), 7)
	}

	if selection.Change != selection.TotalInput-60000-selection.Fee {
		t.Errorf("Wrong change : got %d", selection.Change)
	}
}

func Test_Select_LargestFirst(t *testing.T) {
	selector := NewSelector(LinearFeeModel{}, 0)

	first := testUTXO(1, 0, 5000)
	second := testUTXO(2, 0, 20000)
	third := testUTXO(3, 0, 5000)
	fourth := testUTXO(4, 0, 1000)

	selection, err := selector.SelectInputsForSpend([]bitcoin.UTXO{first, second, third, fourth},
		SpendRequest{
			Amount:  22000,
			FeeRate: 1,
		})
	if err != nil {
		t.Fatalf("Failed to select : %s", err)
	}

	// Equal values keep their given order.
	want := []bitcoin.UTXO{second, first}
	if diff := deep.Equal(selection.Inputs, want); diff != nil {
		t.Errorf("Wrong inputs : %v", diff)
	}
}

func Test_Select_Deterministic(t *testing.T) {
	selector := NewSelector(LinearFeeModel{}, 0)
	random := rand.New(rand.NewSource(7))

	var safe []bitcoin.UTXO
	for i := 0; i < 100; i++ {
		safe = append(safe, testUTXO(byte(i), uint32(i), uint64(1000+random.Intn(5)*1000)))
	}

	request := SpendRequest{
		Amount:  150000,
		FeeRate: 2,
	}

	first, err := selector.SelectInputsForSpend(safe, request)
	if err != nil {
		t.Fatalf("Failed to select : %s", err)
	}

	for i := 0; i < 10; i++ {
		selection, err := selector.SelectInputsForSpend(safe, request)
		if err != nil {
			t.Fatalf("Failed to select : %s", err)
		}

		if diff := deep.Equal(selection, first); diff != nil {
			t.Fatalf("Selection %d differs : %v", i, diff)
		}
	}

	// The candidate list is not reordered.
	if safe[0].Index != 0 || safe[99].Index != 99 {
		t.Errorf("Candidate list modified")
	}
}

func Test_Select_Covers(t *testing.T) {
	selector := NewSelector(SizeFeeModel{}, 0)
	random := rand.New(rand.NewSource(11))

	for run := 0; run < 100; run++ {
		t.Run(fmt.Sprintf("run %d", run), func(t *testing.T) {
			var safe []bitcoin.UTXO
			count := random.Intn(20)
			for i := 0; i < count; i++ {
				safe = append(safe, testUTXO(byte(i), uint32(run), uint64(1+random.Intn(100000))))
			}

			request := SpendRequest{
				Amount:          uint64(1 + random.Intn(500000)),
				FeeRate:         uint64(1 + random.Intn(20)),
				ReceiverPaysFee: random.Intn(2) == 0,
			}

			selection, err := selector.SelectInputsForSpend(safe, request)
			if err != nil {
				switch errors.Cause(err) {
				case ErrInsufficientFunds, ErrAmountBelowFee:
					return
				default:
					t.Fatalf("Failed to select : %s", err)
				}
			}

			required := request.Amount
			if !request.ReceiverPaysFee {
				required += selection.Fee
			}

			if selection.TotalInput < required {
				t.Fatalf("Inputs don't cover required : %d < %d", selection.TotalInput, required)
			}
			if selection.TotalInput != bitcoin.SumValues(selection.Inputs) {
				t.Fatalf("Wrong total input : got %d, want %d", selection.TotalInput,
					bitcoin.SumValues(selection.Inputs))
			}
			if selection.Change != selection.TotalInput-required {
				t.Fatalf("Wrong change : got %d, want %d", selection.Change,
					selection.TotalInput-required)
			}

			fee, err := EstimatedFee(selector.FeeModel, len(selection.Inputs), DefaultOutputCount,
				request.FeeRate)
			if err != nil {
				t.Fatalf("Failed to estimate fee : %s", err)
			}
			if selection.Fee < fee {
				t.Fatalf("Fee under estimated : got %d, want at least %d", selection.Fee, fee)
			}
		})
	}
}

func Test_Select_ReceiverPaysFee(t *testing.T) {
	selector := NewSelector(LinearFeeModel{}, 0)
	safe := []bitcoin.UTXO{testUTXO(1, 0, 50000000)}

	selection, err := selector.SelectInputsForSpend(safe, SpendRequest{
		Amount:          50000000,
		FeeRate:         10,
		ReceiverPaysFee: true,
	})
	if err != nil {
		t.Fatalf("Failed to select : %s", err)
	}

	if selection.Change != 0 {
		t.Errorf("Wrong change : got %d, want %d", selection.Change, 0)
	}
	if selection.PaymentValue() != 50000000-2260 {
		t.Errorf("Wrong payment value : got %d, want %d", selection.PaymentValue(),
			50000000-2260)
	}

	_, err = selector.SelectInputsForSpend(safe, SpendRequest{
		Amount:          2000,
		FeeRate:         10,
		ReceiverPaysFee: true,
	})
	if errors.Cause(err) != ErrAmountBelowFee {
		t.Errorf("Wrong error : got %v, want %s", err, ErrAmountBelowFee)
	}
}

func Test_Select_TooManyInputs(t *testing.T) {
	selector := NewSelector(LinearFeeModel{}, 5)

	var safe []bitcoin.UTXO
	for i := 0; i < 10; i++ {
		safe = append(safe, testUTXO(byte(i), 0, 1000))
	}

	_, err := selector.SelectInputsForSpend(safe, SpendRequest{
		Amount:  5000,
		FeeRate: 1,
	})
	if errors.Cause(err) != ErrTooManyInputs {
		t.Fatalf("Wrong error : got %v, want %s", err, ErrTooManyInputs)
	}

	// Not enough even with every input is reported as insufficient, not too many.
	_, err = selector.SelectInputsForSpend(safe, SpendRequest{
		Amount:  20000,
		FeeRate: 1,
	})
	if errors.Cause(err) != ErrInsufficientFunds {
		t.Fatalf("Wrong error : got %v, want %s", err, ErrInsufficientFunds)
	}
}

func Test_Select_InvalidRequest(t *testing.T) {
	selector := NewSelector(LinearFeeModel{}, 0)
	safe := []bitcoin.UTXO{testUTXO(1, 0, 50000)}

	if _, err := selector.SelectInputsForSpend(safe, SpendRequest{FeeRate: 1}); errors.Cause(err) != ErrInvalidAmount {
		t.Errorf("Wrong error : got %v, want %s", err, ErrInvalidAmount)
	}

	if _, err := selector.SelectInputsForSpend(safe, SpendRequest{Amount: 1}); errors.Cause(err) != ErrInvalidFeeRate {
		t.Errorf("Wrong error : got %v, want %s", err, ErrInvalidFeeRate)
	}
}

func Test_SelectFeeInputs(t *testing.T) {
	selector := NewSelector(LinearFeeModel{}, 0)

	inscription := testUTXO(0xaa, 0, 100000)
	funding := []bitcoin.UTXO{
		testUTXO(1, 0, 1000),
		testUTXO(2, 0, 50000),
		inscription, // must never fund
	}

	selection, err := selector.SelectFeeInputs(funding, []bitcoin.UTXO{inscription}, 1, 10)
	if err != nil {
		t.Fatalf("Failed to select : %s", err)
	}

	// 2 inputs, 2 outputs
	wantFee := uint64((10 + 2*148 + 2*34) * 10)
	want := &Selection{
		Inputs:     []bitcoin.UTXO{inscription, funding[1]},
		TotalInput: 150000,
		Amount:     100000,
		Fee:        wantFee,
		Change:     50000 - wantFee,
	}

	if diff := deep.Equal(selection, want); diff != nil {
		t.Errorf("Wrong selection : %v", diff)
	}

	if _, err := selector.SelectFeeInputs(funding[:1], []bitcoin.UTXO{inscription}, 1,
		10); errors.Cause(err) != ErrInsufficientFunds {
		t.Errorf("Wrong error : got %v, want %s", err, ErrInsufficientFunds)
	}
}

func Test_AnalyzeRequirements(t *testing.T) {
	selector := NewSelector(LinearFeeModel{}, 0)

	a := testUTXO(0xaa, 0, 100000000)
	b := testUTXO(0xbb, 1, 50000000)
	c := testUTXO(0xcc, 0, 25000000)
	all := []bitcoin.UTXO{a, b, c}
	safe := []bitcoin.UTXO{b}

	requirements := selector.AnalyzeRequirements(safe, all, 40000000, 10)
	if !requirements.CanProceed {
		t.Fatalf("Should proceed : %v", requirements.Err)
	}
	if requirements.EstimatedFee != 2260 {
		t.Errorf("Wrong fee : got %d, want %d", requirements.EstimatedFee, 2260)
	}
	if requirements.RequiredAmount != 40002260 {
		t.Errorf("Wrong required : got %d, want %d", requirements.RequiredAmount, 40002260)
	}
	if requirements.AvailableAmount != 50000000 {
		t.Errorf("Wrong available : got %d, want %d", requirements.AvailableAmount, 50000000)
	}
	if requirements.ProtectedCount != 2 {
		t.Errorf("Wrong protected count : got %d, want %d", requirements.ProtectedCount, 2)
	}
	if len(requirements.Warnings) != 1 {
		t.Errorf("Wrong warning count : got %d, want %d", len(requirements.Warnings), 1)
	}

	requirements = selector.AnalyzeRequirements(safe, all, 75000000, 10)
	if requirements.CanProceed {
		t.Fatalf("Should not proceed")
	}
	if errors.Cause(requirements.Err) != ErrInsufficientFunds {
		t.Errorf("Wrong error : got %v, want %s", requirements.Err, ErrInsufficientFunds)
	}
	if len(requirements.Warnings) != 2 {
		t.Errorf("Wrong warning count : got %d, want %d", len(requirements.Warnings), 2)
	}
}

func Test_ValidateSpendParams(t *testing.T) {
	if err := ValidateSpendParams(SpendParams{
		FromAddress: "from",
		ToAddress:   "to",
		Amount:      1,
		FeeRate:     1,
	}); err != nil {
		t.Fatalf("Valid params failed : %s", err)
	}

	err := ValidateSpendParams(SpendParams{
		FromAddress: "from",
		ToAddress:   "to",
	})
	validation, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("Wrong error type : %v", err)
	}

	if len(validation.Problems) != 2 {
		t.Errorf("Wrong problem count : got %d, want %d", len(validation.Problems), 2)
	}
	if errors.Cause(err) != ErrInvalidAmount {
		t.Errorf("Wrong cause : got %v, want %s", errors.Cause(err), ErrInvalidAmount)
	}
}
