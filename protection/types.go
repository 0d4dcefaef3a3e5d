package protection

import (
	"github.com/nodecattel/junkiewally/bitcoin"
)

// Reason is why an output must not be spent as plain value.
type Reason string

const (
	ReasonNone Reason = ""

	// ReasonOverlayToken means the output holds an inscription backing an overlay token balance.
	// It takes precedence over ReasonInscription.
	ReasonOverlayToken Reason = "overlay_token"

	// ReasonInscription means the output holds an inscription with no recognized token semantics,
	// or one whose details could not be retrieved.
	ReasonInscription Reason = "inscription"
)

// OverlayTokenDetail describes the overlay token balance held by a protected output.
type OverlayTokenDetail struct {
	Ticker            string `json:"ticker"`
	Balance           string `json:"balance"`
	Operation         string `json:"operation"`
	InscriptionID     string `json:"inscription_id"`
	InscriptionNumber int64  `json:"inscription_number"`
}

// InscriptionDetail describes a generic inscription. Both fields are empty when the index reported
// the outpoint as inscribed but nothing more is known.
type InscriptionDetail struct {
	InscriptionID string `json:"inscription_id,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
}

type Classification struct {
	Protected    bool                `json:"protected"`
	Reason       Reason              `json:"reason,omitempty"`
	OverlayToken *OverlayTokenDetail `json:"overlay_token,omitempty"`
	Inscription  *InscriptionDetail  `json:"inscription,omitempty"`
}

type ClassifiedUTXO struct {
	UTXO           bitcoin.UTXO   `json:"utxo"`
	Classification Classification `json:"classification"`
}

// Result is the classification of a set of outputs for an address at a point in time. Safe and
// Protected keep the relative order of the classified list.
type Result struct {
	Safe           []bitcoin.UTXO   `json:"safe"`
	Protected      []ClassifiedUTXO `json:"protected"`
	TotalSafe      uint64           `json:"total_safe"`
	TotalProtected uint64           `json:"total_protected"`

	// Incomplete is set when some detail could not be retrieved. Safety is never degraded, only
	// the reasons and details of protected outputs.
	Incomplete bool `json:"incomplete,omitempty"`
}

func newResult() *Result {
	return &Result{
		Safe:      []bitcoin.UTXO{},
		Protected: []ClassifiedUTXO{},
	}
}

func (r *Result) add(utxo bitcoin.UTXO, classification Classification) {
	if !classification.Protected {
		r.Safe = append(r.Safe, utxo)
		r.TotalSafe += utxo.Value
		return
	}

	r.Protected = append(r.Protected, ClassifiedUTXO{
		UTXO:           utxo,
		Classification: classification,
	})
	r.TotalProtected += utxo.Value
}

// Find returns the classification of the outpoint if it was part of the result.
func (r *Result) Find(outpoint bitcoin.OutPoint) (*ClassifiedUTXO, bool) {
	for _, utxo := range r.Safe {
		if utxo.OutPoint() == outpoint {
			return &ClassifiedUTXO{UTXO: utxo}, true
		}
	}

	for i, classified := range r.Protected {
		if classified.UTXO.OutPoint() == outpoint {
			return &r.Protected[i], true
		}
	}

	return nil, false
}

// Err returns ErrClassificationIncomplete when the result carries degraded detail.
func (r *Result) Err() error {
	if r.Incomplete {
		return ErrClassificationIncomplete
	}
	return nil
}
