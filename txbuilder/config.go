package txbuilder

import (
	"github.com/pkg/errors"
)

type Config struct {
	FeeModel  string `default:"linear" envconfig:"FEE_MODEL" json:"FEE_MODEL"`
	MaxInputs int    `default:"500" envconfig:"MAX_INPUTS" json:"MAX_INPUTS"`
	DustLimit uint64 `default:"546" envconfig:"DUST_LIMIT" json:"DUST_LIMIT"`
}

func DefaultConfig() Config {
	return Config{
		FeeModel:  FeeModelLinear,
		MaxInputs: DefaultMaxInputs,
		DustLimit: DefaultDustLimit,
	}
}

// NewSelectorFromConfig returns a selector using the configured fee model.
func NewSelectorFromConfig(config Config) (*Selector, error) {
	model, err := FeeModelByName(config.FeeModel)
	if err != nil {
		return nil, errors.Wrap(err, "fee model")
	}

	return NewSelector(model, config.MaxInputs), nil
}
