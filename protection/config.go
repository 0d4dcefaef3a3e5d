package protection

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// LookupPolicy decides when the per outpoint inscription lookup is used to find the inscription
// ids of inscribed outpoints that the batch listing did not identify.
type LookupPolicy uint8

const (
	// LookupForOverlay looks up ids only when the address has overlay token inscriptions, since
	// otherwise the id can't change the reason.
	LookupForOverlay = LookupPolicy(0)

	// LookupAlways looks up every unidentified inscribed outpoint so details carry the id.
	LookupAlways = LookupPolicy(1)

	// LookupNever never looks up. Unidentified inscribed outpoints are protected as inscriptions.
	LookupNever = LookupPolicy(2)
)

type Config struct {
	CacheTTL time.Duration `default:"5m" envconfig:"PROTECTION_CACHE_TTL" json:"PROTECTION_CACHE_TTL"`

	// Frequency of removing expired cache entries. Zero disables the sweep. Expired entries are
	// never used either way.
	SweepFrequency time.Duration `default:"0s" envconfig:"PROTECTION_SWEEP_FREQUENCY" json:"PROTECTION_SWEEP_FREQUENCY"`

	// Maximum number of concurrent per outpoint lookups.
	LookupConcurrency int          `default:"4" envconfig:"PROTECTION_LOOKUP_CONCURRENCY" json:"PROTECTION_LOOKUP_CONCURRENCY"`
	LookupPolicy      LookupPolicy `default:"overlay" envconfig:"PROTECTION_LOOKUP_POLICY" json:"PROTECTION_LOOKUP_POLICY"`
}

func DefaultConfig() Config {
	return Config{
		CacheTTL:          5 * time.Minute,
		LookupConcurrency: 4,
		LookupPolicy:      LookupForOverlay,
	}
}

func (v LookupPolicy) String() string {
	switch v {
	case LookupForOverlay:
		return "overlay"
	case LookupAlways:
		return "always"
	case LookupNever:
		return "never"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(v))
	}
}

func (v LookupPolicy) MarshalText() ([]byte, error) {
	switch v {
	case LookupForOverlay, LookupAlways, LookupNever:
		return []byte(v.String()), nil
	}

	return nil, fmt.Errorf("Unknown lookup policy value \"%d\"", uint8(v))
}

func (v *LookupPolicy) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "overlay", "":
		*v = LookupForOverlay
	case "always":
		*v = LookupAlways
	case "never":
		*v = LookupNever
	default:
		return errors.Wrap(fmt.Errorf("Unknown lookup policy name \"%s\"", string(text)),
			"lookup policy")
	}

	return nil
}
