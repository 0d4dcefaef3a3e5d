package protection

import (
	"context"

	"github.com/nodecattel/junkiewally/bitcoin"

	"github.com/google/uuid"
	"github.com/tokenized/logger"
)

// Provider is the spend facing view of protection. It classifies through the Classifier and reuses
// the index answers in the Cache while they are fresh.
type Provider struct {
	classifier *Classifier
	cache      *Cache
}

func NewProvider(classifier *Classifier, cache *Cache) *Provider {
	return &Provider{
		classifier: classifier,
		cache:      cache,
	}
}

// Analyze returns the full classification of utxos.
func (p *Provider) Analyze(ctx context.Context, address string,
	utxos []bitcoin.UTXO) (*Result, error) {

	if len(utxos) == 0 {
		return newResult(), nil
	}

	ctx = logger.ContextWithLogSubSystem(ctx, SubSystem)
	ctx = logger.ContextWithLogTrace(ctx, uuid.New().String())

	snap, expires, generation, cached := p.cache.get(address)
	if cached && !snap.covers(utxos) {
		// Outputs created after the fetch may hold inscriptions the cached answers don't list.
		logger.VerboseWithFields(ctx, []logger.Field{
			logger.String("address", address),
		}, "Cached protection data is missing outputs")
		cached = false
	}

	if !cached {
		fetched, err := p.classifier.fetch(ctx, address, utxos)
		if err != nil {
			return nil, err
		}
		snap = fetched
	} else {
		logger.VerboseWithFields(ctx, []logger.Field{
			logger.String("address", address),
		}, "Using cached protection data")
	}

	resolved, failed := p.classifier.resolve(ctx, address, snap, utxos)

	// Snapshots with degraded detail are not kept so the next call retries the index.
	if !resolved.incomplete {
		stored := true
		if !cached {
			stored = p.cache.put(address, resolved, generation)
		} else if resolved != snap {
			stored = p.cache.extend(address, resolved, expires, generation)
		}

		if !stored {
			logger.VerboseWithFields(ctx, []logger.Field{
				logger.String("address", address),
			}, "Protection cache cleared during classification, not storing")
		}
	}

	result := resolved.classify(utxos, failed)

	logger.InfoWithFields(ctx, []logger.Field{
		logger.String("address", address),
		logger.Int("safe", len(result.Safe)),
		logger.Int("protected", len(result.Protected)),
		logger.Uint64("total_safe", result.TotalSafe),
		logger.Uint64("total_protected", result.TotalProtected),
		logger.Bool("incomplete", result.Incomplete),
	}, "Classified outputs")

	return result, nil
}

// GetSafeUTXOs returns only the outputs that may be spent as plain value.
func (p *Provider) GetSafeUTXOs(ctx context.Context, address string,
	utxos []bitcoin.UTXO) ([]bitcoin.UTXO, error) {

	result, err := p.Analyze(ctx, address, utxos)
	if err != nil {
		return nil, err
	}

	return result.Safe, nil
}

// IsProtected classifies one output using the same cached batch answers as Analyze. Errors are
// returned so a spend can be blocked.
func (p *Provider) IsProtected(ctx context.Context, address string,
	utxo bitcoin.UTXO) (bool, error) {

	result, err := p.Analyze(ctx, address, []bitcoin.UTXO{utxo})
	if err != nil {
		return false, err
	}

	return len(result.Protected) > 0, nil
}

// IsProtectedAdvisory is IsProtected for display only, such as a badge on an output. It reports
// false when the index is unavailable so it must never be used to decide whether to spend.
func (p *Provider) IsProtectedAdvisory(ctx context.Context, address string,
	utxo bitcoin.UTXO) bool {

	protected, err := p.IsProtected(ctx, address, utxo)
	if err != nil {
		logger.WarnWithFields(ctx, []logger.Field{
			logger.String("address", address),
			logger.String("utxo", utxo.ID()),
		}, "Advisory protection check failed : %s", err)
		return false
	}

	return protected
}

// ProtectionDetails returns the classification of a protected output, or nil when it is safe.
func (p *Provider) ProtectionDetails(ctx context.Context, address string,
	utxo bitcoin.UTXO) (*ClassifiedUTXO, error) {

	result, err := p.Analyze(ctx, address, []bitcoin.UTXO{utxo})
	if err != nil {
		return nil, err
	}

	if len(result.Protected) == 0 {
		return nil, nil
	}

	return &result.Protected[0], nil
}

// Refresh drops the cached index answers for one address so the next call rescans it.
func (p *Provider) Refresh(ctx context.Context, address string) {
	p.cache.Delete(address)
	logger.VerboseWithFields(ctx, []logger.Field{
		logger.String("address", address),
	}, "Cleared protection cache for address")
}

// ClearCache drops all cached index answers.
func (p *Provider) ClearCache() {
	p.cache.Clear()
}
