package protection

import (
	"context"
	"time"

	"github.com/nodecattel/junkiewally/bitcoin"
	"github.com/nodecattel/junkiewally/indexer"

	"github.com/pkg/errors"
	"github.com/tokenized/logger"
	"golang.org/x/sync/errgroup"
)

const (
	SubSystem = "Protection" // For logger
)

// Classifier partitions the outputs of an address into safe and protected sets using the index.
// It keeps no state between calls. Caching is the Provider's job.
type Classifier struct {
	client            indexer.Client
	policy            LookupPolicy
	lookupConcurrency int
}

// snapshot is the index's answer for one address. It is never modified after it is returned by
// fetch or resolve, so it can be shared by the cache and concurrent callers.
type snapshot struct {
	inscribed indexer.InscribedOutpoints

	// Overlay token inscription id -> detail.
	overlay map[string]*OverlayTokenDetail

	// Results of per outpoint lookups.
	resolved map[bitcoin.OutPoint][]indexer.InscriptionRef

	// Outputs of the address the batch answers were fetched for. An output not in this set may
	// have been created after the fetch, so the answers say nothing about it.
	outpoints map[bitcoin.OutPoint]bool

	// Set when the overlay token query failed.
	incomplete bool
}

// covers returns true when every output in utxos existed when the snapshot was fetched.
func (s *snapshot) covers(utxos []bitcoin.UTXO) bool {
	for _, utxo := range utxos {
		if !s.outpoints[utxo.OutPoint()] {
			return false
		}
	}
	return true
}

func NewClassifier(client indexer.Client, config Config) *Classifier {
	concurrency := config.LookupConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Classifier{
		client:            client,
		policy:            config.LookupPolicy,
		lookupConcurrency: concurrency,
	}
}

// Classify returns the classification of utxos. It fails with ErrIndexUnavailable when the
// inscribed outpoints of the address can't be retrieved. It never reports an output as safe
// without a successful inscribed outpoint query.
func (c *Classifier) Classify(ctx context.Context, address string,
	utxos []bitcoin.UTXO) (*Result, error) {

	if len(utxos) == 0 {
		return newResult(), nil
	}

	ctx = logger.ContextWithLogSubSystem(ctx, SubSystem)

	snap, err := c.fetch(ctx, address, utxos)
	if err != nil {
		return nil, err
	}

	snap, failed := c.resolve(ctx, address, snap, utxos)
	return snap.classify(utxos, failed), nil
}

// fetch runs the two batch queries concurrently. utxos are the outputs the answers will be used
// for.
func (c *Classifier) fetch(ctx context.Context, address string,
	utxos []bitcoin.UTXO) (*snapshot, error) {
	start := time.Now()

	var inscribed indexer.InscribedOutpoints
	var tokens []indexer.OverlayToken
	var overlayErr error

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		result, err := c.client.ListInscribedOutpoints(groupCtx, address)
		if err != nil {
			return errors.Wrap(err, "list inscribed outpoints")
		}
		inscribed = result
		return nil
	})
	group.Go(func() error {
		// An overlay failure only degrades detail so it must not cancel the inscribed query.
		result, err := c.client.GetOverlayTokenBalances(groupCtx, address)
		if err != nil {
			overlayErr = err
			return nil
		}
		tokens = result
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.ErrorWithFields(ctx, []logger.Field{
			logger.String("address", address),
		}, "Failed to retrieve inscribed outpoints : %s", err)
		return nil, errors.Wrap(ErrIndexUnavailable, err.Error())
	}

	if inscribed == nil {
		inscribed = make(indexer.InscribedOutpoints)
	}

	result := &snapshot{
		inscribed: inscribed,
		overlay:   buildOverlayIndex(tokens),
		resolved:  make(map[bitcoin.OutPoint][]indexer.InscriptionRef),
		outpoints: make(map[bitcoin.OutPoint]bool, len(utxos)),
	}
	for _, utxo := range utxos {
		result.outpoints[utxo.OutPoint()] = true
	}

	if overlayErr != nil {
		result.incomplete = true
		logger.WarnWithFields(ctx, []logger.Field{
			logger.String("address", address),
		}, "Overlay token balances unavailable, protecting inscriptions without detail : %s",
			overlayErr)
	}

	logger.ElapsedWithFields(ctx, start, []logger.Field{
		logger.String("address", address),
		logger.Int("inscribed", len(inscribed)),
		logger.Int("overlay_inscriptions", len(result.overlay)),
	}, "Fetched protection data")

	return result, nil
}

func buildOverlayIndex(tokens []indexer.OverlayToken) map[string]*OverlayTokenDetail {
	result := make(map[string]*OverlayTokenDetail)
	for _, token := range tokens {
		for _, utxo := range token.UTXOs {
			if _, exists := result[utxo.InscriptionID]; exists {
				continue
			}

			result[utxo.InscriptionID] = &OverlayTokenDetail{
				Ticker:            token.Ticker,
				Balance:           utxo.Balance,
				Operation:         utxo.Operation,
				InscriptionID:     utxo.InscriptionID,
				InscriptionNumber: utxo.InscriptionNumber,
			}
		}
	}

	return result
}

func (c *Classifier) shouldLookup(snap *snapshot) bool {
	switch c.policy {
	case LookupAlways:
		return true
	case LookupNever:
		return false
	default:
		return len(snap.overlay) > 0
	}
}

// resolve looks up the inscription ids of inscribed candidate outpoints that neither the batch
// listing nor an earlier lookup identified. It returns a new snapshot containing the successful
// lookups and the set of outpoints whose lookup failed.
func (c *Classifier) resolve(ctx context.Context, address string, snap *snapshot,
	utxos []bitcoin.UTXO) (*snapshot, map[bitcoin.OutPoint]bool) {

	if !c.shouldLookup(snap) {
		return snap, nil
	}

	var outpoints []bitcoin.OutPoint
	seen := make(map[bitcoin.OutPoint]bool)
	for _, utxo := range utxos {
		outpoint := utxo.OutPoint()
		if seen[outpoint] {
			continue
		}
		seen[outpoint] = true

		ids, inscribed := snap.inscribed[outpoint]
		if !inscribed || len(ids) > 0 {
			continue
		}
		if _, resolved := snap.resolved[outpoint]; resolved {
			continue
		}

		outpoints = append(outpoints, outpoint)
	}

	if len(outpoints) == 0 {
		return snap, nil
	}

	refs := make([][]indexer.InscriptionRef, len(outpoints))
	errs := make([]error, len(outpoints))

	var group errgroup.Group
	group.SetLimit(c.lookupConcurrency)
	for i, outpoint := range outpoints {
		i, outpoint := i, outpoint
		group.Go(func() error {
			refs[i], errs[i] = c.client.FindInscriptionAtOutpoint(ctx, address, outpoint)
			return nil
		})
	}
	group.Wait()

	// Copy on write so readers of the previous snapshot are unaffected.
	result := &snapshot{
		inscribed:  snap.inscribed,
		overlay:    snap.overlay,
		resolved:   make(map[bitcoin.OutPoint][]indexer.InscriptionRef, len(snap.resolved)+len(outpoints)),
		outpoints:  snap.outpoints,
		incomplete: snap.incomplete,
	}
	for outpoint, r := range snap.resolved {
		result.resolved[outpoint] = r
	}

	var failed map[bitcoin.OutPoint]bool
	for i, outpoint := range outpoints {
		if errs[i] != nil {
			if failed == nil {
				failed = make(map[bitcoin.OutPoint]bool)
			}
			failed[outpoint] = true

			logger.WarnWithFields(ctx, []logger.Field{
				logger.String("address", address),
				logger.Stringer("outpoint", outpoint),
			}, "Inscription lookup failed, protecting without detail : %s", errs[i])
			continue
		}

		result.resolved[outpoint] = refs[i]
	}

	return result, failed
}

// classify is the stable partition of utxos against the snapshot.
func (s *snapshot) classify(utxos []bitcoin.UTXO, failed map[bitcoin.OutPoint]bool) *Result {
	result := newResult()
	result.Incomplete = s.incomplete

	for _, utxo := range utxos {
		outpoint := utxo.OutPoint()
		if failed[outpoint] {
			result.Incomplete = true
		}

		result.add(utxo, s.classification(outpoint, failed[outpoint]))
	}

	return result
}

func (s *snapshot) classification(outpoint bitcoin.OutPoint, lookupFailed bool) Classification {
	ids, inscribed := s.inscribed[outpoint]
	if !inscribed {
		return Classification{}
	}

	var contentType string
	if !lookupFailed {
		refs := s.resolved[outpoint]
		if len(ids) == 0 {
			ids = make([]string, 0, len(refs))
			for _, ref := range refs {
				ids = append(ids, ref.InscriptionID)
			}
		}
		if len(refs) > 0 {
			contentType = refs[0].ContentType
		}
	}

	for _, id := range ids {
		if detail, exists := s.overlay[id]; exists {
			d := *detail
			return Classification{
				Protected:    true,
				Reason:       ReasonOverlayToken,
				OverlayToken: &d,
			}
		}
	}

	detail := &InscriptionDetail{
		ContentType: contentType,
	}
	if len(ids) > 0 {
		detail.InscriptionID = ids[0]
	}

	return Classification{
		Protected:   true,
		Reason:      ReasonInscription,
		Inscription: detail,
	}
}
