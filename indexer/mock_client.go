package indexer

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/nodecattel/junkiewally/bitcoin"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

const (
	MethodListUTXOs                 = "ListUTXOs"
	MethodListInscribedOutpoints    = "ListInscribedOutpoints"
	MethodGetOverlayTokenBalances   = "GetOverlayTokenBalances"
	MethodFindInscriptionAtOutpoint = "FindInscriptionAtOutpoint"
	MethodGetFeeRates               = "GetFeeRates"
	MethodBroadcastTx               = "BroadcastTx"
)

// MockClient is an in memory Client. It counts calls per method and can be configured to fail any
// method, which makes it the index for tests of everything above the HTTP boundary.
type MockClient struct {
	utxos     map[string][]bitcoin.UTXO
	inscribed map[string]InscribedOutpoints
	tokens    map[string][]OverlayToken
	refs      map[bitcoin.OutPoint][]InscriptionRef
	feeRates  FeeRates

	failures     map[string]error
	outpointFail map[bitcoin.OutPoint]error
	calls        map[string]int
	delay        time.Duration
	broadcasts   [][]byte

	lock sync.Mutex
}

func NewMockClient() *MockClient {
	return &MockClient{
		utxos:        make(map[string][]bitcoin.UTXO),
		inscribed:    make(map[string]InscribedOutpoints),
		tokens:       make(map[string][]OverlayToken),
		refs:         make(map[bitcoin.OutPoint][]InscriptionRef),
		feeRates:     FeeRates{Fast: DefaultFastFeeRate, Slow: DefaultSlowFeeRate},
		failures:     make(map[string]error),
		outpointFail: make(map[bitcoin.OutPoint]error),
		calls:        make(map[string]int),
	}
}

func (c *MockClient) SetUTXOs(address string, utxos []bitcoin.UTXO) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.utxos[address] = append([]bitcoin.UTXO(nil), utxos...)
}

// AddInscription marks an outpoint at the address as inscribed. When inscriptionID is not empty
// it is reported by the batch listing and by the per outpoint lookup.
func (c *MockClient) AddInscription(address string, outpoint bitcoin.OutPoint,
	inscriptionID, contentType string) {

	c.lock.Lock()
	defer c.lock.Unlock()

	c.addInscription(address, outpoint, inscriptionID, contentType, true)
}

// AddHiddenInscription marks an outpoint as inscribed in the batch listing without the inscription
// id. The id is only available from the per outpoint lookup.
func (c *MockClient) AddHiddenInscription(address string, outpoint bitcoin.OutPoint,
	inscriptionID, contentType string) {

	c.lock.Lock()
	defer c.lock.Unlock()

	c.addInscription(address, outpoint, inscriptionID, contentType, false)
}

func (c *MockClient) addInscription(address string, outpoint bitcoin.OutPoint,
	inscriptionID, contentType string, listID bool) {

	ios, exists := c.inscribed[address]
	if !exists {
		ios = make(InscribedOutpoints)
		c.inscribed[address] = ios
	}

	ids := ios[outpoint]
	if ids == nil {
		ids = []string{}
	}
	if listID && len(inscriptionID) > 0 {
		ids = appendUnique(ids, inscriptionID)
	}
	ios[outpoint] = ids

	if len(inscriptionID) > 0 {
		c.refs[outpoint] = append(c.refs[outpoint], InscriptionRef{
			InscriptionID: inscriptionID,
			Owner:         address,
			ContentType:   contentType,
		})
	}
}

func (c *MockClient) SetOverlayTokens(address string, tokens []OverlayToken) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.tokens[address] = tokens
}

func (c *MockClient) SetFeeRates(rates FeeRates) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.feeRates = rates
}

// SetFailure makes every call to the method return err. A nil err clears the failure.
func (c *MockClient) SetFailure(method string, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err == nil {
		delete(c.failures, method)
		return
	}
	c.failures[method] = err
}

// SetOutpointFailure makes the per outpoint lookup fail for one outpoint.
func (c *MockClient) SetOutpointFailure(outpoint bitcoin.OutPoint, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err == nil {
		delete(c.outpointFail, outpoint)
		return
	}
	c.outpointFail[outpoint] = err
}

// SetDelay delays every call, which widens windows for concurrency tests.
func (c *MockClient) SetDelay(delay time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.delay = delay
}

func (c *MockClient) CallCount(method string) int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.calls[method]
}

func (c *MockClient) TotalCalls() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	result := 0
	for _, count := range c.calls {
		result += count
	}
	return result
}

func (c *MockClient) ResetCallCounts() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.calls = make(map[string]int)
}

// Broadcasts returns the raw txs passed to BroadcastTx.
func (c *MockClient) Broadcasts() [][]byte {
	c.lock.Lock()
	defer c.lock.Unlock()

	return append([][]byte(nil), c.broadcasts...)
}

func (c *MockClient) ListUTXOs(ctx context.Context, address string) ([]bitcoin.UTXO, error) {
	if err := c.call(ctx, MethodListUTXOs); err != nil {
		return nil, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	return append([]bitcoin.UTXO{}, c.utxos[address]...), nil
}

func (c *MockClient) ListInscribedOutpoints(ctx context.Context,
	address string) (InscribedOutpoints, error) {

	if err := c.call(ctx, MethodListInscribedOutpoints); err != nil {
		return nil, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	result := make(InscribedOutpoints)
	for outpoint, ids := range c.inscribed[address] {
		result[outpoint] = append([]string{}, ids...)
	}
	return result, nil
}

func (c *MockClient) GetOverlayTokenBalances(ctx context.Context,
	address string) ([]OverlayToken, error) {

	if err := c.call(ctx, MethodGetOverlayTokenBalances); err != nil {
		return nil, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	var result []OverlayToken
	for _, token := range c.tokens[address] {
		copyToken := token
		copyToken.UTXOs = append([]OverlayTokenUTXO(nil), token.UTXOs...)
		result = append(result, copyToken)
	}
	return result, nil
}

func (c *MockClient) FindInscriptionAtOutpoint(ctx context.Context, address string,
	outpoint bitcoin.OutPoint) ([]InscriptionRef, error) {

	if err := c.call(ctx, MethodFindInscriptionAtOutpoint); err != nil {
		return nil, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if err, exists := c.outpointFail[outpoint]; exists {
		return nil, err
	}

	var result []InscriptionRef
	for _, ref := range c.refs[outpoint] {
		if ref.Owner == address {
			result = append(result, ref)
		}
	}
	if result == nil {
		result = []InscriptionRef{}
	}
	return result, nil
}

func (c *MockClient) GetFeeRates(ctx context.Context) (*FeeRates, error) {
	if err := c.call(ctx, MethodGetFeeRates); err != nil {
		return nil, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	rates := c.feeRates
	return &rates, nil
}

// BroadcastTx records the tx and returns its hash when the bytes deserialize.
func (c *MockClient) BroadcastTx(ctx context.Context, rawTx []byte) (*chainhash.Hash, error) {
	if err := c.call(ctx, MethodBroadcastTx); err != nil {
		return nil, err
	}

	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return nil, errors.Wrap(ErrBroadcastRejected, err.Error())
	}

	c.lock.Lock()
	c.broadcasts = append(c.broadcasts, append([]byte(nil), rawTx...))
	c.lock.Unlock()

	hash := tx.TxHash()
	return &hash, nil
}

func (c *MockClient) call(ctx context.Context, method string) error {
	c.lock.Lock()
	c.calls[method]++
	err := c.failures[method]
	delay := c.delay
	c.lock.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return errors.Wrap(ErrTimeout, ctx.Err().Error())
		}
	}

	return err
}
