package indexer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nodecattel/junkiewally/bitcoin"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/tokenized/logger"
	"golang.org/x/time/rate"
)

const (
	URLGetUTXOs            = "%s/address/%s/utxo"
	URLGetFeeEstimates     = "%s/fee-estimates"
	URLPostTx              = "%s/tx"
	URLGetInscribed        = "%s/address/%s"
	URLGetTokenBalance     = "%s/junk20/balance/%s"
	URLGetOutpointInscribe = "%s/inscriptions/outpoint/%s?address=%s"

	// Confirmation targets of the fee estimate response.
	fastFeeTarget = "2"
	slowFeeTarget = "6"

	DefaultFastFeeRate = uint64(2)
	DefaultSlowFeeRate = uint64(1)
)

// Service is the HTTP implementation of Client. It talks to an electrs style service for outputs,
// fees, and broadcasts, and to the content service for inscriptions and overlay tokens.
type Service struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
}

func NewService(config Config) *Service {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	var transport = &http.Transport{
		Dial: (&net.Dialer{
			Timeout: 5 * time.Second,
		}).Dial,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Service{
		config: config,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (s *Service) ListUTXOs(ctx context.Context, address string) ([]bitcoin.UTXO, error) {
	endpoint := fmt.Sprintf(URLGetUTXOs, s.config.ElectrsURL, url.PathEscape(address))

	var response []rawUTXO
	if err := s.get(ctx, endpoint, &response); err != nil {
		return nil, errors.Wrap(err, "get")
	}

	return normalizeUTXOs(response)
}

func (s *Service) ListInscribedOutpoints(ctx context.Context,
	address string) (InscribedOutpoints, error) {

	endpoint := fmt.Sprintf(URLGetInscribed, s.config.ContentURL, url.PathEscape(address))

	var response []rawAddressInscriptions
	if err := s.get(ctx, endpoint, &response); err != nil {
		return nil, errors.Wrap(err, "get")
	}

	return normalizeInscribedOutpoints(response)
}

func (s *Service) GetOverlayTokenBalances(ctx context.Context,
	address string) ([]OverlayToken, error) {

	endpoint := fmt.Sprintf(URLGetTokenBalance, s.config.ContentURL, url.PathEscape(address))

	response := &rawTokenBalanceResponse{}
	if err := s.get(ctx, endpoint, response); err != nil {
		return nil, errors.Wrap(err, "get")
	}

	return normalizeTokens(response.Tokens)
}

func (s *Service) FindInscriptionAtOutpoint(ctx context.Context, address string,
	outpoint bitcoin.OutPoint) ([]InscriptionRef, error) {

	endpoint := fmt.Sprintf(URLGetOutpointInscribe, s.config.ContentURL,
		url.PathEscape(outpoint.String()), url.QueryEscape(address))

	var response []rawInscriptionRef
	if err := s.get(ctx, endpoint, &response); err != nil {
		if httpErr, ok := errors.Cause(err).(HTTPError); ok && httpErr.Status == http.StatusNotFound {
			return []InscriptionRef{}, nil
		}
		return nil, errors.Wrap(err, "get")
	}

	return normalizeInscriptionRefs(response)
}

func (s *Service) GetFeeRates(ctx context.Context) (*FeeRates, error) {
	endpoint := fmt.Sprintf(URLGetFeeEstimates, s.config.ElectrsURL)

	var response map[string]float64
	if err := s.get(ctx, endpoint, &response); err != nil {
		return nil, errors.Wrap(err, "get")
	}

	result := &FeeRates{
		Fast: DefaultFastFeeRate,
		Slow: DefaultSlowFeeRate,
	}

	if fast, exists := response[fastFeeTarget]; exists && fast >= 0 {
		result.Fast = roundRate(fast) + 1
	}
	if slow, exists := response[slowFeeTarget]; exists && slow >= 0 {
		result.Slow = roundRate(slow)
	}

	return result, nil
}

func (s *Service) BroadcastTx(ctx context.Context, rawTx []byte) (*chainhash.Hash, error) {
	endpoint := fmt.Sprintf(URLPostTx, s.config.ElectrsURL)

	// Broadcasts are not retried. A timed out broadcast may still have been accepted.
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(ErrTimeout, err.Error())
	}

	var response string
	if err := s.do(ctx, http.MethodPost, endpoint, "text/plain",
		strings.NewReader(hex.EncodeToString(rawTx)), &response); err != nil {
		return nil, errors.Wrap(err, "post")
	}

	response = strings.TrimSpace(response)
	txid, err := bitcoin.ParseTxID(response)
	if err != nil {
		return nil, errors.Wrap(ErrBroadcastRejected, response)
	}

	return txid, nil
}

// get performs a GET within the configured timeout, retrying timeouts and server errors with
// exponential backoff.
func (s *Service) get(ctx context.Context, endpoint string, response interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	attempt := 0
	operation := func() error {
		attempt++
		if err := s.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(errors.Wrap(ErrTimeout, err.Error()))
		}

		err := s.do(ctx, http.MethodGet, endpoint, "", nil, response)
		if err == nil {
			return nil
		}

		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}

		logger.WarnWithFields(ctx, []logger.Field{
			logger.String("url", endpoint),
			logger.Int("attempt", attempt),
		}, "Index request failed : %s", err)
		return err
	}

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = s.config.RetryDelay
	retry.MaxElapsedTime = 0

	maxRetries := s.config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	if err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(retry, uint64(maxRetries)), ctx)); err != nil {
		if errors.Cause(err) != ErrTimeout && isTimeout(err) {
			return errors.Wrap(ErrTimeout, err.Error())
		}
		return err
	}

	return nil
}

func (s *Service) do(ctx context.Context, method, endpoint, contentType string, body io.Reader,
	response interface{}) error {

	httpRequest, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return errors.Wrap(err, "create request")
	}

	if len(s.config.APIKey) > 0 {
		httpRequest.Header.Add("Authorization", "Bearer "+s.config.APIKey)
	}

	if len(contentType) > 0 {
		httpRequest.Header.Add("Content-Type", contentType)
	}

	httpResponse, err := s.client.Do(httpRequest)
	if err != nil {
		if isTimeout(err) {
			return errors.Wrap(ErrTimeout, errors.Wrap(err, "http "+method).Error())
		}

		return errors.Wrap(err, "http "+method)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		b, rerr := io.ReadAll(httpResponse.Body)
		if rerr == nil {
			return HTTPError{
				Status:  httpResponse.StatusCode,
				Message: strings.TrimSpace(string(b)),
			}
		}

		return HTTPError{Status: httpResponse.StatusCode}
	}

	if response == nil {
		return nil
	}

	if responseString, isString := response.(*string); isString {
		b, err := io.ReadAll(httpResponse.Body)
		if err != nil {
			if isTimeout(err) {
				return errors.Wrap(ErrTimeout, err.Error())
			}
			return errors.Wrap(err, "read body")
		}
		*responseString = string(b)
		return nil
	}

	if err := json.NewDecoder(httpResponse.Body).Decode(response); err != nil {
		if isTimeout(err) {
			return errors.Wrap(ErrTimeout, err.Error())
		}
		return errors.Wrap(ErrMalformedResponse, err.Error())
	}

	return nil
}

func isTimeout(err error) bool {
	if errors.Cause(err) == context.DeadlineExceeded {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

func roundRate(rate float64) uint64 {
	return uint64(rate + 0.5)
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
