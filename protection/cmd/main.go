package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/nodecattel/junkiewally/indexer"
	"github.com/nodecattel/junkiewally/protection"
	"github.com/nodecattel/junkiewally/txbuilder"

	"github.com/pkg/errors"
	"github.com/tokenized/config"
	"github.com/tokenized/logger"
	"github.com/tokenized/threads"
)

type Config struct {
	Index      indexer.Config    `json:"index"`
	Protection protection.Config `json:"protection"`
	TxBuilder  txbuilder.Config  `json:"txbuilder"`
}

func main() {
	ctx := logger.ContextWithLogger(context.Background(), true, true, "")

	cfg := &Config{}
	if err := config.LoadConfig(ctx, cfg); err != nil {
		logger.Fatal(ctx, "Failed to load config : %s", err)
	}

	maskedConfig, err := config.MarshalJSONMaskedRaw(cfg)
	if err != nil {
		logger.Fatal(ctx, "Failed to marshal config : %s", err)
	}

	logger.InfoWithFields(ctx, []logger.Field{
		logger.JSON("config", maskedConfig),
	}, "Config")

	if len(os.Args) < 2 {
		logger.Fatal(ctx, "Not enough arguments. Need command (analyze, select)")
	}

	client := indexer.NewService(cfg.Index)
	cache := protection.NewCache(cfg.Protection.CacheTTL)
	provider := protection.NewProvider(protection.NewClassifier(client, cfg.Protection), cache)

	var wait sync.WaitGroup
	var sweepThread *threads.PeriodicThread
	if cfg.Protection.SweepFrequency > 0 {
		sweepThread = cache.NewSweepThread(cfg.Protection.SweepFrequency)
		sweepThread.SetWait(&wait)
		sweepThread.Start(ctx)
	}

	switch os.Args[1] {
	case "analyze":
		err = Analyze(ctx, client, provider, os.Args[2:])
	case "select":
		err = Select(ctx, cfg, client, provider, os.Args[2:])
	default:
		err = fmt.Errorf("Unknown command : %s", os.Args[1])
	}

	if sweepThread != nil {
		sweepThread.Stop(ctx)
		wait.Wait()
	}

	if err != nil {
		logger.Fatal(ctx, "Failed : %s", err)
	}
}

// Analyze prints the classification of every output at an address.
// Parameters: <Address>
func Analyze(ctx context.Context, client indexer.Client, provider *protection.Provider,
	args []string) error {

	if len(args) != 1 {
		return errors.New("Wrong argument count: analyze [Address]")
	}
	address := args[0]

	utxos, err := client.ListUTXOs(ctx, address)
	if err != nil {
		return errors.Wrap(err, "list utxos")
	}

	result, err := provider.Analyze(ctx, address, utxos)
	if err != nil {
		return errors.Wrap(err, "analyze")
	}

	tokens, err := client.GetOverlayTokenBalances(ctx, address)
	if err != nil {
		logger.WarnWithFields(ctx, []logger.Field{
			logger.String("address", address),
		}, "Failed to get token balances : %s", err)
	}

	js, err := json.MarshalIndent(struct {
		*protection.Result
		Tokens []indexer.TokenSummary `json:"tokens"`
	}{
		Result: result,
		Tokens: indexer.SummarizeTokens(tokens),
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal")
	}

	fmt.Printf("%s\n", js)
	return result.Err()
}

// Select does a dry run of input selection for a payment from the safe outputs of an address.
// Parameters: <Address> <Amount> [Fee Rate]
func Select(ctx context.Context, cfg *Config, client indexer.Client,
	provider *protection.Provider, args []string) error {

	if len(args) < 2 || len(args) > 3 {
		return errors.New("Wrong argument count: select [Address] [Amount] [Fee Rate]")
	}
	address := args[0]

	amount, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return errors.Wrapf(err, "amount: %s", args[1])
	}

	var feeRate uint64
	if len(args) == 3 {
		feeRate, err = strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return errors.Wrapf(err, "fee rate: %s", args[2])
		}
	} else {
		rates, err := client.GetFeeRates(ctx)
		if err != nil {
			return errors.Wrap(err, "fee rates")
		}
		feeRate = rates.Fast
	}

	selector, err := txbuilder.NewSelectorFromConfig(cfg.TxBuilder)
	if err != nil {
		return errors.Wrap(err, "selector")
	}

	utxos, err := client.ListUTXOs(ctx, address)
	if err != nil {
		return errors.Wrap(err, "list utxos")
	}

	safe, err := provider.GetSafeUTXOs(ctx, address, utxos)
	if err != nil {
		return errors.Wrap(err, "safe utxos")
	}

	requirements := selector.AnalyzeRequirements(safe, utxos, amount, feeRate)

	js, err := json.MarshalIndent(requirements, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal")
	}

	fmt.Printf("%s\n", js)
	return nil
}
