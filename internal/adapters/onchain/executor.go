package onchain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alejandrodnm/liqbot/internal/adapters/flashbots"
	"github.com/alejandrodnm/liqbot/internal/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// DefaultMinerCutRate is used when the relay executor is enabled without a configured rate.
var DefaultMinerCutRate = decimal.RequireFromString("0.1")

// EthClient is what the executors need from the RPC node. Satisfied by *ethclient.Client.
type EthClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ExecutorConfig selects and configures the executor.
type ExecutorConfig struct {
	ChainID         int64
	WalletKey       string
	BundleKey       string
	RelayURL        string
	ExecutorAddress string

	// MinerCutRate is nil when not configured.
	MinerCutRate *float64

	TroveManager common.Address
	LUSDToken    common.Address
}

// NewExecutor picks the executor from the configuration:
//   - no wallet key: nil (read-only mode)
//   - wallet key and executor address: relay executor
//   - wallet key only: direct executor
func NewExecutor(client EthClient, cfg ExecutorConfig) (ports.LiquidationExecutor, error) {
	if cfg.WalletKey == "" {
		return nil, nil
	}

	signer, err := NewSigner(cfg.WalletKey, cfg.ChainID)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewExecutor: wallet key: %w", err)
	}

	if cfg.ExecutorAddress == "" {
		slog.Info("onchain: broadcasting transactions directly", "wallet", signer.Address().Hex())
		return NewDirectExecutor(client, signer, cfg.TroveManager), nil
	}

	if !common.IsHexAddress(cfg.ExecutorAddress) {
		return nil, fmt.Errorf("onchain.NewExecutor: invalid executor address %q", cfg.ExecutorAddress)
	}
	if cfg.BundleKey == "" {
		return nil, fmt.Errorf("onchain.NewExecutor: bundle key is required when using a relay")
	}
	identity, err := ParsePrivateKey(cfg.BundleKey)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewExecutor: bundle key: %w", err)
	}

	rate := DefaultMinerCutRate
	if cfg.MinerCutRate == nil {
		slog.Warn("onchain: no miner cut rate configured, using default", "miner_cut_rate", DefaultMinerCutRate.String())
	} else {
		rate = decimal.NewFromFloat(*cfg.MinerCutRate)
	}

	relayURL := cfg.RelayURL
	if relayURL == "" {
		relayURL = flashbots.DefaultRelayURL
	}
	relay := flashbots.NewClient(relayURL, identity, client)

	executor, err := NewRelayExecutor(client, relay, signer, RelayExecutorConfig{
		ExecutorAddress: common.HexToAddress(cfg.ExecutorAddress),
		TroveManager:    cfg.TroveManager,
		LUSDToken:       cfg.LUSDToken,
		MinerCutRate:    rate,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("onchain: sending liquidations through relay",
		"relay", relayURL,
		"executor", cfg.ExecutorAddress,
		"miner_cut_rate", rate.String(),
	)
	return executor, nil
}
