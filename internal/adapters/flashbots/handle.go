package flashbots

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainReader is the subset of *ethclient.Client a bundle handle needs.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

type bundleTx struct {
	hash   common.Hash
	sender common.Address
	nonce  uint64
}

// handle implements ports.BundleHandle.
type handle struct {
	bundleHash  string
	targetBlock uint64
	txs         []bundleTx
	chain       ChainReader
	poll        time.Duration
}

func (h *handle) BundleHash() string {
	return h.bundleHash
}

// Wait polls the head until the target block is mined, then tells whether every
// transaction of the bundle landed in it.
func (h *handle) Wait(ctx context.Context) (domain.BundleResolution, error) {
	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()

	for {
		head, err := h.chain.BlockNumber(ctx)
		if err != nil {
			slog.Debug("flashbots: block number failed, retrying", "err", err)
		} else if head >= h.targetBlock {
			return h.resolve(ctx)
		}

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("flashbots.Wait: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (h *handle) resolve(ctx context.Context) (domain.BundleResolution, error) {
	included := true
	for _, tx := range h.txs {
		receipt, err := h.chain.TransactionReceipt(ctx, tx.hash)
		if err != nil || receipt == nil || receipt.BlockNumber == nil ||
			receipt.BlockNumber.Uint64() != h.targetBlock {
			included = false
			break
		}
	}
	if included {
		return domain.BundleIncluded, nil
	}

	for _, tx := range h.txs {
		nonce, err := h.chain.NonceAt(ctx, tx.sender, nil)
		if err != nil {
			return 0, fmt.Errorf("flashbots.Wait: nonce of %s: %w", tx.sender.Hex(), err)
		}
		if nonce > tx.nonce {
			return domain.AccountNonceTooHigh, nil
		}
	}
	return domain.BlockPassedWithoutInclusion, nil
}

// Receipts returns the receipts of the bundle's transactions, in bundle order.
func (h *handle) Receipts(ctx context.Context) ([]*types.Receipt, error) {
	receipts := make([]*types.Receipt, 0, len(h.txs))
	for _, tx := range h.txs {
		receipt, err := h.chain.TransactionReceipt(ctx, tx.hash)
		if err != nil {
			return nil, fmt.Errorf("flashbots.Receipts: %s: %w", tx.hash.Hex(), err)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

func decodeTxs(signedTxs [][]byte) ([]bundleTx, error) {
	out := make([]bundleTx, 0, len(signedTxs))
	for i, raw := range signedTxs {
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("decode tx %d: %w", i, err)
		}
		sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
		if err != nil {
			return nil, fmt.Errorf("recover sender of tx %d: %w", i, err)
		}
		out = append(out, bundleTx{hash: tx.Hash(), sender: sender, nonce: tx.Nonce()})
	}
	return out, nil
}
