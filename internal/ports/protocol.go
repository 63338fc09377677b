package ports

import (
	"context"
	"math/big"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ProtocolReader reads the lending protocol's state.
type ProtocolReader interface {
	// Snapshot reads the aggregate system state at the current head block.
	Snapshot(ctx context.Context) (domain.Snapshot, error)

	// GetTroves returns up to count Troves sorted by ascending collateral ratio, as of
	// snap.BlockNumber, with pending redistributions applied.
	GetTroves(ctx context.Context, count int, snap domain.Snapshot) ([]domain.Candidate, error)
}

// LiquidationPopulator builds the liquidation call for a batch of Troves.
type LiquidationPopulator interface {
	PopulateLiquidation(ctx context.Context, owners []common.Address, gasLimit uint64) (domain.UnsignedTx, error)
}

// Protocol is everything an attempt needs from the protocol.
type Protocol interface {
	ProtocolReader
	LiquidationPopulator
}

// HeaderReader reads block headers. Satisfied by *ethclient.Client.
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// BlockSource notifies about new blocks.
type BlockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)

	// SubscribeNewHead only works over a websocket connection.
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}
