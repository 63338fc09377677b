package liquity

// client.go reads Liquity v1 state through plain eth_call and builds the
// batchLiquidateTroves transaction. All reads of one snapshot are pinned to the
// same block so that aggregates, price and Troves are mutually consistent.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

// ErrChainIDMismatch is returned when the RPC endpoint serves a different chain than configured.
var ErrChainIDMismatch = errors.New("chainId mismatch")

// EVMClient is the subset of *ethclient.Client used to read the protocol.
type EVMClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Addresses of the deployed protocol contracts.
type Addresses struct {
	TroveManager     common.Address
	MultiTroveGetter common.Address
	PriceFeed        common.Address
	StabilityPool    common.Address
}

// combinedTroveData mirrors MultiTroveGetter.CombinedTroveData.
type combinedTroveData struct {
	Owner            common.Address
	Debt             *big.Int
	Coll             *big.Int
	Stake            *big.Int
	SnapshotETH      *big.Int
	SnapshotLUSDDebt *big.Int
}

// Client implements ports.Protocol.
type Client struct {
	eth       EVMClient
	addresses Addresses
}

// NewClient creates a protocol client.
func NewClient(eth EVMClient, addresses Addresses) *Client {
	return &Client{eth: eth, addresses: addresses}
}

// TroveManager returns the address liquidation events are emitted from.
func (c *Client) TroveManager() common.Address {
	return c.addresses.TroveManager
}

// CheckChainID fails with ErrChainIDMismatch if the endpoint is not on the expected chain.
func (c *Client) CheckChainID(ctx context.Context, expected int64) error {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("liquity.CheckChainID: %w", err)
	}
	if id.Cmp(big.NewInt(expected)) != 0 {
		return fmt.Errorf("%w (got %s instead of %d)", ErrChainIDMismatch, id, expected)
	}
	return nil
}

// Snapshot implements ports.ProtocolReader.
func (c *Client) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("liquity.Snapshot: head: %w", err)
	}
	block := head.Number

	var coll, debt, lETH, lLUSDDebt, price, deposits *big.Int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		coll, err = c.callUint(gctx, troveManagerABI, c.addresses.TroveManager, "getEntireSystemColl", block)
		return err
	})
	g.Go(func() (err error) {
		debt, err = c.callUint(gctx, troveManagerABI, c.addresses.TroveManager, "getEntireSystemDebt", block)
		return err
	})
	g.Go(func() (err error) {
		lETH, err = c.callUint(gctx, troveManagerABI, c.addresses.TroveManager, "L_ETH", block)
		return err
	})
	g.Go(func() (err error) {
		lLUSDDebt, err = c.callUint(gctx, troveManagerABI, c.addresses.TroveManager, "L_LUSDDebt", block)
		return err
	})
	g.Go(func() (err error) {
		price, err = c.callUint(gctx, priceFeedABI, c.addresses.PriceFeed, "fetchPrice", block)
		return err
	})
	g.Go(func() (err error) {
		deposits, err = c.callUint(gctx, stabilityPoolABI, c.addresses.StabilityPool, "getTotalLUSDDeposits", block)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("liquity.Snapshot: %w", err)
	}

	snap := domain.Snapshot{
		State: domain.SystemState{
			Total:               domain.NewTrove(domain.WeiToEther(coll), domain.WeiToEther(debt)),
			Price:               domain.WeiToEther(price),
			LUSDInStabilityPool: domain.WeiToEther(deposits),
		},
		BlockNumber:        block.Uint64(),
		TotalRedistributed: domain.NewTrove(domain.WeiToEther(lETH), domain.WeiToEther(lLUSDDebt)),
	}

	slog.Debug("liquity: snapshot",
		"block", snap.BlockNumber,
		"price", snap.State.Price.StringFixed(2),
		"recovery_mode", snap.State.RecoveryMode(),
	)
	return snap, nil
}

// GetTroves implements ports.ProtocolReader. The sorted list is stored by descending
// nominal ratio, so a start index of -1 walks it from the riskiest end.
func (c *Client) GetTroves(ctx context.Context, count int, snap domain.Snapshot) ([]domain.Candidate, error) {
	if count <= 0 {
		return []domain.Candidate{}, nil
	}

	callData, err := multiTroveGetterABI.Pack("getMultipleSortedTroves", big.NewInt(-1), big.NewInt(int64(count)))
	if err != nil {
		return nil, fmt.Errorf("liquity.GetTroves: pack: %w", err)
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &c.addresses.MultiTroveGetter,
		Data: callData,
	}, blockArg(snap.BlockNumber))
	if err != nil {
		return nil, fmt.Errorf("liquity.GetTroves: call: %w", err)
	}

	vals, err := multiTroveGetterABI.Unpack("getMultipleSortedTroves", out)
	if err != nil {
		return nil, fmt.Errorf("liquity.GetTroves: unpack: %w", err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("liquity.GetTroves: empty result")
	}
	raw := *abi.ConvertType(vals[0], new([]combinedTroveData)).(*[]combinedTroveData)

	candidates := make([]domain.Candidate, 0, len(raw))
	for _, t := range raw {
		trove := domain.NewTrove(domain.WeiToEther(t.Coll), domain.WeiToEther(t.Debt)).
			ApplyRedistribution(
				domain.WeiToEther(t.Stake),
				domain.NewTrove(domain.WeiToEther(t.SnapshotETH), domain.WeiToEther(t.SnapshotLUSDDebt)),
				snap.TotalRedistributed,
			)
		candidates = append(candidates, domain.Candidate{Owner: t.Owner, Trove: trove})
	}
	return candidates, nil
}

// PopulateLiquidation implements ports.LiquidationPopulator. Fee fields are left for the
// caller to fill in.
func (c *Client) PopulateLiquidation(_ context.Context, owners []common.Address, gasLimit uint64) (domain.UnsignedTx, error) {
	if len(owners) == 0 {
		return domain.UnsignedTx{}, fmt.Errorf("liquity.PopulateLiquidation: no Troves given")
	}

	callData, err := troveManagerABI.Pack("batchLiquidateTroves", owners)
	if err != nil {
		return domain.UnsignedTx{}, fmt.Errorf("liquity.PopulateLiquidation: pack: %w", err)
	}

	return domain.UnsignedTx{
		To:       c.addresses.TroveManager,
		Data:     callData,
		GasLimit: gasLimit,
	}, nil
}

func (c *Client) callUint(ctx context.Context, contract abi.ABI, to common.Address, method string, block *big.Int) (*big.Int, error) {
	callData, err := contract.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("%s: pack: %w", method, err)
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: callData}, block)
	if err != nil {
		return nil, fmt.Errorf("%s: call: %w", method, err)
	}

	vals, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%s: unpack: %w", method, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, vals[0])
	}
	return v, nil
}

func blockArg(n uint64) *big.Int {
	if n == 0 {
		return nil
	}
	return new(big.Int).SetUint64(n)
}
