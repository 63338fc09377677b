package liquity_test

import (
	"math/big"
	"testing"

	"github.com/alejandrodnm/liqbot/internal/adapters/liquity"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	troveManager = common.HexToAddress("0xA39739EF8b0231DbFA0DcdA07d7e29faAbCf4bb2")
	otherAddress = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

func ether(s string) *big.Int {
	return decimal.RequireFromString(s).Shift(18).BigInt()
}

func troveLiquidatedLog(emitter, borrower common.Address) *types.Log {
	return &types.Log{
		Address: emitter,
		Topics:  []common.Hash{liquity.TroveLiquidatedTopic, common.BytesToHash(borrower.Bytes())},
	}
}

func liquidationLog(t *testing.T, emitter common.Address, debt, coll, collGas, lusdGas string) *types.Log {
	t.Helper()
	uint256, err := abi.NewType("uint256", "", nil)
	require.NoError(t, err)
	args := abi.Arguments{{Type: uint256}, {Type: uint256}, {Type: uint256}, {Type: uint256}}
	data, err := args.Pack(ether(debt), ether(coll), ether(collGas), ether(lusdGas))
	require.NoError(t, err)
	return &types.Log{
		Address: emitter,
		Topics:  []common.Hash{liquity.LiquidationTopic},
		Data:    data,
	}
}

func TestParseLiquidationDetails_Batch(t *testing.T) {
	a := common.HexToAddress("0x1111111111111111111111111111111111111111")
	b := common.HexToAddress("0x2222222222222222222222222222222222222222")

	logs := []*types.Log{
		troveLiquidatedLog(troveManager, a),
		troveLiquidatedLog(otherAddress, common.HexToAddress("0x3333333333333333333333333333333333333333")),
		troveLiquidatedLog(troveManager, b),
		liquidationLog(t, troveManager, "30000", "20", "0.1", "400"),
	}

	details, err := liquity.ParseLiquidationDetails(troveManager, logs)
	require.NoError(t, err)

	assert.Equal(t, []common.Address{a, b}, details.LiquidatedAddresses)
	assert.True(t, decimal.RequireFromString("0.1").Equal(details.CollateralGasCompensation))
	assert.True(t, decimal.RequireFromString("400").Equal(details.LUSDGasCompensation))
	assert.True(t, decimal.RequireFromString("20").Equal(details.TotalLiquidated.Collateral))
	assert.True(t, decimal.RequireFromString("30000").Equal(details.TotalLiquidated.Debt))
}

func TestParseLiquidationDetails_FirstAggregateWins(t *testing.T) {
	logs := []*types.Log{
		liquidationLog(t, otherAddress, "1", "1", "1", "1"),
		liquidationLog(t, troveManager, "2000", "1", "0.005", "200"),
		liquidationLog(t, troveManager, "9999", "9", "9", "9"),
	}

	details, err := liquity.ParseLiquidationDetails(troveManager, logs)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.005").Equal(details.CollateralGasCompensation))
	assert.Empty(t, details.LiquidatedAddresses)
}

func TestParseLiquidationDetails_MissingAggregate(t *testing.T) {
	logs := []*types.Log{troveLiquidatedLog(troveManager, otherAddress)}

	_, err := liquity.ParseLiquidationDetails(troveManager, logs)
	assert.ErrorIs(t, err, liquity.ErrMissingLiquidationEvent)

	_, err = liquity.ParseLiquidationDetails(troveManager, nil)
	assert.ErrorIs(t, err, liquity.ErrMissingLiquidationEvent)
}

func TestEventTopics(t *testing.T) {
	assert.Equal(t,
		"0xea67486ed7ebe3eea8ab3390efd4a3c8aae48be5bea27df104a8af786c408434",
		liquity.TroveLiquidatedTopic.Hex(),
	)
	assert.Equal(t,
		"0x4152c73dd2614c4f9fc35e8c9cf16013cd588c75b49a4c1673ecffdcbcda9403",
		liquity.LiquidationTopic.Hex(),
	)
}
