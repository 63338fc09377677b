package liquity

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrMissingLiquidationEvent is returned when a receipt holds no Liquidation event.
var ErrMissingLiquidationEvent = errors.New("receipt has no Liquidation event")

// Event signatures emitted by TroveManager.
var (
	TroveLiquidatedTopic = crypto.Keccak256Hash([]byte("TroveLiquidated(address,uint256,uint256,uint8)"))
	LiquidationTopic     = crypto.Keccak256Hash([]byte("Liquidation(uint256,uint256,uint256,uint256)"))
)

// ParseLiquidationDetails extracts the liquidation outcome from a receipt's logs.
// Only logs emitted by troveManager are considered. Borrowers are returned in log order;
// the totals come from the first Liquidation event.
func ParseLiquidationDetails(troveManager common.Address, logs []*types.Log) (domain.LiquidationDetails, error) {
	details := domain.LiquidationDetails{LiquidatedAddresses: []common.Address{}}
	found := false

	for _, l := range logs {
		if l == nil || l.Address != troveManager || len(l.Topics) == 0 {
			continue
		}

		switch l.Topics[0] {
		case TroveLiquidatedTopic:
			if len(l.Topics) < 2 {
				return domain.LiquidationDetails{}, fmt.Errorf("liquity.ParseLiquidationDetails: TroveLiquidated without borrower topic (tx %s)", l.TxHash.Hex())
			}
			details.LiquidatedAddresses = append(details.LiquidatedAddresses, common.BytesToAddress(l.Topics[1].Bytes()))

		case LiquidationTopic:
			if found {
				continue
			}
			vals, err := troveManagerABI.Unpack("Liquidation", l.Data)
			if err != nil {
				return domain.LiquidationDetails{}, fmt.Errorf("liquity.ParseLiquidationDetails: unpack Liquidation: %w", err)
			}
			if len(vals) != 4 {
				return domain.LiquidationDetails{}, fmt.Errorf("liquity.ParseLiquidationDetails: Liquidation has %d fields", len(vals))
			}

			liquidatedDebt, _ := vals[0].(*big.Int)
			liquidatedColl, _ := vals[1].(*big.Int)
			collGasCompensation, _ := vals[2].(*big.Int)
			lusdGasCompensation, _ := vals[3].(*big.Int)

			details.TotalLiquidated = domain.NewTrove(domain.WeiToEther(liquidatedColl), domain.WeiToEther(liquidatedDebt))
			details.CollateralGasCompensation = domain.WeiToEther(collGasCompensation)
			details.LUSDGasCompensation = domain.WeiToEther(lusdGasCompensation)
			found = true
		}
	}

	if !found {
		return domain.LiquidationDetails{}, ErrMissingLiquidationEvent
	}
	return details, nil
}
