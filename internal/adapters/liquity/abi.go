package liquity

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract ABIs (only the entries the bot uses)
var (
	troveManagerABI     abi.ABI
	multiTroveGetterABI abi.ABI
	priceFeedABI        abi.ABI
	stabilityPoolABI    abi.ABI
)

func init() {
	var err error

	troveManagerABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "getEntireSystemColl",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "getEntireSystemDebt",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "L_ETH",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "L_LUSDDebt",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "batchLiquidateTroves",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [{"name": "_troveArray", "type": "address[]"}],
			"outputs": []
		},
		{
			"name": "TroveLiquidated",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"name": "_borrower", "type": "address", "indexed": true},
				{"name": "_debt", "type": "uint256", "indexed": false},
				{"name": "_coll", "type": "uint256", "indexed": false},
				{"name": "_operation", "type": "uint8", "indexed": false}
			]
		},
		{
			"name": "Liquidation",
			"type": "event",
			"anonymous": false,
			"inputs": [
				{"name": "_liquidatedDebt", "type": "uint256", "indexed": false},
				{"name": "_liquidatedColl", "type": "uint256", "indexed": false},
				{"name": "_collGasCompensation", "type": "uint256", "indexed": false},
				{"name": "_LUSDGasCompensation", "type": "uint256", "indexed": false}
			]
		}
	]`))
	if err != nil {
		panic("trove manager abi parse: " + err.Error())
	}

	multiTroveGetterABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "getMultipleSortedTroves",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "_startIdx", "type": "int256"},
				{"name": "_count", "type": "uint256"}
			],
			"outputs": [
				{
					"name": "_troves",
					"type": "tuple[]",
					"components": [
						{"name": "owner", "type": "address"},
						{"name": "debt", "type": "uint256"},
						{"name": "coll", "type": "uint256"},
						{"name": "stake", "type": "uint256"},
						{"name": "snapshotETH", "type": "uint256"},
						{"name": "snapshotLUSDDebt", "type": "uint256"}
					]
				}
			]
		}
	]`))
	if err != nil {
		panic("multi trove getter abi parse: " + err.Error())
	}

	// fetchPrice is not a view, but eth_call runs it without side effects and returns the
	// price the next state-changing call would see.
	priceFeedABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "fetchPrice",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("price feed abi parse: " + err.Error())
	}

	stabilityPoolABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "getTotalLUSDDeposits",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("stability pool abi parse: " + err.Error())
	}
}
