package onchain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs EIP-1559 transactions with the bot's wallet key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	signer  types.Signer
}

// NewSigner parses a hex private key (with or without 0x prefix).
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	key, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewSigner: %w", err)
	}
	id := big.NewInt(chainID)
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: id,
		signer:  types.LatestSignerForChainID(id),
	}, nil
}

// ParsePrivateKey decodes a hex-encoded secp256k1 private key.
func ParsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// Address returns the wallet address.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignTx builds and signs a dynamic fee transaction from tx.
func (s *Signer) SignTx(nonce uint64, tx domain.UnsignedTx) (*types.Transaction, error) {
	if tx.MaxFeePerGas == nil || tx.MaxPriorityFeePerGas == nil {
		return nil, fmt.Errorf("onchain.SignTx: fee fields not set")
	}
	to := tx.To
	signed, err := types.SignNewTx(s.key, s.signer, &types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tx.MaxPriorityFeePerGas,
		GasFeeCap: tx.MaxFeePerGas,
		Gas:       tx.GasLimit,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      tx.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("onchain.SignTx: %w", err)
	}
	return signed, nil
}
