package flashbots

// client.go: JSON-RPC client for a Flashbots-compatible bundle relay.
//
// Every request is signed with the bundle identity key:
//   X-Flashbots-Signature: <identity address>:<sig of keccak256(body) as hex text>
// The identity key only builds reputation with the relay; it holds no funds.

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/alejandrodnm/liqbot/internal/ports"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/time/rate"
)

const (
	// DefaultRelayURL is the public mainnet relay.
	DefaultRelayURL = "https://relay.flashbots.net"

	signatureHeader = "X-Flashbots-Signature"

	// A bundle attempt makes two or three requests; keep well under relay limits.
	relayRatePerSec = 5

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond

	defaultPollInterval = 2 * time.Second
)

// Client implements ports.BundleRelay.
type Client struct {
	http     *http.Client
	url      string
	identity *ecdsa.PrivateKey
	address  common.Address
	limiter  *rate.Limiter
	chain    ChainReader
	poll     time.Duration
	nextID   atomic.Int64
}

// NewClient creates a relay client. chain is used by bundle handles to follow the head.
func NewClient(relayURL string, identity *ecdsa.PrivateKey, chain ChainReader) *Client {
	if relayURL == "" {
		relayURL = DefaultRelayURL
	}
	return &Client{
		http:     &http.Client{Timeout: 10 * time.Second},
		url:      relayURL,
		identity: identity,
		address:  crypto.PubkeyToAddress(identity.PublicKey),
		limiter:  rate.NewLimiter(relayRatePerSec, 2),
		chain:    chain,
		poll:     defaultPollInterval,
	}
}

// SetPollInterval changes how often bundle handles poll the chain head.
func (c *Client) SetPollInterval(d time.Duration) {
	c.poll = d
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type bundleParams struct {
	Txs              []string `json:"txs"`
	BlockNumber      string   `json:"blockNumber"`
	StateBlockNumber string   `json:"stateBlockNumber,omitempty"`
}

type callBundleResult struct {
	BundleHash   string `json:"bundleHash"`
	CoinbaseDiff string `json:"coinbaseDiff"`
	TotalGasUsed uint64 `json:"totalGasUsed"`
	Results      []struct {
		TxHash  string `json:"txHash"`
		GasUsed uint64 `json:"gasUsed"`
		Error   string `json:"error"`
		Revert  string `json:"revert"`
	} `json:"results"`
}

type sendBundleResult struct {
	BundleHash string `json:"bundleHash"`
}

// Simulate implements ports.BundleRelay via eth_callBundle, on top of the latest state.
func (c *Client) Simulate(ctx context.Context, signedTxs [][]byte, targetBlock uint64) (domain.BundleSimulation, error) {
	var res callBundleResult
	err := c.call(ctx, "eth_callBundle", bundleParams{
		Txs:              encodeTxs(signedTxs),
		BlockNumber:      hexutil.EncodeUint64(targetBlock),
		StateBlockNumber: "latest",
	}, &res)
	if err != nil {
		return domain.BundleSimulation{}, fmt.Errorf("flashbots.Simulate: %w", err)
	}

	sim := domain.BundleSimulation{
		BundleHash:   res.BundleHash,
		TotalGasUsed: res.TotalGasUsed,
		CoinbaseDiff: new(big.Int),
	}
	if res.CoinbaseDiff != "" {
		if _, ok := sim.CoinbaseDiff.SetString(res.CoinbaseDiff, 10); !ok {
			slog.Warn("flashbots: unparsable coinbaseDiff", "value", res.CoinbaseDiff)
		}
	}
	for _, r := range res.Results {
		if r.Error != "" || r.Revert != "" {
			sim.FirstRevert = firstNonEmpty(r.Revert, r.Error)
			break
		}
	}
	return sim, nil
}

// SendBundle implements ports.BundleRelay via eth_sendBundle.
func (c *Client) SendBundle(ctx context.Context, signedTxs [][]byte, targetBlock uint64) (ports.BundleHandle, error) {
	txs, err := decodeTxs(signedTxs)
	if err != nil {
		return nil, fmt.Errorf("flashbots.SendBundle: %w", err)
	}

	var res sendBundleResult
	err = c.call(ctx, "eth_sendBundle", bundleParams{
		Txs:         encodeTxs(signedTxs),
		BlockNumber: hexutil.EncodeUint64(targetBlock),
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("flashbots.SendBundle: %w", err)
	}

	slog.Debug("flashbots: bundle sent", "bundle", res.BundleHash, "target_block", targetBlock)
	return &handle{
		bundleHash:  res.BundleHash,
		targetBlock: targetBlock,
		txs:         txs,
		chain:       c.chain,
		poll:        c.poll,
	}, nil
}

// call performs one signed JSON-RPC request. A JSON-RPC error object is returned as
// *domain.RelayError.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  []any{params},
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	signature, err := c.sign(body)
	if err != nil {
		return err
	}

	var resp rpcResponse
	err = c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set(signatureHeader, signature)
		return c.http.Do(req)
	}, &resp)
	if err != nil {
		return err
	}

	if resp.Error != nil {
		return &domain.RelayError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) sign(body []byte) (string, error) {
	hashed := crypto.Keccak256Hash(body).Hex()
	sig, err := crypto.Sign(accounts.TextHash([]byte(hashed)), c.identity)
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}
	return c.address.Hex() + ":" + hexutil.Encode(sig), nil
}

// doWithRetry executes fn with exponential backoff on transport errors, 429 and 5xx.
// 4xx answers that carry a JSON-RPC error are decoded rather than retried.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out *rpcResponse) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("flashbots: rate limited by relay", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if err := json.Unmarshal(body, out); err != nil {
			if resp.StatusCode >= 400 {
				return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
			}
			return fmt.Errorf("decode response: %w", err)
		}
		if resp.StatusCode >= 400 && out.Error == nil {
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep waits with exponential backoff, honoring the context.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

func encodeTxs(signedTxs [][]byte) []string {
	out := make([]string, len(signedTxs))
	for i, raw := range signedTxs {
		out[i] = hexutil.Encode(raw)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
