package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0

	// DefaultConfirmPollInterval is how often ConfirmTransaction polls
	// signature statuses.
	DefaultConfirmPollInterval = 2 * time.Second
)

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint        string
	client          *http.Client
	maxRetries      int
	retryDelay      time.Duration
	maxDelay        time.Duration
	backoffMult     float64
	confirmInterval time.Duration
	observe         func(method string, d time.Duration)
	requestID       atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithConfirmPollInterval sets the ConfirmTransaction polling interval.
func WithConfirmPollInterval(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.confirmInterval = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithCallObserver registers a hook invoked after every RPC call with the
// method name and total duration, retries included. Used to feed the call
// latency histogram.
func WithCallObserver(fn func(method string, d time.Duration)) ClientOption {
	return func(c *HTTPClient) {
		c.observe = fn
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:        endpoint,
		client:          &http.Client{Timeout: DefaultTimeout},
		maxRetries:      DefaultMaxRetries,
		retryDelay:      DefaultRetryDelay,
		maxDelay:        DefaultMaxDelay,
		backoffMult:     DefaultBackoffMult,
		confirmInterval: DefaultConfirmPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ RPCClient = (*HTTPClient)(nil)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if c.observe != nil {
		start := time.Now()
		defer func() { c.observe(method, time.Since(start)) }()
	}

	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// GetParsedTransaction retrieves a transaction with token balance
// snapshots at confirmed commitment. Returns nil if not yet visible.
func (c *HTTPClient) GetParsedTransaction(ctx context.Context, signature string) (*ParsedTransaction, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "jsonParsed",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result *getTransactionResult
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	if result == nil {
		// Transaction not found at this commitment
		return nil, nil
	}

	tx := &ParsedTransaction{
		Slot:      result.Slot,
		Signature: signature,
	}
	if result.BlockTime != nil {
		tx.BlockTime = *result.BlockTime
	}
	if result.Meta != nil {
		tx.Err = result.Meta.Err
		pre, err := parseTokenBalances(result.Meta.PreTokenBalances)
		if err != nil {
			return nil, fmt.Errorf("parse preTokenBalances: %w", err)
		}
		post, err := parseTokenBalances(result.Meta.PostTokenBalances)
		if err != nil {
			return nil, fmt.Errorf("parse postTokenBalances: %w", err)
		}
		tx.PreTokenBalances = pre
		tx.PostTokenBalances = post
	}

	return tx, nil
}

// getTransactionResult is the raw RPC response for getTransaction.
type getTransactionResult struct {
	Slot      int64               `json:"slot"`
	BlockTime *int64              `json:"blockTime"`
	Meta      *getTransactionMeta `json:"meta"`
}

type getTransactionMeta struct {
	Err               interface{}       `json:"err"`
	PreTokenBalances  []rawTokenBalance `json:"preTokenBalances"`
	PostTokenBalances []rawTokenBalance `json:"postTokenBalances"`
}

type rawTokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		Amount   string `json:"amount"`
		Decimals int    `json:"decimals"`
	} `json:"uiTokenAmount"`
}

// parseTokenBalances converts raw snapshots, keeping amounts as big
// integers in the token's smallest unit.
func parseTokenBalances(raw []rawTokenBalance) ([]TokenBalance, error) {
	balances := make([]TokenBalance, 0, len(raw))
	for _, r := range raw {
		amount, ok := new(big.Int).SetString(r.UITokenAmount.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("invalid token amount %q for account %d", r.UITokenAmount.Amount, r.AccountIndex)
		}
		balances = append(balances, TokenBalance{
			AccountIndex: r.AccountIndex,
			Mint:         r.Mint,
			Owner:        r.Owner,
			Amount:       amount,
			Decimals:     r.UITokenAmount.Decimals,
		})
	}
	return balances, nil
}

// GetLatestBlockhash retrieves the current blockhash context.
func (c *HTTPClient) GetLatestBlockhash(ctx context.Context) (*LatestBlockhash, error) {
	params := []interface{}{
		map[string]interface{}{"commitment": "confirmed"},
	}

	var result getLatestBlockhashResult
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return nil, err
	}
	if result.Value.Blockhash == "" {
		return nil, fmt.Errorf("empty blockhash in response")
	}

	return &LatestBlockhash{
		Blockhash:            result.Value.Blockhash,
		LastValidBlockHeight: result.Value.LastValidBlockHeight,
	}, nil
}

type getLatestBlockhashResult struct {
	Value struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}

// GetAccountInfo retrieves account info by public key.
// Returns nil if account not found.
func (c *HTTPClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	params := []interface{}{
		pubkey,
		map[string]interface{}{
			"encoding":   "base64",
			"commitment": "confirmed",
		},
	}

	var result getAccountInfoResult
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}

	if result.Value == nil {
		return nil, nil
	}

	info := &AccountInfo{
		Lamports:   result.Value.Lamports,
		Owner:      result.Value.Owner,
		Executable: result.Value.Executable,
		RentEpoch:  result.Value.RentEpoch,
	}
	if len(result.Value.Data) >= 1 {
		info.Data = result.Value.Data[0]
	}

	return info, nil
}

type getAccountInfoResult struct {
	Value *getAccountInfoValue `json:"value"`
}

type getAccountInfoValue struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"` // [base64_data, encoding]
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

// SendTransaction submits a fully signed transaction.
func (c *HTTPClient) SendTransaction(ctx context.Context, signedTx []byte) (string, error) {
	params := []interface{}{
		base64.StdEncoding.EncodeToString(signedTx),
		map[string]interface{}{
			"encoding":            "base64",
			"preflightCommitment": "confirmed",
		},
	}

	var signature string
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// ConfirmTransaction polls signature statuses until the signature reaches
// confirmed commitment or ctx expires. A non-nil on-chain error is
// surfaced as an error.
func (c *HTTPClient) ConfirmTransaction(ctx context.Context, signature string) error {
	ticker := time.NewTicker(c.confirmInterval)
	defer ticker.Stop()

	for {
		status, err := c.getSignatureStatus(ctx, signature)
		if err != nil {
			return err
		}
		if status != nil {
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed on-chain: %v", signature, status.Err)
			}
			if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirm %s: %w", signature, ctx.Err())
		case <-ticker.C:
		}
	}
}

type signatureStatus struct {
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}

func (c *HTTPClient) getSignatureStatus(ctx context.Context, signature string) (*signatureStatus, error) {
	params := []interface{}{
		[]string{signature},
		map[string]interface{}{"searchTransactionHistory": true},
	}

	var result struct {
		Value []*signatureStatus `json:"value"`
	}
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return nil, err
	}
	if len(result.Value) == 0 {
		return nil, nil
	}
	return result.Value[0], nil
}
