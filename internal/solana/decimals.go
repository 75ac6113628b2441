package solana

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// DefaultDecimalsTTL bounds staleness of cached mint decimals. Decimal
// configuration changes only if the mint is reconfigured, so stale reads
// within the window are acceptable.
const DefaultDecimalsTTL = 1 * time.Hour

// SPL mint layout: mintAuthorityOption(4) | mintAuthority(32) | supply(8) |
// decimals(1) | ...
const mintDecimalsOffset = 44

// MintDecimalsCache caches per-mint decimal counts fetched over RPC.
type MintDecimalsCache struct {
	rpc RPCClient
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]decimalsEntry

	clock func() time.Time
}

type decimalsEntry struct {
	decimals  int
	fetchedAt time.Time
}

// NewMintDecimalsCache creates a cache over the given client.
func NewMintDecimalsCache(rpc RPCClient, ttl time.Duration) *MintDecimalsCache {
	if ttl <= 0 {
		ttl = DefaultDecimalsTTL
	}
	return &MintDecimalsCache{
		rpc:     rpc,
		ttl:     ttl,
		entries: make(map[string]decimalsEntry),
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock for deterministic tests.
func (c *MintDecimalsCache) WithClock(clock func() time.Time) *MintDecimalsCache {
	c.clock = clock
	return c
}

// Get returns the mint's decimal count, fetching over RPC when the cached
// value is absent or older than the TTL.
func (c *MintDecimalsCache) Get(ctx context.Context, mint string) (int, error) {
	now := c.clock()

	c.mu.Lock()
	entry, ok := c.entries[mint]
	c.mu.Unlock()
	if ok && now.Sub(entry.fetchedAt) < c.ttl {
		return entry.decimals, nil
	}

	info, err := c.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		// Serve the stale value rather than fail a settlement on a
		// transient RPC error.
		if ok {
			return entry.decimals, nil
		}
		return 0, fmt.Errorf("fetch mint %s: %w", mint, err)
	}
	if info == nil {
		return 0, fmt.Errorf("mint %s does not exist", mint)
	}

	decimals, err := parseMintDecimals(info.Data)
	if err != nil {
		return 0, fmt.Errorf("mint %s: %w", mint, err)
	}

	c.mu.Lock()
	c.entries[mint] = decimalsEntry{decimals: decimals, fetchedAt: now}
	c.mu.Unlock()

	return decimals, nil
}

// parseMintDecimals parses SPL mint account data and returns the decimal
// count.
func parseMintDecimals(data string) (int, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return 0, fmt.Errorf("decode mint account data: %w", err)
	}
	if len(decoded) <= mintDecimalsOffset {
		return 0, fmt.Errorf("mint account data too short: %d", len(decoded))
	}
	return int(decoded[mintDecimalsOffset]), nil
}
