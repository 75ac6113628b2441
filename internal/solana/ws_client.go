package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfirmerConfig configures WebSocket confirmation behavior.
type WSConfirmerConfig struct {
	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for subscription confirmation.
	SubscribeTimeout time.Duration
}

// DefaultWSConfirmerConfig returns default configuration.
func DefaultWSConfirmerConfig() WSConfirmerConfig {
	return WSConfirmerConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
	}
}

// WSConfirmer confirms transaction signatures over a WebSocket
// signatureSubscribe. A signature subscription auto-cancels after its one
// notification, so each confirmation uses a short-lived connection rather
// than the long-lived resubscribing feed a streaming consumer would need.
type WSConfirmer struct {
	endpoint string
	config   WSConfirmerConfig
}

// NewWSConfirmer creates a WebSocket signature confirmer.
func NewWSConfirmer(endpoint string, config *WSConfirmerConfig) *WSConfirmer {
	cfg := DefaultWSConfirmerConfig()
	if config != nil {
		cfg = *config
	}
	return &WSConfirmer{endpoint: endpoint, config: cfg}
}

// Compile-time interface check.
var _ SignatureConfirmer = (*WSConfirmer)(nil)

// wsRequest is a JSON-RPC 2.0 request over the socket.
type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// wsMessage is the union of subscription confirmations and notifications.
type wsMessage struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	Method string          `json:"method"`
	Params *struct {
		Subscription int64 `json:"subscription"`
		Result       struct {
			Value struct {
				Err interface{} `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// ConfirmTransaction subscribes to the signature and blocks until it is
// confirmed, it fails on-chain, or ctx expires.
func (c *WSConfirmer) ConfirmTransaction(ctx context.Context, signature string) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			signature,
			map[string]string{"commitment": "confirmed"},
		},
	}

	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	deadline := time.Now().Add(c.config.SubscribeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	// Unblock the read loop when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	subscribed := false
	for {
		conn.SetReadDeadline(deadline)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("confirm %s: %w", signature, ctx.Err())
			}
			return fmt.Errorf("read notification: %w", err)
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("unmarshal notification: %w", err)
		}

		switch {
		case msg.Error != nil:
			return fmt.Errorf("subscribe %s: %w", signature, msg.Error)
		case !subscribed && msg.ID == req.ID:
			subscribed = true
		case msg.Method == "signatureNotification" && msg.Params != nil:
			if txErr := msg.Params.Result.Value.Err; txErr != nil {
				return fmt.Errorf("transaction %s failed on-chain: %v", signature, txErr)
			}
			return nil
		}
	}
}
