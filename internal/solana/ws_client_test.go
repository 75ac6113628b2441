package solana

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsTestServer runs a minimal signatureSubscribe endpoint that answers
// with the given notification value.
func wsTestServer(t *testing.T, txErr interface{}) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		if req.Method != "signatureSubscribe" {
			t.Errorf("expected signatureSubscribe, got %s", req.Method)
		}

		// Subscription confirmation, then the one-shot notification.
		conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 42})
		conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "signatureNotification",
			"params": map[string]interface{}{
				"subscription": 42,
				"result": map[string]interface{}{
					"value": map[string]interface{}{"err": txErr},
				},
			},
		})
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSConfirmer_Confirmed(t *testing.T) {
	server := wsTestServer(t, nil)
	defer server.Close()

	confirmer := NewWSConfirmer(wsURL(server), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := confirmer.ConfirmTransaction(ctx, "sig1"); err != nil {
		t.Fatalf("ConfirmTransaction: %v", err)
	}
}

func TestWSConfirmer_OnChainFailure(t *testing.T) {
	server := wsTestServer(t, map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}})
	defer server.Close()

	confirmer := NewWSConfirmer(wsURL(server), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := confirmer.ConfirmTransaction(ctx, "sig1")
	if err == nil || !strings.Contains(err.Error(), "failed on-chain") {
		t.Fatalf("expected on-chain failure, got %v", err)
	}
}

func TestWSConfirmer_ContextCancelled(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		// Confirm the subscription but never notify.
		conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 42})
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	confirmer := NewWSConfirmer(wsURL(server), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := confirmer.ConfirmTransaction(ctx, "sig1")
	if err == nil {
		t.Fatal("expected context error")
	}
}
