package subscription

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPToWSURL(t *testing.T) {
	assert.Equal(t, "wss://rpc.example.com", HTTPToWSURL("https://rpc.example.com"))
	assert.Equal(t, "ws://127.0.0.1:8899", HTTPToWSURL("http://127.0.0.1:8899"))
}

// fakeRPC is a websocket endpoint that confirms accountSubscribe requests and
// can push account notifications.
type fakeRPC struct {
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn
	subs uint64
}

func (f *fakeRPC) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	for {
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		f.mu.Lock()
		f.subs++
		subID := f.subs
		f.mu.Unlock()
		conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": subID})
	}
}

func (f *fakeRPC) notify(t *testing.T, subID, slot uint64, data []byte) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotNil(t, f.conn)
	payload := fmt.Sprintf(`{
		"jsonrpc": "2.0",
		"method": "accountNotification",
		"params": {
			"subscription": %d,
			"result": {
				"context": {"slot": %d},
				"value": {"data": [%q, "base64"]}
			}
		}
	}`, subID, slot, base64.StdEncoding.EncodeToString(data))
	require.NoError(t, f.conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func TestSubscribeAndDispatch(t *testing.T) {
	rpc := &fakeRPC{}
	server := httptest.NewServer(http.HandlerFunc(rpc.handler))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	m, err := Dial(ctx, wsURL, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	account := solana.NewWallet().PublicKey()
	type update struct {
		account solana.PublicKey
		balance uint64
		slot    uint64
	}
	updates := make(chan update, 1)
	require.NoError(t, m.SubscribeAccount(account, func(acc solana.PublicKey, data []byte, slot uint64) {
		updates <- update{
			account: acc,
			balance: binary.LittleEndian.Uint64(data[64:72]),
			slot:    slot,
		}
	}))

	require.Eventually(t, func() bool {
		return m.Subscriptions() == 1
	}, time.Second, 10*time.Millisecond)

	accountData := make([]byte, 165)
	binary.LittleEndian.PutUint64(accountData[64:72], 777)
	rpc.notify(t, 1, 42, accountData)

	select {
	case u := <-updates:
		assert.Equal(t, account, u.account)
		assert.Equal(t, uint64(777), u.balance)
		assert.Equal(t, uint64(42), u.slot)
	case <-time.After(time.Second):
		t.Fatal("no account update dispatched")
	}
}

func TestSubscribeAfterCloseFails(t *testing.T) {
	rpc := &fakeRPC{}
	server := httptest.NewServer(http.HandlerFunc(rpc.handler))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	m, err := Dial(context.Background(), wsURL, zap.NewNop())
	require.NoError(t, err)

	m.Close()
	err = m.SubscribeAccount(solana.NewWallet().PublicKey(), func(solana.PublicKey, []byte, uint64) {})
	assert.Error(t, err)
}
