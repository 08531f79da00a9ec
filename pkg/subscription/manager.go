// Package subscription keeps pool reserves fresh by subscribing to vault
// account changes over the Solana websocket API, so the amm backend can quote
// without a per-request RPC read.
package subscription

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// AccountHandler receives pushed account data for a subscribed account.
type AccountHandler func(account solana.PublicKey, data []byte, slot uint64)

type subEntry struct {
	account solana.PublicKey
	handler AccountHandler
}

// Manager multiplexes account subscriptions over one websocket connection.
type Manager struct {
	conn   *websocket.Conn
	logger *zap.Logger

	mu       sync.Mutex
	nextID   uint64
	pending  map[uint64]subEntry // request id -> entry, until confirmed
	handlers map[uint64]subEntry // subscription id -> entry
	closed   bool
}

// HTTPToWSURL converts an HTTP(S) RPC URL to its websocket counterpart.
func HTTPToWSURL(httpURL string) string {
	wsURL := strings.Replace(httpURL, "https://", "wss://", 1)
	return strings.Replace(wsURL, "http://", "ws://", 1)
}

// Dial connects to the websocket endpoint and starts the read loop.
func Dial(ctx context.Context, wsURL string, logger *zap.Logger) (*Manager, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", wsURL, err)
	}

	m := &Manager{
		conn:     conn,
		logger:   logger,
		pending:  make(map[uint64]subEntry),
		handlers: make(map[uint64]subEntry),
	}
	go m.readLoop()
	go func() {
		<-ctx.Done()
		m.Close()
	}()
	return m, nil
}

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type message struct {
	ID     uint64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Method string          `json:"method,omitempty"`
	Params *struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Data []string `json:"data"` // [base64 payload, encoding]
			} `json:"value"`
		} `json:"result"`
	} `json:"params,omitempty"`
}

// SubscribeAccount registers a handler for pushed updates of one account.
func (m *Manager) SubscribeAccount(account solana.PublicKey, handler AccountHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("subscription manager closed")
	}

	m.nextID++
	id := m.nextID
	m.pending[id] = subEntry{account: account, handler: handler}

	req := request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "accountSubscribe",
		Params: []interface{}{
			account.String(),
			map[string]interface{}{"encoding": "base64", "commitment": "confirmed"},
		},
	}
	if err := m.conn.WriteJSON(req); err != nil {
		delete(m.pending, id)
		return fmt.Errorf("subscribing to %s: %w", account, err)
	}
	return nil
}

func (m *Manager) readLoop() {
	for {
		_, payload, err := m.conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			closed := m.closed
			m.mu.Unlock()
			if !closed {
				m.logger.Warn("websocket read failed, live reserve updates stopped", zap.Error(err))
			}
			return
		}

		var msg message
		if err := json.Unmarshal(payload, &msg); err != nil {
			m.logger.Debug("dropping unparsable websocket message", zap.Error(err))
			continue
		}

		switch {
		case msg.ID != 0 && msg.Result != nil:
			m.confirm(msg.ID, msg.Result)
		case msg.Method == "accountNotification" && msg.Params != nil:
			m.dispatch(msg.Params.Subscription, msg.Params.Result.Value.Data, msg.Params.Result.Context.Slot)
		}
	}
}

func (m *Manager) confirm(requestID uint64, result json.RawMessage) {
	var subID uint64
	if err := json.Unmarshal(result, &subID); err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.pending[requestID]
	if !ok {
		return
	}
	delete(m.pending, requestID)
	m.handlers[subID] = entry
	m.logger.Debug("account subscription confirmed",
		zap.Stringer("account", entry.account),
		zap.Uint64("subscription", subID))
}

func (m *Manager) dispatch(subID uint64, data []string, slot uint64) {
	m.mu.Lock()
	entry, ok := m.handlers[subID]
	m.mu.Unlock()
	if !ok || len(data) == 0 {
		return
	}

	raw, err := base64.StdEncoding.DecodeString(data[0])
	if err != nil {
		m.logger.Debug("dropping account update with bad payload", zap.Error(err))
		return
	}
	entry.handler(entry.account, raw, slot)
}

// Subscriptions reports the number of confirmed subscriptions.
func (m *Manager) Subscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	m.conn.Close()
}
