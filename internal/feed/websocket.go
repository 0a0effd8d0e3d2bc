package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// WebSocket Feed — real-time token purchase stream
// Subscribes to a PumpPortal-style trade feed and emits parsed buys.
// ---------------------------------------------------------------------------

// WSConfig configures the WebSocket feed source.
type WSConfig struct {
	Endpoint         string `yaml:"endpoint"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
	PingIntervalS    int    `yaml:"ping_interval_s"`
	MaxReconnects    int    `yaml:"max_reconnects"` // 0 = unlimited
}

// DefaultWSConfig returns defaults for the public trade feed.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		Endpoint:         "wss://pumpportal.fun/api/data",
		ReconnectDelayMs: 1000,
		PingIntervalS:    30,
		MaxReconnects:    0,
	}
}

// WSSource streams purchase events from a WebSocket trade feed.
type WSSource struct {
	config WSConfig

	mu   sync.RWMutex
	conn *websocket.Conn

	// Stats.
	messagesRecv atomic.Int64
	buysParsed   atomic.Int64
	malformed    atomic.Int64
	reconnects   atomic.Int64
	connected    atomic.Bool
}

// NewWSSource creates a new WebSocket feed source.
func NewWSSource(config WSConfig) *WSSource {
	return &WSSource{config: config}
}

// Connected reports whether the socket is currently up.
func (s *WSSource) Connected() bool {
	return s.connected.Load()
}

// Run connects and streams transactions to the handler. Blocks until ctx
// is cancelled. Reconnects with exponential backoff on failure.
func (s *WSSource) Run(ctx context.Context, handler Handler) error {
	reconnectDelay := time.Duration(s.config.ReconnectDelayMs) * time.Millisecond
	reconnectCount := 0

	for {
		select {
		case <-ctx.Done():
			s.disconnect()
			return ctx.Err()
		default:
		}

		if s.config.MaxReconnects > 0 && reconnectCount >= s.config.MaxReconnects {
			return fmt.Errorf("feed: max reconnects (%d) exhausted", s.config.MaxReconnects)
		}

		if err := s.connect(ctx); err != nil {
			log.Warn().Err(err).Int("attempt", reconnectCount).Msg("feed: connection failed")
			reconnectCount++
			s.reconnects.Add(1)

			maxDelay := 30 * time.Second
			select {
			case <-time.After(reconnectDelay):
				reconnectDelay *= 2
				if reconnectDelay > maxDelay {
					reconnectDelay = maxDelay
				}
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		reconnectCount = 0
		reconnectDelay = time.Duration(s.config.ReconnectDelayMs) * time.Millisecond

		if err := s.subscribe(); err != nil {
			log.Warn().Err(err).Msg("feed: subscribe failed")
			s.disconnect()
			continue
		}

		s.readLoop(ctx, handler)
	}
}

func (s *WSSource) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, s.config.Endpoint, http.Header{})
	if err != nil {
		return fmt.Errorf("feed: dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)

	log.Info().Str("endpoint", s.config.Endpoint).Msg("feed: connected")
	return nil
}

func (s *WSSource) disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected.Store(false)
}

// subscribe requests the new-token trade stream.
func (s *WSSource) subscribe() error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("feed: not connected")
	}

	req := map[string]any{"method": "subscribeNewToken"}

	s.mu.Lock()
	err := s.conn.WriteJSON(req)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("feed: write subscribe: %w", err)
	}

	log.Info().Msg("feed: subscribed to new token trades")
	return nil
}

func (s *WSSource) readLoop(ctx context.Context, handler Handler) {
	pingInterval := time.Duration(s.config.PingIntervalS) * time.Second
	if pingInterval == 0 {
		pingInterval = 30 * time.Second
	}
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.disconnect()
			return
		case <-pingTicker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					log.Debug().Err(err).Msg("feed: ping failed")
					return
				}
			}
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Info().Msg("feed: connection closed normally")
			} else {
				log.Warn().Err(err).Msg("feed: read error, reconnecting")
			}
			s.connected.Store(false)
			return
		}

		s.messagesRecv.Add(1)

		tx, ok := s.parseMessage(message)
		if !ok {
			continue
		}
		s.buysParsed.Add(1)
		handler(tx)
	}
}

// wsTradeFrame is the wire shape of a trade notification.
type wsTradeFrame struct {
	TxType      string  `json:"txType"` // buy|sell|create
	Mint        string  `json:"mint"`
	Trader      string  `json:"traderPublicKey"`
	SolAmount   float64 `json:"solAmount"`
	Signature   string  `json:"signature"`
	TimestampMs int64   `json:"timestamp"`
}

// parseMessage parses a raw frame into a Transaction. Malformed frames
// and non-buy trade types are dropped; malformed frames log a warning.
func (s *WSSource) parseMessage(data []byte) (Transaction, bool) {
	var frame wsTradeFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.malformed.Add(1)
		log.Warn().Err(err).Int("bytes", len(data)).Msg("feed: unparseable frame dropped")
		return Transaction{}, false
	}

	if frame.TxType != "buy" {
		return Transaction{}, false
	}

	ts := time.Now()
	if frame.TimestampMs > 0 {
		ts = time.UnixMilli(frame.TimestampMs)
	}

	tx := Transaction{
		Token:     frame.Mint,
		Buyer:     frame.Trader,
		Amount:    decimal.NewFromFloat(frame.SolAmount),
		Timestamp: ts,
		Hash:      frame.Signature,
	}

	if !tx.Valid() {
		s.malformed.Add(1)
		log.Warn().
			Str("mint", frame.Mint).
			Str("sig", frame.Signature).
			Msg("feed: incomplete buy frame dropped")
		return Transaction{}, false
	}

	return tx, true
}

// WSStats reports feed counters.
type WSStats struct {
	Connected    bool  `json:"connected"`
	MessagesRecv int64 `json:"messages_recv"`
	BuysParsed   int64 `json:"buys_parsed"`
	Malformed    int64 `json:"malformed"`
	Reconnects   int64 `json:"reconnects"`
}

func (s *WSSource) Stats() WSStats {
	return WSStats{
		Connected:    s.connected.Load(),
		MessagesRecv: s.messagesRecv.Load(),
		BuysParsed:   s.buysParsed.Load(),
		Malformed:    s.malformed.Load(),
		Reconnects:   s.reconnects.Load(),
	}
}
