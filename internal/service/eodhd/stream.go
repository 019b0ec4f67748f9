package eodhd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"momentum/internal/domain/models"
	drepo "momentum/internal/domain/repository"
	"momentum/pkg/logger"

	"github.com/gorilla/websocket"
)

// Stream implements a MarketStream backed by the EODHD US trades WebSocket.
type Stream struct {
	apiToken       string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	// ws frames carry bare symbols ("AAPL"); the rest of the system uses
	// exchange-qualified ones ("AAPL.US").
	wsToFull map[string]string
}

// NewStream creates a new EODHD MarketStream.
func NewStream(apiToken, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, log *logger.Logger) drepo.MarketStream {
	wsToFull := make(map[string]string, len(symbols))
	for _, s := range symbols {
		wsToFull[wsSymbol(s)] = s
	}
	return &Stream{
		apiToken:       apiToken,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
		wsToFull:       wsToFull,
	}
}

// wsSymbol strips the exchange suffix ("AAPL.US" -> "AAPL").
func wsSymbol(full string) string {
	if i := strings.LastIndex(full, "."); i > 0 {
		return full[:i]
	}
	return full
}

// Connect establishes the WebSocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?api_token=%s", s.websocketURL, s.apiToken)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("eodhd connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.log.Info("eodhd stream connected")
	return nil
}

// Subscribe subscribes to configured symbols.
func (s *Stream) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	conn, connected := s.conn, s.connected
	s.mu.Unlock()
	if conn == nil || !connected {
		return fmt.Errorf("eodhd not connected")
	}

	names := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		names = append(names, wsSymbol(sym))
	}
	msg := map[string]string{"action": "subscribe", "symbols": strings.Join(names, ",")}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.Info("eodhd subscribed", logger.Strings("symbols", names))
	return nil
}

type wsTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

// Read streams Tick events and errors. Both channels close when the read
// loop exits.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				conn := s.conn
				s.mu.Unlock()
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(ticks)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				s.mu.Lock()
				conn := s.conn
				s.mu.Unlock()
				if conn == nil {
					errs <- fmt.Errorf("eodhd conn nil")
					return
				}
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("eodhd read: %w", err)
					return
				}
				var t wsTrade
				if err := json.Unmarshal(b, &t); err != nil || t.S == "" || t.P <= 0 {
					// status and auth frames land here
					continue
				}
				full, ok := s.wsToFull[t.S]
				if !ok {
					full = t.S
				}
				tick := &models.Tick{
					Symbol: full,
					TS:     time.UnixMilli(t.T).UTC(),
					Price:  t.P,
					Size:   t.V,
				}
				select {
				case ticks <- tick:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return ticks, errs
}

// Reconnect closes and reconnects.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.reconnectDelay):
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close closes the WS connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
