package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"quantsim/internal/domain"
	"quantsim/internal/event"
	"quantsim/internal/infra"
)

const (
	maxRetries       = 10
	handshakeTimeout = 10 * time.Second
	readTimeout      = 60 * time.Second
)

// wireMessage is the JSON shape of one feed message. Price and
// quantity decode through decimal so exchange-formatted numbers are
// taken exactly before conversion to the float hotpath.
type wireMessage struct {
	Type        string          `json:"type"` // order, trade
	Symbol      string          `json:"symbol"`
	TimestampMs int64           `json:"timestamp"`
	ID          string          `json:"id"`
	Action      string          `json:"action,omitempty"`
	OrderType   string          `json:"order_type,omitempty"`
	Side        string          `json:"side"` // BUY, SELL
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// WSClient is the gateway between a market data websocket and the feed
// handler. It reconnects with exponential backoff and stops cleanly
// when its context is cancelled.
type WSClient struct {
	url     string
	symbols []string
	handler *Handler
	log     *slog.Logger

	mu        sync.RWMutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWSClient creates a websocket gateway for the given symbols.
func NewWSClient(url string, symbols []string, handler *Handler, log *slog.Logger) *WSClient {
	if log == nil {
		log = slog.Default()
	}
	return &WSClient{url: url, symbols: symbols, handler: handler, log: log}
}

// Connect starts the connection loop in the background.
func (c *WSClient) Connect(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.connectionLoop(ctx)
	return nil
}

// Disconnect stops the loop and waits for the reader to exit.
func (c *WSClient) Disconnect() {
	if c.cancel != nil {
		c.cancel()
	}
	c.closeConnection()
	c.wg.Wait()
}

// IsConnected reports the connection state.
func (c *WSClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *WSClient) connectionLoop(ctx context.Context) {
	defer c.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.connect(ctx); err != nil {
			c.log.Warn("feed connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			c.readLoop(ctx)
		}
	}
}

func (c *WSClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, make(http.Header))
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.subscribe(); err != nil {
		c.closeConnection()
		return err
	}

	c.log.Info("feed connected", slog.Int("subs", len(c.symbols)))
	return nil
}

func (c *WSClient) subscribe() error {
	sub := struct {
		Op      string   `json:"op"`
		Symbols []string `json:"symbols"`
	}{Op: "subscribe", Symbols: c.symbols}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(sub)
}

func (c *WSClient) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.closeConnection()
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			c.closeConnection()
			return
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.log.Warn("feed read failed", slog.Any("error", err))
			c.closeConnection()
			return
		}

		if err := c.dispatch(payload); err != nil {
			c.log.Warn("feed message rejected", slog.Any("error", err))
		}
	}
}

// dispatch decodes one wire message and submits it to the handler.
func (c *WSClient) dispatch(payload []byte) error {
	var msg wireMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}

	isBuy := strings.EqualFold(msg.Side, domain.DirectionBuy)
	price := msg.Price.InexactFloat64()
	quantity := msg.Quantity.InexactFloat64()

	switch msg.Type {
	case "order":
		ev := event.AcquireOrderEvent()
		ev.Symbol = msg.Symbol
		ev.TimestampMs = msg.TimestampMs
		ev.OrderID = msg.ID
		ev.Action = msg.Action
		ev.OrderType = msg.OrderType
		ev.Price = price
		ev.Quantity = quantity
		ev.IsBuy = isBuy
		if err := c.handler.SubmitOrderEvent(ev); err != nil {
			event.ReleaseOrderEvent(ev)
			return err
		}
	case "trade":
		ev := event.AcquireTradeEvent()
		ev.Symbol = msg.Symbol
		ev.TimestampMs = msg.TimestampMs
		ev.TradeID = msg.ID
		ev.Price = price
		ev.Quantity = quantity
		ev.IsBuy = isBuy
		if err := c.handler.SubmitTradeEvent(ev); err != nil {
			event.ReleaseTradeEvent(ev)
			return err
		}
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}

func (c *WSClient) closeConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}
