package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"danoo/internal/logger"
	"danoo/internal/market"
)

const (
	writeTimeout = 10 * time.Second
	readLimit    = 1 << 20
)

// StreamDialer opens raw kline streams: <base>/ws/<symbol>@kline_<interval>.
type StreamDialer struct {
	baseURL string
	dialer  *websocket.Dialer
}

func NewStreamDialer(cfg Config) (*StreamDialer, error) {
	final := cfg.withDefaults()
	d := &websocket.Dialer{
		HandshakeTimeout: final.HTTPTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	if final.ProxyEnabled {
		proxy := final.WSProxyURL
		if proxy == "" {
			proxy = final.RESTProxyURL
		}
		if proxy != "" {
			u, err := url.Parse(proxy)
			if err != nil {
				return nil, fmt.Errorf("invalid ws proxy url: %w", err)
			}
			d.Proxy = http.ProxyURL(u)
		}
	}
	return &StreamDialer{baseURL: final.StreamBaseURL, dialer: d}, nil
}

func (d *StreamDialer) URL(symbol, interval string) string {
	return d.baseURL + "/ws/" + market.StreamName(exchangeSymbol(symbol), interval)
}

// Dial connects and installs ping/pong handlers that report liveness
// through onAck. Server pings are answered automatically.
func (d *StreamDialer) Dial(ctx context.Context, symbol, interval string, onAck func()) (market.StreamConn, error) {
	target := d.URL(symbol, interval)
	ws, resp, err := d.dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	c := &wsConn{ws: ws}
	ws.SetReadLimit(readLimit)
	ws.SetPongHandler(func(string) error {
		if onAck != nil {
			onAck()
		}
		return nil
	})
	ws.SetPingHandler(func(data string) error {
		if onAck != nil {
			onAck()
		}
		return c.writeControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
	})
	logger.Debugf("[binance] stream connected %s", target)
	return c, nil
}

// wsConn serialises writes: gorilla allows one concurrent reader and one
// concurrent writer, and pongs are written from the read path.
type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *wsConn) Ping(deadline time.Time) error {
	return c.writeControl(websocket.PingMessage, nil, deadline)
}

func (c *wsConn) writeControl(kind int, data []byte, deadline time.Time) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(kind, data, deadline)
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}
