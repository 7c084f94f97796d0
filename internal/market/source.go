package market

import (
	"context"
	"time"
)

type CandleEvent struct {
	Symbol   string
	Interval string
	Candle   Candle
}

// KlineMessage is one decoded stream update. Closed marks the final update
// of a candle; earlier updates describe the candle still in progress.
type KlineMessage struct {
	Symbol    string
	Interval  string
	Candle    Candle
	Closed    bool
	EventTime int64
}

// MessageDecoder turns a raw stream frame into a KlineMessage. ok is false
// for frames that carry no kline (subscription acks and similar).
type MessageDecoder func(raw []byte) (msg KlineMessage, ok bool, err error)

// HistorySource serves bounded point-in-time history requests.
type HistorySource interface {
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// StreamConn is a single live connection. ReadMessage blocks until a frame
// arrives or the connection fails; Close unblocks it.
type StreamConn interface {
	ReadMessage() ([]byte, error)
	Ping(deadline time.Time) error
	Close() error
}

// StreamDialer opens the {symbol}@kline_{interval} subscription. onAck is
// invoked whenever the transport observes a liveness acknowledgement.
type StreamDialer interface {
	Dial(ctx context.Context, symbol, interval string, onAck func()) (StreamConn, error)
}

// CandleSink receives every closed candle the feed appends.
type CandleSink interface {
	Put(ctx context.Context, symbol, interval string, candles []Candle) error
}
