package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"danoo/internal/market"
)

const (
	// pageLimit is the largest page the klines endpoint serves.
	pageLimit = 1500
	// maxHistoryBars bounds one FetchHistory call across pages.
	maxHistoryBars = 15 * pageLimit
)

// Source serves kline history from the futures REST API.
type Source struct {
	cfg     Config
	client  *futures.Client
	limiter *rate.Limiter
	now     func() time.Time
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	httpClient, err := newHTTPClient(final)
	if err != nil {
		return nil, err
	}
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = httpClient
	return &Source{
		cfg:     final,
		client:  client,
		limiter: newLimiter(final.RateLimit),
		now:     time.Now,
	}, nil
}

func newHTTPClient(cfg Config) (*http.Client, error) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	if cfg.ProxyEnabled && cfg.RESTProxyURL != "" {
		proxyURL, err := url.Parse(cfg.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	return httpClient, nil
}

func newLimiter(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		return nil
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}

// FetchHistory returns up to limit closed candles, oldest first. Requests
// above one page walk backwards from the newest bar. The in-progress tail
// candle is dropped.
func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	limit = min(limit, maxHistoryBars)
	ticker := exchangeSymbol(symbol)
	if ticker == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = market.NormalizeInterval(interval)
	if _, ok := market.ParseIntervalDuration(interval); !ok {
		return nil, fmt.Errorf("invalid interval %q", interval)
	}

	// One extra bar covers the open candle DropUnclosed removes.
	want := limit + 1
	var (
		pages  [][]market.Candle
		got    int
		before int64
	)
	for got < want {
		size := min(want-got, pageLimit)
		page, err := s.page(ctx, ticker, interval, size, before)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		pages = append(pages, page)
		got += len(page)
		if len(page) < size {
			break
		}
		before = page[0].OpenTime - 1
	}

	var all []market.Candle
	for i := len(pages) - 1; i >= 0; i-- {
		all = append(all, pages[i]...)
	}
	out := market.DropUnclosed(market.Normalize(all), s.now())
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// page fetches up to size candles; before > 0 bounds their open time.
func (s *Source) page(ctx context.Context, ticker, interval string, size int, before int64) ([]market.Candle, error) {
	if err := wait(ctx, s.limiter); err != nil {
		return nil, err
	}
	svc := s.client.NewKlinesService().Symbol(ticker).Interval(interval).Limit(size)
	if before > 0 {
		svc = svc.EndTime(before)
	}
	kls, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", ticker, interval, err)
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	return out, nil
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
