package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"danoo/internal/executor"
)

const quoteAsset = "USDT"

// FuturesVenue implements executor.Venue on the USDⓈ-M futures API.
type FuturesVenue struct {
	client  *futures.Client
	limiter *rate.Limiter
}

var _ executor.Venue = (*FuturesVenue)(nil)

func NewFuturesVenue(cfg Config, creds Credentials) (*FuturesVenue, error) {
	if creds.Empty() {
		return nil, errors.New("api key and secret are required")
	}
	final := cfg.withDefaults()
	httpClient, err := newHTTPClient(final)
	if err != nil {
		return nil, err
	}
	client := futures.NewClient(strings.TrimSpace(creds.APIKey), strings.TrimSpace(creds.APISecret))
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = httpClient
	return &FuturesVenue{client: client, limiter: newLimiter(final.RateLimit)}, nil
}

// VenueFactory builds sandbox or live venues from per-mode credentials.
func VenueFactory(base Config, sandbox, live Credentials) executor.VenueFactory {
	return func(mode executor.Mode) (executor.Venue, error) {
		cfg := base
		var creds Credentials
		switch mode {
		case executor.ModeSandbox:
			cfg.RESTBaseURL = SandboxRESTBaseURL
			creds = sandbox
		case executor.ModeLive:
			cfg.RESTBaseURL = LiveRESTBaseURL
			creds = live
		default:
			return nil, fmt.Errorf("%w: %q", executor.ErrUnknownMode, mode)
		}
		if u := strings.TrimSpace(creds.BaseURL); u != "" {
			cfg.RESTBaseURL = u
		}
		v, err := NewFuturesVenue(cfg, creds)
		if err != nil {
			return nil, fmt.Errorf("%s venue: %w", mode, err)
		}
		return v, nil
	}
}

func (v *FuturesVenue) PlaceOrder(ctx context.Context, req executor.OrderRequest) (executor.VenueFill, error) {
	if err := wait(ctx, v.limiter); err != nil {
		return executor.VenueFill{}, err
	}
	svc := v.client.NewCreateOrderService().
		Symbol(exchangeSymbol(req.Symbol)).
		Side(futures.SideType(req.Side)).
		Quantity(formatDecimal(req.Quantity))
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	tif := futures.TimeInForceTypeGTC
	if req.TimeInForce != "" {
		tif = futures.TimeInForceType(req.TimeInForce)
	}
	switch req.Kind {
	case executor.KindLimit:
		svc = svc.Type(futures.OrderTypeLimit).Price(formatDecimal(req.Price)).TimeInForce(tif)
	case executor.KindStop:
		if req.Price > 0 {
			svc = svc.Type(futures.OrderTypeStop).Price(formatDecimal(req.Price)).StopPrice(formatDecimal(req.StopPrice)).TimeInForce(tif)
		} else {
			svc = svc.Type(futures.OrderTypeStopMarket).StopPrice(formatDecimal(req.StopPrice))
		}
	default:
		svc = svc.Type(futures.OrderTypeMarket)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return executor.VenueFill{}, describe(err)
	}
	fill := executor.VenueFill{
		OrderID:        strconv.FormatInt(resp.OrderID, 10),
		Status:         mapStatus(resp.Status),
		FillPrice:      parseFloat(resp.AvgPrice),
		FilledQuantity: parseFloat(resp.ExecutedQuantity),
	}
	if fill.FillPrice <= 0 {
		fill.FillPrice = parseFloat(resp.Price)
	}
	if resp.UpdateTime > 0 {
		fill.Timestamp = time.UnixMilli(resp.UpdateTime)
	}
	return fill, nil
}

func (v *FuturesVenue) Balance(ctx context.Context) (float64, error) {
	if err := wait(ctx, v.limiter); err != nil {
		return 0, err
	}
	balances, err := v.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, describe(err)
	}
	for _, b := range balances {
		if b != nil && strings.EqualFold(b.Asset, quoteAsset) {
			return parseFloat(b.Balance), nil
		}
	}
	return 0, nil
}

func (v *FuturesVenue) Positions(ctx context.Context) ([]executor.Position, error) {
	if err := wait(ctx, v.limiter); err != nil {
		return nil, err
	}
	risks, err := v.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, describe(err)
	}
	out := make([]executor.Position, 0, len(risks))
	for _, r := range risks {
		if r == nil {
			continue
		}
		amt := parseFloat(r.PositionAmt)
		if amt == 0 {
			continue
		}
		side := executor.Long
		if amt < 0 {
			side = executor.Short
			amt = -amt
		}
		out = append(out, executor.Position{
			Symbol:        r.Symbol,
			Side:          side,
			EntryPrice:    parseFloat(r.EntryPrice),
			Quantity:      amt,
			MarkPrice:     parseFloat(r.MarkPrice),
			UnrealizedPnL: parseFloat(r.UnRealizedProfit),
		})
	}
	return out, nil
}

func mapStatus(s futures.OrderStatusType) executor.Status {
	switch s {
	case futures.OrderStatusTypeFilled:
		return executor.StatusFilled
	case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeExpired:
		return executor.StatusCanceled
	case futures.OrderStatusTypeRejected:
		return executor.StatusRejected
	default:
		return executor.StatusPending
	}
}

// describe flattens venue API errors into "code N: message".
func describe(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("binance code %d: %s", apiErr.Code, apiErr.Message)
	}
	return err
}

func formatDecimal(v float64) string {
	return decimal.NewFromFloat(v).String()
}
