// Package oanda adapts the OANDA v3 REST API to the venue.Connector
// contract. Instruments use the underscore spelling (EUR_USD) and prices
// are midpoint quotes.
package oanda

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/venue"
)

const (
	// PracticeURL is OANDA's demo environment.
	PracticeURL = "https://api-fxpractice.oanda.com"
	// LiveURL is OANDA's live trading environment.
	LiveURL = "https://api-fxtrade.oanda.com"
)

// granularities maps canonical timeframe keys to OANDA candle granularities.
var granularities = map[string]string{
	"m1":  "M1",
	"m5":  "M5",
	"m15": "M15",
	"m30": "M30",
	"h1":  "H1",
	"h4":  "H4",
	"d1":  "D",
}

// Client is the OANDA connector. A missing token or account ID is reported
// as a credentials error on every call so the router falls through to the
// next venue.
type Client struct {
	rest      *resty.Client
	accountID string
	mapping   venue.Mapping
	hasCreds  bool
}

func New(token, accountID string, practice bool) *Client {
	baseURL := LiveURL
	if practice {
		baseURL = PracticeURL
	}

	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json")

	return &Client{
		rest:      rest,
		accountID: accountID,
		mapping:   venue.UnderscoreMapping(),
		hasCreds:  token != "" && accountID != "",
	}
}

func (c *Client) Name() string { return "oanda" }

type candleData struct {
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
}

type candlesResponse struct {
	Candles []struct {
		Complete bool        `json:"complete"`
		Volume   int         `json:"volume"`
		Time     string      `json:"time"`
		Mid      *candleData `json:"mid,omitempty"`
	} `json:"candles"`
}

func (c *Client) FetchBars(ctx context.Context, sym market.Symbol, tf market.Timeframe, limit int) ([]market.Bar, error) {
	if !c.hasCreds {
		return nil, fmt.Errorf("oanda candles: %w", venue.ErrMissingCredentials)
	}
	gran, ok := granularities[tf.Key]
	if !ok {
		return nil, fmt.Errorf("oanda: no granularity for timeframe %q", tf.Key)
	}

	var out candlesResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"granularity": gran,
			"price":       "M",
			"count":       strconv.Itoa(limit),
		}).
		SetResult(&out).
		Get("/v3/instruments/" + c.mapping(sym) + "/candles")
	if err != nil {
		return nil, fmt.Errorf("oanda candles %s: %w", sym, err)
	}
	if err := c.statusErr(resp, "candles"); err != nil {
		return nil, err
	}

	bars := make([]market.Bar, 0, len(out.Candles))
	for _, cd := range out.Candles {
		// The last candle of a window is usually still forming.
		if !cd.Complete || cd.Mid == nil {
			continue
		}
		t, err := time.Parse(time.RFC3339, cd.Time)
		if err != nil {
			return nil, fmt.Errorf("oanda candle time %q: %w", cd.Time, err)
		}
		bars = append(bars, market.Bar{
			Time:   t.UTC(),
			Open:   parseF(cd.Mid.O),
			High:   parseF(cd.Mid.H),
			Low:    parseF(cd.Mid.L),
			Close:  parseF(cd.Mid.C),
			Volume: float64(cd.Volume),
		})
	}
	return bars, nil
}

type pricingResponse struct {
	Prices []struct {
		Instrument  string `json:"instrument"`
		Time        string `json:"time"`
		CloseoutBid string `json:"closeoutBid"`
		CloseoutAsk string `json:"closeoutAsk"`
	} `json:"prices"`
}

func (c *Client) FetchTicker(ctx context.Context, sym market.Symbol) (market.Tick, error) {
	if !c.hasCreds {
		return market.Tick{}, fmt.Errorf("oanda pricing: %w", venue.ErrMissingCredentials)
	}

	var out pricingResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("instruments", c.mapping(sym)).
		SetResult(&out).
		Get("/v3/accounts/" + c.accountID + "/pricing")
	if err != nil {
		return market.Tick{}, fmt.Errorf("oanda pricing %s: %w", sym, err)
	}
	if err := c.statusErr(resp, "pricing"); err != nil {
		return market.Tick{}, err
	}
	if len(out.Prices) == 0 {
		return market.Tick{}, fmt.Errorf("no price for %s: %w", sym, venue.ErrBadSymbol)
	}

	p := out.Prices[0]
	mid := (parseF(p.CloseoutBid) + parseF(p.CloseoutAsk)) / 2
	t, err := time.Parse(time.RFC3339, p.Time)
	if err != nil {
		t = time.Now()
	}
	return market.Tick{Symbol: sym, Price: mid, Time: t.UTC()}, nil
}

type summaryResponse struct {
	Account struct {
		Currency string `json:"currency"`
		Balance  string `json:"balance"`
	} `json:"account"`
}

func (c *Client) FetchBalance(ctx context.Context) (venue.Balance, error) {
	if !c.hasCreds {
		return nil, fmt.Errorf("oanda summary: %w", venue.ErrMissingCredentials)
	}

	var out summaryResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v3/accounts/" + c.accountID + "/summary")
	if err != nil {
		return nil, fmt.Errorf("oanda summary: %w", err)
	}
	if err := c.statusErr(resp, "summary"); err != nil {
		return nil, err
	}

	return venue.Balance{out.Account.Currency: parseF(out.Account.Balance)}, nil
}

type orderBody struct {
	Order struct {
		Type         string `json:"type"`
		Instrument   string `json:"instrument"`
		Units        string `json:"units"`
		TimeInForce  string `json:"timeInForce"`
		PositionFill string `json:"positionFill"`
	} `json:"order"`
}

type orderResponse struct {
	OrderFillTransaction *struct {
		ID    string `json:"id"`
		Price string `json:"price"`
		Time  string `json:"time"`
	} `json:"orderFillTransaction"`
	OrderCancelTransaction *struct {
		Reason string `json:"reason"`
	} `json:"orderCancelTransaction"`
}

func (c *Client) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderFill, error) {
	if !c.hasCreds {
		return venue.OrderFill{}, fmt.Errorf("oanda order: %w", venue.ErrMissingCredentials)
	}

	units := req.Quantity
	if req.Side == market.SideSell {
		units = -units
	}

	var body orderBody
	body.Order.Type = "MARKET"
	body.Order.Instrument = c.mapping(req.Symbol)
	body.Order.Units = strconv.FormatFloat(units, 'f', -1, 64)
	body.Order.TimeInForce = "FOK"
	body.Order.PositionFill = "DEFAULT"

	var out orderResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/v3/accounts/" + c.accountID + "/orders")
	if err != nil {
		return venue.OrderFill{}, fmt.Errorf("oanda order %s: %w", req.Symbol, err)
	}
	if err := c.statusErr(resp, "order"); err != nil {
		return venue.OrderFill{}, err
	}

	if out.OrderFillTransaction == nil {
		reason := "unknown"
		if out.OrderCancelTransaction != nil {
			reason = out.OrderCancelTransaction.Reason
		}
		if reason == "INSUFFICIENT_MARGIN" {
			return venue.OrderFill{}, fmt.Errorf("oanda order %s: %w", req.Symbol, venue.ErrInsufficientFunds)
		}
		return venue.OrderFill{}, fmt.Errorf("oanda order %s not filled: %s", req.Symbol, reason)
	}

	fill := out.OrderFillTransaction
	t, err := time.Parse(time.RFC3339, fill.Time)
	if err != nil {
		t = time.Now()
	}
	return venue.OrderFill{
		OrderID:  fill.ID,
		Venue:    c.Name(),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    parseF(fill.Price),
		Time:     t.UTC(),
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, sym market.Symbol, orderID string) error {
	if !c.hasCreds {
		return fmt.Errorf("oanda cancel: %w", venue.ErrMissingCredentials)
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		Put("/v3/accounts/" + c.accountID + "/orders/" + orderID + "/cancel")
	if err != nil {
		return fmt.Errorf("oanda cancel %s: %w", orderID, err)
	}
	return c.statusErr(resp, "cancel")
}

// statusErr maps HTTP failure codes onto the venue error taxonomy so the
// router can decide between fallback and surfacing.
func (c *Client) statusErr(resp *resty.Response, op string) error {
	switch code := resp.StatusCode(); {
	case code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("oanda %s: %w", op, venue.ErrRateLimited)
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return fmt.Errorf("oanda %s: %w", op, venue.ErrMissingCredentials)
	case code == http.StatusNotFound:
		return fmt.Errorf("oanda %s: %w", op, venue.ErrBadSymbol)
	default:
		return fmt.Errorf("oanda %s: status %d: %s", op, code, resp.String())
	}
}

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
