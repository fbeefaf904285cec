package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/venue"
)

// Spot is the Binance spot connector. Binance quotes crypto in USDT, so
// canonical BTC/USD maps to the native BTCUSDT.
type Spot struct {
	client  *binance.Client
	mapping venue.Mapping
	hasKeys bool
}

func NewSpot(apiKey, secretKey string, testnet bool) *Spot {
	if testnet {
		binance.UseTestnet = true
	}
	return &Spot{
		client:  binance.NewClient(apiKey, secretKey),
		mapping: venue.ConcatMapping(map[string]string{"USD": "USDT"}),
		hasKeys: apiKey != "" && secretKey != "",
	}
}

func (s *Spot) Name() string { return "binance-spot" }

func (s *Spot) FetchBars(ctx context.Context, sym market.Symbol, tf market.Timeframe, limit int) ([]market.Bar, error) {
	iv, err := interval(tf)
	if err != nil {
		return nil, err
	}

	klines, err := s.client.NewKlinesService().
		Symbol(s.mapping(sym)).
		Interval(iv).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance spot klines %s %s: %w", sym, tf.Key, err)
	}

	bars := make([]market.Bar, len(klines))
	for i, k := range klines {
		bars[i] = market.Bar{
			Time:   time.Unix(k.OpenTime/1000, 0).UTC(),
			Open:   parseF(k.Open),
			High:   parseF(k.High),
			Low:    parseF(k.Low),
			Close:  parseF(k.Close),
			Volume: parseF(k.Volume),
		}
	}
	return bars, nil
}

func (s *Spot) FetchTicker(ctx context.Context, sym market.Symbol) (market.Tick, error) {
	prices, err := s.client.NewListPricesService().Symbol(s.mapping(sym)).Do(ctx)
	if err != nil {
		return market.Tick{}, fmt.Errorf("binance spot price %s: %w", sym, err)
	}
	if len(prices) == 0 {
		return market.Tick{}, fmt.Errorf("no price for %s: %w", sym, venue.ErrBadSymbol)
	}
	return market.Tick{Symbol: sym, Price: parseF(prices[0].Price), Time: time.Now().UTC()}, nil
}

func (s *Spot) FetchBalance(ctx context.Context) (venue.Balance, error) {
	if !s.hasKeys {
		return nil, fmt.Errorf("binance spot balance: %w", venue.ErrMissingCredentials)
	}

	account, err := s.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance spot account: %w", err)
	}

	bal := make(venue.Balance)
	for _, b := range account.Balances {
		if free := parseF(b.Free); free > 0 {
			bal[b.Asset] = free
		}
	}
	return bal, nil
}

func (s *Spot) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderFill, error) {
	if !s.hasKeys {
		return venue.OrderFill{}, fmt.Errorf("binance spot order: %w", venue.ErrMissingCredentials)
	}

	side := binance.SideTypeBuy
	if req.Side == market.SideSell {
		side = binance.SideTypeSell
	}

	order, err := s.client.NewCreateOrderService().
		Symbol(s.mapping(req.Symbol)).
		Side(side).
		Type(binance.OrderTypeMarket).
		Quantity(qtyString(req.Quantity)).
		Do(ctx)
	if err != nil {
		return venue.OrderFill{}, fmt.Errorf("binance spot order %s: %w", req.Symbol, err)
	}

	// Average the partial fills; a market order can cross several book levels.
	var filledQty, filledCost float64
	for _, f := range order.Fills {
		q := parseF(f.Quantity)
		filledQty += q
		filledCost += q * parseF(f.Price)
	}
	price := parseF(order.Price)
	if filledQty > 0 {
		price = filledCost / filledQty
	}

	return venue.OrderFill{
		OrderID:  strconv.FormatInt(order.OrderID, 10),
		Venue:    s.Name(),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    price,
		Time:     time.Unix(order.TransactTime/1000, 0).UTC(),
	}, nil
}

func (s *Spot) CancelOrder(ctx context.Context, sym market.Symbol, orderID string) error {
	if !s.hasKeys {
		return fmt.Errorf("binance spot cancel: %w", venue.ErrMissingCredentials)
	}
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("binance spot cancel: bad order id %q", orderID)
	}
	_, err = s.client.NewCancelOrderService().
		Symbol(s.mapping(sym)).
		OrderID(id).
		Do(ctx)
	return err
}
