package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/venue"
)

// Futures is the Binance USD-M perpetual futures connector.
type Futures struct {
	client  *futures.Client
	mapping venue.Mapping
	hasKeys bool
}

func NewFutures(apiKey, secretKey string, testnet bool) *Futures {
	if testnet {
		futures.UseTestnet = true
	}
	return &Futures{
		client:  futures.NewClient(apiKey, secretKey),
		mapping: venue.ConcatMapping(map[string]string{"USD": "USDT"}),
		hasKeys: apiKey != "" && secretKey != "",
	}
}

func (f *Futures) Name() string { return "binance-futures" }

func (f *Futures) FetchBars(ctx context.Context, sym market.Symbol, tf market.Timeframe, limit int) ([]market.Bar, error) {
	iv, err := interval(tf)
	if err != nil {
		return nil, err
	}

	klines, err := f.client.NewKlinesService().
		Symbol(f.mapping(sym)).
		Interval(iv).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance futures klines %s %s: %w", sym, tf.Key, err)
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

func (f *Futures) FetchTicker(ctx context.Context, sym market.Symbol) (market.Tick, error) {
	prices, err := f.client.NewListPricesService().Symbol(f.mapping(sym)).Do(ctx)
	if err != nil {
		return market.Tick{}, fmt.Errorf("binance futures price %s: %w", sym, err)
	}
	if len(prices) == 0 {
		return market.Tick{}, fmt.Errorf("no price for %s: %w", sym, venue.ErrBadSymbol)
	}
	return market.Tick{Symbol: sym, Price: parseF(prices[0].Price), Time: time.Now().UTC()}, nil
}

func (f *Futures) FetchBalance(ctx context.Context) (venue.Balance, error) {
	if !f.hasKeys {
		return nil, fmt.Errorf("binance futures balance: %w", venue.ErrMissingCredentials)
	}

	account, err := f.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance futures account: %w", err)
	}

	bal := make(venue.Balance)
	for _, a := range account.Assets {
		if wallet := parseF(a.WalletBalance); wallet > 0 {
			bal[a.Asset] = wallet
		}
	}
	return bal, nil
}

// SetLeverage applies the account leverage for a symbol before entries.
func (f *Futures) SetLeverage(ctx context.Context, sym market.Symbol, leverage int) error {
	if !f.hasKeys {
		return fmt.Errorf("binance futures leverage: %w", venue.ErrMissingCredentials)
	}
	_, err := f.client.NewChangeLeverageService().
		Symbol(f.mapping(sym)).
		Leverage(leverage).
		Do(ctx)
	return err
}

func (f *Futures) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderFill, error) {
	if !f.hasKeys {
		return venue.OrderFill{}, fmt.Errorf("binance futures order: %w", venue.ErrMissingCredentials)
	}

	side := futures.SideTypeBuy
	if req.Side == market.SideSell {
		side = futures.SideTypeSell
	}

	order, err := f.client.NewCreateOrderService().
		Symbol(f.mapping(req.Symbol)).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(qtyString(req.Quantity)).
		Do(ctx)
	if err != nil {
		return venue.OrderFill{}, fmt.Errorf("binance futures order %s: %w", req.Symbol, err)
	}

	price := parseF(order.AvgPrice)
	if price == 0 {
		tick, terr := f.FetchTicker(ctx, req.Symbol)
		if terr != nil {
			return venue.OrderFill{}, terr
		}
		price = tick.Price
	}

	return venue.OrderFill{
		OrderID:  strconv.FormatInt(order.OrderID, 10),
		Venue:    f.Name(),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    price,
		Time:     time.Unix(order.UpdateTime/1000, 0).UTC(),
	}, nil
}

func (f *Futures) CancelOrder(ctx context.Context, sym market.Symbol, orderID string) error {
	if !f.hasKeys {
		return fmt.Errorf("binance futures cancel: %w", venue.ErrMissingCredentials)
	}
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("binance futures cancel: bad order id %q", orderID)
	}
	_, err = f.client.NewCancelOrderService().
		Symbol(f.mapping(sym)).
		OrderID(id).
		Do(ctx)
	return err
}
