// Package pricefeed keeps the latest LPN quote of every leasable asset,
// fed by a streaming WebSocket source and optional static seeds.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"lease_engine/internal/core"
	apperrors "lease_engine/pkg/errors"
	"lease_engine/pkg/finance"
	"lease_engine/pkg/websocket"

	"github.com/shopspring/decimal"
)

// Update is one quote on the wire: the LPN price of one whole asset unit.
// Ts is in unix milliseconds; zero means the time of receipt.
type Update struct {
	Asset string          `json:"asset"`
	Price decimal.Decimal `json:"price"`
	Ts    int64           `json:"ts,omitempty"`
}

type subscribe struct {
	Op     string   `json:"op"`
	Assets []string `json:"assets"`
}

// Options configures the feed
type Options struct {
	URL            string
	APIKey         string
	Freshness      time.Duration
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

type quote struct {
	price  finance.Price
	at     time.Time
	static bool // seeded quotes never go stale
}

// Feed implements core.IPriceSource
type Feed struct {
	registry  *finance.Registry
	freshness time.Duration
	client    *websocket.Client
	logger    core.ILogger
	now       func() time.Time

	mu        sync.RWMutex
	quotes    map[finance.Ticker]quote
	listeners []func(asset finance.Ticker, price finance.Price)
}

func New(opts Options, registry *finance.Registry, logger core.ILogger) *Feed {
	f := &Feed{
		registry:  registry,
		freshness: opts.Freshness,
		logger:    logger.WithField("component", "price_feed"),
		now:       time.Now,
		quotes:    make(map[finance.Ticker]quote),
	}
	if opts.URL != "" {
		header := http.Header{}
		if opts.APIKey != "" {
			header.Set("X-Api-Key", opts.APIKey)
		}
		f.client = websocket.NewClient(websocket.Options{
			URL:           opts.URL,
			Header:        header,
			ReconnectWait: opts.ReconnectDelay,
			PingInterval:  opts.PingInterval,
		}, f.HandleMessage, logger)
		f.client.SetOnConnected(f.subscribe)
	}
	return f
}

// OnUpdate registers a listener called after every accepted quote
func (f *Feed) OnUpdate(fn func(asset finance.Ticker, price finance.Price)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

// Start connects the stream, if one is configured
func (f *Feed) Start() {
	if f.client != nil {
		f.client.Start()
	}
}

func (f *Feed) Stop() {
	if f.client != nil {
		f.client.Stop()
	}
}

// Health fails while a configured stream is disconnected
func (f *Feed) Health() error {
	if f.client != nil && !f.client.Connected() {
		return fmt.Errorf("price stream disconnected")
	}
	return nil
}

func (f *Feed) subscribe() {
	var assets []string
	for _, t := range f.registry.Tickers() {
		if f.registry.Leasable(t) && !f.registry.IsLpn(t) {
			assets = append(assets, string(t))
		}
	}
	if err := f.client.Send(subscribe{Op: "subscribe", Assets: assets}); err != nil {
		f.logger.Warn("Price subscription failed", "error", err)
	}
}

// SetStatic seeds a quote that never goes stale
func (f *Feed) SetStatic(asset finance.Ticker, price decimal.Decimal) error {
	return f.apply(asset, price, f.now(), true)
}

// HandleMessage accepts a single update or an array of updates
func (f *Feed) HandleMessage(message []byte) {
	var updates []Update
	if err := json.Unmarshal(message, &updates); err != nil {
		var u Update
		if err := json.Unmarshal(message, &u); err != nil {
			f.logger.Warn("Dropping malformed price message", "error", err)
			return
		}
		updates = []Update{u}
	}

	for _, u := range updates {
		at := f.now()
		if u.Ts > 0 {
			at = time.UnixMilli(u.Ts)
		}
		if err := f.apply(finance.Ticker(u.Asset), u.Price, at, false); err != nil {
			f.logger.Warn("Dropping price update", "asset", u.Asset, "price", u.Price, "error", err)
		}
	}
}

func (f *Feed) apply(asset finance.Ticker, price decimal.Decimal, at time.Time, static bool) error {
	base, err := f.registry.Get(asset)
	if err != nil {
		return err
	}
	p, err := finance.PriceFromDecimal(base, f.registry.Lpn(), price)
	if err != nil {
		return err
	}

	f.mu.Lock()
	if prev, ok := f.quotes[asset]; ok && !prev.static && at.Before(prev.at) {
		f.mu.Unlock()
		return nil
	}
	f.quotes[asset] = quote{price: p, at: at, static: static}
	listeners := append(([]func(finance.Ticker, finance.Price))(nil), f.listeners...)
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(asset, p)
	}
	return nil
}

func (f *Feed) CurrentPrice(ctx context.Context, asset, lpn finance.Ticker) (finance.Price, error) {
	if !f.registry.IsLpn(lpn) {
		return finance.Price{}, fmt.Errorf("quote currency %s: %w", lpn, apperrors.ErrUnknownCurrency)
	}
	if asset == lpn {
		return finance.Identity(lpn), nil
	}

	f.mu.RLock()
	q, ok := f.quotes[asset]
	f.mu.RUnlock()
	if !ok {
		return finance.Price{}, fmt.Errorf("%s/%s: %w", asset, lpn, apperrors.ErrNoPrice)
	}
	if !q.static && f.freshness > 0 && f.now().Sub(q.at) > f.freshness {
		return finance.Price{}, fmt.Errorf("%s/%s quoted at %s: %w", asset, lpn, q.at.Format(time.RFC3339), apperrors.ErrStalePrice)
	}
	return q.price, nil
}
