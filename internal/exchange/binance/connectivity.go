package binance

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/gorilla/websocket"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-algo/internal/logger"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/internal/utils"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	eventBufferSize = 1024
	testnetBaseURL  = "https://testnet.binance.vision"
)

// Option configures a Connectivity.
type Option func(*Connectivity)

// WithClient replaces the REST client.
func WithClient(client BinanceClient) Option {
	return func(c *Connectivity) {
		c.client = client
	}
}

// WithWebSocket replaces the market data streams.
func WithWebSocket(ws WebSocketService) Option {
	return func(c *Connectivity) {
		c.ws = ws
	}
}

// WithDialer replaces the dialer of the user data stream.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Connectivity) {
		c.dialer = dialer
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Connectivity) {
		c.log = log
	}
}

// Connectivity connects algo orders to the Binance spot API. Orders are placed over REST,
// their lifecycle arrives through the user data stream and market data through the public streams.
type Connectivity struct {
	config   Config
	client   BinanceClient
	ws       WebSocketService
	dialer   *websocket.Dialer
	limiter  *rate.Limiter
	log      *logger.Logger
	events   chan types.ExchangeEvent
	done     chan struct{}
	wg       conc.WaitGroup
	user     *userStream
	closeErr error

	mu      sync.Mutex
	streams map[string]chan struct{}
	oco     map[string]*ocoList

	sendMu sync.RWMutex
	closed bool

	closeOnce sync.Once
}

// ocoList tracks the two legs of an OCO order so they surface as one order.
type ocoList struct {
	closed int
	filled bool
}

// New connects to Binance, starts the user data stream and emits a snapshot of the open orders.
func New(ctx context.Context, config Config, opts ...Option) (*Connectivity, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Connectivity{
		config:    config,
		client:    nil,
		ws:        nil,
		dialer:    websocket.DefaultDialer,
		limiter:   rate.NewLimiter(rate.Limit(config.ordersPerSecond()), 1),
		log:       logger.NewNopLogger(),
		events:    make(chan types.ExchangeEvent, eventBufferSize),
		done:      make(chan struct{}),
		wg:        conc.WaitGroup{},
		user:      nil,
		closeErr:  nil,
		mu:        sync.Mutex{},
		streams:   make(map[string]chan struct{}),
		oco:       make(map[string]*ocoList),
		sendMu:    sync.RWMutex{},
		closed:    false,
		closeOnce: sync.Once{},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		if config.Testnet {
			binance.UseTestnet = true
		}

		client := binance.NewClient(config.ApiKey, config.SecretKey)

		if config.Testnet {
			client.BaseURL = testnetBaseURL
		}

		// Set custom base URL if provided (takes precedence over Testnet)
		if config.BaseURL != "" {
			client.BaseURL = config.BaseURL
		}

		c.client = &realBinanceClient{client: client}
	}

	if c.ws == nil {
		c.ws = realWebSocketService{}
	}

	user, err := startUserStream(ctx, c)
	if err != nil {
		return nil, err
	}

	c.user = user

	if err := c.sendSnapshot(ctx); err != nil {
		_ = c.Close()

		return nil, err
	}

	return c, nil
}

// Events delivers order, account and market data events. It is closed by Close.
func (c *Connectivity) Events() <-chan types.ExchangeEvent {
	return c.events
}

// SubmitOrder places order and returns it with the exchange id and ACTIVE status.
func (c *Connectivity) SubmitOrder(ctx context.Context, order types.Order) (types.Order, error) {
	if err := order.Validate(); err != nil {
		return order, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return order, errors.Wrap(errors.ErrCodeOrderFailed, "rate limiter", err)
	}

	quantity := utils.RoundToDecimalPrecision(math.Abs(order.AmountOrig), BinanceDecimalPrecision)
	if quantity <= 0 {
		return order, errors.Newf(errors.ErrCodeMinimumSize,
			"order quantity %.8f is too small after rounding to %d decimal places",
			math.Abs(order.AmountOrig), BinanceDecimalPrecision)
	}

	if order.OCO {
		return c.submitOCO(ctx, order, quantity)
	}

	orderType := binance.OrderTypeMarket

	switch {
	case order.Type == types.OrderTypeLimit && order.PostOnly:
		orderType = binance.OrderTypeLimitMaker
	case order.Type == types.OrderTypeLimit:
		orderType = binance.OrderTypeLimit
	}

	service := c.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(sideOf(order)).
		Type(orderType).
		Quantity(formatAmount(quantity)).
		NewClientOrderID(encodeClientID(order.GID, order.CID, ""))

	if order.Type == types.OrderTypeLimit {
		service = service.Price(formatPrice(order.PriceOr(0)))
	}

	if orderType == binance.OrderTypeLimit {
		service = service.TimeInForce(binance.TimeInForceTypeGTC)
	}

	resp, err := service.Do(ctx)
	if err != nil {
		return order, classifyError(err, "failed to place order on Binance")
	}

	order.ID = strconv.FormatInt(resp.OrderID, 10)
	order.Status = types.OrderStatusActive

	return order, nil
}

func (c *Connectivity) submitOCO(ctx context.Context, order types.Order, quantity float64) (types.Order, error) {
	if order.Price.IsNone() || order.OCOStopPrice <= 0 {
		return order, errors.Newf(errors.ErrCodeInvalidOrder, "oco order %s needs a limit and a stop price", order.CID)
	}

	stop := formatPrice(order.OCOStopPrice)

	c.mu.Lock()
	c.oco[order.CID] = &ocoList{closed: 0, filled: false}
	c.mu.Unlock()

	resp, err := c.client.NewCreateOCOService().
		Symbol(order.Symbol).
		Side(sideOf(order)).
		Quantity(formatAmount(quantity)).
		Price(formatPrice(order.PriceOr(0))).
		StopPrice(stop).
		StopLimitPrice(stop).
		StopLimitTimeInForce(binance.TimeInForceTypeGTC).
		ListClientOrderID(encodeClientID(order.GID, order.CID, "")).
		LimitClientOrderID(encodeClientID(order.GID, order.CID, ocoLimitSuffix)).
		StopClientOrderID(encodeClientID(order.GID, order.CID, ocoStopSuffix)).
		Do(ctx)
	if err != nil {
		c.mu.Lock()
		delete(c.oco, order.CID)
		c.mu.Unlock()

		return order, classifyError(err, "failed to place oco order on Binance")
	}

	order.ID = strconv.FormatInt(resp.OrderListID, 10)
	order.Status = types.OrderStatusActive

	return order, nil
}

// CancelOrder cancels one order. Cancelling one leg of an OCO order cancels the list.
func (c *Connectivity) CancelOrder(ctx context.Context, order types.Order) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeCancelFailed, "rate limiter", err)
	}

	suffix := ""
	if order.OCO {
		suffix = ocoLimitSuffix
	}

	_, err := c.client.NewCancelOrderService().
		Symbol(order.Symbol).
		OrigClientOrderID(encodeClientID(order.GID, order.CID, suffix)).
		Do(ctx)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeCancelFailed, err, "failed to cancel order %s", order.CID)
	}

	return nil
}

// CancelOrdersByGID cancels every open order whose client id carries gid.
func (c *Connectivity) CancelOrdersByGID(ctx context.Context, gid int64) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeCancelFailed, "rate limiter", err)
	}

	open, err := c.client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeCancelFailed, "failed to list open orders", err)
	}

	var firstErr error

	seen := make(map[string]bool)

	for _, bo := range open {
		orderGID, cid, ok := decodeClientID(bo.ClientOrderID)
		if !ok || orderGID != gid || seen[cid] {
			continue
		}

		seen[cid] = true

		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(errors.ErrCodeCancelFailed, "rate limiter", err)
		}

		_, err := c.client.NewCancelOrderService().
			Symbol(bo.Symbol).
			OrigClientOrderID(bo.ClientOrderID).
			Do(ctx)
		if err != nil && firstErr == nil {
			firstErr = errors.Wrapf(errors.ErrCodeCancelFailed, err, "failed to cancel order %s", cid)
		}
	}

	return firstErr
}

// Subscribe starts the market data stream of ch. Candle subscriptions first deliver a snapshot
// of recent candles. Subscribing twice to the same channel is a no-op.
func (c *Connectivity) Subscribe(ctx context.Context, ch types.Channel) error {
	key := ch.Key()

	c.mu.Lock()
	_, exists := c.streams[key]
	c.mu.Unlock()

	if exists {
		return nil
	}

	var (
		doneC, stopC chan struct{}
		err          error
	)

	errHandler := func(err error) {
		c.log.Warn("market data stream error", zap.String("channel", key), zap.Error(err))
	}

	switch ch.Type {
	case types.ChannelTypeBook:
		doneC, stopC, err = c.ws.WsBookTickerServe(ch.Symbol, func(event *BinanceWsBookTickerEvent) {
			c.send(types.BookEvent{Book: bookTickerToBook(event)})
		}, errHandler)
	case types.ChannelTypeTrades:
		doneC, stopC, err = c.ws.WsTradeServe(ch.Symbol, func(event *BinanceWsTradeEvent) {
			c.send(types.TradesEvent{Symbol: event.Symbol, Trades: []types.Trade{wsTradeToTrade(event)}})
		}, errHandler)
	case types.ChannelTypeCandles:
		if err := c.sendCandleSnapshot(ctx, ch); err != nil {
			return err
		}

		doneC, stopC, err = c.ws.WsKlineServe(ch.Symbol, ch.Timeframe, func(event *BinanceWsKlineEvent) {
			c.send(types.CandlesEvent{
				Symbol:    event.Symbol,
				Timeframe: event.Kline.Interval,
				Candles:   []types.Candle{wsKlineToCandle(event.Symbol, event.Kline)},
				Snapshot:  false,
			})
		}, errHandler)
	default:
		return errors.Newf(errors.ErrCodeSubscribeFailed, "unsupported channel type: %s", ch.Type)
	}

	if err != nil {
		return errors.Wrapf(errors.ErrCodeSubscribeFailed, err, "failed to subscribe to %s", key)
	}

	c.mu.Lock()
	c.streams[key] = stopC
	c.mu.Unlock()

	c.wg.Go(func() {
		select {
		case <-doneC:
			c.mu.Lock()
			if c.streams[key] == stopC {
				delete(c.streams, key)
				c.log.Warn("market data stream ended", zap.String("channel", key))
			}
			c.mu.Unlock()
		case <-c.done:
		}
	})

	return nil
}

func (c *Connectivity) sendCandleSnapshot(ctx context.Context, ch types.Channel) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeSubscribeFailed, "rate limiter", err)
	}

	klines, err := c.client.NewKlinesService().
		Symbol(ch.Symbol).
		Interval(ch.Timeframe).
		Limit(c.config.candleSnapshotSize()).
		Do(ctx)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch candles for %s", ch.Key())
	}

	candles := make([]types.Candle, 0, len(klines))
	for _, k := range klines {
		candles = append(candles, klineToCandle(ch.Symbol, ch.Timeframe, k))
	}

	c.send(types.CandlesEvent{Symbol: ch.Symbol, Timeframe: ch.Timeframe, Candles: candles, Snapshot: true})

	return nil
}

// Unsubscribe stops the market data stream of ch.
func (c *Connectivity) Unsubscribe(_ context.Context, ch types.Channel) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stopC, ok := c.streams[ch.Key()]
	if !ok {
		return nil
	}

	delete(c.streams, ch.Key())
	close(stopC)

	return nil
}

// Close stops every stream and closes the events channel.
func (c *Connectivity) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		for key, stopC := range c.streams {
			close(stopC)
			delete(c.streams, key)
		}
		c.mu.Unlock()

		if c.user != nil {
			c.closeErr = c.user.close()
		}

		c.wg.Wait()

		c.sendMu.Lock()
		c.closed = true
		close(c.events)
		c.sendMu.Unlock()
	})

	return c.closeErr
}

// send delivers ev unless the connectivity is closing.
func (c *Connectivity) send(ev types.ExchangeEvent) {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	if c.closed {
		return
	}

	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Connectivity) sendSnapshot(ctx context.Context) error {
	open, err := c.client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStreamFailed, "failed to list open orders", err)
	}

	orders := make([]types.Order, 0, len(open))
	seen := make(map[string]bool)

	for _, bo := range open {
		order, ok := convertBinanceOrder(bo)
		if !ok || seen[order.CID] {
			continue
		}

		seen[order.CID] = true
		orders = append(orders, order)
	}

	c.send(types.OrderSnapshotEvent{Orders: orders})

	return nil
}

// handleExecutionReport turns one order update of the user data stream into an order event.
func (c *Connectivity) handleExecutionReport(report executionReport) {
	clientID := report.ClientOrderID
	if report.OrigClientOrderID != "" {
		clientID = report.OrigClientOrderID
	}

	gid, cid, ok := decodeClientID(clientID)
	if !ok {
		return
	}

	order := report.toOrder(gid, cid)
	kind := eventKind(report)

	if isOCOLeg(clientID) {
		var emit bool

		kind, emit = c.mergeOCOLeg(cid, clientID, kind, order.Status)
		if !emit {
			return
		}
	}

	c.send(types.OrderEvent{Kind: kind, Order: order})
}

// mergeOCOLeg folds the reports of both OCO legs into one order lifecycle: the limit leg
// opens it, a fill of either leg executes it and it is cancelled once both legs are cancelled.
func (c *Connectivity) mergeOCOLeg(cid, clientID string, kind types.OrderEventKind, status types.OrderStatus) (types.OrderEventKind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list, ok := c.oco[cid]
	if !ok {
		list = &ocoList{closed: 0, filled: false}
		c.oco[cid] = list
	}

	switch kind {
	case types.OrderEventNew:
		return kind, strings.HasSuffix(clientID, ocoLimitSuffix)
	case types.OrderEventUpdate:
		return kind, true
	case types.OrderEventClose:
		list.closed++
		if status == types.OrderStatusExecuted {
			list.filled = true
		}

		if list.closed >= 2 {
			delete(c.oco, cid)
		}

		if status == types.OrderStatusExecuted {
			return kind, true
		}

		return kind, list.closed >= 2 && !list.filled
	}

	return kind, false
}

func eventKind(report executionReport) types.OrderEventKind {
	switch binance.OrderStatusType(report.Status) {
	case binance.OrderStatusTypeFilled, binance.OrderStatusTypeCanceled,
		binance.OrderStatusTypeExpired, binance.OrderStatusTypeRejected:
		return types.OrderEventClose
	}

	if report.ExecutionType == "NEW" {
		return types.OrderEventNew
	}

	return types.OrderEventUpdate
}

// executionReport is the order update of the user data stream.
type executionReport struct {
	Event               string `json:"e"`
	Symbol              string `json:"s"`
	ClientOrderID       string `json:"c"`
	OrigClientOrderID   string `json:"C"`
	Side                string `json:"S"`
	Type                string `json:"o"`
	Quantity            string `json:"q"`
	Price               string `json:"p"`
	StopPrice           string `json:"P"`
	ExecutionType       string `json:"x"`
	Status              string `json:"X"`
	RejectReason        string `json:"r"`
	OrderID             int64  `json:"i"`
	LastFilledQuantity  string `json:"l"`
	FilledQuantity      string `json:"z"`
	LastFilledPrice     string `json:"L"`
	TransactionTime     int64  `json:"T"`
	FilledQuoteQuantity string `json:"Z"`
	OrderListID         int64  `json:"g"`
}

func (r executionReport) toOrder(gid int64, cid string) types.Order {
	sign := signFor(r.Side)
	orig := parseFloat(r.Quantity)
	filled := parseFloat(r.FilledQuantity)

	order := types.NewLimitOrder(gid, r.Symbol, sign*orig, parseFloat(r.Price))
	order.CID = cid
	order.ID = strconv.FormatInt(r.OrderID, 10)
	order.Amount = sign * (orig - filled)
	order.PriceAvg = averagePrice(parseFloat(r.FilledQuoteQuantity), filled)
	order.PostOnly = r.Type == string(binance.OrderTypeLimitMaker)
	order.OCO = isOCOLeg(r.ClientOrderID) || isOCOLeg(r.OrigClientOrderID)
	order.OCOStopPrice = parseFloat(r.StopPrice)
	order.Status = mapBinanceOrderStatus(r.Status)
	order.CreatedAt = time.UnixMilli(r.TransactionTime)

	if r.Type == string(binance.OrderTypeMarket) {
		order.Type = types.OrderTypeMarket
		order.Price = optional.None[float64]()
	}

	return order
}
