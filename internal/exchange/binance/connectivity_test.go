package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/stretchr/testify/suite"
)

// Mock implementations for testing

type mockBinanceClient struct {
	createOrderService *mockCreateOrderService
	createOCOService   *mockCreateOCOService
	openOrders         *mockListOpenOrdersService
	cancelOrderService *mockCancelOrderService
	klinesService      *mockKlinesService
	userStream         *mockUserStreamService
}

func newMockBinanceClient() *mockBinanceClient {
	return &mockBinanceClient{
		createOrderService: &mockCreateOrderService{},
		createOCOService:   &mockCreateOCOService{},
		openOrders:         &mockListOpenOrdersService{},
		cancelOrderService: &mockCancelOrderService{},
		klinesService:      &mockKlinesService{},
		userStream:         &mockUserStreamService{listenKey: "listen-key"},
	}
}

func (m *mockBinanceClient) NewCreateOrderService() CreateOrderService { return m.createOrderService }
func (m *mockBinanceClient) NewCreateOCOService() CreateOCOService     { return m.createOCOService }
func (m *mockBinanceClient) NewListOpenOrdersService() ListOpenOrdersService {
	return m.openOrders
}
func (m *mockBinanceClient) NewCancelOrderService() CancelOrderService { return m.cancelOrderService }
func (m *mockBinanceClient) NewKlinesService() KlinesService           { return m.klinesService }
func (m *mockBinanceClient) UserStream() UserStreamService             { return m.userStream }

type mockCreateOrderService struct {
	response  *binance.CreateOrderResponse
	err       error
	symbol    string
	side      binance.SideType
	orderTyp  binance.OrderType
	quantity  string
	price     string
	tif       binance.TimeInForceType
	clientID  string
	callCount int
}

func (m *mockCreateOrderService) Symbol(symbol string) CreateOrderService {
	m.symbol = symbol

	return m
}

func (m *mockCreateOrderService) Side(side binance.SideType) CreateOrderService {
	m.side = side

	return m
}

func (m *mockCreateOrderService) Type(orderType binance.OrderType) CreateOrderService {
	m.orderTyp = orderType

	return m
}

func (m *mockCreateOrderService) Quantity(quantity string) CreateOrderService {
	m.quantity = quantity

	return m
}

func (m *mockCreateOrderService) Price(price string) CreateOrderService {
	m.price = price

	return m
}

func (m *mockCreateOrderService) TimeInForce(tif binance.TimeInForceType) CreateOrderService {
	m.tif = tif

	return m
}

func (m *mockCreateOrderService) NewClientOrderID(id string) CreateOrderService {
	m.clientID = id

	return m
}

func (m *mockCreateOrderService) Do(_ context.Context) (*binance.CreateOrderResponse, error) {
	m.callCount++

	return m.response, m.err
}

type mockCreateOCOService struct {
	response    *binance.CreateOCOResponse
	err         error
	price       string
	stopPrice   string
	listID      string
	limitID     string
	stopID      string
	callCount   int
	stopLimit   string
	quantity    string
	side        binance.SideType
	symbol      string
	stopLimitTI binance.TimeInForceType
}

func (m *mockCreateOCOService) Symbol(symbol string) CreateOCOService {
	m.symbol = symbol

	return m
}

func (m *mockCreateOCOService) Side(side binance.SideType) CreateOCOService {
	m.side = side

	return m
}

func (m *mockCreateOCOService) Quantity(quantity string) CreateOCOService {
	m.quantity = quantity

	return m
}

func (m *mockCreateOCOService) Price(price string) CreateOCOService {
	m.price = price

	return m
}

func (m *mockCreateOCOService) StopPrice(price string) CreateOCOService {
	m.stopPrice = price

	return m
}

func (m *mockCreateOCOService) StopLimitPrice(price string) CreateOCOService {
	m.stopLimit = price

	return m
}

func (m *mockCreateOCOService) StopLimitTimeInForce(tif binance.TimeInForceType) CreateOCOService {
	m.stopLimitTI = tif

	return m
}

func (m *mockCreateOCOService) ListClientOrderID(id string) CreateOCOService {
	m.listID = id

	return m
}

func (m *mockCreateOCOService) LimitClientOrderID(id string) CreateOCOService {
	m.limitID = id

	return m
}

func (m *mockCreateOCOService) StopClientOrderID(id string) CreateOCOService {
	m.stopID = id

	return m
}

func (m *mockCreateOCOService) Do(_ context.Context) (*binance.CreateOCOResponse, error) {
	m.callCount++

	return m.response, m.err
}

type mockListOpenOrdersService struct {
	orders []*binance.Order
	err    error
}

func (m *mockListOpenOrdersService) Do(_ context.Context) ([]*binance.Order, error) {
	return m.orders, m.err
}

type mockCancelOrderService struct {
	mu        sync.Mutex
	err       error
	symbol    string
	clientIDs []string
}

func (m *mockCancelOrderService) Symbol(symbol string) CancelOrderService {
	m.symbol = symbol

	return m
}

func (m *mockCancelOrderService) OrigClientOrderID(id string) CancelOrderService {
	m.mu.Lock()
	m.clientIDs = append(m.clientIDs, id)
	m.mu.Unlock()

	return m
}

func (m *mockCancelOrderService) Do(_ context.Context) (*binance.CancelOrderResponse, error) {
	return &binance.CancelOrderResponse{}, m.err
}

type mockKlinesService struct {
	klines   []*binance.Kline
	err      error
	symbol   string
	interval string
	limit    int
}

func (m *mockKlinesService) Symbol(symbol string) KlinesService {
	m.symbol = symbol

	return m
}

func (m *mockKlinesService) Interval(interval string) KlinesService {
	m.interval = interval

	return m
}

func (m *mockKlinesService) Limit(limit int) KlinesService {
	m.limit = limit

	return m
}

func (m *mockKlinesService) Do(_ context.Context) ([]*binance.Kline, error) {
	return m.klines, m.err
}

type mockUserStreamService struct {
	listenKey string
	err       error
	closed    bool
}

func (m *mockUserStreamService) Start(_ context.Context) (string, error) {
	return m.listenKey, m.err
}

func (m *mockUserStreamService) Keepalive(_ context.Context, _ string) error {
	return nil
}

func (m *mockUserStreamService) Close(_ context.Context, _ string) error {
	m.closed = true

	return nil
}

// mockWebSocketService hands out controllable streams.
type mockWebSocketService struct {
	mu          sync.Mutex
	bookHandler WsBookTickerHandler
	klineHandle WsKlineHandler
	stops       map[string]chan struct{}
	err         error
}

func newMockWebSocketService() *mockWebSocketService {
	return &mockWebSocketService{stops: make(map[string]chan struct{})}
}

func (m *mockWebSocketService) serve(key string) (chan struct{}, chan struct{}, error) {
	if m.err != nil {
		return nil, nil, m.err
	}

	doneC := make(chan struct{})
	stopC := make(chan struct{})

	m.stops[key] = stopC

	go func() {
		<-stopC
		close(doneC)
	}()

	return doneC, stopC, nil
}

func (m *mockWebSocketService) WsBookTickerServe(symbol string, handler WsBookTickerHandler, _ WsErrorHandler) (chan struct{}, chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bookHandler = handler

	return m.serve("book:" + symbol)
}

func (m *mockWebSocketService) WsTradeServe(symbol string, _ WsTradeHandler, _ WsErrorHandler) (chan struct{}, chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.serve("trades:" + symbol)
}

func (m *mockWebSocketService) WsKlineServe(symbol, interval string, handler WsKlineHandler, _ WsErrorHandler) (chan struct{}, chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.klineHandle = handler

	return m.serve("candles:" + symbol + ":" + interval)
}

func (m *mockWebSocketService) stopChannel(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stops[key]
}

// userStreamServer is a fake user data stream endpoint.
type userStreamServer struct {
	server   *httptest.Server
	messages chan string
	path     chan string
}

func newUserStreamServer() *userStreamServer {
	s := &userStreamServer{messages: make(chan string, 16), path: make(chan string, 4)}

	upgrader := websocket.Upgrader{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		s.path <- r.URL.Path

		for message := range s.messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
				return
			}
		}
	}))

	return s
}

func (s *userStreamServer) url() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
}

func (s *userStreamServer) close() {
	close(s.messages)
	s.server.Close()
}

type ConnectivityTestSuite struct {
	suite.Suite
	client *mockBinanceClient
	ws     *mockWebSocketService
	stream *userStreamServer
	conn   *Connectivity
}

func TestConnectivitySuite(t *testing.T) {
	suite.Run(t, new(ConnectivityTestSuite))
}

func (suite *ConnectivityTestSuite) SetupTest() {
	suite.client = newMockBinanceClient()
	suite.ws = newMockWebSocketService()
	suite.stream = newUserStreamServer()

	conn, err := New(context.Background(), suite.config(), WithClient(suite.client), WithWebSocket(suite.ws))
	suite.Require().NoError(err)

	suite.conn = conn

	snapshot := suite.next()
	suite.IsType(types.OrderSnapshotEvent{}, snapshot)
}

func (suite *ConnectivityTestSuite) TearDownTest() {
	_ = suite.conn.Close()
	suite.stream.close()
}

func (suite *ConnectivityTestSuite) config() Config {
	return Config{
		ApiKey:             "key",
		SecretKey:          "secret",
		BaseURL:            "",
		StreamURL:          suite.stream.url(),
		Testnet:            true,
		OrdersPerSecond:    1000,
		CandleSnapshotSize: 3,
	}
}

func (suite *ConnectivityTestSuite) next() types.ExchangeEvent {
	select {
	case ev, ok := <-suite.conn.Events():
		suite.Require().True(ok, "events channel closed")

		return ev
	case <-time.After(2 * time.Second):
		suite.FailNow("timed out waiting for an exchange event")
	}

	return nil
}

func (suite *ConnectivityTestSuite) TestUserStreamUsesListenKey() {
	select {
	case path := <-suite.stream.path:
		suite.Equal("/ws/listen-key", path)
	case <-time.After(2 * time.Second):
		suite.FailNow("user stream never connected")
	}
}

func (suite *ConnectivityTestSuite) TestSnapshotSkipsForeignOrders() {
	cid := types.NewCID()
	suite.client.openOrders.orders = []*binance.Order{
		{Symbol: "BTCUSDT", OrderID: 1, ClientOrderID: "manual", OrigQuantity: "1", Side: binance.SideTypeBuy},
		{
			Symbol: "BTCUSDT", OrderID: 2, ClientOrderID: encodeClientID(5, cid, ""),
			Price: "10", OrigQuantity: "1", ExecutedQuantity: "0", Side: binance.SideTypeBuy,
			Type: binance.OrderTypeLimit, Status: binance.OrderStatusTypeNew,
		},
	}

	suite.Require().NoError(suite.conn.sendSnapshot(context.Background()))

	snapshot, ok := suite.next().(types.OrderSnapshotEvent)
	suite.Require().True(ok)
	suite.Require().Len(snapshot.Orders, 1)
	suite.Equal(cid, snapshot.Orders[0].CID)
	suite.Equal(int64(5), snapshot.Orders[0].GID)
}

func (suite *ConnectivityTestSuite) TestSubmitLimitOrder() {
	suite.client.createOrderService.response = &binance.CreateOrderResponse{OrderID: 99}

	order := types.NewLimitOrder(11, "BTCUSDT", -0.5, 50000)

	acked, err := suite.conn.SubmitOrder(context.Background(), order)
	suite.Require().NoError(err)
	suite.Equal("99", acked.ID)
	suite.Equal(types.OrderStatusActive, acked.Status)

	svc := suite.client.createOrderService
	suite.Equal("BTCUSDT", svc.symbol)
	suite.Equal(binance.SideTypeSell, svc.side)
	suite.Equal(binance.OrderTypeLimit, svc.orderTyp)
	suite.Equal("0.50000000", svc.quantity)
	suite.Equal("50000", svc.price)
	suite.Equal(binance.TimeInForceTypeGTC, svc.tif)
	suite.Equal(encodeClientID(11, order.CID, ""), svc.clientID)
}

func (suite *ConnectivityTestSuite) TestSubmitPostOnlyOrder() {
	suite.client.createOrderService.response = &binance.CreateOrderResponse{OrderID: 1}

	order := types.NewLimitOrder(11, "BTCUSDT", 1, 100)
	order.PostOnly = true

	_, err := suite.conn.SubmitOrder(context.Background(), order)
	suite.Require().NoError(err)
	suite.Equal(binance.OrderTypeLimitMaker, suite.client.createOrderService.orderTyp)
	suite.Empty(string(suite.client.createOrderService.tif))
}

func (suite *ConnectivityTestSuite) TestSubmitMarketOrder() {
	suite.client.createOrderService.response = &binance.CreateOrderResponse{OrderID: 1}

	_, err := suite.conn.SubmitOrder(context.Background(), types.NewMarketOrder(11, "BTCUSDT", 2))
	suite.Require().NoError(err)
	suite.Equal(binance.OrderTypeMarket, suite.client.createOrderService.orderTyp)
	suite.Empty(suite.client.createOrderService.price)
}

func (suite *ConnectivityTestSuite) TestSubmitClassifiesErrors() {
	suite.client.createOrderService.err = &common.APIError{Code: -2010, Message: "Account has insufficient balance for requested action."}

	_, err := suite.conn.SubmitOrder(context.Background(), types.NewLimitOrder(11, "BTCUSDT", 1, 100))
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientBalance))
}

func (suite *ConnectivityTestSuite) TestSubmitOCOOrder() {
	suite.client.createOCOService.response = &binance.CreateOCOResponse{OrderListID: 77}

	order := types.NewLimitOrder(11, "ETHUSDT", -1, 3000)
	order.OCO = true
	order.OCOStopPrice = 2800

	acked, err := suite.conn.SubmitOrder(context.Background(), order)
	suite.Require().NoError(err)
	suite.Equal("77", acked.ID)

	svc := suite.client.createOCOService
	suite.Equal("3000", svc.price)
	suite.Equal("2800", svc.stopPrice)
	suite.Equal(encodeClientID(11, order.CID, ocoLimitSuffix), svc.limitID)
	suite.Equal(encodeClientID(11, order.CID, ocoStopSuffix), svc.stopID)
}

func (suite *ConnectivityTestSuite) TestCancelOrdersByGID() {
	mine := types.NewCID()
	other := types.NewCID()
	suite.client.openOrders.orders = []*binance.Order{
		{Symbol: "BTCUSDT", ClientOrderID: encodeClientID(3, mine, "")},
		{Symbol: "BTCUSDT", ClientOrderID: encodeClientID(4, other, "")},
		{Symbol: "BTCUSDT", ClientOrderID: "manual"},
	}

	suite.Require().NoError(suite.conn.CancelOrdersByGID(context.Background(), 3))
	suite.Equal([]string{encodeClientID(3, mine, "")}, suite.client.cancelOrderService.clientIDs)
}

func (suite *ConnectivityTestSuite) TestCancelOrderFailure() {
	suite.client.cancelOrderService.err = &common.APIError{Code: -2011, Message: "Unknown order sent."}

	err := suite.conn.CancelOrder(context.Background(), types.NewLimitOrder(3, "BTCUSDT", 1, 1))
	suite.True(errors.HasCode(err, errors.ErrCodeCancelFailed))
}

func (suite *ConnectivityTestSuite) TestExecutionReports() {
	cid := types.NewCID()
	clientID := encodeClientID(9, cid, "")

	suite.stream.messages <- `{"e":"executionReport","s":"BTCUSDT","c":"` + clientID + `","S":"BUY","o":"LIMIT","q":"2","p":"100","x":"NEW","X":"NEW","i":5,"z":"0","Z":"0","T":1000,"g":-1}`
	suite.stream.messages <- `{"e":"executionReport","s":"BTCUSDT","c":"` + clientID + `","S":"BUY","o":"LIMIT","q":"2","p":"100","x":"TRADE","X":"PARTIALLY_FILLED","i":5,"z":"0.5","Z":"50","T":1001,"g":-1}`
	suite.stream.messages <- `{"e":"executionReport","s":"BTCUSDT","c":"` + clientID + `","S":"BUY","o":"LIMIT","q":"2","p":"100","x":"TRADE","X":"FILLED","i":5,"z":"2","Z":"200","T":1002,"g":-1}`

	first, ok := suite.next().(types.OrderEvent)
	suite.Require().True(ok)
	suite.Equal(types.OrderEventNew, first.Kind)
	suite.Equal(cid, first.Order.CID)
	suite.Equal(int64(9), first.Order.GID)

	second, ok := suite.next().(types.OrderEvent)
	suite.Require().True(ok)
	suite.Equal(types.OrderEventUpdate, second.Kind)
	suite.InDelta(1.5, second.Order.Amount, 1e-9)

	third, ok := suite.next().(types.OrderEvent)
	suite.Require().True(ok)
	suite.Equal(types.OrderEventClose, third.Kind)
	suite.Equal(types.OrderStatusExecuted, third.Order.Status)
	suite.InDelta(100.0, third.Order.PriceAvg, 1e-9)
}

func (suite *ConnectivityTestSuite) TestCancelReportUsesOriginalClientID() {
	cid := types.NewCID()

	suite.stream.messages <- `{"e":"executionReport","s":"BTCUSDT","c":"web_x","C":"` + encodeClientID(9, cid, "") + `","S":"SELL","o":"LIMIT","q":"1","p":"100","x":"CANCELED","X":"CANCELED","i":5,"z":"0","Z":"0","T":1000,"g":-1}`

	ev, ok := suite.next().(types.OrderEvent)
	suite.Require().True(ok)
	suite.Equal(types.OrderEventClose, ev.Kind)
	suite.Equal(types.OrderStatusCancelled, ev.Order.Status)
	suite.Equal(cid, ev.Order.CID)
	suite.InDelta(-1.0, ev.Order.Amount, 1e-9)
}

func (suite *ConnectivityTestSuite) TestOCOLegsMergeIntoOneOrder() {
	cid := types.NewCID()
	limitID := encodeClientID(9, cid, ocoLimitSuffix)
	stopID := encodeClientID(9, cid, ocoStopSuffix)

	report := func(clientID, x, status, filled string) string {
		return `{"e":"executionReport","s":"ETHUSDT","c":"` + clientID + `","S":"SELL","o":"LIMIT_MAKER","q":"1","p":"3000","P":"2800","x":"` +
			x + `","X":"` + status + `","i":5,"z":"` + filled + `","Z":"0","T":1000,"g":12}`
	}

	suite.stream.messages <- report(stopID, "NEW", "NEW", "0")
	suite.stream.messages <- report(limitID, "NEW", "NEW", "0")
	suite.stream.messages <- report(stopID, "EXPIRED", "EXPIRED", "0")
	suite.stream.messages <- report(limitID, "TRADE", "FILLED", "1")

	opened, ok := suite.next().(types.OrderEvent)
	suite.Require().True(ok)
	suite.Equal(types.OrderEventNew, opened.Kind)
	suite.True(opened.Order.OCO)

	closed, ok := suite.next().(types.OrderEvent)
	suite.Require().True(ok)
	suite.Equal(types.OrderEventClose, closed.Kind)
	suite.Equal(types.OrderStatusExecuted, closed.Order.Status)
}

func (suite *ConnectivityTestSuite) TestSubscribeCandlesSendsSnapshotFirst() {
	suite.client.klinesService.klines = []*binance.Kline{
		{OpenTime: 1000, Open: "1", High: "2", Low: "0.5", Close: "1.5", Volume: "10"},
		{OpenTime: 2000, Open: "1.5", High: "3", Low: "1", Close: "2.5", Volume: "12"},
	}

	ch := types.CandlesChannel("BTCUSDT", "1m")
	suite.Require().NoError(suite.conn.Subscribe(context.Background(), ch))
	suite.Equal(3, suite.client.klinesService.limit)

	snapshot, ok := suite.next().(types.CandlesEvent)
	suite.Require().True(ok)
	suite.True(snapshot.Snapshot)
	suite.Len(snapshot.Candles, 2)
	suite.True(ch.Matches(snapshot))

	suite.ws.mu.Lock()
	handler := suite.ws.klineHandle
	suite.ws.mu.Unlock()

	handler(&BinanceWsKlineEvent{
		Symbol: "BTCUSDT",
		Kline:  BinanceWsKline{StartTime: 3000, Interval: "1m", Open: "2.5", High: "3", Low: "2", Close: "2.8", Volume: "5"},
	})

	live, ok := suite.next().(types.CandlesEvent)
	suite.Require().True(ok)
	suite.False(live.Snapshot)
	suite.InDelta(2.8, live.Candles[0].Close, 1e-9)
}

func (suite *ConnectivityTestSuite) TestSubscribeIsIdempotentAndUnsubscribeStops() {
	ch := types.BookChannel("BTCUSDT")

	suite.Require().NoError(suite.conn.Subscribe(context.Background(), ch))
	suite.Require().NoError(suite.conn.Subscribe(context.Background(), ch))

	stopC := suite.ws.stopChannel("book:BTCUSDT")
	suite.Require().NotNil(stopC)

	suite.Require().NoError(suite.conn.Unsubscribe(context.Background(), ch))

	select {
	case <-stopC:
	case <-time.After(time.Second):
		suite.Fail("stream not stopped")
	}
}

func (suite *ConnectivityTestSuite) TestCloseClosesEvents() {
	suite.Require().NoError(suite.conn.Close())
	suite.True(suite.client.userStream.closed)

	_, ok := <-suite.conn.Events()
	suite.False(ok)
}
